package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// personaFile is the optional YAML persona definition merged into the engine
// config: a free-form identity paragraph plus extra reaction emoji.
type personaFile struct {
	Identity       string   `yaml:"identity"`
	ExtraReactions []string `yaml:"extra_reactions"`
}

func loadPersona(path string) (personaFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return personaFile{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return personaFile{}, fmt.Errorf("read persona file: %w", err)
	}
	var p personaFile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return personaFile{}, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	p.Identity = strings.TrimSpace(p.Identity)

	cleaned := p.ExtraReactions[:0]
	for _, emoji := range p.ExtraReactions {
		if e := strings.TrimSpace(emoji); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	p.ExtraReactions = cleaned
	return p, nil
}

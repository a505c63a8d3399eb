// Package statepaths resolves the on-disk layout of persistent bot state
// from viper configuration.
package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	ChatsFilename = "chats.json"
	UsersFilename = "users.json"

	defaultStateDir = "~/.tgaibot"
)

func StateDir() string {
	dir := strings.TrimSpace(viper.GetString("state.dir"))
	if dir == "" {
		dir = defaultStateDir
	}
	return expandHome(dir)
}

// ChatsPath is the known-chats registry file.
func ChatsPath() string {
	return filepath.Join(StateDir(), ChatsFilename)
}

// UsersPath is the known-users registry file.
func UsersPath() string {
	return filepath.Join(StateDir(), UsersFilename)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

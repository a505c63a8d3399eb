// Package prompttmpl wraps text/template for embedded prompt sources.
// Templates are strict: a missing key is an execution error, not "<no value>".
package prompttmpl

import (
	"bytes"
	"fmt"
	"text/template"
)

// MustParse parses an embedded prompt template and panics on error; prompt
// sources are compiled into the binary, so a parse failure is a build defect.
func MustParse(name, source string, funcs template.FuncMap) *template.Template {
	t := template.New(name).Option("missingkey=error")
	if funcs != nil {
		t = t.Funcs(funcs)
	}
	parsed, err := t.Parse(source)
	if err != nil {
		panic(fmt.Sprintf("parse prompt template %s: %v", name, err))
	}
	return parsed
}

func Render(t *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", t.Name(), err)
	}
	return b.String(), nil
}

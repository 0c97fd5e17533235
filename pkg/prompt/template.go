// Package prompt renders the chat prompts of the llm strategy.
package prompt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"text/template"
)

// Template is a parsed prompt. It is immutable after construction.
type Template struct {
	name   string
	tmpl   *template.Template
	digest string
}

// Load parses the prompt file at path.
func Load(path string, funcs template.FuncMap) (*Template, error) {
	if path == "" {
		return nil, fmt.Errorf("prompt: template path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read %q: %w", path, err)
	}
	return Parse(filepath.Base(path), string(data), funcs)
}

// Parse builds a template from text. Keys missing from the render data are
// errors rather than "<no value>".
func Parse(name, text string, funcs template.FuncMap) (*Template, error) {
	tmpl := template.New(name).Option("missingkey=error").Funcs(Funcs())
	if len(funcs) > 0 {
		tmpl = tmpl.Funcs(funcs)
	}
	if _, err := tmpl.Parse(text); err != nil {
		return nil, fmt.Errorf("prompt: parse %q: %w", name, err)
	}
	sum := sha256.Sum256([]byte(text))
	return &Template{name: name, tmpl: tmpl, digest: hex.EncodeToString(sum[:])}, nil
}

func (t *Template) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt: execute %q: %w", t.name, err)
	}
	return buf.String(), nil
}

// Digest is the hex sha256 of the template source.
func (t *Template) Digest() string { return t.digest }

// Funcs are the helpers every template gets: num formats a float with a
// fixed precision and pct formats a ratio as a percentage.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"num": func(prec int, v float64) string {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return "n/a"
			}
			return strconv.FormatFloat(v, 'f', prec, 64)
		},
		"pct": func(v float64) string {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return "n/a"
			}
			return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
		},
	}
}

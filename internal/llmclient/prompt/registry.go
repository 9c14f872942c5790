// Package prompt loads versioned prompt templates with a YAML front-matter
// header and {{variable}} placeholder substitution.
package prompt

import (
	"embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.md
var templateFS embed.FS

// Header is the YAML front-matter block every template carries.
type Header struct {
	ID            string `yaml:"id"`
	Version       int    `yaml:"version"`
	ModelDefaults struct {
		Temperature float64 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"model_defaults"`
	SchemaID string `yaml:"schema_id"`
}

// Template is a loaded, parsed prompt.
type Template struct {
	Header Header
	Body   string
}

// Registry loads templates by (id, version) from the embedded filesystem.
type Registry struct {
	cache map[string]*Template
}

// NewRegistry builds an empty, lazily-populated registry.
func NewRegistry() *Registry {
	return &Registry{cache: map[string]*Template{}}
}

var frontMatterPattern = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n(.*)$`)

// Load reads a template by (id, version), verifying the header's id and
// version match the request.
func (r *Registry) Load(id string, version int) (*Template, error) {
	key := fmt.Sprintf("%s.v%d", id, version)
	if t, ok := r.cache[key]; ok {
		return t, nil
	}

	raw, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.v%d.md", id, version))
	if err != nil {
		return nil, fmt.Errorf("load prompt %s: %w", key, err)
	}

	matches := frontMatterPattern.FindStringSubmatch(string(raw))
	if matches == nil {
		return nil, fmt.Errorf("prompt %s: missing front-matter header", key)
	}

	var header Header
	if err := yaml.Unmarshal([]byte(matches[1]), &header); err != nil {
		return nil, fmt.Errorf("prompt %s: parse header: %w", key, err)
	}
	if header.ID != id {
		return nil, fmt.Errorf("prompt %s: header id %q does not match requested id %q", key, header.ID, id)
	}
	if header.Version != version {
		return nil, fmt.Errorf("prompt %s: header version %d does not match requested version %d", key, header.Version, version)
	}

	t := &Template{Header: header, Body: strings.TrimSpace(matches[2])}
	r.cache[key] = t
	return t, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes {{name}} placeholders in the body with values from
// vars. Unknown placeholders are left intact -- documented behavior, never
// an error, since a prompt iterating ahead of its caller's variable set
// should not break at runtime.
func Render(body string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

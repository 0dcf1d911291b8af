// Package prompt holds the model prompt templates the bot ships with and
// lets operators override them from a directory of YAML or Markdown files.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Template is one named prompt. Placeholders use {name} syntax and are
// substituted by Render.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Text        string `yaml:"text"`
}

// Render substitutes {key} placeholders from vars. Unmatched placeholders
// are left as-is so a missing variable is visible in the output rather
// than silently blank.
func (t *Template) Render(vars map[string]string) string {
	out := t.Text
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Registry maps template names to templates. A new registry starts with the
// built-in set; LoadFromDirectory lets files override individual entries.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry returns a registry seeded with the built-in templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]*Template)}
	for _, t := range builtins {
		r.templates[t.Name] = t
	}
	return r
}

// Register adds or replaces a template.
func (r *Registry) Register(t *Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = t
}

// Get returns a template by name.
func (r *Registry) Get(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Render looks up a template and substitutes vars.
func (r *Registry) Render(name string, vars map[string]string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("prompt: unknown template %q", name)
	}
	return t.Render(vars), nil
}

// Names returns all template names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFromDirectory loads template overrides from a directory. Supports
// .yaml/.yml files and .md files with YAML frontmatter. A missing directory
// is fine; the builtins stay in effect.
func (r *Registry) LoadFromDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))

		var t *Template
		var loadErr error

		switch ext {
		case ".yaml", ".yml":
			t, loadErr = loadYAMLTemplate(filepath.Join(dir, name))
		case ".md":
			t, loadErr = loadMarkdownTemplate(filepath.Join(dir, name))
		default:
			continue
		}

		if loadErr != nil {
			return fmt.Errorf("prompt: load %s: %w", name, loadErr)
		}
		if t != nil {
			r.Register(t)
		}
	}

	return nil
}

func loadYAMLTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &t, nil
}

// loadMarkdownTemplate reads a Markdown file. With YAML frontmatter the
// metadata comes from the frontmatter and the body becomes the text;
// without it the whole file is the text and the filename is the name.
func loadMarkdownTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := string(data)
	if !strings.HasPrefix(content, "---") {
		return &Template{
			Name: strings.TrimSuffix(filepath.Base(path), ".md"),
			Text: content,
		}, nil
	}

	parts := strings.SplitN(content[3:], "---", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid frontmatter format")
	}

	var t Template
	if err := yaml.Unmarshal([]byte(parts[0]), &t); err != nil {
		return nil, fmt.Errorf("invalid YAML frontmatter: %w", err)
	}
	t.Text = strings.TrimSpace(parts[1])
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	return &t, nil
}

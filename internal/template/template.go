// Package template manages the markdown document templates a job is built
// from. Templates live on disk as <name>.md files containing {{placeholder}}
// markers that are filled from the job's answers.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Registry loads templates from a directory.
type Registry struct {
	dir string
}

// NewRegistry creates a registry rooted at dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir}
}

// Load returns the raw template text.
func (r *Registry) Load(name string) (string, error) {
	// Reject path traversal in user-supplied template names.
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid template name %q", name)
	}

	b, err := os.ReadFile(filepath.Join(r.dir, name+".md"))
	if err != nil {
		return "", fmt.Errorf("failed to load template %q: %w", name, err)
	}
	return string(b), nil
}

// Placeholders returns the sorted, de-duplicated placeholder names of a template.
func (r *Registry) Placeholders(name string) ([]string, error) {
	text, err := r.Load(name)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	sort.Strings(out)
	return out, nil
}

// Missing returns the placeholders not yet covered by answers.
func (r *Registry) Missing(name string, answers map[string]string) ([]string, error) {
	placeholders, err := r.Placeholders(name)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, ph := range placeholders {
		if _, ok := answers[ph]; !ok {
			missing = append(missing, ph)
		}
	}
	return missing, nil
}

// Render substitutes every {{placeholder}} with its answer. Placeholders
// without an answer are left in place so the gap is visible downstream.
func (r *Registry) Render(name string, answers map[string]string) (string, error) {
	text, err := r.Load(name)
	if err != nil {
		return "", err
	}

	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := answers[key]; ok {
			return v
		}
		return m
	}), nil
}

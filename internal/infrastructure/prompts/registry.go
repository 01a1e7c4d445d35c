package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultFiles embed.FS

// Placeholders substituted by Render.
const (
	PlaceholderFileName     = "file_name"
	PlaceholderDocumentText = "document_text"
)

type Prompt struct {
	Key                 string   `yaml:"-"`
	Name                string   `yaml:"name"`
	Description         string   `yaml:"description"`
	Version             string   `yaml:"version"`
	Type                string   `yaml:"type"`
	IsDefault           bool     `yaml:"is_default"`
	SupportedOperations []string `yaml:"supported_operations"`
	SystemPrompt        string   `yaml:"system_prompt"`
	UserPrompt          string   `yaml:"user_prompt"`
}

func (p Prompt) validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(p.Description) == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if strings.TrimSpace(p.UserPrompt) == "" {
		errs = append(errs, errors.New("user_prompt is required"))
	}
	return errors.Join(errs...)
}

// Registry is read-only after Load and safe for concurrent use.
type Registry struct {
	prompts    map[string]Prompt
	defaultKey string
}

// Load reads the embedded prompts, then overlays *.yaml files from dir.
// A missing dir is not an error; malformed files are skipped with a warning.
func Load(dir string) (*Registry, error) {
	r := &Registry{prompts: make(map[string]Prompt)}
	if err := r.loadFS(defaultFiles, "defaults"); err != nil {
		return nil, fmt.Errorf("load embedded prompts: %w", err)
	}

	dir = strings.TrimSpace(dir)
	if dir != "" {
		info, err := os.Stat(dir)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Warn("prompts_dir_missing", "dir", dir)
		case err != nil:
			return nil, fmt.Errorf("stat prompts dir: %w", err)
		case !info.IsDir():
			return nil, fmt.Errorf("prompts dir %s is not a directory", dir)
		default:
			if err := r.loadFS(os.DirFS(dir), "."); err != nil {
				return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
			}
		}
	}

	r.pickDefault()
	slog.Info("prompts_loaded", "count", len(r.prompts), "default", r.defaultKey)
	return r, nil
}

// MustDefault returns the embedded registry. It panics only if the binary was built without prompts.
func MustDefault() *Registry {
	r, err := Load("")
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		raw, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(root, entry.Name())))
		if err != nil {
			slog.Warn("prompt_file_unreadable", "key", key, "error", err)
			continue
		}

		var p Prompt
		if err := yaml.Unmarshal(raw, &p); err != nil {
			slog.Warn("prompt_file_invalid", "key", key, "error", err)
			continue
		}
		if err := p.validate(); err != nil {
			slog.Warn("prompt_file_invalid", "key", key, "error", err)
			continue
		}
		p.Key = key
		r.prompts[key] = p
	}
	return nil
}

func (r *Registry) pickDefault() {
	if _, ok := r.prompts["invoice_extractor_prompt"]; ok {
		r.defaultKey = "invoice_extractor_prompt"
		return
	}
	for _, key := range r.Keys() {
		if r.prompts[key].IsDefault {
			r.defaultKey = key
			return
		}
	}
	if keys := r.Keys(); len(keys) > 0 {
		r.defaultKey = keys[0]
	}
}

func (r *Registry) HasPrompt(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.prompts[key]
	return ok
}

func (r *Registry) Get(key string) (Prompt, bool) {
	if r == nil {
		return Prompt{}, false
	}
	p, ok := r.prompts[key]
	return p, ok
}

func (r *Registry) DefaultKey() string {
	if r == nil {
		return ""
	}
	return r.defaultKey
}

// Keys returns prompt keys in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.prompts))
	for key := range r.prompts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Render returns system and user text with {placeholder} values substituted.
func (r *Registry) Render(key string, vars map[string]string) (string, string, error) {
	p, ok := r.Get(key)
	if !ok {
		return "", "", fmt.Errorf("prompt %q not found", key)
	}
	return replacePlaceholders(p.SystemPrompt, vars), replacePlaceholders(p.UserPrompt, vars), nil
}

// Compatible reports whether the prompt declares support for the operation.
// Prompts without declared operations are compatible with everything.
func (r *Registry) Compatible(key, operation string) (bool, []string) {
	p, ok := r.Get(key)
	if !ok {
		return false, []string{fmt.Sprintf("prompt %q not found", key)}
	}
	if len(p.SupportedOperations) > 0 && !slices.Contains(p.SupportedOperations, operation) {
		return true, []string{fmt.Sprintf("operation %q is not recommended for prompt %q", operation, key)}
	}
	return true, nil
}

// replacePlaceholders substitutes in a single pass so values are never rescanned.
func replacePlaceholders(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, 2*len(vars))
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

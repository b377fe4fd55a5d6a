package api

import (
	"fmt"
	"sort"
	"strings"
)

// Language describes how to run snippets of one language inside a container.
type Language struct {
	// Name is the canonical tag, matched case-insensitively.
	Name    string   `json:"name" yaml:"name"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases"`

	// Extension of the temp file, including the dot.
	Extension string `json:"extension" yaml:"extension"`

	Image       string `json:"image" yaml:"image"`
	Interpreter string `json:"interpreter" yaml:"interpreter"`
	Driver      string `json:"driver" yaml:"driver"`

	// MountPath is where the snippet appears inside the container.
	MountPath string `json:"mount_path" yaml:"mount_path"`
}

// Info returns the public view of the language.
func (l Language) Info() LanguageInfo {
	return LanguageInfo{
		Name:      l.Name,
		Aliases:   l.Aliases,
		Extension: l.Extension,
		Image:     l.Image,
	}
}

// DefaultLanguages returns the built-in python and R definitions.
func DefaultLanguages() []Language {
	return []Language{
		{
			Name:        "python",
			Extension:   ".py",
			Image:       "your-python-image:latest",
			Interpreter: "python",
			Driver:      "/app/your_script.py",
			MountPath:   "/app/user_code.py",
		},
		{
			Name:        "R",
			Extension:   ".R",
			Image:       "your-r-image:latest",
			Interpreter: "Rscript",
			Driver:      "your_script.R",
			MountPath:   "/app/user_code.R",
		},
	}
}

// LanguageRegistry resolves language tags to definitions.
// It is immutable after construction and safe for concurrent use.
type LanguageRegistry struct {
	langs []Language
	index map[string]int
}

// NewLanguageRegistry builds a registry. Names and aliases must be unique
// ignoring case.
func NewLanguageRegistry(langs []Language) (*LanguageRegistry, error) {
	r := &LanguageRegistry{
		langs: make([]Language, 0, len(langs)),
		index: make(map[string]int),
	}
	for _, l := range langs {
		if strings.TrimSpace(l.Name) == "" {
			return nil, fmt.Errorf("language name must not be empty")
		}
		pos := len(r.langs)
		for _, tag := range append([]string{l.Name}, l.Aliases...) {
			key := strings.ToLower(tag)
			if _, dup := r.index[key]; dup {
				return nil, fmt.Errorf("duplicate language tag %q", tag)
			}
			r.index[key] = pos
		}
		r.langs = append(r.langs, l)
	}
	return r, nil
}

// MustLanguageRegistry is like NewLanguageRegistry but panics on error.
func MustLanguageRegistry(langs []Language) *LanguageRegistry {
	r, err := NewLanguageRegistry(langs)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the language for tag, ignoring case and honouring
// aliases. The tag is matched as given; surrounding whitespace is not
// stripped.
func (r *LanguageRegistry) Lookup(tag string) (Language, bool) {
	if r == nil {
		return Language{}, false
	}
	i, ok := r.index[strings.ToLower(tag)]
	if !ok {
		return Language{}, false
	}
	return r.langs[i], true
}

// Names returns the canonical names in sorted order.
func (r *LanguageRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.langs))
	for i, l := range r.langs {
		names[i] = l.Name
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

// All returns a copy of the registered languages in registration order.
func (r *LanguageRegistry) All() []Language {
	if r == nil {
		return nil
	}
	out := make([]Language, len(r.langs))
	copy(out, r.langs)
	return out
}

// MergeLanguages overlays entries onto base by case-insensitive name.
// Empty fields in an override keep the base value. New names are appended.
func MergeLanguages(base, overrides []Language) []Language {
	out := make([]Language, len(base))
	copy(out, base)
	for _, o := range overrides {
		merged := false
		for i := range out {
			if !strings.EqualFold(out[i].Name, o.Name) {
				continue
			}
			if len(o.Aliases) > 0 {
				out[i].Aliases = o.Aliases
			}
			if o.Extension != "" {
				out[i].Extension = o.Extension
			}
			if o.Image != "" {
				out[i].Image = o.Image
			}
			if o.Interpreter != "" {
				out[i].Interpreter = o.Interpreter
			}
			if o.Driver != "" {
				out[i].Driver = o.Driver
			}
			if o.MountPath != "" {
				out[i].MountPath = o.MountPath
			}
			merged = true
			break
		}
		if !merged {
			out = append(out, o)
		}
	}
	return out
}

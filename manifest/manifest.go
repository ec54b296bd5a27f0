// Package manifest handles velac.toml project configuration and binds
// qualified module names to files on disk.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "velac.toml"

// Manifest represents a velac.toml project configuration.
type Manifest struct {
	Project Project             `toml:"project"`
	Build   Build               `toml:"build"`
	Paths   map[string][]string `toml:"paths"`

	// Dir is the directory containing the velac.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// Build configures compilation.
type Build struct {
	Optimize *bool  `toml:"optimize"`
	Format   string `toml:"format"`
	Output   string `toml:"output"` // directory for built programs
	Jobs     int    `toml:"jobs"`
	Cache    string `toml:"cache"`
}

// Load parses and validates a velac.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates manifest contents. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	// Defaults
	if m.Project.Entry == "" {
		m.Project.Entry = "main"
	}
	if m.Build.Format == "" {
		m.Build.Format = "binary"
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a velac.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Optimize reports whether [build] optimize is enabled (default true).
func (m *Manifest) Optimize() bool {
	return m.Build.Optimize == nil || *m.Build.Optimize
}

// CachePath returns the absolute build-cache path, or "" when disabled.
func (m *Manifest) CachePath() string {
	if m.Build.Cache == "" {
		return ""
	}
	if filepath.IsAbs(m.Build.Cache) {
		return m.Build.Cache
	}
	return filepath.Join(m.Dir, m.Build.Cache)
}

// ResolverOptions converts [paths] into resolver options. Kinds are applied
// in canonical order so the result is deterministic.
func (m *Manifest) ResolverOptions() ([]Option, error) {
	prefixes := make([]string, 0, len(m.Paths))
	for p := range m.Paths {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var opts []Option
	for _, p := range prefixes {
		kind, ok := KindFromPrefix(p)
		if !ok {
			return nil, fmt.Errorf("[paths]: unknown module kind %q", p)
		}
		opts = append(opts, WithSearchPath(kind, m.Paths[p]...))
	}
	return opts, nil
}

// NewResolver returns a resolver rooted at the manifest directory with the
// configured extra roots appended.
func (m *Manifest) NewResolver(extra ...Option) (*Resolver, error) {
	opts, err := m.ResolverOptions()
	if err != nil {
		return nil, err
	}
	return NewResolver(m.Dir, append(opts, extra...)...), nil
}

package vm

import (
	"fmt"
	"os"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/velac/manifest"
	"github.com/chazu/velac/pkg/bytecode"
)

var loaderLog = commonlog.GetLogger("velac.loader")

// Module is a loaded, verified program together with its export table.
type Module struct {
	Name    string // the name passed to Load
	Path    string // resolved artifact path
	Format  bytecode.Format
	Program *bytecode.Program
	Exports map[string]int // symbol -> function index
}

// Export returns the function index for an exported symbol.
func (m *Module) Export(name string) (int, bool) {
	idx, ok := m.Exports[name]
	return idx, ok
}

// Loader materialises modules named through a manifest.Resolver.
// It is safe for concurrent use.
type Loader struct {
	mu       sync.Mutex
	resolver *manifest.Resolver
	modules  map[string]*Module
}

// NewLoader creates a loader that resolves names through r.
func NewLoader(r *manifest.Resolver) *Loader {
	return &Loader{resolver: r, modules: make(map[string]*Module)}
}

// Load resolves name, reads and decodes the artifact in any supported
// form, verifies it and builds its export table. Results are cached by
// name until ClearCache.
func (l *Loader) Load(name string) (*Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.modules[name]; ok {
		return m, nil
	}

	path, err := l.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	prog, format, err := bytecode.DecodeAny(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s from %s: %w", name, path, err)
	}
	if err := prog.Verify(); err != nil {
		return nil, fmt.Errorf("loading %s from %s: %w", name, path, err)
	}

	exports := make(map[string]int, len(prog.Symbols))
	for _, sym := range prog.Symbols {
		idx := prog.FunctionIndex(sym)
		if idx < 0 {
			return nil, fmt.Errorf("loading %s: exported symbol %q has no function", name, sym)
		}
		exports[sym] = idx
	}

	m := &Module{Name: name, Path: path, Format: format, Program: prog, Exports: exports}
	l.modules[name] = m
	loaderLog.Debugf("loaded %s from %s (%s, %d functions, %d exports)",
		name, path, format, len(prog.Functions), len(exports))
	return m, nil
}

// Loaded returns the names currently cached.
func (l *Loader) Loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.modules))
	for n := range l.modules {
		names = append(names, n)
	}
	return names
}

// ClearCache drops every loaded module and the resolver's cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.modules)
	l.resolver.ClearCache()
	loaderLog.Debug("loader cache cleared")
}

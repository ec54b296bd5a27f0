package manifest

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
)

// File extensions probed by the resolver.
const (
	BytecodeExt = ".velac"
	SourceExt   = ".vela"
)

// Kind is the prefix of a qualified module name.
type Kind string

const (
	KindModule    Kind = "module"
	KindLibrary   Kind = "library"
	KindPackage   Kind = "package"
	KindSystem    Kind = "system"
	KindExtension Kind = "extension"
	KindAssets    Kind = "assets"

	// KindDirect marks an unprefixed name, resolved against the working
	// directory.
	KindDirect Kind = ""
)

// Kinds lists the prefixed kinds in their canonical order.
func Kinds() []Kind {
	return []Kind{KindModule, KindLibrary, KindPackage, KindSystem, KindExtension, KindAssets}
}

// KindFromPrefix maps a name prefix to its Kind.
func KindFromPrefix(prefix string) (Kind, bool) {
	switch k := Kind(prefix); k {
	case KindModule, KindLibrary, KindPackage, KindSystem, KindExtension, KindAssets:
		return k, true
	}
	return "", false
}

// defaultRoots are relative to the project root, in precedence order.
var defaultRoots = map[Kind][]string{
	KindModule:    {"src", "modules"},
	KindLibrary:   {"lib", "libraries"},
	KindPackage:   {"packages", "node_modules", "vendor"},
	KindSystem:    {"runtime", "stdlib"},
	KindExtension: {"extensions", "packages"},
	KindAssets:    {"assets", "public", "static"},
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Sentinels matched by errors.Is against a *ResolveError.
var (
	ErrUnknownPrefix  = errors.New("unknown module prefix")
	ErrModuleNotFound = errors.New("module not found")
)

// ResolveErrorKind classifies resolution failures.
type ResolveErrorKind int

const (
	UnknownPrefix ResolveErrorKind = iota + 1
	ModuleNotFound
)

func (k ResolveErrorKind) String() string {
	switch k {
	case UnknownPrefix:
		return "UnknownPrefix"
	case ModuleNotFound:
		return "ModuleNotFound"
	}
	return fmt.Sprintf("ResolveErrorKind(%d)", int(k))
}

// ResolveError reports a name that could not be bound to a path. It is
// recoverable; callers may retry with another name.
type ResolveError struct {
	Component string // always "resolve"
	Kind      ResolveErrorKind
	Name      string // the name passed to Resolve
	Prefix    string
	Message   string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Message)
}

// Unwrap exposes the sentinel for the error's kind.
func (e *ResolveError) Unwrap() error {
	switch e.Kind {
	case UnknownPrefix:
		return ErrUnknownPrefix
	case ModuleNotFound:
		return ErrModuleNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolver
// ---------------------------------------------------------------------------

// Resolver binds qualified module names to files under a project root.
//
// A Resolver is not safe for concurrent use: the cache is unsynchronized.
// Callers sharing one across goroutines must hold a lock around every call.
type Resolver struct {
	root   string
	cwd    string
	paths  map[Kind][]string
	cache  map[string]string
	exists func(path string) bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSearchPath appends roots for kind after the defaults. Relative roots
// are taken relative to the project root.
func WithSearchPath(kind Kind, dirs ...string) Option {
	return func(r *Resolver) {
		for _, d := range dirs {
			r.AddSearchPath(kind, d)
		}
	}
}

// WithWorkingDir sets the directory unprefixed names resolve against.
// Defaults to the process working directory.
func WithWorkingDir(dir string) Option {
	return func(r *Resolver) {
		r.cwd = absOrClean(dir)
	}
}

// WithExists replaces the filesystem existence check.
func WithExists(fn func(path string) bool) Option {
	return func(r *Resolver) {
		r.exists = fn
	}
}

// NewResolver creates a resolver rooted at root with the default search
// paths for every kind.
func NewResolver(root string, opts ...Option) *Resolver {
	r := &Resolver{
		root:   absOrClean(root),
		paths:  make(map[Kind][]string, len(defaultRoots)),
		cache:  make(map[string]string),
		exists: fileExists,
	}
	if wd, err := os.Getwd(); err == nil {
		r.cwd = wd
	} else {
		r.cwd = r.root
	}
	for kind, dirs := range defaultRoots {
		for _, d := range dirs {
			r.paths[kind] = append(r.paths[kind], filepath.Join(r.root, d))
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the absolute project root.
func (r *Resolver) Root() string {
	return r.root
}

// AddSearchPath appends a root for kind. Appended roots are tried after
// the defaults and any roots added earlier.
func (r *Resolver) AddSearchPath(kind Kind, dir string) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.root, dir)
	}
	r.paths[kind] = append(r.paths[kind], filepath.Clean(dir))
}

// SearchPaths returns the roots for kind in precedence order.
func (r *Resolver) SearchPaths(kind Kind) []string {
	return append([]string(nil), r.paths[kind]...)
}

// ParseName splits a module name into its kind and path. Unprefixed names
// yield KindDirect.
func ParseName(name string) (Kind, string, error) {
	prefix, path, ok := strings.Cut(name, ":")
	if !ok {
		return KindDirect, name, nil
	}
	kind, known := KindFromPrefix(prefix)
	if !known {
		return "", "", &ResolveError{
			Component: "resolve",
			Kind:      UnknownPrefix,
			Name:      name,
			Prefix:    prefix,
			Message:   fmt.Sprintf("unknown module prefix %q in %q", prefix, name),
		}
	}
	return kind, path, nil
}

// Resolve returns the absolute path of the named module's artifact.
// Successful results are cached by the exact name; misses are not.
func (r *Resolver) Resolve(name string) (string, error) {
	if p, ok := r.cache[name]; ok {
		return p, nil
	}

	kind, path, err := ParseName(name)
	if err != nil {
		return "", err
	}

	var found string
	switch kind {
	case KindDirect:
		found, err = r.resolveDirect(name, path)
	case KindAssets:
		found, err = r.resolveInRoots(name, kind, path, []string{path})
	default:
		found, err = r.resolveInRoots(name, kind, path, probeNames(path))
	}
	if err != nil {
		return "", err
	}

	r.cache[name] = found
	return found, nil
}

// CanResolve reports whether Resolve(name) would succeed.
func (r *Resolver) CanResolve(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Cached returns a copy of the name -> path cache.
func (r *Resolver) Cached() map[string]string {
	return maps.Clone(r.cache)
}

// ClearCache forgets every cached resolution.
func (r *Resolver) ClearCache() {
	clear(r.cache)
}

// probeNames lists the candidates tried inside each root, in order.
func probeNames(path string) []string {
	return []string{
		path + BytecodeExt,
		filepath.Join(path, "mod"+BytecodeExt),
		filepath.Join(path, "index"+BytecodeExt),
		path + SourceExt,
		path,
	}
}

func (r *Resolver) resolveInRoots(name string, kind Kind, path string, candidates []string) (string, error) {
	for _, root := range r.paths[kind] {
		for _, c := range candidates {
			p := filepath.Join(root, c)
			if r.exists(p) {
				return p, nil
			}
		}
	}
	return "", &ResolveError{
		Component: "resolve",
		Kind:      ModuleNotFound,
		Name:      name,
		Prefix:    string(kind),
		Message:   fmt.Sprintf("module %q not found in %s paths", path, kind),
	}
}

func (r *Resolver) resolveDirect(name, path string) (string, error) {
	base := path
	if !filepath.IsAbs(base) {
		base = filepath.Join(r.cwd, path)
	}
	for _, p := range []string{base, base + BytecodeExt} {
		if r.exists(p) {
			return filepath.Clean(p), nil
		}
	}
	return "", &ResolveError{
		Component: "resolve",
		Kind:      ModuleNotFound,
		Name:      name,
		Message:   fmt.Sprintf("module %q not found relative to %s", path, r.cwd),
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func absOrClean(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

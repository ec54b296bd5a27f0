package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/velac/buildcache"
	"github.com/chazu/velac/compiler"
	"github.com/chazu/velac/manifest"
	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/pkg/ir"
)

const manifestName = manifest.FileName

// project is the configuration a command runs under: the -C directory and
// the velac.toml found above it, if any.
type project struct {
	dir      string
	manifest *manifest.Manifest
}

func loadProject(cmd *cobra.Command) (*project, error) {
	dir, err := cmd.Root().PersistentFlags().GetString("dir")
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(abs)
	if err != nil {
		return nil, err
	}
	p := &project{dir: abs, manifest: m}
	if m != nil {
		p.dir = m.Dir
		log.Debugf("using manifest %s", filepath.Join(m.Dir, manifest.FileName))
	}
	return p, nil
}

// resolver returns a resolver rooted at the project with [paths] applied.
func (p *project) resolver() (*manifest.Resolver, error) {
	if p.manifest == nil {
		return manifest.NewResolver(p.dir), nil
	}
	return p.manifest.NewResolver()
}

// compileOptions merges --optimize/--jobs with [build]. Flags win when set.
func (p *project) compileOptions(cmd *cobra.Command) compiler.Options {
	opts := compiler.DefaultOptions()
	if p.manifest != nil {
		opts.Optimize = p.manifest.Optimize()
		opts.Jobs = p.manifest.Build.Jobs
	}
	if f := cmd.Flags().Lookup("optimize"); f != nil && f.Changed {
		opts.Optimize, _ = cmd.Flags().GetBool("optimize")
	}
	if f := cmd.Flags().Lookup("jobs"); f != nil && f.Changed {
		opts.Jobs, _ = cmd.Flags().GetInt("jobs")
	}
	return opts
}

// format returns the output format from --format or [build] format.
func (p *project) format(cmd *cobra.Command) (bytecode.Format, error) {
	name := ""
	if p.manifest != nil {
		name = p.manifest.Build.Format
	}
	if f := cmd.Flags().Lookup("format"); f != nil && f.Changed {
		name = f.Value.String()
	}
	return bytecode.ParseFormat(name)
}

// openCache opens the build cache named by --cache or [build] cache.
// It returns nil when caching is disabled.
func (p *project) openCache(cmd *cobra.Command) (*buildcache.Cache, error) {
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		return nil, nil
	}
	path := ""
	if p.manifest != nil {
		path = p.manifest.CachePath()
	}
	if f := cmd.Flags().Lookup("cache"); f != nil && f.Changed {
		path = f.Value.String()
	}
	if path == "" {
		return nil, nil
	}
	return buildcache.Open(path)
}

func addCompileFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("optimize", "O", true, "run constant folding and dead-code elimination")
	cmd.Flags().Bool("no-cache", false, "bypass the build cache")
	cmd.Flags().String("cache", "", "build cache database (overrides [build] cache)")
}

// readModule parses an IR source file. A module without a `module` line
// is named after the file.
func readModule(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ir.Parse(string(data))
	if err != nil {
		return nil, err
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// sourceFiles lists the IR sources under dir, skipping hidden directories.
func sourceFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && filepath.Ext(path) == manifest.SourceExt {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// printDiagnostics writes one coloured line per problem in err.
func printDiagnostics(w io.Writer, file string, err error) {
	var (
		perr *ir.ParseError
		verr *ir.ValidationError
	)
	lines := []string{err.Error()}
	switch {
	case errors.As(err, &perr):
		lines = perr.Errors
	case errors.As(err, &verr):
		lines = verr.Problems
	}
	for _, line := range lines {
		fmt.Fprintf(w, "%s: %s %s\n", file, errorColor.Sprint("error:"), line)
	}
}

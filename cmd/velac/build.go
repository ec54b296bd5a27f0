package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/velac/compiler"
	"github.com/chazu/velac/manifest"
	"github.com/chazu/velac/pkg/ir"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [flags] [files...]",
		Short: "Compile IR modules to bytecode",
		Long: "Compile IR source files to bytecode programs. Without arguments every " +
			manifest.SourceExt + " file under the project directory is built.",
		RunE: buildExecution,
	}
	addCompileFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "output file (single input) or directory")
	cmd.Flags().StringP("format", "f", "binary", "program format (binary|cbor|msgpack)")
	cmd.Flags().IntP("jobs", "j", 0, "modules compiled in parallel (0 = GOMAXPROCS)")
	return cmd
}

func buildExecution(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	files := args
	if len(files) == 0 {
		if p.manifest == nil {
			return errors.New("no input files and no " + manifestName + " found")
		}
		if files, err = sourceFiles(p.dir); err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no %s files under %s", manifest.SourceExt, p.dir)
		}
	}

	format, err := p.format(cmd)
	if err != nil {
		return err
	}
	opts := p.compileOptions(cmd)
	cache, err := p.openCache(cmd)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}
	output, _ := cmd.Flags().GetString("output")

	stderr := cmd.ErrOrStderr()
	failed := 0

	var (
		mods    []*ir.Module
		sources []string
	)
	for _, f := range files {
		m, err := readModule(f)
		if err != nil {
			printDiagnostics(stderr, f, err)
			failed++
			continue
		}
		mods = append(mods, m)
		sources = append(sources, f)
	}

	var results []compiler.Result
	if cache == nil {
		if results, err = compiler.CompileAll(cmd.Context(), mods, opts); err != nil {
			return err
		}
	} else {
		for _, m := range mods {
			prog, stats, hit, err := cache.Compile(cmd.Context(), m, opts)
			if hit {
				log.Infof("%s: cached", m.Name)
			}
			results = append(results, compiler.Result{Module: m.Name, Program: prog, Stats: stats, Err: err})
		}
	}

	for i, res := range results {
		src := sources[i]
		if res.Err != nil {
			printDiagnostics(stderr, src, res.Err)
			failed++
			continue
		}
		dst, err := outputPath(p, src, output, len(files) > 1)
		if err != nil {
			return err
		}
		data, err := res.Program.Marshal(format)
		if err != nil {
			printDiagnostics(stderr, src, err)
			failed++
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		log.Infof("%s: folded %d, removed %d", res.Module, res.Stats.Folded, res.Stats.Removed)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", okColor.Sprint("built"), src, dst)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d modules failed to build", failed, len(files))
	}
	return nil
}

// outputPath picks where the program compiled from src is written. An
// explicit -o names the file for a single input and a directory otherwise;
// [build] output is always a directory. Sources inside the project keep
// their relative layout under an output directory.
func outputPath(p *project, src, output string, multi bool) (string, error) {
	if output != "" && !multi {
		return output, nil
	}
	dir := output
	if dir == "" && p.manifest != nil && p.manifest.Build.Output != "" {
		dir = filepath.Join(p.dir, p.manifest.Build.Output)
	}
	base := strings.TrimSuffix(src, filepath.Ext(src)) + manifest.BytecodeExt
	if dir == "" {
		return base, nil
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(p.dir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(abs)
	}
	return filepath.Join(dir, rel), nil
}

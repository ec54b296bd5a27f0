package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chazu/velac/manifest"
	"github.com/chazu/velac/pkg/bytecode"
)

func newDisasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm [flags] file",
		Short: "Print a program's constants, symbols and code",
		Long: "Disassemble a compiled program in any supported format. An IR source (" +
			manifest.SourceExt + ") is compiled first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			prog, err := loadProgram(cmd, p, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fn, _ := cmd.Flags().GetString("function")
			if fn == "" {
				fmt.Fprint(out, prog.Disassemble())
				return nil
			}
			f := prog.Function(fn)
			if f == nil {
				return fmt.Errorf("%s has no function %q", args[0], fn)
			}
			fmt.Fprint(out, prog.DisassembleFunction(f))
			return nil
		},
	}
	addCompileFlags(cmd)
	cmd.Flags().String("function", "", "only disassemble this function")
	return cmd
}

// loadProgram reads a compiled artifact, or compiles an IR source.
func loadProgram(cmd *cobra.Command, p *project, path string) (*bytecode.Program, error) {
	if filepath.Ext(path) == manifest.SourceExt {
		m, err := readModule(path)
		if err != nil {
			printDiagnostics(cmd.ErrOrStderr(), path, err)
			return nil, fmt.Errorf("cannot compile %s", path)
		}
		cache, err := p.openCache(cmd)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			defer cache.Close()
		}
		prog, _, _, err := cache.Compile(cmd.Context(), m, p.compileOptions(cmd))
		if err != nil {
			printDiagnostics(cmd.ErrOrStderr(), path, err)
			return nil, fmt.Errorf("cannot compile %s", path)
		}
		return prog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, format, err := bytecode.DecodeAny(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("%s: %s program", path, format)
	return prog, nil
}

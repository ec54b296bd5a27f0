package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chazu/velac/manifest"
	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/vm"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] target [args...]",
		Short: "Run a function on the reference VM",
		Long: `Run a program and print the entry function's result. The target is an IR
source, a compiled artifact, or a module name resolved through the project's
search paths. Arguments are parsed as int, float, true, false or null, and
fall back to strings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExecution,
	}
	addCompileFlags(cmd)
	cmd.Flags().StringP("entry", "e", "", "function to call (default [project] entry, then main)")
	cmd.Flags().Bool("trace", false, "print every executed instruction to stderr")
	cmd.Flags().Duration("timeout", 0, "abort after this long (0 = no limit)")
	cmd.Flags().Int("max-frames", vm.DefaultMaxFrames, "maximum call depth")
	return cmd
}

func runExecution(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	prog, err := runTarget(cmd, p, args[0])
	if err != nil {
		return err
	}

	entry, _ := cmd.Flags().GetString("entry")
	if entry == "" {
		entry = "main"
		if p.manifest != nil && p.manifest.Project.Entry != "" {
			entry = p.manifest.Project.Entry
		}
	}

	machine, err := vm.New(prog)
	if err != nil {
		return err
	}
	machine.MaxFrames, _ = cmd.Flags().GetInt("max-frames")
	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		w := cmd.ErrOrStderr()
		machine.Trace = func(fn *bytecode.Function, ins bytecode.Instruction, stack []vm.Value) {
			fmt.Fprintf(w, "%-12s %04X %-14s depth=%d\n", fn.Name, ins.Offset, ins.Op, len(stack))
		}
	}

	ctx := cmd.Context()
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	callArgs := make([]vm.Value, 0, len(args)-1)
	for _, a := range args[1:] {
		callArgs = append(callArgs, parseArg(a))
	}

	start := time.Now()
	result, err := machine.RunContext(ctx, entry, callArgs...)
	if err != nil {
		return err
	}
	log.Infof("%s returned in %s", entry, time.Since(start))
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}

// runTarget loads the program named by target.
func runTarget(cmd *cobra.Command, p *project, target string) (*bytecode.Program, error) {
	if _, err := os.Stat(target); err == nil {
		return loadProgram(cmd, p, target)
	}

	r, err := p.resolver()
	if err != nil {
		return nil, err
	}
	path, err := r.Resolve(target)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == manifest.SourceExt {
		return loadProgram(cmd, p, path)
	}
	mod, err := vm.NewLoader(r).Load(target)
	if err != nil {
		return nil, err
	}
	return mod.Program, nil
}

func parseArg(s string) vm.Value {
	switch s {
	case "true":
		return vm.Bool(true)
	case "false":
		return vm.Bool(false)
	case "null":
		return vm.Null()
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return vm.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return vm.Float(f)
	}
	if unq, err := strconv.Unquote(s); err == nil {
		return vm.String(unq)
	}
	return vm.String(strings.TrimSpace(s))
}

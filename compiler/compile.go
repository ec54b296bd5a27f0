package compiler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/pkg/ir"
)

// Options controls the compile pipeline.
type Options struct {
	// Optimize runs constant folding and dead-code elimination before
	// emission.
	Optimize bool
	// Jobs bounds CompileAll's parallelism; <= 0 means GOMAXPROCS.
	Jobs int
}

// DefaultOptions returns the options used by the CLI when nothing is
// configured.
func DefaultOptions() Options {
	return Options{Optimize: true}
}

// Result is the outcome of compiling one module.
type Result struct {
	Module  string
	Program *bytecode.Program
	Stats   Stats
	Err     error
}

// Compile validates, optionally optimizes, and emits m. The module is
// rewritten in place when optimizing.
func Compile(m *ir.Module, opts Options) (*bytecode.Program, Stats, error) {
	if err := ir.Validate(m); err != nil {
		return nil, Stats{}, err
	}
	var stats Stats
	if opts.Optimize {
		stats = Optimize(m)
	}
	prog, err := Emit(m)
	if err != nil {
		return nil, stats, err
	}
	return prog, stats, nil
}

// CompileAll compiles independent modules in parallel. Each module gets
// its own emitter and constant pool. A module that fails to compile records
// its error in its Result; the returned error is only set when ctx is
// cancelled.
func CompileAll(ctx context.Context, mods []*ir.Module, opts Options) ([]Result, error) {
	results := make([]Result, len(mods))
	if len(mods) == 0 {
		return results, nil
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(mods)))

	for i, m := range mods {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			prog, stats, err := Compile(m, opts)
			// Each goroutine owns results[i].
			results[i] = Result{Module: m.Name, Program: prog, Stats: stats, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

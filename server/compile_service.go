package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/velac/buildcache"
	"github.com/chazu/velac/compiler"
	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/pkg/ir"
	"github.com/chazu/velac/vm"
)

// DefaultRunTimeout bounds a single Run call.
const DefaultRunTimeout = 5 * time.Second

// CompileService compiles IR text sent by clients. Compilation is pure, so
// requests run concurrently without going through the worker.
type CompileService struct {
	cache      *buildcache.Cache // may be nil
	runTimeout time.Duration
}

// NewCompileService creates a CompileService. cache may be nil.
func NewCompileService(cache *buildcache.Cache) *CompileService {
	return &CompileService{cache: cache, runTimeout: DefaultRunTimeout}
}

// Compile parses, optimizes and emits one module.
func (s *CompileService) Compile(
	ctx context.Context,
	req *connect.Request[CompileRequest],
) (*connect.Response[CompileResponse], error) {
	msg := req.Msg
	if msg.Source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	format, err := bytecode.ParseFormat(msg.Format)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	m, err := ir.Parse(msg.Source)
	if err != nil {
		return connect.NewResponse(&CompileResponse{Diagnostics: diagnostics(err)}), nil
	}

	prog, stats, hit, err := s.cache.Compile(ctx, m, compiler.Options{Optimize: msg.Optimize})
	if err != nil {
		log.Debugf("compile %s: %s", m.Name, err)
		return connect.NewResponse(&CompileResponse{
			Diagnostics: diagnostics(err),
			Folded:      stats.Folded,
			Removed:     stats.Removed,
		}), nil
	}

	data, err := prog.Marshal(format)
	if err != nil {
		return connect.NewResponse(&CompileResponse{Diagnostics: diagnostics(err)}), nil
	}

	return connect.NewResponse(&CompileResponse{
		Success:     true,
		Program:     data,
		Format:      string(format),
		Disassembly: prog.Disassemble(),
		Folded:      stats.Folded,
		Removed:     stats.Removed,
		Cached:      hit,
	}), nil
}

// Run compiles the source and executes one function.
func (s *CompileService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[RunResponse], error) {
	msg := req.Msg
	if msg.Source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	if msg.Entry == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("entry is required"))
	}

	m, err := ir.Parse(msg.Source)
	if err != nil {
		return connect.NewResponse(&RunResponse{ErrorMessage: err.Error()}), nil
	}
	prog, _, _, err := s.cache.Compile(ctx, m, compiler.Options{Optimize: msg.Optimize})
	if err != nil {
		return connect.NewResponse(&RunResponse{ErrorMessage: err.Error()}), nil
	}

	machine, err := vm.New(prog)
	if err != nil {
		return connect.NewResponse(&RunResponse{ErrorMessage: err.Error()}), nil
	}
	args := make([]vm.Value, len(msg.Args))
	for i, a := range msg.Args {
		args[i] = vm.Int(a)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()
	result, err := machine.RunContext(runCtx, msg.Entry, args...)
	if err != nil {
		return connect.NewResponse(&RunResponse{ErrorMessage: err.Error()}), nil
	}

	return connect.NewResponse(&RunResponse{
		Success:    true,
		Result:     result.String(),
		ResultType: result.TypeName(),
	}), nil
}

// diagnostics flattens the structured errors into one line per problem.
func diagnostics(err error) []string {
	var (
		perr *ir.ParseError
		verr *ir.ValidationError
	)
	switch {
	case errors.As(err, &perr):
		return perr.Errors
	case errors.As(err, &verr):
		return verr.Problems
	}
	return []string{err.Error()}
}

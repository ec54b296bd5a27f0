package server

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"connectrpc.com/connect"

	"github.com/chazu/velac/manifest"
)

// ResolveService maps module names to artifact paths using the
// server-owned resolver.
type ResolveService struct {
	worker *Worker
}

// NewResolveService creates a ResolveService.
func NewResolveService(worker *Worker) *ResolveService {
	return &ResolveService{worker: worker}
}

// resolved is what a worker call hands back.
type resolved struct {
	resp *ResolveResponse
	err  error
}

// Resolve looks up a name and, when asked, loads the artifact.
func (s *ResolveService) Resolve(
	ctx context.Context,
	req *connect.Request[ResolveRequest],
) (*connect.Response[ResolveResponse], error) {
	name := req.Msg.Name
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name is required"))
	}
	load := req.Msg.Load

	result, err := s.worker.Do(func(ws *workspace) any {
		path, err := ws.resolver.Resolve(name)
		if err != nil {
			return resolved{err: err}
		}
		resp := &ResolveResponse{Path: path}
		if !load {
			return resolved{resp: resp}
		}
		mod, err := ws.loader.Load(name)
		if err != nil {
			return resolved{err: err}
		}
		resp.Format = string(mod.Format)
		for sym := range mod.Exports {
			resp.Exports = append(resp.Exports, sym)
		}
		sort.Strings(resp.Exports)
		return resolved{resp: resp}
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	r := result.(resolved)
	if r.err != nil {
		log.Debugf("resolve %s: %s", name, r.err)
		return nil, resolveError(r.err)
	}
	return connect.NewResponse(r.resp), nil
}

// resolveError maps resolver failures onto Connect codes.
func resolveError(err error) *connect.Error {
	switch {
	case errors.Is(err, manifest.ErrUnknownPrefix):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, manifest.ErrModuleNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewError(connect.CodeFailedPrecondition, err)
}

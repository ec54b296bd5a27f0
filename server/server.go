// Package server exposes compilation and module resolution over Connect.
// Both the Connect and gRPC protocols are served on the same port; messages
// are CBOR encoded.
package server

import (
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/velac/buildcache"
	"github.com/chazu/velac/manifest"
)

var log = commonlog.GetLogger("velac.server")

// Server serves the compile and resolve services.
type Server struct {
	worker  *Worker
	mux     *http.ServeMux
	httpSrv *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	cache      *buildcache.Cache
	runTimeout time.Duration
}

// WithCache routes Compile and Run through a build cache.
func WithCache(c *buildcache.Cache) ServerOption {
	return func(cfg *serverConfig) { cfg.cache = c }
}

// WithRunTimeout bounds each Run call. The default is DefaultRunTimeout.
func WithRunTimeout(d time.Duration) ServerOption {
	return func(cfg *serverConfig) { cfg.runTimeout = d }
}

// New creates a Server that owns r. The resolver must not be used by the
// caller afterwards.
func New(r *manifest.Resolver, opts ...ServerOption) *Server {
	cfg := &serverConfig{runTimeout: DefaultRunTimeout}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		worker: NewWorker(r),
		mux:    http.NewServeMux(),
	}

	compileSvc := NewCompileService(cfg.cache)
	compileSvc.runTimeout = cfg.runTimeout
	resolveSvc := NewResolveService(s.worker)

	codec := connect.WithCodec(Codec{})
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, compileSvc.Compile, codec))
	s.mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, compileSvc.Run, codec))
	s.mux.Handle(ResolveProcedure, connect.NewUnaryHandler(ResolveProcedure, resolveSvc.Resolve, codec))

	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.mux}
	log.Noticef("velac server listening on %s", addr)
	log.Infof("  Connect: http://%s%s", addr, CompileProcedure)
	log.Infof("  gRPC:    grpc://%s", addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down the server.
func (s *Server) Stop() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.worker.Stop()
}

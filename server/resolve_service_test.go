package server

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/velac/manifest"
	"github.com/chazu/velac/pkg/bytecode"
)

func libraryProgram(t *testing.T) *bytecode.Program {
	t.Helper()
	b := bytecode.NewBuilder()
	b.EmitU8(bytecode.OpLoadLocal, 0)
	b.EmitU16(bytecode.OpLoadConst, 0)
	b.Emit(bytecode.OpMul)
	b.Emit(bytecode.OpReturn)
	return &bytecode.Program{
		Functions: []*bytecode.Function{
			{Name: "double", ParamCount: 1, Code: b.Bytes()},
			{Name: "helper", Code: []byte{byte(bytecode.OpReturn)}},
		},
		Constants: []bytecode.Value{bytecode.Int(2)},
		Symbols:   []string{"double"},
	}
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t)
	want := writeArtifact(t, env.Root, "modules/auth.velac", libraryProgram(t), bytecode.FormatCBOR)

	resp, err := env.Client.Resolve(context.Background(), &ResolveRequest{Name: "module:auth"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Path != want {
		t.Errorf("path = %q, want %q", resp.Path, want)
	}
	if len(resp.Exports) != 0 || resp.Format != "" {
		t.Errorf("unrequested load: %+v", resp)
	}
}

func TestResolveAndLoad(t *testing.T) {
	env := newTestEnv(t)
	writeArtifact(t, env.Root, "lib/math/mod.velac", libraryProgram(t), bytecode.FormatMsgpack)

	resp, err := env.Client.Resolve(context.Background(), &ResolveRequest{Name: "library:math", Load: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Path != filepath.Join(env.Root, "lib", "math", "mod.velac") {
		t.Errorf("path = %q", resp.Path)
	}
	if resp.Format != string(bytecode.FormatMsgpack) {
		t.Errorf("format = %q", resp.Format)
	}
	if !slices.Equal(resp.Exports, []string{"double"}) {
		t.Errorf("exports = %v, want [double]", resp.Exports)
	}
}

func TestResolveErrors(t *testing.T) {
	env := newTestEnv(t)
	writeArtifact(t, env.Root, "modules/broken.velac", &bytecode.Program{}, bytecode.FormatCBOR)

	tests := []struct {
		name string
		req  *ResolveRequest
		code connect.Code
	}{
		{"empty", &ResolveRequest{}, connect.CodeInvalidArgument},
		{"unknown prefix", &ResolveRequest{Name: "plugin:x"}, connect.CodeInvalidArgument},
		{"not found", &ResolveRequest{Name: "module:missing"}, connect.CodeNotFound},
		{"unloadable", &ResolveRequest{Name: "module:broken", Load: true}, connect.CodeFailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Client.Resolve(context.Background(), tt.req)
			if got := connect.CodeOf(err); got != tt.code {
				t.Errorf("code = %v (%v), want %v", got, err, tt.code)
			}
		})
	}
}

func TestResolveConcurrent(t *testing.T) {
	env := newTestEnv(t)
	writeArtifact(t, env.Root, "packages/http.velac", libraryProgram(t), bytecode.FormatBinary)

	errs := make(chan error, 16)
	for i := 0; i < cap(errs); i++ {
		go func() {
			_, err := env.Client.Resolve(context.Background(), &ResolveRequest{Name: "package:http", Load: i%2 == 0})
			errs <- err
		}()
	}
	for i := 0; i < cap(errs); i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}

// The same handlers answer the gRPC protocol over HTTP/2.
func TestGRPCProtocol(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "stdlib/core.velac", libraryProgram(t), bytecode.FormatBinary)
	s := New(manifest.NewResolver(root))
	ts := httptest.NewUnstartedServer(s.Handler())
	ts.EnableHTTP2 = true
	ts.StartTLS()
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})

	c := NewClient(ts.Client(), ts.URL, connect.WithGRPC())
	resp, err := c.Resolve(context.Background(), &ResolveRequest{Name: "system:core"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Path != filepath.Join(root, "stdlib", "core.velac") {
		t.Errorf("path = %q", resp.Path)
	}
}

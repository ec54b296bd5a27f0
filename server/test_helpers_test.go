package server

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/velac/manifest"
	"github.com/chazu/velac/pkg/bytecode"
)

// testEnv bundles a running server, its resolver root and a client.
type testEnv struct {
	Root   string
	Server *Server
	Client *Client
}

// newTestEnv starts a server over a fresh project root.
func newTestEnv(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()
	root := t.TempDir()
	s := New(manifest.NewResolver(root), opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return &testEnv{
		Root:   root,
		Server: s,
		Client: NewClient(ts.Client(), ts.URL),
	}
}

// writeArtifact stores prog at root/rel in the given form.
func writeArtifact(t *testing.T, root, rel string, prog *bytecode.Program, f bytecode.Format) string {
	t.Helper()
	data, err := prog.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

const squareSource = `module app
export main
func main(x) {
  load x
  load x
  mul
  const int 2
  const int 3
  add
  add
  ret
}
`

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/vm"
)

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

const mathSource = `module math
export double start
func double(n) {
  load n
  const int 2
  mul
  ret
}
func start() {
  const int 21
  call double 1
  ret
}
`

// execute runs velac with args and returns what it printed.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--color=off"}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildAndRun(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "app.vela"), squareSource)

	out, stderr, err := execute(t, "-C", dir, "build", src)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, stderr)
	}
	artifact := filepath.Join(dir, "app.velac")
	if !strings.Contains(out, artifact) {
		t.Errorf("build output %q does not name %s", out, artifact)
	}

	out, _, err = execute(t, "-C", dir, "run", artifact, "4")
	if err != nil {
		t.Fatal(err)
	}
	if out != "int 21\n" {
		t.Errorf("run printed %q, want int 21", out)
	}

	// Sources run directly, without a build step.
	out, _, err = execute(t, "-C", dir, "run", "--optimize=false", src, "5")
	if err != nil || out != "int 30\n" {
		t.Errorf("run source = %q, %v", out, err)
	}
}

func TestBuildFormat(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "app.vela"), squareSource)
	dst := filepath.Join(dir, "out.bin")

	if _, stderr, err := execute(t, "-C", dir, "build", "--format", "cbor", "-o", dst, src); err != nil {
		t.Fatalf("build: %v\n%s", err, stderr)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if _, f, err := bytecode.DecodeAny(data); err != nil || f != bytecode.FormatCBOR {
		t.Errorf("DecodeAny = %s, %v; want cbor", f, err)
	}
}

func TestBuildFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "velac.toml"), "[build]\noutput = \"out\"\nformat = \"msgpack\"\n")
	writeFile(t, filepath.Join(dir, "src", "app.vela"), squareSource)
	writeFile(t, filepath.Join(dir, "src", "math.vela"), mathSource)
	writeFile(t, filepath.Join(dir, ".hidden", "skip.vela"), "not ir at all")

	if _, stderr, err := execute(t, "-C", dir, "build"); err != nil {
		t.Fatalf("build: %v\n%s", err, stderr)
	}
	for _, name := range []string{"app", "math"} {
		data, err := os.ReadFile(filepath.Join(dir, "out", "src", name+".velac"))
		if err != nil {
			t.Fatal(err)
		}
		if _, f, err := bytecode.DecodeAny(data); err != nil || f != bytecode.FormatMsgpack {
			t.Errorf("%s: DecodeAny = %s, %v; want msgpack", name, f, err)
		}
	}
}

func TestBuildDiagnostics(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.vela"), squareSource)
	bad := writeFile(t, filepath.Join(dir, "bad.vela"), "module bad\nfunc main() {\n  jump nowhere\n}\n")
	broken := writeFile(t, filepath.Join(dir, "broken.vela"), "module broken\nfunc main() {\n  frobnicate\n}\n")

	_, stderr, err := execute(t, "-C", dir, "build", good, bad, broken)
	if err == nil || !strings.Contains(err.Error(), "2 of 3") {
		t.Fatalf("err = %v, want 2 of 3 failed", err)
	}
	for _, want := range []string{bad + ": error: emit: UndefinedLabel", broken + ": error:", "frobnicate"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "good.velac")); err != nil {
		t.Error("good module was not written")
	}
}

func TestBuildWithoutInputs(t *testing.T) {
	if _, _, err := execute(t, "-C", t.TempDir(), "build"); err == nil {
		t.Error("expected an error without inputs or manifest")
	}
}

func TestRunModuleName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "velac.toml"), "[project]\nentry = \"start\"\n")
	writeFile(t, filepath.Join(dir, "lib", "math.vela"), mathSource)

	out, stderr, err := execute(t, "-C", dir, "run", "library:math")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	if out != "int 42\n" {
		t.Errorf("run printed %q, want int 42", out)
	}

	out, _, err = execute(t, "-C", dir, "run", "-e", "double", "library:math", "8")
	if err != nil || out != "int 16\n" {
		t.Errorf("run -e double = %q, %v", out, err)
	}
}

func TestRunFaults(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "div.vela"), "module d\nfunc main(x) {\n  load x\n  const int 0\n  div\n  ret\n}\n")
	_, _, err := execute(t, "-C", dir, "run", src, "1")
	if err == nil || !strings.Contains(err.Error(), "DivisionByZero") {
		t.Errorf("err = %v, want DivisionByZero", err)
	}

	loop := writeFile(t, filepath.Join(dir, "loop.vela"), "module l\nfunc main() {\ntop:\n  jump top\n}\n")
	if _, _, err := execute(t, "-C", dir, "run", "--timeout", "20ms", loop); err == nil {
		t.Error("endless loop was not stopped by --timeout")
	}
}

func TestRunTrace(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "app.vela"), squareSource)
	_, stderr, err := execute(t, "-C", dir, "run", "--trace", src, "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "LOAD_LOCAL") || !strings.Contains(stderr, "RETURN") {
		t.Errorf("trace output:\n%s", stderr)
	}
}

func TestResolveCmd(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "src", "math.vela"), mathSource)
	if _, stderr, err := execute(t, "-C", dir, "build", src); err != nil {
		t.Fatalf("build: %v\n%s", err, stderr)
	}

	out, _, err := execute(t, "-C", dir, "resolve", "module:math")
	if err != nil {
		t.Fatal(err)
	}
	want := "module:math\t" + filepath.Join(dir, "src", "math.velac") + "\n"
	if out != want {
		t.Errorf("resolve printed %q, want %q", out, want)
	}

	out, _, err = execute(t, "-C", dir, "resolve", "--load", "module:math")
	if err != nil || !strings.HasSuffix(out, "\tbinary\tdouble,start\n") {
		t.Errorf("resolve --load = %q, %v", out, err)
	}

	_, stderr, err := execute(t, "-C", dir, "resolve", "plugin:x", "module:nope")
	if err == nil || !strings.Contains(err.Error(), "2 of 2") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(stderr, "unknown module prefix") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestDisasmCmd(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "math.vela"), mathSource)

	out, _, err := execute(t, "-C", dir, "disasm", src)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"double", "start", "CALL"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}

	if _, _, err := execute(t, "-C", dir, "disasm", "--function", "nope", src); err == nil {
		t.Error("expected error for a missing function")
	}
}

func TestCacheCmd(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "app.vela"), squareSource)
	db := filepath.Join(dir, ".velac", "cache.db")

	for i := 0; i < 2; i++ {
		if _, stderr, err := execute(t, "-C", dir, "build", "--cache", db, src); err != nil {
			t.Fatalf("build: %v\n%s", err, stderr)
		}
	}
	out, _, err := execute(t, "-C", dir, "cache", "stats", "--cache", db)
	if err != nil || !strings.Contains(out, ": 1 programs") {
		t.Errorf("stats = %q, %v", out, err)
	}
	out, _, err = execute(t, "-C", dir, "cache", "purge", "--cache", db)
	if err != nil || !strings.Contains(out, "purged 1 programs") {
		t.Errorf("purge = %q, %v", out, err)
	}

	if _, _, err := execute(t, "-C", t.TempDir(), "cache", "stats"); err == nil {
		t.Error("expected an error without a configured cache")
	}
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var p versionPayload
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if p.Tool != "velac" || p.FormatVersion != bytecode.FormatVersion {
		t.Errorf("payload = %+v", p)
	}
	if _, _, err := execute(t, "version", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		want vm.Value
	}{
		{"42", vm.Int(42)},
		{"-7", vm.Int(-7)},
		{"2.5", vm.Float(2.5)},
		{"true", vm.Bool(true)},
		{"false", vm.Bool(false)},
		{"null", vm.Null()},
		{`"quoted"`, vm.String("quoted")},
		{"plain", vm.String("plain")},
	}
	for _, tt := range tests {
		if got := parseArg(tt.in); !got.Same(tt.want) {
			t.Errorf("parseArg(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestInvalidColor(t *testing.T) {
	if _, _, err := execute(t, "--color=sometimes", "version"); err == nil {
		t.Error("expected error for invalid --color")
	}
}

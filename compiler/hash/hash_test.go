package hash

import (
	"strings"
	"testing"

	"github.com/chazu/velac/pkg/ir"
)

func mustParse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := ir.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return m
}

const baseSource = `module a
export main
func main(n) {
  local acc
  const int 0
  store acc
top:
  load acc
  load n
  lt
  jumpif done
  load acc
  const int 1
  add
  store acc
  jump top
done:
  load acc
  ret
}
`

func TestSerializeVersionPrefix(t *testing.T) {
	data := Serialize(mustParse(t, baseSource))
	if len(data) == 0 || data[0] != HashVersion {
		t.Errorf("version prefix = % X", data[:1])
	}
}

func TestHashDeterministic(t *testing.T) {
	m := mustParse(t, baseSource)
	if HashModule(m) != HashModule(m.Clone()) {
		t.Error("hash differs for identical modules")
	}
	var zero [32]byte
	if HashModule(m) == zero {
		t.Error("hash is zero")
	}
}

func TestHashIgnoresLocalAndLabelNames(t *testing.T) {
	renamed := `module b
export main
func main(limit) {
  local total
  const int 0
  store total
again:
  load total
  load limit
  lt
  jumpif finished
  load total
  const int 1
  add
  store total
  jump again
finished:
  load total
  ret
}
`
	if HashModule(mustParse(t, baseSource)) != HashModule(mustParse(t, renamed)) {
		t.Error("renaming locals, labels or the module changed the hash")
	}
}

func TestHashSensitivity(t *testing.T) {
	base := HashModule(mustParse(t, baseSource))
	mutate := []struct {
		name string
		from string
		to   string
	}{
		{"constant", "const int 1", "const int 2"},
		{"constant kind", "const int 1", "const float 1"},
		{"operator", "  add\n", "  sub\n"},
		{"export", "export main", ""},
		{"function name", "func main(n)", "func start(n)"},
		{"label target", "  jump top", "  jump done"},
		{"slot order", "  load n\n", "  load acc\n"},
	}
	for _, tt := range mutate {
		t.Run(tt.name, func(t *testing.T) {
			src := replaceOnce(t, baseSource, tt.from, tt.to)
			if tt.name == "function name" {
				src = replaceOnce(t, src, "export main", "export start")
			}
			if HashModule(mustParse(t, src)) == base {
				t.Errorf("changing %s did not change the hash", tt.name)
			}
		})
	}
}

func TestBuildKeyIncludesOptimize(t *testing.T) {
	m := mustParse(t, baseSource)
	on, off := BuildKey(m, true), BuildKey(m, false)
	if on == off {
		t.Error("optimize flag does not affect the key")
	}
	if len(on) != 64 {
		t.Errorf("key length = %d, want 64 hex digits", len(on))
	}
	if BuildKey(m, true) != on {
		t.Error("key not stable")
	}
}

func TestUnboundNamesAreDistinct(t *testing.T) {
	a := &ir.Module{Functions: []*ir.Function{{Name: "f", Body: []ir.Instr{ir.LoadVar{Name: "x"}}}}}
	b := &ir.Module{Functions: []*ir.Function{{Name: "f", Body: []ir.Instr{ir.LoadVar{Name: "y"}}}}}
	if HashModule(a) == HashModule(b) {
		t.Error("undeclared names collapsed to the same digest")
	}
}

func replaceOnce(t *testing.T, s, from, to string) string {
	t.Helper()
	if !strings.Contains(s, from) {
		t.Fatalf("%q not found", from)
	}
	return strings.Replace(s, from, to, 1)
}

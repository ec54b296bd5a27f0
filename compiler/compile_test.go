package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/pkg/ir"
	"github.com/chazu/velac/vm"
)

const squareSource = `module square
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
  const int 0
  ret
}
`

func TestCompile(t *testing.T) {
	m, err := ir.Parse(squareSource)
	if err != nil {
		t.Fatal(err)
	}
	prog, stats, err := Compile(m, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if stats != (Stats{Folded: 1, Removed: 2}) {
		t.Errorf("stats = %+v, want {1 2}", stats)
	}

	machine, err := vm.New(prog)
	if err != nil {
		t.Fatal(err)
	}
	r, err := machine.Run("main", vm.Int(4))
	if err != nil {
		t.Fatal(err)
	}
	if !r.Same(vm.Int(21)) {
		t.Errorf("main(4) = %s, want 21", r)
	}
}

func TestCompileWithoutOptimization(t *testing.T) {
	m, err := ir.Parse(squareSource)
	if err != nil {
		t.Fatal(err)
	}
	before := len(m.Functions[0].Body)
	prog, stats, err := Compile(m, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if stats != (Stats{}) || len(m.Functions[0].Body) != before {
		t.Errorf("module rewritten without Optimize: stats %+v", stats)
	}
	// Unoptimized code keeps both constants and the dead tail.
	if len(prog.Constants) != 3 {
		t.Errorf("constants = %v", prog.Constants)
	}
}

func TestCompileRejectsInvalidModule(t *testing.T) {
	m := &ir.Module{Name: "bad", Functions: []*ir.Function{{
		Name:   "main",
		Params: []ir.Var{{Name: "a"}, {Name: "a"}},
	}}}
	_, _, err := Compile(m, DefaultOptions())
	var ve *ir.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ir.ValidationError", err)
	}
}

func TestCompileAll(t *testing.T) {
	good := func(name string, n int64) *ir.Module {
		return &ir.Module{Name: name, Functions: []*ir.Function{
			fnOf(konst(bytecode.Int(n)), konst(bytecode.Int(1)), ir.BinaryOp{Op: ir.Add}, ir.Return{}),
		}}
	}
	bad := &ir.Module{Name: "broken", Functions: []*ir.Function{fnOf(ir.Jump{Label: "nowhere"})}}
	mods := []*ir.Module{good("a", 1), bad, good("c", 10), good("d", 100)}

	results, err := CompileAll(context.Background(), mods, Options{Optimize: true, Jobs: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(mods) {
		t.Fatalf("%d results for %d modules", len(results), len(mods))
	}
	for i, r := range results {
		if r.Module != mods[i].Name {
			t.Errorf("result %d is for %q, want %q", i, r.Module, mods[i].Name)
		}
	}

	if !errors.Is(results[1].Err, &EmitError{Kind: UndefinedLabel}) || results[1].Program != nil {
		t.Errorf("broken module result = %+v", results[1])
	}
	for _, i := range []int{0, 2, 3} {
		r := results[i]
		if r.Err != nil {
			t.Errorf("%s: %v", r.Module, r.Err)
			continue
		}
		// Every module gets its own pool holding only its folded sum.
		if len(r.Program.Constants) != 1 || r.Stats.Folded != 1 {
			t.Errorf("%s: constants %v, stats %+v", r.Module, r.Program.Constants, r.Stats)
		}
	}
}

func TestCompileAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mods := []*ir.Module{{Name: "a", Functions: []*ir.Function{fnOf(ir.Return{})}}}
	if _, err := CompileAll(ctx, mods, DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCompileAllEmpty(t *testing.T) {
	results, err := CompileAll(context.Background(), nil, DefaultOptions())
	if err != nil || len(results) != 0 {
		t.Errorf("CompileAll(nil) = %v, %v", results, err)
	}
}

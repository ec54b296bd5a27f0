package compiler

import (
	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/pkg/ir"
)

// ---------------------------------------------------------------------------
// Optimizer: constant folding and dead-code elimination over IR
// ---------------------------------------------------------------------------

// Stats counts what an optimization pass changed.
type Stats struct {
	Folded  int // binary or unary operations replaced by a constant
	Removed int // instructions dropped after the first return
}

// Add accumulates s2 into s.
func (s *Stats) Add(s2 Stats) {
	s.Folded += s2.Folded
	s.Removed += s2.Removed
}

// Optimize rewrites every function body of m in place. It never fails.
func Optimize(m *ir.Module) Stats {
	var total Stats
	for _, fn := range m.Functions {
		if fn == nil {
			continue
		}
		total.Add(OptimizeFunction(fn))
	}
	return total
}

// OptimizeFunction folds constants and then drops unreachable code.
func OptimizeFunction(fn *ir.Function) Stats {
	var s Stats
	s.Folded = foldConstants(fn)
	s.Removed = eliminateDeadCode(fn)
	return s
}

// foldConstants replaces `const a; const b; op` with `const op(a, b)` and
// `const a; op` with `const op(a)`. After a fold the scan stays at the same
// index so the new constant can feed a following operation.
func foldConstants(fn *ir.Function) int {
	body := fn.Body
	folded := 0
	i := 0
	for i < len(body) {
		switch in := body[i].(type) {
		case ir.BinaryOp:
			if i >= 2 {
				a, okA := body[i-2].(ir.LoadConst)
				b, okB := body[i-1].(ir.LoadConst)
				if okA && okB {
					if r, ok := foldBinary(in.Op, a.Value, b.Value); ok {
						body = splice(body, i-2, i+1, ir.LoadConst{Value: r})
						folded++
						continue
					}
				}
			}
		case ir.UnaryOp:
			if i >= 1 {
				if a, ok := body[i-1].(ir.LoadConst); ok {
					if r, ok := foldUnary(in.Op, a.Value); ok {
						body = splice(body, i-1, i+1, ir.LoadConst{Value: r})
						folded++
						continue
					}
				}
			}
		}
		i++
	}
	fn.Body = body
	return folded
}

// splice replaces body[from:to] with in.
func splice(body []ir.Instr, from, to int, in ir.Instr) []ir.Instr {
	body[from] = in
	n := copy(body[from+1:], body[to:])
	for j := from + 1 + n; j < len(body); j++ {
		body[j] = nil
	}
	return body[:from+1+n]
}

// foldBinary evaluates op over two constants when the result is fixed at
// compile time. Division by zero, float comparisons and mixed operand kinds
// are left to the runtime.
func foldBinary(op ir.BinOp, a, b bytecode.Value) (bytecode.Value, bool) {
	if x, ok := a.AsInt(); ok {
		y, ok := b.AsInt()
		if !ok {
			return bytecode.Value{}, false
		}
		switch op {
		case ir.Add:
			return bytecode.Int(x + y), true
		case ir.Sub:
			return bytecode.Int(x - y), true
		case ir.Mul:
			return bytecode.Int(x * y), true
		case ir.Div:
			if y == 0 {
				return bytecode.Value{}, false
			}
			return bytecode.Int(x / y), true
		case ir.Eq:
			return bytecode.Bool(x == y), true
		case ir.Ne:
			return bytecode.Bool(x != y), true
		case ir.Lt:
			return bytecode.Bool(x < y), true
		case ir.Le:
			return bytecode.Bool(x <= y), true
		case ir.Gt:
			return bytecode.Bool(x > y), true
		case ir.Ge:
			return bytecode.Bool(x >= y), true
		}
		return bytecode.Value{}, false
	}

	if x, ok := a.AsFloat(); ok {
		y, ok := b.AsFloat()
		if !ok {
			return bytecode.Value{}, false
		}
		switch op {
		case ir.Add:
			return bytecode.Float(x + y), true
		case ir.Sub:
			return bytecode.Float(x - y), true
		case ir.Mul:
			return bytecode.Float(x * y), true
		case ir.Div:
			if y == 0 {
				return bytecode.Value{}, false
			}
			return bytecode.Float(x / y), true
		}
	}
	return bytecode.Value{}, false
}

func foldUnary(op ir.UnOp, a bytecode.Value) (bytecode.Value, bool) {
	switch op {
	case ir.Neg:
		if x, ok := a.AsInt(); ok {
			return bytecode.Int(-x), true
		}
		if x, ok := a.AsFloat(); ok {
			return bytecode.Float(-x), true
		}
	case ir.Not:
		if x, ok := a.AsBool(); ok {
			return bytecode.Bool(!x), true
		}
	}
	return bytecode.Value{}, false
}

// eliminateDeadCode truncates the body just after the first Return.
// Labels past that point disappear; jumps to them are reported by the
// emitter as undefined.
func eliminateDeadCode(fn *ir.Function) int {
	for i, in := range fn.Body {
		if _, ok := in.(ir.Return); ok {
			removed := len(fn.Body) - (i + 1)
			if removed > 0 {
				clear(fn.Body[i+1:])
				fn.Body = fn.Body[:i+1]
			}
			return removed
		}
	}
	return 0
}

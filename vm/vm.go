package vm

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/velac/pkg/bytecode"
)

// DefaultMaxFrames bounds call depth.
const DefaultMaxFrames = 1024

// TraceFunc observes every instruction before it executes. stack is the
// current frame's operand stack and must not be retained.
type TraceFunc func(fn *bytecode.Function, ins bytecode.Instruction, stack []Value)

// VM executes a verified program.
type VM struct {
	prog *bytecode.Program

	// MaxFrames bounds call depth; exceeding it raises StackOverflow.
	MaxFrames int
	// Trace, when set, is called before each instruction.
	Trace TraceFunc

	ctx   context.Context
	depth int
	steps uint64
}

// New verifies prog and returns a VM for it.
func New(prog *bytecode.Program) (*VM, error) {
	if err := prog.Verify(); err != nil {
		return nil, fmt.Errorf("vm: invalid program: %w", err)
	}
	return &VM{prog: prog, MaxFrames: DefaultMaxFrames}, nil
}

// Program returns the program being executed.
func (vm *VM) Program() *bytecode.Program {
	return vm.prog
}

// Run invokes the named function with args bound to its first slots.
func (vm *VM) Run(entry string, args ...Value) (Value, error) {
	return vm.RunContext(context.Background(), entry, args...)
}

// RunContext is Run with cancellation. ctx is polled periodically, so a
// non-terminating program stops once ctx is done.
func (vm *VM) RunContext(ctx context.Context, entry string, args ...Value) (Value, error) {
	idx := vm.prog.FunctionIndex(entry)
	if idx < 0 {
		return Value{}, &Fault{Kind: UnknownFunction, Message: fmt.Sprintf("no function named %q", entry)}
	}
	vm.ctx = ctx
	vm.depth = 0
	return vm.call(idx, args)
}

// frame is one activation: its function, slots and operand stack.
type frame struct {
	fn    *bytecode.Function
	ip    int
	slots []Value
	stack []Value
}

func (vm *VM) fault(fr *frame, at int, kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Function: fr.fn.Name, Offset: at, Message: fmt.Sprintf(format, args...)}
}

func (fr *frame) push(v Value) {
	fr.stack = append(fr.stack, v)
}

func (fr *frame) pop() (Value, bool) {
	n := len(fr.stack)
	if n == 0 {
		return Value{}, false
	}
	v := fr.stack[n-1]
	fr.stack = fr.stack[:n-1]
	return v, true
}

func (vm *VM) call(idx int, args []Value) (Value, error) {
	fn := vm.prog.Functions[idx]
	if vm.depth >= vm.MaxFrames {
		return Value{}, &Fault{Kind: StackOverflow, Function: fn.Name,
			Message: fmt.Sprintf("call depth exceeds %d frames", vm.MaxFrames)}
	}
	if len(args) > fn.SlotCount() {
		return Value{}, &Fault{Kind: ArityMismatch, Function: fn.Name,
			Message: fmt.Sprintf("%d arguments for %d slots", len(args), fn.SlotCount())}
	}

	vm.depth++
	defer func() { vm.depth-- }()

	fr := &frame{fn: fn, slots: make([]Value, fn.SlotCount())}
	copy(fr.slots, args)
	return vm.run(fr)
}

// run is the main execution loop for one frame.
func (vm *VM) run(fr *frame) (Value, error) {
	code := fr.fn.Code
	consts := vm.prog.Constants

	for fr.ip < len(code) {
		at := fr.ip
		op := bytecode.Opcode(code[at])

		if vm.Trace != nil {
			ins, err := bytecode.DecodeInstruction(code, at)
			if err != nil {
				return Value{}, vm.fault(fr, at, InvalidOpcode, "%v", err)
			}
			vm.Trace(fr.fn, ins, fr.stack)
		}

		vm.steps++
		if vm.steps&0x3FF == 0 && vm.ctx != nil {
			if err := vm.ctx.Err(); err != nil {
				return Value{}, err
			}
		}

		fr.ip += op.InstructionLen()
		if fr.ip > len(code) {
			return Value{}, vm.fault(fr, at, InvalidOpcode, "truncated %s", op)
		}
		operands := code[at+1 : fr.ip]

		need, _ := stackEffect(op, operands)
		if len(fr.stack) < need {
			return Value{}, vm.fault(fr, at, StackUnderflow, "%s needs %d operands, stack has %d", op, need, len(fr.stack))
		}

		switch op {
		// ============ Stack ============
		case bytecode.OpNop:

		case bytecode.OpPop:
			fr.pop()

		case bytecode.OpLoadConst:
			fr.push(Scalar(consts[binary.BigEndian.Uint16(operands)]))

		// ============ Locals ============
		case bytecode.OpLoadLocal:
			fr.push(fr.slots[operands[0]])

		case bytecode.OpStoreLocal:
			v, _ := fr.pop()
			fr.slots[operands[0]] = v

		// ============ Arithmetic, comparison, logic ============
		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
			bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe,
			bytecode.OpAnd, bytecode.OpOr:
			b, _ := fr.pop()
			a, _ := fr.pop()
			r, kind, msg := arith(op, a, b)
			if kind != 0 {
				return Value{}, vm.fault(fr, at, kind, "%s", msg)
			}
			fr.push(r)

		case bytecode.OpNeg, bytecode.OpNot:
			a, _ := fr.pop()
			r, kind, msg := unary(op, a)
			if kind != 0 {
				return Value{}, vm.fault(fr, at, kind, "%s", msg)
			}
			fr.push(r)

		// ============ Control flow ============
		case bytecode.OpJump:
			fr.ip += int(int16(binary.BigEndian.Uint16(operands)))

		case bytecode.OpJumpIf:
			c, _ := fr.pop()
			s, _ := c.Scalar()
			cond, ok := s.AsBool()
			if !ok {
				return Value{}, vm.fault(fr, at, TypeMismatch, "JUMP_IF on %s, want bool", c.TypeName())
			}
			if !cond {
				fr.ip += int(int16(binary.BigEndian.Uint16(operands)))
			}

		case bytecode.OpCall:
			argc := int(operands[1])
			args := make([]Value, argc)
			copy(args, fr.stack[len(fr.stack)-argc:])
			fr.stack = fr.stack[:len(fr.stack)-argc]
			r, err := vm.call(int(operands[0]), args)
			if err != nil {
				return Value{}, err
			}
			fr.push(r)

		case bytecode.OpReturn:
			v, _ := fr.pop()
			return v, nil

		// ============ Arrays ============
		case bytecode.OpNewArray:
			fr.push(ArrayOf(&Array{Elems: make([]Value, 0, int(operands[0]))}))

		case bytecode.OpLoadArray:
			idxV, _ := fr.pop()
			arrV, _ := fr.pop()
			arr, i, f := vm.arrayIndex(fr, at, arrV, idxV)
			if f != nil {
				return Value{}, f
			}
			if i >= len(arr.Elems) {
				return Value{}, vm.fault(fr, at, IndexOutOfRange, "index %d, length %d", i, len(arr.Elems))
			}
			fr.push(arr.Elems[i])

		case bytecode.OpStoreArray:
			v, _ := fr.pop()
			idxV, _ := fr.pop()
			arrV, _ := fr.pop()
			arr, i, f := vm.arrayIndex(fr, at, arrV, idxV)
			if f != nil {
				return Value{}, f
			}
			switch {
			case i < len(arr.Elems):
				arr.Elems[i] = v
			case i == len(arr.Elems):
				arr.Elems = append(arr.Elems, v)
			default:
				return Value{}, vm.fault(fr, at, IndexOutOfRange, "store at %d, length %d", i, len(arr.Elems))
			}

		// ============ Objects ============
		case bytecode.OpNewObject:
			class, _ := consts[binary.BigEndian.Uint16(operands)].AsString()
			fr.push(ObjectOf(&Object{Class: class, Fields: make(map[string]Value)}))

		case bytecode.OpLoadField:
			name, _ := consts[binary.BigEndian.Uint16(operands)].AsString()
			objV, _ := fr.pop()
			obj, ok := objV.Object()
			if !ok {
				return Value{}, vm.fault(fr, at, TypeMismatch, "field %s of %s", name, objV.TypeName())
			}
			fr.push(obj.Fields[name])

		case bytecode.OpStoreField:
			name, _ := consts[binary.BigEndian.Uint16(operands)].AsString()
			v, _ := fr.pop()
			objV, _ := fr.pop()
			obj, ok := objV.Object()
			if !ok {
				return Value{}, vm.fault(fr, at, TypeMismatch, "field %s of %s", name, objV.TypeName())
			}
			obj.Fields[name] = v

		default:
			return Value{}, vm.fault(fr, at, InvalidOpcode, "opcode 0x%02X", byte(op))
		}
	}

	// Falling off the end returns null.
	return Null(), nil
}

func (vm *VM) arrayIndex(fr *frame, at int, arrV, idxV Value) (*Array, int, *Fault) {
	arr, ok := arrV.Array()
	if !ok {
		return nil, 0, vm.fault(fr, at, TypeMismatch, "indexing %s", arrV.TypeName())
	}
	s, _ := idxV.Scalar()
	i, ok := s.AsInt()
	if !ok {
		return nil, 0, vm.fault(fr, at, TypeMismatch, "array index is %s, want int", idxV.TypeName())
	}
	if i < 0 || i > math.MaxInt32 {
		return nil, 0, vm.fault(fr, at, IndexOutOfRange, "index %d", i)
	}
	return arr, int(i), nil
}

// stackEffect returns the operands op pops from the current frame.
func stackEffect(op bytecode.Opcode, operands []byte) (pop, push int) {
	switch op {
	case bytecode.OpCall:
		return int(operands[1]), 1
	}
	info := bytecode.GetOpcodeInfo(op)
	return info.StackPop, info.StackPush
}

// arith applies a two-operand opcode. A non-zero kind reports a fault.
func arith(op bytecode.Opcode, av, bv Value) (Value, FaultKind, string) {
	switch op {
	case bytecode.OpEq:
		return Bool(equal(av, bv)), 0, ""
	case bytecode.OpNe:
		return Bool(!equal(av, bv)), 0, ""
	}

	a, aok := av.Scalar()
	b, bok := bv.Scalar()
	mismatch := func() (Value, FaultKind, string) {
		return Value{}, TypeMismatch, fmt.Sprintf("%s on %s and %s", op, av.TypeName(), bv.TypeName())
	}
	if !aok || !bok || a.Kind() != b.Kind() {
		return mismatch()
	}

	switch a.Kind() {
	case bytecode.KindInt:
		x, _ := a.AsInt()
		y, _ := b.AsInt()
		switch op {
		case bytecode.OpAdd:
			return Int(x + y), 0, ""
		case bytecode.OpSub:
			return Int(x - y), 0, ""
		case bytecode.OpMul:
			return Int(x * y), 0, ""
		case bytecode.OpDiv:
			if y == 0 {
				return Value{}, DivisionByZero, "integer division by zero"
			}
			return Int(x / y), 0, ""
		case bytecode.OpMod:
			if y == 0 {
				return Value{}, DivisionByZero, "integer modulo by zero"
			}
			return Int(x % y), 0, ""
		case bytecode.OpLt:
			return Bool(x < y), 0, ""
		case bytecode.OpLe:
			return Bool(x <= y), 0, ""
		case bytecode.OpGt:
			return Bool(x > y), 0, ""
		case bytecode.OpGe:
			return Bool(x >= y), 0, ""
		}

	case bytecode.KindFloat:
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		switch op {
		case bytecode.OpAdd:
			return Float(x + y), 0, ""
		case bytecode.OpSub:
			return Float(x - y), 0, ""
		case bytecode.OpMul:
			return Float(x * y), 0, ""
		case bytecode.OpDiv:
			if y == 0 {
				return Value{}, DivisionByZero, "float division by zero"
			}
			return Float(x / y), 0, ""
		case bytecode.OpMod:
			if y == 0 {
				return Value{}, DivisionByZero, "float modulo by zero"
			}
			return Float(math.Mod(x, y)), 0, ""
		case bytecode.OpLt:
			return Bool(x < y), 0, ""
		case bytecode.OpLe:
			return Bool(x <= y), 0, ""
		case bytecode.OpGt:
			return Bool(x > y), 0, ""
		case bytecode.OpGe:
			return Bool(x >= y), 0, ""
		}

	case bytecode.KindString:
		x, _ := a.AsString()
		y, _ := b.AsString()
		switch op {
		case bytecode.OpAdd:
			return String(x + y), 0, ""
		case bytecode.OpLt:
			return Bool(x < y), 0, ""
		case bytecode.OpLe:
			return Bool(x <= y), 0, ""
		case bytecode.OpGt:
			return Bool(x > y), 0, ""
		case bytecode.OpGe:
			return Bool(x >= y), 0, ""
		}

	case bytecode.KindBool:
		x, _ := a.AsBool()
		y, _ := b.AsBool()
		switch op {
		case bytecode.OpAnd:
			return Bool(x && y), 0, ""
		case bytecode.OpOr:
			return Bool(x || y), 0, ""
		}
	}
	return mismatch()
}

// equal is the runtime EQ: numeric equality for floats, identity for
// arrays and objects, structural equality otherwise.
func equal(av, bv Value) bool {
	a, aok := av.Scalar()
	b, bok := bv.Scalar()
	if aok && bok {
		if x, ok := a.AsFloat(); ok {
			y, ok := b.AsFloat()
			return ok && x == y
		}
	}
	return av.Same(bv)
}

func unary(op bytecode.Opcode, av Value) (Value, FaultKind, string) {
	// Arrays and objects carry a null scalar, so they fall through.
	a, _ := av.Scalar()
	switch op {
	case bytecode.OpNeg:
		if x, ok := a.AsInt(); ok {
			return Int(-x), 0, ""
		}
		if x, ok := a.AsFloat(); ok {
			return Float(-x), 0, ""
		}
	case bytecode.OpNot:
		if x, ok := a.AsBool(); ok {
			return Bool(!x), 0, ""
		}
	}
	return Value{}, TypeMismatch, fmt.Sprintf("%s on %s", op, av.TypeName())
}

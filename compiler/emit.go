package compiler

import (
	"errors"

	"fortio.org/safecast"

	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/pkg/ir"
)

// ---------------------------------------------------------------------------
// Emitter: lower IR to bytecode
// ---------------------------------------------------------------------------

var binaryOpcodes = map[ir.BinOp]bytecode.Opcode{
	ir.Add: bytecode.OpAdd,
	ir.Sub: bytecode.OpSub,
	ir.Mul: bytecode.OpMul,
	ir.Div: bytecode.OpDiv,
	ir.Mod: bytecode.OpMod,
	ir.Eq:  bytecode.OpEq,
	ir.Ne:  bytecode.OpNe,
	ir.Lt:  bytecode.OpLt,
	ir.Le:  bytecode.OpLe,
	ir.Gt:  bytecode.OpGt,
	ir.Ge:  bytecode.OpGe,
	ir.And: bytecode.OpAnd,
	ir.Or:  bytecode.OpOr,
}

var unaryOpcodes = map[ir.UnOp]bytecode.Opcode{
	ir.Neg: bytecode.OpNeg,
	ir.Not: bytecode.OpNot,
}

// pendingJump is a jump whose operand is patched once the function's
// labels are all known.
type pendingJump struct {
	placeholder int // offset of the two operand bytes
	label       string
}

// Emitter lowers one IR module into a bytecode program. An Emitter is not
// safe for concurrent use; use one per module.
type Emitter struct {
	pool      *bytecode.ConstantPool
	funcIndex map[string]int

	// Current function context
	fn      *ir.Function
	builder *bytecode.Builder
	locals  map[string]uint8
	labels  map[string]int
	pending []pendingJump
}

// NewEmitter creates an emitter with an empty constant pool.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Emit lowers m using a fresh Emitter.
func Emit(m *ir.Module) (*bytecode.Program, error) {
	return NewEmitter().Emit(m)
}

// Emit lowers every function of m. On failure the error is an *EmitError
// and no program is returned.
func (e *Emitter) Emit(m *ir.Module) (*bytecode.Program, error) {
	e.pool = bytecode.NewConstantPool()
	e.funcIndex = make(map[string]int, len(m.Functions))

	if len(m.Functions) > bytecode.MaxFunctions {
		return nil, newEmitError(OperandOverflow, "", "",
			"module has %d functions, CALL addresses at most %d", len(m.Functions), bytecode.MaxFunctions)
	}

	// Registration pass: indices and skeletons first so forward calls resolve.
	prog := &bytecode.Program{Functions: make([]*bytecode.Function, len(m.Functions))}
	for i, fn := range m.Functions {
		if fn == nil {
			return nil, newEmitError(InvalidInstruction, "", "", "function %d is nil", i)
		}
		if _, dup := e.funcIndex[fn.Name]; dup {
			return nil, newEmitError(DuplicateFunction, fn.Name, fn.Name, "function %q is defined more than once", fn.Name)
		}
		e.funcIndex[fn.Name] = i
		prog.Functions[i] = &bytecode.Function{Name: fn.Name}
	}

	for _, name := range m.Exports {
		if _, ok := e.funcIndex[name]; !ok {
			return nil, newEmitError(UndefinedFunction, "", name, "exported function %q is not defined", name)
		}
	}

	for i, fn := range m.Functions {
		if err := e.emitFunction(fn, prog.Functions[i]); err != nil {
			return nil, err
		}
	}

	prog.Constants = e.pool.Values()
	prog.Symbols = append([]string(nil), m.Exports...)
	return prog, nil
}

func (e *Emitter) emitFunction(fn *ir.Function, out *bytecode.Function) error {
	e.fn = fn
	e.builder = bytecode.NewBuilder()
	e.labels = make(map[string]int)
	e.pending = e.pending[:0]

	if err := e.allocateLocals(fn); err != nil {
		return err
	}

	for _, in := range fn.Body {
		if err := e.emitInstr(in); err != nil {
			return err
		}
	}

	if err := e.patchJumps(); err != nil {
		return err
	}

	out.Code = e.builder.Bytes()
	// Counts fit: allocateLocals bounded the total by MaxLocals.
	out.ParamCount = uint16(len(fn.Params))
	out.LocalCount = uint16(len(fn.Locals))
	return nil
}

// allocateLocals assigns slots to parameters, then declared locals, in
// declaration order.
func (e *Emitter) allocateLocals(fn *ir.Function) error {
	total := len(fn.Params) + len(fn.Locals)
	if total > bytecode.MaxLocals {
		return newEmitError(TooManyLocals, fn.Name, "",
			"%d parameters and locals, max %d", total, bytecode.MaxLocals)
	}
	e.locals = make(map[string]uint8, total)
	slot := 0
	for _, vars := range [][]ir.Var{fn.Params, fn.Locals} {
		for _, v := range vars {
			e.locals[v.Name] = uint8(slot)
			slot++
		}
	}
	return nil
}

func (e *Emitter) slot(name string) (uint8, error) {
	s, ok := e.locals[name]
	if !ok {
		return 0, newEmitError(UndefinedVariable, e.fn.Name, name, "undefined variable %q", name)
	}
	return s, nil
}

func (e *Emitter) intern(v bytecode.Value) (uint16, error) {
	idx, err := e.pool.Intern(v)
	if err != nil {
		return 0, newEmitError(ConstantPoolOverflow, e.fn.Name, "", "interning %s: %v", v, err)
	}
	return idx, nil
}

func (e *Emitter) u8(what string, n int) (uint8, error) {
	v, err := safecast.Conv[uint8](n)
	if err != nil {
		return 0, newEmitError(OperandOverflow, e.fn.Name, "", "%s %d does not fit in one byte", what, n)
	}
	return v, nil
}

func (e *Emitter) emitInstr(in ir.Instr) error {
	b := e.builder

	switch in := in.(type) {
	case ir.LoadConst:
		idx, err := e.intern(in.Value)
		if err != nil {
			return err
		}
		b.EmitU16(bytecode.OpLoadConst, idx)

	case ir.LoadVar:
		s, err := e.slot(in.Name)
		if err != nil {
			return err
		}
		b.EmitU8(bytecode.OpLoadLocal, s)

	case ir.StoreVar:
		s, err := e.slot(in.Name)
		if err != nil {
			return err
		}
		b.EmitU8(bytecode.OpStoreLocal, s)

	case ir.AssignVar:
		if in.Inner == nil {
			return newEmitError(InvalidInstruction, e.fn.Name, in.Name, "assign %s has no value", in.Name)
		}
		if _, push := ir.StackEffect(in.Inner); push != 1 {
			return newEmitError(InvalidInstruction, e.fn.Name, in.Name,
				"assign %s: %q pushes %d values, want 1", in.Name, ir.Format(in.Inner), push)
		}
		if err := e.emitInstr(in.Inner); err != nil {
			return err
		}
		s, err := e.slot(in.Name)
		if err != nil {
			return err
		}
		b.EmitU8(bytecode.OpStoreLocal, s)

	case ir.DeclareVar:
		// Slots are reserved up front.

	case ir.BinaryOp:
		op, ok := binaryOpcodes[in.Op]
		if !ok {
			return newEmitError(InvalidInstruction, e.fn.Name, "", "unknown binary operator %s", in.Op)
		}
		b.Emit(op)

	case ir.UnaryOp:
		op, ok := unaryOpcodes[in.Op]
		if !ok {
			return newEmitError(InvalidInstruction, e.fn.Name, "", "unknown unary operator %s", in.Op)
		}
		b.Emit(op)

	case ir.Call:
		idx, ok := e.funcIndex[in.Function]
		if !ok {
			return newEmitError(UndefinedFunction, e.fn.Name, in.Function, "undefined function %q", in.Function)
		}
		fnIdx, err := e.u8("function index", idx)
		if err != nil {
			return err
		}
		argc, err := e.u8("argument count", in.Argc)
		if err != nil {
			return err
		}
		b.EmitCall(fnIdx, argc)

	case ir.Return:
		b.Emit(bytecode.OpReturn)

	case ir.Jump:
		e.pending = append(e.pending, pendingJump{b.EmitJump(bytecode.OpJump), in.Label})

	case ir.JumpIf:
		e.pending = append(e.pending, pendingJump{b.EmitJump(bytecode.OpJumpIf), in.Label})

	case ir.Label:
		if _, dup := e.labels[in.Name]; dup {
			return newEmitError(DuplicateLabel, e.fn.Name, in.Name, "label %q defined more than once", in.Name)
		}
		e.labels[in.Name] = b.Offset()

	case ir.CreateArray:
		size, err := e.u8("array size", in.Size)
		if err != nil {
			return err
		}
		b.EmitU8(bytecode.OpNewArray, size)

	case ir.ArrayAccess:
		b.Emit(bytecode.OpLoadArray)

	case ir.ArrayStore:
		b.Emit(bytecode.OpStoreArray)

	case ir.CreateObject:
		return e.emitNamed(bytecode.OpNewObject, in.Class)

	case ir.PropertyAccess:
		return e.emitNamed(bytecode.OpLoadField, in.Name)

	case ir.PropertyStore:
		return e.emitNamed(bytecode.OpStoreField, in.Name)

	default:
		return newEmitError(InvalidInstruction, e.fn.Name, "", "unsupported instruction %s", ir.Format(in))
	}
	return nil
}

// emitNamed emits an opcode whose operand is the pool index of a name.
func (e *Emitter) emitNamed(op bytecode.Opcode, name string) error {
	idx, err := e.intern(bytecode.String(name))
	if err != nil {
		return err
	}
	e.builder.EmitU16(op, idx)
	return nil
}

// patchJumps resolves every pending jump against the label map.
func (e *Emitter) patchJumps() error {
	end := e.builder.Offset()
	for _, pj := range e.pending {
		target, ok := e.labels[pj.label]
		if !ok {
			return newEmitError(UndefinedLabel, e.fn.Name, pj.label, "label %q is not defined", pj.label)
		}
		if target == end {
			return newEmitError(InvalidInstruction, e.fn.Name, pj.label,
				"label %q ends the function; a jump to it would leave the code", pj.label)
		}
		if err := e.builder.PatchJump(pj.placeholder, target); err != nil {
			if errors.Is(err, bytecode.ErrJumpOutOfRange) {
				return newEmitError(JumpOutOfRange, e.fn.Name, pj.label, "jump to %q: %v", pj.label, err)
			}
			return err
		}
	}
	e.pending = e.pending[:0]
	return nil
}

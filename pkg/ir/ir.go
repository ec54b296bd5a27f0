// Package ir defines the structured intermediate representation consumed by
// the optimizer and the bytecode emitter.
//
// A Module holds functions in registration order; that order becomes the
// function index space of the emitted program. Instruction bodies are flat
// slices of Instr values drawn from a closed set of types. Branch targets
// are symbolic labels defined by Label instructions.
package ir

import (
	"fmt"

	"github.com/chazu/velac/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Module and functions
// ---------------------------------------------------------------------------

// Module is a named collection of functions.
type Module struct {
	Name      string
	Functions []*Function
	Exports   []string
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddFunction registers fn at the next function index.
// Function names are unique within a module.
func (m *Module) AddFunction(fn *Function) error {
	if fn == nil {
		return fmt.Errorf("module %s: nil function", m.Name)
	}
	if m.Lookup(fn.Name) != nil {
		return fmt.Errorf("module %s: duplicate function %q", m.Name, fn.Name)
	}
	m.Functions = append(m.Functions, fn)
	return nil
}

// Lookup returns the named function, or nil.
func (m *Module) Lookup(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Export marks functions as visible to importers.
func (m *Module) Export(names ...string) {
	for _, n := range names {
		if !m.isExported(n) {
			m.Exports = append(m.Exports, n)
		}
	}
}

func (m *Module) isExported(name string) bool {
	for _, e := range m.Exports {
		if e == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the module. Instruction values are immutable
// so only the slices are copied.
func (m *Module) Clone() *Module {
	c := &Module{Name: m.Name, Exports: append([]string(nil), m.Exports...)}
	for _, fn := range m.Functions {
		c.Functions = append(c.Functions, fn.Clone())
	}
	return c
}

// Var is a parameter or local declaration. Type is optional.
type Var struct {
	Name string
	Type string
}

// Function is a single IR function.
type Function struct {
	Name   string
	Params []Var
	Locals []Var
	Body   []Instr
}

// Clone returns a copy of fn that shares no slices with it.
func (fn *Function) Clone() *Function {
	return &Function{
		Name:   fn.Name,
		Params: append([]Var(nil), fn.Params...),
		Locals: append([]Var(nil), fn.Locals...),
		Body:   append([]Instr(nil), fn.Body...),
	}
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinOp is a binary operator.
type BinOp uint8

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
)

var binOpNames = [...]string{
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Mod: "mod",
	Eq: "eq", Ne: "ne", Lt: "lt", Le: "le", Gt: "gt", Ge: "ge",
	And: "and", Or: "or",
}

func (op BinOp) String() string {
	if int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return fmt.Sprintf("binop(%d)", uint8(op))
}

// IsComparison reports whether op produces a Bool from two operands.
func (op BinOp) IsComparison() bool {
	return op >= Eq && op <= Ge
}

// UnOp is a unary operator.
type UnOp uint8

const (
	Neg UnOp = iota
	Not
)

func (op UnOp) String() string {
	switch op {
	case Neg:
		return "neg"
	case Not:
		return "not"
	}
	return fmt.Sprintf("unop(%d)", uint8(op))
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instr is implemented by every IR instruction type.
type Instr interface {
	instr() // marker method
}

// LoadConst pushes an immediate value.
type LoadConst struct{ Value bytecode.Value }

// LoadVar pushes a parameter or local.
type LoadVar struct{ Name string }

// StoreVar pops into a parameter or local.
type StoreVar struct{ Name string }

// AssignVar evaluates Inner, which must push one value, and stores it.
type AssignVar struct {
	Name  string
	Inner Instr
}

// DeclareVar documents a local in the body. Slots are reserved from
// Function.Locals, so it produces no code.
type DeclareVar struct {
	Name string
	Type string
}

// BinaryOp pops two operands and pushes the result.
type BinaryOp struct{ Op BinOp }

// UnaryOp pops one operand and pushes the result.
type UnaryOp struct{ Op UnOp }

// Call invokes a function of the same module with Argc stacked arguments.
type Call struct {
	Function string
	Argc     int
}

// Return pops the result and leaves the function.
type Return struct{}

// Jump branches unconditionally.
type Jump struct{ Label string }

// JumpIf pops a Bool and branches when it is false.
type JumpIf struct{ Label string }

// Label defines a branch target at its position in the body.
type Label struct{ Name string }

// CreateArray pushes a new array. Size is an initial capacity.
type CreateArray struct {
	ElemType string
	Size     int
}

// ArrayAccess pops array and index, pushes the element.
type ArrayAccess struct{}

// ArrayStore pops array, index and value.
type ArrayStore struct{}

// CreateObject pushes a new instance of Class.
type CreateObject struct{ Class string }

// PropertyAccess pops an object and pushes its Name field.
type PropertyAccess struct{ Name string }

// PropertyStore pops an object and a value and sets the Name field.
type PropertyStore struct{ Name string }

func (LoadConst) instr()      {}
func (LoadVar) instr()        {}
func (StoreVar) instr()       {}
func (AssignVar) instr()      {}
func (DeclareVar) instr()     {}
func (BinaryOp) instr()       {}
func (UnaryOp) instr()        {}
func (Call) instr()           {}
func (Return) instr()         {}
func (Jump) instr()           {}
func (JumpIf) instr()         {}
func (Label) instr()          {}
func (CreateArray) instr()    {}
func (ArrayAccess) instr()    {}
func (ArrayStore) instr()     {}
func (CreateObject) instr()   {}
func (PropertyAccess) instr() {}
func (PropertyStore) instr()  {}

// StackEffect returns how many operands in pops and how many values it
// pushes.
func StackEffect(in Instr) (pop, push int) {
	switch in := in.(type) {
	case LoadConst, LoadVar, CreateArray, CreateObject:
		return 0, 1
	case StoreVar, Return, JumpIf:
		return 1, 0
	case AssignVar:
		p, _ := StackEffect(in.Inner)
		return p, 0
	case BinaryOp, ArrayAccess:
		return 2, 1
	case UnaryOp, PropertyAccess:
		return 1, 1
	case Call:
		return in.Argc, 1
	case ArrayStore:
		return 3, 0
	case PropertyStore:
		return 2, 0
	}
	return 0, 0
}

package bytecode

import (
	"errors"
	"fmt"
)

// FormatVersion is the current program format version.
// Increment when making incompatible changes to the format.
const FormatVersion uint16 = 1

// Magic bytes for program files: "VELA".
var Magic = []byte{'V', 'E', 'L', 'A'}

// Pool and frame limits imposed by operand widths.
const (
	MaxConstants = 1 << 16 // u16 pool index
	MaxLocals    = 1 << 8  // u8 local slot
	MaxFunctions = 1 << 8  // u8 call operand
)

// ErrPoolOverflow is returned when interning would exceed MaxConstants.
var ErrPoolOverflow = errors.New("constant pool overflow")

// ConstantPool holds unique values in first-reference order.
type ConstantPool struct {
	values []Value
	index  map[valueKey]uint16
}

// NewConstantPool creates an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{index: make(map[valueKey]uint16)}
}

// Intern returns the index of a value structurally equal to v, appending v
// if no such entry exists.
func (p *ConstantPool) Intern(v Value) (uint16, error) {
	k := v.key()
	if idx, ok := p.index[k]; ok {
		return idx, nil
	}
	if len(p.values) >= MaxConstants {
		return 0, fmt.Errorf("%w: more than %d entries", ErrPoolOverflow, MaxConstants)
	}
	idx := uint16(len(p.values))
	p.values = append(p.values, v)
	p.index[k] = idx
	return idx, nil
}

// Get returns the constant at the given index.
// Panics if the index is out of bounds.
func (p *ConstantPool) Get(index uint16) Value {
	return p.values[index]
}

// Len returns the number of constants in the pool.
func (p *ConstantPool) Len() int {
	return len(p.values)
}

// Values returns the pool contents in index order.
func (p *ConstantPool) Values() []Value {
	out := make([]Value, len(p.values))
	copy(out, p.values)
	return out
}

// Function is the compiled form of one IR function.
// Parameters occupy slots [0, ParamCount); declared locals occupy
// [ParamCount, ParamCount+LocalCount).
type Function struct {
	Name       string
	Code       []byte
	LocalCount uint16
	ParamCount uint16
}

// SlotCount returns the number of local slots a frame needs.
func (f *Function) SlotCount() int {
	return int(f.ParamCount) + int(f.LocalCount)
}

// Program is the unit produced by the emitter and consumed by the VM.
// Function order defines the function indices used by OpCall.
type Program struct {
	Functions []*Function
	Constants []Value
	Symbols   []string
}

// FunctionIndex returns the index of the named function, or -1.
func (p *Program) FunctionIndex(name string) int {
	for i, fn := range p.Functions {
		if fn.Name == name {
			return i
		}
	}
	return -1
}

// Function returns the named function, or nil.
func (p *Program) Function(name string) *Function {
	if i := p.FunctionIndex(name); i >= 0 {
		return p.Functions[i]
	}
	return nil
}

// Verify checks the structural invariants a loader relies on: at least one
// function, unique pool entries, every operand in range, and every jump
// landing on an instruction boundary of its own function.
func (p *Program) Verify() error {
	if len(p.Functions) == 0 {
		return errors.New("program contains no functions")
	}
	if len(p.Functions) > MaxFunctions {
		return fmt.Errorf("program has %d functions, max %d", len(p.Functions), MaxFunctions)
	}
	if len(p.Constants) > MaxConstants {
		return fmt.Errorf("%w: %d entries", ErrPoolOverflow, len(p.Constants))
	}
	seen := make(map[valueKey]int, len(p.Constants))
	for i, v := range p.Constants {
		if j, dup := seen[v.key()]; dup {
			return fmt.Errorf("constants %d and %d are equal (%s)", j, i, v)
		}
		seen[v.key()] = i
	}
	for _, fn := range p.Functions {
		if err := p.verifyFunction(fn); err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	return nil
}

func (p *Program) verifyFunction(fn *Function) error {
	if fn.SlotCount() > MaxLocals {
		return fmt.Errorf("%d local slots, max %d", fn.SlotCount(), MaxLocals)
	}
	starts := make(map[int]bool)
	var jumps []Instruction
	err := Walk(fn.Code, func(ins Instruction) error {
		starts[ins.Offset] = true
		switch {
		case ins.Op.UsesConstant():
			if int(ins.Operand) >= len(p.Constants) {
				return fmt.Errorf("offset %d: constant index %d out of range", ins.Offset, ins.Operand)
			}
		case ins.Op == OpLoadLocal || ins.Op == OpStoreLocal:
			if int(ins.Operand) >= fn.SlotCount() {
				return fmt.Errorf("offset %d: slot %d out of range", ins.Offset, ins.Operand)
			}
		case ins.Op == OpCall:
			if int(ins.Operand) >= len(p.Functions) {
				return fmt.Errorf("offset %d: function index %d out of range", ins.Offset, ins.Operand)
			}
		case ins.Op.IsJump():
			if ins.Target < 0 || ins.Target >= len(fn.Code) {
				return fmt.Errorf("offset %d: jump target %d outside [0, %d)", ins.Offset, ins.Target, len(fn.Code))
			}
			jumps = append(jumps, ins)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Targets are checked once every instruction boundary is known.
	for _, ins := range jumps {
		if !starts[ins.Target] {
			return fmt.Errorf("offset %d: jump target %d is inside an instruction", ins.Offset, ins.Target)
		}
	}
	return nil
}

package vm

import "fmt"

// FaultKind classifies runtime errors.
type FaultKind int

const (
	DivisionByZero FaultKind = iota + 1
	TypeMismatch
	IndexOutOfRange
	StackUnderflow
	StackOverflow
	ArityMismatch
	UnknownFunction
	InvalidOpcode
)

func (k FaultKind) String() string {
	switch k {
	case DivisionByZero:
		return "DivisionByZero"
	case TypeMismatch:
		return "TypeMismatch"
	case IndexOutOfRange:
		return "IndexOutOfRange"
	case StackUnderflow:
		return "StackUnderflow"
	case StackOverflow:
		return "StackOverflow"
	case ArityMismatch:
		return "ArityMismatch"
	case UnknownFunction:
		return "UnknownFunction"
	case InvalidOpcode:
		return "InvalidOpcode"
	}
	return fmt.Sprintf("FaultKind(%d)", int(k))
}

// Fault is a runtime error raised while executing a program.
type Fault struct {
	Kind     FaultKind
	Function string
	Offset   int
	Message  string
}

func (f *Fault) Error() string {
	if f.Function == "" {
		return fmt.Sprintf("vm: %s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("vm: %s in %s at %04X: %s", f.Kind, f.Function, f.Offset, f.Message)
}

// Is matches another *Fault of the same kind.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind
}

package compiler

import "fmt"

// ErrorKind classifies emitter failures.
type ErrorKind int

const (
	UndefinedVariable ErrorKind = iota + 1
	UndefinedFunction
	UndefinedLabel
	TooManyLocals
	ConstantPoolOverflow
	JumpOutOfRange
	DuplicateLabel
	OperandOverflow
	InvalidInstruction
	DuplicateFunction
)

var errorKindNames = map[ErrorKind]string{
	UndefinedVariable:    "UndefinedVariable",
	UndefinedFunction:    "UndefinedFunction",
	UndefinedLabel:       "UndefinedLabel",
	TooManyLocals:        "TooManyLocals",
	ConstantPoolOverflow: "ConstantPoolOverflow",
	JumpOutOfRange:       "JumpOutOfRange",
	DuplicateLabel:       "DuplicateLabel",
	OperandOverflow:      "OperandOverflow",
	InvalidInstruction:   "InvalidInstruction",
	DuplicateFunction:    "DuplicateFunction",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// EmitError is returned when a module cannot be lowered to bytecode.
// No partial program accompanies it.
type EmitError struct {
	Component string // always "emit"
	Kind      ErrorKind
	Function  string // function being emitted, empty for module-level errors
	Name      string // offending variable, function or label
	Message   string
}

func (e *EmitError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s in %s: %s", e.Component, e.Kind, e.Function, e.Message)
}

// Is reports whether target is an *EmitError of the same kind, so callers
// can match with errors.Is(err, &EmitError{Kind: UndefinedLabel}).
func (e *EmitError) Is(target error) bool {
	t, ok := target.(*EmitError)
	return ok && t.Kind == e.Kind
}

func newEmitError(kind ErrorKind, fn, name, format string, args ...any) *EmitError {
	return &EmitError{
		Component: "emit",
		Kind:      kind,
		Function:  fn,
		Name:      name,
		Message:   fmt.Sprintf(format, args...),
	}
}

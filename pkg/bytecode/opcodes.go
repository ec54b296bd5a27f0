package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation
	OpPop Opcode = 0x01 // Pop top of stack

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpLoadConst Opcode = 0x10 // Push constant from pool: OpLoadConst <index:u16>

	// ========================================================================
	// Local variables (0x20-0x2F)
	// ========================================================================

	OpLoadLocal  Opcode = 0x20 // Push local variable: OpLoadLocal <slot:u8>
	OpStoreLocal Opcode = 0x21 // Pop and store to local: OpStoreLocal <slot:u8>

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push sum
	OpSub Opcode = 0x51 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x52 // Pop two, push product
	OpDiv Opcode = 0x53 // Pop two, push quotient
	OpMod Opcode = 0x54 // Pop two, push remainder
	OpNeg Opcode = 0x55 // Negate top of stack

	// ========================================================================
	// Comparison (0x60-0x67)
	// ========================================================================

	OpEq Opcode = 0x60 // Pop two, push Bool a == b
	OpNe Opcode = 0x61 // Pop two, push Bool a != b
	OpLt Opcode = 0x62 // Pop two, push Bool a < b
	OpLe Opcode = 0x63 // Pop two, push Bool a <= b
	OpGt Opcode = 0x64 // Pop two, push Bool a > b
	OpGe Opcode = 0x65 // Pop two, push Bool a >= b

	// ========================================================================
	// Logical operations (0x68-0x6F)
	// ========================================================================

	OpNot Opcode = 0x68 // Logical NOT of a Bool
	OpAnd Opcode = 0x69 // Logical AND (both operands already evaluated)
	OpOr  Opcode = 0x6A // Logical OR

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJump   Opcode = 0x80 // Unconditional jump: OpJump <offset:i16>
	OpJumpIf Opcode = 0x81 // Pop Bool, jump when false: OpJumpIf <offset:i16>

	// ========================================================================
	// Calls (0x90-0x9F)
	// ========================================================================

	OpCall Opcode = 0x90 // Call function: OpCall <function:u8> <argc:u8>

	// ========================================================================
	// Array operations (0xB0-0xB7)
	// ========================================================================

	OpNewArray   Opcode = 0xB0 // Push new array: OpNewArray <capacity:u8>
	OpLoadArray  Opcode = 0xB1 // array index -> element
	OpStoreArray Opcode = 0xB2 // array index value -> (nothing)

	// ========================================================================
	// Object operations (0xB8-0xBF)
	// ========================================================================

	OpNewObject  Opcode = 0xB8 // Push new object: OpNewObject <class:u16>
	OpLoadField  Opcode = 0xB9 // object -> field: OpLoadField <name:u16>
	OpStoreField Opcode = 0xBA // object value -> (nothing): OpStoreField <name:u16>

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn Opcode = 0xF0 // Return top of stack
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop: {"NOP", 0, 0, 0},
	OpPop: {"POP", 1, 0, 0},

	// Constants
	OpLoadConst: {"LOAD_CONST", 0, 1, 2},

	// Local variables
	OpLoadLocal:  {"LOAD_LOCAL", 0, 1, 1},
	OpStoreLocal: {"STORE_LOCAL", 1, 0, 1},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, 0},
	OpSub: {"SUB", 2, 1, 0},
	OpMul: {"MUL", 2, 1, 0},
	OpDiv: {"DIV", 2, 1, 0},
	OpMod: {"MOD", 2, 1, 0},
	OpNeg: {"NEG", 1, 1, 0},

	// Comparison
	OpEq: {"EQ", 2, 1, 0},
	OpNe: {"NE", 2, 1, 0},
	OpLt: {"LT", 2, 1, 0},
	OpLe: {"LE", 2, 1, 0},
	OpGt: {"GT", 2, 1, 0},
	OpGe: {"GE", 2, 1, 0},

	// Logical
	OpNot: {"NOT", 1, 1, 0},
	OpAnd: {"AND", 2, 1, 0},
	OpOr:  {"OR", 2, 1, 0},

	// Control flow
	OpJump:   {"JUMP", 0, 0, 2},
	OpJumpIf: {"JUMP_IF", 1, 0, 2},

	// Calls
	OpCall: {"CALL", -1, 1, 2}, // Pops argc args

	// Arrays
	OpNewArray:   {"NEW_ARRAY", 0, 1, 1},
	OpLoadArray:  {"LOAD_ARRAY", 2, 1, 0},
	OpStoreArray: {"STORE_ARRAY", 3, 0, 0},

	// Objects
	OpNewObject:  {"NEW_OBJECT", 0, 1, 2},
	OpLoadField:  {"LOAD_FIELD", 1, 1, 2},
	OpStoreField: {"STORE_FIELD", 2, 0, 2},

	// Return
	OpReturn: {"RETURN", 1, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIf
}

// IsReturn returns true if this opcode terminates execution of a frame.
func (op Opcode) IsReturn() bool {
	return op == OpReturn
}

// UsesConstant returns true if the u16 operand of op indexes the constant pool.
func (op Opcode) UsesConstant() bool {
	switch op {
	case OpLoadConst, OpNewObject, OpLoadField, OpStoreField:
		return true
	}
	return false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

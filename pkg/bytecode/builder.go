package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrJumpOutOfRange is returned when a jump target does not fit in an i16.
var ErrJumpOutOfRange = errors.New("jump offset out of range")

// jumpPlaceholder fills jump operands until they are patched.
const jumpPlaceholder = 0xFF

// Builder accumulates the code section of a single function.
type Builder struct {
	code []byte
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{code: make([]byte, 0, 64)}
}

// Emit appends a single-byte opcode to the code section.
func (b *Builder) Emit(op Opcode) int {
	offset := len(b.code)
	b.code = append(b.code, byte(op))
	return offset
}

// EmitU8 appends an opcode with a one-byte operand.
func (b *Builder) EmitU8(op Opcode, operand uint8) int {
	offset := len(b.code)
	b.code = append(b.code, byte(op), operand)
	return offset
}

// EmitU16 appends an opcode with a big-endian two-byte operand.
func (b *Builder) EmitU16(op Opcode, operand uint16) int {
	offset := len(b.code)
	b.code = append(b.code, byte(op))
	b.code = binary.BigEndian.AppendUint16(b.code, operand)
	return offset
}

// EmitCall appends OpCall <function:u8> <argc:u8>.
func (b *Builder) EmitCall(function, argc uint8) int {
	offset := len(b.code)
	b.code = append(b.code, byte(OpCall), function, argc)
	return offset
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (b *Builder) EmitJump(op Opcode) int {
	offset := len(b.code)
	b.code = append(b.code, byte(op), jumpPlaceholder, jumpPlaceholder)
	return offset + 1
}

// PatchJump patches the placeholder at placeholderOffset so that the jump
// lands on target. The offset is relative to the end of the instruction.
func (b *Builder) PatchJump(placeholderOffset, target int) error {
	jumpFrom := placeholderOffset + 2
	delta := target - jumpFrom
	if delta < math.MinInt16 || delta > math.MaxInt16 {
		return fmt.Errorf("%w: %d bytes from offset %d", ErrJumpOutOfRange, delta, placeholderOffset-1)
	}
	binary.BigEndian.PutUint16(b.code[placeholderOffset:], uint16(int16(delta)))
	return nil
}

// Offset returns the current offset in the code section.
func (b *Builder) Offset() int {
	return len(b.code)
}

// Bytes returns the code section. The slice aliases the builder's buffer.
func (b *Builder) Bytes() []byte {
	return b.code
}

// Instruction is one decoded instruction.
type Instruction struct {
	Op      Opcode
	Offset  int    // Offset of the opcode byte
	Operand uint16 // u8 or u16 operand; function index for OpCall
	Argc    uint8  // OpCall argument count
	Jump    int16  // Relative offset for jumps
	Target  int    // Absolute target for jumps
}

// Len returns the encoded length of the instruction.
func (ins Instruction) Len() int {
	return ins.Op.InstructionLen()
}

// DecodeInstruction decodes the instruction at offset.
func DecodeInstruction(code []byte, offset int) (Instruction, error) {
	if offset < 0 || offset >= len(code) {
		return Instruction{}, fmt.Errorf("offset %d outside code of length %d", offset, len(code))
	}
	op := Opcode(code[offset])
	if !op.IsValid() {
		return Instruction{}, fmt.Errorf("offset %d: unknown opcode 0x%02X", offset, byte(op))
	}
	ins := Instruction{Op: op, Offset: offset}
	end := offset + op.InstructionLen()
	if end > len(code) {
		return Instruction{}, fmt.Errorf("offset %d: truncated %s", offset, op)
	}
	switch {
	case op.IsJump():
		ins.Jump = int16(binary.BigEndian.Uint16(code[offset+1:]))
		ins.Target = end + int(ins.Jump)
	case op == OpCall:
		ins.Operand = uint16(code[offset+1])
		ins.Argc = code[offset+2]
	case op.OperandLen() == 2:
		ins.Operand = binary.BigEndian.Uint16(code[offset+1:])
	case op.OperandLen() == 1:
		ins.Operand = uint16(code[offset+1])
	}
	return ins, nil
}

// Walk decodes every instruction in code in order, stopping at the first
// decoding error or the first error returned by fn.
func Walk(code []byte, fn func(Instruction) error) error {
	for offset := 0; offset < len(code); {
		ins, err := DecodeInstruction(code, offset)
		if err != nil {
			return err
		}
		if err := fn(ins); err != nil {
			return err
		}
		offset += ins.Len()
	}
	return nil
}

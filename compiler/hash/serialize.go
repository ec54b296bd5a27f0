package hash

import (
	"encoding/binary"
	"math"

	"github.com/chazu/velac/pkg/bytecode"
	"github.com/chazu/velac/pkg/ir"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of an IR module.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int64=8B, uint32=4B, uint16=2B)
//   - Floats: IEEE 754 bits, big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Lists: uint32 count followed by the elements
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of m suitable for
// hashing with SHA-256. The module name is not included.
func Serialize(m *ir.Module) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeModule(m)
	return s.buf
}

type serializer struct {
	buf   []byte
	scope *scope
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeUint16(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeInt64(v int64) {
	s.buf = binary.BigEndian.AppendUint64(s.buf, uint64(v))
}

func (s *serializer) writeFloat64(v float64) {
	s.buf = binary.BigEndian.AppendUint64(s.buf, math.Float64bits(v))
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeCount(n int) {
	s.writeUint32(uint32(n))
}

func (s *serializer) serializeModule(m *ir.Module) {
	s.writeByte(TagModule)
	s.writeCount(len(m.Functions))
	for _, fn := range m.Functions {
		s.serializeFunction(fn)
	}
	s.writeByte(TagExports)
	s.writeCount(len(m.Exports))
	for _, e := range m.Exports {
		s.writeString(e)
	}
}

func (s *serializer) serializeFunction(fn *ir.Function) {
	s.writeByte(TagFunction)
	if fn == nil {
		s.writeByte(TagNilInstr)
		return
	}
	s.writeString(fn.Name)
	s.writeUint16(uint16(len(fn.Params)))
	s.writeUint16(uint16(len(fn.Locals)))

	s.scope = newScope(fn)
	s.writeCount(len(fn.Body))
	for _, in := range fn.Body {
		s.serializeInstr(in)
	}
	s.scope = nil
}

func (s *serializer) serializeValue(v bytecode.Value) {
	switch v.Kind() {
	case bytecode.KindBool:
		b, _ := v.AsBool()
		s.writeByte(TagBool)
		s.writeBool(b)
	case bytecode.KindInt:
		i, _ := v.AsInt()
		s.writeByte(TagInt)
		s.writeInt64(i)
	case bytecode.KindFloat:
		f, _ := v.AsFloat()
		s.writeByte(TagFloat)
		s.writeFloat64(f)
	case bytecode.KindString:
		str, _ := v.AsString()
		s.writeByte(TagString)
		s.writeString(str)
	default:
		s.writeByte(TagNull)
	}
}

// writeVar encodes a variable reference by slot, or by name when the
// function declares no such variable.
func (s *serializer) writeVar(name string) {
	if slot, ok := s.scope.slot(name); ok {
		s.writeUint16(slot)
		return
	}
	s.writeUint16(math.MaxUint16)
	s.writeByte(TagUnboundVarName)
	s.writeString(name)
}

func (s *serializer) serializeInstr(in ir.Instr) {
	switch in := in.(type) {
	case ir.LoadConst:
		s.writeByte(TagLoadConst)
		s.serializeValue(in.Value)

	case ir.LoadVar:
		s.writeByte(TagLoadVar)
		s.writeVar(in.Name)

	case ir.StoreVar:
		s.writeByte(TagStoreVar)
		s.writeVar(in.Name)

	case ir.AssignVar:
		s.writeByte(TagAssignVar)
		s.writeVar(in.Name)
		s.serializeInstr(in.Inner)

	case ir.DeclareVar:
		s.writeByte(TagDeclareVar)
		s.writeVar(in.Name)

	case ir.BinaryOp:
		s.writeByte(TagBinaryOp)
		s.writeByte(byte(in.Op))

	case ir.UnaryOp:
		s.writeByte(TagUnaryOp)
		s.writeByte(byte(in.Op))

	case ir.Call:
		s.writeByte(TagCall)
		s.writeString(in.Function)
		s.writeInt64(int64(in.Argc))

	case ir.Return:
		s.writeByte(TagReturn)

	case ir.Jump:
		s.writeByte(TagJump)
		s.writeUint32(s.scope.label(in.Label))

	case ir.JumpIf:
		s.writeByte(TagJumpIf)
		s.writeUint32(s.scope.label(in.Label))

	case ir.Label:
		s.writeByte(TagLabel)
		s.writeUint32(s.scope.label(in.Name))

	case ir.CreateArray:
		// The element type is advisory and never emitted.
		s.writeByte(TagCreateArray)
		s.writeInt64(int64(in.Size))

	case ir.ArrayAccess:
		s.writeByte(TagArrayAccess)

	case ir.ArrayStore:
		s.writeByte(TagArrayStore)

	case ir.CreateObject:
		s.writeByte(TagCreateObject)
		s.writeString(in.Class)

	case ir.PropertyAccess:
		s.writeByte(TagPropertyAccess)
		s.writeString(in.Name)

	case ir.PropertyStore:
		s.writeByte(TagPropertyStore)
		s.writeString(in.Name)

	default:
		s.writeByte(TagNilInstr)
	}
}

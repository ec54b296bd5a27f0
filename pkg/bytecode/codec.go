package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"fortio.org/safecast"
)

// Encode serializes the program to the binary form.
// All integers are little-endian; code bytes are copied verbatim.
// Format:
//
//	[magic:4] [version:2] [func_count:2]
//	per function: [name_len:2] [name] [locals:2] [params:2] [code_len:4] [code]
//	[const_count:2] per constant: [tag:1] [payload]
//	[symbol_count:2] per symbol: [name_len:2] [name]
func (p *Program) Encode() ([]byte, error) {
	// Estimate size: header + code + constants + symbols
	estimatedSize := 8 + len(p.Constants)*16 + len(p.Symbols)*16
	for _, fn := range p.Functions {
		estimatedSize += 12 + len(fn.Name) + len(fn.Code)
	}
	buf := make([]byte, 0, estimatedSize)

	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint16(buf, FormatVersion)

	funcCount, err := safecast.Conv[uint16](len(p.Functions))
	if err != nil {
		return nil, fmt.Errorf("function count %d: %w", len(p.Functions), err)
	}
	buf = binary.LittleEndian.AppendUint16(buf, funcCount)

	for _, fn := range p.Functions {
		if buf, err = appendString16(buf, fn.Name); err != nil {
			return nil, fmt.Errorf("function name: %w", err)
		}
		buf = binary.LittleEndian.AppendUint16(buf, fn.LocalCount)
		buf = binary.LittleEndian.AppendUint16(buf, fn.ParamCount)
		codeLen, err := safecast.Conv[uint32](len(fn.Code))
		if err != nil {
			return nil, fmt.Errorf("function %s code length: %w", fn.Name, err)
		}
		buf = binary.LittleEndian.AppendUint32(buf, codeLen)
		buf = append(buf, fn.Code...)
	}

	constCount, err := safecast.Conv[uint16](len(p.Constants))
	if err != nil {
		return nil, fmt.Errorf("constant count %d does not fit the binary form: %w", len(p.Constants), err)
	}
	buf = binary.LittleEndian.AppendUint16(buf, constCount)
	for _, v := range p.Constants {
		buf = append(buf, byte(v.kind))
		switch v.kind {
		case KindNull:
		case KindBool:
			if v.b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case KindInt:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v.i))
		case KindFloat:
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.f))
		case KindString:
			n, err := safecast.Conv[uint32](len(v.s))
			if err != nil {
				return nil, fmt.Errorf("string constant length: %w", err)
			}
			buf = binary.LittleEndian.AppendUint32(buf, n)
			buf = append(buf, v.s...)
		default:
			return nil, fmt.Errorf("unknown value kind %d", v.kind)
		}
	}

	symCount, err := safecast.Conv[uint16](len(p.Symbols))
	if err != nil {
		return nil, fmt.Errorf("symbol count %d: %w", len(p.Symbols), err)
	}
	buf = binary.LittleEndian.AppendUint16(buf, symCount)
	for _, s := range p.Symbols {
		if buf, err = appendString16(buf, s); err != nil {
			return nil, fmt.Errorf("symbol: %w", err)
		}
	}

	return buf, nil
}

func appendString16(buf []byte, s string) ([]byte, error) {
	n, err := safecast.Conv[uint16](len(s))
	if err != nil {
		return buf, err
	}
	buf = binary.LittleEndian.AppendUint16(buf, n)
	return append(buf, s...), nil
}

// IsBinary reports whether data starts with the binary-form magic.
func IsBinary(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic)
}

// Decode parses a program from the binary form.
func Decode(data []byte) (*Program, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("bytecode too short: need at least 8 bytes, got %d", len(data))
	}
	if !IsBinary(data) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", Magic, data[0:4])
	}

	r := &reader{data: data, pos: 4}
	version := r.u16("version")
	if r.err == nil && version > FormatVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", version, FormatVersion)
	}

	p := &Program{}
	funcCount := int(r.u16("function count"))
	for i := 0; i < funcCount && r.err == nil; i++ {
		fn := &Function{}
		fn.Name = string(r.bytes(int(r.u16("function name length")), "function name"))
		fn.LocalCount = r.u16("local count")
		fn.ParamCount = r.u16("param count")
		code := r.bytes(int(r.u32("code length")), "code")
		fn.Code = append([]byte(nil), code...)
		p.Functions = append(p.Functions, fn)
	}

	constCount := int(r.u16("constant count"))
	for i := 0; i < constCount && r.err == nil; i++ {
		var v Value
		switch ValueKind(r.u8("constant tag")) {
		case KindNull:
			v = Null()
		case KindBool:
			v = Bool(r.u8("bool constant") != 0)
		case KindInt:
			v = Int(int64(r.u64("int constant")))
		case KindFloat:
			v = Float(math.Float64frombits(r.u64("float constant")))
		case KindString:
			v = String(string(r.bytes(int(r.u32("string length")), "string constant")))
		default:
			if r.err == nil {
				return nil, fmt.Errorf("constant %d: unknown tag 0x%02X", i, data[r.pos-1])
			}
		}
		p.Constants = append(p.Constants, v)
	}

	symCount := int(r.u16("symbol count"))
	for i := 0; i < symCount && r.err == nil; i++ {
		p.Symbols = append(p.Symbols, string(r.bytes(int(r.u16("symbol length")), "symbol")))
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after symbol table", len(data)-r.pos)
	}
	return p, nil
}

// reader tracks a position in a byte slice and records the first short read.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("unexpected end of bytecode reading %s at pos %d", what, r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8(what string) uint8 {
	if b := r.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16(what string) uint16 {
	if b := r.take(2, what); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32(what string) uint32 {
	if b := r.take(4, what); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64(what string) uint64 {
	if b := r.take(8, what); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) bytes(n int, what string) []byte {
	return r.take(n, what)
}

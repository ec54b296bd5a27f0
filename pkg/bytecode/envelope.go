package bytecode

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Format names a serialized program form.
type Format string

const (
	FormatBinary  Format = "binary"
	FormatCBOR    Format = "cbor"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatBinary, FormatCBOR, FormatMsgpack:
		return f, nil
	case "":
		return FormatBinary, nil
	}
	return "", fmt.Errorf("unknown program format %q (want binary, cbor or msgpack)", s)
}

// envelope is the self-describing representation of a Program.
type envelope struct {
	Magic     string          `cbor:"magic" msgpack:"magic"`
	Version   uint16          `cbor:"version" msgpack:"version"`
	Functions []envelopeFunc  `cbor:"functions" msgpack:"functions"`
	Constants []envelopeValue `cbor:"constants" msgpack:"constants"`
	Symbols   []string        `cbor:"symbols,omitempty" msgpack:"symbols,omitempty"`
}

type envelopeFunc struct {
	Name   string `cbor:"name" msgpack:"name"`
	Locals uint16 `cbor:"locals" msgpack:"locals"`
	Params uint16 `cbor:"params" msgpack:"params"`
	Code   []byte `cbor:"code" msgpack:"code"`
}

type envelopeValue struct {
	Kind  ValueKind `cbor:"k" msgpack:"k"`
	Bool  bool      `cbor:"b,omitempty" msgpack:"b,omitempty"`
	Int   int64     `cbor:"i,omitempty" msgpack:"i,omitempty"`
	Bits  uint64    `cbor:"f,omitempty" msgpack:"f,omitempty"` // float64 bits, keeps NaN payloads
	Str   string    `cbor:"s,omitempty" msgpack:"s,omitempty"`
}

// cborEncMode uses canonical encoding so identical programs produce
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

func (p *Program) toEnvelope() *envelope {
	env := &envelope{
		Magic:     string(Magic),
		Version:   FormatVersion,
		Functions: make([]envelopeFunc, len(p.Functions)),
		Constants: make([]envelopeValue, len(p.Constants)),
		Symbols:   p.Symbols,
	}
	for i, fn := range p.Functions {
		env.Functions[i] = envelopeFunc{Name: fn.Name, Locals: fn.LocalCount, Params: fn.ParamCount, Code: fn.Code}
	}
	for i, v := range p.Constants {
		env.Constants[i] = envelopeValue{Kind: v.kind, Bool: v.b, Int: v.i, Bits: math.Float64bits(v.f), Str: v.s}
	}
	return env
}

func (env *envelope) toProgram() (*Program, error) {
	if env.Magic != string(Magic) {
		return nil, fmt.Errorf("invalid envelope magic %q", env.Magic)
	}
	if env.Version > FormatVersion {
		return nil, fmt.Errorf("envelope version %d is newer than supported version %d", env.Version, FormatVersion)
	}
	p := &Program{Symbols: env.Symbols}
	for _, f := range env.Functions {
		p.Functions = append(p.Functions, &Function{Name: f.Name, LocalCount: f.Locals, ParamCount: f.Params, Code: f.Code})
	}
	for i, ev := range env.Constants {
		var v Value
		switch ev.Kind {
		case KindNull:
			v = Null()
		case KindBool:
			v = Bool(ev.Bool)
		case KindInt:
			v = Int(ev.Int)
		case KindFloat:
			v = Float(math.Float64frombits(ev.Bits))
		case KindString:
			v = String(ev.Str)
		default:
			return nil, fmt.Errorf("constant %d: unknown kind %d", i, ev.Kind)
		}
		p.Constants = append(p.Constants, v)
	}
	return p, nil
}

// MarshalCBOR serializes the program to a canonical CBOR envelope.
func (p *Program) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(p.toEnvelope())
}

// UnmarshalCBOR deserializes a program from a CBOR envelope.
func UnmarshalCBOR(data []byte) (*Program, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal cbor: %w", err)
	}
	return env.toProgram()
}

// MarshalMsgpack serializes the program to a MessagePack envelope.
func (p *Program) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(p.toEnvelope())
}

// UnmarshalMsgpack deserializes a program from a MessagePack envelope.
func UnmarshalMsgpack(data []byte) (*Program, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal msgpack: %w", err)
	}
	return env.toProgram()
}

// Marshal serializes the program in the requested format.
func (p *Program) Marshal(f Format) ([]byte, error) {
	switch f {
	case FormatBinary, "":
		return p.Encode()
	case FormatCBOR:
		return p.MarshalCBOR()
	case FormatMsgpack:
		return p.MarshalMsgpack()
	}
	return nil, fmt.Errorf("unknown program format %q", f)
}

// DecodeAny detects the serialized form and decodes it.
// The binary form is recognised by its magic; otherwise CBOR is tried
// before MessagePack.
func DecodeAny(data []byte) (*Program, Format, error) {
	if IsBinary(data) {
		p, err := Decode(data)
		return p, FormatBinary, err
	}
	if p, err := UnmarshalCBOR(data); err == nil {
		return p, FormatCBOR, nil
	}
	p, err := UnmarshalMsgpack(data)
	if err != nil {
		head := data
		if len(head) > 8 {
			head = head[:8]
		}
		return nil, "", fmt.Errorf("unrecognised program encoding (leading bytes % x)", head)
	}
	return p, FormatMsgpack, nil
}

package bytecode

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func richProgram(t *testing.T) *Program {
	t.Helper()
	p := sampleProgram(t)
	nan1 := math.Float64frombits(0x7FF8000000000001)
	nan2 := math.Float64frombits(0x7FF8000000000002)
	p.Constants = append(p.Constants,
		Null(), Int(-7), Float(1.25), Float(nan1), Float(nan2), Float(math.Copysign(0, -1)), String(""))
	return p
}

func assertSameProgram(t *testing.T, got, want *Program) {
	t.Helper()
	if len(got.Functions) != len(want.Functions) {
		t.Fatalf("functions = %d, want %d", len(got.Functions), len(want.Functions))
	}
	for i, fn := range want.Functions {
		g := got.Functions[i]
		if g.Name != fn.Name || g.LocalCount != fn.LocalCount || g.ParamCount != fn.ParamCount {
			t.Errorf("function %d header = %+v, want %+v", i, g, fn)
		}
		if !bytes.Equal(g.Code, fn.Code) {
			t.Errorf("function %s code = % x, want % x", fn.Name, g.Code, fn.Code)
		}
	}
	if len(got.Constants) != len(want.Constants) {
		t.Fatalf("constants = %d, want %d", len(got.Constants), len(want.Constants))
	}
	for i := range want.Constants {
		if !got.Constants[i].Equal(want.Constants[i]) {
			t.Errorf("constant %d = %s, want %s", i, got.Constants[i], want.Constants[i])
		}
	}
	if strings.Join(got.Symbols, ",") != strings.Join(want.Symbols, ",") {
		t.Errorf("symbols = %v, want %v", got.Symbols, want.Symbols)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	want := richProgram(t)
	data, err := want.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !IsBinary(data) {
		t.Fatal("encoded data does not start with magic")
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	assertSameProgram(t, got, want)
	if err := got.Verify(); err != nil {
		t.Errorf("Verify after decode: %v", err)
	}
}

func TestBinaryLayout(t *testing.T) {
	p := &Program{
		Functions: []*Function{{Name: "f", Code: []byte{byte(OpReturn)}, LocalCount: 2, ParamCount: 1}},
		Constants: []Value{Int(1)},
	}
	data, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		'V', 'E', 'L', 'A',
		0x01, 0x00, // version
		0x01, 0x00, // func count
		0x01, 0x00, 'f',
		0x02, 0x00, // locals
		0x01, 0x00, // params
		0x01, 0x00, 0x00, 0x00, // code len
		byte(OpReturn),
		0x01, 0x00, // const count
		byte(KindInt), 1, 0, 0, 0, 0, 0, 0, 0,
		0x00, 0x00, // symbol count
	}
	if !bytes.Equal(data, want) {
		t.Errorf("Encode() =\n% x\nwant\n% x", data, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	good, err := richProgram(t).Encode()
	if err != nil {
		t.Fatal(err)
	}

	newer := append([]byte(nil), good...)
	newer[4] = 0xFF

	badTag := (&Program{Functions: []*Function{{Name: "f", Code: []byte{byte(OpReturn)}}}, Constants: []Value{Null()}})
	badTagData, _ := badTag.Encode()
	// constant tag sits right after the const count
	badTagData[len(badTagData)-3] = 0x7F

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"short", []byte("VEL"), "too short"},
		{"bad magic", []byte("NOPE\x01\x00\x00\x00"), "invalid bytecode magic"},
		{"newer version", newer, "newer than supported"},
		{"truncated", good[:len(good)-3], "unexpected end"},
		{"trailing", append(append([]byte(nil), good...), 0), "trailing bytes"},
		{"unknown tag", badTagData, "unknown tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Decode() err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestEncodeFullPoolNeedsEnvelope(t *testing.T) {
	p := &Program{Functions: []*Function{{Name: "f", Code: []byte{byte(OpReturn)}}}}
	p.Constants = make([]Value, MaxConstants)
	for i := range p.Constants {
		p.Constants[i] = Int(int64(i))
	}
	if _, err := p.Encode(); err == nil {
		t.Error("Encode() of a 65536-entry pool should fail")
	}
	data, err := p.MarshalCBOR()
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	got, err := UnmarshalCBOR(data)
	if err != nil {
		t.Fatalf("UnmarshalCBOR: %v", err)
	}
	if len(got.Constants) != MaxConstants {
		t.Errorf("constants = %d, want %d", len(got.Constants), MaxConstants)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	want := richProgram(t)
	for _, f := range []Format{FormatBinary, FormatCBOR, FormatMsgpack} {
		t.Run(string(f), func(t *testing.T) {
			data, err := want.Marshal(f)
			if err != nil {
				t.Fatalf("Marshal(%s): %v", f, err)
			}
			got, detected, err := DecodeAny(data)
			if err != nil {
				t.Fatalf("DecodeAny: %v", err)
			}
			if detected != f {
				t.Errorf("detected format = %s, want %s", detected, f)
			}
			assertSameProgram(t, got, want)
		})
	}
}

func TestCBORDeterministic(t *testing.T) {
	a, err := richProgram(t).MarshalCBOR()
	if err != nil {
		t.Fatal(err)
	}
	b, err := richProgram(t).MarshalCBOR()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("canonical CBOR encoding differs between identical programs")
	}
}

func TestDecodeAnyGarbage(t *testing.T) {
	if _, _, err := DecodeAny([]byte{0xc1, 0xc1, 0xc1}); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatBinary, "binary": FormatBinary, "cbor": FormatCBOR, "msgpack": FormatMsgpack} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("json"); err == nil {
		t.Error("ParseFormat(json) should fail")
	}
}

func TestVerify(t *testing.T) {
	good := sampleProgram(t)
	if err := good.Verify(); err != nil {
		t.Fatalf("Verify(sample) = %v", err)
	}

	tests := []struct {
		name string
		p    *Program
		want string
	}{
		{"empty", &Program{}, "no functions"},
		{"duplicate constants", &Program{
			Functions: []*Function{{Name: "f", Code: []byte{byte(OpReturn)}}},
			Constants: []Value{Int(1), Int(1)},
		}, "are equal"},
		{"constant out of range", &Program{
			Functions: []*Function{{Name: "f", Code: []byte{byte(OpLoadConst), 0, 3, byte(OpReturn)}}},
			Constants: []Value{Int(1)},
		}, "constant index"},
		{"slot out of range", &Program{
			Functions: []*Function{{Name: "f", Code: []byte{byte(OpLoadLocal), 1, byte(OpReturn)}, LocalCount: 1}},
		}, "slot 1"},
		{"call out of range", &Program{
			Functions: []*Function{{Name: "f", Code: []byte{byte(OpCall), 4, 0, byte(OpReturn)}}},
		}, "function index"},
		{"jump outside", &Program{
			Functions: []*Function{{Name: "f", Code: []byte{byte(OpJump), 0x00, 0x10, byte(OpReturn)}}},
		}, "jump target"},
		{"jump into an operand", &Program{
			Functions: []*Function{{Name: "f", Code: []byte{
				byte(OpJump), 0x00, 0x01,
				byte(OpNewArray), byte(OpLoadLocal),
				byte(OpNewArray), 0xFF,
				byte(OpReturn),
			}}},
		}, "inside an instruction"},
		{"backward jump into an operand", &Program{
			Functions: []*Function{{Name: "f", Code: []byte{
				byte(OpNewArray), byte(OpReturn),
				byte(OpJump), 0xFF, 0xFC,
			}}},
		}, "inside an instruction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Verify()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Verify() = %v, want containing %q", err, tt.want)
			}
		})
	}

	overflow := &Program{Functions: []*Function{{Name: "f"}}, Constants: make([]Value, MaxConstants+1)}
	if err := overflow.Verify(); !errors.Is(err, ErrPoolOverflow) {
		t.Errorf("Verify(overflow) = %v, want ErrPoolOverflow", err)
	}
}

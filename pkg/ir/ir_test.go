package ir

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/velac/pkg/bytecode"
)

const sampleSource = `module demo
export main

# entry point
func main(a: int, b) {
  local x: int
  local s
  const int 2
  load a
  add
  store x
  const bool true
  jumpif done
  assign s const str "hi; there"   ; trailing comment
  declare s str
  call helper 1
done:
  newarray int 4
  const int 0
  aload
  new Point
  getprop x
  setprop y
  astore
  const null
  const float -1.5
  neg
  not
  ret
}

func helper(v) {
  load v
  ret
}
`

func sampleModule() *Module {
	return &Module{
		Name:    "demo",
		Exports: []string{"main"},
		Functions: []*Function{
			{
				Name:   "main",
				Params: []Var{{Name: "a", Type: "int"}, {Name: "b"}},
				Locals: []Var{{Name: "x", Type: "int"}, {Name: "s"}},
				Body: []Instr{
					LoadConst{Value: bytecode.Int(2)},
					LoadVar{Name: "a"},
					BinaryOp{Op: Add},
					StoreVar{Name: "x"},
					LoadConst{Value: bytecode.Bool(true)},
					JumpIf{Label: "done"},
					AssignVar{Name: "s", Inner: LoadConst{Value: bytecode.String("hi; there")}},
					DeclareVar{Name: "s", Type: "str"},
					Call{Function: "helper", Argc: 1},
					Label{Name: "done"},
					CreateArray{ElemType: "int", Size: 4},
					LoadConst{Value: bytecode.Int(0)},
					ArrayAccess{},
					CreateObject{Class: "Point"},
					PropertyAccess{Name: "x"},
					PropertyStore{Name: "y"},
					ArrayStore{},
					LoadConst{Value: bytecode.Null()},
					LoadConst{Value: bytecode.Float(-1.5)},
					UnaryOp{Op: Neg},
					UnaryOp{Op: Not},
					Return{},
				},
			},
			{
				Name:   "helper",
				Params: []Var{{Name: "v"}},
				Body:   []Instr{LoadVar{Name: "v"}, Return{}},
			},
		},
	}
}

func TestParse(t *testing.T) {
	got, err := Parse(sampleSource)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := sampleModule()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() =\n%s\nwant\n%s", Print(got), Print(want))
	}
}

func TestPrintParseRoundTrip(t *testing.T) {
	m := sampleModule()
	text := Print(m)
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(Print()): %v\n%s", err, text)
	}
	if !reflect.DeepEqual(got, m) {
		t.Errorf("round trip mismatch:\n%s\nvs\n%s", Print(got), text)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   Instr
		want string
	}{
		{LoadConst{Value: bytecode.Int(5)}, "const int 5"},
		{LoadConst{Value: bytecode.String("a\"b")}, `const str "a\"b"`},
		{BinaryOp{Op: Ge}, "ge"},
		{UnaryOp{Op: Not}, "not"},
		{Call{Function: "f", Argc: 2}, "call f 2"},
		{CreateArray{Size: 3}, "newarray 3"},
		{AssignVar{Name: "x", Inner: LoadVar{Name: "y"}}, "assign x load y"},
		{Label{Name: "L1"}, "L1:"},
		{Return{}, "ret"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"outside function", "ret", "outside a function"},
		{"unclosed", "func f() {\n ret", "missing a closing brace"},
		{"unknown instr", "func f() {\n frob\n}", `unknown instruction "frob"`},
		{"bad const kind", "func f() {\n const char a\n}", "unknown constant kind"},
		{"bad int", "func f() {\n const int x\n}", "invalid int"},
		{"operand count", "func f() {\n add 1\n}", "takes 0 operand"},
		{"unterminated string", "func f() {\n const str \"abc\n}", "unterminated"},
		{"bad header", "func f {", "usage: func"},
		{"duplicate function", "func f() {\n}\nfunc f() {\n}", "duplicate function"},
		{"bad call argc", "func f() {\n call g x\n}", "invalid argument count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() err = %v, want *ParseError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParseReportsLineNumbers(t *testing.T) {
	_, err := Parse("func f() {\n  ret\n  bogus\n}\n")
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("err = %v, want line 3", err)
	}
}

func TestParseInstr(t *testing.T) {
	in, err := ParseInstr("const float 1e3")
	if err != nil {
		t.Fatal(err)
	}
	if got := in.(LoadConst).Value; !got.Equal(bytecode.Float(1000)) {
		t.Errorf("value = %s", got)
	}
	in, err = ParseInstr("const int 0x10")
	if err != nil {
		t.Fatal(err)
	}
	if got := in.(LoadConst).Value; !got.Equal(bytecode.Int(16)) {
		t.Errorf("value = %s", got)
	}
}

func TestModuleAddFunction(t *testing.T) {
	m := NewModule("m")
	if err := m.AddFunction(&Function{Name: "f"}); err != nil {
		t.Fatal(err)
	}
	if err := m.AddFunction(&Function{Name: "f"}); err == nil {
		t.Error("duplicate function accepted")
	}
	if m.Lookup("f") == nil || m.Lookup("g") != nil {
		t.Error("Lookup mismatch")
	}
	m.Export("f", "f")
	if len(m.Exports) != 1 {
		t.Errorf("Exports = %v, want [f]", m.Exports)
	}
}

func TestClone(t *testing.T) {
	m := sampleModule()
	c := m.Clone()
	c.Functions[0].Body = c.Functions[0].Body[:1]
	c.Functions[0].Body[0] = Return{}
	if len(m.Functions[0].Body) == 1 {
		t.Error("Clone shares body slice length")
	}
	if _, ok := m.Functions[0].Body[0].(LoadConst); !ok {
		t.Error("Clone shares body backing array")
	}
}

func TestStackEffect(t *testing.T) {
	tests := []struct {
		in        Instr
		pop, push int
	}{
		{LoadConst{}, 0, 1},
		{BinaryOp{Op: Add}, 2, 1},
		{UnaryOp{Op: Neg}, 1, 1},
		{Call{Function: "f", Argc: 3}, 3, 1},
		{ArrayStore{}, 3, 0},
		{PropertyStore{Name: "p"}, 2, 0},
		{AssignVar{Name: "x", Inner: BinaryOp{Op: Add}}, 2, 0},
		{Label{Name: "l"}, 0, 0},
		{DeclareVar{Name: "x"}, 0, 0},
	}
	for _, tt := range tests {
		pop, push := StackEffect(tt.in)
		if pop != tt.pop || push != tt.push {
			t.Errorf("StackEffect(%s) = %d, %d, want %d, %d", Format(tt.in), pop, push, tt.pop, tt.push)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(sampleModule()); err != nil {
		t.Fatalf("Validate(sample) = %v", err)
	}

	m := &Module{
		Exports: []string{"missing"},
		Functions: []*Function{
			{
				Name:   "f",
				Params: []Var{{Name: "a"}},
				Locals: []Var{{Name: "a"}},
				Body:   []Instr{Label{Name: "L"}, Label{Name: "L"}, nil, AssignVar{Name: "a"}},
			},
			{Name: "f"},
		},
	}
	err := Validate(m)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate() = %v, want *ValidationError", err)
	}
	for _, want := range []string{
		`duplicate variable "a"`,
		`label "L" defined more than once`,
		"nil instruction at 2",
		"has no value",
		`duplicate function "f"`,
		`unknown function "missing"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %v, missing %q", err, want)
		}
	}
}

func TestLabels(t *testing.T) {
	got := Labels(sampleModule().Functions[0].Body)
	if !reflect.DeepEqual(got, []string{"done"}) {
		t.Errorf("Labels() = %v", got)
	}
}

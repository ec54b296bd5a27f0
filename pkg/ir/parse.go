package ir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/chazu/velac/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Parser: line-oriented IR text form
// ---------------------------------------------------------------------------
//
//	module demo
//	export main
//	func main(a: int, b) {
//	  local x: int
//	  const int 2
//	  load a
//	  add
//	  jumpif done
//	  assign x const str "hi"
//	done:
//	  ret
//	}
//
// '#' and ';' start a comment outside string literals.

// ParseError collects every syntax error found in one input.
type ParseError struct {
	Errors []string
}

func (e *ParseError) Error() string {
	if len(e.Errors) == 1 {
		return "ir: " + e.Errors[0]
	}
	return fmt.Sprintf("ir: %d errors: %s", len(e.Errors), strings.Join(e.Errors, "; "))
}

// Parser reads the IR text form.
type Parser struct {
	lines  []string
	line   int // 1-based number of the line being parsed
	module *Module
	fn     *Function
	errors []string
}

// NewParser creates a parser for the given source.
func NewParser(src string) *Parser {
	return &Parser{
		lines:  strings.Split(src, "\n"),
		module: NewModule(""),
	}
}

// Parse parses a complete module.
func Parse(src string) (*Module, error) {
	return NewParser(src).ParseModule()
}

// ParseModule consumes all lines and returns the module.
func (p *Parser) ParseModule() (*Module, error) {
	for i, raw := range p.lines {
		p.line = i + 1
		toks, err := scanLine(raw)
		if err != nil {
			p.error(err.Error())
			continue
		}
		if len(toks) == 0 {
			continue
		}
		p.parseLine(toks)
	}
	if p.fn != nil {
		p.errorf("function %s is missing a closing brace", p.fn.Name)
	}
	if len(p.errors) > 0 {
		return nil, &ParseError{Errors: p.errors}
	}
	return p.module, nil
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) error(msg string) {
	p.errors = append(p.errors, fmt.Sprintf("line %d: %s", p.line, msg))
}

func (p *Parser) errorf(format string, args ...any) {
	p.error(fmt.Sprintf(format, args...))
}

func (p *Parser) parseLine(toks []string) {
	if p.fn == nil {
		p.parseTopLevel(toks)
		return
	}

	switch {
	case toks[0] == "}" && len(toks) == 1:
		if err := p.module.AddFunction(p.fn); err != nil {
			p.error(err.Error())
		}
		p.fn = nil
	case toks[0] == "local":
		v, ok := p.parseVar(strings.Join(toks[1:], " "))
		if ok {
			p.fn.Locals = append(p.fn.Locals, v)
		}
	case len(toks) == 1 && strings.HasSuffix(toks[0], ":") && len(toks[0]) > 1:
		name := strings.TrimSuffix(toks[0], ":")
		if !isIdent(name) {
			p.errorf("invalid label name %q", name)
			return
		}
		p.fn.Body = append(p.fn.Body, Label{Name: name})
	default:
		in, err := parseInstr(toks)
		if err != nil {
			p.error(err.Error())
			return
		}
		p.fn.Body = append(p.fn.Body, in)
	}
}

func (p *Parser) parseTopLevel(toks []string) {
	switch toks[0] {
	case "module":
		if len(toks) != 2 {
			p.error("usage: module <name>")
			return
		}
		p.module.Name = toks[1]
	case "export":
		if len(toks) < 2 {
			p.error("usage: export <name>...")
			return
		}
		for _, n := range toks[1:] {
			p.module.Export(strings.TrimSuffix(n, ","))
		}
	case "func":
		p.parseFuncHeader(toks)
	default:
		p.errorf("unexpected %q outside a function", toks[0])
	}
}

// parseFuncHeader handles `func name(a: int, b) {`.
func (p *Parser) parseFuncHeader(toks []string) {
	header := strings.Join(toks[1:], " ")
	lp := strings.IndexByte(header, '(')
	rp := strings.LastIndexByte(header, ')')
	if lp < 0 || rp < lp || strings.TrimSpace(header[rp+1:]) != "{" {
		p.error("usage: func <name>(<params>) {")
		return
	}
	name := strings.TrimSpace(header[:lp])
	if !isIdent(name) {
		p.errorf("invalid function name %q", name)
		return
	}
	fn := &Function{Name: name}
	if params := strings.TrimSpace(header[lp+1 : rp]); params != "" {
		for _, part := range strings.Split(params, ",") {
			v, ok := p.parseVar(part)
			if !ok {
				return
			}
			fn.Params = append(fn.Params, v)
		}
	}
	p.fn = fn
}

// parseVar handles `name` and `name: type`.
func (p *Parser) parseVar(s string) (Var, bool) {
	name, typ, _ := strings.Cut(s, ":")
	v := Var{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)}
	if !isIdent(v.Name) {
		p.errorf("invalid variable name %q", v.Name)
		return Var{}, false
	}
	if strings.Contains(s, ":") && !isIdent(v.Type) {
		p.errorf("invalid type for %s: %q", v.Name, v.Type)
		return Var{}, false
	}
	return v, true
}

var binOpsByName = func() map[string]BinOp {
	m := make(map[string]BinOp, len(binOpNames))
	for op, name := range binOpNames {
		m[name] = BinOp(op)
	}
	return m
}()

// ParseInstr parses a single instruction line.
func ParseInstr(line string) (Instr, error) {
	toks, err := scanLine(line)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty instruction")
	}
	return parseInstr(toks)
}

func parseInstr(toks []string) (Instr, error) {
	op, args := toks[0], toks[1:]

	if bop, ok := binOpsByName[op]; ok {
		return BinaryOp{Op: bop}, want(op, args, 0)
	}

	switch op {
	case "neg":
		return UnaryOp{Op: Neg}, want(op, args, 0)
	case "not":
		return UnaryOp{Op: Not}, want(op, args, 0)
	case "ret", "return":
		return Return{}, want(op, args, 0)
	case "aload":
		return ArrayAccess{}, want(op, args, 0)
	case "astore":
		return ArrayStore{}, want(op, args, 0)
	case "const":
		v, err := parseValue(args)
		if err != nil {
			return nil, err
		}
		return LoadConst{Value: v}, nil
	case "load", "store", "jump", "jumpif", "new", "getprop", "setprop":
		if err := want(op, args, 1); err != nil {
			return nil, err
		}
		if !isIdent(args[0]) {
			return nil, fmt.Errorf("%s: invalid name %q", op, args[0])
		}
		return nameInstr(op, args[0]), nil
	case "declare":
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("usage: declare <name> [type]")
		}
		d := DeclareVar{Name: args[0]}
		if len(args) == 2 {
			d.Type = args[1]
		}
		return d, nil
	case "assign":
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: assign <name> <instruction>")
		}
		inner, err := parseInstr(args[1:])
		if err != nil {
			return nil, fmt.Errorf("assign %s: %w", args[0], err)
		}
		return AssignVar{Name: args[0], Inner: inner}, nil
	case "call":
		if err := want(op, args, 2); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("call: invalid argument count %q", args[1])
		}
		return Call{Function: args[0], Argc: n}, nil
	case "newarray":
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("usage: newarray [type] <size>")
		}
		n, err := strconv.Atoi(args[len(args)-1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("newarray: invalid size %q", args[len(args)-1])
		}
		a := CreateArray{Size: n}
		if len(args) == 2 {
			a.ElemType = args[0]
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown instruction %q", op)
}

func nameInstr(op, name string) Instr {
	switch op {
	case "load":
		return LoadVar{Name: name}
	case "store":
		return StoreVar{Name: name}
	case "jump":
		return Jump{Label: name}
	case "jumpif":
		return JumpIf{Label: name}
	case "new":
		return CreateObject{Class: name}
	case "getprop":
		return PropertyAccess{Name: name}
	default:
		return PropertyStore{Name: name}
	}
}

func want(op string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s takes %d operand(s), got %d", op, n, len(args))
	}
	return nil
}

// parseValue handles `null`, `bool true`, `int -3`, `float 1.5`, `str "x"`.
func parseValue(args []string) (bytecode.Value, error) {
	if len(args) == 1 && args[0] == "null" {
		return bytecode.Null(), nil
	}
	if len(args) != 2 {
		return bytecode.Value{}, fmt.Errorf("usage: const <kind> <value>")
	}
	kind, lit := args[0], args[1]
	switch kind {
	case "bool":
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return bytecode.Value{}, fmt.Errorf("invalid bool %q", lit)
		}
		return bytecode.Bool(b), nil
	case "int":
		i, err := strconv.ParseInt(lit, 0, 64)
		if err != nil {
			return bytecode.Value{}, fmt.Errorf("invalid int %q", lit)
		}
		return bytecode.Int(i), nil
	case "float":
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return bytecode.Value{}, fmt.Errorf("invalid float %q", lit)
		}
		return bytecode.Float(f), nil
	case "str":
		s, err := strconv.Unquote(lit)
		if err != nil {
			return bytecode.Value{}, fmt.Errorf("invalid string literal %s", lit)
		}
		return bytecode.String(s), nil
	}
	return bytecode.Value{}, fmt.Errorf("unknown constant kind %q", kind)
}

// scanLine splits a line into whitespace-separated tokens. A double-quoted
// Go string literal is one token. Comments run to the end of the line.
func scanLine(line string) ([]string, error) {
	var toks []string
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#' || c == ';':
			return toks, nil
		case c == '"':
			lit, err := strconv.QuotedPrefix(line[i:])
			if err != nil {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, lit)
			i += len(lit)
		default:
			j := i
			for j < len(line) && !strings.ContainsRune(" \t\r#;\"", rune(line[j])) {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
		}
	}
	return toks, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '.' || r == '$' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

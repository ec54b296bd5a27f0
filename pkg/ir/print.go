package ir

import (
	"fmt"
	"strings"
)

// Print renders the module in the text form accepted by Parse.
func Print(m *Module) string {
	var sb strings.Builder
	if m.Name != "" {
		fmt.Fprintf(&sb, "module %s\n", m.Name)
	}
	for _, e := range m.Exports {
		fmt.Fprintf(&sb, "export %s\n", e)
	}
	for i, fn := range m.Functions {
		if i > 0 || sb.Len() > 0 {
			sb.WriteString("\n")
		}
		printFunction(&sb, fn)
	}
	return sb.String()
}

// PrintFunction renders one function.
func PrintFunction(fn *Function) string {
	var sb strings.Builder
	printFunction(&sb, fn)
	return sb.String()
}

func printFunction(sb *strings.Builder, fn *Function) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = formatVar(p)
	}
	fmt.Fprintf(sb, "func %s(%s) {\n", fn.Name, strings.Join(params, ", "))
	for _, l := range fn.Locals {
		fmt.Fprintf(sb, "  local %s\n", formatVar(l))
	}
	for _, in := range fn.Body {
		if l, ok := in.(Label); ok {
			fmt.Fprintf(sb, "%s:\n", l.Name)
			continue
		}
		fmt.Fprintf(sb, "  %s\n", Format(in))
	}
	sb.WriteString("}\n")
}

func formatVar(v Var) string {
	if v.Type == "" {
		return v.Name
	}
	return v.Name + ": " + v.Type
}

// Format renders a single instruction.
func Format(in Instr) string {
	switch in := in.(type) {
	case LoadConst:
		return "const " + in.Value.String()
	case LoadVar:
		return "load " + in.Name
	case StoreVar:
		return "store " + in.Name
	case AssignVar:
		if in.Inner == nil {
			return "assign " + in.Name
		}
		return "assign " + in.Name + " " + Format(in.Inner)
	case DeclareVar:
		if in.Type == "" {
			return "declare " + in.Name
		}
		return "declare " + in.Name + " " + in.Type
	case BinaryOp:
		return in.Op.String()
	case UnaryOp:
		return in.Op.String()
	case Call:
		return fmt.Sprintf("call %s %d", in.Function, in.Argc)
	case Return:
		return "ret"
	case Jump:
		return "jump " + in.Label
	case JumpIf:
		return "jumpif " + in.Label
	case Label:
		return in.Name + ":"
	case CreateArray:
		if in.ElemType == "" {
			return fmt.Sprintf("newarray %d", in.Size)
		}
		return fmt.Sprintf("newarray %s %d", in.ElemType, in.Size)
	case ArrayAccess:
		return "aload"
	case ArrayStore:
		return "astore"
	case CreateObject:
		return "new " + in.Class
	case PropertyAccess:
		return "getprop " + in.Name
	case PropertyStore:
		return "setprop " + in.Name
	case nil:
		return "<nil>"
	}
	return fmt.Sprintf("<unknown %T>", in)
}

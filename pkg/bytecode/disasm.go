package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the whole program.
func (p *Program) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; Vela Bytecode v%d\n", FormatVersion))
	sb.WriteString(fmt.Sprintf("; Functions: %d, Constants: %d\n", len(p.Functions), len(p.Constants)))

	if len(p.Symbols) > 0 {
		sb.WriteString("; Exports: ")
		sb.WriteString(strings.Join(p.Symbols, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	// Constants
	if len(p.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range p.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, truncate(v.String(), 48)))
		}
		sb.WriteString("\n")
	}

	for i, fn := range p.Functions {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.DisassembleFunction(fn))
	}
	return sb.String()
}

// DisassembleFunction returns the listing for one function.
func (p *Program) DisassembleFunction(fn *Function) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; === %s === params=%d locals=%d size=%d\n",
		fn.Name, fn.ParamCount, fn.LocalCount, len(fn.Code)))

	err := Walk(fn.Code, func(ins Instruction) error {
		sb.WriteString(fmt.Sprintf("%04X  %s\n", ins.Offset, p.formatInstruction(ins)))
		return nil
	})
	if err != nil {
		sb.WriteString(fmt.Sprintf("; error: %v\n", err))
	}
	return sb.String()
}

// formatInstruction renders one decoded instruction with its operand resolved.
func (p *Program) formatInstruction(ins Instruction) string {
	name := ins.Op.String()
	switch {
	case ins.Op.UsesConstant():
		return fmt.Sprintf("%-12s %d ; %s", name, ins.Operand, p.constantString(ins.Operand))
	case ins.Op.IsJump():
		return fmt.Sprintf("%-12s %+d ; -> %04X", name, ins.Jump, ins.Target)
	case ins.Op == OpCall:
		callee := "?"
		if int(ins.Operand) < len(p.Functions) {
			callee = p.Functions[ins.Operand].Name
		}
		return fmt.Sprintf("%-12s %d %d ; %s", name, ins.Operand, ins.Argc, callee)
	case ins.Op.OperandLen() == 1:
		return fmt.Sprintf("%-12s %d", name, ins.Operand)
	}
	return name
}

func (p *Program) constantString(idx uint16) string {
	if int(idx) >= len(p.Constants) {
		return "<out of range>"
	}
	return truncate(p.Constants[idx].String(), 24)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\t", "\\t")
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

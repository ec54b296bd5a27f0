package ir

import (
	"fmt"
	"strings"
)

// ValidationError lists the structural problems found in a module.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid IR: " + strings.Join(e.Problems, "; ")
}

// Validate checks the invariants the emitter relies on that can be decided
// without emitting: unique function names, unique parameter and local names,
// a single definition per label, and no nil instructions.
//
// References to undefined variables, functions or labels are left to the
// emitter, which reports them with a typed error kind.
func Validate(m *Module) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	funcs := make(map[string]bool, len(m.Functions))
	for _, fn := range m.Functions {
		if fn == nil {
			add("nil function")
			continue
		}
		if funcs[fn.Name] {
			add("duplicate function %q", fn.Name)
		}
		funcs[fn.Name] = true

		vars := make(map[string]bool, len(fn.Params)+len(fn.Locals))
		for _, v := range append(append([]Var(nil), fn.Params...), fn.Locals...) {
			if vars[v.Name] {
				add("%s: duplicate variable %q", fn.Name, v.Name)
			}
			vars[v.Name] = true
		}

		labels := make(map[string]bool)
		for i, in := range fn.Body {
			switch in := in.(type) {
			case nil:
				add("%s: nil instruction at %d", fn.Name, i)
			case Label:
				if labels[in.Name] {
					add("%s: label %q defined more than once", fn.Name, in.Name)
				}
				labels[in.Name] = true
			case AssignVar:
				if in.Inner == nil {
					add("%s: assign %s at %d has no value", fn.Name, in.Name, i)
				}
			}
		}
	}

	for _, e := range m.Exports {
		if !funcs[e] {
			add("export of unknown function %q", e)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Labels returns the labels defined in body in order of definition.
func Labels(body []Instr) []string {
	var out []string
	for _, in := range body {
		if l, ok := in.(Label); ok {
			out = append(out, l.Name)
		}
	}
	return out
}

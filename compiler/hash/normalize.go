package hash

import "github.com/chazu/velac/pkg/ir"

// ---------------------------------------------------------------------------
// Name normalization
//
// Local names and label names never reach the emitted bytecode, so the
// digest replaces them with positions: variables by slot (parameters, then
// locals, in declaration order) and labels by order of first mention.
// Two functions that differ only in those names hash identically.
// ---------------------------------------------------------------------------

// scope holds the per-function numbering used while serializing a body.
type scope struct {
	slots  map[string]uint16 // variable name -> slot index
	labels map[string]uint32 // label name -> first-mention index
}

func newScope(fn *ir.Function) *scope {
	s := &scope{
		slots:  make(map[string]uint16, len(fn.Params)+len(fn.Locals)),
		labels: make(map[string]uint32),
	}
	slot := uint16(0)
	for _, vars := range [][]ir.Var{fn.Params, fn.Locals} {
		for _, v := range vars {
			// First declaration wins; duplicates are a validation error.
			if _, dup := s.slots[v.Name]; !dup {
				s.slots[v.Name] = slot
			}
			slot++
		}
	}
	return s
}

// slot returns the slot bound to name, if any.
func (s *scope) slot(name string) (uint16, bool) {
	idx, ok := s.slots[name]
	return idx, ok
}

// label numbers labels in the order they are first referenced or defined.
func (s *scope) label(name string) uint32 {
	if idx, ok := s.labels[name]; ok {
		return idx
	}
	idx := uint32(len(s.labels))
	s.labels[name] = idx
	return idx
}

package analysis

import "github.com/willibrandon/MemLab/pkg/memory"

// PointerRef identifies one pointer holding a given target address.
// Location names the variable or block holding the pointer, Field is the
// dotted struct field path inside it (empty for a direct pointer), and
// Address is where the holder itself lives.
type PointerRef struct {
	Location string
	Field    string
	Address  memory.Address
}

func (r PointerRef) String() string {
	if r.Field != "" {
		return r.Location + " field " + r.Field
	}
	return r.Location
}

// PointersTo finds every pointer in the snapshot holding target. Globals
// are scanned in declaration order, then stack variables from the
// innermost frame outward (parameters before locals), then live heap
// blocks in ascending address order. Pointers nested in struct fields are
// found at any depth; freed heap records are never scanned.
func PointersTo(s *memory.Snapshot, target memory.Address) []PointerRef {
	var refs []PointerRef
	collect := func(location string, holder memory.Address) func(string, memory.Address) {
		return func(field string, t memory.Address) {
			if t == target {
				refs = append(refs, PointerRef{Location: location, Field: field, Address: holder})
			}
		}
	}

	for _, g := range s.Globals.Vars {
		walkPointers(g.Value, "", collect("global "+g.Name, g.Address))
	}
	for i := s.Stack.Depth() - 1; i >= 0; i-- {
		frame := s.Stack.Frames[i]
		for _, v := range frame.Params {
			walkPointers(v.Value, "", collect("stack "+frame.Func+"::"+v.Name, v.Address))
		}
		for _, v := range frame.Locals {
			walkPointers(v.Value, "", collect("stack "+frame.Func+"::"+v.Name, v.Address))
		}
	}
	for _, blk := range s.Heap.Live() {
		walkPointers(blk.Value, "", collect("heap block @ "+blk.Address.String(), blk.Address))
	}
	return refs
}

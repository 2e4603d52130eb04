// Package analysis provides read-only queries over memory snapshots:
// address lookup, reverse pointer search, reachability, leak detection,
// and path finding from roots to heap blocks.
//
// All queries are pure functions of the snapshot they are given. The
// Engine type offers the same queries backed by a per-snapshot index so
// repeated lookups against the same snapshot avoid rescanning.
package analysis

import (
	"github.com/willibrandon/MemLab/pkg/memory"
)

// ValueAtAddress finds the value stored at addr and describes where it
// lives. Globals are checked first, then stack variables from the
// innermost frame outward (parameters before locals), then heap blocks by
// exact address, freed records included. The location is of the form
// "global counter", "stack main::ptr" or "heap block @ 0x1000".
func ValueAtAddress(s *memory.Snapshot, addr memory.Address) (memory.Value, string, bool) {
	for _, g := range s.Globals.Vars {
		if g.Address == addr {
			return g.Value, "global " + g.Name, true
		}
	}
	for i := s.Stack.Depth() - 1; i >= 0; i-- {
		frame := s.Stack.Frames[i]
		for _, v := range frame.Params {
			if v.Address == addr {
				return v.Value, "stack " + frame.Func + "::" + v.Name, true
			}
		}
		for _, v := range frame.Locals {
			if v.Address == addr {
				return v.Value, "stack " + frame.Func + "::" + v.Name, true
			}
		}
	}
	if blk, ok := s.Heap.Block(addr); ok {
		return blk.Value, "heap block @ " + blk.Address.String(), true
	}
	return memory.Value{}, "", false
}

// walkPointers calls fn for every non-null pointer nested in v, with the
// dotted field path leading to it (empty for v itself).
func walkPointers(v memory.Value, path string, fn func(field string, target memory.Address)) {
	switch v.Kind {
	case memory.KindPointer:
		if target, ok := v.Target(); ok {
			fn(path, target)
		}
	case memory.KindStruct:
		for _, f := range v.Fields {
			p := f.Name
			if path != "" {
				p = path + "." + f.Name
			}
			walkPointers(f.Value, p, fn)
		}
	}
}

package analysis

import "github.com/willibrandon/MemLab/pkg/memory"

// ReachableAddresses collects the addresses held by pointers in globals
// and stack variables, struct fields included. With transitive set, it
// also follows pointers stored in live heap blocks until no new address
// appears, so blocks kept alive only through other blocks count as
// reachable. Freed records are never followed.
func ReachableAddresses(s *memory.Snapshot, transitive bool) map[memory.Address]bool {
	reachable := make(map[memory.Address]bool)
	var frontier []memory.Address
	mark := func(_ string, target memory.Address) {
		if !reachable[target] {
			reachable[target] = true
			frontier = append(frontier, target)
		}
	}

	for _, g := range s.Globals.Vars {
		walkPointers(g.Value, "", mark)
	}
	for _, frame := range s.Stack.Frames {
		for _, v := range frame.Params {
			walkPointers(v.Value, "", mark)
		}
		for _, v := range frame.Locals {
			walkPointers(v.Value, "", mark)
		}
	}
	if !transitive {
		return reachable
	}

	for len(frontier) > 0 {
		addr := frontier[0]
		frontier = frontier[1:]
		blk, ok := s.Heap.Block(addr)
		if !ok || blk.Freed {
			continue
		}
		walkPointers(blk.Value, "", mark)
	}
	return reachable
}

// FindLeaks returns the live heap blocks whose addresses are not in the
// caller's reachable set, in ascending address order. The judgment is a
// pure set difference: what counts as reachable is entirely the caller's,
// typically ReachableAddresses with transitive set.
func FindLeaks(s *memory.Snapshot, reachable map[memory.Address]bool) []memory.HeapBlock {
	return s.Heap.Leaks(reachable)
}

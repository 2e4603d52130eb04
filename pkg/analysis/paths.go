package analysis

import (
	"strings"

	"github.com/willibrandon/MemLab/pkg/memory"
)

// BlockPath is one chain of references keeping a heap block alive: a root
// reference held by a global or stack variable, followed by the live
// blocks traversed from that root to the target, target last.
type BlockPath struct {
	Root   PointerRef
	Blocks []memory.Address
}

func (p BlockPath) String() string {
	var sb strings.Builder
	sb.WriteString(p.Root.String())
	for _, addr := range p.Blocks {
		sb.WriteString(" -> ")
		sb.WriteString(addr.String())
	}
	return sb.String()
}

// PathsToBlock finds up to maxPaths reference chains from roots to the
// live block at target, shortest first. Chains never revisit a block, so
// cyclic structures terminate. A target with no live block yields nil.
func PathsToBlock(s *memory.Snapshot, target memory.Address, maxPaths int) []BlockPath {
	if maxPaths <= 0 {
		return nil
	}
	if blk, ok := s.Heap.Block(target); !ok || blk.Freed {
		return nil
	}

	referrers := buildReferrers(s)
	roots := rootReferences(s)

	type searchNode struct {
		addr memory.Address
		path []memory.Address
	}

	var result []BlockPath
	queue := []searchNode{{addr: target, path: []memory.Address{target}}}

	for len(queue) > 0 && len(result) < maxPaths {
		node := queue[0]
		queue = queue[1:]

		// Roots pointing at this block complete a path. The search walks
		// target-outward, so the block order is reversed for the result.
		for _, ref := range roots[node.addr] {
			blocks := make([]memory.Address, len(node.path))
			for i, a := range node.path {
				blocks[len(node.path)-1-i] = a
			}
			result = append(result, BlockPath{Root: ref, Blocks: blocks})
			if len(result) >= maxPaths {
				break
			}
		}
		if len(result) >= maxPaths {
			break
		}

		for _, ref := range referrers[node.addr] {
			inPath := false
			for _, a := range node.path {
				if a == ref {
					inPath = true
					break
				}
			}
			if inPath {
				continue
			}
			newPath := make([]memory.Address, len(node.path)+1)
			copy(newPath, node.path)
			newPath[len(node.path)] = ref
			queue = append(queue, searchNode{addr: ref, path: newPath})
		}
	}
	return result
}

// buildReferrers maps each pointed-at address to the live blocks holding
// a pointer to it, in ascending holder order.
func buildReferrers(s *memory.Snapshot) map[memory.Address][]memory.Address {
	referrers := make(map[memory.Address][]memory.Address)
	for _, blk := range s.Heap.Live() {
		holder := blk.Address
		walkPointers(blk.Value, "", func(_ string, target memory.Address) {
			referrers[target] = append(referrers[target], holder)
		})
	}
	return referrers
}

// rootReferences maps each pointed-at address to the global and stack
// references holding it, in scan order.
func rootReferences(s *memory.Snapshot) map[memory.Address][]PointerRef {
	roots := make(map[memory.Address][]PointerRef)
	add := func(location string, holder memory.Address) func(string, memory.Address) {
		return func(field string, target memory.Address) {
			roots[target] = append(roots[target], PointerRef{
				Location: location,
				Field:    field,
				Address:  holder,
			})
		}
	}
	for _, g := range s.Globals.Vars {
		walkPointers(g.Value, "", add("global "+g.Name, g.Address))
	}
	for i := s.Stack.Depth() - 1; i >= 0; i-- {
		frame := s.Stack.Frames[i]
		for _, v := range frame.Params {
			walkPointers(v.Value, "", add("stack "+frame.Func+"::"+v.Name, v.Address))
		}
		for _, v := range frame.Locals {
			walkPointers(v.Value, "", add("stack "+frame.Func+"::"+v.Name, v.Address))
		}
	}
	return roots
}

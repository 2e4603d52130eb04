package memory

import "sort"

// HeapBlock is one allocation record. Freed blocks keep their address,
// metadata, and last value so stale pointers, double frees, and
// use-after-free can be reported precisely.
type HeapBlock struct {
	Address   Address `json:"address"`
	Size      uint64  `json:"size"`
	TypeName  string  `json:"typeName"`
	Value     Value   `json:"value"`
	Freed     bool    `json:"freed,omitempty"`
	AllocSite string  `json:"allocSite,omitempty"`
}

// End returns the first address past the block.
func (b HeapBlock) End() Address {
	return b.Address + Address(b.Size)
}

// HeapSegment holds the allocation records of a snapshot, ordered by
// address. Live block ranges never overlap; freed records may be shadowed
// by later allocations.
type HeapSegment struct {
	Blocks []HeapBlock `json:"blocks,omitempty"`
}

// search returns the insertion position for addr.
func (h HeapSegment) search(addr Address) int {
	return sort.Search(len(h.Blocks), func(i int) bool {
		return h.Blocks[i].Address >= addr
	})
}

// Block returns the record starting exactly at addr, live or freed.
func (h HeapSegment) Block(addr Address) (HeapBlock, bool) {
	i := h.search(addr)
	if i < len(h.Blocks) && h.Blocks[i].Address == addr {
		return h.Blocks[i], true
	}
	return HeapBlock{}, false
}

// Live returns the non-freed blocks in address order.
func (h HeapSegment) Live() []HeapBlock {
	var out []HeapBlock
	for _, b := range h.Blocks {
		if !b.Freed {
			out = append(out, b)
		}
	}
	return out
}

// Freed returns the freed records in address order.
func (h HeapSegment) Freed() []HeapBlock {
	var out []HeapBlock
	for _, b := range h.Blocks {
		if b.Freed {
			out = append(out, b)
		}
	}
	return out
}

// LiveSize returns the total byte size of live blocks.
func (h HeapSegment) LiveSize() uint64 {
	var total uint64
	for _, b := range h.Blocks {
		if !b.Freed {
			total += b.Size
		}
	}
	return total
}

// Leaks returns the live blocks whose address is absent from reachable,
// in address order. Freed blocks are never leak candidates.
func (h HeapSegment) Leaks(reachable map[Address]bool) []HeapBlock {
	var out []HeapBlock
	for _, b := range h.Blocks {
		if !b.Freed && !reachable[b.Address] {
			out = append(out, b)
		}
	}
	return out
}

// overlapsLive reports whether [addr, addr+size) intersects any live
// block's range.
func (h HeapSegment) overlapsLive(addr Address, size uint64) bool {
	end := addr + Address(size)
	for _, b := range h.Blocks {
		if b.Freed {
			continue
		}
		if addr < b.End() && b.Address < end {
			return true
		}
	}
	return false
}

// put inserts the record at its address position, replacing any existing
// record with the same address.
func (h *HeapSegment) put(b HeapBlock) {
	i := h.search(b.Address)
	if i < len(h.Blocks) && h.Blocks[i].Address == b.Address {
		h.Blocks[i] = b
		return
	}
	h.Blocks = append(h.Blocks, HeapBlock{})
	copy(h.Blocks[i+1:], h.Blocks[i:])
	h.Blocks[i] = b
}

// clone returns a segment whose block container is independent of the
// receiver's.
func (h HeapSegment) clone() HeapSegment {
	out := HeapSegment{}
	if len(h.Blocks) > 0 {
		out.Blocks = make([]HeapBlock, len(h.Blocks))
		copy(out.Blocks, h.Blocks)
	}
	return out
}

package analysis

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/willibrandon/MemLab/pkg/memory"
)

// DefaultCacheSize bounds how many snapshot indexes an Engine keeps.
const DefaultCacheSize = 32

// Engine answers address and pointer queries through a per-snapshot index
// so repeated lookups against the same snapshot avoid rescanning every
// segment. Indexes are cached per snapshot pointer in an LRU cache, which
// is sound because snapshots never change after they are built.
type Engine struct {
	cache *lru.Cache
}

// NewEngine creates an engine caching up to cacheSize snapshot indexes.
// A non-positive size falls back to DefaultCacheSize.
func NewEngine(cacheSize int) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create index cache: %w", err)
	}
	return &Engine{cache: cache}, nil
}

type valueHit struct {
	value    memory.Value
	location string
}

type snapshotIndex struct {
	byAddr   map[memory.Address]valueHit
	byTarget map[memory.Address][]PointerRef
}

// ValueAtAddress answers like the package-level ValueAtAddress, served
// from the snapshot's index.
func (e *Engine) ValueAtAddress(s *memory.Snapshot, addr memory.Address) (memory.Value, string, bool) {
	hit, ok := e.index(s).byAddr[addr]
	if !ok {
		return memory.Value{}, "", false
	}
	return hit.value, hit.location, true
}

// PointersTo answers like the package-level PointersTo, served from the
// snapshot's index.
func (e *Engine) PointersTo(s *memory.Snapshot, target memory.Address) []PointerRef {
	return e.index(s).byTarget[target]
}

// CachedSnapshots reports how many snapshot indexes are currently held.
func (e *Engine) CachedSnapshots() int {
	return e.cache.Len()
}

func (e *Engine) index(s *memory.Snapshot) *snapshotIndex {
	if v, ok := e.cache.Get(s); ok {
		return v.(*snapshotIndex)
	}
	idx := buildIndex(s)
	e.cache.Add(s, idx)
	return idx
}

// buildIndex scans the snapshot once in the same priority order the
// package-level queries use, so cached answers match uncached ones. For
// byAddr the first holder of an address wins; byTarget accumulates every
// reference in scan order.
func buildIndex(s *memory.Snapshot) *snapshotIndex {
	idx := &snapshotIndex{
		byAddr:   make(map[memory.Address]valueHit),
		byTarget: make(map[memory.Address][]PointerRef),
	}

	record := func(addr memory.Address, value memory.Value, location string) {
		if _, taken := idx.byAddr[addr]; !taken {
			idx.byAddr[addr] = valueHit{value: value, location: location}
		}
		walkPointers(value, "", func(field string, target memory.Address) {
			idx.byTarget[target] = append(idx.byTarget[target], PointerRef{
				Location: location,
				Field:    field,
				Address:  addr,
			})
		})
	}

	for _, g := range s.Globals.Vars {
		record(g.Address, g.Value, "global "+g.Name)
	}
	for i := s.Stack.Depth() - 1; i >= 0; i-- {
		frame := s.Stack.Frames[i]
		for _, v := range frame.Params {
			record(v.Address, v.Value, "stack "+frame.Func+"::"+v.Name)
		}
		for _, v := range frame.Locals {
			record(v.Address, v.Value, "stack "+frame.Func+"::"+v.Name)
		}
	}

	// Heap lookups include freed records; pointer scans do not.
	for _, blk := range s.Heap.Blocks {
		location := "heap block @ " + blk.Address.String()
		if _, taken := idx.byAddr[blk.Address]; !taken {
			idx.byAddr[blk.Address] = valueHit{value: blk.Value, location: location}
		}
		if blk.Freed {
			continue
		}
		walkPointers(blk.Value, "", func(field string, target memory.Address) {
			idx.byTarget[target] = append(idx.byTarget[target], PointerRef{
				Location: location,
				Field:    field,
				Address:  blk.Address,
			})
		})
	}
	return idx
}

package analysis

import (
	"testing"

	"github.com/willibrandon/MemLab/pkg/memory"
)

func TestEngineMatchesDirectQueries(t *testing.T) {
	snap := testWorld(t)

	eng, err := NewEngine(8)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	// Address lookups agree with the package-level scan
	for _, addr := range []memory.Address{0x404000, 0x1000, 0x2000, 0xdead} {
		wantVal, wantLoc, wantOK := ValueAtAddress(snap, addr)
		gotVal, gotLoc, gotOK := eng.ValueAtAddress(snap, addr)
		if wantOK != gotOK {
			t.Errorf("Address %s: expected ok=%v, got %v", addr, wantOK, gotOK)
			continue
		}
		if gotLoc != wantLoc {
			t.Errorf("Address %s: expected location %q, got %q", addr, wantLoc, gotLoc)
		}
		if wantOK && !gotVal.Equal(wantVal) {
			t.Errorf("Address %s: expected value %v, got %v", addr, wantVal, gotVal)
		}
	}

	// Pointer queries agree too, in the same order
	want := PointersTo(snap, 0x1000)
	got := eng.PointersTo(snap, 0x1000)
	if len(got) != len(want) {
		t.Fatalf("Expected %d references, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Reference %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestEngineCachesPerSnapshot(t *testing.T) {
	eng, err := NewEngine(8)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	s1 := testWorld(t)
	s2 := chainWorld(t)

	// Repeated queries against one snapshot reuse its index
	eng.ValueAtAddress(s1, 0x1000)
	eng.PointersTo(s1, 0x1000)
	if eng.CachedSnapshots() != 1 {
		t.Errorf("Expected 1 cached index, got %d", eng.CachedSnapshots())
	}

	eng.ValueAtAddress(s2, 0x1000)
	if eng.CachedSnapshots() != 2 {
		t.Errorf("Expected 2 cached indexes, got %d", eng.CachedSnapshots())
	}
}

func TestEngineEvictsOldIndexes(t *testing.T) {
	eng, err := NewEngine(2)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	base, err := memory.NewInitialSnapshot(nil, nil, memory.CPUState{})
	if err != nil {
		t.Fatalf("Failed to create initial snapshot: %v", err)
	}

	// Index more snapshots than the cache holds
	cur := base
	for i := 0; i < 5; i++ {
		b := memory.NewBuilder(cur)
		b.Malloc(16, "Node", memory.Int(int64(i)), "")
		next, err := b.Build()
		if err != nil {
			t.Fatalf("Failed to build snapshot: %v", err)
		}
		eng.ValueAtAddress(next, 0x1000)
		cur = next
	}

	if eng.CachedSnapshots() != 2 {
		t.Errorf("Expected cache to stay at 2 indexes, got %d", eng.CachedSnapshots())
	}

	// Evicted snapshots still answer correctly through a rebuilt index
	if _, _, ok := eng.ValueAtAddress(base, 0x1000); ok {
		t.Errorf("Expected no block at 0x1000 in the base snapshot")
	}
}

func TestEngineDefaultCacheSize(t *testing.T) {
	eng, err := NewEngine(0)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if eng.CachedSnapshots() != 0 {
		t.Errorf("Expected empty cache, got %d", eng.CachedSnapshots())
	}
}

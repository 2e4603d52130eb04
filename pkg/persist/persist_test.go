package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/willibrandon/MemLab/pkg/history"
	"github.com/willibrandon/MemLab/pkg/memory"
)

func sampleSnapshot(t *testing.T) *memory.Snapshot {
	t.Helper()
	types := memory.NewTypeRegistry()
	types.RegisterStruct(memory.StructDescriptor{
		Name: "Node",
		Fields: []memory.FieldDescriptor{
			{Name: "value", TypeName: "int", Offset: 0},
			{Name: "next", TypeName: "Node*", Offset: 8},
		},
		Size: 16,
	})
	types.RegisterTypedef("node_t", "Node")

	globals := []memory.GlobalVariable{
		{Variable: memory.Variable{Name: "counter", Address: 0x404000, Value: memory.Int(7), TypeName: "int"}, Storage: memory.StorageGlobal},
	}
	snap, err := memory.NewInitialSnapshot(globals, types, memory.CPUState{PC: 0x400000})
	if err != nil {
		t.Fatalf("Failed to create initial snapshot: %v", err)
	}

	b := memory.NewBuilder(snap)
	b.PushFrame("main", 0)
	b.SetLocal("x", memory.Int(10), "int")
	addr, _ := b.Malloc(16, "Node", memory.StructOf(
		memory.Field{Name: "value", Value: memory.Int(42)},
		memory.Field{Name: "next", Value: memory.NullPointer("Node")},
	), "main:3")
	b.SetLocal("ptr", memory.PointerTo(addr, "Node"), "Node*")
	next, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build snapshot: %v", err)
	}
	return next
}

func snapshotsEqual(t *testing.T, a, b *memory.Snapshot) bool {
	t.Helper()
	aj, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}
	bj, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}
	return bytes.Equal(aj, bj)
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := sampleSnapshot(t)

	for _, compression := range []Compression{NoCompression, ZstdCompression} {
		var buf bytes.Buffer
		if err := EncodeSnapshot(&buf, snap, compression); err != nil {
			t.Fatalf("Failed to encode snapshot: %v", err)
		}

		loaded, err := DecodeSnapshot(&buf)
		if err != nil {
			t.Fatalf("Failed to decode snapshot: %v", err)
		}

		if !snapshotsEqual(t, snap, loaded) {
			t.Errorf("Round-tripped snapshot differs from original")
		}
	}
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	snap := sampleSnapshot(t)
	path := filepath.Join(t.TempDir(), "state.memlab")

	if err := SaveSnapshot(path, snap, DefaultCompression); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	// The default compression leaves a zstd frame on disk
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		t.Errorf("Expected zstd magic at file start")
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if !snapshotsEqual(t, snap, loaded) {
		t.Errorf("Loaded snapshot differs from saved one")
	}
}

func TestDecodeSnapshotSniffsCompression(t *testing.T) {
	snap := sampleSnapshot(t)

	// A plain encoding loads without being told it is plain
	var plain bytes.Buffer
	if err := EncodeSnapshot(&plain, snap, NoCompression); err != nil {
		t.Fatalf("Failed to encode snapshot: %v", err)
	}
	if _, err := DecodeSnapshot(&plain); err != nil {
		t.Fatalf("Failed to decode plain snapshot: %v", err)
	}

	// Garbage is rejected
	if _, err := DecodeSnapshot(bytes.NewReader([]byte("not json"))); !errors.Is(err, ErrBadFormat) {
		t.Errorf("Expected ErrBadFormat, got %v", err)
	}
}

func TestLoadNormalizesMissingTypes(t *testing.T) {
	// A snapshot hand-written without a types field
	doc := []byte(`{"stepId":0,"description":"Initial state"}`)
	loaded, err := DecodeSnapshot(bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if loaded.Types == nil {
		t.Errorf("Expected a type registry after load")
	}
}

func TestTimelineRoundTrip(t *testing.T) {
	first := sampleSnapshot(t)
	b := memory.NewBuilder(first)
	b.SetGlobal("counter", memory.Int(8))
	second, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build snapshot: %v", err)
	}

	tl := history.NewTimeline(first)
	tl.Append(second)
	if _, err := tl.Back(); err != nil {
		t.Fatalf("Failed to step back: %v", err)
	}

	for _, compression := range []Compression{NoCompression, ZstdCompression} {
		var buf bytes.Buffer
		if err := EncodeTimeline(&buf, tl, compression); err != nil {
			t.Fatalf("Failed to encode timeline: %v", err)
		}

		loaded, err := DecodeTimeline(&buf)
		if err != nil {
			t.Fatalf("Failed to decode timeline: %v", err)
		}

		// Length, cursor position and contents all survive
		if loaded.Len() != 2 {
			t.Fatalf("Expected 2 snapshots, got %d", loaded.Len())
		}
		if loaded.Index() != 0 {
			t.Errorf("Expected cursor 0, got %d", loaded.Index())
		}
		if !snapshotsEqual(t, tl.Current(), loaded.Current()) {
			t.Errorf("Current snapshot differs after round trip")
		}
		last, err := loaded.At(1)
		if err != nil {
			t.Fatalf("Failed to read snapshot 1: %v", err)
		}
		if !snapshotsEqual(t, second, last) {
			t.Errorf("Snapshot 1 differs after round trip")
		}
	}
}

func TestTimelineFileRoundTrip(t *testing.T) {
	snap := sampleSnapshot(t)
	tl := history.NewTimeline(snap)
	path := filepath.Join(t.TempDir(), "session.memlab")

	if err := SaveTimeline(path, tl, DefaultCompression); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}
	loaded, err := LoadTimeline(path)
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("Expected 1 snapshot, got %d", loaded.Len())
	}
}

func TestDecodeTimelineRejectsBadInput(t *testing.T) {
	// Empty input
	if _, err := DecodeTimeline(bytes.NewReader(nil)); !errors.Is(err, ErrBadFormat) {
		t.Errorf("Expected ErrBadFormat for empty input, got %v", err)
	}

	// Wrong header format
	bad := []byte(`{"format":"something-else","version":1,"cursor":0,"count":0}` + "\n")
	if _, err := DecodeTimeline(bytes.NewReader(bad)); !errors.Is(err, ErrBadFormat) {
		t.Errorf("Expected ErrBadFormat for wrong format, got %v", err)
	}

	// Wrong version
	bad = []byte(`{"format":"memlab-session","version":99,"cursor":0,"count":0}` + "\n")
	if _, err := DecodeTimeline(bytes.NewReader(bad)); !errors.Is(err, ErrBadFormat) {
		t.Errorf("Expected ErrBadFormat for wrong version, got %v", err)
	}

	// Count mismatch
	bad = []byte(`{"format":"memlab-session","version":1,"cursor":0,"count":3}` + "\n")
	if _, err := DecodeTimeline(bytes.NewReader(bad)); !errors.Is(err, ErrBadFormat) {
		t.Errorf("Expected ErrBadFormat for count mismatch, got %v", err)
	}

	// Cursor out of range
	snap := sampleSnapshot(t)
	tl := history.NewTimeline(snap)
	var buf bytes.Buffer
	if err := EncodeTimeline(&buf, tl, NoCompression); err != nil {
		t.Fatalf("Failed to encode timeline: %v", err)
	}
	tampered := bytes.Replace(buf.Bytes(), []byte(`"cursor":0`), []byte(`"cursor":5`), 1)
	if _, err := DecodeTimeline(bytes.NewReader(tampered)); !errors.Is(err, history.ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange for bad cursor, got %v", err)
	}
}

// Package persist saves snapshots and whole sessions to disk as JSON
// with optional Zstandard compression. Every model field serializes to
// plain structured data, so a loaded snapshot is indistinguishable from
// a freshly built one.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/willibrandon/MemLab/pkg/memory"
)

// ErrBadFormat is returned when a file is not a recognized snapshot or
// session encoding.
var ErrBadFormat = errors.New("persist: unrecognized file format")

// EncodeSnapshot writes one snapshot to w.
func EncodeSnapshot(w io.Writer, s *memory.Snapshot, compression Compression) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := w.Write(compress(data, compression)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads one snapshot from r, decompressing when the data
// carries the Zstandard magic.
func DecodeSnapshot(r io.Reader) (*memory.Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	data, err := decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var s memory.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", ErrBadFormat)
	}
	normalize(&s)
	return &s, nil
}

// SaveSnapshot writes a snapshot to path, replacing any existing file.
func SaveSnapshot(path string, s *memory.Snapshot, compression Compression) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := EncodeSnapshot(f, s, compression); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadSnapshot reads a snapshot from path.
func LoadSnapshot(path string) (*memory.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer f.Close()
	return DecodeSnapshot(f)
}

// normalize fills fields a hand-edited or older file may omit and
// re-establishes the heap's address ordering, which lookups and diffing
// rely on.
func normalize(s *memory.Snapshot) {
	if s.Types == nil {
		s.Types = memory.NewTypeRegistry()
	}
	sort.Slice(s.Heap.Blocks, func(i, j int) bool {
		return s.Heap.Blocks[i].Address < s.Heap.Blocks[j].Address
	})
}

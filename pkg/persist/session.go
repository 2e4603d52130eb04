package persist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/willibrandon/MemLab/pkg/history"
	"github.com/willibrandon/MemLab/pkg/memory"
)

const (
	sessionFormat  = "memlab-session"
	sessionVersion = 1
)

// maxSnapshotLine bounds one serialized snapshot when scanning a session
// file.
const maxSnapshotLine = 1 << 20

// sessionHeader is the first line of a session file.
type sessionHeader struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
	Cursor  int    `json:"cursor"`
	Count   int    `json:"count"`
}

// EncodeTimeline writes a whole timeline to w: a header line carrying the
// cursor position, then one snapshot per line, all optionally wrapped in
// a single Zstandard stream.
func EncodeTimeline(w io.Writer, tl *history.Timeline, compression Compression) error {
	out := w
	var enc *zstd.Encoder
	if compression == ZstdCompression {
		var err error
		enc, err = zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("open compressed writer: %w", err)
		}
		out = enc
	}

	snapshots := tl.Snapshots()
	header := sessionHeader{
		Format:  sessionFormat,
		Version: sessionVersion,
		Cursor:  tl.Index(),
		Count:   len(snapshots),
	}
	if err := writeJSONLine(out, header); err != nil {
		return fmt.Errorf("write session header: %w", err)
	}
	for i, s := range snapshots {
		if err := writeJSONLine(out, s); err != nil {
			return fmt.Errorf("write snapshot %d: %w", i, err)
		}
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close compressed writer: %w", err)
		}
	}
	return nil
}

func writeJSONLine(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

// DecodeTimeline reads a session written by EncodeTimeline, sniffing for
// compression, and restores the timeline with its saved cursor.
func DecodeTimeline(r io.Reader) (*history.Timeline, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, _ := br.Peek(len(zstdMagic)); bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open compressed reader: %w", err)
		}
		defer dec.Close()
		src = dec
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read session header: %w", err)
		}
		return nil, fmt.Errorf("read session header: %w", ErrBadFormat)
	}
	var header sessionHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("parse session header: %w", ErrBadFormat)
	}
	if header.Format != sessionFormat || header.Version != sessionVersion {
		return nil, fmt.Errorf("session format %q version %d: %w", header.Format, header.Version, ErrBadFormat)
	}

	snapshots := make([]*memory.Snapshot, 0, header.Count)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var s memory.Snapshot
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("parse snapshot %d: %w", len(snapshots), ErrBadFormat)
		}
		normalize(&s)
		snapshots = append(snapshots, &s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if len(snapshots) != header.Count {
		return nil, fmt.Errorf("session declares %d snapshots, found %d: %w", header.Count, len(snapshots), ErrBadFormat)
	}
	return history.Restore(snapshots, header.Cursor)
}

// SaveTimeline writes a session to path, replacing any existing file.
func SaveTimeline(path string, tl *history.Timeline, compression Compression) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := EncodeTimeline(f, tl, compression); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadTimeline reads a session from path.
func LoadTimeline(path string) (*history.Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	defer f.Close()
	return DecodeTimeline(f)
}

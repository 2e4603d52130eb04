// Package history tracks an ordered line of snapshots with a movable
// cursor for undo and redo. Snapshots are immutable, so stepping the
// cursor is pure re-display: no snapshot is rebuilt or copied.
package history

import (
	"errors"
	"fmt"

	"github.com/willibrandon/MemLab/pkg/memory"
)

var (
	// ErrStartOfHistory is returned when stepping back from the first snapshot.
	ErrStartOfHistory = errors.New("history: already at the start")

	// ErrEndOfHistory is returned when stepping forward from the last snapshot.
	ErrEndOfHistory = errors.New("history: already at the end")

	// ErrIndexOutOfRange is returned for positions outside the timeline.
	ErrIndexOutOfRange = errors.New("history: index out of range")
)

// Timeline holds the snapshots built so far and a cursor into them. A
// timeline always contains at least its initial snapshot. Appending while
// the cursor sits before the end discards the redo tail, the way an edit
// after undo does.
type Timeline struct {
	snapshots []*memory.Snapshot
	current   int
}

// NewTimeline starts a timeline at the given initial snapshot.
func NewTimeline(initial *memory.Snapshot) *Timeline {
	return &Timeline{
		snapshots: []*memory.Snapshot{initial},
		current:   0,
	}
}

// Restore rebuilds a timeline from a saved snapshot sequence and cursor
// position, as loaded by a persistence layer.
func Restore(snapshots []*memory.Snapshot, cursor int) (*Timeline, error) {
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("restore timeline: no snapshots")
	}
	if cursor < 0 || cursor >= len(snapshots) {
		return nil, fmt.Errorf("restore timeline cursor %d: %w", cursor, ErrIndexOutOfRange)
	}
	return &Timeline{snapshots: snapshots, current: cursor}, nil
}

// Append adds a snapshot after the cursor and moves the cursor to it.
// Any snapshots past the old cursor position are discarded.
func (t *Timeline) Append(s *memory.Snapshot) {
	t.snapshots = append(t.snapshots[:t.current+1], s)
	t.current = len(t.snapshots) - 1
}

// Current returns the snapshot under the cursor.
func (t *Timeline) Current() *memory.Snapshot {
	return t.snapshots[t.current]
}

// Back moves the cursor one snapshot toward the start and returns it.
func (t *Timeline) Back() (*memory.Snapshot, error) {
	if t.current == 0 {
		return nil, fmt.Errorf("step back: %w", ErrStartOfHistory)
	}
	t.current--
	return t.snapshots[t.current], nil
}

// Forward moves the cursor one snapshot toward the end and returns it.
func (t *Timeline) Forward() (*memory.Snapshot, error) {
	if t.current == len(t.snapshots)-1 {
		return nil, fmt.Errorf("step forward: %w", ErrEndOfHistory)
	}
	t.current++
	return t.snapshots[t.current], nil
}

// Seek moves the cursor to an absolute position and returns the snapshot
// there.
func (t *Timeline) Seek(index int) (*memory.Snapshot, error) {
	if index < 0 || index >= len(t.snapshots) {
		return nil, fmt.Errorf("seek %d: %w", index, ErrIndexOutOfRange)
	}
	t.current = index
	return t.snapshots[t.current], nil
}

// Reset discards everything past the initial snapshot and returns it.
func (t *Timeline) Reset() *memory.Snapshot {
	t.snapshots = t.snapshots[:1]
	t.current = 0
	return t.snapshots[0]
}

// At returns the snapshot at index without moving the cursor.
func (t *Timeline) At(index int) (*memory.Snapshot, error) {
	if index < 0 || index >= len(t.snapshots) {
		return nil, fmt.Errorf("snapshot %d: %w", index, ErrIndexOutOfRange)
	}
	return t.snapshots[index], nil
}

// Len reports how many snapshots the timeline holds.
func (t *Timeline) Len() int {
	return len(t.snapshots)
}

// Index reports the cursor position.
func (t *Timeline) Index() int {
	return t.current
}

// CanBack reports whether the cursor has room to step back.
func (t *Timeline) CanBack() bool {
	return t.current > 0
}

// CanForward reports whether the cursor has room to step forward.
func (t *Timeline) CanForward() bool {
	return t.current < len(t.snapshots)-1
}

// Snapshots returns the timeline's snapshots in order. The slice is a
// copy; the snapshots themselves are shared and immutable.
func (t *Timeline) Snapshots() []*memory.Snapshot {
	out := make([]*memory.Snapshot, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

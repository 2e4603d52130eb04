package memory

import "fmt"

// Snapshot is one complete, immutable memory-state record: every segment,
// the type registry, and the CPU registers at a single step. Snapshots are
// created by NewInitialSnapshot or SnapshotBuilder.Build and must never be
// modified afterwards; the immutability is what lets any number of readers
// (a history list, a diff, a renderer) share one snapshot without
// coordination.
//
// Step ids are monotonic within one edit sequence by convention only;
// branching a new builder off a historical snapshot may reuse ids.
type Snapshot struct {
	StepID      int           `json:"stepId"`
	Description string        `json:"description,omitempty"`
	Globals     GlobalSegment `json:"globals"`
	Heap        HeapSegment   `json:"heap"`
	Stack       StackSegment  `json:"stack"`
	Types       *TypeRegistry `json:"types,omitempty"`
	CPU         CPUState      `json:"cpu"`
}

// NewInitialSnapshot builds the step-zero snapshot from declared globals,
// a type registry, and optional CPU state. A nil registry gets replaced by
// an empty one. It fails with ErrDuplicateGlobal when two globals share a
// name.
func NewInitialSnapshot(globals []GlobalVariable, types *TypeRegistry, cpu CPUState) (*Snapshot, error) {
	seg := GlobalSegment{}
	for _, g := range globals {
		if _, exists := seg.Variable(g.Name); exists {
			return nil, fmt.Errorf("declare global %q: %w", g.Name, ErrDuplicateGlobal)
		}
		seg.Vars = append(seg.Vars, g)
	}
	if types == nil {
		types = NewTypeRegistry()
	}
	return &Snapshot{
		StepID:      0,
		Description: "Initial state",
		Globals:     seg,
		Heap:        HeapSegment{},
		Stack:       StackSegment{},
		Types:       types,
		CPU:         cpu,
	}, nil
}

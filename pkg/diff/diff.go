// Package diff compares two memory snapshots and reports every observable
// difference as an ordered sequence of change records. The comparison is
// informational: step ids and descriptions are not compared, and
// diffing a snapshot against itself yields no changes.
package diff

import (
	"fmt"
	"strconv"

	"github.com/willibrandon/MemLab/pkg/memory"
)

// Segment tags which part of the snapshot a change belongs to.
type Segment int

const (
	SegmentGlobals Segment = iota
	SegmentStack
	SegmentHeap
	SegmentCPU
)

func (s Segment) String() string {
	switch s {
	case SegmentGlobals:
		return "globals"
	case SegmentStack:
		return "stack"
	case SegmentHeap:
		return "heap"
	case SegmentCPU:
		return "cpu"
	default:
		return "unknown"
	}
}

// Kind classifies a change.
type Kind int

const (
	Added Kind = iota
	Removed
	Modified
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change records one difference between two snapshots. Location names the
// entity ("global counter", "main::x", "frame 1 (helper)", "block @
// 0x1000", "pc"); for Modified changes Field names the attribute that
// changed and Before/After carry its rendered old and new values.
type Change struct {
	Segment  Segment
	Kind     Kind
	Location string
	Field    string
	Before   string
	After    string
}

func (c Change) String() string {
	switch c.Kind {
	case Added:
		if c.After == "" {
			return fmt.Sprintf("[%s] added %s", c.Segment, c.Location)
		}
		return fmt.Sprintf("[%s] added %s = %s", c.Segment, c.Location, c.After)
	case Removed:
		if c.Before == "" {
			return fmt.Sprintf("[%s] removed %s", c.Segment, c.Location)
		}
		return fmt.Sprintf("[%s] removed %s (was %s)", c.Segment, c.Location, c.Before)
	default:
		return fmt.Sprintf("[%s] %s %s: %s -> %s", c.Segment, c.Location, c.Field, c.Before, c.After)
	}
}

// Snapshots compares old and new segment by segment: globals, stack, heap,
// then CPU. Every actual difference in observable state appears as at
// least one record, and no record is emitted for an unchanged field.
func Snapshots(old, new *memory.Snapshot) []Change {
	var changes []Change
	changes = append(changes, diffGlobals(old.Globals, new.Globals)...)
	changes = append(changes, diffStack(old.Stack, new.Stack)...)
	changes = append(changes, diffHeap(old.Heap, new.Heap)...)
	changes = append(changes, diffCPU(old.CPU, new.CPU)...)
	return changes
}

func diffGlobals(old, new memory.GlobalSegment) []Change {
	var changes []Change

	for _, ng := range new.Vars {
		og, ok := old.Variable(ng.Name)
		if !ok {
			changes = append(changes, Change{
				Segment: SegmentGlobals, Kind: Added,
				Location: "global " + ng.Name, After: ng.Value.String(),
			})
			continue
		}
		loc := "global " + ng.Name
		if !og.Value.Equal(ng.Value) {
			changes = append(changes, modified(SegmentGlobals, loc, "value", og.Value.String(), ng.Value.String()))
		}
		if og.Address != ng.Address {
			changes = append(changes, modified(SegmentGlobals, loc, "address", og.Address.String(), ng.Address.String()))
		}
		if og.TypeName != ng.TypeName {
			changes = append(changes, modified(SegmentGlobals, loc, "type", og.TypeName, ng.TypeName))
		}
		if og.Storage != ng.Storage {
			changes = append(changes, modified(SegmentGlobals, loc, "storage", og.Storage.String(), ng.Storage.String()))
		}
		if og.Section != ng.Section {
			changes = append(changes, modified(SegmentGlobals, loc, "section", og.Section, ng.Section))
		}
	}

	for _, og := range old.Vars {
		if _, ok := new.Variable(og.Name); !ok {
			changes = append(changes, Change{
				Segment: SegmentGlobals, Kind: Removed,
				Location: "global " + og.Name, Before: og.Value.String(),
			})
		}
	}
	return changes
}

func diffStack(old, new memory.StackSegment) []Change {
	var changes []Change
	common := old.Depth()
	if new.Depth() < common {
		common = new.Depth()
	}

	// Frame structure first: a different function at the same position is
	// a removal plus an addition, deeper frames are plain pushes or pops.
	for i := 0; i < common; i++ {
		if old.Frames[i].Func != new.Frames[i].Func {
			changes = append(changes,
				Change{Segment: SegmentStack, Kind: Removed, Location: frameLocation(i, old.Frames[i])},
				Change{Segment: SegmentStack, Kind: Added, Location: frameLocation(i, new.Frames[i])},
			)
		}
	}
	for i := common; i < new.Depth(); i++ {
		changes = append(changes, Change{Segment: SegmentStack, Kind: Added, Location: frameLocation(i, new.Frames[i])})
	}
	for i := common; i < old.Depth(); i++ {
		changes = append(changes, Change{Segment: SegmentStack, Kind: Removed, Location: frameLocation(i, old.Frames[i])})
	}

	// Then the contents of frames running the same function
	for i := 0; i < common; i++ {
		if old.Frames[i].Func != new.Frames[i].Func {
			continue
		}
		changes = append(changes, diffFrame(i, old.Frames[i], new.Frames[i])...)
	}
	return changes
}

func frameLocation(index int, f memory.StackFrame) string {
	return fmt.Sprintf("frame %d (%s)", index, f.Func)
}

func diffFrame(index int, old, new memory.StackFrame) []Change {
	var changes []Change
	loc := frameLocation(index, new)

	if old.ReturnAddr != new.ReturnAddr {
		changes = append(changes, modified(SegmentStack, loc, "return address", old.ReturnAddr.String(), new.ReturnAddr.String()))
	}
	if old.Base != new.Base {
		changes = append(changes, modified(SegmentStack, loc, "base", old.Base.String(), new.Base.String()))
	}

	for _, nv := range append(append([]memory.Variable{}, new.Params...), new.Locals...) {
		varLoc := new.Func + "::" + nv.Name
		ov, ok := old.Variable(nv.Name)
		if !ok {
			changes = append(changes, Change{
				Segment: SegmentStack, Kind: Added,
				Location: varLoc, After: nv.Value.String(),
			})
			continue
		}
		if !ov.Value.Equal(nv.Value) {
			changes = append(changes, modified(SegmentStack, varLoc, "value", ov.Value.String(), nv.Value.String()))
		}
		if ov.TypeName != nv.TypeName {
			changes = append(changes, modified(SegmentStack, varLoc, "type", ov.TypeName, nv.TypeName))
		}
		if ov.Address != nv.Address {
			changes = append(changes, modified(SegmentStack, varLoc, "address", ov.Address.String(), nv.Address.String()))
		}
	}

	for _, ov := range append(append([]memory.Variable{}, old.Params...), old.Locals...) {
		if _, ok := new.Variable(ov.Name); !ok {
			changes = append(changes, Change{
				Segment: SegmentStack, Kind: Removed,
				Location: old.Func + "::" + ov.Name, Before: ov.Value.String(),
			})
		}
	}
	return changes
}

func diffHeap(old, new memory.HeapSegment) []Change {
	var changes []Change

	// Both block lists are address-sorted, so a merge walk visits the
	// union in ascending order.
	i, j := 0, 0
	for i < len(old.Blocks) || j < len(new.Blocks) {
		switch {
		case j >= len(new.Blocks) || (i < len(old.Blocks) && old.Blocks[i].Address < new.Blocks[j].Address):
			blk := old.Blocks[i]
			i++
			changes = append(changes, Change{
				Segment: SegmentHeap, Kind: Removed,
				Location: blockLocation(blk.Address), Before: blk.Value.String(),
			})
		case i >= len(old.Blocks) || new.Blocks[j].Address < old.Blocks[i].Address:
			blk := new.Blocks[j]
			j++
			changes = append(changes, Change{
				Segment: SegmentHeap, Kind: Added,
				Location: blockLocation(blk.Address), After: blk.Value.String(),
			})
		default:
			ob, nb := old.Blocks[i], new.Blocks[j]
			i++
			j++
			loc := blockLocation(nb.Address)
			if ob.Freed != nb.Freed {
				changes = append(changes, modified(SegmentHeap, loc, "freed", strconv.FormatBool(ob.Freed), strconv.FormatBool(nb.Freed)))
			}
			if !ob.Value.Equal(nb.Value) {
				changes = append(changes, modified(SegmentHeap, loc, "value", ob.Value.String(), nb.Value.String()))
			}
			if ob.Size != nb.Size {
				changes = append(changes, modified(SegmentHeap, loc, "size", strconv.FormatUint(ob.Size, 10), strconv.FormatUint(nb.Size, 10)))
			}
			if ob.TypeName != nb.TypeName {
				changes = append(changes, modified(SegmentHeap, loc, "type", ob.TypeName, nb.TypeName))
			}
			if ob.AllocSite != nb.AllocSite {
				changes = append(changes, modified(SegmentHeap, loc, "allocation site", ob.AllocSite, nb.AllocSite))
			}
		}
	}
	return changes
}

func blockLocation(addr memory.Address) string {
	return "block @ " + addr.String()
}

func diffCPU(old, new memory.CPUState) []Change {
	var changes []Change
	regs := []struct {
		name     string
		old, new memory.Address
	}{
		{"pc", old.PC, new.PC},
		{"sp", old.SP, new.SP},
		{"bp", old.BP, new.BP},
	}
	for _, r := range regs {
		if r.old != r.new {
			changes = append(changes, modified(SegmentCPU, r.name, "value", registerString(r.old), registerString(r.new)))
		}
	}
	return changes
}

func registerString(a memory.Address) string {
	if a.IsNull() {
		return "(not set)"
	}
	return a.String()
}

func modified(seg Segment, location, field, before, after string) Change {
	return Change{
		Segment:  seg,
		Kind:     Modified,
		Location: location,
		Field:    field,
		Before:   before,
		After:    after,
	}
}

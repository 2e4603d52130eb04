// Package render formats snapshots for the console.
//
// The layout is fixed-width tables for globals and heap blocks, a boxed
// view per stack frame, and an optional CPU section. All methods return
// strings; callers decide where the text goes. Output is deterministic:
// type registries are listed in name order even though they are stored
// in maps.
package render

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/willibrandon/MemLab/pkg/diff"
	"github.com/willibrandon/MemLab/pkg/memory"
)

// Renderer turns snapshots and diffs into console text.
type Renderer struct {
	cfg Config
}

// NewRenderer creates a renderer with the given configuration.
func NewRenderer(cfg Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// addr formats an address per the configuration.
func (r *Renderer) addr(a memory.Address) string {
	if r.cfg.HexAddresses {
		return a.String()
	}
	return fmt.Sprintf("%d", uint64(a))
}

// pointer formats a pointer value using the configured arrow.
func (r *Renderer) pointer(p *memory.PointerValue) string {
	if p == nil || p.IsNull {
		return "NULL"
	}
	return r.cfg.PointerArrow + " " + r.addr(p.Address)
}

// value formats v, expanding structs up to MaxStructDepth levels.
func (r *Renderer) value(v memory.Value, depth int) string {
	switch v.Kind {
	case memory.KindPointer:
		return r.pointer(v.Pointer)
	case memory.KindStruct:
		if depth >= r.cfg.MaxStructDepth {
			return "{...}"
		}
		var b strings.Builder
		b.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(r.value(f.Value, depth+1))
		}
		b.WriteByte('}')
		return b.String()
	default:
		return v.String()
	}
}

// clippedValue formats v for a table cell. Text values are quoted and cut
// at textLimit characters, everything else at otherLimit. Limits count
// runes so multi-byte arrows survive the cut.
func (r *Renderer) clippedValue(v memory.Value, textLimit, otherLimit int) string {
	if v.Kind == memory.KindText {
		if utf8.RuneCountInString(v.Text) < textLimit {
			return `"` + v.Text + `"`
		}
		return `"` + string([]rune(v.Text)[:textLimit-3]) + `..."`
	}
	s := r.value(v, 0)
	if utf8.RuneCountInString(s) < otherLimit {
		return s
	}
	return string([]rune(s)[:otherLimit-3]) + "..."
}

// Types renders the registry: structs with field offsets, unions, then
// typedefs, each group in name order.
func (r *Renderer) Types(reg *memory.TypeRegistry) string {
	lines := []string{"=== Types (Struct / Union / Typedef) ==="}
	if reg == nil || reg.Empty() {
		return strings.Join(append(lines, "(no types defined)"), "\n")
	}
	if len(reg.Structs) > 0 {
		lines = append(lines, "-- Structs --")
		for _, name := range sortedKeys(reg.Structs) {
			desc := reg.Structs[name]
			lines = append(lines, fmt.Sprintf("struct %s (size=%d bytes)", name, desc.Size))
			for _, f := range desc.Fields {
				lines = append(lines, fmt.Sprintf("  + %-15s : %-20s @ offset %d", f.Name, f.TypeName, f.Offset))
			}
		}
	}
	if len(reg.Unions) > 0 {
		lines = append(lines, "-- Unions --")
		for _, name := range sortedKeys(reg.Unions) {
			desc := reg.Unions[name]
			lines = append(lines, fmt.Sprintf("union %s (size=%d bytes)", name, desc.Size))
			for _, f := range desc.Fields {
				lines = append(lines, fmt.Sprintf("  + %-15s : %s", f.Name, f.TypeName))
			}
		}
	}
	if len(reg.Typedefs) > 0 {
		lines = append(lines, "-- Typedefs --")
		for _, alias := range sortedKeys(reg.Typedefs) {
			lines = append(lines, fmt.Sprintf("typedef %-20s = %s", alias, reg.Typedefs[alias]))
		}
	}
	return strings.Join(lines, "\n")
}

// Globals renders the global segment as a fixed-width table in
// declaration order.
func (r *Renderer) Globals(g memory.GlobalSegment) string {
	lines := []string{"=== Global & Static Variables ==="}
	if len(g.Vars) == 0 {
		return strings.Join(append(lines, "(no global/static variables)"), "\n")
	}
	header := fmt.Sprintf("%-20s %-12s %-18s %-15s %-10s",
		"Name", "Address", "Type", "Value", "Section")
	lines = append(lines, header, strings.Repeat("-", len(header)))
	for _, v := range g.Vars {
		lines = append(lines, fmt.Sprintf("%-20s %-12s %-18s %-15s %-10s",
			v.Name, r.addr(v.Address), v.TypeName,
			r.clippedValue(v.Value, 12, 15), v.Section))
	}
	return strings.Join(lines, "\n")
}

// Heap renders allocation records in address order with live/freed
// counts. Freed blocks show their status instead of the stale value.
// Allocation sites appear on a secondary line unless Compact is set.
func (r *Renderer) Heap(h memory.HeapSegment) string {
	lines := []string{"=== Heap ==="}
	if len(h.Blocks) == 0 {
		return strings.Join(append(lines, "(no allocations)"), "\n")
	}
	lines = append(lines,
		fmt.Sprintf("Total allocated: %d blocks (%d bytes)", len(h.Live()), h.LiveSize()),
		fmt.Sprintf("Freed: %d blocks", len(h.Freed())),
		"")
	header := fmt.Sprintf("%-12s %-8s %-18s %-8s %s",
		"Address", "Size", "Type", "Status", "Value")
	lines = append(lines, header, strings.Repeat("-", len(header)))
	for _, blk := range h.Blocks {
		status, val := "active", r.clippedValue(blk.Value, 20, 30)
		if blk.Freed {
			status, val = "freed", "<freed>"
		}
		lines = append(lines, fmt.Sprintf("%-12s %-8d %-18s %-8s %s",
			r.addr(blk.Address), blk.Size, blk.TypeName, status, val))
		if blk.AllocSite != "" && !r.cfg.Compact {
			lines = append(lines, "  └─ allocated at: "+blk.AllocSite)
		}
	}
	return strings.Join(lines, "\n")
}

// Frame renders one stack frame as a box with parameters before locals.
func (r *Renderer) Frame(f memory.StackFrame) string {
	top := fmt.Sprintf("┌─ Frame: %s ─┐", f.Func)
	lines := []string{top}
	if r.cfg.ShowFramePointers && !f.Base.IsNull() {
		lines = append(lines, "│ Frame Pointer: "+r.addr(f.Base))
	}
	if len(f.Params) > 0 {
		lines = append(lines, "│ Parameters:")
		for _, v := range f.Params {
			lines = append(lines, r.frameVar(v))
		}
	}
	if len(f.Locals) > 0 {
		lines = append(lines, "│ Locals:")
		for _, v := range f.Locals {
			lines = append(lines, r.frameVar(v))
		}
	}
	if f.VarCount() == 0 {
		lines = append(lines, "│   (no variables)")
	}
	lines = append(lines, "└"+strings.Repeat("─", utf8.RuneCountInString(top)-1))
	return strings.Join(lines, "\n")
}

func (r *Renderer) frameVar(v memory.Variable) string {
	return fmt.Sprintf("│   %-15s @%-12s %-12s = %s",
		v.Name, r.addr(v.Address), v.TypeName, r.clippedValue(v.Value, 15, 20))
}

// Stack renders every frame, outermost first, separated by blank lines.
func (r *Renderer) Stack(s memory.StackSegment) string {
	lines := []string{"=== Stack ==="}
	if s.Depth() == 0 {
		return strings.Join(append(lines, "(empty stack)"), "\n")
	}
	lines = append(lines, fmt.Sprintf("Depth: %d frame(s)", s.Depth()), "")
	for i, f := range s.Frames {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, r.Frame(f))
	}
	return strings.Join(lines, "\n")
}

// CPU renders the three registers; unset registers read "(not set)".
func (r *Renderer) CPU(c memory.CPUState) string {
	reg := func(a memory.Address) string {
		if a.IsNull() {
			return "(not set)"
		}
		return r.addr(a)
	}
	return strings.Join([]string{
		"=== CPU State ===",
		"PC (Program Counter): " + reg(c.PC),
		"SP (Stack Pointer):   " + reg(c.SP),
		"BP (Base Pointer):    " + reg(c.BP),
	}, "\n")
}

// Snapshot renders the full state: a step banner, then globals, stack,
// and heap. Types appear only when showTypes is set, the CPU section only
// when at least one register is set.
func (r *Renderer) Snapshot(s *memory.Snapshot, showTypes bool) string {
	rule := strings.Repeat("=", 70)
	var lines []string
	if s.Description != "" {
		lines = append(lines, rule, fmt.Sprintf(" Step %d: %s", s.StepID, s.Description), rule, "")
	} else {
		lines = append(lines, rule, fmt.Sprintf(" Step %d", s.StepID), rule, "")
	}
	if showTypes && s.Types != nil && !s.Types.Empty() {
		lines = append(lines, r.Types(s.Types), "")
	}
	lines = append(lines, r.Globals(s.Globals), "", r.Stack(s.Stack), "", r.Heap(s.Heap))
	if !s.CPU.IsZero() {
		lines = append(lines, "", r.CPU(s.CPU))
	}
	return strings.Join(lines, "\n")
}

// Diff renders the changes between two snapshots, one indented line per
// change.
func (r *Renderer) Diff(from, to *memory.Snapshot, changes []diff.Change) string {
	if len(changes) == 0 {
		return fmt.Sprintf("No changes between step %d and step %d", from.StepID, to.StepID)
	}
	indent := strings.Repeat(" ", r.cfg.IndentSize)
	lines := []string{fmt.Sprintf("Changes (step %d -> step %d):", from.StepID, to.StepID)}
	for _, c := range changes {
		lines = append(lines, indent+c.String())
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

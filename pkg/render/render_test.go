package render

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/willibrandon/MemLab/pkg/diff"
	"github.com/willibrandon/MemLab/pkg/memory"
)

// renderWorld builds a snapshot with every segment populated.
func renderWorld(t *testing.T) *memory.Snapshot {
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
		{
			Variable: memory.Variable{Name: "counter", Address: 0x404000, Value: memory.Int(7), TypeName: "int"},
			Section:  ".data",
		},
		{
			Variable: memory.Variable{Name: "banner", Address: 0x404008, Value: memory.Text("hello"), TypeName: "char*"},
			Storage:  memory.StorageStatic,
			Section:  ".rodata",
		},
	}

	base, err := memory.NewInitialSnapshot(globals, types, memory.CPUState{})
	if err != nil {
		t.Fatalf("Failed to create initial snapshot: %v", err)
	}

	b := memory.NewBuilder(base)
	if err := b.PushFrame("main", 0x400100); err != nil {
		t.Fatalf("Failed to push frame: %v", err)
	}
	if err := b.SetParameter("argc", memory.Int(1), "int"); err != nil {
		t.Fatalf("Failed to set parameter: %v", err)
	}
	if err := b.SetLocal("head", memory.PointerTo(0x1000, "Node"), "Node*"); err != nil {
		t.Fatalf("Failed to set local: %v", err)
	}
	if _, err := b.Malloc(16, "Node", memory.StructOf(
		memory.Field{Name: "value", Value: memory.Int(1)},
		memory.Field{Name: "next", Value: memory.NullPointer("Node")},
	), "main:12"); err != nil {
		t.Fatalf("Failed to malloc: %v", err)
	}
	snap, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build snapshot: %v", err)
	}
	return snap
}

func TestGlobalsTable(t *testing.T) {
	snap := renderWorld(t)
	r := NewRenderer(DefaultConfig())

	out := r.Globals(snap.Globals)
	if !strings.Contains(out, "=== Global & Static Variables ===") {
		t.Errorf("Expected globals banner, got:\n%s", out)
	}
	if !strings.Contains(out, "Name") || !strings.Contains(out, "Section") {
		t.Errorf("Expected table header, got:\n%s", out)
	}
	if !strings.Contains(out, "counter") || !strings.Contains(out, "0x404000") {
		t.Errorf("Expected counter row with address, got:\n%s", out)
	}
	if !strings.Contains(out, `"hello"`) {
		t.Errorf("Expected quoted string value, got:\n%s", out)
	}
	if !strings.Contains(out, ".rodata") {
		t.Errorf("Expected section label, got:\n%s", out)
	}
}

func TestGlobalsTruncatesLongValues(t *testing.T) {
	globals := []memory.GlobalVariable{
		{Variable: memory.Variable{
			Name:     "msg",
			Address:  0x404000,
			Value:    memory.Text("a very long message indeed"),
			TypeName: "char*",
		}},
	}
	snap, err := memory.NewInitialSnapshot(globals, nil, memory.CPUState{})
	if err != nil {
		t.Fatalf("Failed to create initial snapshot: %v", err)
	}

	out := NewRenderer(DefaultConfig()).Globals(snap.Globals)
	if !strings.Contains(out, `"a very lo..."`) {
		t.Errorf("Expected string cut to 9 characters plus ellipsis, got:\n%s", out)
	}
}

func TestEmptySegmentPlaceholders(t *testing.T) {
	snap, err := memory.NewInitialSnapshot(nil, nil, memory.CPUState{})
	if err != nil {
		t.Fatalf("Failed to create initial snapshot: %v", err)
	}
	r := NewRenderer(DefaultConfig())

	if out := r.Globals(snap.Globals); !strings.Contains(out, "(no global/static variables)") {
		t.Errorf("Expected empty globals placeholder, got:\n%s", out)
	}
	if out := r.Stack(snap.Stack); !strings.Contains(out, "(empty stack)") {
		t.Errorf("Expected empty stack placeholder, got:\n%s", out)
	}
	if out := r.Heap(snap.Heap); !strings.Contains(out, "(no allocations)") {
		t.Errorf("Expected empty heap placeholder, got:\n%s", out)
	}
	if out := r.Types(memory.NewTypeRegistry()); !strings.Contains(out, "(no types defined)") {
		t.Errorf("Expected empty types placeholder, got:\n%s", out)
	}
}

func TestFrameBox(t *testing.T) {
	snap := renderWorld(t)
	r := NewRenderer(DefaultConfig())

	frame, ok := snap.Stack.Current()
	if !ok {
		t.Fatalf("Failed to get current frame")
	}
	out := r.Frame(frame)
	lines := strings.Split(out, "\n")

	// Top and bottom borders must line up.
	top, bottom := lines[0], lines[len(lines)-1]
	if !strings.Contains(top, "┌─ Frame: main ─┐") {
		t.Errorf("Expected frame title, got %q", top)
	}
	if utf8.RuneCountInString(bottom) != utf8.RuneCountInString(top) {
		t.Errorf("Expected border width %d, got %d",
			utf8.RuneCountInString(top), utf8.RuneCountInString(bottom))
	}

	// Parameters render before locals.
	pi := strings.Index(out, "│ Parameters:")
	li := strings.Index(out, "│ Locals:")
	if pi < 0 || li < 0 || pi > li {
		t.Errorf("Expected parameters section before locals, got:\n%s", out)
	}
	if !strings.Contains(out, "argc") || !strings.Contains(out, "head") {
		t.Errorf("Expected variable rows, got:\n%s", out)
	}
	if !strings.Contains(out, "│ Frame Pointer: 0x7fff0000") {
		t.Errorf("Expected frame pointer line, got:\n%s", out)
	}
}

func TestFrameWithoutVariables(t *testing.T) {
	frame := memory.StackFrame{Func: "idle", Base: 0x7fff0000}
	out := NewRenderer(DefaultConfig()).Frame(frame)
	if !strings.Contains(out, "│   (no variables)") {
		t.Errorf("Expected no-variables placeholder, got:\n%s", out)
	}
}

func TestFramePointerHidden(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShowFramePointers = false
	frame := memory.StackFrame{Func: "main", Base: 0x7fff0000}
	out := NewRenderer(cfg).Frame(frame)
	if strings.Contains(out, "Frame Pointer") {
		t.Errorf("Expected frame pointer suppressed, got:\n%s", out)
	}
}

func TestHeapTable(t *testing.T) {
	snap := renderWorld(t)

	// Add a freed block alongside the live one.
	b := memory.NewBuilder(snap)
	addr, err := b.Malloc(8, "int", memory.Int(5), "")
	if err != nil {
		t.Fatalf("Failed to malloc: %v", err)
	}
	if err := b.Free(addr); err != nil {
		t.Fatalf("Failed to free: %v", err)
	}
	snap2, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build snapshot: %v", err)
	}

	out := NewRenderer(DefaultConfig()).Heap(snap2.Heap)
	if !strings.Contains(out, "Total allocated: 1 blocks (16 bytes)") {
		t.Errorf("Expected live totals, got:\n%s", out)
	}
	if !strings.Contains(out, "Freed: 1 blocks") {
		t.Errorf("Expected freed count, got:\n%s", out)
	}
	if !strings.Contains(out, "active") || !strings.Contains(out, "freed") {
		t.Errorf("Expected both statuses, got:\n%s", out)
	}
	if !strings.Contains(out, "<freed>") {
		t.Errorf("Expected freed value marker, got:\n%s", out)
	}
	if !strings.Contains(out, "└─ allocated at: main:12") {
		t.Errorf("Expected allocation site line, got:\n%s", out)
	}
}

func TestHeapCompactHidesAllocationSites(t *testing.T) {
	snap := renderWorld(t)
	cfg := DefaultConfig()
	cfg.Compact = true
	out := NewRenderer(cfg).Heap(snap.Heap)
	if strings.Contains(out, "allocated at") {
		t.Errorf("Expected allocation sites suppressed in compact mode, got:\n%s", out)
	}
}

func TestPointerArrowConfiguration(t *testing.T) {
	snap := renderWorld(t)

	unicode := NewRenderer(DefaultConfig()).Stack(snap.Stack)
	if !strings.Contains(unicode, "→ 0x1000") {
		t.Errorf("Expected Unicode arrow, got:\n%s", unicode)
	}

	cfg := DefaultConfig()
	cfg.PointerArrow = "->"
	ascii := NewRenderer(cfg).Stack(snap.Stack)
	if !strings.Contains(ascii, "-> 0x1000") {
		t.Errorf("Expected ASCII arrow, got:\n%s", ascii)
	}
}

func TestNullPointerRendering(t *testing.T) {
	frame := memory.StackFrame{
		Func: "main",
		Locals: []memory.Variable{
			{Name: "p", Address: 0x7ffefff8, Value: memory.NullPointer("int"), TypeName: "int*"},
		},
	}
	out := NewRenderer(DefaultConfig()).Frame(frame)
	if !strings.Contains(out, "= NULL") {
		t.Errorf("Expected NULL for null pointer, got:\n%s", out)
	}
}

func TestStructDepthLimit(t *testing.T) {
	inner := memory.StructOf(memory.Field{Name: "x", Value: memory.Int(1)})
	middle := memory.StructOf(memory.Field{Name: "inner", Value: inner})
	outer := memory.StructOf(memory.Field{Name: "middle", Value: middle})

	cfg := DefaultConfig()
	cfg.MaxStructDepth = 2
	r := NewRenderer(cfg)

	out := r.value(outer, 0)
	if !strings.Contains(out, "{middle: {inner: {...}}}") {
		t.Errorf("Expected innermost struct elided, got %q", out)
	}

	cfg.MaxStructDepth = 3
	if out := NewRenderer(cfg).value(outer, 0); !strings.Contains(out, "x: 1") {
		t.Errorf("Expected full expansion at depth 3, got %q", out)
	}
}

func TestCPURendering(t *testing.T) {
	r := NewRenderer(DefaultConfig())

	out := r.CPU(memory.CPUState{PC: 0x400000})
	if !strings.Contains(out, "PC (Program Counter): 0x400000") {
		t.Errorf("Expected PC line, got:\n%s", out)
	}
	if !strings.Contains(out, "SP (Stack Pointer):   (not set)") {
		t.Errorf("Expected unset SP, got:\n%s", out)
	}
	if !strings.Contains(out, "BP (Base Pointer):    (not set)") {
		t.Errorf("Expected unset BP, got:\n%s", out)
	}
}

func TestSnapshotBanner(t *testing.T) {
	snap := renderWorld(t)
	r := NewRenderer(DefaultConfig())

	out := r.Snapshot(snap, false)
	if !strings.Contains(out, " Step 1") {
		t.Errorf("Expected step banner, got:\n%s", out)
	}
	if !strings.Contains(out, strings.Repeat("=", 70)) {
		t.Errorf("Expected banner rule, got:\n%s", out)
	}
	if strings.Contains(out, "=== Types") {
		t.Errorf("Expected types omitted by default, got:\n%s", out)
	}
	if strings.Contains(out, "=== CPU State ===") {
		t.Errorf("Expected CPU section omitted when no register is set, got:\n%s", out)
	}

	withTypes := r.Snapshot(snap, true)
	if !strings.Contains(withTypes, "=== Types (Struct / Union / Typedef) ===") {
		t.Errorf("Expected types section, got:\n%s", withTypes)
	}
	if !strings.Contains(withTypes, "struct Node (size=16 bytes)") {
		t.Errorf("Expected struct definition, got:\n%s", withTypes)
	}
	if !strings.Contains(withTypes, "typedef node_t") {
		t.Errorf("Expected typedef line, got:\n%s", withTypes)
	}
}

func TestSnapshotIncludesCPUWhenSet(t *testing.T) {
	snap := renderWorld(t)
	b := memory.NewBuilder(snap)
	if err := b.SetPC(0x400200); err != nil {
		t.Fatalf("Failed to set PC: %v", err)
	}
	snap2, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build snapshot: %v", err)
	}

	out := NewRenderer(DefaultConfig()).Snapshot(snap2, false)
	if !strings.Contains(out, "=== CPU State ===") {
		t.Errorf("Expected CPU section, got:\n%s", out)
	}
}

func TestSnapshotDescription(t *testing.T) {
	snap, err := memory.NewInitialSnapshot(nil, nil, memory.CPUState{})
	if err != nil {
		t.Fatalf("Failed to create initial snapshot: %v", err)
	}
	out := NewRenderer(DefaultConfig()).Snapshot(snap, false)
	if !strings.Contains(out, " Step 0: Initial state") {
		t.Errorf("Expected description in banner, got:\n%s", out)
	}
}

func TestTypesListedInNameOrder(t *testing.T) {
	types := memory.NewTypeRegistry()
	types.RegisterStruct(memory.StructDescriptor{Name: "Zebra", Size: 4})
	types.RegisterStruct(memory.StructDescriptor{Name: "Apple", Size: 8})

	out := NewRenderer(DefaultConfig()).Types(types)
	ai := strings.Index(out, "struct Apple")
	zi := strings.Index(out, "struct Zebra")
	if ai < 0 || zi < 0 || ai > zi {
		t.Errorf("Expected structs in name order, got:\n%s", out)
	}
}

func TestDiffRendering(t *testing.T) {
	snap := renderWorld(t)
	b := memory.NewBuilder(snap)
	if err := b.SetGlobal("counter", memory.Int(8)); err != nil {
		t.Fatalf("Failed to set global: %v", err)
	}
	snap2, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build snapshot: %v", err)
	}

	changes := diff.Snapshots(snap, snap2)
	out := NewRenderer(DefaultConfig()).Diff(snap, snap2, changes)
	if !strings.Contains(out, "Changes (step 1 -> step 2):") {
		t.Errorf("Expected diff header, got:\n%s", out)
	}
	if !strings.Contains(out, "  [globals] global counter value: 7 -> 8") {
		t.Errorf("Expected indented change line, got:\n%s", out)
	}

	empty := NewRenderer(DefaultConfig()).Diff(snap, snap, nil)
	if !strings.Contains(empty, "No changes between step 1 and step 1") {
		t.Errorf("Expected no-changes message, got:\n%s", empty)
	}
}

func TestDetectConfigNonTerminal(t *testing.T) {
	cfg := DetectConfig(&bytes.Buffer{})
	if cfg.PointerArrow != "->" {
		t.Errorf("Expected ASCII arrow for non-terminal writer, got %q", cfg.PointerArrow)
	}
	if cfg.MaxStructDepth != 2 || cfg.IndentSize != 2 {
		t.Errorf("Expected default depth and indent, got %+v", cfg)
	}
}

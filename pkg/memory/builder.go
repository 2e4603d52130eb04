package memory

import "fmt"

// Layout constants for synthesized addresses. Stack frames are laid out
// downward from stackBase, one frameStride apart, with 8-byte variable
// slots below each frame base. Heap allocations are issued upward from
// heapBase in heapStride increments.
const (
	stackBase   Address = 0x7fff0000
	frameStride Address = 0x400
	varSlot     Address = 8
	heapBase    Address = 0x1000
	heapStride  Address = 0x100
)

// SnapshotBuilder stages a batch of mutations against a base snapshot and
// emits a new snapshot on Build. The base is never touched: each segment
// is copied the first time an operation mutates it, and segments no
// operation touched are shared with the base, which is safe because
// snapshots are immutable.
//
// A failed operation applies nothing; earlier successful operations stay
// staged and the builder remains usable. A builder is single-use: after
// Build every further call fails with ErrBuilderFinalized. Builders model
// a strictly sequential edit and are not safe for concurrent use.
type SnapshotBuilder struct {
	base *Snapshot

	globals GlobalSegment
	heap    HeapSegment
	stack   StackSegment
	cpu     CPUState

	ownGlobals bool
	ownHeap    bool
	ownStack   bool

	heapCursor  Address
	stepID      int
	stepSet     bool
	description string
	finalized   bool
}

// NewBuilder opens a builder over base.
func NewBuilder(base *Snapshot) *SnapshotBuilder {
	return &SnapshotBuilder{
		base:       base,
		globals:    base.Globals,
		heap:       base.Heap,
		stack:      base.Stack,
		cpu:        base.CPU,
		heapCursor: heapBase,
	}
}

func (b *SnapshotBuilder) ensureGlobals() *GlobalSegment {
	if !b.ownGlobals {
		b.globals = b.globals.clone()
		b.ownGlobals = true
	}
	return &b.globals
}

func (b *SnapshotBuilder) ensureHeap() *HeapSegment {
	if !b.ownHeap {
		b.heap = b.heap.clone()
		b.ownHeap = true
	}
	return &b.heap
}

func (b *SnapshotBuilder) ensureStack() *StackSegment {
	if !b.ownStack {
		b.stack = b.stack.clone()
		b.ownStack = true
	}
	return &b.stack
}

// PushFrame appends a new, empty frame for functionName. The frame base is
// derived from the new frame's depth, so addresses are stable across
// identical edit sequences. returnAddr may be NullAddress when unknown.
func (b *SnapshotBuilder) PushFrame(functionName string, returnAddr Address) error {
	if b.finalized {
		return fmt.Errorf("push frame %q: %w", functionName, ErrBuilderFinalized)
	}
	st := b.ensureStack()
	base := stackBase - Address(len(st.Frames))*frameStride
	st.Frames = append(st.Frames, StackFrame{
		Func:       functionName,
		ReturnAddr: returnAddr,
		Base:       base,
	})
	return nil
}

// PopFrame removes the innermost frame. It fails with ErrEmptyStack when
// no frame is on the stack.
func (b *SnapshotBuilder) PopFrame() error {
	if b.finalized {
		return fmt.Errorf("pop frame: %w", ErrBuilderFinalized)
	}
	if b.stack.Depth() == 0 {
		return fmt.Errorf("pop frame: %w", ErrEmptyStack)
	}
	st := b.ensureStack()
	st.Frames = st.Frames[:len(st.Frames)-1]
	return nil
}

// SetLocal inserts or overwrites a variable in the current frame. A new
// variable is appended to the locals in declaration order and receives the
// frame's next slot address; overwriting by name replaces the value and
// type in place (parameter or local) and keeps the existing address.
func (b *SnapshotBuilder) SetLocal(name string, value Value, typeName string) error {
	if b.finalized {
		return fmt.Errorf("set local %q: %w", name, ErrBuilderFinalized)
	}
	if b.stack.Depth() == 0 {
		return fmt.Errorf("set local %q: %w", name, ErrNoActiveFrame)
	}
	st := b.ensureStack()
	frame := &st.Frames[len(st.Frames)-1]
	upsertFrameVar(frame, &frame.Locals, name, value, typeName)
	return nil
}

// SetParameter inserts or overwrites a variable in the current frame, the
// same way SetLocal does, placing new names in the parameter list.
func (b *SnapshotBuilder) SetParameter(name string, value Value, typeName string) error {
	if b.finalized {
		return fmt.Errorf("set parameter %q: %w", name, ErrBuilderFinalized)
	}
	if b.stack.Depth() == 0 {
		return fmt.Errorf("set parameter %q: %w", name, ErrNoActiveFrame)
	}
	st := b.ensureStack()
	frame := &st.Frames[len(st.Frames)-1]
	upsertFrameVar(frame, &frame.Params, name, value, typeName)
	return nil
}

// upsertFrameVar replaces an existing variable of the frame by name, or
// appends a new one to list with the frame's next slot address.
func upsertFrameVar(frame *StackFrame, list *[]Variable, name string, value Value, typeName string) {
	for i := range frame.Params {
		if frame.Params[i].Name == name {
			frame.Params[i].Value = value
			frame.Params[i].TypeName = typeName
			return
		}
	}
	for i := range frame.Locals {
		if frame.Locals[i].Name == name {
			frame.Locals[i].Value = value
			frame.Locals[i].TypeName = typeName
			return
		}
	}
	addr := frame.Base - varSlot*Address(frame.VarCount()+1)
	*list = append(*list, Variable{
		Name:     name,
		Address:  addr,
		Value:    value,
		TypeName: typeName,
	})
}

// UpdateLocal replaces the value of an existing local in the current
// frame. Unlike SetLocal it never declares: a missing name fails with
// ErrVariableNotFound.
func (b *SnapshotBuilder) UpdateLocal(name string, value Value) error {
	if b.finalized {
		return fmt.Errorf("update local %q: %w", name, ErrBuilderFinalized)
	}
	if b.stack.Depth() == 0 {
		return fmt.Errorf("update local %q: %w", name, ErrNoActiveFrame)
	}
	st := b.ensureStack()
	frame := &st.Frames[len(st.Frames)-1]
	for i := range frame.Locals {
		if frame.Locals[i].Name == name {
			frame.Locals[i].Value = value
			return nil
		}
	}
	return fmt.Errorf("update local %q: %w", name, ErrVariableNotFound)
}

// Malloc allocates a new live block at the next free cursor address and
// returns that address so later operations can reference the block. The
// cursor skips every recorded address, freed ones included, and any range
// that would overlap a live block. A KindInvalid initial value defaults to
// integer zero.
func (b *SnapshotBuilder) Malloc(size uint64, typeName string, initial Value, site string) (Address, error) {
	if b.finalized {
		return NullAddress, fmt.Errorf("malloc %d bytes: %w", size, ErrBuilderFinalized)
	}
	addr := b.heapCursor
	for {
		if _, taken := b.heap.Block(addr); !taken && !b.heap.overlapsLive(addr, size) {
			break
		}
		addr += heapStride
	}
	b.heapCursor = addr + heapStride
	h := b.ensureHeap()
	h.put(HeapBlock{
		Address:   addr,
		Size:      size,
		TypeName:  typeName,
		Value:     orZero(initial),
		AllocSite: site,
	})
	return addr, nil
}

// MallocAt allocates a new live block at an explicit address. It fails
// with ErrAddressInUse when the address is null, already carries a live
// block, or the new range would overlap one. An address carrying only a
// freed record is reused: the freed record is replaced by the new block.
func (b *SnapshotBuilder) MallocAt(address Address, size uint64, typeName string, initial Value, site string) (Address, error) {
	if b.finalized {
		return NullAddress, fmt.Errorf("malloc at %s: %w", address, ErrBuilderFinalized)
	}
	if address.IsNull() {
		return NullAddress, fmt.Errorf("malloc at reserved null address: %w", ErrAddressInUse)
	}
	if existing, ok := b.heap.Block(address); ok && !existing.Freed {
		return NullAddress, fmt.Errorf("malloc at %s: %w", address, ErrAddressInUse)
	}
	if b.heap.overlapsLive(address, size) {
		return NullAddress, fmt.Errorf("malloc at %s: %w", address, ErrAddressInUse)
	}
	h := b.ensureHeap()
	h.put(HeapBlock{
		Address:   address,
		Size:      size,
		TypeName:  typeName,
		Value:     orZero(initial),
		AllocSite: site,
	})
	return address, nil
}

func orZero(v Value) Value {
	if v.Kind == KindInvalid {
		return Int(0)
	}
	return v
}

// Free marks the block at addr freed, retaining its record and last value.
// It fails with ErrBlockNotFound when no record exists and ErrDoubleFree
// when the block is already freed.
func (b *SnapshotBuilder) Free(addr Address) error {
	if b.finalized {
		return fmt.Errorf("free %s: %w", addr, ErrBuilderFinalized)
	}
	blk, ok := b.heap.Block(addr)
	if !ok {
		return fmt.Errorf("free %s: %w", addr, ErrBlockNotFound)
	}
	if blk.Freed {
		return fmt.Errorf("free %s: %w", addr, ErrDoubleFree)
	}
	blk.Freed = true
	b.ensureHeap().put(blk)
	return nil
}

// WriteHeap replaces the value of the live block at addr. It fails with
// ErrBlockNotFound when no record exists and ErrUseAfterFree when the
// block is freed.
func (b *SnapshotBuilder) WriteHeap(addr Address, value Value) error {
	if b.finalized {
		return fmt.Errorf("write %s: %w", addr, ErrBuilderFinalized)
	}
	blk, ok := b.heap.Block(addr)
	if !ok {
		return fmt.Errorf("write %s: %w", addr, ErrBlockNotFound)
	}
	if blk.Freed {
		return fmt.Errorf("write %s: %w", addr, ErrUseAfterFree)
	}
	blk.Value = value
	b.ensureHeap().put(blk)
	return nil
}

// ReadHeap returns the value of the live block at addr. It shares the
// write path's failure modes and stages nothing.
func (b *SnapshotBuilder) ReadHeap(addr Address) (Value, error) {
	if b.finalized {
		return Value{}, fmt.Errorf("read %s: %w", addr, ErrBuilderFinalized)
	}
	blk, ok := b.heap.Block(addr)
	if !ok {
		return Value{}, fmt.Errorf("read %s: %w", addr, ErrBlockNotFound)
	}
	if blk.Freed {
		return Value{}, fmt.Errorf("read %s: %w", addr, ErrUseAfterFree)
	}
	return blk.Value, nil
}

// SetGlobal replaces the value of an existing global or static. It fails
// with ErrVariableNotFound when no global has that name.
func (b *SnapshotBuilder) SetGlobal(name string, value Value) error {
	if b.finalized {
		return fmt.Errorf("set global %q: %w", name, ErrBuilderFinalized)
	}
	if _, ok := b.globals.Variable(name); !ok {
		return fmt.Errorf("set global %q: %w", name, ErrVariableNotFound)
	}
	g := b.ensureGlobals()
	for i := range g.Vars {
		if g.Vars[i].Name == name {
			g.Vars[i].Value = value
			break
		}
	}
	return nil
}

// AddGlobal declares a new global or static variable. It fails with
// ErrDuplicateGlobal when the name is taken.
func (b *SnapshotBuilder) AddGlobal(v GlobalVariable) error {
	if b.finalized {
		return fmt.Errorf("add global %q: %w", v.Name, ErrBuilderFinalized)
	}
	if _, ok := b.globals.Variable(v.Name); ok {
		return fmt.Errorf("add global %q: %w", v.Name, ErrDuplicateGlobal)
	}
	g := b.ensureGlobals()
	g.Vars = append(g.Vars, v)
	return nil
}

// SetPC sets the program counter.
func (b *SnapshotBuilder) SetPC(addr Address) error {
	if b.finalized {
		return fmt.Errorf("set pc: %w", ErrBuilderFinalized)
	}
	b.cpu.PC = addr
	return nil
}

// SetSP sets the stack pointer.
func (b *SnapshotBuilder) SetSP(addr Address) error {
	if b.finalized {
		return fmt.Errorf("set sp: %w", ErrBuilderFinalized)
	}
	b.cpu.SP = addr
	return nil
}

// SetBP sets the base pointer.
func (b *SnapshotBuilder) SetBP(addr Address) error {
	if b.finalized {
		return fmt.Errorf("set bp: %w", ErrBuilderFinalized)
	}
	b.cpu.BP = addr
	return nil
}

// SetStep sets the step id and description stamped on the built snapshot.
// It does not build anything itself.
func (b *SnapshotBuilder) SetStep(id int, description string) error {
	if b.finalized {
		return fmt.Errorf("set step: %w", ErrBuilderFinalized)
	}
	b.stepID = id
	b.stepSet = true
	b.description = description
	return nil
}

// Build finalizes the staged state into a new snapshot. Segments no
// operation touched are shared with the base. Without SetStep, the result
// gets the base's step id plus one and an empty description. The builder
// rejects every call after Build with ErrBuilderFinalized.
func (b *SnapshotBuilder) Build() (*Snapshot, error) {
	if b.finalized {
		return nil, fmt.Errorf("build: %w", ErrBuilderFinalized)
	}
	b.finalized = true
	stepID := b.base.StepID + 1
	if b.stepSet {
		stepID = b.stepID
	}
	return &Snapshot{
		StepID:      stepID,
		Description: b.description,
		Globals:     b.globals,
		Heap:        b.heap,
		Stack:       b.stack,
		Types:       b.base.Types,
		CPU:         b.cpu,
	}, nil
}

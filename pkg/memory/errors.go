package memory

import "errors"

// Failure conditions surfaced by builder and registry operations. All are
// detected synchronously and none is retryable; a failed operation applies
// nothing, so the caller can keep using the builder or fall back to the
// last built snapshot.
var (
	// ErrNoActiveFrame indicates a frame-scoped operation with no frame on the stack.
	ErrNoActiveFrame = errors.New("memory: no active stack frame")
	// ErrEmptyStack indicates a pop on an empty stack.
	ErrEmptyStack = errors.New("memory: stack is empty")
	// ErrVariableNotFound indicates a named variable lookup that matched nothing.
	ErrVariableNotFound = errors.New("memory: variable not found")
	// ErrDuplicateGlobal indicates a global declaration reusing an existing name.
	ErrDuplicateGlobal = errors.New("memory: global already defined")
	// ErrBlockNotFound indicates a heap operation on an address with no record.
	ErrBlockNotFound = errors.New("memory: no heap block at address")
	// ErrUseAfterFree indicates a read or write touching a freed block.
	ErrUseAfterFree = errors.New("memory: use after free")
	// ErrDoubleFree indicates a free on an already-freed block.
	ErrDoubleFree = errors.New("memory: double free")
	// ErrAddressInUse indicates an explicit allocation colliding with a live block.
	ErrAddressInUse = errors.New("memory: address already in use")
	// ErrCyclicTypedef indicates a typedef chain that never reaches a real type.
	ErrCyclicTypedef = errors.New("memory: cyclic typedef chain")
	// ErrBuilderFinalized indicates an operation on a builder after Build.
	ErrBuilderFinalized = errors.New("memory: builder already finalized")
)

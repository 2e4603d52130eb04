package memory

// CPUState records the program counter, stack pointer, and base pointer.
// Each register is independently settable; the null address means the
// register has not been set.
type CPUState struct {
	PC Address `json:"pc,omitempty"`
	SP Address `json:"sp,omitempty"`
	BP Address `json:"bp,omitempty"`
}

// IsZero reports whether no register has been set.
func (c CPUState) IsZero() bool {
	return c == CPUState{}
}

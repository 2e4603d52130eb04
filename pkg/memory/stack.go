package memory

// StackFrame models one function activation. Parameters and locals keep
// declaration order; a name is unique within the frame across both lists.
// Base is the frame's synthesized base address, from which per-variable
// slot addresses are derived.
type StackFrame struct {
	Func       string     `json:"func"`
	ReturnAddr Address    `json:"returnAddr,omitempty"`
	Base       Address    `json:"base"`
	Params     []Variable `json:"params,omitempty"`
	Locals     []Variable `json:"locals,omitempty"`
}

// Variable finds a parameter or local by name. Parameters are consulted
// first.
func (f StackFrame) Variable(name string) (Variable, bool) {
	for _, v := range f.Params {
		if v.Name == name {
			return v, true
		}
	}
	for _, v := range f.Locals {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// VarCount returns the number of variables placed in the frame.
func (f StackFrame) VarCount() int {
	return len(f.Params) + len(f.Locals)
}

// clone returns a frame whose parameter and local containers are
// independent of the receiver's.
func (f StackFrame) clone() StackFrame {
	out := f
	if len(f.Params) > 0 {
		out.Params = append([]Variable(nil), f.Params...)
	}
	if len(f.Locals) > 0 {
		out.Locals = append([]Variable(nil), f.Locals...)
	}
	return out
}

// StackSegment is the call stack of a snapshot, innermost frame last.
type StackSegment struct {
	Frames []StackFrame `json:"frames,omitempty"`
}

// Depth returns the number of frames.
func (s StackSegment) Depth() int { return len(s.Frames) }

// Current returns the innermost frame.
func (s StackSegment) Current() (StackFrame, bool) {
	if len(s.Frames) == 0 {
		return StackFrame{}, false
	}
	return s.Frames[len(s.Frames)-1], true
}

// FindVariable searches the stack innermost-first for a variable and
// returns the index of the owning frame alongside it.
func (s StackSegment) FindVariable(name string) (int, Variable, bool) {
	for i := len(s.Frames) - 1; i >= 0; i-- {
		if v, ok := s.Frames[i].Variable(name); ok {
			return i, v, true
		}
	}
	return 0, Variable{}, false
}

// clone returns a segment with independent frame containers all the way
// down to the per-frame variable lists.
func (s StackSegment) clone() StackSegment {
	out := StackSegment{}
	if len(s.Frames) > 0 {
		out.Frames = make([]StackFrame, len(s.Frames))
		for i, f := range s.Frames {
			out.Frames[i] = f.clone()
		}
	}
	return out
}

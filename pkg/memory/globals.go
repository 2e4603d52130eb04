package memory

// StorageClass distinguishes file-scope globals from statics.
type StorageClass int

const (
	StorageGlobal StorageClass = iota
	StorageStatic
)

// String returns the C keyword for the storage class.
func (c StorageClass) String() string {
	if c == StorageStatic {
		return "static"
	}
	return "global"
}

// Variable is a named, typed slot with a current value and an address.
// The same shape serves stack locals and parameters; GlobalVariable embeds
// it for the global segment.
type Variable struct {
	Name     string  `json:"name"`
	Address  Address `json:"address"`
	Value    Value   `json:"value"`
	TypeName string  `json:"typeName"`
}

// GlobalVariable is a Variable with storage metadata. Section is a display
// label (".data", ".bss", ...) and carries no behavioral weight.
type GlobalVariable struct {
	Variable
	Storage StorageClass `json:"storage"`
	Section string       `json:"section,omitempty"`
}

// GlobalSegment holds the global and static variables of a snapshot in
// declaration order. Names are unique across the whole segment.
type GlobalSegment struct {
	Vars []GlobalVariable `json:"vars,omitempty"`
}

// Variable returns the named global and whether it exists.
func (g GlobalSegment) Variable(name string) (GlobalVariable, bool) {
	for _, v := range g.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return GlobalVariable{}, false
}

// ByAddress returns the global whose address matches exactly, if any.
func (g GlobalSegment) ByAddress(addr Address) (GlobalVariable, bool) {
	for _, v := range g.Vars {
		if v.Address == addr {
			return v, true
		}
	}
	return GlobalVariable{}, false
}

// clone returns a segment whose variable container is independent of the
// receiver's. Values are shared; they are never mutated in place.
func (g GlobalSegment) clone() GlobalSegment {
	out := GlobalSegment{}
	if len(g.Vars) > 0 {
		out.Vars = make([]GlobalVariable, len(g.Vars))
		copy(out.Vars, g.Vars)
	}
	return out
}

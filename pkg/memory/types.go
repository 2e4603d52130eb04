package memory

import "fmt"

// FieldDescriptor describes one member of a struct or union type.
type FieldDescriptor struct {
	Name     string `json:"name"`
	TypeName string `json:"typeName"`
	Offset   int    `json:"offset"`
}

// StructDescriptor describes a C struct type: ordered fields and the total
// size in bytes.
type StructDescriptor struct {
	Name   string            `json:"name"`
	Fields []FieldDescriptor `json:"fields,omitempty"`
	Size   int               `json:"size"`
}

// UnionDescriptor describes a C union type. All fields share offset zero;
// the size is the largest member's.
type UnionDescriptor struct {
	Name   string            `json:"name"`
	Fields []FieldDescriptor `json:"fields,omitempty"`
	Size   int               `json:"size"`
}

// TypeRegistry holds the user-defined types of the modeled program. A
// registry is populated before the initial snapshot is taken and shared
// unchanged by every snapshot derived from it.
type TypeRegistry struct {
	Structs  map[string]StructDescriptor `json:"structs,omitempty"`
	Unions   map[string]UnionDescriptor  `json:"unions,omitempty"`
	Typedefs map[string]string           `json:"typedefs,omitempty"`
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		Structs:  make(map[string]StructDescriptor),
		Unions:   make(map[string]UnionDescriptor),
		Typedefs: make(map[string]string),
	}
}

// RegisterStruct records a struct type, replacing any previous definition
// of the same name.
func (r *TypeRegistry) RegisterStruct(s StructDescriptor) {
	if r.Structs == nil {
		r.Structs = make(map[string]StructDescriptor)
	}
	r.Structs[s.Name] = s
}

// RegisterUnion records a union type, replacing any previous definition of
// the same name.
func (r *TypeRegistry) RegisterUnion(u UnionDescriptor) {
	if r.Unions == nil {
		r.Unions = make(map[string]UnionDescriptor)
	}
	r.Unions[u.Name] = u
}

// RegisterTypedef records alias as another name for realType.
func (r *TypeRegistry) RegisterTypedef(alias, realType string) {
	if r.Typedefs == nil {
		r.Typedefs = make(map[string]string)
	}
	r.Typedefs[alias] = realType
}

// Resolve follows typedef aliases until a non-alias name is reached. It
// fails with ErrCyclicTypedef when the alias chain loops back on itself.
func (r *TypeRegistry) Resolve(typeName string) (string, error) {
	seen := make(map[string]bool)
	for {
		real, ok := r.Typedefs[typeName]
		if !ok {
			return typeName, nil
		}
		if seen[typeName] {
			return "", fmt.Errorf("resolve type %q: %w", typeName, ErrCyclicTypedef)
		}
		seen[typeName] = true
		typeName = real
	}
}

// Empty reports whether the registry holds no definitions.
func (r *TypeRegistry) Empty() bool {
	return r == nil || (len(r.Structs) == 0 && len(r.Unions) == 0 && len(r.Typedefs) == 0)
}

package memory

import "fmt"

// Address identifies a location in modeled memory. Zero is reserved to
// mean "no address": it is the canonical null pointer target and the
// unset value for CPU registers and return addresses.
type Address uint64

// NullAddress is the reserved zero address.
const NullAddress Address = 0

// IsNull reports whether a is the reserved null address.
func (a Address) IsNull() bool { return a == NullAddress }

// String renders the address in hexadecimal.
func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

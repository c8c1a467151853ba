// Package codec translates typed field values to and from the byte layout a
// controller datablock uses on the bus: fixed-width, big-endian numbers,
// bit-addressed booleans and counted strings.
package codec

import (
	"fmt"
	"strings"
)

// FieldType identifies how a field is laid out inside a datablock.
type FieldType int

// The supported field types.
const (
	Int FieldType = iota + 1
	DInt
	Word
	DWord
	Byte
	Bool
	Real
	String
	Time
	S5Time
)

var fieldTypeNames = map[FieldType]string{
	Int:    "int",
	DInt:   "dint",
	Word:   "word",
	DWord:  "dword",
	Byte:   "byte",
	Bool:   "bool",
	Real:   "real",
	String: "string",
	Time:   "time",
	S5Time: "s5time",
}

// FieldTypes lists every supported type in declaration order.
func FieldTypes() []FieldType {
	return []FieldType{Int, DInt, Word, DWord, Byte, Bool, Real, String, Time,
		S5Time}
}

// ParseFieldType maps a type tag such as "dint" to its FieldType. Tags are
// matched case-insensitively.
func ParseFieldType(tag string) (FieldType, error) {
	want := strings.ToLower(strings.TrimSpace(tag))
	for t, name := range fieldTypeNames {
		if name == want {
			return t, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, tag)
}

func (t FieldType) String() string {
	name, ok := fieldTypeNames[t]
	if !ok {
		return fmt.Sprintf("FieldType(%d)", int(t))
	}

	return name
}

// Valid reports whether t is one of the supported types.
func (t FieldType) Valid() bool {
	_, ok := fieldTypeNames[t]
	return ok
}

// Width returns the number of bytes a field of this type occupies. Strings
// return the size of their two header bytes only; the character area depends
// on the max-length byte stored in the buffer.
func (t FieldType) Width() int {
	switch t {
	case Byte, Bool:
		return 1
	case Int, Word, S5Time, String:
		return 2
	case DInt, DWord, Real, Time:
		return 4
	default:
		return 0
	}
}

// MarshalText encodes the type as its tag.
func (t FieldType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, int(t))
	}

	return []byte(t.String()), nil
}

// UnmarshalText parses a type tag.
func (t *FieldType) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldType(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

package datablock

import (
	"github.com/sarchlab/dbsim/codec"
	"github.com/sarchlab/dbsim/hooking"
)

// Hook positions raised by a Store after a successful mutation. The hook item
// is always a Mutation.
var (
	HookPosCreate     = &hooking.HookPos{Name: "Datablock Create"}
	HookPosRemove     = &hooking.HookPos{Name: "Datablock Remove"}
	HookPosWriteBulk  = &hooking.HookPos{Name: "Datablock Write Bulk"}
	HookPosWriteField = &hooking.HookPos{Name: "Datablock Write Field"}
)

// MutationKind tells what a Mutation did.
type MutationKind int

// The kinds of mutation.
const (
	MutationCreate MutationKind = iota + 1
	MutationRemove
	MutationWriteBulk
	MutationWriteField
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreate:
		return "create"
	case MutationRemove:
		return "remove"
	case MutationWriteBulk:
		return "write_bulk"
	case MutationWriteField:
		return "write_field"
	default:
		return "unknown"
	}
}

// Mutation describes one successful change to the store.
type Mutation struct {
	Kind MutationKind
	ID   int

	// Index is the byte offset written. Zero for create, remove and bulk
	// writes.
	Index int

	// Length is the number of bytes affected. For create and remove it is the
	// size of the datablock.
	Length int

	// Value is set for field writes only.
	Value codec.Value

	// Bit is the bit position of bool field writes.
	Bit int
}

func (k MutationKind) hookPos() *hooking.HookPos {
	switch k {
	case MutationCreate:
		return HookPosCreate
	case MutationRemove:
		return HookPosRemove
	case MutationWriteBulk:
		return HookPosWriteBulk
	default:
		return HookPosWriteField
	}
}

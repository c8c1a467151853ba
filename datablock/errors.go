package datablock

import (
	"errors"

	"github.com/sarchlab/dbsim/codec"
)

// Errors returned by Store operations. Returned errors wrap one of these and
// can be matched with errors.Is.
var (
	ErrEngineNotRunning = errors.New("datablock: engine not running")
	ErrClosed           = errors.New("datablock: store closed")
	ErrOutOfRange       = errors.New("datablock: id out of range")
	ErrInvalidSize      = errors.New("datablock: invalid size")
	ErrAlreadyExists    = errors.New("datablock: already exists")
	ErrNotFound         = errors.New("datablock: not found")

	ErrExceedsLength      = codec.ErrExceedsLength
	ErrIndexOutOfRange    = codec.ErrIndexOutOfRange
	ErrInvalidBitPosition = codec.ErrInvalidBitPosition
	ErrUnsupportedType    = codec.ErrUnsupportedType
	ErrInvalidValue       = codec.ErrInvalidValue
)

// IsBadRequest reports whether err was caused by invalid caller input rather
// than by the state of the store.
func IsBadRequest(err error) bool {
	for _, target := range []error{
		ErrOutOfRange,
		ErrInvalidSize,
		ErrExceedsLength,
		ErrIndexOutOfRange,
		ErrInvalidBitPosition,
		ErrUnsupportedType,
		ErrInvalidValue,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// IsUnavailable reports whether err means the store cannot serve requests at
// the moment.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrEngineNotRunning) || errors.Is(err, ErrClosed)
}

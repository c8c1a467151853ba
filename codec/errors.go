package codec

import "errors"

// Errors reported by Encode and Decode. No byte of the buffer is modified when
// one of them is returned.
var (
	ErrIndexOutOfRange    = errors.New("codec: index out of range")
	ErrExceedsLength      = errors.New("codec: field exceeds buffer length")
	ErrInvalidBitPosition = errors.New("codec: invalid bit position")
	ErrUnsupportedType    = errors.New("codec: unsupported type")
	ErrInvalidValue       = errors.New("codec: invalid value")
)

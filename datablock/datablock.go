// Package datablock keeps the datablocks of an emulated controller: named,
// fixed-size byte regions that the protocol engine and API callers read and
// write concurrently.
package datablock

import (
	"fmt"
	"io"
	"sync"

	"github.com/sarchlab/dbsim/codec"
)

// The range of valid datablock ids.
const (
	MinID = 1
	MaxID = 65535
)

// MaxSize is the largest datablock a controller can hold, in bytes.
const MaxSize = 65535

// Buffer is the handle through which an area registrar accesses the bytes of
// a datablock. Accesses through the handle are serialized with the store's
// own writes to the same datablock.
type Buffer interface {
	io.ReaderAt
	io.WriterAt
}

// A Datablock owns one fixed-length byte buffer. The buffer is allocated once
// and only ever mutated in place.
type Datablock struct {
	id   int
	mu   sync.RWMutex
	data []byte
}

func newDatablock(id, size int) *Datablock {
	return &Datablock{
		id:   id,
		data: make([]byte, size),
	}
}

// ID returns the id of the datablock.
func (b *Datablock) ID() int {
	return b.id
}

// Size returns the number of bytes in the datablock.
func (b *Datablock) Size() int {
	return len(b.data)
}

// Bytes returns a copy of the content of the datablock.
func (b *Datablock) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]byte(nil), b.data...)
}

// ReadAt implements io.ReaderAt.
func (b *Datablock) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrIndexOutOfRange, off)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}

	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// WriteAt implements io.WriterAt. A write that does not fit in the buffer is
// rejected as a whole.
func (b *Datablock) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b.data)) {
		return 0, fmt.Errorf("%w: offset %d, size %d",
			ErrIndexOutOfRange, off, len(b.data))
	}

	if off+int64(len(p)) > int64(len(b.data)) {
		return 0, fmt.Errorf("%w: %d bytes at %d, size %d",
			ErrExceedsLength, len(p), off, len(b.data))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return copy(b.data[off:], p), nil
}

// encode writes v and returns the number of bytes the field occupies.
func (b *Datablock) encode(index int, v codec.Value, bit int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := codec.Encode(b.data, index, v, bit); err != nil {
		return 0, err
	}

	return codec.Footprint(b.data, index, v.Type())
}

func (b *Datablock) decode(index int, t codec.FieldType, bit int) (codec.Value, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return codec.Decode(b.data, index, t, bit)
}

func (b *Datablock) record() Record {
	return Record{
		ID:   b.id,
		Size: len(b.data),
		Data: b.Bytes(),
	}
}

// ValidateSize checks that size is within 1 and MaxSize.
func ValidateSize(size int) error {
	if size <= 0 || size > MaxSize {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidSize, size, MaxSize)
	}

	return nil
}

// ValidateID checks that id is within MinID and MaxID.
func ValidateID(id int) error {
	if id < MinID || id > MaxID {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, id, MinID, MaxID)
	}

	return nil
}

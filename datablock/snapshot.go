package datablock

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ByteList is a byte slice that encodes to JSON as an array of numbers, so
// that snapshots and API responses stay readable.
type ByteList []byte

// MarshalJSON encodes the bytes as a JSON array of numbers.
func (l ByteList) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, 2+4*len(l))
	out = append(out, '[')

	for i, b := range l {
		if i > 0 {
			out = append(out, ',')
		}

		out = strconv.AppendUint(out, uint64(b), 10)
	}

	return append(out, ']'), nil
}

// UnmarshalJSON decodes a JSON array of numbers in [0, 255]. A base64 string,
// the default encoding of []byte, is accepted as well.
func (l *ByteList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var raw []byte
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}

		*l = raw

		return nil
	}

	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}

	out := make(ByteList, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("datablock: byte %d at position %d out of range", v, i)
		}

		out[i] = byte(v)
	}

	*l = out

	return nil
}

// Record is the serialized form of a single datablock.
type Record struct {
	ID   int      `json:"id"`
	Size int      `json:"size"`
	Data ByteList `json:"data"`
}

// Validate checks that the record can be restored into a store.
func (r Record) Validate() error {
	if err := ValidateID(r.ID); err != nil {
		return err
	}

	if err := ValidateSize(r.Size); err != nil {
		return err
	}

	if len(r.Data) > r.Size {
		return fmt.Errorf("%w: %d bytes of data, size %d",
			ErrExceedsLength, len(r.Data), r.Size)
	}

	return nil
}

// Snapshot maps datablock ids to their records.
type Snapshot map[int]Record

// IDs returns the ids in the snapshot in ascending order.
func (s Snapshot) IDs() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

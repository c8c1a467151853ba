package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Encode writes v into buf at byte offset index. bit selects the bit inside
// the byte for Bool values and is ignored for every other type.
//
// All checks run before the first byte is touched, so a failed Encode leaves
// buf unchanged. Encode does not synchronize access to buf.
func Encode(buf []byte, index int, v Value, bit int) error {
	if !v.typ.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, v.typ)
	}

	if err := checkField(buf, index, v.typ, bit); err != nil {
		return err
	}

	be := binary.BigEndian

	switch v.typ {
	case Int, Word, S5Time:
		be.PutUint16(buf[index:], uint16(v.num))
	case DInt, DWord, Time:
		be.PutUint32(buf[index:], uint32(v.num))
	case Byte:
		buf[index] = uint8(v.num)
	case Real:
		be.PutUint32(buf[index:], math.Float32bits(v.real))
	case Bool:
		if v.flag {
			buf[index] |= 1 << bit
		} else {
			buf[index] &^= 1 << bit
		}
	case String:
		return encodeString(buf, index, v.text)
	}

	return nil
}

// Decode reads a field of type t from buf at byte offset index. It applies
// the same checks as Encode.
func Decode(buf []byte, index int, t FieldType, bit int) (Value, error) {
	if !t.Valid() {
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}

	if err := checkField(buf, index, t, bit); err != nil {
		return Value{}, err
	}

	be := binary.BigEndian

	switch t {
	case Int:
		return IntValue(int16(be.Uint16(buf[index:]))), nil
	case DInt:
		return DIntValue(int32(be.Uint32(buf[index:]))), nil
	case Word:
		return WordValue(be.Uint16(buf[index:])), nil
	case DWord:
		return DWordValue(be.Uint32(buf[index:])), nil
	case Byte:
		return ByteValue(buf[index]), nil
	case Bool:
		return BoolValue(buf[index]&(1<<bit) != 0), nil
	case Real:
		return RealValue(math.Float32frombits(be.Uint32(buf[index:]))), nil
	case Time:
		return TimeValue(int32(be.Uint32(buf[index:]))), nil
	case S5Time:
		return S5TimeValue(be.Uint16(buf[index:])), nil
	default:
		return decodeString(buf, index), nil
	}
}

// Footprint returns the number of bytes a field of type t at index occupies
// in buf. For strings this includes the character area sized by the
// max-length byte already stored at index.
func Footprint(buf []byte, index int, t FieldType) (int, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}

	if err := checkField(buf, index, t, 0); err != nil {
		return 0, err
	}

	if t == String {
		return 2 + int(buf[index]), nil
	}

	return t.Width(), nil
}

func checkField(buf []byte, index int, t FieldType, bit int) error {
	if index < 0 || index >= len(buf) {
		return fmt.Errorf("%w: index %d, size %d",
			ErrIndexOutOfRange, index, len(buf))
	}

	width := t.Width()
	if index+width > len(buf) {
		return fmt.Errorf("%w: %s at %d needs %d bytes, size %d",
			ErrExceedsLength, t, index, width, len(buf))
	}

	switch t {
	case Bool:
		if bit < 0 || bit > 7 {
			return fmt.Errorf("%w: %d", ErrInvalidBitPosition, bit)
		}
	case String:
		maxLen := int(buf[index])
		if index+2+maxLen > len(buf) {
			return fmt.Errorf("%w: string at %d with max length %d, size %d",
				ErrExceedsLength, index, maxLen, len(buf))
		}
	}

	return nil
}

// encodeString writes a counted string. The max-length byte at index is
// never written; a zero max length makes a zero-capacity field.
func encodeString(buf []byte, index int, text string) error {
	maxLen := int(buf[index])

	chars := make([]byte, 0, maxLen)
	for _, r := range text {
		if len(chars) == maxLen {
			break
		}

		if r > 0xFF {
			return fmt.Errorf("%w: character %q is not single-byte",
				ErrInvalidValue, r)
		}

		chars = append(chars, byte(r))
	}

	buf[index+1] = byte(len(chars))
	area := buf[index+2 : index+2+maxLen]
	n := copy(area, chars)
	clear(area[n:])

	return nil
}

func decodeString(buf []byte, index int) Value {
	maxLen := int(buf[index])
	curLen := min(int(buf[index+1]), maxLen)

	var sb strings.Builder
	for _, c := range buf[index+2 : index+2+curLen] {
		sb.WriteRune(rune(c))
	}

	return StringValue(sb.String())
}

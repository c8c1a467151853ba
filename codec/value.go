package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Value is a typed field value. The zero Value has no type and is rejected
// by Encode.
type Value struct {
	typ  FieldType
	num  int64
	real float32
	flag bool
	text string
}

// IntValue creates an int (signed 16-bit) value.
func IntValue(v int16) Value { return Value{typ: Int, num: int64(v)} }

// DIntValue creates a dint (signed 32-bit) value.
func DIntValue(v int32) Value { return Value{typ: DInt, num: int64(v)} }

// WordValue creates a word (unsigned 16-bit) value.
func WordValue(v uint16) Value { return Value{typ: Word, num: int64(v)} }

// DWordValue creates a dword (unsigned 32-bit) value.
func DWordValue(v uint32) Value { return Value{typ: DWord, num: int64(v)} }

// ByteValue creates a byte value.
func ByteValue(v uint8) Value { return Value{typ: Byte, num: int64(v)} }

// BoolValue creates a bool value.
func BoolValue(v bool) Value { return Value{typ: Bool, flag: v} }

// RealValue creates a real (IEEE-754 single precision) value.
func RealValue(v float32) Value { return Value{typ: Real, real: v} }

// StringValue creates a counted string value.
func StringValue(v string) Value { return Value{typ: String, text: v} }

// TimeValue creates a time value holding milliseconds.
func TimeValue(ms int32) Value { return Value{typ: Time, num: int64(ms)} }

// S5TimeValue creates an s5time value from its raw 16-bit representation.
func S5TimeValue(raw uint16) Value { return Value{typ: S5Time, num: int64(raw)} }

// Type returns the field type of the value.
func (v Value) Type() FieldType { return v.typ }

// Int returns the value of integer typed fields (int, dint, word, dword,
// byte, time and s5time).
func (v Value) Int() int64 { return v.num }

// Float returns the value of a real field.
func (v Value) Float() float32 { return v.real }

// Bool returns the value of a bool field.
func (v Value) Bool() bool { return v.flag }

// Text returns the value of a string field.
func (v Value) Text() string { return v.text }

// Duration returns a time field as a duration.
func (v Value) Duration() time.Duration {
	return time.Duration(v.num) * time.Millisecond
}

// Interface returns the value as the natural Go type of its field type.
func (v Value) Interface() any {
	switch v.typ {
	case Int:
		return int16(v.num)
	case DInt, Time:
		return int32(v.num)
	case Word, S5Time:
		return uint16(v.num)
	case DWord:
		return uint32(v.num)
	case Byte:
		return uint8(v.num)
	case Bool:
		return v.flag
	case Real:
		return v.real
	case String:
		return v.text
	default:
		return nil
	}
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%v)", v.typ, v.Interface())
}

// MarshalJSON encodes the value as its plain JSON representation. JSON has
// no literal for NaN and the infinities, so those reals are written as the
// strings "NaN", "+Inf" and "-Inf", which ParseValue accepts back.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.typ == Real {
		f := float64(v.real)
		switch {
		case math.IsNaN(f):
			return json.Marshal("NaN")
		case math.IsInf(f, 1):
			return json.Marshal("+Inf")
		case math.IsInf(f, -1):
			return json.Marshal("-Inf")
		}
	}

	return json.Marshal(v.Interface())
}

// ParseValue converts a loosely typed value, usually decoded from JSON, into
// a Value of type t. Numbers may be given as any Go integer or float type, as
// json.Number or as a decimal string. Bools also accept 0 and 1.
func ParseValue(t FieldType, raw any) (Value, error) {
	switch t {
	case Int:
		n, err := integerIn(raw, math.MinInt16, math.MaxInt16)
		return IntValue(int16(n)), err
	case DInt:
		n, err := integerIn(raw, math.MinInt32, math.MaxInt32)
		return DIntValue(int32(n)), err
	case Word:
		n, err := integerIn(raw, 0, math.MaxUint16)
		return WordValue(uint16(n)), err
	case DWord:
		n, err := integerIn(raw, 0, math.MaxUint32)
		return DWordValue(uint32(n)), err
	case Byte:
		n, err := integerIn(raw, 0, math.MaxUint8)
		return ByteValue(uint8(n)), err
	case Time:
		n, err := integerIn(raw, math.MinInt32, math.MaxInt32)
		return TimeValue(int32(n)), err
	case S5Time:
		n, err := integerIn(raw, 0, math.MaxUint16)
		return S5TimeValue(uint16(n)), err
	case Bool:
		b, err := boolean(raw)
		return BoolValue(b), err
	case Real:
		f, err := real32(raw)
		return RealValue(f), err
	case String:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("%w: %v is not a string", ErrInvalidValue, raw)
		}

		return StringValue(s), nil
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

func integerIn(raw any, lo, hi int64) (int64, error) {
	n, err := integer(raw)
	if err != nil {
		return 0, err
	}

	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidValue, n, lo, hi)
	}

	return n, nil
}

func integer(raw any) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			break
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			break
		}
		return int64(n), nil
	case float32:
		return integralFloat(float64(n))
	case float64:
		return integralFloat(n)
	case json.Number:
		return parseInteger(string(n))
	case string:
		return parseInteger(n)
	}

	return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, raw)
}

func parseInteger(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n, nil
	}

	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, s)
	}

	return integralFloat(f)
}

func integralFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) ||
		f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, f)
	}

	return int64(f), nil
}

func boolean(raw any) (bool, error) {
	switch b := raw.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a bool", ErrInvalidValue, b)
		}
		return parsed, nil
	}

	n, err := integer(raw)
	if err != nil || (n != 0 && n != 1) {
		return false, fmt.Errorf("%w: %v is not a bool", ErrInvalidValue, raw)
	}

	return n == 1, nil
}

func real32(raw any) (float32, error) {
	var f float64

	switch n := raw.(type) {
	case float32:
		return n, nil
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, n)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, n)
		}
		f = parsed
	default:
		i, err := integer(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidValue, raw)
		}
		f = float64(i)
	}

	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return 0, fmt.Errorf("%w: %v overflows real", ErrInvalidValue, f)
	}

	return float32(f), nil
}

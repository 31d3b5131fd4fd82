// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typecat

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// ConvertFunc normalizes a caller-supplied value into the driver
// representation for one type tag. It returns an error when the value's
// native type does not fit the declared type.
type ConvertFunc func(any) (any, error)

// Converter returns the ConvertFunc for a tag. The function is selected
// here, once, so that binding does not re-branch on the tag per value. For
// multi-value tags the converter of the element type is returned; the caller
// iterates the sequence itself.
//
// A nil value passes through every converter unchanged: it binds as SQL
// NULL whatever the declared type.
func Converter(t Tag) ConvertFunc {
	switch t.Elem() {
	case Bool:
		return convertBool
	case Byte:
		return convertByte
	case Int:
		return convertInt
	case Long:
		return convertLong
	case Double:
		return convertDouble
	case Float:
		return convertFloat
	case String, Clob:
		return convertString
	case Bytes, Blob:
		return convertBytes
	case Date, Time, Timestamp:
		return convertTime
	case URL:
		return convertURL
	}
	// Object and Default pass values through untouched; the driver applies
	// its own conversions.
	return func(v any) (any, error) { return v, nil }
}

func convertBool(v any) (any, error) {
	switch b := v.(type) {
	case nil, bool:
		return b, nil
	}
	return nil, fmt.Errorf("bool value required, got %T", v)
}

// asInt64 widens any member of the integer families to int64, reporting
// overflow for unsigned values beyond the int64 range.
func asInt64(v any) (int64, bool, error) {
	switch n := v.(type) {
	case int:
		return int64(n), true, nil
	case int8:
		return int64(n), true, nil
	case int16:
		return int64(n), true, nil
	case int32:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, true, fmt.Errorf("unsigned value %d overflows int64", n)
		}
		return int64(n), true, nil
	case uint8:
		return int64(n), true, nil
	case uint16:
		return int64(n), true, nil
	case uint32:
		return int64(n), true, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, true, fmt.Errorf("unsigned value %d overflows int64", n)
		}
		return int64(n), true, nil
	}
	return 0, false, nil
}

func convertByte(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	n, ok, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("byte value required, got %T", v)
	}
	if n < 0 || n > math.MaxUint8 {
		return nil, fmt.Errorf("value %d out of range for byte", n)
	}
	return n, nil
}

func convertInt(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	n, ok, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("int value required, got %T", v)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("value %d out of range for int", n)
	}
	return n, nil
}

func convertLong(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	n, ok, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("long value required, got %T", v)
	}
	return n, nil
}

func convertDouble(v any) (any, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	}
	// Integer values are acceptable where a double is declared.
	if n, ok, err := asInt64(v); err != nil {
		return nil, err
	} else if ok {
		return float64(n), nil
	}
	return nil, fmt.Errorf("double value required, got %T", v)
}

func convertFloat(v any) (any, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case float32:
		return float64(f), nil
	case float64:
		if f != 0 && (math.Abs(f) > math.MaxFloat32 || math.Abs(f) < math.SmallestNonzeroFloat32) {
			return nil, fmt.Errorf("value %v out of range for float", f)
		}
		return f, nil
	}
	if n, ok, err := asInt64(v); err != nil {
		return nil, err
	} else if ok {
		return float64(n), nil
	}
	return nil, fmt.Errorf("float value required, got %T", v)
}

func convertString(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return nil, fmt.Errorf("string value required, got %T", v)
}

func convertBytes(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("byte slice value required, got %T", v)
}

func convertTime(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	}
	return nil, fmt.Errorf("time.Time value required, got %T", v)
}

func convertURL(v any) (any, error) {
	switch u := v.(type) {
	case nil:
		return nil, nil
	case *url.URL:
		if u == nil {
			return nil, nil
		}
		return u.String(), nil
	case url.URL:
		return u.String(), nil
	case string:
		if _, err := url.Parse(u); err != nil {
			return nil, fmt.Errorf("invalid url %q: %s", u, err)
		}
		return u, nil
	}
	return nil, fmt.Errorf("url value required, got %T", v)
}

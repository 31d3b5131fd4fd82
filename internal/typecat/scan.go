// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typecat

import (
	"database/sql"
	"fmt"
	"net/url"
)

// Dest pairs a pointer for the driver to scan a column into with the
// conversion applied afterwards. The conversion substitutes the catalog's
// null default when the column was SQL NULL, so rows.Scan never has to write
// NULL into a bare primitive.
type Dest struct {
	ptr   any
	value func() (any, error)
}

// Ptr returns the scan target to pass to rows.Scan.
func (d *Dest) Ptr() any {
	return d.ptr
}

// Value converts the scanned column into its catalog representation.
func (d *Dest) Value() (any, error) {
	return d.value()
}

// NewDest returns the scan destination for a single-value tag. Multi-value
// tags have no destination: a result column is never a list.
func NewDest(t Tag) (*Dest, error) {
	if t.IsMulti() {
		return nil, fmt.Errorf("internal error: no scan destination for list type %q", t)
	}
	switch t {
	case Bool:
		v := &sql.NullBool{}
		return &Dest{ptr: v, value: func() (any, error) {
			return v.Bool, nil
		}}, nil
	case Byte:
		v := &sql.NullInt64{}
		return &Dest{ptr: v, value: func() (any, error) {
			return byte(v.Int64), nil
		}}, nil
	case Int:
		v := &sql.NullInt64{}
		return &Dest{ptr: v, value: func() (any, error) {
			return int(v.Int64), nil
		}}, nil
	case Long:
		v := &sql.NullInt64{}
		return &Dest{ptr: v, value: func() (any, error) {
			return v.Int64, nil
		}}, nil
	case Double:
		v := &sql.NullFloat64{}
		return &Dest{ptr: v, value: func() (any, error) {
			return v.Float64, nil
		}}, nil
	case Float:
		v := &sql.NullFloat64{}
		return &Dest{ptr: v, value: func() (any, error) {
			return float32(v.Float64), nil
		}}, nil
	case String, Clob:
		v := &sql.NullString{}
		return &Dest{ptr: v, value: func() (any, error) {
			if !v.Valid {
				return nil, nil
			}
			return v.String, nil
		}}, nil
	case Bytes, Blob:
		// Scanning into *[]byte leaves nil for NULL, and the driver may hand
		// back memory it owns, so the value is copied out.
		v := new([]byte)
		return &Dest{ptr: v, value: func() (any, error) {
			if *v == nil {
				return nil, nil
			}
			return append([]byte(nil), *v...), nil
		}}, nil
	case Date, Time, Timestamp:
		v := &sql.NullTime{}
		return &Dest{ptr: v, value: func() (any, error) {
			if !v.Valid {
				return nil, nil
			}
			return v.Time, nil
		}}, nil
	case URL:
		v := &sql.NullString{}
		return &Dest{ptr: v, value: func() (any, error) {
			if !v.Valid {
				return nil, nil
			}
			u, err := url.Parse(v.String)
			if err != nil {
				return nil, fmt.Errorf("cannot parse url column: %s", err)
			}
			return u, nil
		}}, nil
	case Object, Default:
		v := new(any)
		return &Dest{ptr: v, value: func() (any, error) {
			return *v, nil
		}}, nil
	}
	return nil, fmt.Errorf("internal error: no scan destination for type %q", t)
}

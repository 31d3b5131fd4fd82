// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package template

import (
	"strings"
	"time"

	"github.com/canonical/sqlet/internal/typecat"
)

// Row is one result row: an ordered sequence of typed values, positionally
// aligned with the template's declared result columns.
type Row []any

// RowScanner is the one method of sql.Rows the reader needs.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanDests allocates one scan destination per result column and returns
// the pointers for rows.Scan along with the finisher that converts the
// scanned values into a Row, substituting the catalog's null defaults for
// primitive-typed columns.
//
// For a typed template the column count must match the declared types. An
// untyped template accepts whatever width the row has and reads every
// column through the generic path. dbTypes carries the driver's column type
// names when available (it may be nil, or hold empty strings) and is used
// to normalize ambiguous untyped columns.
func (pq *PrimedQuery) ScanDests(cols []string, dbTypes []string) ([]any, func() (Row, error), error) {
	tags := pq.resultTags
	if len(tags) == 0 {
		tags = make([]typecat.Tag, len(cols))
		for i := range tags {
			tags[i] = typecat.Object
		}
	} else if len(cols) != len(tags) {
		return nil, nil, &ColumnCountMismatchError{Want: len(tags), Got: len(cols)}
	}

	dests := make([]*typecat.Dest, len(tags))
	ptrs := make([]any, len(tags))
	for i, tag := range tags {
		d, err := typecat.NewDest(tag)
		if err != nil {
			return nil, nil, &UnsupportedColumnTypeError{Column: i + 1, Tag: tag, Cause: err}
		}
		dests[i] = d
		ptrs[i] = d.Ptr()
	}

	finish := func() (Row, error) {
		row := make(Row, len(dests))
		for i, d := range dests {
			v, err := d.Value()
			if err != nil {
				return nil, &UnsupportedColumnTypeError{Column: i + 1, Tag: tags[i], Cause: err}
			}
			if tags[i] == typecat.Object || tags[i] == typecat.Default {
				var dbType string
				if i < len(dbTypes) {
					dbType = dbTypes[i]
				}
				v = normalizeObject(v, dbType)
			}
			row[i] = v
		}
		return row, nil
	}
	return ptrs, finish, nil
}

// ReadRow scans the current row of s and materializes it.
func (pq *PrimedQuery) ReadRow(s RowScanner, cols []string, dbTypes []string) (Row, error) {
	ptrs, finish, err := pq.ScanDests(cols, dbTypes)
	if err != nil {
		return nil, err
	}
	if err := s.Scan(ptrs...); err != nil {
		return nil, err
	}
	return finish()
}

// HasResults reports whether rows read with this query carry declared
// types.
func (pq *PrimedQuery) HasResults() bool {
	return len(pq.resultTags) > 0
}

// timeLayouts are tried in order when an untyped date-ish column arrives as
// text. They cover the formats the common drivers emit.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05",
}

// normalizeObject smooths driver quirks on the untyped path: byte slices
// are copied out of driver-owned memory (and surfaced as strings for
// text-ish columns), and date-vs-timestamp ambiguity is resolved with the
// column's database type name where the driver supplies one.
func normalizeObject(v any, dbType string) any {
	dbType = strings.ToUpper(dbType)
	switch v := v.(type) {
	case []byte:
		b := append([]byte(nil), v...)
		if isTextType(dbType) {
			return string(b)
		}
		if t, ok := parseTimeType(string(b), dbType); ok {
			return t
		}
		return b
	case string:
		if t, ok := parseTimeType(v, dbType); ok {
			return t
		}
		return v
	}
	return v
}

func isTextType(dbType string) bool {
	switch dbType {
	case "TEXT", "CLOB", "VARCHAR", "NVARCHAR", "CHAR", "NCHAR":
		return true
	}
	return strings.Contains(dbType, "CHAR") || strings.Contains(dbType, "TEXT")
}

func parseTimeType(s, dbType string) (time.Time, bool) {
	switch dbType {
	case "DATE", "DATETIME", "TIMESTAMP":
	default:
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

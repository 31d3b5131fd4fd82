// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package typecat defines the closed catalog of value types that template
// parameters and result columns can declare. Each type exists in a
// single-value form and a multi-value ("IN-list") form, the latter named by
// appending "-list" to the single-value token.
package typecat

import (
	"fmt"
)

// Tag identifies one canonical value type from the catalog.
type Tag int

const (
	// Default is the sentinel for an unannotated parameter or column, and
	// for the explicit-default shorthand (a doubled type marker). The
	// compiler resolves it to a concrete tag via its DefaultType option.
	Default Tag = iota

	Bool
	Byte
	Bytes
	Date
	Time
	Timestamp
	Double
	Float
	Int
	Long
	String
	Object
	Blob
	Clob
	URL

	// The multi-value counterparts are declared in the same order as the
	// single-value tags so that Elem can map between the two by offset.
	BoolList
	ByteList
	BytesList
	DateList
	TimeList
	TimestampList
	DoubleList
	FloatList
	IntList
	LongList
	StringList
	ObjectList
	BlobList
	ClobList
	URLList
)

// tagNames holds the canonical token for each tag. List tags derive their
// token from the element token.
var tagNames = map[Tag]string{
	Default:   "default",
	Bool:      "bool",
	Byte:      "byte",
	Bytes:     "bytes",
	Date:      "date",
	Time:      "time",
	Timestamp: "timestamp",
	Double:    "double",
	Float:     "float",
	Int:       "int",
	Long:      "long",
	String:    "string",
	Object:    "object",
	Blob:      "blob",
	Clob:      "clob",
	URL:       "url",
}

// tokenTags maps every accepted single-value token, including aliases, to
// its tag. The list forms are derived from it in init.
var tokenTags = map[string]Tag{
	"bool":       Bool,
	"boolean":    Bool,
	"byte":       Byte,
	"bytes":      Bytes,
	"byte-array": Bytes,
	"date":       Date,
	"time":       Time,
	"timestamp":  Timestamp,
	"datetime":   Timestamp,
	"double":     Double,
	"float":      Float,
	"int":        Int,
	"integer":    Int,
	"long":       Long,
	"string":     String,
	"str":        String,
	"object":     Object,
	"obj":        Object,
	"blob":       Blob,
	"clob":       Clob,
	"url":        URL,
}

var listTokenTags = map[string]Tag{}

func init() {
	for token, tag := range tokenTags {
		listTokenTags[token+"-list"] = tag - Bool + BoolList
	}
}

// String returns the canonical token for the tag.
func (t Tag) String() string {
	if t.IsMulti() {
		return tagNames[t.Elem()] + "-list"
	}
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", int(t))
}

// IsMulti reports whether the tag is a multi-value form.
func (t Tag) IsMulti() bool {
	return t >= BoolList && t <= URLList
}

// Elem returns the element tag of a multi-value tag. For single-value tags
// it returns the tag unchanged.
func (t Tag) Elem() Tag {
	if !t.IsMulti() {
		return t
	}
	return t - BoolList + Bool
}

// UnknownTypeError is returned when a type token is not in the catalog.
type UnknownTypeError struct {
	Token string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.Token)
}

// ResolveParam resolves a parameter type token to its tag. Both single and
// "-list" forms are accepted.
func ResolveParam(token string) (Tag, error) {
	if tag, ok := tokenTags[token]; ok {
		return tag, nil
	}
	if tag, ok := listTokenTags[token]; ok {
		return tag, nil
	}
	return Default, &UnknownTypeError{Token: token}
}

// ResolveResult resolves a result-column type token to its tag. A result
// column is a single value, so "-list" forms are rejected.
func ResolveResult(token string) (Tag, error) {
	if tag, ok := tokenTags[token]; ok {
		return tag, nil
	}
	if _, ok := listTokenTags[token]; ok {
		return Default, fmt.Errorf("list type %q cannot be used for a result column", token)
	}
	return Default, &UnknownTypeError{Token: token}
}

// NullDefault returns the value substituted when a result column of the
// given type is SQL NULL. The primitive-like types carry a fixed non-null
// default because their target representation cannot hold an absence of
// value; all object-like types return nil.
func NullDefault(t Tag) any {
	switch t {
	case Bool:
		return false
	case Byte:
		return byte(0)
	case Int:
		return int(0)
	case Long:
		return int64(0)
	case Double:
		return float64(0)
	case Float:
		return float32(0)
	}
	return nil
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package template

import (
	"fmt"

	"github.com/canonical/sqlet/internal/typecat"
)

// MalformedTemplateError reports a structural problem in the template text.
// It is fatal to the compile call: templates are expected to be validated
// once, before first use.
type MalformedTemplateError struct {
	Line, Col int
	Fragment  string
	Reason    string
}

func (e *MalformedTemplateError) Error() string {
	s := fmt.Sprintf("line %d, column %d: %s", e.Line, e.Col, e.Reason)
	if e.Fragment != "" {
		s += fmt.Sprintf(" near %q", e.Fragment)
	}
	return s
}

// MixedResultTypesError is returned when result-column type overrides are
// supplied for a template that declares no result columns. Once any column
// commits to typed reading, ambiguity about the rest is not tolerated.
type MixedResultTypesError struct {
	Declared  int
	Overrides int
}

func (e *MixedResultTypesError) Error() string {
	return fmt.Sprintf("cannot mix typed and untyped result columns: %d overridden, %d declared", e.Overrides, e.Declared)
}

// MissingParamError is returned when a named-parameter collection lacks one
// of the template's declared keys.
type MissingParamError struct {
	Key string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("parameter %q not supplied", e.Key)
}

// ParamTypeMismatchError is returned when a supplied value does not fit the
// declared type of its parameter. Index is the 1-based placeholder position.
type ParamTypeMismatchError struct {
	Index int
	Key   string
	Tag   typecat.Tag
	Cause error
}

func (e *ParamTypeMismatchError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("parameter %d (%q, type %s): %s", e.Index, e.Key, e.Tag, e.Cause)
	}
	return fmt.Sprintf("parameter %d (type %s): %s", e.Index, e.Tag, e.Cause)
}

func (e *ParamTypeMismatchError) Unwrap() error {
	return e.Cause
}

// ArityMismatchError is returned when a positional parameter sequence has
// the wrong length, or when a list parameter is bound to an empty sequence
// (the expansion would produce zero placeholders, which is not valid SQL).
type ArityMismatchError struct {
	Key       string
	Want, Got int
}

func (e *ArityMismatchError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("list parameter %q requires at least one element", e.Key)
	}
	return fmt.Sprintf("statement has %d parameters but %d values were supplied", e.Want, e.Got)
}

// ColumnCountMismatchError is returned when a result row's width differs
// from the template's declared result columns.
type ColumnCountMismatchError struct {
	Want, Got int
}

func (e *ColumnCountMismatchError) Error() string {
	return fmt.Sprintf("result row has %d columns but %d types are declared", e.Got, e.Want)
}

// UnsupportedColumnTypeError is returned when no scan destination exists for
// a declared result-column type.
type UnsupportedColumnTypeError struct {
	Column int
	Tag    typecat.Tag
	Cause  error
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("result column %d (type %s): %s", e.Column, e.Tag, e.Cause)
}

func (e *UnsupportedColumnTypeError) Unwrap() error {
	return e.Cause
}

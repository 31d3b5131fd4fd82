// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package template

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/sqlet/internal/typecat"
)

// PrimedQuery is a compiled template bound to one set of parameter values:
// the final SQL text and the driver arguments in placeholder order, plus
// the result-column types for reading rows back.
type PrimedQuery struct {
	sql        string
	args       []any
	resultTags []typecat.Tag
}

// SQL returns the query text to send to the driver.
func (pq *PrimedQuery) SQL() string {
	return pq.sql
}

// Params returns the driver arguments in placeholder order.
func (pq *PrimedQuery) Params() []any {
	return pq.args
}

// Bind binds a parameter collection of either supported shape: a map with
// string keys binds by declared key, a slice or array binds by position. A
// nil collection is accepted for templates without parameters.
func (ct *CompiledTemplate) Bind(params any) (*PrimedQuery, error) {
	if params == nil {
		return ct.BindPositional(nil)
	}
	v := reflect.ValueOf(params)
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot bind parameters: map key type %s, need string", v.Type().Key())
		}
		m := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return ct.BindMap(m)
	case reflect.Slice, reflect.Array:
		vals := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			vals[i] = v.Index(i).Interface()
		}
		return ct.BindPositional(vals)
	}
	return nil, fmt.Errorf("cannot bind parameters: need map with string keys or slice, got %T", params)
}

// BindMap binds the template's parameters by declared key. Every declared
// key must be present; extra keys are ignored.
func (ct *CompiledTemplate) BindMap(params map[string]any) (pq *PrimedQuery, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot bind parameters: %w", err)
		}
	}()

	vals := make([]any, len(ct.params))
	for i, spec := range ct.params {
		v, ok := params[spec.Key]
		if !ok {
			return nil, &MissingParamError{Key: spec.Key}
		}
		vals[i] = v
	}
	return ct.bind(vals)
}

// BindPositional binds the template's parameters in declaration order. The
// number of values must equal the number of declared parameters.
func (ct *CompiledTemplate) BindPositional(params []any) (pq *PrimedQuery, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot bind parameters: %w", err)
		}
	}()

	if len(params) != len(ct.params) {
		return nil, &ArityMismatchError{Want: len(ct.params), Got: len(params)}
	}
	return ct.bind(params)
}

// bind converts one value per declared parameter, expanding multi-value
// parameters into one placeholder per element. Binding mutates nothing but
// the fresh PrimedQuery: the same inputs always produce the same output.
func (ct *CompiledTemplate) bind(vals []any) (*PrimedQuery, error) {
	pq := &PrimedQuery{resultTags: ct.resultTags}
	if !ct.dynamic {
		pq.sql = ct.sql
	}

	var sb strings.Builder
	args := make([]any, 0, len(vals))
	for i, spec := range ct.params {
		if ct.dynamic {
			sb.WriteString(ct.fragments[i])
		}
		if !spec.Multi {
			arg, err := ct.convs[i](vals[i])
			if err != nil {
				return nil, &ParamTypeMismatchError{Index: len(args) + 1, Key: spec.Key, Tag: spec.Tag, Cause: err}
			}
			args = append(args, arg)
			if ct.dynamic {
				sb.WriteString("?")
			}
			continue
		}

		elems, err := sequenceValues(vals[i])
		if err != nil {
			return nil, &ParamTypeMismatchError{Index: len(args) + 1, Key: spec.Key, Tag: spec.Tag, Cause: err}
		}
		if len(elems) == 0 {
			return nil, &ArityMismatchError{Key: spec.Key}
		}
		for j, e := range elems {
			arg, err := ct.convs[i](e)
			if err != nil {
				return nil, &ParamTypeMismatchError{Index: len(args) + 1, Key: spec.Key, Tag: spec.Tag, Cause: err}
			}
			args = append(args, arg)
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
		}
	}
	if ct.dynamic {
		sb.WriteString(ct.fragments[len(ct.params)])
		pq.sql = sb.String()
	}

	pq.args = args
	return pq, nil
}

// sequenceValues flattens a slice or array value supplied for a multi-value
// parameter.
func sequenceValues(v any) ([]any, error) {
	if v == nil {
		return nil, fmt.Errorf("list parameter requires a slice, got nil")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("list parameter requires a slice, got %T", v)
	}
	elems := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elems[i] = rv.Index(i).Interface()
	}
	return elems, nil
}

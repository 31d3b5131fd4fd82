// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package template

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlet/internal/typecat"
)

// ParamSpec describes one declared parameter: its key, the element type of
// its values, and whether it is a multi-value ("IN-list") parameter.
type ParamSpec struct {
	Key   string
	Tag   typecat.Tag
	Multi bool
}

// CompileOptions adjust type resolution. The zero value (and nil) is valid.
type CompileOptions struct {
	// DefaultType is the tag given to unannotated parameters and columns
	// and to the explicit-default shorthand. Historically this system
	// wavered between dynamic runtime discovery and generic pass-through;
	// pass-through (Object) is the documented default here, because the
	// driver already performs its own conversions on untyped values. Set a
	// concrete tag to force a typed treatment instead.
	DefaultType typecat.Tag

	// ParamTypes overrides the resolved type of individual parameters by
	// key, allowing a template to be reused against a differently-typed
	// driver without re-parsing. A multi-value tag makes the parameter an
	// IN-list parameter.
	ParamTypes map[string]typecat.Tag

	// ResultTypes overrides the resolved type of individual result columns
	// by zero-based declaration ordinal. Overrides refine declared columns;
	// they cannot add columns to an untyped template.
	ResultTypes map[int]typecat.Tag
}

func (o *CompileOptions) defaultType() typecat.Tag {
	if o == nil || o.DefaultType == typecat.Default {
		return typecat.Object
	}
	return o.DefaultType
}

// CompiledTemplate is the immutable artifact produced from a token stream:
// driver-ready SQL text, ordered parameter descriptors and ordered
// result-column types. It is read-only after construction and safe to share
// between goroutines.
type CompiledTemplate struct {
	// fragments holds the literal SQL text around the parameters; there are
	// len(params)+1 fragments.
	fragments []string
	params    []ParamSpec
	// convs holds the value converter for each parameter, selected once at
	// compile time.
	convs      []typecat.ConvertFunc
	resultTags []typecat.Tag
	// sql is the placeholder form with one placeholder per parameter. For
	// dynamic templates the text actually sent to the driver is regenerated
	// at bind time.
	sql     string
	dynamic bool
}

// Compile resolves the token stream's type annotations against the catalog
// and assembles the compiled template. Compilation is deterministic and
// side effect free: the same parsed template and options always produce a
// structurally equal result.
func (pt *ParsedTemplate) Compile(opts *CompileOptions) (ct *CompiledTemplate, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile template: %w", err)
		}
	}()

	ct = &CompiledTemplate{}
	var lit strings.Builder
	resultOrdinal := 0
	for _, pp := range pt.parts {
		switch pp := pp.(type) {
		case *literalPart:
			lit.WriteString(pp.text)
		case *paramPart:
			tag := opts.defaultType()
			if pp.tt.set && pp.tt.text != "" {
				tag, err = typecat.ResolveParam(pp.tt.text)
				if err != nil {
					return nil, fmt.Errorf("parameter %q: %w", pp.name, err)
				}
			}
			if opts != nil {
				if override, ok := opts.ParamTypes[pp.name]; ok {
					tag = override
				}
			}
			spec := ParamSpec{Key: pp.name, Tag: tag.Elem(), Multi: tag.IsMulti()}
			ct.fragments = append(ct.fragments, lit.String())
			lit.Reset()
			ct.params = append(ct.params, spec)
			ct.convs = append(ct.convs, typecat.Converter(spec.Tag))
			if spec.Multi {
				ct.dynamic = true
			}
		case *resultTypePart:
			tag := opts.defaultType()
			if pp.tt.text != "" {
				tag, err = typecat.ResolveResult(pp.tt.text)
				if err != nil {
					return nil, fmt.Errorf("result column %d: %w", resultOrdinal+1, err)
				}
			}
			ct.resultTags = append(ct.resultTags, tag)
			resultOrdinal++
		default:
			return nil, fmt.Errorf("internal error: unknown part type %T", pp)
		}
	}
	ct.fragments = append(ct.fragments, lit.String())

	if opts != nil && len(opts.ResultTypes) > 0 {
		if len(ct.resultTags) == 0 {
			return nil, &MixedResultTypesError{Declared: 0, Overrides: len(opts.ResultTypes)}
		}
		for i, tag := range opts.ResultTypes {
			if i < 0 || i >= len(ct.resultTags) {
				return nil, fmt.Errorf("result type override for column %d, template declares %d columns", i+1, len(ct.resultTags))
			}
			if tag.IsMulti() {
				return nil, fmt.Errorf("list type %q cannot be used for a result column", tag)
			}
			ct.resultTags[i] = tag
		}
	}
	for i, tag := range ct.resultTags {
		if tag == typecat.Default {
			ct.resultTags[i] = opts.defaultType()
		}
	}

	ct.sql = staticSQL(ct.fragments)
	return ct, nil
}

// staticSQL joins the literal fragments with one driver placeholder per
// parameter slot.
func staticSQL(fragments []string) string {
	var sb strings.Builder
	for i, f := range fragments {
		if i > 0 {
			sb.WriteString("?")
		}
		sb.WriteString(f)
	}
	return sb.String()
}

// SQL returns the driver-ready SQL text. For a dynamic template this is the
// one-placeholder-per-parameter form; the expanded text is produced when the
// template is bound.
func (ct *CompiledTemplate) SQL() string {
	return ct.sql
}

// Dynamic reports whether the SQL text must be regenerated per bind because
// a multi-value parameter's placeholder count depends on its runtime length.
func (ct *CompiledTemplate) Dynamic() bool {
	return ct.dynamic
}

// Typed reports whether the template declares result-column types.
func (ct *CompiledTemplate) Typed() bool {
	return len(ct.resultTags) > 0
}

// Params returns the ordered parameter descriptors.
func (ct *CompiledTemplate) Params() []ParamSpec {
	return append([]ParamSpec(nil), ct.params...)
}

// ParamKeys returns the declared parameter keys in declaration order.
func (ct *CompiledTemplate) ParamKeys() []string {
	keys := make([]string, len(ct.params))
	for i, p := range ct.params {
		keys[i] = p.Key
	}
	return keys
}

// ResultTypes returns the ordered result-column type tags.
func (ct *CompiledTemplate) ResultTypes() []typecat.Tag {
	return append([]typecat.Tag(nil), ct.resultTags...)
}

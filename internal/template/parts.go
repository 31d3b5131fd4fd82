package template

// A part is one node of a parsed template. The parsed template is an
// ordered list of parts.
type part interface {
	// String returns a string representation of the part for debugging and
	// testing purposes.
	String() string

	// part is a marker method.
	part()
}

// typeToken is a type annotation read from the template text. The
// explicit-default shorthand (a doubled type marker) produces a set token
// with empty text.
type typeToken struct {
	text string
	set  bool
}

func (tt typeToken) String() string {
	if tt.text == "" {
		return "default"
	}
	return tt.text
}

// literalPart is a fragment of SQL text passed to the driver verbatim.
type literalPart struct {
	text string
}

func (p *literalPart) String() string {
	return "Literal[" + p.text + "]"
}

func (p *literalPart) part() {}

// paramPart is a named parameter slot, optionally carrying an inline type
// annotation.
type paramPart struct {
	name string
	tt   typeToken
}

func (p *paramPart) String() string {
	if p.tt.set {
		return "Param[" + p.name + ":" + p.tt.String() + "]"
	}
	return "Param[" + p.name + "]"
}

func (p *paramPart) part() {}

// resultTypePart declares the type of the next result column, in
// declaration order.
type resultTypePart struct {
	tt typeToken
}

func (p *resultTypePart) String() string {
	return "ResultType[" + p.tt.String() + "]"
}

func (p *resultTypePart) part() {}

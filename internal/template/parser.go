// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package template

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default delimiter characters. All three are configurable per parser.
const (
	DefaultEscapeChar = '\\'
	DefaultParamChar  = '$'
	DefaultTypeChar   = '^'
)

// NewParser returns a parser using the default delimiters.
func NewParser() *Parser {
	return NewParserWithDelims(DefaultEscapeChar, DefaultParamChar, DefaultTypeChar)
}

// NewParserWithDelims returns a parser with custom escape, parameter and
// type marker characters.
func NewParserWithDelims(escape, param, typeMarker rune) *Parser {
	return &Parser{escapeChar: escape, paramChar: param, typeChar: typeMarker}
}

// Parser scans an annotated SQL template in a single forward pass,
// splitting it into literal text, named parameters and result-column type
// annotations. Quoted string literals and line comments pass through
// verbatim, and the escape character forces the following character to be
// taken literally.
//
// The scan state lives entirely inside the parser and is reset by Parse, so
// a Parser can be reused but not shared between goroutines. The output is a
// pure function of the input and the delimiters.
type Parser struct {
	escapeChar rune
	paramChar  rune
	typeChar   rune

	input string
	pos   int
	// nextPos is the start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches
	// the end of input.
	char rune
	// lineNum is the number of the current line of the input.
	lineNum int
	// lineStart is the position of the first char of the current line.
	lineStart int

	// lit accumulates literal text between parameter and type markers. It
	// never escapes the parser: flushLiteral moves it into parts.
	lit   strings.Builder
	parts []part
}

// ParsedTemplate is the ordered token stream produced from one template
// string.
type ParsedTemplate struct {
	parts []part
}

// String returns a textual representation of the parsed parts for debugging
// and testing purposes.
func (pt *ParsedTemplate) String() string {
	var out strings.Builder
	out.WriteString("[")
	for i, p := range pt.parts {
		if i > 0 {
			out.WriteString(" ")
		}
		out.WriteString(p.String())
	}
	out.WriteString("]")
	return out.String()
}

// init resets the state of the parser and sets the input string.
func (p *Parser) init(input string) {
	p.input = input
	p.pos = 0
	p.nextPos = 0
	p.char = 0
	p.lineNum = 1
	p.lineStart = 0
	p.lit.Reset()
	p.parts = []part{}
	p.advanceChar()
}

// colNum calculates the current column number taking into account line
// breaks.
func (p *Parser) colNum() int {
	return p.pos - p.lineStart + 1
}

// advanceChar moves the parser to the next character in the input. It also
// takes care of updating the line and column numbers if it encounters line
// breaks.
func (p *Parser) advanceChar() bool {
	if p.nextPos >= len(p.input) {
		p.char = 0
		p.pos = p.nextPos
		return false
	}
	if p.char == '\n' {
		p.lineStart = p.nextPos
		p.lineNum++
	}
	var size int
	p.char, size = utf8.DecodeRuneInString(p.input[p.nextPos:])
	p.pos = p.nextPos
	p.nextPos += size
	return true
}

// peekNextChar returns true if the rune after the current one equals c.
func (p *Parser) peekNextChar(c rune) bool {
	if p.nextPos >= len(p.input) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(p.input[p.nextPos:])
	return next == c
}

// errorAt builds a MalformedTemplateError with positional context and a
// fragment of the input around the given position.
func (p *Parser) errorAt(reason string, line, col, pos int) error {
	start := pos - 10
	if start < 0 {
		start = 0
	}
	end := pos + 10
	if end > len(p.input) {
		end = len(p.input)
	}
	return &MalformedTemplateError{
		Line:     line,
		Col:      col,
		Fragment: p.input[start:end],
		Reason:   reason,
	}
}

// isNameChar returns true if the given char can be part of a parameter name
// or a type token.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-'
}

// flushLiteral moves any accumulated literal text into the part list.
func (p *Parser) flushLiteral() {
	if p.lit.Len() > 0 {
		p.parts = append(p.parts, &literalPart{text: p.lit.String()})
		p.lit.Reset()
	}
}

// Parse scans the template string and returns its token stream.
func (p *Parser) Parse(input string) (pt *ParsedTemplate, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse template: %w", err)
		}
	}()

	p.init(input)

	for p.pos < len(p.input) {
		switch {
		case p.char == p.escapeChar:
			if err := p.copyEscaped(); err != nil {
				return nil, err
			}
		case p.char == '\'' || p.char == '"':
			if err := p.copyStringLiteral(); err != nil {
				return nil, err
			}
		case p.char == '-' && p.peekNextChar('-'):
			p.copyLineComment()
		case p.char == p.typeChar:
			if err := p.parseTypeMarker(); err != nil {
				return nil, err
			}
		case p.char == p.paramChar:
			if err := p.parseParam(typeToken{}); err != nil {
				return nil, err
			}
		default:
			p.lit.WriteRune(p.char)
			p.advanceChar()
		}
	}

	p.flushLiteral()
	return &ParsedTemplate{parts: p.parts}, nil
}

// copyEscaped drops the escape character and copies the character after it
// verbatim, whatever its special status.
func (p *Parser) copyEscaped() error {
	line, col, pos := p.lineNum, p.colNum(), p.pos
	p.advanceChar()
	if p.pos >= len(p.input) {
		return p.errorAt("dangling escape at end of template", line, col, pos)
	}
	p.lit.WriteRune(p.char)
	p.advanceChar()
	return nil
}

// copyStringLiteral copies a single or double quoted section verbatim,
// through the matching unescaped closing quote.
func (p *Parser) copyStringLiteral() error {
	line, col, pos := p.lineNum, p.colNum(), p.pos
	quote := p.char
	p.lit.WriteRune(quote)
	p.advanceChar()
	for p.pos < len(p.input) {
		if p.char == p.escapeChar {
			if err := p.copyEscaped(); err != nil {
				return err
			}
			continue
		}
		closed := p.char == quote
		p.lit.WriteRune(p.char)
		p.advanceChar()
		if closed {
			return nil
		}
	}
	return p.errorAt("missing closing quote in string literal", line, col, pos)
}

// copyLineComment copies a "--" comment verbatim through the newline that
// ends it, or to the end of input.
func (p *Parser) copyLineComment() {
	for p.pos < len(p.input) {
		done := p.char == '\n'
		p.lit.WriteRune(p.char)
		p.advanceChar()
		if done {
			return
		}
	}
}

// readToken accumulates name characters from the current position.
func (p *Parser) readToken() string {
	mark := p.pos
	for p.pos < len(p.input) && isNameChar(p.char) {
		p.advanceChar()
	}
	return p.input[mark:p.pos]
}

// parseTypeMarker handles a type annotation. The annotation attaches to a
// parameter it immediately precedes; otherwise it declares the type of the
// next result column. A doubled marker is the explicit-default shorthand.
func (p *Parser) parseTypeMarker() error {
	p.flushLiteral()
	line, col, pos := p.lineNum, p.colNum(), p.pos
	p.advanceChar()

	tt := typeToken{set: true}
	if p.pos < len(p.input) && p.char == p.typeChar {
		// Doubled marker, the token text stays empty.
		p.advanceChar()
	} else {
		tt.text = p.readToken()
		if tt.text == "" {
			return p.errorAt("missing type after type marker", line, col, pos)
		}
	}

	if p.pos < len(p.input) && p.char == p.paramChar {
		return p.parseParam(tt)
	}

	p.parts = append(p.parts, &resultTypePart{tt: tt})
	return nil
}

// parseParam handles a named parameter. A type annotation immediately
// following the name (as in "$salary^int") attaches to it, unless one was
// already attached from the front.
func (p *Parser) parseParam(tt typeToken) error {
	p.flushLiteral()
	line, col, pos := p.lineNum, p.colNum(), p.pos
	p.advanceChar()

	name := p.readToken()
	if name == "" {
		return p.errorAt("missing parameter name", line, col, pos)
	}

	if !tt.set && p.pos < len(p.input) && p.char == p.typeChar {
		line, col, pos = p.lineNum, p.colNum(), p.pos
		p.advanceChar()
		tt.set = true
		if p.pos < len(p.input) && p.char == p.typeChar {
			p.advanceChar()
		} else {
			tt.text = p.readToken()
			if tt.text == "" {
				return p.errorAt("missing type after type marker", line, col, pos)
			}
		}
	}

	p.parts = append(p.parts, &paramPart{name: name, tt: tt})
	return nil
}

package template

import (
	"strings"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlet/internal/typecat"
)

type CompileSuite struct{}

var _ = Suite(&CompileSuite{})

func mustParse(c *C, input string) *ParsedTemplate {
	pt, err := NewParser().Parse(input)
	c.Assert(err, IsNil)
	return pt
}

func (s *CompileSuite) TestCompileInsert(c *C) {
	pt := mustParse(c, "INSERT INTO emp (name, salary, dept) VALUES ($name^string, $salary^int, $dept^string)")
	ct, err := pt.Compile(nil)
	c.Assert(err, IsNil)
	c.Check(ct.SQL(), Equals, "INSERT INTO emp (name, salary, dept) VALUES (?, ?, ?)")
	c.Check(ct.Params(), DeepEquals, []ParamSpec{
		{Key: "name", Tag: typecat.String},
		{Key: "salary", Tag: typecat.Int},
		{Key: "dept", Tag: typecat.String},
	})
	c.Check(ct.ResultTypes(), HasLen, 0)
	c.Check(ct.Dynamic(), Equals, false)
	c.Check(ct.Typed(), Equals, false)
}

func (s *CompileSuite) TestCompileResultTypes(c *C) {
	pt := mustParse(c, "SELECT name^string, salary^long FROM emp WHERE dept = $dept^string")
	ct, err := pt.Compile(nil)
	c.Assert(err, IsNil)
	c.Check(ct.SQL(), Equals, "SELECT name, salary FROM emp WHERE dept = ?")
	c.Check(ct.ResultTypes(), DeepEquals, []typecat.Tag{typecat.String, typecat.Long})
	c.Check(ct.Typed(), Equals, true)
}

func (s *CompileSuite) TestCompileDeterministic(c *C) {
	input := "SELECT name^string FROM emp WHERE dept IN ($depts^string-list) AND age > $age^int"
	first, err := mustParse(c, input).Compile(nil)
	c.Assert(err, IsNil)
	second, err := mustParse(c, input).Compile(nil)
	c.Assert(err, IsNil)
	c.Check(first.SQL(), Equals, second.SQL())
	c.Check(first.Params(), DeepEquals, second.Params())
	c.Check(first.ResultTypes(), DeepEquals, second.ResultTypes())
}

func (s *CompileSuite) TestPlaceholderCountMatchesParams(c *C) {
	inputs := []string{
		"SELECT a FROM t",
		"SELECT a FROM t WHERE b = $b",
		"INSERT INTO t (a, b, c) VALUES ($a^int, $b, $c^timestamp)",
		"SELECT a FROM t WHERE b = $b AND c = '$quoted' AND d = \\$escaped",
	}
	for _, input := range inputs {
		ct, err := mustParse(c, input).Compile(nil)
		c.Assert(err, IsNil, Commentf("input: %s", input))
		c.Check(strings.Count(ct.SQL(), "?"), Equals, len(ct.Params()),
			Commentf("input: %s", input))
	}
}

func (s *CompileSuite) TestQuotedTextPassesThrough(c *C) {
	ct, err := mustParse(c, "SELECT '$x' FROM t").Compile(nil)
	c.Assert(err, IsNil)
	c.Check(ct.SQL(), Equals, "SELECT '$x' FROM t")
	c.Check(ct.Params(), HasLen, 0)
	c.Check(ct.ResultTypes(), HasLen, 0)
}

func (s *CompileSuite) TestUnknownParamType(c *C) {
	_, err := mustParse(c, "SELECT a FROM t WHERE b = $b^wibble").Compile(nil)
	c.Assert(err, ErrorMatches, `cannot compile template: parameter "b": unknown type "wibble"`)
}

func (s *CompileSuite) TestUnknownResultType(c *C) {
	_, err := mustParse(c, "SELECT a^wibble FROM t").Compile(nil)
	c.Assert(err, ErrorMatches, `cannot compile template: result column 1: unknown type "wibble"`)
}

func (s *CompileSuite) TestListResultTypeRejected(c *C) {
	_, err := mustParse(c, "SELECT a^int-list FROM t").Compile(nil)
	c.Assert(err, ErrorMatches, `cannot compile template: result column 1: list type "int-list" cannot be used for a result column`)
}

func (s *CompileSuite) TestListParamMarksDynamic(c *C) {
	ct, err := mustParse(c, "SELECT a FROM t WHERE b IN ($ids^long-list)").Compile(nil)
	c.Assert(err, IsNil)
	c.Check(ct.Dynamic(), Equals, true)
	c.Check(ct.Params(), DeepEquals, []ParamSpec{{Key: "ids", Tag: typecat.Long, Multi: true}})
}

func (s *CompileSuite) TestDefaultTypeOption(c *C) {
	pt := mustParse(c, "SELECT a^^ FROM t WHERE b = $b")

	ct, err := pt.Compile(nil)
	c.Assert(err, IsNil)
	c.Check(ct.Params()[0].Tag, Equals, typecat.Object)
	c.Check(ct.ResultTypes(), DeepEquals, []typecat.Tag{typecat.Object})

	ct, err = pt.Compile(&CompileOptions{DefaultType: typecat.String})
	c.Assert(err, IsNil)
	c.Check(ct.Params()[0].Tag, Equals, typecat.String)
	c.Check(ct.ResultTypes(), DeepEquals, []typecat.Tag{typecat.String})
}

func (s *CompileSuite) TestParamTypeOverride(c *C) {
	pt := mustParse(c, "SELECT a FROM t WHERE b = $b^int AND c IN ($cs^string-list)")
	ct, err := pt.Compile(&CompileOptions{ParamTypes: map[string]typecat.Tag{
		"b":  typecat.Long,
		"cs": typecat.IntList,
	}})
	c.Assert(err, IsNil)
	c.Check(ct.Params(), DeepEquals, []ParamSpec{
		{Key: "b", Tag: typecat.Long},
		{Key: "cs", Tag: typecat.Int, Multi: true},
	})
}

func (s *CompileSuite) TestResultTypeOverride(c *C) {
	pt := mustParse(c, "SELECT a^int, b^int FROM t")
	ct, err := pt.Compile(&CompileOptions{ResultTypes: map[int]typecat.Tag{1: typecat.Double}})
	c.Assert(err, IsNil)
	c.Check(ct.ResultTypes(), DeepEquals, []typecat.Tag{typecat.Int, typecat.Double})
}

func (s *CompileSuite) TestResultTypeOverrideOutOfRange(c *C) {
	pt := mustParse(c, "SELECT a^int FROM t")
	_, err := pt.Compile(&CompileOptions{ResultTypes: map[int]typecat.Tag{3: typecat.Double}})
	c.Assert(err, ErrorMatches, `cannot compile template: result type override for column 4, template declares 1 columns`)
}

func (s *CompileSuite) TestResultTypeOverrideOnUntyped(c *C) {
	pt := mustParse(c, "SELECT a, b FROM t")
	_, err := pt.Compile(&CompileOptions{ResultTypes: map[int]typecat.Tag{0: typecat.Int}})
	c.Assert(err, ErrorMatches, `cannot compile template: cannot mix typed and untyped result columns: 1 overridden, 0 declared`)
	_, ok := errCause(err).(*MixedResultTypesError)
	c.Check(ok, Equals, true)
}

// errCause unwraps the outermost fmt.Errorf context added by Compile.
func errCause(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}

package template

import (
	"database/sql"
	"fmt"
	"time"

	. "gopkg.in/check.v1"
)

type ReadSuite struct{}

var _ = Suite(&ReadSuite{})

// fakeRow stands in for sql.Rows: Scan assigns one canned driver value per
// destination.
type fakeRow struct {
	vals []any
}

func (r *fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.vals) {
		return fmt.Errorf("expected %d destinations, got %d", len(r.vals), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case sql.Scanner:
			if err := d.Scan(r.vals[i]); err != nil {
				return err
			}
		case *[]byte:
			if r.vals[i] == nil {
				*d = nil
			} else {
				*d = r.vals[i].([]byte)
			}
		case *any:
			*d = r.vals[i]
		default:
			return fmt.Errorf("unexpected destination type %T", d)
		}
	}
	return nil
}

func mustBind(c *C, input string, params map[string]any) *PrimedQuery {
	pq, err := mustCompile(c, input).BindMap(params)
	c.Assert(err, IsNil)
	return pq
}

func (s *ReadSuite) TestReadTypedRow(c *C) {
	pq := mustBind(c, "SELECT a^int, b^string, c^bool FROM t", nil)
	c.Assert(pq.HasResults(), Equals, true)

	row, err := pq.ReadRow(&fakeRow{vals: []any{int64(5), "x", true}},
		[]string{"a", "b", "c"}, nil)
	c.Assert(err, IsNil)
	c.Check(row, DeepEquals, Row{5, "x", true})
}

func (s *ReadSuite) TestReadNullDefaults(c *C) {
	// NULL primitives read back as the type's default; object-like types
	// read back as nil.
	pq := mustBind(c, "SELECT a^int, b^string, c^bool, d^double, e^timestamp FROM t", nil)
	row, err := pq.ReadRow(&fakeRow{vals: []any{nil, nil, nil, nil, nil}},
		[]string{"a", "b", "c", "d", "e"}, nil)
	c.Assert(err, IsNil)
	c.Check(row, DeepEquals, Row{0, nil, false, float64(0), nil})
}

func (s *ReadSuite) TestReadColumnCountMismatch(c *C) {
	pq := mustBind(c, "SELECT a^int, b^string FROM t", nil)
	_, _, err := pq.ScanDests([]string{"a", "b", "c"}, nil)
	c.Assert(err, ErrorMatches, `result row has 3 columns but 2 types are declared`)
	cme, ok := err.(*ColumnCountMismatchError)
	c.Assert(ok, Equals, true)
	c.Check(cme.Want, Equals, 2)
	c.Check(cme.Got, Equals, 3)
}

func (s *ReadSuite) TestReadUntypedRow(c *C) {
	pq := mustBind(c, "SELECT a, b, c FROM t", nil)
	c.Check(pq.HasResults(), Equals, false)

	row, err := pq.ReadRow(&fakeRow{vals: []any{int64(1), "x", nil}},
		[]string{"a", "b", "c"}, nil)
	c.Assert(err, IsNil)
	c.Check(row, DeepEquals, Row{int64(1), "x", nil})
}

func (s *ReadSuite) TestReadUntypedTextBytes(c *C) {
	// Text columns arriving as driver-owned byte slices surface as strings.
	pq := mustBind(c, "SELECT a, b FROM t", nil)
	row, err := pq.ReadRow(&fakeRow{vals: []any{[]byte("hello"), []byte{1, 2}}},
		[]string{"a", "b"}, []string{"TEXT", "BLOB"})
	c.Assert(err, IsNil)
	c.Check(row, DeepEquals, Row{"hello", []byte{1, 2}})
}

func (s *ReadSuite) TestReadUntypedBytesCopied(c *C) {
	src := []byte{1, 2, 3}
	pq := mustBind(c, "SELECT a FROM t", nil)
	row, err := pq.ReadRow(&fakeRow{vals: []any{src}}, []string{"a"}, []string{"BLOB"})
	c.Assert(err, IsNil)
	src[0] = 99
	c.Check(row[0], DeepEquals, []byte{1, 2, 3})
}

func (s *ReadSuite) TestReadUntypedTimestampText(c *C) {
	pq := mustBind(c, "SELECT a, b FROM t", nil)
	row, err := pq.ReadRow(&fakeRow{vals: []any{"2022-03-04 05:06:07", "2022-03-04 05:06:07"}},
		[]string{"a", "b"}, []string{"TIMESTAMP", "VARCHAR"})
	c.Assert(err, IsNil)
	c.Check(row[0], DeepEquals, time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC))
	// Without a date-ish column type the text is left alone.
	c.Check(row[1], Equals, "2022-03-04 05:06:07")
}

func (s *ReadSuite) TestReadTypedTimestamp(c *C) {
	when := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	pq := mustBind(c, "SELECT a^timestamp FROM t", nil)
	row, err := pq.ReadRow(&fakeRow{vals: []any{when}}, []string{"a"}, nil)
	c.Assert(err, IsNil)
	c.Check(row, DeepEquals, Row{when})
}

func (s *ReadSuite) TestReadURLColumn(c *C) {
	pq := mustBind(c, "SELECT a^url FROM t", nil)
	row, err := pq.ReadRow(&fakeRow{vals: []any{"https://example.com/x"}},
		[]string{"a"}, nil)
	c.Assert(err, IsNil)
	c.Assert(row, HasLen, 1)
	c.Check(fmt.Sprint(row[0]), Equals, "https://example.com/x")
}

func (s *ReadSuite) TestScanDestTypes(c *C) {
	pq := mustBind(c, "SELECT a^int, b^string, c^blob FROM t", nil)
	ptrs, _, err := pq.ScanDests([]string{"a", "b", "c"}, nil)
	c.Assert(err, IsNil)
	c.Assert(ptrs, HasLen, 3)
	_, ok := ptrs[0].(*sql.NullInt64)
	c.Check(ok, Equals, true)
	_, ok = ptrs[1].(*sql.NullString)
	c.Check(ok, Equals, true)
	_, ok = ptrs[2].(*[]byte)
	c.Check(ok, Equals, true)

	pq = mustBind(c, "SELECT a FROM t", nil)
	ptrs, _, err = pq.ScanDests([]string{"a"}, nil)
	c.Assert(err, IsNil)
	_, ok = ptrs[0].(*any)
	c.Check(ok, Equals, true)
}

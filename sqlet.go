// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlet

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/canonical/sqlet/internal/template"
	"github.com/canonical/sqlet/internal/typecat"
)

// M is a convenience type for passing named parameters by key. M is not a
// special type, any map with string keys can be used.
//
// Example:
//
//	stmt := sqlet.MustPrepare("UPDATE people SET name = $name WHERE id = $id^long")
//	err := db.Query(ctx, stmt, sqlet.M{"name": "Fred", "id": 10}).Run()
type M map[string]any

// S is a convenience type for passing parameters by position, in the order
// they are declared in the template.
type S []any

// Row is one materialized result row, positionally aligned with the
// template's result columns.
type Row = template.Row

// ParamSpec describes one declared parameter of a prepared Statement.
type ParamSpec = template.ParamSpec

// TypeTag identifies a type from the catalog, for use in [Options].
type TypeTag = typecat.Tag

// The catalog's type tags. In template text the same types are written as
// tokens: ^bool, ^int, ^string and so on, with "-list" suffixed for the
// multi-value forms.
const (
	TypeDefault   = typecat.Default
	TypeBool      = typecat.Bool
	TypeByte      = typecat.Byte
	TypeBytes     = typecat.Bytes
	TypeDate      = typecat.Date
	TypeTime      = typecat.Time
	TypeTimestamp = typecat.Timestamp
	TypeDouble    = typecat.Double
	TypeFloat     = typecat.Float
	TypeInt       = typecat.Int
	TypeLong      = typecat.Long
	TypeString    = typecat.String
	TypeObject    = typecat.Object
	TypeBlob      = typecat.Blob
	TypeClob      = typecat.Clob
	TypeURL       = typecat.URL
)

// The structured errors raised at parse, compile, bind and read time.
type (
	MalformedTemplateError     = template.MalformedTemplateError
	UnknownTypeError           = typecat.UnknownTypeError
	MixedResultTypesError      = template.MixedResultTypesError
	MissingParamError          = template.MissingParamError
	ParamTypeMismatchError     = template.ParamTypeMismatchError
	ArityMismatchError         = template.ArityMismatchError
	ColumnCountMismatchError   = template.ColumnCountMismatchError
	UnsupportedColumnTypeError = template.UnsupportedColumnTypeError
)

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// stmtCache stores the driver prepared statements associated to the sqlet
// Statement objects.
var stmtCache = newStatementCache()

// Options adjust how a template is parsed and compiled.
type Options struct {
	// EscapeChar, ParamChar and TypeChar override the template delimiters.
	// A zero rune keeps the default ('\', '$' and '^' respectively).
	EscapeChar rune
	ParamChar  rune
	TypeChar   rune

	// DefaultType is the type given to unannotated parameters and columns.
	// It defaults to TypeObject: values pass through to the driver and come
	// back subject only to the driver's own conversions.
	DefaultType TypeTag

	// ParamTypes and ResultTypes override individual inferred types by
	// parameter key and by result-column ordinal, so a template can be
	// reused with a differently-typed driver without re-parsing.
	ParamTypes  map[string]TypeTag
	ResultTypes map[int]TypeTag
}

// Statement is a compiled template ready to be run on a database. A
// Statement is immutable after Prepare and can be used concurrently with
// any [DB].
type Statement struct {
	// cacheID is used to look up the driver prepared statements associated
	// with this Statement.
	cacheID uint64
	// ct is the compiled template: driver-ready SQL text plus the ordered
	// parameter and result-column descriptors.
	ct *template.CompiledTemplate
}

// Prepare parses and compiles a template with the default options. The
// template is validated here, before any statement is prepared on a
// database; a template that compiles cannot fail structurally later.
func Prepare(query string) (*Statement, error) {
	return PrepareWith(query, nil)
}

// PrepareWith is [Prepare] with explicit options.
func PrepareWith(query string, opts *Options) (*Statement, error) {
	parser := template.NewParser()
	if opts != nil && (opts.EscapeChar != 0 || opts.ParamChar != 0 || opts.TypeChar != 0) {
		escape, param, typeMarker := opts.EscapeChar, opts.ParamChar, opts.TypeChar
		if escape == 0 {
			escape = template.DefaultEscapeChar
		}
		if param == 0 {
			param = template.DefaultParamChar
		}
		if typeMarker == 0 {
			typeMarker = template.DefaultTypeChar
		}
		parser = template.NewParserWithDelims(escape, param, typeMarker)
	}
	pt, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}

	var copts *template.CompileOptions
	if opts != nil {
		copts = &template.CompileOptions{
			DefaultType: opts.DefaultType,
			ParamTypes:  opts.ParamTypes,
			ResultTypes: opts.ResultTypes,
		}
	}
	ct, err := pt.Compile(copts)
	if err != nil {
		return nil, err
	}

	return stmtCache.newStatement(ct), nil
}

// MustPrepare is the same as [Prepare] except that it panics on error.
func MustPrepare(query string) *Statement {
	s, err := Prepare(query)
	if err != nil {
		panic(err)
	}
	return s
}

// MustPrepareWith is the same as [PrepareWith] except that it panics on
// error.
func MustPrepareWith(query string, opts *Options) *Statement {
	s, err := PrepareWith(query, opts)
	if err != nil {
		panic(err)
	}
	return s
}

// SQL returns the driver-ready SQL text with parameters replaced by
// placeholders.
func (s *Statement) SQL() string {
	return s.ct.SQL()
}

// ParamKeys returns the declared parameter keys in declaration order.
func (s *Statement) ParamKeys() []string {
	return s.ct.ParamKeys()
}

// Params returns the ordered parameter descriptors.
func (s *Statement) Params() []ParamSpec {
	return s.ct.Params()
}

// ResultTypes returns the declared result-column types in declaration
// order. It is empty for untyped statements.
func (s *Statement) ResultTypes() []TypeTag {
	return s.ct.ResultTypes()
}

// Dynamic reports whether the statement's SQL text is regenerated per run
// because it has multi-value parameters.
func (s *Statement) Dynamic() bool {
	return s.ct.Dynamic()
}

// DB wraps a sql.DB.
type DB struct {
	// cacheID is used to look up the cached driver prepared statements
	// prepared on this database.
	cacheID uint64
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
}

// NewDB creates a new [sqlet.DB] from a [sql.DB].
func NewDB(sqldb *sql.DB) *DB {
	if sqldb == nil {
		return nil
	}
	return stmtCache.newDB(sqldb)
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Query represents a statement bound to parameter values on a database or
// transaction. It is designed to be run once: the Run/Result methods
// execute it, and the One/All/Iter methods execute it and read rows.
type Query struct {
	// run executes the query against the DB or the TX. wantRows selects
	// between the row-returning and the exec paths.
	run func(ctx context.Context, wantRows bool) (*sql.Rows, sql.Result, error)
	ctx context.Context
	err error
	pq  *template.PrimedQuery
}

// Iterator is used to iterate over the results of a query row by row.
type Iterator struct {
	pq      *template.PrimedQuery
	rows    *sql.Rows
	cols    []string
	dbTypes []string
	err     error
}

// Query binds the statement to the given parameter collection and returns
// a query on the database. params is a map with string keys (bind by
// declared key), a slice (bind by position) or nil for a statement with no
// parameters. The query is not sent to the database until one of the Query
// methods runs it.
func (db *DB) Query(ctx context.Context, s *Statement, params any) *Query {
	if ctx == nil {
		ctx = context.Background()
	}

	pq, err := s.ct.Bind(params)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context, wantRows bool) (rows *sql.Rows, result sql.Result, err error) {
		if s.ct.Dynamic() {
			// The SQL text depends on the bound values, so a cached
			// prepared statement cannot be reused. Run directly.
			if wantRows {
				rows, err = db.sqldb.QueryContext(innerCtx, pq.SQL(), pq.Params()...)
			} else {
				result, err = db.sqldb.ExecContext(innerCtx, pq.SQL(), pq.Params()...)
			}
			return rows, result, err
		}

		sqlstmt, ok := stmtCache.lookupStmt(db, s)
		if !ok {
			sqlstmt, err = stmtCache.driverPrepareStmt(innerCtx, db, s, pq.SQL())
			if err != nil {
				return nil, nil, err
			}
		}
		if wantRows {
			rows, err = sqlstmt.QueryContext(innerCtx, pq.Params()...)
		} else {
			result, err = sqlstmt.ExecContext(innerCtx, pq.Params()...)
		}
		return rows, result, err
	}

	return &Query{pq: pq, run: run, ctx: ctx, err: nil}
}

// Run executes the query and disregards any results.
func (q *Query) Run() error {
	_, err := q.Result()
	return err
}

// Result executes the query without reading rows and returns the driver's
// execution result.
func (q *Query) Result() (sql.Result, error) {
	if q.err != nil {
		return nil, q.err
	}
	_, result, err := q.run(q.ctx, false)
	return result, err
}

// Iter runs the query and returns an [Iterator] over the result rows.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}

	rows, _, err := q.run(q.ctx, true)
	if err != nil {
		return &Iterator{pq: q.pq, err: err}
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return &Iterator{pq: q.pq, err: err}
	}
	// Column type metadata is advisory: drivers that do not implement it
	// leave the names empty and untyped columns then pass through as-is.
	var dbTypes []string
	if colTypes, err := rows.ColumnTypes(); err == nil {
		dbTypes = make([]string, len(colTypes))
		for i, colType := range colTypes {
			dbTypes[i] = colType.DatabaseTypeName()
		}
	}

	return &Iterator{pq: q.pq, rows: rows, cols: cols, dbTypes: dbTypes}
}

// One runs the query and returns its first row. It returns [ErrNoRows] if
// the query produced no rows.
func (q *Query) One() (row Row, err error) {
	defer func() {
		if err != nil && err != ErrNoRows {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	iter := q.Iter()
	if !iter.Next() {
		if err := iter.Close(); err != nil {
			return nil, err
		}
		return nil, ErrNoRows
	}
	row, err = iter.Row()
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return row, err
}

// OneMap runs the query and returns its first row keyed by column name.
// It returns [ErrNoRows] if the query produced no rows.
func (q *Query) OneMap() (m M, err error) {
	defer func() {
		if err != nil && err != ErrNoRows {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	iter := q.Iter()
	if !iter.Next() {
		if err := iter.Close(); err != nil {
			return nil, err
		}
		return nil, ErrNoRows
	}
	m, err = iter.RowMap()
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return m, err
}

// All runs the query and returns every result row.
func (q *Query) All() (rows []Row, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get results: %s", err)
		}
	}()

	iter := q.Iter()
	for iter.Next() {
		row, err := iter.Row()
		if err != nil {
			iter.Close()
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Next prepares the next row for [Iterator.Row]. If an error occurs during
// iteration it is returned by [Iterator.Close].
func (iter *Iterator) Next() bool {
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Row materializes the row prepared by the previous [Iterator.Next] call,
// applying the type catalog's null-default policy to typed columns.
func (iter *Iterator) Row() (row Row, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	if iter.err != nil {
		return nil, iter.err
	}
	if iter.rows == nil {
		return nil, fmt.Errorf("iteration ended")
	}
	return iter.pq.ReadRow(iter.rows, iter.cols, iter.dbTypes)
}

// RowMap materializes the current row keyed by column name.
func (iter *Iterator) RowMap() (M, error) {
	row, err := iter.Row()
	if err != nil {
		return nil, err
	}
	m := make(M, len(row))
	for i, v := range row {
		m[iter.cols[i]] = v
	}
	return m, nil
}

// Close finishes the iteration and returns any errors encountered. Close
// can be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	iter.rows = nil
	if iter.err != nil {
		return iter.err
	}
	return err
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Begin starts a transaction. A transaction must be ended with a
// [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// Query binds the statement to the given parameter collection and returns
// a query on the transaction. See [DB.Query] for the parameter shapes.
func (tx *TX) Query(ctx context.Context, s *Statement, params any) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}

	pq, err := s.ct.Bind(params)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context, wantRows bool) (rows *sql.Rows, result sql.Result, err error) {
		if !s.ct.Dynamic() {
			if sqlstmt, ok := stmtCache.lookupStmt(tx.db, s); ok {
				// Register the prepared statement on the transaction. Note
				// that this does not re-prepare the statement on the driver.
				// The txstmt is closed by database/sql when the transaction
				// is committed or rolled back.
				txstmt := tx.sqltx.Stmt(sqlstmt)
				if wantRows {
					rows, err = txstmt.QueryContext(innerCtx, pq.Params()...)
				} else {
					result, err = txstmt.ExecContext(innerCtx, pq.Params()...)
				}
				return rows, result, err
			}
		}

		if wantRows {
			rows, err = tx.sqltx.QueryContext(innerCtx, pq.SQL(), pq.Params()...)
		} else {
			result, err = tx.sqltx.ExecContext(innerCtx, pq.SQL(), pq.Params()...)
		}
		return rows, result, err
	}

	return &Query{pq: pq, ctx: ctx, run: run, err: nil}
}

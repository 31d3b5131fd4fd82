/*
Package sqlet is a convenience layer for issuing parameterized SQL through
database/sql. Templates are ordinary SQL text carrying two small extensions:
named parameters and inline type annotations. A template is compiled once
into an immutable statement and then bound to fresh values on every run.

# Basics

A named parameter is introduced with $:

	SELECT name FROM person WHERE team = $team

Compiling this yields driver-ready SQL ("... WHERE team = ?") plus the
ordered parameter descriptors; at run time the values are taken from a map
(bind by key) or a slice (bind by position):

	stmt := sqlet.MustPrepare("SELECT name FROM person WHERE team = $team")
	rows, err := db.Query(ctx, stmt, sqlet.M{"team": "pelicans"}).All()

# Type annotations

The ^ marker declares a type from a closed catalog: bool, byte, bytes,
date, time, timestamp, double, float, int, long, string, object, blob,
clob and url (plus aliases such as integer, str and byte-array). Written
after a parameter it declares the parameter's type, so binding validates
the supplied value before the driver sees it:

	INSERT INTO emp (name, salary) VALUES ($name^string, $salary^int)

Standing alone, an annotation declares the type of the next result column,
in declaration order:

	SELECT name^string, salary^long FROM emp

Typed result columns are read through type-specific accessors, and a SQL
NULL in a primitive-typed column (bool, byte, int, long, double, float)
comes back as that type's fixed default (false or zero) instead of nil;
object-like columns yield nil. Columns without annotations pass through as
generic values subject only to the driver's conversions.

A doubled marker (^^) is the explicit-default shorthand: the parameter or
column is declared, but with the compile options' default type.

# Multi-value parameters

A "-list" type makes a parameter multi-value for IN clauses. The bound
value must be a non-empty slice; the placeholder list is regenerated on
every run, sized to the value:

	stmt := sqlet.MustPrepare("SELECT name FROM emp WHERE dept IN ($depts^string-list)")
	rows, err := db.Query(ctx, stmt, sqlet.M{"depts": []any{"Accounts", "Sales"}}).All()

Statements with multi-value parameters are run directly rather than through
the prepared-statement cache, because a prepared statement's placeholder
count is fixed at prepare time.

# Quoting, comments and escapes

$ and ^ inside single or double quoted literals or after a line comment
marker (--) are plain text. The escape character \ forces the next
character to be taken literally. All three special characters can be
changed per Prepare through [Options].

	sqlet.MustPrepare(`SELECT '$x' FROM t`) // no parameters

# Errors

Parse and compile problems ([MalformedTemplateError], [UnknownTypeError],
[MixedResultTypesError]) surface from Prepare, before any statement
reaches a database. Binding reports [MissingParamError],
[ParamTypeMismatchError] and [ArityMismatchError] with the parameter's
1-based index and key. Reading reports [ColumnCountMismatchError] when the
row's width does not match the declared columns. Nothing is retried at any
layer; recovery policy belongs to the caller.
*/
package sqlet

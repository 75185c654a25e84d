package postgrest

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

// Query accumulates PostgREST filter, order and range parameters. The
// zero value selects every row of a table.
type Query struct {
	filters []param
	order   []string
	limit   int
	offset  int
	columns string
}

type param struct {
	key   string
	value string
}

// NewQuery returns an empty query.
func NewQuery() Query {
	return Query{}
}

// SelectColumns restricts the returned columns, e.g. "id,name".
func (q Query) SelectColumns(cols string) Query {
	q.columns = cols
	return q
}

// Eq filters column = value.
func (q Query) Eq(column string, value interface{}) Query {
	return q.filter(column, "eq", formatValue(value))
}

// Gte filters column >= value.
func (q Query) Gte(column string, value interface{}) Query {
	return q.filter(column, "gte", formatValue(value))
}

// Lte filters column <= value.
func (q Query) Lte(column string, value interface{}) Query {
	return q.filter(column, "lte", formatValue(value))
}

// In filters column against a value set.
func (q Query) In(column string, values ...string) Query {
	return q.filter(column, "in", "("+strings.Join(values, ",")+")")
}

// IsNull filters column IS NULL.
func (q Query) IsNull(column string) Query {
	return q.filter(column, "is", "null")
}

// ILike filters column by a case-insensitive pattern. The pattern uses
// "*" as the wildcard per PostgREST convention.
func (q Query) ILike(column, pattern string) Query {
	return q.filter(column, "ilike", pattern)
}

// Or adds a disjunction of conditions, each in "column.op.value" form.
func (q Query) Or(conditions ...string) Query {
	q.filters = append(q.filters, param{key: "or", value: "(" + strings.Join(conditions, ",") + ")"})
	return q
}

// OrderBy appends an ordering term.
func (q Query) OrderBy(column string, descending bool) Query {
	dir := "asc"
	if descending {
		dir = "desc"
	}
	q.order = append(q.order, column+"."+dir)
	return q
}

// Limit caps the number of returned rows.
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// Offset skips the first n rows.
func (q Query) Offset(n int) Query {
	q.offset = n
	return q
}

func (q Query) filter(column, op, value string) Query {
	q.filters = append(q.filters, param{key: column, value: op + "." + value})
	return q
}

// Encode renders the query as URL parameters.
func (q Query) Encode() url.Values {
	values := url.Values{}
	if q.columns != "" {
		values.Set("select", q.columns)
	}
	for _, f := range q.filters {
		values.Add(f.key, f.value)
	}
	if len(q.order) > 0 {
		values.Set("order", strings.Join(q.order, ","))
	}
	if q.limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", q.limit))
	}
	if q.offset > 0 {
		values.Set("offset", fmt.Sprintf("%d", q.offset))
	}
	return values
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return timeutil.FormatStampUTC(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

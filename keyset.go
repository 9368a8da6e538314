package ledgerd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DefaultPageSize is used for first/last when the caller leaves both nil.
const DefaultPageSize = 40

// MaxPageSize is the absolute cap on first/last, regardless of caller input.
const MaxPageSize = 10_000

// Args selects a page of a keyset-ordered result. Exactly one of the
// forward pair (First, After) or the backward pair (Last, Before) should
// be meaningful; "backward" is detected as Last or Before set with
// neither First nor After set, per ReadPage's direction rule.
type Args struct {
	First  *uint16
	After  *Cursor
	Last   *uint16
	Before *Cursor
}

// Edge pairs a row with the cursor that resumes a page immediately after
// (or before) it.
type Edge[T any] struct {
	Cursor Cursor
	Node   T
}

// PageInfo describes what lies beyond the returned edges.
type PageInfo struct {
	HasPreviousPage bool
	HasNextPage     bool
	StartCursor     *Cursor
	EndCursor       *Cursor
}

// ReadResult is one page of a keyset-ordered read.
type ReadResult[T any] struct {
	Edges    []Edge[T]
	PageInfo PageInfo
}

// SortKey names one column of the composite ordering and how to pull its
// value back out of a scanned row, so ReadPage can assemble a cursor for
// each row without the caller hand-rolling tuple extraction.
type SortKey struct {
	Column  string
	Extract func(row any) any
}

// KeysetQuery is the base SELECT a caller wants paginated. Where, if
// non-empty, is combined with the cursor predicate via AND. Descending
// sets the *default* direction used when Args disambiguates neither
// forward nor backward facts beyond what the direction rule already
// determines — i.e. it flips both the predicate comparison and the
// ORDER BY clause for callers whose natural order is newest-first.
type KeysetQuery struct {
	SelectCols string
	From       string
	Where      string
	Args       []any
	Sort       []SortKey
	Descending bool
}

func effectiveLimit(n *uint16) int {
	if n == nil {
		return DefaultPageSize
	}
	lim := int(*n)
	if lim <= 0 {
		return DefaultPageSize
	}
	if lim > MaxPageSize {
		return MaxPageSize
	}
	return lim
}

// isBackward implements the direction rule of the keyset algorithm:
// backward iff (Last or Before) and neither First nor After.
func (a Args) isBackward() bool {
	return (a.Last != nil || a.Before != nil) && a.First == nil && a.After == nil
}

func (a Args) limit() int {
	if a.isBackward() {
		return effectiveLimit(a.Last)
	}
	return effectiveLimit(a.First)
}

func (a Args) cursor() *Cursor {
	if a.isBackward() {
		return a.Before
	}
	return a.After
}

// ReadPage runs the keyset algorithm of the cursor codec and pagination
// spec: effective limit/cursor computation, direction detection,
// predicate and ORDER BY assembly, a LIMIT limit+1 has-more probe,
// backward-page reversal, and PageInfo assembly.
func ReadPage[R any](ctx context.Context, db *sql.DB, kq KeysetQuery, args Args, scan func(*sql.Rows) (R, error)) (ReadResult[R], error) {
	backward := args.isBackward()
	limit := args.limit()
	cursor := args.cursor()

	// forward-ascending unless KeysetQuery.Descending flips the base order,
	// and unless the page direction itself reverses the comparison.
	ascending := !kq.Descending
	if backward {
		ascending = !ascending
	}

	query := kq.SelectCols + " FROM " + kq.From
	whereParts := make([]string, 0, 2)
	args2 := append([]any{}, kq.Args...)

	if kq.Where != "" {
		whereParts = append(whereParts, "("+kq.Where+")")
	}

	if cursor != nil {
		keyVals := make([]any, len(kq.Sort))
		ptrs := make([]any, len(kq.Sort))
		for i := range keyVals {
			ptrs[i] = &keyVals[i]
		}
		if err := DecodeCursor(*cursor, ptrs...); err != nil {
			return ReadResult[R]{}, err
		}

		predicate, predArgs := buildCursorPredicate(kq.Sort, keyVals, ascending)
		whereParts = append(whereParts, "("+predicate+")")
		args2 = append(args2, predArgs...)
	}

	if len(whereParts) > 0 {
		query += " WHERE " + strings.Join(whereParts, " AND ")
	}

	query += " ORDER BY " + orderByClause(kq.Sort, ascending)
	query += fmt.Sprintf(" LIMIT %d", limit+1)

	rows, err := db.QueryContext(ctx, query, args2...)
	if err != nil {
		return ReadResult[R]{}, newBackend("ReadPage", err)
	}
	defer rows.Close()

	type scanned struct {
		row    R
		cursor Cursor
	}

	var out []scanned
	for rows.Next() {
		row, err := scan(rows)
		if err != nil {
			return ReadResult[R]{}, newBackend("ReadPage", err)
		}
		c, err := encodeRowCursor(kq.Sort, row)
		if err != nil {
			return ReadResult[R]{}, err
		}
		out = append(out, scanned{row: row, cursor: c})
	}
	if err := rows.Err(); err != nil {
		return ReadResult[R]{}, newBackend("ReadPage", err)
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	if backward {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	result := ReadResult[R]{Edges: make([]Edge[R], len(out))}
	for i, s := range out {
		result.Edges[i] = Edge[R]{Cursor: s.cursor, Node: s.row}
	}

	if backward {
		result.PageInfo.HasPreviousPage = hasMore
		result.PageInfo.HasNextPage = false
	} else {
		result.PageInfo.HasPreviousPage = false
		result.PageInfo.HasNextPage = hasMore
	}
	if len(result.Edges) > 0 {
		start := result.Edges[0].Cursor
		end := result.Edges[len(result.Edges)-1].Cursor
		result.PageInfo.StartCursor = &start
		result.PageInfo.EndCursor = &end
	}

	return result, nil
}

// buildCursorPredicate renders the chained-OR keyset predicate:
// (k1 > c1) OR (k1 = c1 AND (k2 > c2 OR (k2 = c2 AND k3 > c3) ...))
// with > flipped to < when ascending is false.
func buildCursorPredicate(sort []SortKey, keyVals []any, ascending bool) (string, []any) {
	op := ">"
	if !ascending {
		op = "<"
	}

	var build func(i int) (string, []any)
	build = func(i int) (string, []any) {
		col := sort[i].Column
		if i == len(sort)-1 {
			return fmt.Sprintf("%s %s ?", col, op), []any{keyVals[i]}
		}
		restClause, restArgs := build(i + 1)
		clause := fmt.Sprintf("(%s %s ?) OR (%s = ? AND (%s))", col, op, col, restClause)
		clauseArgs := append([]any{keyVals[i], keyVals[i]}, restArgs...)
		return clause, clauseArgs
	}

	return build(0)
}

func orderByClause(sort []SortKey, ascending bool) string {
	dir := "ASC"
	if !ascending {
		dir = "DESC"
	}
	cols := make([]string, len(sort))
	for i, s := range sort {
		cols[i] = s.Column + " " + dir
	}
	return strings.Join(cols, ", ")
}

func encodeRowCursor(sort []SortKey, row any) (Cursor, error) {
	keys := make([]any, len(sort))
	for i, s := range sort {
		keys[i] = s.Extract(row)
	}
	return EncodeCursor(keys...)
}

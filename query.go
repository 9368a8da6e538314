package ledgerd

import (
	"context"
	"database/sql"
)

// QueryPage exposes the keyset reader for a caller's own view tables: a
// user type supplies its ordered sort-key columns and gets paginated
// reads with exactly the semantics the event log itself uses. It is
// ReadPage under a name aimed at application code rather than the
// engine's own internals.
func QueryPage[T any](ctx context.Context, db *sql.DB, kq KeysetQuery, args Args, scan func(*sql.Rows) (T, error)) (ReadResult[T], error) {
	return ReadPage[T](ctx, db, kq, args, scan)
}

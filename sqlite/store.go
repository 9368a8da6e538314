package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/riftwell/ledgerd"
)

// Store implements ledgerd.EventStore and ledgerd.OffsetStore against a
// *sql.DB opened with modernc.org/sqlite. It mirrors the teacher's
// event_store.go shape: a small struct wrapping a pooled connection
// handle, every call taking a context, hand-built parameterized SQL.
type Store struct {
	db *sql.DB
}

// New pings db, runs Migrate, and returns a ready Store.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

var eventSort = []ledgerd.SortKey{
	{Column: "timestamp", Extract: func(r any) any { return r.(ledgerd.Event).Timestamp }},
	{Column: "version", Extract: func(r any) any { return r.(ledgerd.Event).Version }},
	{Column: "id", Extract: func(r any) any { return r.(ledgerd.Event).ID }},
}

const eventSelectCols = "SELECT id, name, aggregate_type, aggregate_id, version, data, metadata, routing_key, timestamp"

func scanEvent(rows *sql.Rows) (ledgerd.Event, error) {
	var e ledgerd.Event
	var metadata []byte
	if err := rows.Scan(&e.ID, &e.Name, &e.AggregateType, &e.AggregateID, &e.Version, &e.Data, &metadata, &e.RoutingKey, &e.Timestamp); err != nil {
		return ledgerd.Event{}, err
	}
	e.Metadata = metadata
	return e, nil
}

// Append writes events inside one transaction as a single multi-row
// INSERT; the UNIQUE(aggregate_type, aggregate_id, version) index is
// what turns a concurrent conflicting write into
// InvalidOriginalVersionError instead of silently corrupting the log.
func (s *Store) Append(ctx context.Context, events []ledgerd.Event) error {
	const op = "sqlite.Store.Append"

	if len(events) == 0 {
		return ledgerd.MissingDataErrorFor(op)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledgerd.BackendErrorFor(op, err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(events))
	args := make([]any, 0, len(events)*9)
	for i, e := range events {
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, e.ID, e.Name, e.AggregateType, e.AggregateID, e.Version, e.Data, e.Metadata, e.RoutingKey, e.Timestamp)
	}

	query := "INSERT INTO event (id, name, aggregate_type, aggregate_id, version, data, metadata, routing_key, timestamp) VALUES " +
		strings.Join(placeholders, ", ")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			expected := events[0].Version - 1
			actual := s.currentVersion(ctx, events[0].AggregateType, events[0].AggregateID)
			return ledgerd.InvalidOriginalVersionErrorFor(op, expected, actual)
		}
		return ledgerd.BackendErrorFor(op, err)
	}

	if err := tx.Commit(); err != nil {
		return ledgerd.BackendErrorFor(op, err)
	}
	return nil
}

// currentVersion best-efforts the aggregate's latest persisted version
// for InvalidOriginalVersionError.Actual; a failure here just means the
// error carries a zero Actual, which is not itself fatal to the caller.
func (s *Store) currentVersion(ctx context.Context, aggregateType, aggregateID string) uint16 {
	var v uint16
	row := s.db.QueryRowContext(ctx,
		"SELECT MAX(version) FROM event WHERE aggregate_type = ? AND aggregate_id = ?",
		aggregateType, aggregateID)
	_ = row.Scan(&v)
	return v
}

func isUniqueConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ReadPage reads one aggregate's events in (timestamp, version, id)
// keyset order.
func (s *Store) ReadPage(ctx context.Context, aggregateType, aggregateID string, args ledgerd.Args) (ledgerd.ReadResult[ledgerd.Event], error) {
	kq := ledgerd.KeysetQuery{
		SelectCols: eventSelectCols,
		From:       "event",
		Where:      "aggregate_type = ? AND aggregate_id = ?",
		Args:       []any{aggregateType, aggregateID},
		Sort:       eventSort,
	}
	return ledgerd.ReadPage[ledgerd.Event](ctx, s.db, kq, args, scanEvent)
}

// ReadLogPage reads across every aggregate, optionally filtered to one
// routing key, in the same (timestamp, version, id) order.
func (s *Store) ReadLogPage(ctx context.Context, routingKey string, args ledgerd.Args) (ledgerd.ReadResult[ledgerd.Event], error) {
	kq := ledgerd.KeysetQuery{
		SelectCols: eventSelectCols,
		From:       "event",
		Sort:       eventSort,
	}
	if routingKey != "" {
		kq.Where = "routing_key = ?"
		kq.Args = []any{routingKey}
	}
	return ledgerd.ReadPage[ledgerd.Event](ctx, s.db, kq, args, scanEvent)
}

// TailCursor returns the cursor of the most recently appended event.
func (s *Store) TailCursor(ctx context.Context) (ledgerd.Cursor, bool, error) {
	const op = "sqlite.Store.TailCursor"

	row := s.db.QueryRowContext(ctx,
		eventSelectCols+" FROM event ORDER BY timestamp DESC, version DESC, id DESC LIMIT 1")

	var e ledgerd.Event
	var metadata []byte
	err := row.Scan(&e.ID, &e.Name, &e.AggregateType, &e.AggregateID, &e.Version, &e.Data, &metadata, &e.RoutingKey, &e.Timestamp)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, ledgerd.BackendErrorFor(op, err)
	}

	c, err := ledgerd.EncodeCursor(e.Timestamp, e.Version, e.ID)
	if err != nil {
		return "", false, err
	}
	return c, true, nil
}

// GetEventByCursor recovers the single event a cursor points at.
func (s *Store) GetEventByCursor(ctx context.Context, c ledgerd.Cursor) (ledgerd.Event, error) {
	const op = "sqlite.Store.GetEventByCursor"

	var timestamp uint64
	var version uint16
	var id string
	if err := ledgerd.DecodeCursor(c, &timestamp, &version, &id); err != nil {
		return ledgerd.Event{}, err
	}

	row := s.db.QueryRowContext(ctx, eventSelectCols+" FROM event WHERE id = ?", id)

	var ev ledgerd.Event
	var metadata []byte
	scanErr := row.Scan(&ev.ID, &ev.Name, &ev.AggregateType, &ev.AggregateID, &ev.Version, &ev.Data, &metadata, &ev.RoutingKey, &ev.Timestamp)
	if scanErr == sql.ErrNoRows {
		return ledgerd.Event{}, ledgerd.NotFoundErrorFor(op, "", id)
	}
	if scanErr != nil {
		return ledgerd.Event{}, ledgerd.BackendErrorFor(op, scanErr)
	}
	ev.Metadata = metadata
	return ev, nil
}

// GetSnapshot returns the snapshot for (aggregateType, aggregateID) only
// if its stored revision matches revision.
func (s *Store) GetSnapshot(ctx context.Context, aggregateType, aggregateID, revision string) ([]byte, ledgerd.Cursor, bool, error) {
	const op = "sqlite.Store.GetSnapshot"

	row := s.db.QueryRowContext(ctx,
		"SELECT cursor, revision, data FROM snapshot WHERE aggregate_type = ? AND aggregate_id = ?",
		aggregateType, aggregateID)

	var cursor, storedRevision string
	var data []byte
	err := row.Scan(&cursor, &storedRevision, &data)
	if err == sql.ErrNoRows {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, ledgerd.BackendErrorFor(op, err)
	}
	if storedRevision != revision {
		return nil, "", false, nil
	}
	return data, ledgerd.Cursor(cursor), true, nil
}

// PutSnapshot upserts by (AggregateType, AggregateID).
func (s *Store) PutSnapshot(ctx context.Context, snap ledgerd.Snapshot) error {
	const op = "sqlite.Store.PutSnapshot"

	now := uint64(time.Now().Unix())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshot (aggregate_type, aggregate_id, cursor, revision, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (aggregate_type, aggregate_id) DO UPDATE SET
			cursor = excluded.cursor,
			revision = excluded.revision,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		snap.AggregateType, snap.AggregateID, string(snap.Cursor), snap.Revision, snap.Data, now, now)
	if err != nil {
		return ledgerd.BackendErrorFor(op, err)
	}
	return nil
}

// GetOffset implements ledgerd.OffsetStore.
func (s *Store) GetOffset(ctx context.Context, subscriptionName, routingKey string) (ledgerd.Cursor, bool, error) {
	const op = "sqlite.Store.GetOffset"

	row := s.db.QueryRowContext(ctx,
		"SELECT cursor FROM subscription_offset WHERE subscription_name = ? AND routing_key = ?",
		subscriptionName, routingKey)

	var cursor string
	err := row.Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, ledgerd.BackendErrorFor(op, err)
	}
	return ledgerd.Cursor(cursor), true, nil
}

// PutOffset implements ledgerd.OffsetStore.
func (s *Store) PutOffset(ctx context.Context, o ledgerd.SubscriptionOffset) error {
	const op = "sqlite.Store.PutOffset"

	now := uint64(time.Now().Unix())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_offset (subscription_name, routing_key, cursor, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subscription_name, routing_key) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = excluded.updated_at`,
		o.SubscriptionName, o.RoutingKey, string(o.Cursor), now)
	if err != nil {
		return ledgerd.BackendErrorFor(op, err)
	}
	return nil
}

var (
	_ ledgerd.EventStore  = (*Store)(nil)
	_ ledgerd.OffsetStore = (*Store)(nil)
)

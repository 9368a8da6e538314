package ledgerd

import "context"

// EventStore is the engine's append-only log plus snapshot side table.
// sqlite.Store is the reference implementation; any backend satisfying
// this interface can host the loader, save builder, and subscription
// runtime unchanged.
type EventStore interface {
	// Append writes events atomically: on success every row is visible, on
	// any failure none is. All entries must share AggregateType and
	// AggregateID, and carry dense, contiguous versions starting one past
	// the last persisted version for that aggregate.
	Append(ctx context.Context, events []Event) error

	// ReadPage returns a keyset page of one aggregate's events ordered by
	// (timestamp, version, id).
	ReadPage(ctx context.Context, aggregateType, aggregateID string, args Args) (ReadResult[Event], error)

	// GetEventByCursor recovers the single event a cursor points at, used
	// by the loader to resolve the anchor event of an up-to-date snapshot.
	GetEventByCursor(ctx context.Context, c Cursor) (Event, error)

	// ReadLogPage returns a keyset page across every aggregate, ordered by
	// (timestamp, version, id) and optionally filtered to one routing key.
	// The subscription runtime is the only caller: its delivery loop scans
	// the whole log rather than one aggregate's stream.
	ReadLogPage(ctx context.Context, routingKey string, args Args) (ReadResult[Event], error)

	// TailCursor returns the cursor of the most recently appended event in
	// the whole log, used to seed a Live subscription's starting offset.
	// found is false for an empty log.
	TailCursor(ctx context.Context) (cursor Cursor, found bool, err error)

	// GetSnapshot returns the snapshot for (aggregateType, aggregateID)
	// only if its stored revision matches revision; found is false if
	// there is no snapshot row or its revision is stale.
	GetSnapshot(ctx context.Context, aggregateType, aggregateID, revision string) (data []byte, cursor Cursor, found bool, err error)

	// PutSnapshot upserts by (AggregateType, AggregateID), bumping UpdatedAt
	// on conflict.
	PutSnapshot(ctx context.Context, s Snapshot) error
}

// validateAppend checks the preconditions append() promises before
// touching the backend: non-empty batch, single aggregate, dense
// contiguous versions.
func validateAppend(op string, events []Event) error {
	if len(events) == 0 {
		return newMissingData(op)
	}

	aggregateType := events[0].AggregateType
	aggregateID := events[0].AggregateID

	for i, e := range events {
		if e.AggregateType != aggregateType || e.AggregateID != aggregateID {
			return newBackend(op, errMixedAggregate(aggregateType, aggregateID, e))
		}
		if i > 0 && e.Version != events[i-1].Version+1 {
			return newBackend(op, errNonContiguousVersion(events[i-1].Version, e.Version))
		}
	}

	return nil
}

type mixedAggregateError struct {
	wantType, wantID string
	got              Event
}

func (e mixedAggregateError) Error() string {
	return "event batch must share one aggregate: want " + e.wantType + "/" + e.wantID +
		", got " + e.got.AggregateType + "/" + e.got.AggregateID
}

func errMixedAggregate(wantType, wantID string, got Event) error {
	return mixedAggregateError{wantType: wantType, wantID: wantID, got: got}
}

type nonContiguousVersionError struct {
	prev, next uint16
}

func (e nonContiguousVersionError) Error() string {
	return "event batch versions must be contiguous"
}

func errNonContiguousVersion(prev, next uint16) error {
	return nonContiguousVersionError{prev: prev, next: next}
}

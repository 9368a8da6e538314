package ledgerd

import (
	"context"
	"time"
)

// maxLoadIterations bounds the page loop in Load; exceeding it fails with
// TooManyEventsError rather than risk an unbounded, runaway read.
const maxLoadIterations = 10

// loadPageSize is the forward page size Load reads per iteration.
const loadPageSize = 1000

// LoadOption configures a single Load call, chiefly for tests that don't
// want to wait out the real pacing delay between page-loop iterations.
type LoadOption func(*loadConfig)

type loadConfig struct {
	pace func(ctx context.Context) error
}

func defaultPace(ctx context.Context) error {
	t := time.NewTimer(time.Second)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithLoadPacer overrides the ≥1s cooperative pacing tick Load waits
// between page-loop iterations. Tests typically pass a no-op pacer.
func WithLoadPacer(pace func(ctx context.Context) error) LoadOption {
	return func(c *loadConfig) { c.pace = pace }
}

// Load reconstructs an aggregate from its latest matching snapshot plus
// replay of every event since. newA must return a fresh, zero-valued
// aggregate each call, typically a pointer type so Fold and snapshot
// deserialization can mutate it in place; Load never shares an aggregate
// instance across calls or goroutines.
func Load[A interface {
	Aggregator
	Folder
}](ctx context.Context, store EventStore, aggregateType, aggregateID string, newA func() A, opts ...LoadOption) (A, Event, error) {
	const op = "Load"

	cfg := loadConfig{pace: defaultPace}
	for _, o := range opts {
		o(&cfg)
	}

	agg := newA()
	var cursor *Cursor

	data, snapCursor, found, err := store.GetSnapshot(ctx, aggregateType, aggregateID, agg.Revision())
	if err != nil {
		var zero A
		return zero, Event{}, err
	}
	if found {
		if err := unmarshalSnapshotBody(data, agg); err != nil {
			var zero A
			return zero, Event{}, err
		}
		c := snapCursor
		cursor = &c
	}

	var lastEvent Event
	haveLastEvent := false

	for i := 0; i < maxLoadIterations; i++ {
		first := uint16(loadPageSize)
		page, err := store.ReadPage(ctx, aggregateType, aggregateID, Args{First: &first, After: cursor})
		if err != nil {
			var zero A
			return zero, Event{}, err
		}

		if len(page.Edges) == 0 {
			if cursor != nil {
				anchor, err := store.GetEventByCursor(ctx, *cursor)
				if err != nil {
					var zero A
					return zero, Event{}, err
				}
				return agg, anchor, nil
			}
			if haveLastEvent {
				return agg, lastEvent, nil
			}
			var zero A
			return zero, Event{}, newNotFound(op, aggregateType, aggregateID)
		}

		for _, edge := range page.Edges {
			if err := agg.Fold(edge.Node); err != nil {
				var zero A
				return zero, Event{}, newFoldFailed(op, edge.Node.Name, err)
			}
			lastEvent = edge.Node
			haveLastEvent = true
		}

		cursor = page.PageInfo.EndCursor

		body, err := marshalSnapshotBody(agg)
		if err != nil {
			var zero A
			return zero, Event{}, err
		}
		snap := Snapshot{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Cursor:        *cursor,
			Revision:      agg.Revision(),
			Data:          body,
		}
		if err := store.PutSnapshot(ctx, snap); err != nil {
			var zero A
			return zero, Event{}, err
		}

		if !page.PageInfo.HasNextPage {
			return agg, lastEvent, nil
		}

		if err := cfg.pace(ctx); err != nil {
			var zero A
			return zero, Event{}, err
		}
	}

	var zero A
	return zero, Event{}, newTooManyEvents(op, maxLoadIterations)
}

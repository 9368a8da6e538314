// Package ledgerd is an embedded event-sourcing engine: an append-only
// event log, aggregate reconstruction from snapshots plus replay, opaque
// keyset pagination, and a subscription runtime for projections and sagas.
package ledgerd

// DefaultRoutingKey is assigned to an aggregate's first event when the
// caller never sets one explicitly.
const DefaultRoutingKey = "default"

// Event is an immutable fact appended to an aggregate's stream.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	Version       uint16
	Name          string
	RoutingKey    string
	Data          []byte
	Metadata      []byte
	Timestamp     uint64
}

// Snapshot is a serialized aggregate body plus the cursor of the last
// folded event, used to bound aggregate-load cost.
type Snapshot struct {
	AggregateType string
	AggregateID   string
	Cursor        Cursor
	Revision      string
	Data          []byte
	CreatedAt     uint64
	UpdatedAt     uint64
}

// SubscriptionOffset is the last-acknowledged cursor for one
// (subscription name, routing key) pair.
type SubscriptionOffset struct {
	SubscriptionName string
	RoutingKey       string
	Cursor           Cursor
	UpdatedAt        uint64
}

// Aggregator is the stable on-disk identity of an aggregate type: its
// name (used as aggregate_type) and its fold revision (used to invalidate
// snapshots when fold semantics change).
type Aggregator interface {
	Name() string
	Revision() string
}

// Folder applies a single event to an aggregate body. It must be pure: no
// I/O, no suspension.
type Folder interface {
	Fold(e Event) error
}

// EventKind is implemented by typed event payload structs to expose their
// stable on-disk event name. Save.Data and DeriveFold take event names as
// plain strings and do not consult this interface.
type EventKind interface {
	EventName() string
}

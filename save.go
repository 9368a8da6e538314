package ledgerd

import (
	"context"
	"time"
)

type pendingEvent struct {
	name string
	data []byte
}

// Save is a fluent accumulator for a batch of events against one
// aggregate. Method chaining mirrors the teacher's constructor idiom
// (constructors.go's NewInputEvent/NewTag-style builders) generalized to
// a save-then-commit shape.
type Save[A interface {
	Aggregator
	Folder
}] struct {
	aggregateType   string
	newA            func() A
	aggregateID     string
	originalVersion uint16
	routingKeySet   bool
	routingKey      string
	metadataSet     bool
	metadata        []byte
	events          []pendingEvent
	idGen           IDGenerator
	clock           interface{ NowSeconds() uint64 }
}

// NewSave starts a save against an aggregate of aggregateType. The target
// is a brand-new aggregate (its ID minted via idGen on Commit) unless
// ForAggregate pins an existing one.
func NewSave[A interface {
	Aggregator
	Folder
}](aggregateType string, newA func() A) *Save[A] {
	return &Save[A]{
		aggregateType: aggregateType,
		newA:          newA,
		idGen:         NewIDGenerator(),
		clock:         realSaveClock{},
	}
}

type realSaveClock struct{}

func (realSaveClock) NowSeconds() uint64 { return uint64(time.Now().Unix()) }

// ForAggregate pins the target aggregate ID. Omit it to mint a new one on
// Commit.
func (s *Save[A]) ForAggregate(id string) *Save[A] {
	s.aggregateID = id
	return s
}

// OriginalVersion sets the version the caller observed when it loaded the
// aggregate; required for a write against an existing aggregate. Default
// is 0, appropriate for a brand-new aggregate.
func (s *Save[A]) OriginalVersion(v uint16) *Save[A] {
	s.originalVersion = v
	return s
}

// RoutingKey sets the batch's routing key. Idempotent after the first
// call: subsequent calls are a no-op, matching the "first write wins"
// rule — an existing aggregate's routing key is inherited regardless of
// what's passed here.
func (s *Save[A]) RoutingKey(k string) *Save[A] {
	if !s.routingKeySet {
		s.routingKey = k
		s.routingKeySet = true
	}
	return s
}

// Metadata sets the batch's shared metadata, serialized once and cloned
// per event. Required before Commit.
func (s *Save[A]) Metadata(m []byte) *Save[A] {
	s.metadata = m
	s.metadataSet = true
	return s
}

// Data appends one typed event payload to the batch, in insertion order.
func (s *Save[A]) Data(name string, payload []byte) *Save[A] {
	s.events = append(s.events, pendingEvent{name: name, data: payload})
	return s
}

// Commit takes one shared timestamp, assigns dense versions, folds every
// event into a clone of the starting aggregator (aborting with
// FoldFailed and writing nothing on the first failure), appends the batch,
// upserts a snapshot from the last event's cursor, and returns the
// aggregate ID.
func (s *Save[A]) Commit(ctx context.Context, store EventStore) (string, error) {
	const op = "Save.Commit"

	if len(s.events) == 0 {
		return "", newMissingData(op)
	}
	if !s.metadataSet {
		return "", newMissingMetadata(op)
	}

	aggregateID := s.aggregateID
	if aggregateID == "" {
		aggregateID = s.idGen.NewID()
	}

	routingKey := s.routingKey
	if !s.routingKeySet {
		routingKey = DefaultRoutingKey
	}

	// An existing aggregate already has a persisted routing key; that key
	// is inherited and the builder's own choice, default or explicit, is
	// ignored. Only a brand-new aggregate's first write establishes one.
	if s.originalVersion > 0 && aggregateID != "" {
		one := uint16(1)
		first, err := store.ReadPage(ctx, s.aggregateType, aggregateID, Args{First: &one})
		if err != nil {
			return "", err
		}
		if len(first.Edges) > 0 {
			routingKey = first.Edges[0].Node.RoutingKey
		}
	}

	timestamp := s.clock.NowSeconds()

	agg := s.newA()
	if s.originalVersion > 0 {
		loaded, _, err := Load(ctx, store, s.aggregateType, aggregateID, s.newA)
		if err != nil {
			return "", err
		}
		agg = loaded
	}
	events := make([]Event, len(s.events))
	for i, pe := range s.events {
		nextVersion := uint32(s.originalVersion) + uint32(i) + 1
		if nextVersion > uint32(^uint16(0)) {
			return "", newVersionOverflow(op, s.aggregateType, aggregateID)
		}
		version := uint16(nextVersion)
		e := Event{
			ID:            s.idGen.NewID(),
			AggregateType: s.aggregateType,
			AggregateID:   aggregateID,
			Version:       version,
			Name:          pe.name,
			RoutingKey:    routingKey,
			Data:          pe.data,
			Metadata:      s.metadata,
			Timestamp:     timestamp,
		}
		if err := agg.Fold(e); err != nil {
			return "", newFoldFailed(op, e.Name, err)
		}
		events[i] = e
	}

	if err := store.Append(ctx, events); err != nil {
		return "", err
	}

	lastEvent := events[len(events)-1]
	cursor, err := EncodeCursor(lastEvent.Timestamp, lastEvent.Version, lastEvent.ID)
	if err != nil {
		return "", err
	}

	body, err := marshalSnapshotBody(agg)
	if err != nil {
		return "", err
	}

	snap := Snapshot{
		AggregateType: s.aggregateType,
		AggregateID:   aggregateID,
		Cursor:        cursor,
		Revision:      agg.Revision(),
		Data:          body,
	}
	if err := store.PutSnapshot(ctx, snap); err != nil {
		return "", err
	}

	return aggregateID, nil
}

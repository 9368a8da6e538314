package ledgerd

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Mode selects a subscription's offset-advance and starting-position
// semantics.
type Mode int

const (
	// ModePersistent requires an explicit Acknowledge; the offset only
	// advances for acknowledged events. Redeliveries are possible between
	// a crash and the next ack.
	ModePersistent Mode = iota
	// ModeNormal advances the offset automatically after a successful
	// handler call.
	ModeNormal
	// ModeLive starts at the log's current tail; historical events are
	// skipped.
	ModeLive
)

// Handler matches events by (AggregatorType, EventName) in registration
// order; the first match on a given event is invoked. EventName == ""
// matches any event name for that aggregator type — the "explicit Skip
// handler" the delivery loop uses for forward-compatible no-ops.
type Handler struct {
	AggregatorType string
	EventName      string
	Handle         func(ctx context.Context, e Event) error
}

func (h Handler) matches(e Event) bool {
	if h.AggregatorType != e.AggregateType {
		return false
	}
	return h.EventName == "" || h.EventName == e.Name
}

// OffsetStore persists per-(subscription, routing key) progress so a
// Persistent or Normal subscription resumes where it left off across
// restarts.
type OffsetStore interface {
	GetOffset(ctx context.Context, subscriptionName, routingKey string) (Cursor, bool, error)
	PutOffset(ctx context.Context, o SubscriptionOffset) error
}

const defaultSubscriptionDelay = time.Second

// Subscription is a fluent, named consumer of the event log. Method
// chaining generalizes the teacher's builder idiom (constructors.go) to a
// registration-then-start shape.
type Subscription struct {
	key        string
	routingKey string
	mode       Mode
	delay      time.Duration
	handlers   []Handler
	logger     zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
	offsets OffsetStore

	// pendingAck is the cursor of the last event handed to a Persistent
	// subscription's handler but not yet Acknowledge'd. While set, the
	// delivery loop holds off on reading or delivering anything past it.
	// Only Start's own goroutine touches this field.
	pendingAck *Cursor
}

// NewSubscription names a subscription. The name is the durable identity
// used to key its stored offset.
func NewSubscription(key string) *Subscription {
	return &Subscription{
		key:    key,
		delay:  defaultSubscriptionDelay,
		logger: zerolog.Nop(),
	}
}

// RoutingKey restricts delivery to events carrying this routing key. The
// zero value means "all routing keys".
func (s *Subscription) RoutingKey(k string) *Subscription {
	s.routingKey = k
	return s
}

// Mode sets the subscription's offset/start semantics. Default is
// ModePersistent.
func (s *Subscription) Mode(m Mode) *Subscription {
	s.mode = m
	return s
}

// Delay overrides the poll tick between reads of the log. Default ≈ 1s.
func (s *Subscription) Delay(d time.Duration) *Subscription {
	s.delay = d
	return s
}

// On registers a handler. Handlers are evaluated in registration order.
func (s *Subscription) On(h Handler) *Subscription {
	s.handlers = append(s.handlers, h)
	return s
}

// Logger attaches a structured logger for handler failures. Defaults to
// zerolog.Nop(), so a caller that never sets one gets silent operation.
func (s *Subscription) Logger(l zerolog.Logger) *Subscription {
	s.logger = l
	return s
}

func (s *Subscription) firstMatch(e Event) (Handler, bool) {
	for _, h := range s.handlers {
		if h.matches(e) {
			return h, true
		}
	}
	return Handler{}, false
}

// Start runs the delivery loop until ctx is cancelled or Stop is called.
// It blocks; callers typically run it in its own goroutine, or let a
// Runtime (see Runtime.Add) own that goroutine under errgroup supervision.
func (s *Subscription) Start(ctx context.Context, store EventStore, offsets OffsetStore) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.offsets = offsets
	s.mu.Unlock()
	defer close(s.stopped)

	cursor, err := s.resolveStartCursor(ctx, store, offsets)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if s.mode == ModePersistent && s.pendingAck != nil {
			stored, found, err := offsets.GetOffset(ctx, s.key, s.routingKey)
			if err != nil {
				s.logger.Warn().Str("subscription", s.key).Err(err).Msg("subscription offset read failed")
				continue
			}
			if !found || stored != *s.pendingAck {
				// Still waiting for Acknowledge(e1); don't deliver e2, e3, ...
				continue
			}
			cursor = s.pendingAck
			s.pendingAck = nil
		}

		first := uint16(1000)
		page, err := store.ReadLogPage(ctx, s.routingKey, Args{First: &first, After: cursor})
		if err != nil {
			s.logger.Warn().Str("subscription", s.key).Err(err).Msg("subscription read failed")
			continue
		}

		failed := false
		for _, edge := range page.Edges {
			if err := s.deliver(ctx, edge.Node); err != nil {
				s.logger.Warn().
					Str("subscription", s.key).
					Str("event_id", edge.Node.ID).
					Err(err).
					Msg("subscription handler failed")
				// Stop processing this page; retry the same page, starting
				// from the last successfully advanced cursor, next tick.
				failed = true
				break
			}

			if s.mode == ModePersistent {
				c := edge.Cursor
				s.pendingAck = &c
				// Hold the page here until Acknowledge moves the stored
				// offset past this event.
				break
			}

			if err := s.advance(ctx, offsets, edge.Cursor); err != nil {
				return err
			}
			cursor = &edge.Cursor
		}

		// The in-loop read cursor advances past a full page once delivered;
		// a Persistent subscription instead stops at pendingAck above and
		// only resumes once Acknowledge has moved the stored offset.
		if s.mode != ModePersistent && !failed && page.PageInfo.EndCursor != nil {
			cursor = page.PageInfo.EndCursor
		}
	}
}

func (s *Subscription) deliver(ctx context.Context, e Event) error {
	h, ok := s.firstMatch(e)
	if !ok {
		return nil
	}
	return h.Handle(ctx, e)
}

func (s *Subscription) resolveStartCursor(ctx context.Context, store EventStore, offsets OffsetStore) (*Cursor, error) {
	if s.mode == ModeLive {
		tail, found, err := store.TailCursor(ctx)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return &tail, nil
	}

	c, found, err := offsets.GetOffset(ctx, s.key, s.routingKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

func (s *Subscription) advance(ctx context.Context, offsets OffsetStore, c Cursor) error {
	return offsets.PutOffset(ctx, SubscriptionOffset{
		SubscriptionName: s.key,
		RoutingKey:       s.routingKey,
		Cursor:           c,
	})
}

// Acknowledge advances a Persistent subscription's stored offset past e.
// It is a no-op signal for Normal/Live subscriptions, which already
// auto-advance; callers may still call it unconditionally. Must be called
// after Start, which is when the subscription learns its OffsetStore.
func (s *Subscription) Acknowledge(ctx context.Context, e Event) error {
	if s.mode != ModePersistent {
		return nil
	}

	s.mu.Lock()
	offsets := s.offsets
	s.mu.Unlock()
	if offsets == nil {
		return newBackend("Acknowledge", errNotStarted(s.key))
	}

	cursor, err := EncodeCursor(e.Timestamp, e.Version, e.ID)
	if err != nil {
		return err
	}
	return s.advance(ctx, offsets, cursor)
}

type notStartedError struct{ key string }

func (e notStartedError) Error() string { return "subscription " + e.key + " has not been started" }

func errNotStarted(key string) error { return notStartedError{key: key} }

// Stop cancels the subscription's delivery loop and waits for Start to
// return.
func (s *Subscription) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if stopped != nil {
		<-stopped
	}
}

// Runtime supervises a set of subscriptions, each running its delivery
// loop on its own goroutine under one errgroup.Group — the teacher's
// goroutine-plus-channel streaming idiom (streaming_channel.go)
// generalized from a one-shot stream to a set of long-lived tick loops.
type Runtime struct {
	store   EventStore
	offsets OffsetStore
	group   *errgroup.Group
	ctx     context.Context
	subs    []*Subscription
}

// NewRuntime creates a Runtime bound to one event store and offset store.
func NewRuntime(ctx context.Context, store EventStore, offsets OffsetStore) *Runtime {
	group, gctx := errgroup.WithContext(ctx)
	return &Runtime{store: store, offsets: offsets, group: group, ctx: gctx}
}

// Add starts sub's delivery loop under the runtime's supervision.
func (r *Runtime) Add(sub *Subscription) {
	r.subs = append(r.subs, sub)
	r.group.Go(func() error {
		return sub.Start(r.ctx, r.store, r.offsets)
	})
}

// Wait blocks until every subscription's loop returns, propagating the
// first non-nil error and cancelling the shared context on first failure.
func (r *Runtime) Wait() error {
	return r.group.Wait()
}

// Stop stops every subscription the runtime is supervising.
func (r *Runtime) Stop() {
	for _, s := range r.subs {
		s.Stop()
	}
}

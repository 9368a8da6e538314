package ledgerd

import (
	"errors"
	"fmt"
)

// EngineError is the base error type every engine-surfaced error embeds.
// It carries the failing operation name and the underlying cause, the way
// the teacher's EventStoreError carries Op/Err.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *EngineError) Unwrap() error { return e.Err }

type (
	// MalformedCursorError is returned when a cursor fails to base64- or
	// CBOR-decode, or doesn't match the expected sort-key arity.
	MalformedCursorError struct {
		EngineError
	}

	// NotFoundError is returned when an aggregate has no snapshot and no
	// events, or a cursor anchor can't be resolved.
	NotFoundError struct {
		EngineError
		AggregateType string
		AggregateID   string
	}

	// TooManyEventsError is returned when the aggregate loader exceeds its
	// page-iteration cap without reaching the end of the stream.
	TooManyEventsError struct {
		EngineError
		Iterations int
	}

	// InvalidOriginalVersionError is the canonical optimistic-concurrency
	// signal: another writer advanced the aggregate since the caller loaded
	// it.
	InvalidOriginalVersionError struct {
		EngineError
		Expected uint16
		Actual   uint16
	}

	// MissingDataError is returned when an append or save is attempted with
	// zero events.
	MissingDataError struct {
		EngineError
	}

	// MissingMetadataError is returned when a save is committed without
	// metadata having been set.
	MissingMetadataError struct {
		EngineError
	}

	// SerializeError wraps a failure to encode an event, snapshot, or
	// cursor payload.
	SerializeError struct {
		EngineError
	}

	// DeserializeError wraps a failure to decode a persisted event,
	// snapshot, or cursor payload.
	DeserializeError struct {
		EngineError
	}

	// BackendError wraps a failure from the underlying SQL store.
	BackendError struct {
		EngineError
	}

	// FoldFailedError is returned when an event fails to fold into an
	// aggregate during save; nothing is written when this occurs.
	FoldFailedError struct {
		EngineError
		EventName string
	}

	// VersionOverflowError is returned when assigning dense versions to a
	// save batch would carry an aggregate's version past uint16's range.
	// It terminates the Commit outright; nothing is written, and retrying
	// the same batch against the same aggregate can never succeed.
	VersionOverflowError struct {
		EngineError
		AggregateType string
		AggregateID   string
	}
)

func newMalformedCursor(op string, err error) *MalformedCursorError {
	return &MalformedCursorError{EngineError{Op: op, Err: err}}
}

func newNotFound(op, aggregateType, aggregateID string) *NotFoundError {
	return &NotFoundError{
		EngineError:   EngineError{Op: op, Err: fmt.Errorf("aggregate %s/%s not found", aggregateType, aggregateID)},
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
	}
}

func newTooManyEvents(op string, iterations int) *TooManyEventsError {
	return &TooManyEventsError{
		EngineError: EngineError{Op: op, Err: fmt.Errorf("exceeded %d loader iterations", iterations)},
		Iterations:  iterations,
	}
}

func newInvalidOriginalVersion(op string, expected, actual uint16) *InvalidOriginalVersionError {
	return &InvalidOriginalVersionError{
		EngineError: EngineError{Op: op, Err: fmt.Errorf("original version mismatch: expected %d, actual %d", expected, actual)},
		Expected:    expected,
		Actual:      actual,
	}
}

func newMissingData(op string) *MissingDataError {
	return &MissingDataError{EngineError{Op: op, Err: errors.New("no events supplied")}}
}

func newMissingMetadata(op string) *MissingMetadataError {
	return &MissingMetadataError{EngineError{Op: op, Err: errors.New("metadata not set")}}
}

func newSerialize(op string, err error) *SerializeError {
	return &SerializeError{EngineError{Op: op, Err: err}}
}

func newDeserialize(op string, err error) *DeserializeError {
	return &DeserializeError{EngineError{Op: op, Err: err}}
}

func newBackend(op string, err error) *BackendError {
	return &BackendError{EngineError{Op: op, Err: err}}
}

func newFoldFailed(op, eventName string, err error) *FoldFailedError {
	return &FoldFailedError{
		EngineError: EngineError{Op: op, Err: err},
		EventName:   eventName,
	}
}

func newVersionOverflow(op, aggregateType, aggregateID string) *VersionOverflowError {
	return &VersionOverflowError{
		EngineError:   EngineError{Op: op, Err: fmt.Errorf("aggregate %s/%s: version would exceed %d", aggregateType, aggregateID, ^uint16(0))},
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
	}
}

// MissingDataErrorFor lets a backend implementation construct the
// engine's MissingDataError for an empty append batch.
func MissingDataErrorFor(op string) *MissingDataError { return newMissingData(op) }

// BackendErrorFor wraps a backend-specific failure (a driver error, a
// transaction failure) as the engine's BackendError.
func BackendErrorFor(op string, err error) *BackendError { return newBackend(op, err) }

// InvalidOriginalVersionErrorFor lets a backend implementation surface a
// unique-constraint violation as the engine's optimistic-concurrency
// signal.
func InvalidOriginalVersionErrorFor(op string, expected, actual uint16) *InvalidOriginalVersionError {
	return newInvalidOriginalVersion(op, expected, actual)
}

// NotFoundErrorFor lets a backend implementation report a missing
// aggregate or unresolvable cursor anchor.
func NotFoundErrorFor(op, aggregateType, aggregateID string) *NotFoundError {
	return newNotFound(op, aggregateType, aggregateID)
}

// IsMalformedCursor reports whether err is a MalformedCursorError.
func IsMalformedCursor(err error) bool {
	var target *MalformedCursorError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsTooManyEvents reports whether err is a TooManyEventsError.
func IsTooManyEvents(err error) bool {
	var target *TooManyEventsError
	return errors.As(err, &target)
}

// IsInvalidOriginalVersion reports whether err is an InvalidOriginalVersionError.
func IsInvalidOriginalVersion(err error) bool {
	var target *InvalidOriginalVersionError
	return errors.As(err, &target)
}

// IsFoldFailed reports whether err is a FoldFailedError.
func IsFoldFailed(err error) bool {
	var target *FoldFailedError
	return errors.As(err, &target)
}

// IsVersionOverflow reports whether err is a VersionOverflowError.
func IsVersionOverflow(err error) bool {
	var target *VersionOverflowError
	return errors.As(err, &target)
}

// AsInvalidOriginalVersion extracts an InvalidOriginalVersionError from the
// error chain, the way a caller distinguishes "retry after reload" from
// every other failure mode.
func AsInvalidOriginalVersion(err error) (*InvalidOriginalVersionError, bool) {
	var target *InvalidOriginalVersionError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

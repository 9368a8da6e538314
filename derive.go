package ledgerd

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"sort"
	"strings"
)

// revisionHashLen is how many hex characters of the sha256 digest
// DeriveRevision keeps; short enough to be a legible string column, long
// enough that accidental collisions between unrelated handler sets are
// not a practical concern.
const revisionHashLen = 16

// DeriveName reflects the stable on-disk aggregate_type name for a user
// aggregate type from its Go type name, the way a code generator would
// emit a name() constant without requiring one to actually be written by
// hand. A is expected to be the pointer type implementing Aggregator.
func DeriveName[A any]() string {
	var zero A
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// DeriveRevision hashes the sorted set of handler method names into a
// stable revision string. Hashing the sorted set (not the registration
// order) means reordering handler registration never changes the
// revision, but adding, removing, or renaming a handler does — which
// invalidates stale snapshots exactly as intended.
func DeriveRevision(handlerNames []string) string {
	sorted := append([]string(nil), handlerNames...)
	sort.Strings(sorted)

	h := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(h[:])[:revisionHashLen]
}

// DeriveFold builds a Folder.Fold implementation from a table of typed,
// per-event-name handlers, each responsible for deserializing its own
// payload. It dispatches by event.Name; an event whose name has no entry
// in table is ignored, not an error, so an aggregate can tolerate event
// kinds added later by a newer writer.
func DeriveFold[A any](table map[string]func(a *A, data []byte) error) func(a *A, e Event) error {
	return func(a *A, e Event) error {
		h, ok := table[e.Name]
		if !ok {
			return nil
		}
		return h(a, e.Data)
	}
}

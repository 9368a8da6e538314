package ledgerd

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Cursor is an opaque, URL-safe encoding of a sort-key tuple. It is
// comparable only by this codec; callers must treat it as an inert token
// and pass it back unchanged.
type Cursor string

// EncodeCursor serializes a sort-key tuple into an opaque Cursor: CBOR
// array, then unpadded URL-safe base64. The codec never embeds a schema
// version — changes to a key set invalidate outstanding cursors.
func EncodeCursor(keys ...any) (Cursor, error) {
	payload := make([]any, len(keys))
	copy(payload, keys)

	raw, err := cbor.Marshal(payload)
	if err != nil {
		return "", newSerialize("EncodeCursor", err)
	}

	return Cursor(base64.RawURLEncoding.EncodeToString(raw)), nil
}

// DecodeCursor is the inverse of EncodeCursor. out must be pointers to the
// same number and order of values the cursor was encoded with; a mismatch
// in either base64, CBOR structure, or arity fails with
// MalformedCursorError.
func DecodeCursor(c Cursor, out ...any) error {
	raw, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return newMalformedCursor("DecodeCursor", err)
	}

	var payload []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &payload); err != nil {
		return newMalformedCursor("DecodeCursor", err)
	}

	if len(payload) != len(out) {
		return newMalformedCursor("DecodeCursor", errCursorArity(len(payload), len(out)))
	}

	for i, dst := range out {
		if err := cbor.Unmarshal(payload[i], dst); err != nil {
			return newMalformedCursor("DecodeCursor", err)
		}
	}

	return nil
}

type cursorArityError struct {
	got, want int
}

func (e cursorArityError) Error() string {
	return fmt.Sprintf("cursor has %d components, expected %d", e.got, e.want)
}

func errCursorArity(got, want int) error {
	return cursorArityError{got: got, want: want}
}

package ledgerd

import "github.com/fxamacker/cbor/v2"

// marshalSnapshotBody encodes an aggregate's in-memory state for the
// snapshot side table. CBOR is used uniformly for this and for event
// payload bodies throughout the engine.
func marshalSnapshotBody(agg any) ([]byte, error) {
	body, err := cbor.Marshal(agg)
	if err != nil {
		return nil, newSerialize("marshalSnapshotBody", err)
	}
	return body, nil
}

// unmarshalSnapshotBody decodes a snapshot body into agg, which must be a
// pointer.
func unmarshalSnapshotBody(data []byte, agg any) error {
	if err := cbor.Unmarshal(data, agg); err != nil {
		return newDeserialize("unmarshalSnapshotBody", err)
	}
	return nil
}

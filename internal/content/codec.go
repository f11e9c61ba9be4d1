package content

import "github.com/fxamacker/cbor/v2"

// Encode and Decode turn items and leaderboards into cache payloads.
func Encode(v any) ([]byte, error) { return cbor.Marshal(v) }

func Decode(b []byte, v any) error { return cbor.Unmarshal(b, v) }

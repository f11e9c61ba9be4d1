package storage

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// DefaultCompressThreshold is the encoded size above which values are compressed.
const DefaultCompressThreshold = 1024

// Value frame prefixes.
const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01
)

var ErrCorruptValue = errors.New("storage: corrupt value")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// Encoder and decoder are safe for concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

// Codec turns typed records into framed bytes: one prefix byte, then CBOR,
// optionally zstd-compressed.
type Codec struct {
	threshold int
}

func NewCodec(threshold int) *Codec {
	if threshold == 0 {
		threshold = DefaultCompressThreshold
	}
	return &Codec{threshold: threshold}
}

func (c *Codec) Encode(v any) ([]byte, error) {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: encode: %w", err)
	}
	if c != nil && c.threshold > 0 && len(raw) > c.threshold {
		compressed := zstdEncoder.EncodeAll(raw, make([]byte, 1, len(raw)/2+1))
		if len(compressed)-1 < len(raw) {
			compressed[0] = frameZstd
			return compressed, nil
		}
	}
	out := make([]byte, 0, len(raw)+1)
	out = append(out, frameRaw)
	return append(out, raw...), nil
}

func (c *Codec) Decode(b []byte, v any) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty frame", ErrCorruptValue)
	}
	body := b[1:]
	switch b[0] {
	case frameRaw:
	case frameZstd:
		out, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("%w: zstd: %v", ErrCorruptValue, err)
		}
		body = out
	default:
		return fmt.Errorf("%w: unknown frame 0x%02x", ErrCorruptValue, b[0])
	}
	if err := decMode.Unmarshal(body, v); err != nil {
		return fmt.Errorf("storage: decode: %w", err)
	}
	return nil
}

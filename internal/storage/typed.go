package storage

import (
	"context"
	"fmt"
)

type codecCarrier interface {
	valueCodec() *Codec
}

var defaultCodec = NewCodec(DefaultCompressThreshold)

func codecFor(st Store) *Codec {
	if cc, ok := st.(codecCarrier); ok {
		if c := cc.valueCodec(); c != nil {
			return c
		}
	}
	return defaultCodec
}

// Load reads key into v. It reports false when the key is absent.
func Load(ctx context.Context, st Store, key string, v any) (bool, error) {
	b, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := codecFor(st).Decode(b, v); err != nil {
		return false, fmt.Errorf("load %q: %w", key, err)
	}
	return true, nil
}

// Save encodes v and writes it under key, replacing any prior value.
func Save(ctx context.Context, st Store, key string, v any) error {
	b, err := codecFor(st).Encode(v)
	if err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return st.Set(ctx, key, b)
}

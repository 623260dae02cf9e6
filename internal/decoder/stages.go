package decoder

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnexpectedInput is returned when a stage receives a value of a type it
// cannot decode.
var ErrUnexpectedInput = errors.New("decoder: unexpected input type")

// Split is a first stage that cuts a string payload into trimmed fields.
// Empty payloads emit nothing.
func Split(sep string) Decoder {
	return Func(func(_ context.Context, in any, emit Emit) error {
		s, err := asString(in)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		parts := strings.Split(s, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return emit(parts)
	})
}

// Tag is a second stage that labels a field list with a sub-protocol kind.
func Tag(kind string) Decoder {
	return Func(func(_ context.Context, in any, emit Emit) error {
		fields, ok := in.([]string)
		if !ok {
			return fmt.Errorf("%w: %T", ErrUnexpectedInput, in)
		}
		return emit(map[string]any{
			"kind":   kind,
			"fields": fields,
		})
	})
}

// Sentence does Split and Tag in a single stage.
func Sentence(kind, sep string) Decoder {
	split, tag := Split(sep), Tag(kind)
	return Func(func(ctx context.Context, in any, emit Emit) error {
		return split.Decode(ctx, in, func(v any) error {
			return tag.Decode(ctx, v, emit)
		})
	})
}

func asString(in any) (string, error) {
	switch v := in.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnexpectedInput, in)
}

// Package decoder defines the contract between the router and the
// sub-protocol decoders it feeds.
//
// A decoder turns one input value (the raw payload string for a first stage)
// into zero or more output values. Decoders may keep state across calls; the
// router feeds each decoder from a single goroutine, in input order.
package decoder

import (
	"context"
	"errors"
	"io"
)

// Emit hands one decoded value downstream. It blocks while downstream is full
// and returns an error once the pipeline is shutting down.
type Emit func(v any) error

// Decoder converts one input value into zero or more emitted values.
type Decoder interface {
	Decode(ctx context.Context, in any, emit Emit) error
}

// Func adapts a function to the Decoder interface.
type Func func(ctx context.Context, in any, emit Emit) error

func (f Func) Decode(ctx context.Context, in any, emit Emit) error { return f(ctx, in, emit) }

// Chain composes stages so that each stage's emitted values are decoded by the
// next one. The last stage emits outward.
func Chain(stages ...Decoder) Decoder {
	if len(stages) == 1 {
		return stages[0]
	}
	return chain(stages)
}

type chain []Decoder

func (c chain) Decode(ctx context.Context, in any, emit Emit) error {
	return c.decodeFrom(ctx, 0, in, emit)
}

func (c chain) decodeFrom(ctx context.Context, i int, in any, emit Emit) error {
	if i == len(c) {
		return emit(in)
	}
	return c[i].Decode(ctx, in, func(v any) error {
		return c.decodeFrom(ctx, i+1, v, emit)
	})
}

// Close closes every stage that implements io.Closer.
func (c chain) Close() error {
	var errs []error
	for _, stage := range c {
		if closer, ok := stage.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

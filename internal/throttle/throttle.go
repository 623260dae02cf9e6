// Package throttle bounds the rate at which envelopes leave the framing stage.
//
// A Throttle may delay records but never reorders them: its output is a
// subsequence of its input in the same order. Sends on out block, so a full
// downstream stage holds the throttle and, through it, the parser.
package throttle

import (
	"context"

	"github.com/tinytelemetry/muxlog/internal/model"
)

// Throttle relays envelopes from in to out. Run returns nil once in is closed
// and drained, or the context error when ctx ends first. The caller owns out.
type Throttle interface {
	Run(ctx context.Context, in <-chan model.Envelope, out chan<- model.Envelope) error
}

// MillisFunc reads the millisecond timestamp of an envelope. The bool is false
// when the envelope carries no readable timestamp.
type MillisFunc func(model.Envelope) (int64, bool)

type none struct{}

// None returns a throttle that forwards every envelope immediately.
func None() Throttle { return none{} }

func (none) Run(ctx context.Context, in <-chan model.Envelope, out chan<- model.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

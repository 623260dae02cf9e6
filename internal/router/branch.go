package router

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tinytelemetry/muxlog/internal/decoder"
	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/model"
)

// branch owns one long-lived decoder and its private input queue. A single
// goroutine feeds the decoder, so events of one discriminator keep input order.
type branch struct {
	disc    model.Discriminator
	dec     decoder.Decoder
	in      chan model.Envelope
	merge   *merger
	policy  Policy
	onError func(model.Envelope, error)
	log     logging.Logger
}

func (b *branch) run(ctx context.Context) error {
	defer b.closeDecoder()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-b.in:
			if !ok {
				return nil
			}
			if err := b.decode(ctx, env); err != nil {
				return err
			}
		}
	}
}

func (b *branch) decode(ctx context.Context, env model.Envelope) error {
	err := b.safeDecode(ctx, env)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if b.policy == PolicyFail {
		return fmt.Errorf("%w: %s: %w", ErrDecoder, b.disc, err)
	}
	b.onError(env, err)
	return nil
}

func (b *branch) safeDecode(ctx context.Context, env model.Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("decoder panic: %v", p)
		}
	}()
	return b.dec.Decode(ctx, env.Payload, func(v any) error {
		return b.merge.send(ctx, model.Event{
			Discriminator: b.disc,
			Timestamp:     env.Timestamp,
			Data:          v,
		})
	})
}

func (b *branch) closeDecoder() {
	closer, ok := b.dec.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil && !errors.Is(err, context.Canceled) {
		b.log.Warn("router: closing decoder failed",
			logging.String("discriminator", b.disc.String()), logging.Err(err))
	}
}

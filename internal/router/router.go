// Package router fans framed envelopes out to per-discriminator decoders and
// fans every decoder output, plus inline JSON records, back into one stream.
//
// Routing is a closed switch over the discriminator alphabet. Each decoder
// runs in its own long-lived branch created with the router. All queues are
// bounded and every send blocks, so the slowest branch, or a stalled consumer
// of Output, holds back the router and everything upstream of it.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/muxlog/internal/decoder"
	"github.com/tinytelemetry/muxlog/internal/diagnostic"
	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/metrics"
	"github.com/tinytelemetry/muxlog/internal/model"
)

var (
	// ErrMalformedInline wraps inline JSON parse failures under PolicyFail.
	ErrMalformedInline = errors.New("router: malformed inline payload")
	// ErrDecoder wraps decoder failures under PolicyFail.
	ErrDecoder = errors.New("router: decoder failure")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("router: already running")

	errNoDecoder = errors.New("no decoder configured")
)

// Config holds the decoder set and tunables. A nil decoder leaves its
// discriminator unrouted: its records are dropped with a diagnostic.
type Config struct {
	Actisense decoder.Decoder
	NMEA0183  decoder.Decoder

	BranchBuffer int
	OutputBuffer int

	InlinePolicy  Policy
	DecoderPolicy Policy

	Reporter *diagnostic.Reporter
	Metrics  *metrics.Metrics
	Logger   logging.Logger
}

// Stats is a snapshot of router counters.
type Stats struct {
	Actisense uint64 `json:"actisense"`
	NMEA0183  uint64 `json:"nmea0183"`
	Inline    uint64 `json:"inline"`
	Dropped   uint64 `json:"dropped"`
	Events    uint64 `json:"events"`
}

// Router routes envelopes and merges decoder output.
type Router struct {
	actisense *branch
	nmea0183  *branch
	merge     *merger

	inlinePolicy Policy
	reporter     *diagnostic.Reporter
	metrics      *metrics.Metrics
	log          logging.Logger

	runOnce sync.Once

	routedActisense atomic.Uint64
	routedNMEA      atomic.Uint64
	routedInline    atomic.Uint64
	dropped         atomic.Uint64
	events          atomic.Uint64
}

// New creates a router and its decoder branches.
func New(cfg Config) *Router {
	if cfg.BranchBuffer <= 0 {
		cfg.BranchBuffer = model.DefaultBranchBuffer
	}
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = model.DefaultOutputBuffer
	}

	r := &Router{
		inlinePolicy: cfg.InlinePolicy,
		reporter:     cfg.Reporter,
		metrics:      cfg.Metrics,
		log:          logging.OrNoop(cfg.Logger),
	}
	if r.reporter == nil {
		r.reporter = diagnostic.NewReporter(0, r.log, r.metrics, nil)
	}
	r.merge = newMerger(cfg.OutputBuffer, r.metrics, func() { r.events.Add(1) })
	r.actisense = r.newBranch(model.Actisense, cfg.Actisense, cfg.BranchBuffer, cfg.DecoderPolicy)
	r.nmea0183 = r.newBranch(model.NMEA0183, cfg.NMEA0183, cfg.BranchBuffer, cfg.DecoderPolicy)
	return r
}

func (r *Router) newBranch(d model.Discriminator, dec decoder.Decoder, buffer int, policy Policy) *branch {
	if dec == nil {
		return nil
	}
	return &branch{
		disc:   d,
		dec:    dec,
		in:     make(chan model.Envelope, buffer),
		merge:  r.merge,
		policy: policy,
		log:    r.log,
		onError: func(env model.Envelope, err error) {
			r.dropped.Add(1)
			r.reporter.Report(model.DiagDecoderFailure, env, err)
		},
	}
}

// Output returns the merged event stream. It is closed when Run returns.
func (r *Router) Output() <-chan model.Event {
	return r.merge.out
}

// Run routes envelopes from in until in is closed, then drains the branches,
// closes the decoders and closes Output. It returns the first PolicyFail
// error, or the context error when ctx ends first.
func (r *Router) Run(ctx context.Context, in <-chan model.Envelope) error {
	started := false
	r.runOnce.Do(func() { started = true })
	if !started {
		return ErrAlreadyRunning
	}
	defer r.merge.close()

	g, gctx := errgroup.WithContext(ctx)
	branches := r.branches()
	for _, b := range branches {
		g.Go(func() error { return b.run(gctx) })
	}

	g.Go(func() error {
		defer func() {
			for _, b := range branches {
				close(b.in)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case env, ok := <-in:
				if !ok {
					return nil
				}
				if err := r.route(gctx, env); err != nil {
					return err
				}
			}
		}
	})

	return g.Wait()
}

// route handles one envelope. It returns only after the envelope has been
// queued on its branch, parsed and merged, or dropped.
func (r *Router) route(ctx context.Context, env model.Envelope) error {
	r.metrics.EnvelopeRouted(env.Discriminator)

	switch env.Discriminator {
	case model.Actisense:
		return r.dispatch(ctx, r.actisense, env, &r.routedActisense)
	case model.NMEA0183:
		return r.dispatch(ctx, r.nmea0183, env, &r.routedNMEA)
	case model.Inline:
		return r.inline(ctx, env)
	default:
		r.drop(model.DiagUnknownDiscriminator, env, nil)
		return nil
	}
}

func (r *Router) dispatch(ctx context.Context, b *branch, env model.Envelope, counter *atomic.Uint64) error {
	if b == nil {
		r.drop(model.DiagUnknownDiscriminator, env, errNoDecoder)
		return nil
	}
	select {
	case b.in <- env:
		counter.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) inline(ctx context.Context, env model.Envelope) error {
	v, err := parseInline(env.Payload)
	if err != nil {
		if r.inlinePolicy == PolicyFail {
			return fmt.Errorf("%w: %s: %w", ErrMalformedInline, env.Timestamp, err)
		}
		r.drop(model.DiagMalformedInline, env, err)
		return nil
	}
	r.routedInline.Add(1)
	return r.merge.send(ctx, model.Event{
		Discriminator: model.Inline,
		Timestamp:     env.Timestamp,
		Data:          v,
	})
}

func (r *Router) drop(kind model.DiagnosticKind, env model.Envelope, err error) {
	r.dropped.Add(1)
	r.reporter.Report(kind, env, err)
}

func (r *Router) branches() []*branch {
	var out []*branch
	for _, b := range []*branch{r.actisense, r.nmea0183} {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Stats returns the current counters.
func (r *Router) Stats() Stats {
	return Stats{
		Actisense: r.routedActisense.Load(),
		NMEA0183:  r.routedNMEA.Load(),
		Inline:    r.routedInline.Load(),
		Dropped:   r.dropped.Load(),
		Events:    r.events.Load(),
	}
}

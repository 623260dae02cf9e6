// Package demux is the entry point of the multiplexed telemetry pipeline.
//
// Raw records written to a Demultiplexer are framed into envelopes, paced by a
// timestamp throttle, routed by discriminator to their decoders and merged
// into a single event stream attached with AttachOutput:
//
//	Write -> queue -> frame -> throttle -> router -> {A, N, I} -> merge -> out
//
// Every stage boundary is a bounded channel. When the consumer of the merged
// output stops reading, the stall propagates stage by stage until Write
// reports that the caller should wait for Drain.
package demux

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/muxlog/internal/decoder"
	"github.com/tinytelemetry/muxlog/internal/diagnostic"
	"github.com/tinytelemetry/muxlog/internal/envelope"
	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/metrics"
	"github.com/tinytelemetry/muxlog/internal/model"
	"github.com/tinytelemetry/muxlog/internal/router"
	"github.com/tinytelemetry/muxlog/internal/throttle"
	"github.com/tinytelemetry/muxlog/internal/timestamp"
)

var (
	// ErrOutputAttached is returned by a second AttachOutput call.
	ErrOutputAttached = errors.New("demux: output already attached")
	// ErrClosed is returned by WriteContext once input is closed.
	ErrClosed = errors.New("demux: closed")
)

// Decoders is the decoder set, one per sub-protocol discriminator.
type Decoders struct {
	Actisense decoder.Decoder
	NMEA0183  decoder.Decoder
}

// Config holds the pipeline tunables. Zero values select the defaults.
type Config struct {
	Decoders Decoders

	// HighWaterMark is the input queue length at which Write starts
	// returning false.
	HighWaterMark    int
	StageBuffer      int
	BranchBuffer     int
	OutputBuffer     int
	DiagnosticBuffer int

	Delimiter byte

	// MaxGap re-anchors the default replay throttle when consecutive
	// timestamps jump forward by more than this. Zero waits out every gap.
	MaxGap time.Duration

	InlinePolicy  router.Policy
	DecoderPolicy router.Policy
}

func (c *Config) normalize() {
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = model.DefaultHighWaterMark
	}
	if c.StageBuffer <= 0 {
		c.StageBuffer = model.DefaultStageBuffer
	}
	if c.BranchBuffer <= 0 {
		c.BranchBuffer = model.DefaultBranchBuffer
	}
	if c.OutputBuffer <= 0 {
		c.OutputBuffer = model.DefaultOutputBuffer
	}
	if c.DiagnosticBuffer <= 0 {
		c.DiagnosticBuffer = model.DefaultDiagBuffer
	}
	if c.Delimiter == 0 {
		c.Delimiter = model.DefaultDelimiter
	}
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Written            uint64       `json:"written"`
	Backpressured      uint64       `json:"backpressured"`
	Queued             int          `json:"queued"`
	Malformed          uint64       `json:"malformed"`
	DiagnosticsDropped uint64       `json:"diagnostics_dropped"`
	Router             router.Stats `json:"router"`
}

// Demultiplexer accepts raw multiplexed records and exposes one merged
// stream of normalized events.
type Demultiplexer struct {
	cancel context.CancelFunc

	queue    *inputQueue
	parser   *envelope.Parser
	throttle throttle.Throttle
	router   *router.Router
	reporter *diagnostic.Reporter
	log      logging.Logger
	metrics  *metrics.Metrics

	attachMu sync.Mutex
	attached bool
	fwd      sync.WaitGroup

	written       atomic.Uint64
	backpressured atomic.Uint64
	malformed     atomic.Uint64

	stopped   atomic.Bool
	abort     chan struct{}
	abortOnce sync.Once
	done      chan struct{}
	err       error

	// parentDone aborts delivery when the caller's context ends.
	parentDone <-chan struct{}
}

// New builds the pipeline and starts its stages. The stages run until input
// is closed and drained, a PolicyFail error occurs, or ctx ends.
//
// Unless WithThrottle is given, records are replayed at the pace of their
// timestamps. With a zero Config.MaxGap a forward jump in a recorded log
// holds the whole pipeline for the length of the jump, and Write reports
// backpressure meanwhile; set MaxGap to skip such gaps.
func New(ctx context.Context, cfg Config, opts ...Option) *Demultiplexer {
	cfg.normalize()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	log := logging.OrNoop(o.logger)
	if o.throttle == nil {
		o.throttle = throttle.NewReplay(throttle.ReplayConfig{
			Millis: timestamp.EnvelopeMillis,
			Clock:  o.clock,
			MaxGap: cfg.MaxGap,
			Logger: log,
		})
	}

	parentDone := ctx.Done()
	ctx, cancel := context.WithCancel(ctx)
	reporter := diagnostic.NewReporter(cfg.DiagnosticBuffer, log, o.metrics, o.clock)

	d := &Demultiplexer{
		cancel:   cancel,
		queue:    newInputQueue(cfg.HighWaterMark, o.metrics),
		parser:   envelope.NewParser(envelope.WithDelimiter(cfg.Delimiter)),
		throttle: o.throttle,
		reporter: reporter,
		log:      log,
		metrics:  o.metrics,
		abort:    make(chan struct{}),
		done:     make(chan struct{}),

		parentDone: parentDone,
	}
	d.router = router.New(router.Config{
		Actisense:     cfg.Decoders.Actisense,
		NMEA0183:      cfg.Decoders.NMEA0183,
		BranchBuffer:  cfg.BranchBuffer,
		OutputBuffer:  cfg.OutputBuffer,
		InlinePolicy:  cfg.InlinePolicy,
		DecoderPolicy: cfg.DecoderPolicy,
		Reporter:      reporter,
		Metrics:       o.metrics,
		Logger:        log,
	})

	framed := make(chan model.Envelope, cfg.StageBuffer)
	throttled := make(chan model.Envelope, cfg.StageBuffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(framed)
		return d.frame(gctx, framed)
	})
	g.Go(func() error {
		defer close(throttled)
		return d.throttle.Run(gctx, framed, throttled)
	})
	g.Go(func() error {
		return d.router.Run(gctx, throttled)
	})

	go func() {
		err := g.Wait()
		if err != nil && !(d.stopped.Load() && errors.Is(err, context.Canceled)) {
			d.log.Error("demux: pipeline stopped", logging.Err(err))
		}
		d.err = err
		d.queue.close()
		d.reporter.Close()
		d.cancel()
		close(d.done)
	}()

	return d
}

// frame turns queued raw records into envelopes. Malformed records are
// reported and still forwarded.
func (d *Demultiplexer) frame(ctx context.Context, out chan<- model.Envelope) error {
	for {
		record, ok := d.queue.pop(ctx)
		if !ok {
			return ctx.Err()
		}
		env, complete := d.parser.Parse(record)
		if !complete {
			d.malformed.Add(1)
			d.reporter.Report(model.DiagMalformedEnvelope, env, nil)
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Write queues one raw record and reports whether the caller may keep
// writing. A false return still queues the record; the caller should wait on
// Drain before writing more. After Close the record is dropped and Write
// returns false.
func (d *Demultiplexer) Write(record []byte) bool {
	accepted, _ := d.write(record)
	return accepted
}

// WriteString is Write for string records.
func (d *Demultiplexer) WriteString(record string) bool {
	return d.Write([]byte(record))
}

func (d *Demultiplexer) write(record []byte) (accepted, ok bool) {
	buf := make([]byte, len(record))
	copy(buf, record)

	accepted, ok = d.queue.push(buf)
	if !ok {
		d.log.Debug("demux: write after close dropped")
		return false, false
	}
	d.written.Add(1)
	if !accepted {
		d.backpressured.Add(1)
	}
	d.metrics.RecordWritten(accepted)
	return accepted, true
}

// WriteContext writes one record and, when the pipeline is backpressured,
// waits for Drain or ctx.
func (d *Demultiplexer) WriteContext(ctx context.Context, record []byte) error {
	accepted, ok := d.write(record)
	if !ok {
		return ErrClosed
	}
	if accepted {
		return nil
	}
	select {
	case <-d.Drain():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain returns a channel that is closed once backpressure clears. When the
// pipeline is not backpressured the channel is already closed.
func (d *Demultiplexer) Drain() <-chan struct{} {
	return d.queue.drained()
}

// AttachOutput connects the single consumer of the merged event stream.
// Events are delivered in merge order and out is closed after the last one.
// Only the first call has an effect; later calls return ErrOutputAttached.
func (d *Demultiplexer) AttachOutput(out chan<- model.Event) error {
	d.attachMu.Lock()
	defer d.attachMu.Unlock()
	if d.attached {
		return ErrOutputAttached
	}
	d.attached = true

	d.fwd.Add(1)
	go func() {
		defer d.fwd.Done()
		defer close(out)
		for ev := range d.router.Output() {
			select {
			case out <- ev:
			case <-d.abort:
				return
			case <-d.parentDone:
				return
			}
		}
	}()
	return nil
}

// Diagnostics returns the side channel of dropped and degraded records. It
// never blocks the pipeline and is closed when the pipeline finishes.
func (d *Demultiplexer) Diagnostics() <-chan model.Diagnostic {
	return d.reporter.C()
}

// Stats returns a snapshot of the pipeline counters.
func (d *Demultiplexer) Stats() Stats {
	return Stats{
		Written:            d.written.Load(),
		Backpressured:      d.backpressured.Load(),
		Queued:             d.queue.len(),
		Malformed:          d.malformed.Load(),
		DiagnosticsDropped: d.reporter.Dropped(),
		Router:             d.router.Stats(),
	}
}

// Close ends input. Records already written are still processed. Close does
// not wait; use Wait.
func (d *Demultiplexer) Close() error {
	d.queue.close()
	return nil
}

// Closed reports whether input has been closed.
func (d *Demultiplexer) Closed() bool {
	return d.queue.isClosed()
}

// Done is closed when every stage has returned.
func (d *Demultiplexer) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until every stage has returned and the output forwarder has
// delivered or abandoned the last event. It returns the pipeline error, if
// any; cancellation through Stop is not an error.
func (d *Demultiplexer) Wait() error {
	<-d.done
	d.fwd.Wait()
	if d.stopped.Load() && errors.Is(d.err, context.Canceled) {
		return nil
	}
	return d.err
}

// Stop cancels every stage, dropping buffered records, and waits for them.
func (d *Demultiplexer) Stop() error {
	d.stopped.Store(true)
	d.queue.close()
	d.abortOnce.Do(func() { close(d.abort) })
	d.cancel()
	return d.Wait()
}

// Package diagnostic carries locally recovered faults out of the pipeline on
// a side channel so callers and tests can observe them.
package diagnostic

import (
	"sync"
	"sync/atomic"

	"github.com/juju/clock"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/metrics"
	"github.com/tinytelemetry/muxlog/internal/model"
)

// Reporter logs, counts and publishes diagnostics. Publishing never blocks:
// when the channel buffer is full the diagnostic is counted as dropped.
type Reporter struct {
	ch      chan model.Diagnostic
	log     logging.Logger
	metrics *metrics.Metrics
	clock   clock.Clock

	dropped   atomic.Uint64
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewReporter creates a reporter with a channel of the given capacity.
func NewReporter(buffer int, log logging.Logger, m *metrics.Metrics, clk clock.Clock) *Reporter {
	if buffer <= 0 {
		buffer = model.DefaultDiagBuffer
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Reporter{
		ch:      make(chan model.Diagnostic, buffer),
		log:     logging.OrNoop(log),
		metrics: m,
		clock:   clk,
	}
}

// Report records one diagnostic.
func (r *Reporter) Report(kind model.DiagnosticKind, env model.Envelope, err error) {
	d := model.Diagnostic{Kind: kind, Envelope: env, Err: err, At: r.clock.Now()}

	fields := []logging.Field{
		logging.String("kind", string(kind)),
		logging.String("discriminator", env.Discriminator.String()),
		logging.String("timestamp", env.Timestamp),
	}
	if err != nil {
		fields = append(fields, logging.Err(err))
	}
	if kind == model.DiagMalformedEnvelope {
		r.log.Debug("pipeline: degraded record", fields...)
	} else {
		r.log.Warn("pipeline: dropped record", fields...)
	}
	r.metrics.Diagnostic(kind)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- d:
	default:
		r.dropped.Add(1)
	}
}

// C returns the diagnostic channel. It is closed by Close.
func (r *Reporter) C() <-chan model.Diagnostic {
	return r.ch
}

// Dropped returns how many diagnostics did not fit the channel.
func (r *Reporter) Dropped() uint64 {
	return r.dropped.Load()
}

// Close closes the channel. Later reports are logged and counted only.
func (r *Reporter) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.ch)
		r.mu.Unlock()
	})
}

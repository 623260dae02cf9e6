package demux

import (
	"github.com/juju/clock"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/metrics"
	"github.com/tinytelemetry/muxlog/internal/throttle"
)

type options struct {
	logger   logging.Logger
	metrics  *metrics.Metrics
	throttle throttle.Throttle
	clock    clock.Clock
}

// Option configures a Demultiplexer.
type Option func(*options)

// WithLogger sets the logger used by every stage.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithThrottle replaces the default replay throttle.
func WithThrottle(t throttle.Throttle) Option {
	return func(o *options) { o.throttle = t }
}

// WithClock sets the clock used by the default replay throttle and for
// diagnostic timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

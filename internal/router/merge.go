package router

import (
	"context"

	"github.com/tinytelemetry/muxlog/internal/metrics"
	"github.com/tinytelemetry/muxlog/internal/model"
)

// merger is the fan-in point: every branch and the inline path send into one
// bounded channel. A full channel blocks the sender, which is how a stalled
// consumer holds back the whole pipeline.
type merger struct {
	out     chan model.Event
	metrics *metrics.Metrics
	emitted func()
}

func newMerger(buffer int, m *metrics.Metrics, emitted func()) *merger {
	return &merger{
		out:     make(chan model.Event, buffer),
		metrics: m,
		emitted: emitted,
	}
}

func (m *merger) send(ctx context.Context, ev model.Event) error {
	select {
	case m.out <- ev:
		m.metrics.EventEmitted(ev.Discriminator)
		m.emitted()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *merger) close() {
	close(m.out)
}

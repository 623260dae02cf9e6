package throttle

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/model"
	"github.com/tinytelemetry/muxlog/internal/timestamp"
)

// ReplayConfig holds tunable parameters for the replay throttle.
type ReplayConfig struct {
	// Millis reads an envelope's timestamp. Defaults to timestamp.EnvelopeMillis.
	Millis MillisFunc
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// MaxGap re-anchors the timeline when consecutive timestamps are further
	// apart than this. Zero disables the check.
	MaxGap time.Duration
	Logger logging.Logger
}

// Replay paces envelopes so that the wall time elapsed between two records
// matches the difference of their source timestamps.
type Replay struct {
	millis MillisFunc
	clock  clock.Clock
	maxGap int64
	log    logging.Logger
}

// NewReplay creates a replay throttle.
func NewReplay(cfg ReplayConfig) *Replay {
	r := &Replay{
		millis: cfg.Millis,
		clock:  cfg.Clock,
		maxGap: cfg.MaxGap.Milliseconds(),
		log:    logging.OrNoop(cfg.Logger),
	}
	if r.millis == nil {
		r.millis = timestamp.EnvelopeMillis
	}
	if r.clock == nil {
		r.clock = clock.WallClock
	}
	return r
}

// Run implements Throttle. The first timed envelope anchors the timeline.
// A timestamp that goes backwards, as when a recorded log loops, or that jumps
// past MaxGap re-anchors it. Envelopes without a readable timestamp pass
// immediately.
func (r *Replay) Run(ctx context.Context, in <-chan model.Envelope, out chan<- model.Envelope) error {
	var (
		anchored bool
		baseMs   int64
		lastMs   int64
		baseWall time.Time
	)

	for {
		var env model.Envelope
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-in:
			if !ok {
				return nil
			}
			env = e
		}

		if ms, ok := r.millis(env); ok {
			switch {
			case !anchored:
				anchored = true
				baseMs, baseWall = ms, r.clock.Now()
			case ms < lastMs || (r.maxGap > 0 && ms-lastMs > r.maxGap):
				r.log.Debug("throttle: re-anchoring timeline",
					logging.Int64("from_ms", lastMs), logging.Int64("to_ms", ms))
				baseMs, baseWall = ms, r.clock.Now()
			default:
				due := baseWall.Add(time.Duration(ms-baseMs) * time.Millisecond)
				if wait := due.Sub(r.clock.Now()); wait > 0 {
					if err := r.sleep(ctx, wait); err != nil {
						return err
					}
				}
			}
			lastMs = ms
		}

		select {
		case out <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Replay) sleep(ctx context.Context, d time.Duration) error {
	timer := r.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

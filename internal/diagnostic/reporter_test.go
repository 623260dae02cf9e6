package diagnostic

import (
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/metrics"
	"github.com/tinytelemetry/muxlog/internal/model"
)

type recordingLogger struct {
	logging.NoopLogger
	warns  []string
	debugs []string
}

func (l *recordingLogger) Warn(msg string, _ ...logging.Field)  { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Debug(msg string, _ ...logging.Field) { l.debugs = append(l.debugs, msg) }

func TestReporter_PublishesLogsAndCounts(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	log := &recordingLogger{}
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	r := NewReporter(4, log, m, testclock.NewClock(now))
	env := model.Envelope{Timestamp: "1001", Discriminator: 'Z', Payload: "garbage"}
	r.Report(model.DiagUnknownDiscriminator, env, nil)
	r.Report(model.DiagMalformedEnvelope, model.Envelope{Timestamp: "1"}, nil)

	d := <-r.C()
	assert.Equal(t, model.DiagUnknownDiscriminator, d.Kind)
	assert.Equal(t, env, d.Envelope)
	assert.Equal(t, now, d.At)

	assert.Len(t, log.warns, 1)
	assert.Len(t, log.debugs, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Diagnostics.WithLabelValues("unknown-discriminator")))
}

func TestReporter_NeverBlocksWhenFull(t *testing.T) {
	r := NewReporter(1, nil, nil, nil)
	boom := errors.New("boom")

	r.Report(model.DiagDecoderFailure, model.Envelope{}, boom)
	r.Report(model.DiagDecoderFailure, model.Envelope{}, boom)
	r.Report(model.DiagDecoderFailure, model.Envelope{}, boom)

	assert.Equal(t, uint64(2), r.Dropped())
	d := <-r.C()
	assert.ErrorIs(t, d.Err, boom)
}

func TestReporter_CloseIsIdempotent(t *testing.T) {
	r := NewReporter(1, nil, nil, nil)
	r.Close()
	r.Close()

	r.Report(model.DiagMalformedInline, model.Envelope{}, nil)
	_, ok := <-r.C()
	assert.False(t, ok)
	assert.Equal(t, uint64(1), r.Dropped())
}

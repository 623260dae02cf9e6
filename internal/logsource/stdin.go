package logsource

import (
	"context"
	"io"
	"os"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/model"
)

// StdinConfig holds tunable parameters for the stdin source.
type StdinConfig struct {
	BufferSize  int
	MaxLineSize int
	Logger      logging.Logger
}

// StdinSource reads multiplexed records from stdin.
type StdinSource struct {
	ch     chan model.SourceRecord
	cancel context.CancelFunc
}

// NewStdinSource creates a StdinSource that reads from stdin in a background goroutine.
func NewStdinSource(ctx context.Context, conf ...StdinConfig) *StdinSource {
	return newStdinSourceWithReader(ctx, os.Stdin, conf...)
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader, conf ...StdinConfig) *StdinSource {
	bufferSize := DefaultBuffer
	maxLineSize := DefaultMaxLineSize
	var log logging.Logger
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		log = conf[0].Logger
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &StdinSource{
		ch:     make(chan model.SourceRecord, bufferSize),
		cancel: cancel,
	}
	go func() {
		defer close(s.ch)
		scanRecords(ctx, r, s.Name(), maxLineSize, s.ch, logging.OrNoop(log))
	}()
	return s
}

func (s *StdinSource) Records() <-chan model.SourceRecord { return s.ch }
func (s *StdinSource) Stop()                              { s.cancel() }
func (s *StdinSource) Name() string                       { return "stdin" }

package logsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/model"
)

// FileConfig configures a recorded multiplexed log file input.
type FileConfig struct {
	Path string
	// Follow keeps the source open at end of file and waits for appends,
	// like tail -f. Without it the file is read once.
	Follow      bool
	BufferSize  int
	MaxLineSize int
	Logger      logging.Logger
}

// FileSource replays records from a file.
type FileSource struct {
	ch     chan model.SourceRecord
	cancel context.CancelFunc
}

// NewFileSource opens cfg.Path and starts reading it in the background.
func NewFileSource(ctx context.Context, cfg FileConfig) (*FileSource, error) {
	if cfg.Path == "" {
		return nil, errors.New("logsource: file path is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBuffer
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = DefaultMaxLineSize
	}
	log := logging.OrNoop(cfg.Logger)

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("logsource: open %s: %w", cfg.Path, err)
	}

	var watcher *fsnotify.Watcher
	if cfg.Follow {
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("logsource: create watcher: %w", err)
		}
		if err := watcher.Add(cfg.Path); err != nil {
			watcher.Close()
			f.Close()
			return nil, fmt.Errorf("logsource: watch %s: %w", cfg.Path, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &FileSource{
		ch:     make(chan model.SourceRecord, cfg.BufferSize),
		cancel: cancel,
	}

	go func() {
		defer close(s.ch)
		defer f.Close()

		var r io.Reader = f
		if watcher != nil {
			defer watcher.Close()
			r = &followReader{ctx: ctx, f: f, watcher: watcher, log: log}
		}
		scanRecords(ctx, r, s.Name(), cfg.MaxLineSize, s.ch, log)
		log.Debug("logsource: file source finished", logging.String("path", cfg.Path))
	}()
	return s, nil
}

func (s *FileSource) Records() <-chan model.SourceRecord { return s.ch }
func (s *FileSource) Stop()                              { s.cancel() }
func (s *FileSource) Name() string                       { return "file" }

// followReader turns end of file into a wait for the next write event. It
// reports io.EOF once ctx ends or the file is removed or renamed.
type followReader struct {
	ctx     context.Context
	f       *os.File
	watcher *fsnotify.Watcher
	log     logging.Logger
}

func (r *followReader) Read(p []byte) (int, error) {
	for {
		if r.ctx.Err() != nil {
			return 0, io.EOF
		}
		n, err := r.f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}

		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case event, ok := <-r.watcher.Events:
			if !ok {
				return 0, io.EOF
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				r.log.Info("logsource: followed file went away", logging.String("path", event.Name))
				return 0, io.EOF
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return 0, io.EOF
			}
			r.log.Warn("logsource: watcher error", logging.Err(err))
		}
	}
}

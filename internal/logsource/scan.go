package logsource

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/model"
)

// scanRecords reads newline-delimited records from r and sends them on out
// until r is exhausted or ctx ends. Blank lines are skipped.
//
// The blocking scan runs in its own goroutine so that cancellation is
// noticed without waiting for the next line.
func scanRecords(ctx context.Context, r io.Reader, name string, maxLineSize int, out chan<- model.SourceRecord, log logging.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			b := scanner.Bytes()
			if len(b) == 0 {
				continue
			}
			line := make([]byte, len(b))
			copy(line, b)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				log.Warn("logsource: record exceeded max size, stopping source",
					logging.String("source", name), logging.Int("max_line_size", maxLineSize))
				return
			}
			log.Warn("logsource: scanner error", logging.String("source", name), logging.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			select {
			case out <- model.SourceRecord{Source: name, Record: line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

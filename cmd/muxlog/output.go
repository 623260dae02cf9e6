package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tinytelemetry/muxlog/internal/model"
)

// eventLine is the JSON line shape written with output-envelope enabled.
type eventLine struct {
	Discriminator string `json:"discriminator"`
	Timestamp     string `json:"timestamp"`
	Data          any    `json:"data"`
}

// eventWriter writes merged events as JSON lines.
type eventWriter struct {
	w        *bufio.Writer
	enc      *json.Encoder
	envelope bool
}

func newEventWriter(w io.Writer, envelope bool) *eventWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &eventWriter{w: bw, enc: enc, envelope: envelope}
}

func (ew *eventWriter) Write(ev model.Event) error {
	var v any = ev.Data
	if ew.envelope {
		v = eventLine{
			Discriminator: ev.Discriminator.String(),
			Timestamp:     ev.Timestamp,
			Data:          ev.Data,
		}
	}
	if err := ew.enc.Encode(v); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (ew *eventWriter) Flush() error {
	return ew.w.Flush()
}

// copyEvents writes every event from in until it closes. The buffer is
// flushed whenever no further event is immediately available.
func copyEvents(ew *eventWriter, in <-chan model.Event) error {
	for ev := range in {
		if err := ew.Write(ev); err != nil {
			return err
		}
		if len(in) == 0 {
			if err := ew.Flush(); err != nil {
				return err
			}
		}
	}
	return ew.Flush()
}

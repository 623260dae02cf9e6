package model

import (
	"fmt"
	"time"
)

// Event is one normalized output unit. Data is produced by a decoder, or by the
// inline JSON parse for the Inline discriminator, and is opaque to the pipeline.
type Event struct {
	Discriminator Discriminator
	Timestamp     string
	Data          any
}

// DiagnosticKind classifies a locally recovered fault.
type DiagnosticKind string

const (
	DiagMalformedEnvelope    DiagnosticKind = "malformed-envelope"
	DiagUnknownDiscriminator DiagnosticKind = "unknown-discriminator"
	DiagMalformedInline      DiagnosticKind = "malformed-inline"
	DiagDecoderFailure       DiagnosticKind = "decoder-failure"
)

// Diagnostic reports a record that was degraded or dropped instead of failing
// the pipeline.
type Diagnostic struct {
	Kind     DiagnosticKind
	Envelope Envelope
	Err      error
	At       time.Time
}

func (d Diagnostic) String() string {
	if d.Err != nil {
		return fmt.Sprintf("%s [%s] %s: %v", d.Kind, d.Envelope.Discriminator, d.Envelope.Timestamp, d.Err)
	}
	return fmt.Sprintf("%s [%s] %s", d.Kind, d.Envelope.Discriminator, d.Envelope.Timestamp)
}

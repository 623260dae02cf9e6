// Package envelope frames raw multiplexed records into envelopes.
//
// A record is "<timestamp>;<discriminator>;<payload>". Framing never fails:
// missing trailing fields are left empty so one bad line on a live feed does
// not stop the stream.
package envelope

import (
	"bytes"

	"github.com/tinytelemetry/muxlog/internal/model"
)

// Parser splits records on a fixed delimiter.
type Parser struct {
	delim byte
}

// Option configures a Parser.
type Option func(*Parser)

// WithDelimiter overrides the field delimiter.
func WithDelimiter(d byte) Option {
	return func(p *Parser) { p.delim = d }
}

// NewParser creates a parser using the default ';' delimiter unless overridden.
func NewParser(opts ...Option) *Parser {
	p := &Parser{delim: model.DefaultDelimiter}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// Parse frames one record with the default delimiter.
func Parse(record []byte) (model.Envelope, bool) {
	return defaultParser.Parse(record)
}

// Parse frames one record. The payload is everything after the second
// delimiter, so payloads may themselves contain the delimiter. The returned
// bool is false when fewer than three fields were present; the envelope is
// still usable in that case.
func (p *Parser) Parse(record []byte) (model.Envelope, bool) {
	record = bytes.TrimRight(record, "\r\n")

	var env model.Envelope
	ts, rest, found := bytes.Cut(record, []byte{p.delim})
	env.Timestamp = string(ts)
	if !found {
		return env, false
	}

	disc, payload, found := bytes.Cut(rest, []byte{p.delim})
	env.Discriminator = discriminator(disc)
	if !found {
		return env, false
	}
	env.Payload = string(payload)
	return env, true
}

func discriminator(field []byte) model.Discriminator {
	if len(field) != 1 || field[0] == 0 {
		return model.Unrecognized
	}
	return model.Discriminator(field[0])
}

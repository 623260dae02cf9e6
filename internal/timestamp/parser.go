// Package timestamp reads source timestamps carried by multiplexed records.
//
// On the wire a timestamp is integer milliseconds since the epoch, as written
// by the recorder; ISO-8601 variants are accepted as well.
package timestamp

import (
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/muxlog/internal/model"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05,000",
	"2006-01-02 15:04:05",
}

// Millis returns s as milliseconds since the epoch. Integers are always
// milliseconds; zone-less layouts are read as UTC.
func Millis(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, true
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// EnvelopeMillis is the throttle accessor: the envelope's own timestamp field,
// read as milliseconds.
func EnvelopeMillis(env model.Envelope) (int64, bool) {
	return Millis(env.Timestamp)
}

package timestamp

import (
	"testing"
	"time"

	"github.com/tinytelemetry/muxlog/internal/model"
)

func TestMillis_ISO8601(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name  string
		input string
	}{
		{"RFC3339", "2024-01-15T10:30:45Z"},
		{"RFC3339Nano", "2024-01-15T10:30:45.123456789Z"},
		{"RFC3339 offset", "2024-01-15T10:30:45+05:00"},
		{"zone-less millis", "2024-01-15T10:30:45.123"},
		{"space separated", "2024-01-15 10:30:45"},
		{"millis", "2024-01-15 10:30:45.123"},
		{"micros", "2024-01-15 10:30:45.123456"},
		{"comma decimal", "2024-01-15 10:30:45,123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, ok := Millis(tt.input)
			if !ok {
				t.Fatalf("Millis(%q) failed", tt.input)
			}
			if ms < day || ms >= day+24*time.Hour.Milliseconds() {
				t.Errorf("Millis(%q) = %d, want a time on 2024-01-15", tt.input, ms)
			}
		})
	}
}

func TestMillis(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"1000", 1000, true},
		{" 1001 ", 1001, true},
		{"-5", -5, true},
		{"946684800000", 946684800000, true},
		{"1970-01-01T00:00:01.5Z", 1500, true},
		{"1970-01-01 00:00:02.250", 2250, true},
		{"", 0, false},
		{"   ", 0, false},
		{"garbage", 0, false},
		{"12.5", 0, false},
	}

	for _, tt := range tests {
		got, ok := Millis(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Millis(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestEnvelopeMillis_ReadsTimestampField(t *testing.T) {
	ms, ok := EnvelopeMillis(model.Envelope{Timestamp: "1469015900001", Discriminator: model.NMEA0183})
	if !ok || ms != 1469015900001 {
		t.Fatalf("EnvelopeMillis = (%d, %v), want (1469015900001, true)", ms, ok)
	}
}

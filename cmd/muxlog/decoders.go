package main

import (
	"github.com/tinytelemetry/muxlog/internal/decoder"
	"github.com/tinytelemetry/muxlog/internal/demux"
)

// defaultDecoders returns the field-splitting decoders used when no
// sub-protocol decoder is linked in. Actisense payloads go through the
// two-stage chain; NMEA 0183 sentences through a single stage.
func defaultDecoders() demux.Decoders {
	return demux.Decoders{
		Actisense: decoder.Chain(decoder.Split(","), decoder.Tag("actisense")),
		NMEA0183:  decoder.Sentence("nmea0183", ","),
	}
}

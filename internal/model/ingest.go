package model

// RawRecord is one chunk of multiplexed input exactly as received.
type RawRecord []byte

// Discriminator selects the sub-protocol route of one record.
type Discriminator byte

// Known discriminators. The alphabet is closed: anything else is routed as
// unrecognized and dropped.
const (
	Unrecognized Discriminator = 0
	Actisense    Discriminator = 'A' // Actisense serial, decoded by a two-stage chain
	NMEA0183     Discriminator = 'N' // NMEA 0183 sentences
	Inline       Discriminator = 'I' // already normalized JSON
)

// Known reports whether d belongs to the route alphabet.
func (d Discriminator) Known() bool {
	switch d {
	case Actisense, NMEA0183, Inline:
		return true
	}
	return false
}

func (d Discriminator) String() string {
	if d == Unrecognized {
		return "unrecognized"
	}
	return string(rune(d))
}

// Envelope carries one framed record: the source timestamp, the route
// discriminator and the payload handed verbatim to the selected decoder.
// It is the transport contract between the parser, the throttle and the router.
type Envelope struct {
	Timestamp     string
	Discriminator Discriminator
	Payload       string
}

// SourceRecord is one raw record tagged with the input it arrived on.
type SourceRecord struct {
	Source string
	Record RawRecord
}

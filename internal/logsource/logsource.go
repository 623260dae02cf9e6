package logsource

import "github.com/tinytelemetry/muxlog/internal/model"

// Source is a unified interface for all record inputs (TCP, file, stdin).
type Source interface {
	Records() <-chan model.SourceRecord // read-only channel of raw records
	Stop()                              // graceful shutdown
	Name() string                       // "tcp", "file", "stdin"
}

const (
	// DefaultBuffer is the default channel buffer size for reader-backed sources.
	DefaultBuffer = 4096

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single record.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

package model

// Shared defaults used by the pipeline and the muxlog binary.
const (
	DefaultDelimiter     = ';'
	DefaultHighWaterMark = 16
	DefaultStageBuffer   = 16
	DefaultBranchBuffer  = 16
	DefaultOutputBuffer  = 64
	DefaultDiagBuffer    = 256
)

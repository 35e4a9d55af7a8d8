package core

const (
	// MinLevel and MaxLevel bound rule severity levels.
	MinLevel = 0
	MaxLevel = 16

	// MaxLineLength is the longest raw log line the engine accepts.
	// Longer lines are truncated before decoding.
	MaxLineLength = 65536

	// MaxCorrelationEventsPerKey bounds the timestamp history kept for
	// a single (rule, group key) pair between prunes.
	MaxCorrelationEventsPerKey = 4096
)

// Warning messages attached to ProcessingResult. These are informative
// outcomes, not errors.
const (
	WarnNoDecoderMatched = "no decoder matched the input line"
	WarnNoRuleMatched    = "line was decoded but matched no rule"
	WarnLineTruncated    = "input line exceeded the maximum length and was truncated"
)

// DecodeStatus classifies the decoding outcome of a request.
type DecodeStatus string

const (
	// DecodeStatusDecoded means at least one decoder fired.
	DecodeStatusDecoded DecodeStatus = "decoded"
	// DecodeStatusUnknown means no decoder matched; the event carries
	// no extracted fields. This is a normal outcome.
	DecodeStatusUnknown DecodeStatus = "unknown"
)

// String returns the string representation.
func (s DecodeStatus) String() string {
	return string(s)
}

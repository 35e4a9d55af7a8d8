package core

import "time"

// MatchResult carries the outcome of rule-tree evaluation: the most
// specific matching rule plus any fields the rule added to the event.
type MatchResult struct {
	RuleID      int               `json:"rule_id"`
	Level       int               `json:"level"`
	Description string            `json:"description,omitempty"`
	AddedFields map[string]string `json:"added_fields,omitempty"`
}

// ProcessingResult is the full answer for one analyzed log line. Every
// request on an open session yields exactly one ProcessingResult or
// one error, never both and never neither.
type ProcessingResult struct {
	SessionID   string            `json:"session_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Status      DecodeStatus      `json:"status"`
	DecoderPath []string          `json:"decoder_path,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Match       *MatchResult      `json:"match,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Matched reports whether any rule fired.
func (r *ProcessingResult) Matched() bool {
	return r.Match != nil
}

package session

import (
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"argus/core"
	"argus/detect"
	"argus/metrics"
)

// Processor runs analysis requests against sessions. Requests on the
// same session are serialized on the session mutex, so correlation
// history accumulates in submission order; requests on different
// sessions run concurrently.
type Processor struct {
	manager *Manager
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewProcessor creates a request processor bound to a session manager.
func NewProcessor(manager *Manager, logger *zap.SugaredLogger) *Processor {
	return &Processor{manager: manager, logger: logger, now: time.Now}
}

// Process decodes and matches one raw log line against the identified
// session. It mutates that session's correlation state on purpose:
// repeated calls build up history exactly as the live pipeline would.
// Matching nothing is a normal result; errors are limited to session
// lifecycle and malformed requests.
func (p *Processor) Process(sessionID, rawLine string) (*core.ProcessingResult, error) {
	if rawLine == "" {
		metrics.RequestsProcessed.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("%w: empty log line", core.ErrMalformedRequest)
	}

	s, err := p.manager.Get(sessionID)
	if err != nil {
		metrics.RequestsProcessed.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		metrics.RequestsProcessed.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, core.ErrUnknownSession
	}

	started := p.now()
	s.lastActive = started

	var warnings []string
	if len(rawLine) > core.MaxLineLength {
		rawLine = truncateLine(rawLine, core.MaxLineLength)
		warnings = append(warnings, core.WarnLineTruncated)
	}

	ev := core.NewEvent(rawLine, started)
	s.gen.Decoders.Decode(ev)

	result := &core.ProcessingResult{
		SessionID:   s.ID,
		Timestamp:   ev.Timestamp,
		Status:      core.DecodeStatusDecoded,
		DecoderPath: ev.DecoderPath,
		Fields:      ev.Fields,
	}
	if !ev.Decoded() {
		result.Status = core.DecodeStatusUnknown
		warnings = append(warnings, core.WarnNoDecoderMatched)
	}

	match := s.rules().Match(ev, s.corr)
	result.Match = match

	outcome := metrics.OutcomeMatched
	switch {
	case match != nil:
		for k, v := range match.AddedFields {
			result.Fields[k] = v
		}
	case ev.Decoded():
		outcome = metrics.OutcomeNoRule
		warnings = append(warnings, core.WarnNoRuleMatched)
	default:
		outcome = metrics.OutcomeNoDecoder
	}
	result.Warnings = warnings

	metrics.RequestsProcessed.WithLabelValues(outcome).Inc()
	metrics.ProcessingDuration.Observe(time.Since(started).Seconds())

	p.logger.Debugw("Request processed",
		"session_id", s.ID,
		"outcome", outcome,
		"decoders", len(ev.DecoderPath),
		"duration", time.Since(started))
	return result, nil
}

// PatchRules installs a session-private rule overlay: the session's
// base specs merged with the supplied rules, compiled into a tree only
// this session evaluates. Other sessions and the shared generation are
// unaffected. Patch and analysis requests on the same session are
// serialized together.
func (p *Processor) PatchRules(sessionID string, rules []detect.Spec) error {
	s, err := p.manager.Get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrUnknownSession
	}

	tree, err := s.gen.PatchRules(rules)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrMalformedRequest, err)
	}
	s.patched = tree
	s.lastActive = p.now()

	correlated := 0
	for i := range rules {
		if rules[i].Correlated() {
			correlated++
		}
	}

	metrics.RulePatches.Inc()
	p.logger.Infow("Session rules patched",
		"session_id", s.ID,
		"patched_rules", len(rules),
		"correlated_rules", correlated,
		"total_rules", tree.Len())
	return nil
}

// truncateLine cuts s to at most max bytes without splitting a UTF-8
// sequence: the cut backs up to the preceding rune boundary.
func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

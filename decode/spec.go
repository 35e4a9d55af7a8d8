// Package decode implements the decoder tree: a forest of pattern
// nodes that progressively extract named fields from raw log lines.
// Roots are tried in declaration order, first match wins per level,
// and a matching node's children refine the extraction.
package decode

// Offset selects the text a decoder's regex (or its children) run
// against.
type Offset string

const (
	// OffsetWholeLine evaluates against the full raw line (default).
	OffsetWholeLine Offset = "whole_line"
	// OffsetAfterPrematch evaluates the regex against the text that
	// follows this decoder's own prematch.
	OffsetAfterPrematch Offset = "after_prematch"
	// OffsetAfterParent evaluates against the text that follows the
	// parent decoder's match.
	OffsetAfterParent Offset = "after_parent"
)

// Spec is one decoder definition as loaded from the ruleset files.
// A decoder needs at least one of Prematch and Regex; Order names the
// fields filled from the regex capture groups, in group order.
type Spec struct {
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Parent   string   `yaml:"parent,omitempty" json:"parent,omitempty"`
	Prematch string   `yaml:"prematch,omitempty" json:"prematch,omitempty"`
	Regex    string   `yaml:"regex,omitempty" json:"regex,omitempty"`
	Order    []string `yaml:"order,omitempty" json:"order,omitempty" validate:"omitempty,dive,required"`
	Offset   Offset   `yaml:"offset,omitempty" json:"offset,omitempty" validate:"omitempty,oneof=whole_line after_prematch after_parent"`
}

// Package detect implements the rule tree and the per-session
// correlation state. Rules classify decoded events, relate to each
// other through if_sid parent linkage and if_matched_sid correlation,
// and may require a frequency of qualifying events inside a time
// window before they fire.
package detect

// FieldPredicate matches one decoded field against a pattern. With
// Negate set the predicate holds when the pattern does not match
// (including when the field is absent).
type FieldPredicate struct {
	Field   string `yaml:"field" json:"field" validate:"required"`
	Pattern string `yaml:"pattern" json:"pattern" validate:"required"`
	Negate  bool   `yaml:"negate,omitempty" json:"negate,omitempty"`
}

// ListLookup values for ListPredicate.
const (
	LookupMatch    = "match"
	LookupNotMatch = "not_match"
)

// ListPredicate checks a decoded field against a named lookup list by
// exact key. Lookup defaults to "match" (the key must be present).
type ListPredicate struct {
	Field  string `yaml:"field" json:"field" validate:"required"`
	List   string `yaml:"list" json:"list" validate:"required"`
	Lookup string `yaml:"lookup,omitempty" json:"lookup,omitempty" validate:"omitempty,oneof=match not_match"`
}

// Spec is one rule definition as loaded from the ruleset files.
//
// All predicates are conjunctive except AnyOf, which holds when at
// least one of its members does. IfSID makes the rule a child of the
// referenced rule: it is only attempted after the parent matched the
// same event. IfMatchedSID requires a match of the referenced rule to
// exist in the session's correlation state within Timeframe.
// Frequency requires Frequency qualifying events within Timeframe,
// grouped by the SameFields values.
type Spec struct {
	ID           int               `yaml:"id" json:"id" validate:"required,gt=0"`
	Level        int               `yaml:"level" json:"level" validate:"gte=0,lte=16"`
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	DecodedAs    string            `yaml:"decoded_as,omitempty" json:"decoded_as,omitempty"`
	Match        string            `yaml:"match,omitempty" json:"match,omitempty"`
	Regex        string            `yaml:"regex,omitempty" json:"regex,omitempty"`
	Fields       []FieldPredicate  `yaml:"fields,omitempty" json:"fields,omitempty" validate:"omitempty,dive"`
	AnyOf        []FieldPredicate  `yaml:"any_of,omitempty" json:"any_of,omitempty" validate:"omitempty,dive"`
	Lists        []ListPredicate   `yaml:"lists,omitempty" json:"lists,omitempty" validate:"omitempty,dive"`
	IfSID        int               `yaml:"if_sid,omitempty" json:"if_sid,omitempty" validate:"omitempty,gt=0"`
	IfMatchedSID int               `yaml:"if_matched_sid,omitempty" json:"if_matched_sid,omitempty" validate:"omitempty,gt=0"`
	Frequency    int               `yaml:"frequency,omitempty" json:"frequency,omitempty" validate:"omitempty,gte=2"`
	Timeframe    int               `yaml:"timeframe,omitempty" json:"timeframe,omitempty" validate:"omitempty,gt=0"`
	SameFields   []string          `yaml:"same_fields,omitempty" json:"same_fields,omitempty" validate:"omitempty,dive,required"`
	AddFields    map[string]string `yaml:"add_fields,omitempty" json:"add_fields,omitempty"`
}

// Correlated reports whether the rule carries time-window state
// (frequency or if_matched_sid).
func (s *Spec) Correlated() bool {
	return s.Frequency > 0 || s.IfMatchedSID > 0
}

// Package ruleset loads decoder, rule and lookup-list definitions and
// publishes them as immutable, versioned generations. Sessions hold a
// reference to the generation they were opened from; a reload
// publishes a new generation without touching existing sessions.
package ruleset

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"argus/cdb"
	"argus/decode"
	"argus/detect"
)

// maxRulesetFileSize bounds a single ruleset file. Ruleset files are
// operator-supplied but still pass through YAML parsing; a hard cap
// keeps a typo'd path from feeding gigabytes into the parser.
const maxRulesetFileSize = 16 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// decoderFile is the on-disk shape of a decoder file.
type decoderFile struct {
	Decoders []decode.Spec `yaml:"decoders"`
}

// ruleFile is the on-disk shape of a rule file.
type ruleFile struct {
	Rules []detect.Spec `yaml:"rules"`
}

// listFile is the on-disk shape of a lookup-list file.
type listFile struct {
	Lists []cdb.List `yaml:"lists"`
}

// LoadDecoders reads and validates a decoder file.
func LoadDecoders(path string) ([]decode.Spec, error) {
	var f decoderFile
	if err := readYAML(path, &f); err != nil {
		return nil, fmt.Errorf("decoders: %w", err)
	}
	if len(f.Decoders) == 0 {
		return nil, fmt.Errorf("decoders: %s defines no decoders", path)
	}
	for i, spec := range f.Decoders {
		if err := validate.Struct(spec); err != nil {
			return nil, fmt.Errorf("decoders: entry %d (%s): %w", i, spec.Name, err)
		}
	}
	return f.Decoders, nil
}

// LoadRules reads and validates a rule file.
func LoadRules(path string) ([]detect.Spec, error) {
	var f ruleFile
	if err := readYAML(path, &f); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules: %s defines no rules", path)
	}
	for i, spec := range f.Rules {
		if err := validate.Struct(spec); err != nil {
			return nil, fmt.Errorf("rules: entry %d (id %d): %w", i, spec.ID, err)
		}
	}
	return f.Rules, nil
}

// LoadLists reads and validates a lookup-list file. An empty path is
// allowed: lists are optional.
func LoadLists(path string) ([]cdb.List, error) {
	if path == "" {
		return nil, nil
	}
	var f listFile
	if err := readYAML(path, &f); err != nil {
		return nil, fmt.Errorf("lists: %w", err)
	}
	for i, l := range f.Lists {
		if err := validate.Struct(l); err != nil {
			return nil, fmt.Errorf("lists: entry %d (%s): %w", i, l.Name, err)
		}
	}
	return f.Lists, nil
}

// ValidatePatch validates rule specs supplied by a session rule patch.
// Patches reuse the rule-file schema but arrive from clients, so they
// get the same structural validation as a load.
func ValidatePatch(specs []detect.Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("rule patch contains no rules")
	}
	for i, spec := range specs {
		if err := validate.Struct(spec); err != nil {
			return fmt.Errorf("rule patch entry %d (id %d): %w", i, spec.ID, err)
		}
	}
	return nil
}

func readYAML(path string, out interface{}) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > maxRulesetFileSize {
		return fmt.Errorf("%s exceeds maximum ruleset file size", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

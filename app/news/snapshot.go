package news

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"
)

// KeywordGroup is one configured keyword rule. Any of Terms satisfies the
// group; when Expand is set, any of Expansions does too. Label is the
// keyword surfaced in output.
type KeywordGroup struct {
	Label      string   `yaml:"label" json:"label"`
	Terms      []string `yaml:"terms" json:"terms"`
	Expansions []string `yaml:"expansions,omitempty" json:"expansions,omitempty"`
	Expand     bool     `yaml:"expand,omitempty" json:"expand,omitempty"`
}

// Snapshot is the shared configuration resource read by the pipeline.
// Exactly one live snapshot is persisted process-wide; an override always
// replaces all four fields.
type Snapshot struct {
	Groups    []KeywordGroup `yaml:"groups" json:"groups"`
	Filters   []string       `yaml:"filters" json:"filters"`
	Platforms []string       `yaml:"platforms" json:"platforms"`
	Mode      Mode           `yaml:"mode" json:"mode"`
}

// Signature returns the configuration fingerprint scoping run history.
// Mode is excluded so runs over the same groups, filters and platforms
// share one history regardless of report mode.
func (s Snapshot) Signature() string {
	payload := struct {
		Groups    []KeywordGroup `yaml:"groups"`
		Filters   []string       `yaml:"filters"`
		Platforms []string       `yaml:"platforms"`
	}{
		Groups:    s.Groups,
		Filters:   s.Filters,
		Platforms: s.Platforms,
	}

	data, err := yaml.Marshal(payload)
	if err != nil {
		// yaml.Marshal cannot fail on this shape; fall back to an empty key
		return ""
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate checks that the snapshot is usable as a run override.
func (s Snapshot) Validate() error {
	if len(s.Groups) == 0 {
		return fmt.Errorf("at least one keyword group is required")
	}
	for i, group := range s.Groups {
		if group.Label == "" {
			return fmt.Errorf("keyword group at index %d has no label", i)
		}
		if len(group.Terms) == 0 {
			return fmt.Errorf("keyword group '%s' has no terms", group.Label)
		}
	}
	if len(s.Platforms) == 0 {
		return fmt.Errorf("at least one platform is required")
	}
	if s.Mode != "" && !ValidMode(s.Mode) {
		return fmt.Errorf("invalid report mode: %s", s.Mode)
	}
	return nil
}

// EffectiveMode resolves an unset mode to the default.
func (s Snapshot) EffectiveMode() Mode {
	if s.Mode == "" {
		return ModeCurrent
	}
	return s.Mode
}

package types

// Match is a partial pattern over a HealEvent: every key present here must
// equal the event's corresponding field for the playbook to match. Absent
// fields are wildcards.
type Match struct {
	Source   string            `yaml:"source,omitempty" json:"source,omitempty"`
	Kind     string            `yaml:"kind,omitempty" json:"kind,omitempty"`
	Severity string            `yaml:"severity,omitempty" json:"severity,omitempty"`
	Context  map[string]string `yaml:"context,omitempty" json:"context,omitempty"`
}

// ActionStep is one entry in a playbook's step sequence.
type ActionStep struct {
	Action string         `yaml:"action" json:"action"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// ValidateProbe references a post-condition check run after a playbook's
// steps apply successfully.
type ValidateProbe struct {
	Probe string         `yaml:"probe" json:"probe"`
	Args  map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
}

// Playbook is a declarative healing recipe: on Match, run Steps in order,
// then Validate if present. Loaded once at startup; immutable while in use.
type Playbook struct {
	Name        string         `yaml:"name" json:"name"`
	Rank        int            `yaml:"rank" json:"rank"`
	Match       Match          `yaml:"match" json:"match"`
	Steps       []ActionStep   `yaml:"steps" json:"steps"`
	Validate    *ValidateProbe `yaml:"validate,omitempty" json:"validate,omitempty"`
	CanaryScope string         `yaml:"canary_scope,omitempty" json:"canary_scope,omitempty"`
}

// PlaybookFile is the top-level YAML document shape from spec §6.
type PlaybookFile struct {
	Playbooks []Playbook `yaml:"playbooks"`
}

// Matches reports whether every field set in m is equal to the corresponding
// field of e. Absent Match fields (zero value) are wildcards.
func (m Match) Matches(e HealEvent) bool {
	if m.Source != "" && m.Source != e.Source {
		return false
	}
	if m.Kind != "" && m.Kind != e.Kind {
		return false
	}
	if m.Severity != "" && m.Severity != string(e.Severity) {
		return false
	}
	for k, v := range m.Context {
		got, ok := e.Get(k)
		if !ok {
			return false
		}
		if toStr(got) != v {
			return false
		}
	}
	return true
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return sprintValue(v)
	}
}

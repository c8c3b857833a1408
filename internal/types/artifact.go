package types

// Status is the lifecycle stage of a CapabilityArtifact (spec §3).
type Status string

const (
	StatusQuarantine Status = "quarantine"
	StatusShadow     Status = "shadow"
	StatusPromoted   Status = "promoted"
	StatusDeprecated Status = "deprecated"
	StatusFailed     Status = "failed"
)

// RiskClass is derived from static inspection of an artifact (spec §3).
type RiskClass string

const (
	RiskLow    RiskClass = "low"
	RiskMedium RiskClass = "medium"
	RiskHigh   RiskClass = "high"
)

// ArtifactMetadata is the metadata.json sidecar for a CapabilityArtifact.
type ArtifactMetadata struct {
	Name      string      `json:"name"`
	Version   string      `json:"version"`
	Status    Status      `json:"status"`
	Risk      RiskClass   `json:"risk"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
	Tests     TestResults `json:"tests"`
}

// SLO is the subset of a manifest.yaml that the promotion gate consults.
type SLO struct {
	MinCalls      int     `yaml:"min_calls" json:"min_calls"`
	P95LatencyMs  float64 `yaml:"p95_latency_ms" json:"p95_latency_ms"`
	MaxErrorRate  float64 `yaml:"max_error_rate" json:"max_error_rate"`
}

// DefaultSLO mirrors spec §4.2 gate 6 defaults.
func DefaultSLO() SLO {
	return SLO{MinCalls: 10, P95LatencyMs: 5000, MaxErrorRate: 0.10}
}

// Manifest is the optional manifest.yaml describing I/O schemas and SLOs.
type Manifest struct {
	SLO          SLO      `yaml:"slo" json:"slo"`
	InputSchema  string   `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	OutputSchema string   `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`
	ValidSchemas []string `yaml:"valid_schemas,omitempty" json:"valid_schemas,omitempty"`
}

// HasIOSchemas reports whether the manifest declares both directions of a
// validated schema (spec §4.2 gate 5).
func (m Manifest) HasIOSchemas() bool {
	if m.InputSchema == "" || m.OutputSchema == "" {
		return false
	}
	return inSet(m.ValidSchemas, m.InputSchema) && inSet(m.ValidSchemas, m.OutputSchema)
}

func inSet(set []string, v string) bool {
	if len(set) == 0 {
		// No restricted schema set declared: any non-empty schema name is
		// accepted as long as both directions are present.
		return v != ""
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// ToolBudget is the risk-keyed quota from spec §3.
type ToolBudget struct {
	MaxCallsPerHour   int
	MaxSideEffectByte int64
	MaxExecutionMs    int
}

// DefaultBudgets returns the spec-mandated defaults per risk class.
func DefaultBudgets() map[RiskClass]ToolBudget {
	return map[RiskClass]ToolBudget{
		RiskLow:    {MaxCallsPerHour: 1000, MaxSideEffectByte: 0, MaxExecutionMs: 5000},
		RiskMedium: {MaxCallsPerHour: 100, MaxSideEffectByte: 1 << 20, MaxExecutionMs: 10000},
		RiskHigh:   {MaxCallsPerHour: 10, MaxSideEffectByte: 1 << 20, MaxExecutionMs: 30000},
	}
}

// RiskPolicyEntry is one row of the risk policy table (spec §6).
type RiskPolicyEntry struct {
	Risk           RiskClass `json:"risk"`
	AllowedBrokers []string  `json:"allowed_brokers,omitempty"`
	AllowedTopics  []string  `json:"allowed_topics,omitempty"`
	PayloadSchema  any       `json:"payload_schema,omitempty"`
	ReadOnly       bool      `json:"read_only,omitempty"`
}

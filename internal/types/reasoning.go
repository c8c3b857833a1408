package types

// ReasoningMode governs the depth of deliberation the Reasoning Coordinator applies
// (spec §4.5).
type ReasoningMode string

const (
	ModeLight    ReasoningMode = "LIGHT"
	ModeStandard ReasoningMode = "STANDARD"
	ModeDeep     ReasoningMode = "DEEP"
	ModeCritical ReasoningMode = "CRITICAL"
)

// Verdict is the debate judge's output classification.
type Verdict string

const (
	VerdictApproved        Verdict = "approved"
	VerdictConditional     Verdict = "conditional"
	VerdictNeedsRevision   Verdict = "needs_revision"
	VerdictRejected        Verdict = "rejected"
)

// DebateVerdict is the judge's structured output (spec §4.5).
type DebateVerdict struct {
	Verdict           Verdict
	Confidence        float64
	RequiresRevision  bool
}

// RecommendedAction is the coordinator's closing recommendation.
type RecommendedAction string

const (
	ActionProceed           RecommendedAction = "proceed"
	ActionProceedMonitoring RecommendedAction = "proceed_with_monitoring"
	ActionGatherMoreData    RecommendedAction = "gather_more_data"
)

// RecommendedActionFor applies spec §4.5's confidence thresholds.
func RecommendedActionFor(confidence float64) RecommendedAction {
	switch {
	case confidence > 0.75:
		return ActionProceed
	case confidence > 0.5:
		return ActionProceedMonitoring
	default:
		return ActionGatherMoreData
	}
}

// ReasoningResult is the coordinator's decision record (spec §3).
type ReasoningResult struct {
	Decision             string
	AlternativesExplored int
	BestAlternative      string
	Confidence           float64
	VOIScore             float64
	ReasoningTrace       []string
	DebateVerdict        *DebateVerdict
	RecommendedAction    RecommendedAction
}

// Package alerts implements the ImprovementAlert queue (spec §3/§6):
// ingestion of improvement proposals, auto-approval arbitration, and the
// persistent approval queue a human reviewer (or an automated approver)
// drains. The write-replace persistence (temp file + rename, in-memory list
// guarded by a mutex) mirrors internal/state/store.go's persistLocked
// pattern, generalized from one document to a queue of pending alerts
// (spec §5, "Shared resources").
package alerts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kloros-ai/aic/internal/idgen"
	"github.com/kloros-ai/aic/internal/jsonl"
	"github.com/kloros-ai/aic/internal/logx"
	"github.com/kloros-ai/aic/internal/types"
)

// DebateFunc consults the Reasoning Coordinator for an auto-approval
// arbitration, mirroring governance.DebateLookup's injection shape:
// configured reports whether a debate was actually run (vs. the
// coordinator being unavailable), approved reports its verdict.
type DebateFunc func(improvement types.Improvement) (configured bool, approved bool)

// DefaultCriticalComponents names the components auto-approval never
// clears, regardless of confidence, unless SetCriticalComponents replaces
// the list (spec §9 Open Questions' auto-approval heuristic).
var DefaultCriticalComponents = []string{"authentication", "auth", "security", "credentials", "payments"}

// Queue owns the pending/approved/denied ImprovementAlert list and its
// on-disk persistence.
type Queue struct {
	mu                 sync.Mutex
	path               string
	alerts             []types.ImprovementAlert
	criticalComponents []string
	debate             DebateFunc
	now                func() time.Time
	log                *logx.Logger
}

// New opens (or creates) the approval queue file at path.
func New(path string, debate DebateFunc) (*Queue, error) {
	q := &Queue{
		path:               path,
		criticalComponents: append([]string(nil), DefaultCriticalComponents...),
		debate:             debate,
		now:                time.Now,
		log:                logx.New("alerts"),
	}
	if err := q.load(); err != nil {
		return nil, fmt.Errorf("alerts: load queue: %w", err)
	}
	return q, nil
}

type document struct {
	Alerts []types.ImprovementAlert `json:"alerts"`
}

func (q *Queue) load() error {
	var doc document
	if err := jsonl.ReadDocumentJSON(q.path, &doc); err != nil {
		return err
	}
	q.alerts = doc.Alerts
	return nil
}

func (q *Queue) persistLocked() error {
	return jsonl.WriteDocumentJSON(q.path, document{Alerts: q.alerts})
}

// SetCriticalComponents overrides the component names auto-approval always
// denies, regardless of confidence or risk.
func (q *Queue) SetCriticalComponents(names []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.criticalComponents = append([]string(nil), names...)
}

// Decision is the outcome of submitting an improvement for approval.
type Decision struct {
	Alert         types.ImprovementAlert
	AutoApproved  bool
	DenialReason  string
}

// Submit ingests an improvement proposal (spec §6): rejects it outright if
// it lacks implementation data, otherwise builds an ImprovementAlert, runs
// auto-approval arbitration, and enqueues it (approved or pending) into the
// persistent queue.
func (q *Queue) Submit(improvement types.Improvement) (Decision, error) {
	if !improvement.HasImplementationData() {
		return Decision{}, fmt.Errorf("alerts: %w: %s", types.ErrIngestionRejected, "Improvement missing implementation data")
	}

	confidence := improvement.Confidence
	alert := types.ImprovementAlert{
		RequestID:                 fmt.Sprintf("alert-%s", idgen.Short()),
		Component:                 improvement.Component,
		Description:               improvement.Description,
		ExpectedBenefit:           improvement.ExpectedBenefit,
		RiskLevel:                 improvement.RiskLevel,
		Confidence:                confidence,
		Urgency:                   types.UrgencyFromConfidence(confidence),
		DetectedAt:                q.now().UTC().Format(time.RFC3339),
		ParameterRecommendations:  improvement.ParameterRecommendations,
		Status:                    "pending",
	}

	approved, reason := q.arbitrate(improvement)
	if approved {
		alert.Status = "approved"
	}

	q.mu.Lock()
	q.alerts = append(q.alerts, alert)
	err := q.persistLocked()
	q.mu.Unlock()
	if err != nil {
		q.log.Warn("failed to persist approval queue", "err", err)
	}
	return Decision{Alert: alert, AutoApproved: approved, DenialReason: reason}, nil
}

// arbitrate decides whether improvement clears auto-approval. When a
// reasoning-coordinator debate is configured, its verdict is authoritative;
// otherwise the heuristic from spec §9's Open Questions applies: risk in
// {low, medium}, confidence >= 0.6, component not in the critical list.
func (q *Queue) arbitrate(improvement types.Improvement) (bool, string) {
	q.mu.Lock()
	critical := append([]string(nil), q.criticalComponents...)
	q.mu.Unlock()

	for _, c := range critical {
		if c == improvement.Component {
			return false, fmt.Sprintf("component %q is on the critical-components list", improvement.Component)
		}
	}

	if q.debate != nil {
		if configured, approved := q.debate(improvement); configured {
			if !approved {
				return false, "reasoning coordinator debate did not approve this improvement"
			}
			return true, ""
		}
	}

	if improvement.RiskLevel != types.RiskLow && improvement.RiskLevel != types.RiskMedium {
		return false, fmt.Sprintf("risk level %q is not auto-approvable", improvement.RiskLevel)
	}
	if improvement.Confidence < 0.6 {
		return false, fmt.Sprintf("confidence %.2f below auto-approval threshold 0.60", improvement.Confidence)
	}
	return true, ""
}

// Pending returns every alert still awaiting manual review, oldest first.
func (q *Queue) Pending() []types.ImprovementAlert {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []types.ImprovementAlert
	for _, a := range q.alerts {
		if a.Status == "pending" {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt < out[j].DetectedAt })
	return out
}

// Approve marks requestID approved, for a human reviewer clearing a
// pending alert. Returns an error if no alert with that request ID exists;
// the alert's current status is not checked.
func (q *Queue) Approve(requestID string) error {
	return q.setStatus(requestID, "approved")
}

// Deny marks requestID denied.
func (q *Queue) Deny(requestID string) error {
	return q.setStatus(requestID, "denied")
}

func (q *Queue) setStatus(requestID, status string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.alerts {
		if q.alerts[i].RequestID == requestID {
			q.alerts[i].Status = status
			return q.persistLocked()
		}
	}
	return fmt.Errorf("alerts: no alert with request_id %q", requestID)
}

// All returns every alert ever submitted, in submission order.
func (q *Queue) All() []types.ImprovementAlert {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.ImprovementAlert(nil), q.alerts...)
}

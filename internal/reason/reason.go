// Package reason implements the Reasoning Coordinator (spec §4.5) for
// structured deliberation. Governance, alerts, the bus, and deployment do
// not import it; governance and alerts take debate callbacks as injected
// function values instead. It composes Tree-of-Thought beam search, an
// MCTS/UCB1 variant for CRITICAL mode, proposer/critic/judge debate, and a
// Value-of-Information ranking with adaptive weights.
//
// The callback-injection shape (expansion/score/debate functions passed in
// rather than a domain-specific interface) follows the same pattern
// internal/bus.Handler and internal/governance's *Lookup function types use
// to keep this package free of compile-time dependencies on its callers.
package reason

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kloros-ai/aic/internal/types"
)

// Alternative is one candidate decision under consideration.
type Alternative struct {
	Name           string
	ExpectedGain   float64
	ExpectedCost   float64
	ExpectedRisk   float64
}

// ExpansionFunc produces an alternative's successors for beam/MCTS search.
// Depth is 0 at the root.
type ExpansionFunc func(a Alternative, depth int) ([]Alternative, error)

// ScoreFunc scores an alternative; higher is better.
type ScoreFunc func(a Alternative) (float64, error)

// Proposer, Critic, and Judge are the three debate callbacks (spec §4.5.2).
// Each receives the alternatives under debate and the prior round's
// transcript (empty on round 0) and returns this round's statement.
type Proposer func(alts []Alternative, transcript []string) (string, error)
type Critic func(alts []Alternative, transcript []string) (string, error)
type Judge func(alts []Alternative, transcript []string) (types.DebateVerdict, error)

// Weights are the adaptive VOI cost/risk weights (spec §4.5.3).
type Weights struct {
	Cost float64
	Risk float64
}

// DefaultWeights returns the starting weights before any outcome feedback.
func DefaultWeights() Weights {
	return Weights{Cost: 1.0, Risk: 1.0}
}

// outcomeWindow bounds how many recent outcomes WeightTracker averages over
// before adjusting weights (spec §4.5.3, "window of 10").
const outcomeWindow = 10

// WeightTracker adapts Weights from observed vs. expected cost/risk,
// clipped to the spec's bounds: cost in [0.5, 2.0], risk in [0.2, 2.0].
type WeightTracker struct {
	mu      sync.Mutex
	weights Weights
	costObs []float64 // observed - expected, most recent outcomeWindow
	riskObs []float64
}

// NewWeightTracker starts from DefaultWeights.
func NewWeightTracker() *WeightTracker {
	return &WeightTracker{weights: DefaultWeights()}
}

// Weights returns the current adaptive weights.
func (t *WeightTracker) Weights() Weights {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.weights
}

// Observe records one outcome's (expected, observed) cost and risk and
// rescales the weights when the rolling average deviates by >= 0.05.
func (t *WeightTracker) Observe(expectedCost, observedCost, expectedRisk, observedRisk float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.costObs = pushWindow(t.costObs, observedCost-expectedCost, outcomeWindow)
	t.riskObs = pushWindow(t.riskObs, observedRisk-expectedRisk, outcomeWindow)

	costDelta := average(t.costObs)
	riskDelta := average(t.riskObs)

	if costDelta >= 0.05 {
		t.weights.Cost = clip(t.weights.Cost*1.1, 0.5, 2.0)
	} else if costDelta <= -0.05 {
		t.weights.Cost = clip(t.weights.Cost*0.9, 0.5, 2.0)
	}
	if riskDelta >= 0.05 {
		t.weights.Risk = clip(t.weights.Risk*1.1, 0.2, 2.0)
	} else if riskDelta <= -0.05 {
		t.weights.Risk = clip(t.weights.Risk*0.9, 0.2, 2.0)
	}
}

func pushWindow(window []float64, v float64, max int) []float64 {
	window = append(window, v)
	if len(window) > max {
		window = window[len(window)-max:]
	}
	return window
}

func average(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// VOI computes a.ExpectedGain - (weights.Cost*a.ExpectedCost +
// weights.Risk*a.ExpectedRisk), the ranking scalar spec §4.5.3 defines.
func VOI(a Alternative, w Weights) float64 {
	return a.ExpectedGain - (w.Cost*a.ExpectedCost + w.Risk*a.ExpectedRisk)
}

// Coordinator is the Reasoning Coordinator's gateway.
type Coordinator struct {
	beamWidth  int
	maxDepth   int
	rounds     int
	weights    *WeightTracker
}

// New builds a Coordinator with the given beam width, max search depth, and
// debate round count.
func New(beamWidth, maxDepth, rounds int) *Coordinator {
	if beamWidth < 1 {
		beamWidth = 1
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	if rounds < 1 {
		rounds = 1
	}
	return &Coordinator{beamWidth: beamWidth, maxDepth: maxDepth, rounds: rounds, weights: NewWeightTracker()}
}

// Weights exposes the coordinator's adaptive VOI weights, e.g. for
// ObserveOutcome callers.
func (c *Coordinator) Weights() *WeightTracker { return c.weights }

// ReasonAboutAlternatives is the coordinator's single public entry point. On
// any primitive failure it recovers and falls back to a pure-VOI heuristic
// over alts, setting confidence to 0.5 (spec §4.5 "Failure semantics"),
// never propagating the failure to the caller.
func (c *Coordinator) ReasonAboutAlternatives(mode types.ReasoningMode, alts []Alternative, expand ExpansionFunc, score ScoreFunc, proposer Proposer, critic Critic, judge Judge) (result types.ReasoningResult) {
	defer func() {
		if r := recover(); r != nil {
			result = c.fallback(alts, fmt.Sprintf("recovered from panic: %v", r))
		}
	}()

	trace := []string{fmt.Sprintf("mode=%s alternatives=%d", mode, len(alts))}
	if len(alts) == 0 {
		return types.ReasoningResult{
			Decision: "", Confidence: 0.5, ReasoningTrace: append(trace, "no alternatives supplied"),
			RecommendedAction: types.RecommendedActionFor(0.5),
		}
	}

	candidates := alts
	var err error
	switch mode {
	case types.ModeDeep:
		candidates, err = c.beamSearch(alts, expand, score, trace2ptr(&trace))
	case types.ModeCritical:
		candidates, err = c.mcts(alts, expand, score, trace2ptr(&trace))
	default:
		// LIGHT and STANDARD rank the supplied alternatives directly.
	}
	if err != nil {
		return c.fallback(alts, err.Error())
	}

	ranked := c.rankByVOI(candidates)
	if len(ranked) == 0 {
		return c.fallback(alts, "no candidates survived ranking")
	}
	trace = append(trace, fmt.Sprintf("ranked %d candidates by VOI, top=%s voi=%.3f", len(ranked), ranked[0].alt.Name, ranked[0].voi))

	var debateVerdict *types.DebateVerdict
	if mode == types.ModeCritical && proposer != nil && critic != nil && judge != nil {
		top2 := ranked
		if len(top2) > 2 {
			top2 = top2[:2]
		}
		alts2 := make([]Alternative, len(top2))
		for i, r := range top2 {
			alts2[i] = r.alt
		}
		verdict, derr := c.debate(alts2, proposer, critic, judge, trace2ptr(&trace))
		if derr != nil {
			trace = append(trace, "debate failed: "+derr.Error())
		} else {
			debateVerdict = &verdict
		}
	}

	confidence := c.synthesizeConfidence(ranked, debateVerdict)
	best := ranked[0].alt
	return types.ReasoningResult{
		Decision:             best.Name,
		AlternativesExplored: len(candidates),
		BestAlternative:      best.Name,
		Confidence:           confidence,
		VOIScore:             ranked[0].voi,
		ReasoningTrace:       trace,
		DebateVerdict:        debateVerdict,
		RecommendedAction:    types.RecommendedActionFor(confidence),
	}
}

func trace2ptr(trace *[]string) func(string) {
	return func(line string) { *trace = append(*trace, line) }
}

// beamSearch implements Tree-of-Thought beam search (spec §4.5.1): at each
// depth, expand every retained candidate, score successors, retain the top
// beamWidth.
func (c *Coordinator) beamSearch(alts []Alternative, expand ExpansionFunc, score ScoreFunc, log func(string)) ([]Alternative, error) {
	if expand == nil || score == nil {
		return alts, nil
	}
	frontier := alts
	for depth := 0; depth < c.maxDepth; depth++ {
		var successors []Alternative
		for _, a := range frontier {
			next, err := expand(a, depth)
			if err != nil {
				return nil, fmt.Errorf("reason: beam expand at depth %d: %w", depth, err)
			}
			successors = append(successors, next...)
		}
		if len(successors) == 0 {
			break
		}
		scored, err := scoreAll(successors, score)
		if err != nil {
			return nil, err
		}
		sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
		if len(scored) > c.beamWidth {
			scored = scored[:c.beamWidth]
		}
		frontier = make([]Alternative, len(scored))
		for i, s := range scored {
			frontier[i] = s.alt
		}
		log(fmt.Sprintf("beam depth %d: retained %d of %d successors", depth, len(frontier), len(successors)))
	}
	return frontier, nil
}

type scored struct {
	alt   Alternative
	score float64
}

func scoreAll(alts []Alternative, score ScoreFunc) ([]scored, error) {
	out := make([]scored, len(alts))
	for i, a := range alts {
		s, err := score(a)
		if err != nil {
			return nil, fmt.Errorf("reason: score alternative %q: %w", a.Name, err)
		}
		out[i] = scored{alt: a, score: s}
	}
	return out, nil
}

// mctsNode tracks UCB1 statistics for one alternative in the CRITICAL-mode
// search (spec §4.5.1: exploration constant sqrt(2), unvisited preferred).
type mctsNode struct {
	alt    Alternative
	visits int
	value  float64
}

const ucb1Exploration = math.Sqrt2

// mcts runs a fixed number of simulations over alts and their expansions,
// selecting each step by UCB1 and backing up the scored value, then returns
// the visited alternatives ordered by mean value descending.
func (c *Coordinator) mcts(alts []Alternative, expand ExpansionFunc, score ScoreFunc, log func(string)) ([]Alternative, error) {
	if score == nil {
		return alts, nil
	}
	nodes := make([]*mctsNode, len(alts))
	for i, a := range alts {
		nodes[i] = &mctsNode{alt: a}
	}

	simulations := c.beamWidth * (c.maxDepth + 1) * 4
	if simulations < len(nodes) {
		simulations = len(nodes)
	}
	totalVisits := 0
	for sim := 0; sim < simulations; sim++ {
		idx := selectUCB1(nodes, totalVisits)
		node := nodes[idx]

		candidate := node.alt
		if expand != nil {
			successors, err := expand(node.alt, 0)
			if err != nil {
				return nil, fmt.Errorf("reason: mcts expand: %w", err)
			}
			if len(successors) > 0 {
				candidate = successors[sim%len(successors)]
			}
		}
		value, err := score(candidate)
		if err != nil {
			return nil, fmt.Errorf("reason: mcts score: %w", err)
		}
		node.visits++
		node.value += (value - node.value) / float64(node.visits)
		totalVisits++
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].value > nodes[j].value })
	result := make([]Alternative, len(nodes))
	for i, n := range nodes {
		result[i] = n.alt
	}
	log(fmt.Sprintf("mcts: %d simulations over %d alternatives", simulations, len(nodes)))
	return result, nil
}

func selectUCB1(nodes []*mctsNode, totalVisits int) int {
	best := -1
	bestScore := math.Inf(-1)
	for i, n := range nodes {
		if n.visits == 0 {
			return i // unvisited children preferred
		}
		exploit := n.value
		explore := ucb1Exploration * math.Sqrt(math.Log(float64(totalVisits+1))/float64(n.visits))
		s := exploit + explore
		if s > bestScore {
			bestScore = s
			best = i
		}
	}
	return best
}

type rankedAlt struct {
	alt Alternative
	voi float64
}

func (c *Coordinator) rankByVOI(alts []Alternative) []rankedAlt {
	w := c.weights.Weights()
	ranked := make([]rankedAlt, len(alts))
	for i, a := range alts {
		ranked[i] = rankedAlt{alt: a, voi: VOI(a, w)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].voi > ranked[j].voi })
	return ranked
}

// debate runs the proposer/critic/judge triple for c.rounds iterations over
// the top alternatives (spec §4.5.2).
func (c *Coordinator) debate(alts []Alternative, proposer Proposer, critic Critic, judge Judge, log func(string)) (types.DebateVerdict, error) {
	var transcript []string
	for round := 0; round < c.rounds; round++ {
		proposal, err := proposer(alts, transcript)
		if err != nil {
			return types.DebateVerdict{}, fmt.Errorf("reason: debate proposer round %d: %w", round, err)
		}
		transcript = append(transcript, "proposer: "+proposal)

		critique, err := critic(alts, transcript)
		if err != nil {
			return types.DebateVerdict{}, fmt.Errorf("reason: debate critic round %d: %w", round, err)
		}
		transcript = append(transcript, "critic: "+critique)
		log(fmt.Sprintf("debate round %d complete", round))
	}
	verdict, err := judge(alts, transcript)
	if err != nil {
		return types.DebateVerdict{}, fmt.Errorf("reason: debate judge: %w", err)
	}
	return verdict, nil
}

// synthesizeConfidence applies spec §4.5's confidence synthesis formula:
// base 0.5, +0.2 if top VOI >= 0.6, gap-based +-0.2 on |voi1-voi2|, averaged
// with the debate's confidence when one ran, clamped to [0,1].
func (c *Coordinator) synthesizeConfidence(ranked []rankedAlt, debate *types.DebateVerdict) float64 {
	confidence := 0.5
	if ranked[0].voi >= 0.6 {
		confidence += 0.2
	}
	if len(ranked) > 1 {
		gap := math.Abs(ranked[0].voi - ranked[1].voi)
		if gap >= 0.3 {
			confidence += 0.2
		} else {
			confidence -= 0.2
		}
	}
	if debate != nil {
		confidence = (confidence + debate.Confidence) / 2
	}
	return clip(confidence, 0, 1)
}

// fallback implements spec §4.5's failure semantics: a pure-VOI heuristic
// over alts with confidence fixed at 0.5, decision equal to the best
// alternative by value (gain) minus cost.
func (c *Coordinator) fallback(alts []Alternative, reason string) types.ReasoningResult {
	trace := []string{"fallback: " + reason}
	if len(alts) == 0 {
		return types.ReasoningResult{
			Confidence: 0.5, ReasoningTrace: trace,
			RecommendedAction: types.RecommendedActionFor(0.5),
		}
	}
	best := alts[0]
	bestValue := best.ExpectedGain - best.ExpectedCost
	for _, a := range alts[1:] {
		v := a.ExpectedGain - a.ExpectedCost
		if v > bestValue {
			best, bestValue = a, v
		}
	}
	trace = append(trace, fmt.Sprintf("heuristic best=%s value=%.3f", best.Name, bestValue))
	return types.ReasoningResult{
		Decision: best.Name, AlternativesExplored: len(alts), BestAlternative: best.Name,
		Confidence: 0.5, VOIScore: VOI(best, c.weights.Weights()), ReasoningTrace: trace,
		RecommendedAction: types.RecommendedActionFor(0.5),
	}
}

// AutoApprovalHeuristic implements the fallback auto-approval rule (spec §9
// Open Questions) used when the reasoning coordinator is unavailable: risk
// in {low, medium}, confidence >= 0.6, and component not in a critical-name
// list.
func AutoApprovalHeuristic(risk types.RiskClass, confidence float64, component string, criticalComponents []string) bool {
	if risk != types.RiskLow && risk != types.RiskMedium {
		return false
	}
	if confidence < 0.6 {
		return false
	}
	for _, c := range criticalComponents {
		if c == component {
			return false
		}
	}
	return true
}

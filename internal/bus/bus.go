// Package bus implements the Event Bus & Self-Heal Executor (spec §4.1): a
// non-blocking pub/sub with playbook matching, guardrails, and reversible
// action execution. The single worker goroutine draining a buffered
// channel mirrors internal/beam/workflow.go's single-writer dispatch loop,
// generalized from Temporal activities to heal actions: handlers push back
// onto the same queue instead of holding a reference to the bus (spec §9,
// "cyclic references... broken by message passing").
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kloros-ai/aic/internal/actions"
	"github.com/kloros-ai/aic/internal/logx"
	"github.com/kloros-ai/aic/internal/types"
)

// Handler is a synchronous callback invoked from the bus worker for every
// processed event. Panics are recovered and logged; they never reach the
// worker loop (spec §4.1).
type Handler func(types.HealEvent)

// Outcome is the structured record logged for every event's terminal state
// (spec §4.1 "State machine per event").
type Outcome struct {
	Event     types.HealEvent
	State     string // guardrail_denied|applied|validated|rolled_back|no_match
	Playbook  string
	Reason    string
}

// Bus is the process-wide event bus. One Bus per process; components reach
// it through core.Context, not a package-level singleton (spec §9).
type Bus struct {
	queue      chan types.HealEvent
	overflow   atomic.Int64
	handlersMu sync.Mutex
	handlers   []Handler

	playbooks  []types.Playbook
	playbooksMu sync.RWMutex

	guardrails *Guardrails
	registry   *actions.Registry
	log        *logx.Logger

	outcomesMu sync.Mutex
	outcomes   []Outcome

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopped  atomic.Bool
}

// New returns a Bus with a bounded queue of the given size (spec requires
// >=100) and starts its single worker goroutine.
func New(queueSize int, guardrails *Guardrails, registry *actions.Registry) *Bus {
	if queueSize < 100 {
		queueSize = 100
	}
	b := &Bus{
		queue:      make(chan types.HealEvent, queueSize),
		guardrails: guardrails,
		registry:   registry,
		log:        logx.New("bus"),
		stopCh:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// LoadPlaybooks replaces the active playbook set. Safe to call while the
// bus is running (spec §3, "reloadable on a signal"); in-flight processing
// uses whichever snapshot it already read.
func (b *Bus) LoadPlaybooks(playbooks []types.Playbook) {
	b.playbooksMu.Lock()
	defer b.playbooksMu.Unlock()
	b.playbooks = playbooks
}

func (b *Bus) snapshotPlaybooks() []types.Playbook {
	b.playbooksMu.RLock()
	defer b.playbooksMu.RUnlock()
	return b.playbooks
}

// Subscribe registers a handler invoked for every processed event, from the
// bus's worker goroutine.
func (b *Bus) Subscribe(h Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Emit is non-blocking: on a full queue it drops the event and increments
// the overflow counter rather than propagating backpressure to the
// producer (spec §4.1, §5, §8 property 2). Emit itself never panics.
func (b *Bus) Emit(event types.HealEvent) {
	if b.stopped.Load() {
		b.overflow.Add(1)
		return
	}
	select {
	case b.queue <- event:
	default:
		b.overflow.Add(1)
	}
}

// OverflowCount returns how many events have been dropped since start.
func (b *Bus) OverflowCount() int64 { return b.overflow.Load() }

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		select {
		case event, ok := <-b.queue:
			if !ok {
				return
			}
			b.dispatch(event)
		case <-b.stopCh:
			// Drain whatever is already queued before exiting, honoring
			// the graceful-shutdown deadline the caller enforces in Stop.
			for {
				select {
				case event, ok := <-b.queue:
					if !ok {
						return
					}
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(event types.HealEvent) {
	b.invokeHandlers(event)
	b.ProcessEvent(context.Background(), event)
}

func (b *Bus) invokeHandlers(event types.HealEvent) {
	b.handlersMu.Lock()
	handlers := append([]Handler(nil), b.handlers...)
	b.handlersMu.Unlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("handler panic", "event", event.ID, "recover", r)
				}
			}()
			h(event)
		}()
	}
}

// ProcessEvent runs spec §4.1's matching algorithm for one event: select
// the top-ranked matching playbook, run its steps under guardrails, and
// roll back on action or validation failure.
func (b *Bus) ProcessEvent(ctx context.Context, event types.HealEvent) Outcome {
	playbooks := b.snapshotPlaybooks()
	pb, matched := SelectPlaybook(playbooks, event)
	if !matched {
		return b.record(Outcome{Event: event, State: "no_match"})
	}

	var applied []struct {
		name   types.ActionName
		result types.Applied
	}
	for _, step := range pb.Steps {
		name := types.ActionName(step.Action)
		if reason := b.guardrails.Check(event.Source, name, step.Params); reason != "" {
			b.log.Warn("guardrail denied", "event", event.ID, "playbook", pb.Name, "action", name, "reason", reason)
			b.rollbackAll(ctx, applied)
			return b.record(Outcome{Event: event, State: "guardrail_denied", Playbook: pb.Name, Reason: reason})
		}
		if b.guardrails.Mode == types.ModeSafe {
			b.log.Info("executing step (SAFE mode)", "event", event.ID, "playbook", pb.Name, "action", name)
		}
		handler, ok := b.registry.Lookup(name)
		if !ok {
			b.rollbackAll(ctx, applied)
			return b.record(Outcome{Event: event, State: "guardrail_denied", Playbook: pb.Name,
				Reason: fmt.Sprintf("no handler registered for %s", name)})
		}
		result, err := handler.Apply(ctx, step.Params)
		if err != nil {
			b.log.Error("action failed", "event", event.ID, "playbook", pb.Name, "action", name, "err", err)
			b.rollbackAll(ctx, applied)
			return b.record(Outcome{Event: event, State: "rolled_back", Playbook: pb.Name, Reason: err.Error()})
		}
		applied = append(applied, struct {
			name   types.ActionName
			result types.Applied
		}{name, result})
	}

	if pb.Validate != nil {
		// The validate probe is resolved by name from the package-level
		// table that RegisterValidator fills; AIC ships no probes by
		// default, and an unregistered probe counts as a failure.
		ok := b.runValidate(ctx, *pb.Validate)
		if !ok {
			b.log.Warn("validation failed", "event", event.ID, "playbook", pb.Name, "probe", pb.Validate.Probe)
			b.rollbackAll(ctx, applied)
			return b.record(Outcome{Event: event, State: "rolled_back", Playbook: pb.Name, Reason: "validation failed"})
		}
		return b.record(Outcome{Event: event, State: "validated", Playbook: pb.Name})
	}
	return b.record(Outcome{Event: event, State: "applied", Playbook: pb.Name})
}

// Validator is resolved by probe name from a package-level table filled by
// RegisterValidator, so internal/bus has no compile-time dependency on what
// a probe inspects.
type Validator func(ctx context.Context, args map[string]any) bool

var validatorsMu sync.Mutex
var validators = map[string]Validator{}

// RegisterValidator installs a named validation probe, callable from any
// playbook's `validate.probe` field.
func RegisterValidator(name string, v Validator) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	validators[name] = v
}

func (b *Bus) runValidate(ctx context.Context, probe types.ValidateProbe) bool {
	validatorsMu.Lock()
	v, ok := validators[probe.Probe]
	validatorsMu.Unlock()
	if !ok {
		// An unresolvable probe cannot be confirmed to have passed: treat
		// it as a failure so the executor rolls back rather than silently
		// promoting an unvalidated change.
		return false
	}
	return v(ctx, probe.Args)
}

func (b *Bus) rollbackAll(ctx context.Context, applied []struct {
	name   types.ActionName
	result types.Applied
}) {
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		handler, ok := b.registry.Lookup(step.name)
		if !ok {
			continue
		}
		if err := handler.Rollback(ctx, step.result); err != nil {
			b.log.Error("rollback failed", "action", step.name, "err", err)
		}
	}
}

func (b *Bus) record(o Outcome) Outcome {
	b.outcomesMu.Lock()
	b.outcomes = append(b.outcomes, o)
	if len(b.outcomes) > 1000 {
		b.outcomes = b.outcomes[len(b.outcomes)-1000:]
	}
	b.outcomesMu.Unlock()
	return o
}

// Outcomes returns a snapshot of recent processing outcomes, newest last.
func (b *Bus) Outcomes() []Outcome {
	b.outcomesMu.Lock()
	defer b.outcomesMu.Unlock()
	return append([]Outcome(nil), b.outcomes...)
}

// Stop drains the queue up to deadline, then returns. Producers calling
// Emit after Stop has begun have their events counted as overflow (spec
// §5, "Shutdown is graceful").
func (b *Bus) Stop(deadline time.Duration) {
	if b.stopped.Swap(true) {
		return
	}
	close(b.stopCh)
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(deadline):
		b.log.Warn("shutdown deadline exceeded; interrupting worker")
	}
}

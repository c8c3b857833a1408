package types

// ActionName is drawn from the whitelist enumerated in spec §6. Unknown
// names are denied by the executor before any handler lookup occurs.
type ActionName string

const (
	ActionSetFlag               ActionName = "set_flag"
	ActionSetTimeout            ActionName = "set_timeout"
	ActionLowerThreshold        ActionName = "lower_threshold"
	ActionEnforceMuteWrapper    ActionName = "enforce_mute_wrapper"
	ActionEnableAck             ActionName = "enable_ack"
	ActionClearSwap             ActionName = "clear_swap"
	ActionKillDuplicateProcess  ActionName = "kill_duplicate_process"
	ActionKillStuckProcesses    ActionName = "kill_stuck_processes"
	ActionRestartService        ActionName = "restart_service"
	ActionAddMissingCall        ActionName = "add_missing_call"
	ActionAddNullCheck          ActionName = "add_null_check"
	ActionConsolidateDuplicates ActionName = "consolidate_duplicates"
)

// Whitelist enumerates exactly the actions spec §6 permits. Anything not in
// this set must be denied at the guardrail layer.
var Whitelist = map[ActionName]bool{
	ActionSetFlag:               true,
	ActionSetTimeout:            true,
	ActionLowerThreshold:        true,
	ActionEnforceMuteWrapper:    true,
	ActionEnableAck:             true,
	ActionClearSwap:             true,
	ActionKillDuplicateProcess:  true,
	ActionKillStuckProcesses:    true,
	ActionRestartService:        true,
	ActionAddMissingCall:        true,
	ActionAddNullCheck:          true,
	ActionConsolidateDuplicates: true,
}

// Applied is the result of a successful Action.Apply: carries whatever
// private state Rollback needs to undo the side effect. Opaque to the
// executor, owned by the action handler.
type Applied struct {
	RollbackData map[string]any
}

// Mode governs how aggressively the executor acts on a matched playbook.
type Mode string

const (
	ModeSafe   Mode = "SAFE"
	ModeAuto   Mode = "AUTO"
	ModeDryRun Mode = "DRY-RUN"
)

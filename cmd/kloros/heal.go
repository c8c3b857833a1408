package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/kloros-ai/aic/internal/bus"
	"github.com/kloros-ai/aic/internal/config"
	"github.com/kloros-ai/aic/internal/idgen"
	"github.com/kloros-ai/aic/internal/types"
)

func cmdHeal(args []string) int {
	if len(args) == 0 {
		usage()
		return exitInvalidInput
	}
	switch args[0] {
	case "dry-run":
		return cmdHealDryRun(args[1:])
	case "reload-playbooks":
		return cmdHealReloadPlaybooks(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "kloros heal: unknown subcommand %q\n", args[0])
		return exitInvalidInput
	}
}

// rawHealEvent mirrors the JSON shape of a HealEvent that an operator
// passes to --event: ts_wall/ts_mono are stamped by the CLI itself rather
// than required from the caller, since a dry run is exploratory.
type rawHealEvent struct {
	Source   string         `json:"source"`
	Kind     string         `json:"kind"`
	Severity string         `json:"severity"`
	Context  map[string]any `json:"context"`
}

// cmdHealDryRun runs spec §4.1's matching algorithm against the supplied
// event without invoking any action's Apply: it reports which playbook
// would be selected and what steps it would run (spec §6, "run the
// playbook matcher without side effects").
func cmdHealDryRun(args []string) int {
	fs := flag.NewFlagSet("heal dry-run", flag.ContinueOnError)
	eventJSON := fs.String("event", "", "JSON-encoded heal event {source,kind,severity,context}")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if *eventJSON == "" {
		fmt.Fprintln(os.Stderr, "kloros heal dry-run: --event is required")
		return exitInvalidInput
	}

	var raw rawHealEvent
	if err := json.Unmarshal([]byte(*eventJSON), &raw); err != nil {
		fmt.Fprintf(os.Stderr, "kloros heal dry-run: invalid --event JSON: %v\n", err)
		return exitInvalidInput
	}

	paths := config.LoadPaths()
	playbooks, err := config.LoadPlaybooks(paths.PlaybooksYAML)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros heal dry-run: load playbooks: %v\n", err)
		return exitRuntimeError
	}

	clock := idgen.NewClock()
	event := types.NewHealEvent(idgen.Short(), clock.NowMicros(), raw.Source, raw.Kind, types.Severity(raw.Severity), raw.Context)

	pb, matched := bus.SelectPlaybook(playbooks, event)
	result := map[string]any{"event": event}
	if !matched {
		result["matched"] = false
		return printJSON(result)
	}
	result["matched"] = true
	result["playbook"] = pb.Name
	result["rank"] = pb.Rank
	steps := make([]string, len(pb.Steps))
	for i, s := range pb.Steps {
		steps[i] = s.Action
	}
	result["steps"] = steps
	return printJSON(result)
}

// cmdHealReloadPlaybooks re-reads the playbook YAML file (spec §3,
// "reloadable on a signal"), exposed here as an explicit CLI verb — the
// SIGHUP-driven reload a long-running kloros process would wire is this
// same config.LoadPlaybooks call invoked from a signal handler.
func cmdHealReloadPlaybooks(args []string) int {
	paths := config.LoadPaths()
	playbooks, err := config.LoadPlaybooks(paths.PlaybooksYAML)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros heal reload-playbooks: %v\n", err)
		return exitRuntimeError
	}
	fmt.Printf("loaded %d playbooks from %s\n", len(playbooks), paths.PlaybooksYAML)
	return exitSuccess
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "kloros: encode output: %v\n", err)
		return exitRuntimeError
	}
	return exitSuccess
}

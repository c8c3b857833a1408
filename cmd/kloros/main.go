// Command kloros is the AIC CLI surface (spec §6): heal dry-run, synthesis
// governance queries and promotion, deployment, shadow test control, and
// telemetry export. Subcommand dispatch follows tools/si's root_commands.go
// idiom — each handler parsing its own flag.FlagSet — scaled down to a flat
// switch over AIC's much smaller surface.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kloros-ai/aic/internal/types"
)

// Exit codes (spec §6).
const (
	exitSuccess      = 0
	exitInvalidInput = 2
	exitGateFailure  = 3
	exitRuntimeError = 4
	exitRollback     = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	mode, configPath, rest := parseGlobalFlags(args)
	if mode != "" {
		if !validMode(mode) {
			fmt.Fprintf(os.Stderr, "kloros: invalid --mode %q (want SAFE, AUTO, or DRY-RUN)\n", mode)
			return exitInvalidInput
		}
		os.Setenv("KLR_HEAL_MODE", mode)
	}
	if configPath != "" {
		os.Setenv("KLR_HOME", configPath)
	}

	if len(rest) == 0 {
		usage()
		return exitInvalidInput
	}

	cmd, sub := rest[0], rest[1:]
	switch cmd {
	case "heal":
		return cmdHeal(sub)
	case "synth":
		return cmdSynth(sub)
	case "deploy":
		return cmdDeploy(sub)
	case "shadow":
		return cmdShadow(sub)
	case "telemetry":
		return cmdTelemetry(sub)
	default:
		fmt.Fprintf(os.Stderr, "kloros: unknown command %q\n", cmd)
		usage()
		return exitInvalidInput
	}
}

// parseGlobalFlags extracts --mode and --config wherever they appear in
// args (before or interleaved with the subcommand), returning the
// remaining positional args for subcommand dispatch.
func parseGlobalFlags(args []string) (mode, configPath string, rest []string) {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--mode" && i+1 < len(args):
			mode = strings.ToUpper(args[i+1])
			i++
		case strings.HasPrefix(args[i], "--mode="):
			mode = strings.ToUpper(strings.TrimPrefix(args[i], "--mode="))
		case args[i] == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		default:
			rest = append(rest, args[i])
			continue
		}
	}
	return mode, configPath, rest
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: kloros [--mode SAFE|AUTO|DRY-RUN] [--config <path>] <command> [args]

commands:
  heal dry-run --event <json>     run the playbook matcher without side effects
  heal reload-playbooks           re-read the playbook YAML file
  synth list [--status <status>]  list quarantined/promoted capability artifacts
  synth promote <name>            run promotion gates; exit 0 iff promotion succeeded
  deploy --improvement <json>     apply an improvement proposal
  shadow enable <name> --percent <p>
  shadow stats <name>
  shadow flip-traffic <name> --percent <p>
  shadow promote <name> <shadow-version>
  telemetry export                dump the current skill metrics snapshot as JSON`)
}

func validMode(m string) bool {
	switch types.Mode(m) {
	case types.ModeSafe, types.ModeAuto, types.ModeDryRun:
		return true
	default:
		return false
	}
}

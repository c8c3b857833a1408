package main

import (
	"fmt"
	"os"
)

func cmdTelemetry(args []string) int {
	if len(args) == 0 {
		usage()
		return exitInvalidInput
	}
	switch args[0] {
	case "export":
		return cmdTelemetryExport(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "kloros telemetry: unknown subcommand %q\n", args[0])
		return exitInvalidInput
	}
}

// cmdTelemetryExport flushes every tracked (skill, version) series to the
// skill_metrics.jsonl stream (SPEC_FULL.md's supplemented "telemetry
// export" command) and reports how many samples were written.
func cmdTelemetryExport(args []string) int {
	ctx, err := newCLIContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros telemetry export: %v\n", err)
		return exitRuntimeError
	}
	defer ctx.Close()

	n, err := ctx.Telemetry.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros telemetry export: %v\n", err)
		return exitRuntimeError
	}
	fmt.Printf("exported %d skill metric samples to %s\n", n, ctx.Paths.SkillMetricsLog)
	return exitSuccess
}

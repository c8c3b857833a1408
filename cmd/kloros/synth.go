package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/kloros-ai/aic/internal/core"
	"github.com/kloros-ai/aic/internal/types"
)

func cmdSynth(args []string) int {
	if len(args) == 0 {
		usage()
		return exitInvalidInput
	}
	switch args[0] {
	case "list":
		return cmdSynthList(args[1:])
	case "promote":
		return cmdSynthPromote(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "kloros synth: unknown subcommand %q\n", args[0])
		return exitInvalidInput
	}
}

func cmdSynthList(args []string) int {
	fs := flag.NewFlagSet("synth list", flag.ContinueOnError)
	status := fs.String("status", "", "filter by status: quarantine or promoted")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}

	ctx, err := newCLIContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros synth list: %v\n", err)
		return exitRuntimeError
	}
	defer ctx.Close()

	var out []string
	switch strings.ToLower(*status) {
	case "", "quarantine":
		quarantined, err := ctx.Governance.ListQuarantined()
		if err != nil {
			fmt.Fprintf(os.Stderr, "kloros synth list: %v\n", err)
			return exitRuntimeError
		}
		out = append(out, quarantined...)
		if strings.ToLower(*status) == "" {
			promoted, err := ctx.Governance.ListPromoted()
			if err != nil {
				fmt.Fprintf(os.Stderr, "kloros synth list: %v\n", err)
				return exitRuntimeError
			}
			out = append(out, promoted...)
		}
	case "promoted":
		promoted, err := ctx.Governance.ListPromoted()
		if err != nil {
			fmt.Fprintf(os.Stderr, "kloros synth list: %v\n", err)
			return exitRuntimeError
		}
		out = promoted
	default:
		fmt.Fprintf(os.Stderr, "kloros synth list: unknown --status %q\n", *status)
		return exitInvalidInput
	}

	for _, name := range out {
		fmt.Println(name)
	}
	return exitSuccess
}

func cmdSynthPromote(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "kloros synth promote: <name> is required")
		return exitInvalidInput
	}
	name := args[0]

	ctx, err := newCLIContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros synth promote: %v\n", err)
		return exitRuntimeError
	}
	defer ctx.Close()

	version, err := ctx.Governance.Promote(name, "")
	if err != nil {
		if errors.Is(err, types.ErrGateFailed) {
			fmt.Fprintf(os.Stderr, "kloros synth promote: gates failed: %v\n", err)
			return exitGateFailure
		}
		fmt.Fprintf(os.Stderr, "kloros synth promote: %v\n", err)
		return exitRuntimeError
	}
	fmt.Printf("promoted %s to version %s\n", name, version)
	return exitSuccess
}

// newCLIContext wires a core.Context using the process environment's
// configured paths (spec §6 env vars), with no Docker sandbox runner —
// commands that need shadow testing require a running daemon and are not
// exercised by the simple CLI entrypoint's own process.
func newCLIContext() (*core.Context, error) {
	envPath := os.Getenv("KLR_ENV_FILE")
	if envPath == "" {
		envPath = ".env"
	}
	repoRoot := os.Getenv("KLR_REPO_ROOT")
	if repoRoot == "" {
		var err error
		repoRoot, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine repo root: %w", err)
		}
	}
	return core.New(envPath, repoRoot, nil)
}

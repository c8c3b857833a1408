package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/kloros-ai/aic/internal/types"
)

func cmdDeploy(args []string) int {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	improvementJSON := fs.String("improvement", "", "JSON-encoded improvement proposal")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if *improvementJSON == "" {
		fmt.Fprintln(os.Stderr, "kloros deploy: --improvement is required")
		return exitInvalidInput
	}

	var improvement types.Improvement
	if err := json.Unmarshal([]byte(*improvementJSON), &improvement); err != nil {
		fmt.Fprintf(os.Stderr, "kloros deploy: invalid --improvement JSON: %v\n", err)
		return exitInvalidInput
	}
	if !improvement.HasImplementationData() {
		fmt.Fprintln(os.Stderr, "kloros deploy: improvement carries no apply_map, params, code, or changes")
		return exitInvalidInput
	}

	ctx, err := newCLIContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros deploy: %v\n", err)
		return exitRuntimeError
	}
	defer ctx.Close()

	envPath := os.Getenv("KLR_ENV_FILE")
	if envPath == "" {
		envPath = ".env"
	}
	plan := ctx.Deploy.Plan(improvement, envPath, nil)

	result, err := ctx.Deploy.Deploy(context.Background(), plan, improvement)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros deploy: %v\n", err)
		if result.RollbackPerformed {
			return exitRollback
		}
		return exitRuntimeError
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)

	switch {
	case result.Success:
		return exitSuccess
	case result.RollbackPerformed:
		return exitRollback
	default:
		return exitRuntimeError
	}
}

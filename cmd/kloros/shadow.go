package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kloros-ai/aic/internal/core"
	"github.com/kloros-ai/aic/internal/shadow"
)

func cmdShadow(args []string) int {
	if len(args) == 0 {
		usage()
		return exitInvalidInput
	}
	switch args[0] {
	case "enable":
		return cmdShadowEnable(args[1:])
	case "stats":
		return cmdShadowStats(args[1:])
	case "flip-traffic":
		return cmdShadowFlipTraffic(args[1:])
	case "promote":
		return cmdShadowPromote(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "kloros shadow: unknown subcommand %q\n", args[0])
		return exitInvalidInput
	}
}

// shadowCLIContext wires a core.Context with a live Docker sandbox runner,
// since every shadow subcommand needs one (spec §4.3, shadow execution runs
// in an isolated, network-disabled container).
func shadowCLIContext() (*core.Context, error) {
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
	image := os.Getenv("KLR_SHADOW_IMAGE")
	if image == "" {
		image = "golang:1.22-alpine"
	}
	sandbox, err := shadow.NewDockerSandbox(image)
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	return core.New(envPath, repoRoot, sandbox)
}

func cmdShadowEnable(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "kloros shadow enable: <name> is required")
		return exitInvalidInput
	}
	name := args[0]
	fs := flag.NewFlagSet("shadow enable", flag.ContinueOnError)
	percent := fs.Float64("percent", 0, "fraction of traffic to shadow, 0..1")
	if err := fs.Parse(args[1:]); err != nil {
		return exitInvalidInput
	}

	ctx, err := shadowCLIContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros shadow enable: %v\n", err)
		return exitRuntimeError
	}
	defer ctx.Close()

	if err := ctx.Shadow.EnableShadow(name, *percent); err != nil {
		fmt.Fprintf(os.Stderr, "kloros shadow enable: %v\n", err)
		return exitInvalidInput
	}
	fmt.Printf("shadow enabled for %s at %.0f%%\n", name, *percent*100)
	return exitSuccess
}

func cmdShadowStats(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "kloros shadow stats: <name> is required")
		return exitInvalidInput
	}
	name := args[0]

	ctx, err := shadowCLIContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros shadow stats: %v\n", err)
		return exitRuntimeError
	}
	defer ctx.Close()

	stats, err := ctx.Shadow.Stats(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros shadow stats: %v\n", err)
		return exitRuntimeError
	}
	fmt.Printf("samples=%d match_rate=%.3f error_rate=%.3f\n", stats.SampleCount, stats.MatchRate, stats.ErrorRate)
	return exitSuccess
}

// cmdShadowFlipTraffic adjusts the traffic percentage of an active
// versioned shadow route, the ramp-up step of an A/B rollout.
func cmdShadowFlipTraffic(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "kloros shadow flip-traffic: <name> is required")
		return exitInvalidInput
	}
	name := args[0]
	fs := flag.NewFlagSet("shadow flip-traffic", flag.ContinueOnError)
	percent := fs.Float64("percent", 0, "new fraction of traffic to route to the shadow version, 0..1")
	if err := fs.Parse(args[1:]); err != nil {
		return exitInvalidInput
	}

	ctx, err := shadowCLIContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros shadow flip-traffic: %v\n", err)
		return exitRuntimeError
	}
	defer ctx.Close()

	if err := ctx.Shadow.FlipTraffic(name, *percent); err != nil {
		fmt.Fprintf(os.Stderr, "kloros shadow flip-traffic: %v\n", err)
		return exitInvalidInput
	}
	fmt.Printf("traffic for %s flipped to %.0f%%\n", name, *percent*100)
	return exitSuccess
}

// cmdShadowPromote routes 100% of a tool's traffic to its shadow version,
// ending the A/B comparison in the shadow version's favor.
func cmdShadowPromote(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "kloros shadow promote: <name> <shadow-version> are required")
		return exitInvalidInput
	}
	name, version := args[0], args[1]

	ctx, err := shadowCLIContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kloros shadow promote: %v\n", err)
		return exitRuntimeError
	}
	defer ctx.Close()

	if err := ctx.Shadow.PromoteShadowToProduction(name, version); err != nil {
		fmt.Fprintf(os.Stderr, "kloros shadow promote: %v\n", err)
		return exitInvalidInput
	}
	fmt.Printf("%s promoted to production at version %s\n", name, version)
	return exitSuccess
}

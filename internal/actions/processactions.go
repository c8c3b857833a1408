package actions

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kloros-ai/aic/internal/k8sops"
	"github.com/kloros-ai/aic/internal/types"
)

// ClearSwap runs the swapoff/swapon cycle used to reclaim swap on the host;
// it has no meaningful rollback (freeing swap is not reversible), so
// Rollback is a documented no-op, matching spec §3's "repeated rollback is
// a no-op" contract for actions whose side effect cannot be undone.
type ClearSwap struct{}

func (a *ClearSwap) Apply(ctx context.Context, _ map[string]any) (types.Applied, error) {
	if err := exec.CommandContext(ctx, "swapoff", "-a").Run(); err != nil {
		return types.Applied{}, fmt.Errorf("%w: swapoff: %v", types.ErrActionFailed, err)
	}
	if err := exec.CommandContext(ctx, "swapon", "-a").Run(); err != nil {
		return types.Applied{}, fmt.Errorf("%w: swapon: %v", types.ErrActionFailed, err)
	}
	return types.Applied{}, nil
}
func (a *ClearSwap) Rollback(context.Context, types.Applied) error { return nil }

// KillDuplicateProcess, when params["label"] is set and a cluster is
// configured, deletes every pod matching that label if more than one of
// them is running. Otherwise it kills all but the lowest-pid process
// matching params["pattern"].
type KillDuplicateProcess struct{}

func (a *KillDuplicateProcess) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	pattern := stringParam(params, "pattern")
	if label := stringParam(params, "label"); label != "" {
		cli, err := k8sops.New()
		if err == nil {
			names, lerr := cli.PodNamesByLabel(ctx, label)
			if lerr != nil {
				return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, lerr)
			}
			if len(names) > 1 {
				n, derr := cli.DeletePodsByLabel(ctx, label)
				if derr != nil {
					return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, derr)
				}
				return types.Applied{RollbackData: map[string]any{"pods_deleted": n}}, nil
			}
			return types.Applied{}, nil
		}
		if !errors.Is(err, k8sops.ErrNoCluster) {
			return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
		}
	}
	if pattern == "" {
		return types.Applied{}, fmt.Errorf("%w: kill_duplicate_process requires pattern or label", types.ErrActionFailed)
	}
	killed, err := killAllButLowestPid(ctx, pattern)
	if err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	return types.Applied{RollbackData: map[string]any{"killed": killed}}, nil
}
func (a *KillDuplicateProcess) Rollback(context.Context, types.Applied) error { return nil }

// KillStuckProcesses kills every process matching params["pattern"].
type KillStuckProcesses struct{}

func (a *KillStuckProcesses) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	pattern := stringParam(params, "pattern")
	if pattern == "" {
		return types.Applied{}, fmt.Errorf("%w: kill_stuck_processes requires pattern", types.ErrActionFailed)
	}
	if err := exec.CommandContext(ctx, "pkill", "-f", pattern).Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			// pkill exits 1 when nothing matched: not a failure, there was
			// simply nothing stuck.
			return types.Applied{RollbackData: map[string]any{"pattern": pattern, "matched": false}}, nil
		}
		return types.Applied{}, fmt.Errorf("%w: pkill: %v", types.ErrActionFailed, err)
	}
	return types.Applied{RollbackData: map[string]any{"pattern": pattern, "matched": true}}, nil
}
func (a *KillStuckProcesses) Rollback(context.Context, types.Applied) error { return nil }

// RestartService restarts params["service"] — a Kubernetes Deployment
// rollout when a cluster is configured, otherwise a local systemd/process
// restart via "service <name> restart".
type RestartService struct{}

func (a *RestartService) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	service := stringParam(params, "service")
	if service == "" {
		return types.Applied{}, fmt.Errorf("%w: restart_service requires service", types.ErrActionFailed)
	}
	cli, err := k8sops.New()
	if err == nil {
		if rerr := cli.RestartDeploymentRollout(ctx, service); rerr != nil {
			return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, rerr)
		}
		return types.Applied{RollbackData: map[string]any{"service": service, "via": "k8s"}}, nil
	}
	if !errors.Is(err, k8sops.ErrNoCluster) {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	if rerr := exec.CommandContext(ctx, "service", service, "restart").Run(); rerr != nil {
		return types.Applied{}, fmt.Errorf("%w: service restart: %v", types.ErrActionFailed, rerr)
	}
	return types.Applied{RollbackData: map[string]any{"service": service, "via": "local"}}, nil
}
func (a *RestartService) Rollback(context.Context, types.Applied) error { return nil }

func killAllButLowestPid(ctx context.Context, pattern string) (int, error) {
	out, err := exec.CommandContext(ctx, "pgrep", "-f", pattern).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return 0, nil
		}
		return 0, err
	}
	pids := []int{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		if pid, perr := strconv.Atoi(strings.TrimSpace(line)); perr == nil {
			pids = append(pids, pid)
		}
	}
	if len(pids) < 2 {
		return 0, nil
	}
	lowest := pids[0]
	for _, p := range pids[1:] {
		if p < lowest {
			lowest = p
		}
	}
	killed := 0
	for _, p := range pids {
		if p == lowest {
			continue
		}
		if err := exec.CommandContext(ctx, "kill", strconv.Itoa(p)).Run(); err == nil {
			killed++
		}
	}
	return killed, nil
}

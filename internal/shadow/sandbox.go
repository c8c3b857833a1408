// Package shadow implements the Shadow Tester (spec §4.3): A/B execution of
// quarantined artifacts against a baseline, without side effects. Sandbox
// isolation is built on the Docker SDK the same way
// agents/shared/docker/client.go wraps it — NewClient's env-then-colima
// fallback, ContainerCreate/Start/Exec/RemoveContainer lifecycle — narrowed
// here to the single "run untrusted text in, text out" operation the
// comparator needs.
package shadow

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Runner executes a quarantined artifact's source against input text and
// returns its output, isolated from the host. Errors returned here count as
// an "exception was raised" event for the comparator (spec §4.3 rule 3).
type Runner interface {
	Run(ctx context.Context, source, input string) (output string, err error)
}

// DockerSandbox runs source as a standalone Go file inside a throwaway
// container, network-disabled and with a read-only root filesystem, so an
// artifact with static risk != low has no avenue to observable external
// state regardless of what it attempts (spec §4.3 "Isolation guarantee").
type DockerSandbox struct {
	api   *client.Client
	image string
}

// NewDockerSandbox connects to the local Docker daemon the way
// agents/shared/docker.NewClient does (client.FromEnv + API version
// negotiation), defaulting the sandbox image to golang:1.22-alpine so the
// artifact's source can be run directly via `go run`.
func NewDockerSandbox(image string) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("shadow: docker client: %w", err)
	}
	if image == "" {
		image = "golang:1.22-alpine"
	}
	return &DockerSandbox{api: cli, image: image}, nil
}

// Run starts a fresh container with networking disabled and a read-only
// rootfs (save for /tmp), streams source over stdin to /tmp/artifact.go,
// passes input as a base64-encoded env var so it survives the same stdin
// pipe source arrives on, and runs `go run /tmp/artifact.go`. The container
// is torn down unconditionally, win or lose.
func (s *DockerSandbox) Run(ctx context.Context, source, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := []string{"sh", "-c", "cat > /tmp/artifact.go && go run /tmp/artifact.go"}
	encodedInput := base64.StdEncoding.EncodeToString([]byte(input))
	resp, err := s.api.ContainerCreate(ctx, &container.Config{
		Image:           s.image,
		Cmd:             cmd,
		Env:             []string{"KLOROS_SHADOW_INPUT_B64=" + encodedInput},
		Tty:             false,
		OpenStdin:       true,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}, &container.HostConfig{
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,size=16m"},
		NetworkMode:    "none",
		AutoRemove:     false,
	}, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return "", fmt.Errorf("shadow: create sandbox container: %w", err)
	}
	defer func() {
		_ = s.api.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	attach, err := s.api.ContainerAttach(ctx, resp.ID, dockertypes.ContainerAttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("shadow: attach sandbox container: %w", err)
	}
	defer attach.Close()

	if err := s.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("shadow: start sandbox container: %w", err)
	}

	if _, err := attach.Conn.Write([]byte(source)); err != nil {
		return "", fmt.Errorf("shadow: write artifact source: %w", err)
	}
	if cw, ok := attach.Conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return "", fmt.Errorf("shadow: read sandbox output: %w", err)
	}

	statusCh, errCh := s.api.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("shadow: wait for sandbox: %w", err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return stdout.String(), fmt.Errorf("shadow: sandbox exited %d: %s", status.StatusCode, strings.TrimSpace(stderr.String()))
		}
	}
	return stdout.String(), nil
}

// Close releases the underlying Docker client.
func (s *DockerSandbox) Close() error {
	if s == nil || s.api == nil {
		return nil
	}
	return s.api.Close()
}

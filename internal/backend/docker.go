package backend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// DockerBackend runs each step as a container via the docker CLI.
type DockerBackend struct {
	// Binary is the docker executable; defaults to "docker".
	Binary string
}

func (d *DockerBackend) binary() string {
	if d.Binary == "" {
		return "docker"
	}
	return d.Binary
}

// Execute runs `docker run --rm <image> <args...>` and returns the
// container's exit code. Cancelling ctx kills the docker client process;
// the container itself is cleaned up by --rm when the daemon notices.
func (d *DockerBackend) Execute(ctx context.Context, req Request) (int, error) {
	cmd := exec.CommandContext(ctx, d.binary(), dockerArgs(req)...)
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	err := cmd.Run()
	if err != nil {
		// A kill from ctx surfaces as an ExitError; report it as the
		// cancellation it is, not as a step exit code.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("docker run %s: %w", req.Image, err)
	}
	return 0, nil
}

// dockerArgs builds the docker CLI argument list for a request.
func dockerArgs(req Request) []string {
	args := []string{"run", "--rm"}
	if req.Dir != "" {
		args = append(args, "-w", req.Dir)
	}
	if req.Entrypoint != "" {
		args = append(args, "--entrypoint", req.Entrypoint)
	}
	for _, e := range req.Env {
		args = append(args, "-e", e)
	}
	args = append(args, req.Image)
	args = append(args, req.Args...)
	return args
}

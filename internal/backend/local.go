package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// LocalBackend runs step arguments directly on the host instead of in a
// container. The step's image reference is ignored. Useful for dry-run
// style execution of pipelines whose steps are plain commands.
type LocalBackend struct{}

// Execute runs the step's argument list as a host command. The entrypoint,
// when set, becomes the program; otherwise args[0] does.
func (l *LocalBackend) Execute(ctx context.Context, req Request) (int, error) {
	prog, args, err := localCommand(req)
	if err != nil {
		return -1, err
	}

	cmd := exec.CommandContext(ctx, prog, args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	if err := cmd.Run(); err != nil {
		// A kill from ctx surfaces as an ExitError; report it as the
		// cancellation it is, not as a command exit code.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("exec %s: %w", prog, err)
	}
	return 0, nil
}

// localCommand splits a request into program and arguments.
func localCommand(req Request) (string, []string, error) {
	if req.Entrypoint != "" {
		return req.Entrypoint, req.Args, nil
	}
	if len(req.Args) == 0 {
		return "", nil, fmt.Errorf("step %s: no command to run locally (empty args, no entrypoint)", req.Image)
	}
	return req.Args[0], req.Args[1:], nil
}

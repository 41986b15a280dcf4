// Package backend launches pipeline steps. The engine treats a Backend as
// an opaque collaborator: it hands over a fully-resolved request and gets
// back an exit code.
package backend

import (
	"context"
	"io"
)

// Request describes one step execution.
type Request struct {
	Image      string
	Args       []string
	Env        []string
	Dir        string
	Entrypoint string
	Stdout     io.Writer
	Stderr     io.Writer
}

// Backend executes a step and reports its exit code. A non-nil error means
// the backend could not run the step at all (the step never produced an
// exit code). Implementations must honor ctx cancellation on a best-effort
// basis; a running external process may not stop immediately.
type Backend interface {
	Execute(ctx context.Context, req Request) (int, error)
}

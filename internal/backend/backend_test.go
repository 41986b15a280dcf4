package backend

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDockerArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "minimal",
			req:  Request{Image: "alpine", Args: []string{"echo", "hi"}},
			want: []string{"run", "--rm", "alpine", "echo", "hi"},
		},
		{
			name: "all options",
			req: Request{
				Image:      "gcr.io/proj/builder",
				Args:       []string{"build", "."},
				Dir:        "/workspace",
				Entrypoint: "bash",
				Env:        []string{"A=1", "B=2"},
			},
			want: []string{
				"run", "--rm",
				"-w", "/workspace",
				"--entrypoint", "bash",
				"-e", "A=1", "-e", "B=2",
				"gcr.io/proj/builder",
				"build", ".",
			},
		},
		{
			name: "no args",
			req:  Request{Image: "alpine"},
			want: []string{"run", "--rm", "alpine"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dockerArgs(tt.req)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("dockerArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalCommand(t *testing.T) {
	prog, args, err := localCommand(Request{Args: []string{"echo", "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prog != "echo" || !reflect.DeepEqual(args, []string{"hi"}) {
		t.Errorf("got %q %v", prog, args)
	}

	prog, args, err = localCommand(Request{Entrypoint: "bash", Args: []string{"-c", "true"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prog != "bash" || !reflect.DeepEqual(args, []string{"-c", "true"}) {
		t.Errorf("got %q %v", prog, args)
	}

	if _, _, err := localCommand(Request{Image: "alpine"}); err == nil {
		t.Error("expected error for empty args with no entrypoint")
	}
}

func TestLocalBackend_Execute(t *testing.T) {
	l := &LocalBackend{}

	var out strings.Builder
	code, err := l.Execute(context.Background(), Request{
		Args:   []string{"sh", "-c", "echo hello"},
		Stdout: &out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if strings.TrimSpace(out.String()) != "hello" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestLocalBackend_ExitCode(t *testing.T) {
	l := &LocalBackend{}
	code, err := l.Execute(context.Background(), Request{
		Args: []string{"sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestLocalBackend_InvocationError(t *testing.T) {
	l := &LocalBackend{}
	code, err := l.Execute(context.Background(), Request{
		Args: []string{"/nonexistent-binary-for-test"},
	})
	if err == nil {
		t.Fatal("expected invocation error")
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1", code)
	}
}

func TestLocalBackend_Cancel(t *testing.T) {
	l := &LocalBackend{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	code, err := l.Execute(ctx, Request{Args: []string{"sleep", "10"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error for killed process, got %v", err)
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1", code)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took too long: %s", elapsed)
	}
}

package toolexec

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/haasonsaas/nexus/pkg/events"
)

// maxCapturedOutput bounds stdout+stderr kept per bash observation, to
// avoid an unbounded log entry when a command is chatty.
const maxCapturedOutput = 64_000

// RunBash executes a BashAction in the given workspace and returns its
// BashObservation. It never returns a Go error for command failure: a
// non-zero exit, a timeout, or a missing shell are all reported as an
// observation with IsError/TimeoutOccurred set, since from the agent's
// point of view those are tool results, not executor faults.
func RunBash(ctx context.Context, workspace string, a events.BashAction) events.BashObservation {
	runCtx := ctx
	timedOut := false
	if a.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(a.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	resolver := Resolver{Root: workspace}
	dir := workspace
	if a.Cwd != "" {
		resolved, err := resolver.Resolve(a.Cwd)
		if err != nil {
			return events.BashObservation{Output: err.Error(), IsError: true}
		}
		dir = resolved
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", a.Command)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &out, max: maxCapturedOutput}
	cmd.Stderr = &limitedWriter{buf: &out, max: maxCapturedOutput}

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		timedOut = true
	}

	exitCode := 0
	isError := false
	if err != nil {
		isError = true
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return events.BashObservation{
		Output:          out.String(),
		ExitCode:        &exitCode,
		TimeoutOccurred: timedOut,
		IsError:         isError || timedOut,
	}
}

type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

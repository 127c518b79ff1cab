// Package hook runs the configured host command after a localisation run has
// been shut down by operator command.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a hook when none is configured.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when the command does not finish in time.
var ErrTimeout = errors.New("hook timed out")

// Event is written to the command's stdin as JSON.
type Event struct {
	RunID   string    `json:"run_id"`
	Reason  string    `json:"reason"`
	EndedAt time.Time `json:"ended_at"`
	LogDir  string    `json:"log_dir"`
}

// Hook is a host command with a timeout.
type Hook struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// New creates a Hook. A zero timeout uses DefaultTimeout.
func New(command string, args []string, timeout time.Duration) *Hook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Hook{Command: command, Args: args, Timeout: timeout}
}

// Enabled reports whether a command is configured.
func (h *Hook) Enabled() bool {
	return h != nil && strings.TrimSpace(h.Command) != ""
}

// String returns the command line.
func (h *Hook) String() string {
	return strings.TrimSpace(h.Command + " " + strings.Join(h.Args, " "))
}

// Run executes the command with ev on stdin and returns its stdout.
func (h *Hook) Run(ctx context.Context, ev Event) (string, error) {
	if !h.Enabled() {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.Command, h.Args...)

	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal hook event: %w", err)
	}
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.String(), fmt.Errorf("%w after %v: %s", ErrTimeout, h.Timeout, h)
	}

	if err != nil {
		if stderrStr := strings.TrimSpace(stderr.String()); stderrStr != "" {
			return stdout.String(), fmt.Errorf("hook %q failed: %w, stderr: %s", h, err, stderrStr)
		}
		return stdout.String(), fmt.Errorf("hook %q failed: %w", h, err)
	}

	return stdout.String(), nil
}

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// CommandInvoker shells out to an external provider. The request is written
// as JSON on stdin; the provider prints a Result as JSON on stdout. The core
// stays opaque to how the provider produces its output.
type CommandInvoker struct {
	command string
	args    []string
}

// NewCommandInvoker creates a CommandInvoker for the given argv.
func NewCommandInvoker(command string, args ...string) *CommandInvoker {
	return &CommandInvoker{command: command, args: args}
}

// Invoke runs the provider command once. Cancellation kills the process.
func (c *CommandInvoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("provider %s: %w (stderr: %s)", c.command, err, stderr.String())
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("provider %s returned malformed result: %w", c.command, err)
	}
	return &res, nil
}

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/retry"
	"github.com/pveith/trix/pkg/models"
)

// toolConfig is the action config for the tool kind. Script is a {{field}}
// template; multi-line content runs as an inline shell script, single-line
// content as a command with space-separated arguments.
type toolConfig struct {
	Script string `json:"script"`
}

// Tool runs a local command or inline script in response to an event. Exit
// codes other than zero are retryable; a script that cannot even be prepared
// is a permanent failure.
type Tool struct{}

func NewTool() *Tool { return &Tool{} }

func (t *Tool) Kind() string { return models.ActionTool }

func (t *Tool) Execute(ctx context.Context, job models.ActionJob) (string, error) {
	var cfg toolConfig
	if err := json.Unmarshal(job.Config, &cfg); err != nil {
		return "", retry.Permanent(fmt.Errorf("bad tool config: %w", err))
	}
	if strings.TrimSpace(cfg.Script) == "" {
		return "", retry.Permanent(fmt.Errorf("tool config has no script"))
	}

	script, err := renderTemplate(cfg.Script, job.Event)
	if err != nil {
		return "", retry.Permanent(err)
	}

	cmd, cleanup, err := buildCommand(ctx, job.ID, script)
	if err != nil {
		return "", retry.Permanent(err)
	}
	defer cleanup()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		logger.L().Warn("Tool execution failed",
			"job_id", job.ID, "exit_code", exitCode, "duration", duration.String(), "stderr", stderr.String())
		return stdout.String(), fmt.Errorf("tool exited with code %d: %w", exitCode, runErr)
	}

	logger.L().Debug("Tool executed", "job_id", job.ID, "duration", duration.String())
	return strings.TrimSpace(stdout.String()), nil
}

// buildCommand prepares the exec.Cmd for the rendered script. Inline scripts
// are written to a temporary executable file; cleanup removes it.
func buildCommand(ctx context.Context, jobID, script string) (*exec.Cmd, func(), error) {
	noop := func() {}

	inline := strings.ContainsAny(script, "\n\r")
	if !inline {
		parts := strings.Fields(script)
		if len(parts) == 0 {
			return nil, noop, fmt.Errorf("tool command is empty after rendering")
		}
		return exec.CommandContext(ctx, parts[0], parts[1:]...), noop, nil
	}

	tmp, err := os.CreateTemp("", fmt.Sprintf("trix_tool_%s_*.sh", jobID))
	if err != nil {
		return nil, noop, fmt.Errorf("create temp script: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if !strings.HasPrefix(script, "#!") {
		script = "#!/bin/sh\n" + script
	}
	if _, err := tmp.WriteString(script); err != nil {
		tmp.Close()
		cleanup()
		return nil, noop, fmt.Errorf("write temp script: %w", err)
	}
	tmp.Close()
	if err := os.Chmod(tmp.Name(), 0700); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("chmod temp script: %w", err)
	}

	return exec.CommandContext(ctx, tmp.Name()), cleanup, nil
}

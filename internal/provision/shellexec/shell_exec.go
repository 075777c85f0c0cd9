package shellexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
)

// ShellExecutor runs start commands as local processes. Arguments are passed
// to the program directly, no shell is involved.
type ShellExecutor struct {
	logger hclog.Logger
}

func NewShellExecutor(logger hclog.Logger) *ShellExecutor {
	return &ShellExecutor{logger: logger}
}

func (e *ShellExecutor) Run(ctx context.Context, cmd provision.Command) (provision.Result, error) {
	process := exec.CommandContext(ctx, cmd.Name, cmd.Args...)

	var stdout, stderr bytes.Buffer
	process.Stdout = &stdout
	process.Stderr = &stderr

	err := process.Run()

	result := provision.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if process.ProcessState != nil {
		result.ExitCode = process.ProcessState.ExitCode()
	}

	// a non-zero exit is reported through the exit code
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.logger.Debug("Process exited", "party", cmd.Party, "exit_code", result.ExitCode)
		return result, nil
	}
	if err != nil {
		return result, err
	}

	return result, nil
}

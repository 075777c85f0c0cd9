package provision

import (
	"context"
	"fmt"
)

// Result is what a backend reports for one finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type CommandExecutor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// CommandError describes a start command that did not succeed.
type CommandError struct {
	Party    string
	ExitCode int
	Stderr   string
	TimedOut bool
}

func (e *CommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("party %s: start command timed out", e.Party)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("party %s: exit code %d: %s", e.Party, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("party %s: exit code %d", e.Party, e.ExitCode)
}

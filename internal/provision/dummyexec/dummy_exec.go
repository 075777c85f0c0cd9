package dummyexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
)

type scripted struct {
	result provision.Result
	err    error
}

// DummyExecutor records start commands instead of running them.
// Results can be scripted per party; unscripted parties succeed.
type DummyExecutor struct {
	mu       sync.Mutex
	commands []provision.Command
	scripts  map[string]scripted
	delay    time.Duration
}

func NewDummyExecutor() *DummyExecutor {
	return &DummyExecutor{
		scripts: make(map[string]scripted),
	}
}

// Script sets what Run returns for the given party.
func (e *DummyExecutor) Script(party string, result provision.Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[party] = scripted{result: result, err: err}
}

// SetDelay makes every command take d, or until the context is done.
func (e *DummyExecutor) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

func (e *DummyExecutor) Run(ctx context.Context, cmd provision.Command) (provision.Result, error) {
	e.mu.Lock()
	e.commands = append(e.commands, cmd)
	script, exists := e.scripts[cmd.Party]
	delay := e.delay
	e.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return provision.Result{ExitCode: -1}, ctx.Err()
		case <-timer.C:
		}
	}

	if exists {
		return script.result, script.err
	}

	return provision.Result{Stdout: fmt.Sprintf("started %s", cmd.Party)}, nil
}

// Commands returns the commands seen so far in execution order.
func (e *DummyExecutor) Commands() []provision.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]provision.Command(nil), e.commands...)
}

func (e *DummyExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = nil
	e.scripts = make(map[string]scripted)
	e.delay = 0
}

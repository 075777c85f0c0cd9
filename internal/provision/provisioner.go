package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/registry"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

const DefaultCommandTimeout = 60 * time.Second

// CommandObserver is notified once per executed start command.
type CommandObserver interface {
	ObserveCommand(role model.Role, outcome string)
}

type Options struct {
	Binary         string
	CommandTimeout time.Duration
}

type ClusterProvisioner struct {
	logger   hclog.Logger
	registry *registry.NodeRegistry
	executor CommandExecutor
	eventBus *events.EventBus
	observer CommandObserver
	options  Options
}

func NewClusterProvisioner(logger hclog.Logger, nodeRegistry *registry.NodeRegistry, executor CommandExecutor,
	eventBus *events.EventBus, observer CommandObserver, options Options) *ClusterProvisioner {
	if options.Binary == "" {
		options.Binary = common.RAY_BINARY
	}
	if options.CommandTimeout <= 0 {
		options.CommandTimeout = DefaultCommandTimeout
	}

	return &ClusterProvisioner{
		logger:   logger,
		registry: nodeRegistry,
		executor: executor,
		eventBus: eventBus,
		observer: observer,
		options:  options,
	}
}

// CreateCluster starts every registered party, head first. The first failing command
// aborts the remaining ones; parties already started are left running.
func (p *ClusterProvisioner) CreateCluster(ctx context.Context) (string, error) {
	state := p.registry.State()
	if state.Head == nil {
		return "", model.NewConfigurationError("create_cluster", "no head node registered")
	}

	commands := BuildClusterCommands(p.options.Binary, state)
	for i, cmd := range commands {
		if err := p.runCommand(ctx, cmd); err != nil {
			if skipped := len(commands) - i - 1; skipped > 0 {
				p.logger.Warn("Aborting cluster creation", "skipped_parties", skipped)
			}
			return "", err
		}
	}

	p.logger.Info(fmt.Sprintf("Started %d parties", len(commands)))
	if p.eventBus != nil {
		p.eventBus.Publish(events.Event{
			Type: common.CLUSTER_CREATED_EVENT_TYPE,
			Data: events.ClusterCreatedEvent{Parties: state.PartyNames()},
		})
	}

	return common.PARTIES_CREATED_MESSAGE, nil
}

func (p *ClusterProvisioner) runCommand(ctx context.Context, cmd Command) error {
	cmdCtx, cancel := context.WithTimeout(ctx, p.options.CommandTimeout)
	defer cancel()

	p.logger.Info(fmt.Sprintf("Starting %s party %s", cmd.Role, cmd.Party), "command", cmd.String())

	result, err := p.executor.Run(cmdCtx, cmd)
	switch {
	case ctx.Err() != nil:
		p.observe(cmd.Role, OutcomeFailure)
		return model.NewProvisioningError("create_cluster", fmt.Sprintf("party %s: cancelled", cmd.Party), ctx.Err())
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
		p.observe(cmd.Role, OutcomeTimeout)
		p.logger.Error("Start command timed out", "party", cmd.Party, "timeout", p.options.CommandTimeout)
		cmdErr := &CommandError{Party: cmd.Party, ExitCode: result.ExitCode, Stderr: strings.TrimSpace(result.Stderr), TimedOut: true}
		return model.NewProvisioningError("create_cluster", "start command timed out", cmdErr)
	case err != nil:
		p.observe(cmd.Role, OutcomeFailure)
		p.logger.Error("Start command failed", "party", cmd.Party, "error", err)
		return model.NewProvisioningError("create_cluster", fmt.Sprintf("party %s", cmd.Party), err)
	case result.ExitCode != 0:
		p.observe(cmd.Role, OutcomeFailure)
		p.logger.Error("Start command exited with non-zero code", "party", cmd.Party,
			"exit_code", result.ExitCode, "stderr", result.Stderr)
		cmdErr := &CommandError{Party: cmd.Party, ExitCode: result.ExitCode, Stderr: strings.TrimSpace(result.Stderr)}
		return model.NewProvisioningError("create_cluster", "start command failed", cmdErr)
	}

	p.observe(cmd.Role, OutcomeSuccess)
	p.logger.Debug("Party started", "party", cmd.Party, "stdout", strings.TrimSpace(result.Stdout))

	return nil
}

func (p *ClusterProvisioner) observe(role model.Role, outcome string) {
	if p.observer != nil {
		p.observer.ObserveCommand(role, outcome)
	}
}

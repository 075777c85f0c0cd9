package monitor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/registry"
)

// Prober checks whether a party endpoint accepts connections.
type Prober interface {
	Probe(ctx context.Context, party *model.PartyRecord) error
}

type DialProber struct {
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context, party *model.PartyRecord) error {
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", party.Address())
	if err != nil {
		return err
	}
	return conn.Close()
}

// ClusterMonitor periodically probes every registered party and publishes a
// NodeStateChangeEvent whenever reachability changes.
type ClusterMonitor struct {
	logger        hclog.Logger
	registry      *registry.NodeRegistry
	prober        Prober
	eventBus      *events.EventBus
	schedule      string
	cronScheduler *cron.Cron

	mu     sync.Mutex
	states map[string]string
}

func NewClusterMonitor(logger hclog.Logger, nodeRegistry *registry.NodeRegistry, prober Prober,
	eventBus *events.EventBus, schedule string) *ClusterMonitor {
	return &ClusterMonitor{
		logger:        logger,
		registry:      nodeRegistry,
		prober:        prober,
		eventBus:      eventBus,
		schedule:      schedule,
		cronScheduler: cron.New(cron.WithSeconds()),
		states:        make(map[string]string),
	}
}

func (m *ClusterMonitor) Start() error {
	_, err := m.cronScheduler.AddFunc(m.schedule, func() { m.Check(context.Background()) })
	if err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", m.schedule, err)
	}

	m.cronScheduler.Start()
	m.logger.Info("Cluster monitor started", "schedule", m.schedule)

	return nil
}

// Stop halts the schedule and waits for a running check to finish.
func (m *ClusterMonitor) Stop() {
	<-m.cronScheduler.Stop().Done()
}

// Check probes all parties once. Parties seen for the first time count as a change.
func (m *ClusterMonitor) Check(ctx context.Context) {
	parties := m.registry.Parties()

	current := make(map[string]string, len(parties))
	for _, party := range parties {
		state := common.NODE_REACHABLE
		if err := m.prober.Probe(ctx, party); err != nil {
			state = common.NODE_UNREACHABLE
			m.logger.Debug("Party unreachable", "party", party.Name, "address", party.Address(), "error", err)
		}
		current[party.Name] = state
	}

	m.mu.Lock()
	change, changed := nodeStateChanges(m.states, current, parties)
	m.states = current
	m.mu.Unlock()

	if changed {
		m.logger.Info("Party reachability changed",
			"reachable", len(change.NodesReachable), "unreachable", len(change.NodesUnreachable))
		m.eventBus.Publish(events.Event{
			Type:      common.NODE_STATE_CHANGE_EVENT_TYPE,
			Timestamp: time.Now(),
			Data:      change,
		})
	}
}

// States returns the last observed state per party name.
func (m *ClusterMonitor) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]string, len(m.states))
	for name, state := range m.states {
		states[name] = state
	}
	return states
}

func nodeStateChanges(previous, current map[string]string, parties []*model.PartyRecord) (events.NodeStateChangeEvent, bool) {
	change := events.NodeStateChangeEvent{}
	for _, party := range parties {
		state := current[party.Name]
		if previous[party.Name] == state {
			continue
		}
		if state == common.NODE_REACHABLE {
			change.NodesReachable = append(change.NodesReachable, party)
		} else {
			change.NodesUnreachable = append(change.NodesUnreachable, party)
		}
	}

	return change, len(change.NodesReachable) > 0 || len(change.NodesUnreachable) > 0
}

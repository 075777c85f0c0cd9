package events

import (
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

// Event represents a generic event structure
type Event struct {
	Type      string
	Timestamp time.Time
	Data      interface{}
}

// NodeStateChangeEvent reports parties whose endpoint reachability changed
type NodeStateChangeEvent struct {
	NodesReachable   []*model.PartyRecord
	NodesUnreachable []*model.PartyRecord
}

// ClusterCreatedEvent is published after every start command succeeded
type ClusterCreatedEvent struct {
	Parties []string
}

// SessionInitializedEvent is published after the runtime and secure device are up
type SessionInitializedEvent struct {
	Parties []string
}

// RunFinishedEvent is published when a pipeline run ends, successfully or not
type RunFinishedEvent struct {
	Result *model.TrainingResult
	Err    error
}

// Types lists every event type the orchestrator publishes
func Types() []string {
	return []string{
		common.NODE_STATE_CHANGE_EVENT_TYPE,
		common.CLUSTER_CREATED_EVENT_TYPE,
		common.SESSION_INITIALIZED_EVENT_TYPE,
		common.RUN_FINISHED_EVENT_TYPE,
	}
}

// EventBus represents the event bus that handles event subscription and dispatching
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Event
}

// NewEventBus creates a new instance of the event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe adds a new subscriber for a given event type
func (eb *EventBus) Subscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Publish sends an event to all subscribers of a given event type.
// Subscribers whose buffer is full miss the event instead of blocking the publisher.
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, subscriber := range eb.subscribers[event.Type] {
		select {
		case subscriber <- event:
		default:
		}
	}
}

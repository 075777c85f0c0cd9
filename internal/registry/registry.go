package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

// NodeRegistry keeps the parties registered for the next cluster: one head and
// an ordered list of workers.
type NodeRegistry struct {
	mu      sync.RWMutex
	head    *model.PartyRecord
	workers []*model.PartyRecord
}

func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{}
}

// AddNode registers a party. A head replaces the current head; a worker is appended.
func (r *NodeRegistry) AddNode(record model.PartyRecord) (string, error) {
	if err := validateRecord(&record); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameTaken(record.Name, record.Role) {
		return "", model.NewValidationError("add_node", fmt.Sprintf("party name %q is already registered", record.Name))
	}

	if record.Role == model.RoleHead {
		r.head = &record
	} else {
		r.workers = append(r.workers, &record)
	}

	return common.NodeAddedMessage(record.Name), nil
}

// nameTaken reports whether name belongs to a slot the new record would not replace.
func (r *NodeRegistry) nameTaken(name string, role model.Role) bool {
	if r.head != nil && r.head.Name == name && role != model.RoleHead {
		return true
	}
	for _, worker := range r.workers {
		if worker.Name == name {
			return true
		}
	}
	return false
}

func (r *NodeRegistry) Head() *model.PartyRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.head == nil {
		return nil
	}
	head := *r.head
	return &head
}

// State returns a copy of the cluster state.
func (r *NodeRegistry) State() *model.ClusterState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := &model.ClusterState{Workers: make([]*model.PartyRecord, 0, len(r.workers))}
	if r.head != nil {
		head := *r.head
		state.Head = &head
	}
	for _, worker := range r.workers {
		w := *worker
		state.Workers = append(state.Workers, &w)
	}
	return state
}

// Parties returns the head followed by the workers in registration order.
func (r *NodeRegistry) Parties() []*model.PartyRecord {
	return r.State().Parties()
}

func (r *NodeRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = nil
	r.workers = nil
}

func validateRecord(record *model.PartyRecord) error {
	record.Name = strings.TrimSpace(record.Name)
	if record.Name == "" {
		return model.NewValidationError("add_node", "name is required")
	}
	if !record.Role.Valid() {
		return model.NewValidationError("add_node", fmt.Sprintf("node_type must be %q or %q, got %q",
			model.RoleHead, model.RoleWorker, record.Role))
	}
	if record.Ip == "" {
		record.Ip = common.DEFAULT_PARTY_IP
	}
	if record.Port <= 0 || record.Port > 65535 {
		return model.NewValidationError("add_node", fmt.Sprintf("port out of range: %d", record.Port))
	}
	if record.Resources < 0 {
		return model.NewValidationError("add_node", fmt.Sprintf("resources must not be negative: %d", record.Resources))
	}
	return nil
}

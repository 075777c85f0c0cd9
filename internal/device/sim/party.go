package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

// partyDevice is the endpoint of one party. Its objects never leave it
// except through Fetch or as input to a secure device it is a member of.
type partyDevice struct {
	runtime *Runtime
	gen     uint64
	name    string

	mu      sync.RWMutex
	objects map[string]any
}

func newPartyDevice(runtime *Runtime, gen uint64, name string) *partyDevice {
	return &partyDevice{
		runtime: runtime,
		gen:     gen,
		name:    name,
		objects: make(map[string]any),
	}
}

func (p *partyDevice) Name() string {
	return p.name
}

func (p *partyDevice) Submit(ctx context.Context, c device.Computation) (*device.Future, error) {
	return p.runtime.execute(ctx, p.gen, p.name, &partyEnv{party: p}, c, p.store)
}

func (p *partyDevice) Fetch(ctx context.Context, f *device.Future) (any, error) {
	if f.Ref().Owner != p.name {
		return nil, model.NewSecureComputeError("fetch", fmt.Sprintf("object %s is held by %s, not %s",
			f.Ref().ID, f.Ref().Owner, p.name), nil)
	}
	if err := f.Await(ctx); err != nil {
		return nil, model.NewSecureComputeError("fetch", p.name, err)
	}
	return p.value(f.Ref().ID)
}

func (p *partyDevice) store(id string, value any) error {
	if !p.runtime.isLive(p.gen) {
		return fmt.Errorf("endpoint %s is not live", p.name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[id] = value
	return nil
}

func (p *partyDevice) value(id string) (any, error) {
	if !p.runtime.isLive(p.gen) {
		return nil, model.NewSecureComputeError("fetch", fmt.Sprintf("endpoint %s is not live", p.name), nil)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, exists := p.objects[id]
	if !exists {
		return nil, model.NewSecureComputeError("fetch", fmt.Sprintf("unknown object %s on %s", id, p.name), nil)
	}
	return value, nil
}

func (p *partyDevice) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects = make(map[string]any)
}

type partyEnv struct {
	party *partyDevice
}

func (e *partyEnv) Device() string {
	return e.party.name
}

// Resolve only reaches objects of the executing party.
func (e *partyEnv) Resolve(ctx context.Context, f *device.Future) (any, error) {
	if f.Ref().Owner != e.party.name {
		return nil, fmt.Errorf("party %s cannot read object held by %s", e.party.name, f.Ref().Owner)
	}
	if err := f.Await(ctx); err != nil {
		return nil, err
	}
	return e.party.value(f.Ref().ID)
}

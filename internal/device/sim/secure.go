package sim

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

// secureDevice holds every object as additive shares spread over its member parties.
// Values only exist in the clear while a computation runs and when revealed with Fetch.
type secureDevice struct {
	runtime *Runtime
	gen     uint64
	members map[string]*partyDevice
	names   []string

	mu      sync.RWMutex
	objects map[string]*sharedMatrix
}

func newSecureDevice(runtime *Runtime, gen uint64, members []*partyDevice) *secureDevice {
	s := &secureDevice{
		runtime: runtime,
		gen:     gen,
		members: make(map[string]*partyDevice, len(members)),
		objects: make(map[string]*sharedMatrix),
	}
	for _, member := range members {
		s.members[member.name] = member
		s.names = append(s.names, member.name)
	}
	return s
}

func (s *secureDevice) Name() string {
	return SecureDeviceName
}

func (s *secureDevice) Parties() []string {
	return append([]string(nil), s.names...)
}

func (s *secureDevice) Submit(ctx context.Context, c device.Computation) (*device.Future, error) {
	return s.runtime.execute(ctx, s.gen, SecureDeviceName, &secureEnv{spu: s}, c, s.store)
}

// Fetch reconstructs the object from all shares.
func (s *secureDevice) Fetch(ctx context.Context, f *device.Future) (any, error) {
	if f.Ref().Owner != SecureDeviceName {
		return nil, model.NewSecureComputeError("reveal", fmt.Sprintf("object %s is held by %s", f.Ref().ID, f.Ref().Owner), nil)
	}
	if err := f.Await(ctx); err != nil {
		return nil, model.NewSecureComputeError("reveal", SecureDeviceName, err)
	}
	value, err := s.value(f.Ref().ID)
	if err != nil {
		return nil, model.NewSecureComputeError("reveal", SecureDeviceName, err)
	}
	return value, nil
}

func (s *secureDevice) store(id string, value any) error {
	m, ok := value.(*mat.Dense)
	if !ok {
		return fmt.Errorf("secure device stores matrices only, got %T", value)
	}
	shared, err := s.share(id, m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = shared
	return nil
}

func (s *secureDevice) share(id string, m *mat.Dense) (*sharedMatrix, error) {
	key := s.runtime.key()
	if !s.runtime.isLive(s.gen) || key == nil {
		return nil, fmt.Errorf("secure device is not live")
	}
	return shareMatrix(key, s.names, id, m)
}

func (s *secureDevice) value(id string) (*mat.Dense, error) {
	if !s.runtime.isLive(s.gen) {
		return nil, fmt.Errorf("secure device is not live")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	shared, exists := s.objects[id]
	if !exists {
		return nil, fmt.Errorf("unknown object %s", id)
	}
	return shared.reconstruct(), nil
}

func (s *secureDevice) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*sharedMatrix)
}

type secureEnv struct {
	spu *secureDevice
}

func (e *secureEnv) Device() string {
	return SecureDeviceName
}

// Resolve accepts objects of the secure device itself and of its member parties.
// Party objects are secret-shared on the way in.
func (e *secureEnv) Resolve(ctx context.Context, f *device.Future) (any, error) {
	if err := f.Await(ctx); err != nil {
		return nil, err
	}

	owner := f.Ref().Owner
	if owner == SecureDeviceName {
		return e.spu.value(f.Ref().ID)
	}

	party, isMember := e.spu.members[owner]
	if !isMember {
		return nil, fmt.Errorf("party %s is not part of the secure device", owner)
	}
	value, err := party.value(f.Ref().ID)
	if err != nil {
		return nil, err
	}
	m, ok := value.(*mat.Dense)
	if !ok {
		return nil, fmt.Errorf("object %s of %s is not a matrix", f.Ref().ID, owner)
	}

	shared, err := e.spu.share(f.Ref().ID+"/input", m)
	if err != nil {
		return nil, err
	}
	return shared.reconstruct(), nil
}

package sim

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

const SecureDeviceName = "spu"

// Runtime runs every party endpoint inside the current process. Party objects
// are kept per device; the secure device keeps its objects as additive shares.
type Runtime struct {
	logger hclog.Logger

	mu        sync.RWMutex
	live      bool
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	masterKey []byte
	parties   map[string]*partyDevice
	order     []string
	secure    []*secureDevice
}

func NewRuntime(logger hclog.Logger) *Runtime {
	return &Runtime{
		logger:  logger,
		parties: make(map[string]*partyDevice),
	}
}

func (r *Runtime) Start(ctx context.Context, names []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(names) == 0 {
		return model.NewSecureComputeError("start", "no party names", nil)
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || name == SecureDeviceName {
			return model.NewSecureComputeError("start", fmt.Sprintf("invalid party name %q", name), nil)
		}
		if seen[name] {
			return model.NewSecureComputeError("start", fmt.Sprintf("duplicate party name %q", name), nil)
		}
		seen[name] = true
	}

	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		return model.NewSecureComputeError("start", "generating share key", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.live {
		return model.NewSecureComputeError("start", "runtime already started", nil)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.masterKey = masterKey
	r.parties = make(map[string]*partyDevice, len(names))
	r.order = append([]string(nil), names...)
	r.secure = nil
	r.gen++
	for _, name := range names {
		r.parties[name] = newPartyDevice(r, r.gen, name)
	}
	r.live = true

	r.logger.Info(fmt.Sprintf("Runtime started with %d party endpoints", len(names)), "parties", names)

	return nil
}

func (r *Runtime) Handle(name string) (device.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.live {
		return nil, model.NewSecureComputeError("handle", "runtime not started", nil)
	}
	party, exists := r.parties[name]
	if !exists {
		return nil, model.NewSecureComputeError("handle", fmt.Sprintf("no endpoint bound for %q", name), nil)
	}
	return party, nil
}

func (r *Runtime) NewSecureDevice(handles []device.Handle) (device.SecureDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.live {
		return nil, model.NewSecureComputeError("secure_device", "runtime not started", nil)
	}
	if len(handles) == 0 {
		return nil, model.NewSecureComputeError("secure_device", "no party handles", nil)
	}

	members := make([]*partyDevice, 0, len(handles))
	for _, handle := range handles {
		party, ok := handle.(*partyDevice)
		if !ok || r.parties[party.name] != party {
			return nil, model.NewSecureComputeError("secure_device",
				fmt.Sprintf("handle %q does not belong to this runtime", handle.Name()), nil)
		}
		members = append(members, party)
	}

	spu := newSecureDevice(r, r.gen, members)
	r.secure = append(r.secure, spu)
	return spu, nil
}

// Shutdown stops all endpoints. Pending computations are cancelled and
// handles created by this runtime refuse further work.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.live {
		return nil
	}

	r.cancel()
	r.live = false
	for _, party := range r.parties {
		party.clear()
	}
	for _, spu := range r.secure {
		spu.clear()
	}
	r.masterKey = nil

	r.logger.Info("Runtime shut down")

	return nil
}

// isLive reports whether endpoints created in generation gen still accept work.
func (r *Runtime) isLive(gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live && r.gen == gen
}

func (r *Runtime) key() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.masterKey
}

// execute runs c asynchronously for the device named owner and stores its result with store.
func (r *Runtime) execute(ctx context.Context, gen uint64, owner string, env device.Env, c device.Computation,
	store func(id string, value any) error) (*device.Future, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewSecureComputeError("submit", fmt.Sprintf("%s on %s", c.Name(), owner), err)
	}

	r.mu.RLock()
	if !r.live || r.gen != gen {
		r.mu.RUnlock()
		return nil, model.NewSecureComputeError("submit", fmt.Sprintf("endpoint %s is not live", owner), nil)
	}
	runtimeCtx := r.ctx
	r.mu.RUnlock()

	future := device.NewFuture(device.Ref{ID: uuid.NewString(), Owner: owner})

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(runtimeCtx, cancel)

	go func() {
		defer cancel()
		defer stop()

		value, err := c.Run(runCtx, env)
		if err == nil {
			err = store(future.Ref().ID, value)
		}
		if err != nil {
			r.logger.Debug("Computation failed", "device", owner, "computation", c.Name(), "error", err)
			future.Resolve(fmt.Errorf("%s: %w", c.Name(), err))
			return
		}
		future.Resolve(nil)
	}()

	return future, nil
}

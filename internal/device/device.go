package device

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Ref names an object held by a device. Owner is the name of the device holding it.
type Ref struct {
	ID    string
	Owner string
}

// Future is the handle to a computation result that stays on the device that produced it.
type Future struct {
	ref  Ref
	once sync.Once
	done chan struct{}
	err  error
}

func NewFuture(ref Ref) *Future {
	return &Future{ref: ref, done: make(chan struct{})}
}

func (f *Future) Ref() Ref {
	return f.ref
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Resolve marks the future complete. Only the first call has an effect.
func (f *Future) Resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Err returns the computation error once the future is done, nil before.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Await blocks until the future completes or ctx is done.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.err
	}
}

// Env is what a running computation sees of the device executing it.
type Env interface {
	Device() string
	Resolve(ctx context.Context, f *Future) (any, error)
}

type Computation interface {
	Name() string
	Run(ctx context.Context, env Env) (any, error)
}

// Handle is a named compute endpoint bound to one party.
type Handle interface {
	Name() string
	Submit(ctx context.Context, c Computation) (*Future, error)
	// Fetch reveals the value behind a future owned by this device.
	Fetch(ctx context.Context, f *Future) (any, error)
}

// SecureDevice computes jointly over the data of all its parties without
// exposing any party's inputs. Fetch reveals a result in the clear.
type SecureDevice interface {
	Handle
	Parties() []string
}

type Runtime interface {
	// Start binds one endpoint per name.
	Start(ctx context.Context, names []string) error
	Handle(name string) (Handle, error)
	NewSecureDevice(handles []Handle) (SecureDevice, error)
	Shutdown(ctx context.Context) error
}

// Wait blocks until every future completed. It returns the first failure.
func Wait(ctx context.Context, futures ...*Future) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range futures {
		if f == nil {
			continue
		}
		g.Go(func() error {
			if err := f.Await(gctx); err != nil {
				return fmt.Errorf("%s: %w", f.Ref().Owner, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ResolveAs resolves f in env and checks the value type.
func ResolveAs[T any](ctx context.Context, env Env, f *Future) (T, error) {
	var zero T
	value, err := env.Resolve(ctx, f)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("object %s: unexpected type %T", f.Ref().ID, value)
	}
	return typed, nil
}

// FetchAs fetches f from h and checks the value type.
func FetchAs[T any](ctx context.Context, h Handle, f *Future) (T, error) {
	var zero T
	value, err := h.Fetch(ctx, f)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("object %s: unexpected type %T", f.Ref().ID, value)
	}
	return typed, nil
}

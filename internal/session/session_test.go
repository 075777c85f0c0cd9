package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/data"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device/sim"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/registry"
)

type countingReader struct {
	reads atomic.Int32
	inner data.RowReader
}

func (r *countingReader) Read(ctx context.Context) (*data.Table, error) {
	r.reads.Add(1)
	return r.inner.Read(ctx)
}

// blockingReader never returns a table; it waits for the run to be cancelled.
type blockingReader struct {
	once    sync.Once
	started chan struct{}
}

func (r *blockingReader) Read(ctx context.Context) (*data.Table, error) {
	r.once.Do(func() { close(r.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

// gatedReader holds every read until release is closed.
type gatedReader struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	inner   data.RowReader
}

func newGatedReader() *gatedReader {
	return &gatedReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		inner:   data.NewSyntheticReader(common.DATASET_ROWS, common.DATASET_TOTAL_COLUMNS, common.DATASET_SEED),
	}
}

func (r *gatedReader) Read(ctx context.Context) (*data.Table, error) {
	r.once.Do(func() { close(r.started) })
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.inner.Read(ctx)
}

type failingRuntime struct {
	device.Runtime
	shutdowns int
}

func (r *failingRuntime) Start(ctx context.Context, names []string) error {
	return errors.New("endpoint unreachable")
}

func (r *failingRuntime) Shutdown(ctx context.Context) error {
	r.shutdowns++
	return nil
}

type operationRecorder struct {
	mu          sync.Mutex
	operations  map[string][]error
	stages      []string
	initialized bool
}

func newOperationRecorder() *operationRecorder {
	return &operationRecorder{operations: make(map[string][]error)}
}

func (r *operationRecorder) ObserveOperation(operation string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[operation] = append(r.operations[operation], err)
}

func (r *operationRecorder) ObserveStage(stage string, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *operationRecorder) SetSessionInitialized(initialized bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = initialized
}

func mockRegistry(t *testing.T) *registry.NodeRegistry {
	t.Helper()
	r := registry.NewNodeRegistry()
	_, err := r.AddNode(model.PartyRecord{Name: common.MOCK_HEAD_NAME, Role: model.RoleHead, Ip: "127.0.0.1", Port: 6379, Resources: 16})
	require.NoError(t, err)
	_, err = r.AddNode(model.PartyRecord{Name: common.MOCK_WORKER_NAME, Role: model.RoleWorker, Ip: "127.0.0.1", Port: 6379, Resources: 16})
	require.NoError(t, err)
	return r
}

func newSession(t *testing.T, r *registry.NodeRegistry, runtime device.Runtime, reader data.RowReader,
	eventBus *events.EventBus, observer Observer) *ComputationSession {
	t.Helper()
	partitioner := data.NewPartitioner(hclog.NewNullLogger(), reader, common.DATASET_TOTAL_COLUMNS)
	s := NewComputationSession(hclog.NewNullLogger(), r, runtime, partitioner, model.DefaultTrainingConfig(), eventBus, observer)
	t.Cleanup(func() { _ = s.Reset(context.Background()) })
	return s
}

func syntheticReader() *countingReader {
	return &countingReader{inner: data.NewSyntheticReader(common.DATASET_ROWS, common.DATASET_TOTAL_COLUMNS, common.DATASET_SEED)}
}

func TestComputationSession_InitializeAndRun(t *testing.T) {
	eventBus := events.NewEventBus()
	initialized := make(chan events.Event, 1)
	finished := make(chan events.Event, 1)
	eventBus.Subscribe(common.SESSION_INITIALIZED_EVENT_TYPE, initialized)
	eventBus.Subscribe(common.RUN_FINISHED_EVENT_TYPE, finished)

	recorder := newOperationRecorder()
	s := newSession(t, mockRegistry(t), sim.NewRuntime(hclog.NewNullLogger()), syntheticReader(), eventBus, recorder)

	count, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, "initialized, 2, nodes", common.InitializedMessage(count))

	event := <-initialized
	require.Equal(t, []string{"p", "w"}, event.Data.(events.SessionInitializedEvent).Parties)

	status := s.Status()
	require.True(t, status.Initialized)
	require.False(t, status.Running)
	require.Equal(t, []string{"p", "w"}, status.Parties)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Greater(t, result.AUCScore, 0.8)
	require.Equal(t, 114, result.ClassificationReport.MacroAvg.Support)

	event = <-finished
	require.NoError(t, event.Data.(events.RunFinishedEvent).Err)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.True(t, recorder.initialized)
	require.Equal(t, []error{nil}, recorder.operations[OperationInitialize])
	require.Equal(t, []error{nil}, recorder.operations[OperationRun])
	require.Equal(t, []string{"split", "train", "predict", "evaluate"}, recorder.stages)
}

func TestComputationSession_RunTwiceOnOneInitialization(t *testing.T) {
	s := newSession(t, mockRegistry(t), sim.NewRuntime(hclog.NewNullLogger()), syntheticReader(), nil, nil)

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	first, err := s.Run(context.Background())
	require.NoError(t, err)
	second, err := s.Run(context.Background())
	require.NoError(t, err)

	require.InDelta(t, first.AUCScore, second.AUCScore, 1e-9)
}

func TestComputationSession_InitializeRequiresHead(t *testing.T) {
	r := registry.NewNodeRegistry()
	_, err := r.AddNode(model.PartyRecord{Name: "w", Role: model.RoleWorker, Port: 6379})
	require.NoError(t, err)

	s := newSession(t, r, sim.NewRuntime(hclog.NewNullLogger()), syntheticReader(), nil, nil)

	_, err = s.Initialize(context.Background())
	require.True(t, model.IsKind(err, model.ConfigurationErrorKind))
	require.False(t, s.Status().Initialized)
}

func TestComputationSession_InitializeFailureLeavesSessionUninitialized(t *testing.T) {
	runtime := &failingRuntime{}
	recorder := newOperationRecorder()
	s := newSession(t, mockRegistry(t), runtime, syntheticReader(), nil, recorder)

	_, err := s.Initialize(context.Background())
	require.True(t, model.IsKind(err, model.SecureComputeErrorKind))
	require.ErrorContains(t, err, "endpoint unreachable")

	require.False(t, s.Status().Initialized)
	require.Equal(t, 1, runtime.shutdowns)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.False(t, recorder.initialized)
	require.Len(t, recorder.operations[OperationInitialize], 1)
	require.Error(t, recorder.operations[OperationInitialize][0])
}

func TestComputationSession_RunBeforeInitialize(t *testing.T) {
	reader := syntheticReader()
	s := newSession(t, mockRegistry(t), sim.NewRuntime(hclog.NewNullLogger()), reader, nil, nil)

	_, err := s.Run(context.Background())
	require.True(t, model.IsKind(err, model.ConfigurationErrorKind))
	require.Equal(t, int32(0), reader.reads.Load())
}

func TestComputationSession_ReinitializeReplacesHandles(t *testing.T) {
	r := mockRegistry(t)
	s := newSession(t, r, sim.NewRuntime(hclog.NewNullLogger()), syntheticReader(), nil, nil)

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	_, err = r.AddNode(model.PartyRecord{Name: "w2", Role: model.RoleWorker, Port: 6379})
	require.NoError(t, err)

	count, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, []string{"p", "w", "w2"}, s.Status().Parties)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
}

func TestComputationSession_CancelRun(t *testing.T) {
	reader := &blockingReader{started: make(chan struct{})}
	s := newSession(t, mockRegistry(t), sim.NewRuntime(hclog.NewNullLogger()), reader, nil, nil)

	require.False(t, s.Cancel())

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		errs <- err
	}()

	<-reader.started
	require.True(t, s.Status().Running)
	require.True(t, s.Cancel())

	select {
	case err := <-errs:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	require.False(t, s.Status().Running)
	require.False(t, s.Cancel())
	require.True(t, s.Status().Initialized)
}

func TestComputationSession_Reset(t *testing.T) {
	reader := &blockingReader{started: make(chan struct{})}
	s := newSession(t, mockRegistry(t), sim.NewRuntime(hclog.NewNullLogger()), reader, nil, nil)

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		errs <- err
	}()
	<-reader.started

	require.NoError(t, s.Reset(context.Background()))
	require.Error(t, <-errs)

	status := s.Status()
	require.False(t, status.Initialized)
	require.Empty(t, status.Parties)

	_, err = s.Run(context.Background())
	require.True(t, model.IsKind(err, model.ConfigurationErrorKind))
}

func TestComputationSession_OperationsAreSerialized(t *testing.T) {
	reader := newGatedReader()
	s := newSession(t, mockRegistry(t), sim.NewRuntime(hclog.NewNullLogger()), reader, nil, nil)

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	runErrs := make(chan error, 2)
	go func() {
		_, err := s.Run(context.Background())
		runErrs <- err
	}()
	<-reader.started

	initDone := make(chan error, 1)
	go func() {
		_, err := s.Initialize(context.Background())
		initDone <- err
	}()
	go func() {
		_, err := s.Run(context.Background())
		runErrs <- err
	}()

	// neither may start while the first run holds the session
	require.Never(t, func() bool { return len(initDone) > 0 || len(runErrs) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
	require.True(t, s.Status().Running)

	close(reader.release)

	for i := 0; i < 2; i++ {
		select {
		case err := <-runErrs:
			require.NoError(t, err)
		case <-time.After(30 * time.Second):
			t.Fatal("run did not finish")
		}
	}
	require.NoError(t, <-initDone)

	status := s.Status()
	require.True(t, status.Initialized)
	require.False(t, status.Running)
	require.Equal(t, []string{"p", "w"}, status.Parties)
}

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/data"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/pipeline"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/registry"
)

const (
	OperationInitialize = "initialize"
	OperationRun        = "run"
	OperationReset      = "reset"
)

// Observer receives session and pipeline measurements.
type Observer interface {
	pipeline.StageObserver
	ObserveOperation(operation string, err error)
	SetSessionInitialized(initialized bool)
}

type Status struct {
	Initialized bool     `json:"initialized"`
	Parties     []string `json:"parties"`
	Running     bool     `json:"running"`
}

// ComputationSession binds the registered parties to a runtime and runs the
// training pipeline over them. Initialize, Run and Reset are serialized;
// Status and Cancel never wait for them.
type ComputationSession struct {
	logger      hclog.Logger
	registry    *registry.NodeRegistry
	runtime     device.Runtime
	partitioner *data.Partitioner
	config      model.TrainingConfig
	eventBus    *events.EventBus
	observer    Observer

	opMu sync.Mutex

	mu          sync.RWMutex
	handles     []device.Handle
	secure      device.SecureDevice
	initialized bool
	cancelRun   context.CancelFunc
}

func NewComputationSession(logger hclog.Logger, nodeRegistry *registry.NodeRegistry, runtime device.Runtime,
	partitioner *data.Partitioner, config model.TrainingConfig, eventBus *events.EventBus, observer Observer) *ComputationSession {
	return &ComputationSession{
		logger:      logger,
		registry:    nodeRegistry,
		runtime:     runtime,
		partitioner: partitioner,
		config:      config,
		eventBus:    eventBus,
		observer:    observer,
	}
}

// Initialize starts the runtime for the registered parties, head first, and
// creates one handle per party plus a secure device over all of them.
// It returns the number of handles.
func (s *ComputationSession) Initialize(ctx context.Context) (count int, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer func() { s.observeOperation(OperationInitialize, err) }()

	state := s.registry.State()
	if state.Head == nil {
		return 0, model.NewConfigurationError(OperationInitialize, "no head node registered")
	}
	names := state.PartyNames()

	s.setState(nil, nil, false)
	if err := s.runtime.Shutdown(ctx); err != nil {
		s.logger.Warn("Shutting down previous runtime failed", "error", err)
	}

	if err := s.runtime.Start(ctx, names); err != nil {
		return 0, wrapSecureCompute(OperationInitialize, "starting runtime", err)
	}

	handles := make([]device.Handle, 0, len(names))
	for _, name := range names {
		handle, err := s.runtime.Handle(name)
		if err != nil {
			s.abortStart(ctx)
			return 0, wrapSecureCompute(OperationInitialize, fmt.Sprintf("handle for %s", name), err)
		}
		handles = append(handles, handle)
	}

	secure, err := s.runtime.NewSecureDevice(handles)
	if err != nil {
		s.abortStart(ctx)
		return 0, wrapSecureCompute(OperationInitialize, "secure device", err)
	}

	s.setState(handles, secure, true)
	s.logger.Info(fmt.Sprintf("Session initialized with %d parties", len(handles)), "parties", names)

	s.publish(common.SESSION_INITIALIZED_EVENT_TYPE, events.SessionInitializedEvent{Parties: names})

	return len(handles), nil
}

func (s *ComputationSession) abortStart(ctx context.Context) {
	if err := s.runtime.Shutdown(ctx); err != nil {
		s.logger.Warn("Shutting down half-started runtime failed", "error", err)
	}
}

// Run partitions the dataset over the live handles and runs the training pipeline.
func (s *ComputationSession) Run(ctx context.Context) (result *model.TrainingResult, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer func() { s.observeOperation(OperationRun, err) }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, model.NewConfigurationError(OperationRun, "session is not initialized")
	}
	handles := s.handles
	secure := s.secure
	s.cancelRun = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cancelRun = nil
		s.mu.Unlock()
	}()

	s.logger.Info("Run started", "parties", len(handles))

	features, labels, err := s.partitioner.Partition(runCtx, handles)
	if err != nil {
		s.finishRun(nil, err)
		return nil, err
	}

	trainingPipeline := pipeline.NewTrainingPipeline(s.logger.Named("pipeline"), secure, s.config, s.observer)
	result, err = trainingPipeline.Run(runCtx, features, labels)
	s.finishRun(result, err)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *ComputationSession) finishRun(result *model.TrainingResult, err error) {
	if err != nil {
		s.logger.Error("Run failed", "error", err)
	} else {
		s.logger.Info("Run finished", "auc", result.AUCScore, "accuracy", result.AccuracyScore)
	}
	s.publish(common.RUN_FINISHED_EVENT_TYPE, events.RunFinishedEvent{Result: result, Err: err})
}

// Cancel stops the run in flight. It reports whether there was one.
func (s *ComputationSession) Cancel() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cancelRun == nil {
		return false
	}
	s.cancelRun()
	return true
}

// Reset cancels any run, shuts the runtime down and leaves the session uninitialized.
func (s *ComputationSession) Reset(ctx context.Context) (err error) {
	s.Cancel()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer func() { s.observeOperation(OperationReset, err) }()

	s.setState(nil, nil, false)
	if err := s.runtime.Shutdown(ctx); err != nil {
		return wrapSecureCompute(OperationReset, "shutting down runtime", err)
	}

	s.logger.Info("Session reset")
	return nil
}

func (s *ComputationSession) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parties := []string{}
	for _, handle := range s.handles {
		parties = append(parties, handle.Name())
	}
	return Status{
		Initialized: s.initialized,
		Parties:     parties,
		Running:     s.cancelRun != nil,
	}
}

func (s *ComputationSession) setState(handles []device.Handle, secure device.SecureDevice, initialized bool) {
	s.mu.Lock()
	s.handles = handles
	s.secure = secure
	s.initialized = initialized
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SetSessionInitialized(initialized)
	}
}

func (s *ComputationSession) observeOperation(operation string, err error) {
	if s.observer != nil {
		s.observer.ObserveOperation(operation, err)
	}
}

func (s *ComputationSession) publish(eventType string, payload interface{}) {
	if s.eventBus != nil {
		s.eventBus.Publish(events.Event{Type: eventType, Data: payload})
	}
}

func wrapSecureCompute(op, message string, err error) error {
	if model.KindOf(err) != "" {
		return err
	}
	return model.NewSecureComputeError(op, message, err)
}

package runstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type RunRecord struct {
	Id         string                `json:"id"`
	Status     string                `json:"status"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	Result     *model.TrainingResult `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// RunStore keeps the records of recent runs in memory. Finished runs older than
// the retention are dropped by the prune job.
type RunStore struct {
	logger        hclog.Logger
	retention     time.Duration
	cronScheduler *cron.Cron
	now           func() time.Time

	mu   sync.RWMutex
	runs map[string]*RunRecord
}

func NewRunStore(logger hclog.Logger, retention time.Duration) *RunStore {
	return &RunStore{
		logger:        logger,
		retention:     retention,
		cronScheduler: cron.New(cron.WithSeconds()),
		now:           time.Now,
		runs:          make(map[string]*RunRecord),
	}
}

// Begin records a new running run and returns its id.
func (s *RunStore) Begin() string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = &RunRecord{Id: id, Status: StatusRunning, StartedAt: s.now()}

	return id
}

func (s *RunStore) Finish(id string, result *model.TrainingResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[id]
	if !exists {
		return
	}

	finishedAt := s.now()
	run.FinishedAt = &finishedAt
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		return
	}
	run.Status = StatusSucceeded
	run.Result = result
}

func (s *RunStore) Get(id string) (RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return RunRecord{}, false
	}
	return *run, true
}

// Prune removes finished runs older than the retention and returns how many were removed.
func (s *RunStore) Prune() int {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, run := range s.runs {
		if run.FinishedAt != nil && run.FinishedAt.Before(cutoff) {
			delete(s.runs, id)
			pruned++
		}
	}
	return pruned
}

func (s *RunStore) StartPruning(schedule string) error {
	_, err := s.cronScheduler.AddFunc(schedule, func() {
		if pruned := s.Prune(); pruned > 0 {
			s.logger.Debug(fmt.Sprintf("Pruned %d runs", pruned))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	s.cronScheduler.Start()
	return nil
}

func (s *RunStore) StopPruning() {
	<-s.cronScheduler.Stop().Done()
}

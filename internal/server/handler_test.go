package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/data"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device/sim"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/metrics"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision/dummyexec"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/runstore"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/session"
)

type fixture struct {
	router    *mux.Router
	executor  *dummyexec.DummyExecutor
	collector *metrics.Collector
	runStore  *runstore.RunStore
}

type fixedStates map[string]string

func (s fixedStates) States() map[string]string {
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := hclog.NewNullLogger()
	eventBus := events.NewEventBus()
	collector := metrics.NewCollector("test", logger)

	nodeRegistry := registry.NewNodeRegistry()
	executor := dummyexec.NewDummyExecutor()
	provisioner := provision.NewClusterProvisioner(logger, nodeRegistry, executor, eventBus, collector, provision.Options{})

	reader := data.NewSyntheticReader(common.DATASET_ROWS, common.DATASET_TOTAL_COLUMNS, common.DATASET_SEED)
	partitioner := data.NewPartitioner(logger, reader, common.DATASET_TOTAL_COLUMNS)
	computationSession := session.NewComputationSession(logger, nodeRegistry, sim.NewRuntime(logger), partitioner,
		model.DefaultTrainingConfig(), eventBus, collector)
	runStore := runstore.NewRunStore(logger, 0)

	handler := NewHandler(logger, nodeRegistry, provisioner, computationSession, runStore).
		WithClusterObserver(collector).
		WithStateSource(fixedStates{"p": common.NODE_REACHABLE})

	t.Cleanup(func() { _ = computationSession.Reset(context.Background()) })

	return &fixture{
		router:    NewRouter(handler, collector, collector.Handler()),
		executor:  executor,
		collector: collector,
		runStore:  runStore,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = http.NoBody
	}
	rw := httptest.NewRecorder()
	f.router.ServeHTTP(rw, httptest.NewRequest(method, path, reader))
	return rw
}

func decode[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rw.Body.Bytes())).Decode(&value))
	return value
}

func TestRoot(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, map[string]string{"Hello": "World"}, decode[map[string]string](t, rw))
}

func TestAddNode_Defaults(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodPost, "/parties/add_node/", `{"name": "p"}`)
	require.Equal(t, http.StatusCreated, rw.Code)
	require.Equal(t, "Node p added successfully.", decode[string](t, rw))

	rw = f.do(t, http.MethodGet, "/parties", "")
	require.Equal(t, http.StatusOK, rw.Code)
	parties := decode[PartiesResponse](t, rw)
	require.Equal(t, &model.PartyRecord{Name: "p", Role: model.RoleHead, Ip: "127.0.0.1", Port: 6379, Resources: 16}, parties.Head)
	require.Empty(t, parties.Workers)
	require.Equal(t, common.NODE_REACHABLE, parties.States["p"])
}

func TestAddNode_Rejected(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodPost, "/parties/add_node/", `{"ip": "10.0.0.1"}`)
	require.Equal(t, http.StatusBadRequest, rw.Code)

	rw = f.do(t, http.MethodPost, "/parties/add_node/", `{"name": `)
	require.Equal(t, http.StatusBadRequest, rw.Code)

	rw = f.do(t, http.MethodPost, "/parties/add_node/", `{"name": "p", "node_type": "leader"}`)
	require.Equal(t, http.StatusBadRequest, rw.Code)

	rw = f.do(t, http.MethodPost, "/parties/add_node/", `{"name": "w", "node_type": "worker"}`)
	require.Equal(t, http.StatusCreated, rw.Code)
	rw = f.do(t, http.MethodPost, "/parties/add_node/", `{"name": "w", "node_type": "worker"}`)
	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestCreateCluster(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodPost, "/parties/create_cluster/", "")
	require.Equal(t, http.StatusBadRequest, rw.Code)
	require.Empty(t, f.executor.Commands())

	f.do(t, http.MethodPost, "/parties/add_node/", `{"name": "w", "node_type": "worker"}`)
	f.do(t, http.MethodPost, "/parties/add_node/", `{"name": "p"}`)

	rw = f.do(t, http.MethodPost, "/parties/create_cluster/", "")
	require.Equal(t, http.StatusCreated, rw.Code)
	require.Equal(t, common.PARTIES_CREATED_MESSAGE, decode[string](t, rw))

	commands := f.executor.Commands()
	require.Len(t, commands, 2)
	require.Equal(t, "p", commands[0].Party)
	require.Equal(t, "w", commands[1].Party)
}

func TestCreateCluster_ProvisioningFailure(t *testing.T) {
	f := newFixture(t)
	f.executor.Script("p", provision.Result{ExitCode: 1, Stderr: "address in use"}, nil)

	f.do(t, http.MethodPost, "/parties/add_node/", `{"name": "p"}`)

	rw := f.do(t, http.MethodPost, "/parties/create_cluster/", "")
	require.Equal(t, http.StatusInternalServerError, rw.Code)
	require.Contains(t, decode[string](t, rw), "address in use")
}

func TestInitialize_RequiresHead(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodPost, "/initialize/", "")
	require.Equal(t, http.StatusBadRequest, rw.Code)

	status := decode[session.Status](t, f.do(t, http.MethodGet, "/session/", ""))
	require.False(t, status.Initialized)
}

func TestRun_BeforeInitialize(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodPost, "/run/", "")
	require.Equal(t, http.StatusBadRequest, rw.Code)

	runId := rw.Header().Get(RUN_ID_HEADER)
	require.NotEmpty(t, runId)

	rw = f.do(t, http.MethodGet, "/runs/"+runId, "")
	require.Equal(t, http.StatusOK, rw.Code)
	run := decode[runstore.RunRecord](t, rw)
	require.Equal(t, runstore.StatusFailed, run.Status)
	require.Contains(t, run.Error, "not initialized")
}

func TestMockFlow(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodPost, "/mock/gen/", "")
	require.Equal(t, http.StatusCreated, rw.Code)
	require.Equal(t, common.MOCK_MESSAGE, decode[string](t, rw))

	status := decode[session.Status](t, f.do(t, http.MethodGet, "/session/", ""))
	require.True(t, status.Initialized)
	require.Equal(t, []string{"p", "w"}, status.Parties)

	rw = f.do(t, http.MethodPost, "/run/", "")
	require.Equal(t, http.StatusOK, rw.Code)
	result := decode[model.TrainingResult](t, rw)
	assert.GreaterOrEqual(t, result.AUCScore, 0.0)
	assert.LessOrEqual(t, result.AUCScore, 1.0)
	assert.GreaterOrEqual(t, result.AccuracyScore, 0.0)
	assert.LessOrEqual(t, result.AccuracyScore, 1.0)
	require.NotNil(t, result.ClassificationReport)
	require.NotEmpty(t, result.ClassificationReport.Classes)

	rw = f.do(t, http.MethodGet, "/runs/"+rw.Header().Get(RUN_ID_HEADER)+"/", "")
	require.Equal(t, http.StatusOK, rw.Code)
	run := decode[runstore.RunRecord](t, rw)
	require.Equal(t, runstore.StatusSucceeded, run.Status)
	require.InDelta(t, result.AUCScore, run.Result.AUCScore, 1e-12)

	// a second mock replaces the first registration
	rw = f.do(t, http.MethodPost, "/mock/gen", "")
	require.Equal(t, http.StatusCreated, rw.Code)
	require.Len(t, f.executor.Commands(), 4)
}

func TestMockGen_ProvisioningFailure(t *testing.T) {
	f := newFixture(t)
	f.executor.Script("w", provision.Result{ExitCode: 1}, nil)

	rw := f.do(t, http.MethodPost, "/mock/gen/", "")
	require.Equal(t, http.StatusBadRequest, rw.Code)

	status := decode[session.Status](t, f.do(t, http.MethodGet, "/session/", ""))
	require.False(t, status.Initialized)
}

func TestCancelRun_NoRun(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodPost, "/run/cancel/", "")
	require.Equal(t, http.StatusConflict, rw.Code)
}

func TestGetRun_Unknown(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodGet, "/runs/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rw.Code)
}

func TestResetSession(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/mock/gen/", "").Code)

	rw := f.do(t, http.MethodPost, "/session/reset", "")
	require.Equal(t, http.StatusOK, rw.Code)

	status := decode[session.Status](t, f.do(t, http.MethodGet, "/session", ""))
	require.False(t, status.Initialized)
	require.Empty(t, status.Parties)

	parties := decode[PartiesResponse](t, f.do(t, http.MethodGet, "/parties/", ""))
	require.Nil(t, parties.Head)
	require.Empty(t, parties.Workers)
}

func TestMethodMismatch(t *testing.T) {
	f := newFixture(t)

	rw := f.do(t, http.MethodGet, "/run/", "")
	require.Equal(t, http.StatusMethodNotAllowed, rw.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/parties/add_node/", `{"name": "p"}`)
	f.do(t, http.MethodPost, "/parties/add_node", `{"name": "w", "node_type": "worker"}`)

	rw := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rw.Code)

	body := rw.Body.String()
	require.Contains(t, body, `test_http_requests_total{code="201",method="POST",route="/parties/add_node"} 2`)
	require.Contains(t, body, `test_parties_registered{role="head"} 1`)
	require.Contains(t, body, `test_parties_registered{role="worker"} 1`)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, statusFor(model.NewConfigurationError("run", "")))
	require.Equal(t, http.StatusBadRequest, statusFor(model.NewValidationError("add_node", "")))
	require.Equal(t, http.StatusInternalServerError, statusFor(model.NewProvisioningError("create_cluster", "", nil)))
	require.Equal(t, http.StatusInternalServerError, statusFor(model.NewSecureComputeError("run", "", nil)))
	require.Equal(t, http.StatusInternalServerError, statusFor(io.EOF))
}

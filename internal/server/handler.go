package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/runstore"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/session"
)

const RUN_ID_HEADER = "X-Run-Id"

// ClusterObserver is told about every change of the registered parties.
type ClusterObserver interface {
	SetClusterState(state *model.ClusterState)
}

// StateSource reports the last known reachability per party.
type StateSource interface {
	States() map[string]string
}

type Handler struct {
	logger      hclog.Logger
	registry    *registry.NodeRegistry
	provisioner *provision.ClusterProvisioner
	session     *session.ComputationSession
	runStore    *runstore.RunStore
	observer    ClusterObserver
	states      StateSource
}

func NewHandler(logger hclog.Logger, nodeRegistry *registry.NodeRegistry, provisioner *provision.ClusterProvisioner,
	computationSession *session.ComputationSession, runStore *runstore.RunStore) *Handler {
	return &Handler{
		logger:      logger,
		registry:    nodeRegistry,
		provisioner: provisioner,
		session:     computationSession,
		runStore:    runStore,
	}
}

func (handler *Handler) WithClusterObserver(observer ClusterObserver) *Handler {
	handler.observer = observer
	return handler
}

func (handler *Handler) WithStateSource(states StateSource) *Handler {
	handler.states = states
	return handler
}

func (handler *Handler) Root(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	toJSON(map[string]string{"Hello": "World"}, rw)
}

func (handler *Handler) AddNode(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	request := newAddNodeRequest()
	err := fromJSON(request, r.Body)
	if err != nil {
		handler.logger.Error("error decoding add node request", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("invalid request body", rw)
		return
	}

	message, err := handler.registry.AddNode(request.PartyRecord())
	if err != nil {
		handler.writeError(rw, err, statusFor(err))
		return
	}
	handler.clusterChanged()

	handler.logger.Info(fmt.Sprintf("Registered %s node %s", request.NodeType, request.Name),
		"ip", request.Ip, "port", request.Port)

	rw.WriteHeader(http.StatusCreated)
	toJSON(message, rw)
}

func (handler *Handler) CreateCluster(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	message, err := handler.provisioner.CreateCluster(r.Context())
	if err != nil {
		handler.writeError(rw, err, statusFor(err))
		return
	}

	rw.WriteHeader(http.StatusCreated)
	toJSON(message, rw)
}

func (handler *Handler) GetParties(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	state := handler.registry.State()
	response := PartiesResponse{Head: state.Head, Workers: state.Workers}
	if handler.states != nil {
		response.States = handler.states.States()
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(response, rw)
}

func (handler *Handler) Initialize(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	count, err := handler.session.Initialize(r.Context())
	if err != nil {
		handler.writeError(rw, err, http.StatusBadRequest)
		return
	}

	rw.WriteHeader(http.StatusCreated)
	toJSON(common.InitializedMessage(count), rw)
}

func (handler *Handler) Run(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := handler.runStore.Begin()
	rw.Header().Set(RUN_ID_HEADER, runId)

	handler.logger.Info(fmt.Sprintf("Starting run with ID: %s", runId))

	result, err := handler.session.Run(r.Context())
	handler.runStore.Finish(runId, result, err)
	if err != nil {
		handler.writeError(rw, err, statusFor(err))
		return
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(result, rw)
}

func (handler *Handler) CancelRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	if !handler.session.Cancel() {
		rw.WriteHeader(http.StatusConflict)
		toJSON("no run in progress", rw)
		return
	}

	handler.logger.Info("Run cancelled")

	rw.WriteHeader(http.StatusOK)
	toJSON("run cancelled", rw)
}

func (handler *Handler) GetRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")

	run, exists := handler.runStore.Get(runId)
	if !exists {
		rw.WriteHeader(http.StatusNotFound)
		toJSON("no run with the given ID", rw)
		return
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(run, rw)
}

func (handler *Handler) GetSession(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	toJSON(handler.session.Status(), rw)
}

func (handler *Handler) ResetSession(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	if err := handler.reset(r.Context()); err != nil {
		handler.writeError(rw, err, statusFor(err))
		return
	}

	rw.WriteHeader(http.StatusOK)
	toJSON("session reset", rw)
}

// MockGen replaces whatever is registered with head "p" and worker "w", then
// creates the cluster and initializes the session.
func (handler *Handler) MockGen(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	if err := handler.mock(r.Context()); err != nil {
		handler.writeError(rw, err, http.StatusBadRequest)
		return
	}

	rw.WriteHeader(http.StatusCreated)
	toJSON(common.MOCK_MESSAGE, rw)
}

func (handler *Handler) mock(ctx context.Context) error {
	if err := handler.reset(ctx); err != nil {
		return err
	}

	parties := []model.PartyRecord{
		{Name: common.MOCK_HEAD_NAME, Role: model.RoleHead, Ip: common.DEFAULT_PARTY_IP,
			Port: common.DEFAULT_PARTY_PORT, Resources: common.DEFAULT_PARTY_RESOURCES},
		{Name: common.MOCK_WORKER_NAME, Role: model.RoleWorker, Ip: common.DEFAULT_PARTY_IP,
			Port: common.DEFAULT_PARTY_PORT, Resources: common.DEFAULT_PARTY_RESOURCES},
	}
	for _, party := range parties {
		if _, err := handler.registry.AddNode(party); err != nil {
			return err
		}
	}
	handler.clusterChanged()

	if _, err := handler.provisioner.CreateCluster(ctx); err != nil {
		return err
	}

	_, err := handler.session.Initialize(ctx)
	return err
}

func (handler *Handler) reset(ctx context.Context) error {
	err := handler.session.Reset(ctx)
	handler.registry.Reset()
	handler.clusterChanged()
	return err
}

func (handler *Handler) clusterChanged() {
	if handler.observer != nil {
		handler.observer.SetClusterState(handler.registry.State())
	}
}

func (handler *Handler) writeError(rw http.ResponseWriter, err error, status int) {
	handler.logger.Error("request failed", "error", err, "status", status)
	rw.WriteHeader(status)
	toJSON(err.Error(), rw)
}

// statusFor maps configuration and validation errors to 400 and everything else to 500.
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.ConfigurationErrorKind, model.ValidationErrorKind:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func getURLParameter(r *http.Request, parameter string) string {
	vars := mux.Vars(r)
	id := vars[parameter]
	return id
}

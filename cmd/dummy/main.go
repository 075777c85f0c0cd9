package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/data"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device/sim"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision/dummyexec"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/session"
)

// Runs the mock flow locally: head "p" and worker "w", dummy start commands,
// one training run on the synthetic dataset.
func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "mpc-orch",
		Level: hclog.LevelFromString("DEBUG"),
	})

	ctx := context.Background()
	eventBus := events.NewEventBus()
	nodeRegistry := registry.NewNodeRegistry()

	for _, party := range []model.PartyRecord{
		{Name: common.MOCK_HEAD_NAME, Role: model.RoleHead, Port: common.DEFAULT_PARTY_PORT, Resources: common.DEFAULT_PARTY_RESOURCES},
		{Name: common.MOCK_WORKER_NAME, Role: model.RoleWorker, Port: common.DEFAULT_PARTY_PORT, Resources: common.DEFAULT_PARTY_RESOURCES},
	} {
		message, err := nodeRegistry.AddNode(party)
		if err != nil {
			logger.Error("Error registering party", "error", err)
			os.Exit(1)
		}
		logger.Info(message)
	}

	provisioner := provision.NewClusterProvisioner(logger.Named("provisioner"), nodeRegistry,
		dummyexec.NewDummyExecutor(), eventBus, nil, provision.Options{})
	message, err := provisioner.CreateCluster(ctx)
	if err != nil {
		logger.Error("Error creating cluster", "error", err)
		os.Exit(1)
	}
	logger.Info(message)

	reader := data.NewSyntheticReader(common.DATASET_ROWS, common.DATASET_TOTAL_COLUMNS, common.DATASET_SEED)
	computationSession := session.NewComputationSession(logger.Named("session"), nodeRegistry, sim.NewRuntime(logger.Named("runtime")),
		data.NewPartitioner(logger.Named("partitioner"), reader, common.DATASET_TOTAL_COLUMNS),
		model.DefaultTrainingConfig(), eventBus, nil)
	defer computationSession.Reset(ctx)

	count, err := computationSession.Initialize(ctx)
	if err != nil {
		logger.Error("Error initializing session", "error", err)
		os.Exit(1)
	}
	logger.Info(common.InitializedMessage(count))

	result, err := computationSession.Run(ctx)
	if err != nil {
		logger.Error("Error running training", "error", err)
		os.Exit(1)
	}

	fmt.Printf("train time:    %.3fs\n", result.TrainTime)
	fmt.Printf("predict time:  %.3fs\n", result.PredictTime)
	fmt.Printf("auc score:     %.4f\n", result.AUCScore)
	fmt.Printf("accuracy:      %.4f\n", result.AccuracyScore)
	fmt.Println()
	fmt.Print(result.ClassificationReport.String())
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/data"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device/sim"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/metrics"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/monitor"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision/dummyexec"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision/k8sexec"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision/shellexec"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/runstore"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/server"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/session"
)

const defaultConfigPath = "configs/orchestrator.yaml"

func main() {
	configPath := defaultConfigPath
	if len(os.Args) == 2 {
		configPath = os.Args[1]
	}

	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	output := io.Writer(os.Stdout)
	if cfg.Log.File != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.Log.File), 0777)
		logFile, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			panic(err)
		}
		defer func() {
			if err := logFile.Close(); err != nil {
				panic(err)
			}
		}()
		output = io.MultiWriter(os.Stdout, logFile)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "mpc-orch",
		Level:      hclog.LevelFromString(cfg.Log.Level),
		Output:     output,
		JSONFormat: cfg.Log.JSON,
	})

	if err := run(logger, cfg); err != nil {
		logger.Error("Orchestrator stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger, cfg *config.Config) error {
	eventBus := events.NewEventBus()
	collector := metrics.NewCollector("mpc_orchestrator", logger.Named("metrics"))
	nodeRegistry := registry.NewNodeRegistry()

	executor, err := newExecutor(logger.Named("executor"), cfg.Provisioner)
	if err != nil {
		return err
	}
	provisioner := provision.NewClusterProvisioner(logger.Named("provisioner"), nodeRegistry, executor, eventBus,
		collector, provision.Options{Binary: cfg.Provisioner.RayBinary, CommandTimeout: cfg.Provisioner.CommandTimeout})

	partitioner := data.NewPartitioner(logger.Named("partitioner"), newReader(cfg.Dataset), cfg.Dataset.TotalColumns)
	runtime := sim.NewRuntime(logger.Named("runtime"))
	computationSession := session.NewComputationSession(logger.Named("session"), nodeRegistry, runtime, partitioner,
		cfg.Training, eventBus, collector)
	defer func() {
		if err := computationSession.Reset(context.Background()); err != nil {
			logger.Warn("Session reset on shutdown failed", "error", err)
		}
	}()

	runStore := runstore.NewRunStore(logger.Named("runstore"), cfg.Results.Retention)
	if err := runStore.StartPruning(cfg.Results.PruneSchedule); err != nil {
		return err
	}
	defer runStore.StopPruning()

	handler := server.NewHandler(logger.Named("handler"), nodeRegistry, provisioner, computationSession, runStore).
		WithClusterObserver(collector)

	if cfg.Monitor.Enabled {
		clusterMonitor := monitor.NewClusterMonitor(logger.Named("monitor"), nodeRegistry,
			monitor.DialProber{Timeout: cfg.Monitor.DialTimeout}, eventBus, cfg.Monitor.Schedule)
		if err := clusterMonitor.Start(); err != nil {
			return err
		}
		defer clusterMonitor.Stop()
		handler.WithStateSource(clusterMonitor)
	}

	go logEvents(logger.Named("events"), eventBus)

	defaultRouter := server.NewRouter(handler, collector, collector.Handler())

	return server.StartHttpServer(logger, cfg.Server, defaultRouter)
}

func newExecutor(logger hclog.Logger, cfg config.ProvisionerConfig) (provision.CommandExecutor, error) {
	switch cfg.Backend {
	case config.BackendK8s:
		executor, err := k8sexec.NewK8sExecutor(logger, cfg.K8s.Kubeconfig, k8sexec.Options{
			Namespace:    cfg.K8s.Namespace,
			Image:        cfg.K8s.Image,
			WaitReady:    cfg.K8s.WaitReady,
			PollInterval: cfg.K8s.PollInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing k8s client: %w", err)
		}
		return executor, nil
	case config.BackendDummy:
		return dummyexec.NewDummyExecutor(), nil
	default:
		return shellexec.NewShellExecutor(logger), nil
	}
}

func newReader(cfg config.DatasetConfig) data.RowReader {
	if cfg.Source == config.DatasetCSV {
		return &data.CSVReader{Path: cfg.CSVPath, LabelColumn: cfg.LabelColumn, HasHeader: cfg.HasHeader}
	}
	return data.NewSyntheticReader(cfg.Rows, cfg.TotalColumns, cfg.Seed)
}

// logEvents subscribes to every event type and logs what it receives.
func logEvents(logger hclog.Logger, eventBus *events.EventBus) {
	received := make(chan events.Event, 32)
	for _, eventType := range events.Types() {
		eventBus.Subscribe(eventType, received)
	}

	for event := range received {
		logger.Debug(fmt.Sprintf("Event %s", event.Type), "data", fmt.Sprintf("%+v", event.Data))
	}
}

// Package config loads the orchestrator configuration.
//
// Priority: built-in defaults, then the YAML file, then environment variables
// prefixed with MPCORCH_ (for example MPCORCH_SERVER_PORT or MPCORCH_LOG_LEVEL).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

const EnvPrefix = "MPCORCH"

const (
	BackendShell = "shell"
	BackendK8s   = "k8s"
	BackendDummy = "dummy"

	DatasetSynthetic = "synthetic"
	DatasetCSV       = "csv"
)

type Config struct {
	Server      ServerConfig         `yaml:"server" env:"SERVER"`
	Log         LogConfig            `yaml:"log" env:"LOG"`
	Provisioner ProvisionerConfig    `yaml:"provisioner" env:"PROVISIONER"`
	Dataset     DatasetConfig        `yaml:"dataset" env:"DATASET"`
	Training    model.TrainingConfig `yaml:"training" env:"TRAINING"`
	Monitor     MonitorConfig        `yaml:"monitor" env:"MONITOR"`
	Results     ResultsConfig        `yaml:"results" env:"RESULTS"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	// trace, debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// empty disables the log file
	File string `yaml:"file" env:"FILE"`
	JSON bool   `yaml:"json" env:"JSON"`
}

type ProvisionerConfig struct {
	// shell, k8s or dummy
	Backend        string        `yaml:"backend" env:"BACKEND"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
	RayBinary      string        `yaml:"ray_binary" env:"RAY_BINARY"`
	K8s            K8sConfig     `yaml:"k8s" env:"K8S"`
}

type K8sConfig struct {
	Kubeconfig   string        `yaml:"kubeconfig" env:"KUBECONFIG"`
	Namespace    string        `yaml:"namespace" env:"NAMESPACE"`
	Image        string        `yaml:"image" env:"IMAGE"`
	WaitReady    bool          `yaml:"wait_ready" env:"WAIT_READY"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

type DatasetConfig struct {
	// synthetic or csv
	Source       string `yaml:"source" env:"SOURCE"`
	CSVPath      string `yaml:"csv_path" env:"CSV_PATH"`
	LabelColumn  int    `yaml:"label_column" env:"LABEL_COLUMN"`
	HasHeader    bool   `yaml:"has_header" env:"HAS_HEADER"`
	TotalColumns int    `yaml:"total_columns" env:"TOTAL_COLUMNS"`
	Rows         int    `yaml:"rows" env:"ROWS"`
	Seed         uint64 `yaml:"seed" env:"SEED"`
}

type MonitorConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	Schedule    string        `yaml:"schedule" env:"SCHEDULE"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

type ResultsConfig struct {
	Retention     time.Duration `yaml:"retention" env:"RETENTION"`
	PruneSchedule string        `yaml:"prune_schedule" env:"PRUNE_SCHEDULE"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "DEBUG",
			File:  "log/run.log",
		},
		Provisioner: ProvisionerConfig{
			Backend:        BackendShell,
			CommandTimeout: 60 * time.Second,
			RayBinary:      common.RAY_BINARY,
			K8s: K8sConfig{
				Kubeconfig:   "configs/cluster/kube_config.yaml",
				Namespace:    "default",
				Image:        common.RAY_IMAGE,
				PollInterval: time.Second,
			},
		},
		Dataset: DatasetConfig{
			Source:       DatasetSynthetic,
			LabelColumn:  -1,
			TotalColumns: common.DATASET_TOTAL_COLUMNS,
			Rows:         common.DATASET_ROWS,
			Seed:         common.DATASET_SEED,
		},
		Training: model.DefaultTrainingConfig(),
		Monitor: MonitorConfig{
			Enabled:     true,
			Schedule:    "@every 5s",
			DialTimeout: time.Second,
		},
		Results: ResultsConfig{
			Retention:     24 * time.Hour,
			PruneSchedule: "@every 1m",
		},
	}
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level unknown: %q", c.Log.Level))
	}

	switch c.Provisioner.Backend {
	case BackendShell, BackendDummy:
	case BackendK8s:
		if c.Provisioner.K8s.Kubeconfig == "" {
			errs = append(errs, "provisioner.k8s.kubeconfig is required for the k8s backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("provisioner.backend unknown: %q", c.Provisioner.Backend))
	}
	if c.Provisioner.CommandTimeout <= 0 {
		errs = append(errs, "provisioner.command_timeout must be positive")
	}

	switch c.Dataset.Source {
	case DatasetSynthetic:
		if c.Dataset.Rows <= 0 {
			errs = append(errs, "dataset.rows must be positive")
		}
	case DatasetCSV:
		if c.Dataset.CSVPath == "" {
			errs = append(errs, "dataset.csv_path is required for the csv source")
		}
	default:
		errs = append(errs, fmt.Sprintf("dataset.source unknown: %q", c.Dataset.Source))
	}
	if c.Dataset.TotalColumns <= 0 {
		errs = append(errs, "dataset.total_columns must be positive")
	}

	if err := c.Training.Validate(); err != nil {
		errs = append(errs, "training: "+err.Error())
	}

	if c.Monitor.Enabled && c.Monitor.Schedule == "" {
		errs = append(errs, "monitor.schedule is required when the monitor is enabled")
	}
	if c.Results.Retention <= 0 {
		errs = append(errs, "results.retention must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

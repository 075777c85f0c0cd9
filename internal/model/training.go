package model

import (
	"fmt"
	"sort"
	"strings"
)

const (
	SigmoidReal = "real"
	SigmoidT1   = "t1"
	SigmoidT3   = "t3"
	SigmoidT5   = "t5"
	SigmoidSR   = "sr"

	RegressionLogistic = "logistic"
	RegressionLinear   = "linear"

	PenaltyNone = "none"
	PenaltyL2   = "l2"
)

type TrainingConfig struct {
	Epochs         int     `json:"epochs" yaml:"epochs" env:"EPOCHS"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate" env:"LEARNING_RATE"`
	BatchSize      int     `json:"batch_size" yaml:"batch_size" env:"BATCH_SIZE"`
	SigmoidKind    string  `json:"sig_type" yaml:"sig_type" env:"SIG_TYPE"`
	RegressionKind string  `json:"reg_type" yaml:"reg_type" env:"REG_TYPE"`
	PenaltyKind    string  `json:"penalty" yaml:"penalty" env:"PENALTY"`
	L2Norm         float64 `json:"l2_norm" yaml:"l2_norm" env:"L2_NORM"`
	TrainFraction  float64 `json:"train_fraction" yaml:"train_fraction" env:"TRAIN_FRACTION"`
	Seed           int64   `json:"seed" yaml:"seed" env:"SEED"`
}

func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Epochs:         5,
		LearningRate:   0.3,
		BatchSize:      32,
		SigmoidKind:    SigmoidT1,
		RegressionKind: RegressionLogistic,
		PenaltyKind:    PenaltyL2,
		L2Norm:         0.1,
		TrainFraction:  0.8,
		Seed:           42,
	}
}

func (c *TrainingConfig) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %f", c.LearningRate)
	}
	if c.TrainFraction <= 0 || c.TrainFraction >= 1 {
		return fmt.Errorf("train fraction must be in (0, 1), got %f", c.TrainFraction)
	}
	switch c.SigmoidKind {
	case SigmoidReal, SigmoidT1, SigmoidT3, SigmoidT5, SigmoidSR:
	default:
		return fmt.Errorf("unknown sigmoid kind %q", c.SigmoidKind)
	}
	switch c.RegressionKind {
	case RegressionLogistic, RegressionLinear:
	default:
		return fmt.Errorf("unknown regression kind %q", c.RegressionKind)
	}
	switch c.PenaltyKind {
	case PenaltyNone, PenaltyL2:
	default:
		return fmt.Errorf("unknown penalty kind %q", c.PenaltyKind)
	}
	return nil
}

// TrainingResult is the only data that leaves a run: timings and aggregate metrics.
type TrainingResult struct {
	TrainTime            float64               `json:"train_time"`
	PredictTime          float64               `json:"predict_time"`
	AUCScore             float64               `json:"auc_score"`
	AccuracyScore        float64               `json:"accuracy_score"`
	ClassificationReport *ClassificationReport `json:"classification_report"`
}

type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

type ClassificationReport struct {
	Classes     map[string]ClassMetrics `json:"classes"`
	Accuracy    float64                 `json:"accuracy"`
	MacroAvg    ClassMetrics            `json:"macro_avg"`
	WeightedAvg ClassMetrics            `json:"weighted_avg"`
}

// String renders the report as a fixed-width table.
func (r *ClassificationReport) String() string {
	labels := make([]string, 0, len(r.Classes))
	for label := range r.Classes {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	total := r.MacroAvg.Support
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, label := range labels {
		m := r.Classes[label]
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", label, m.Precision, m.Recall, m.F1Score, m.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, total)
	fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", "macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall,
		r.MacroAvg.F1Score, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", "weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall,
		r.WeightedAvg.F1Score, r.WeightedAvg.Support)
	return b.String()
}

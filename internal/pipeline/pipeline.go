package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gonum.org/v1/gonum/mat"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/data"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

const (
	StageSplit    = "split"
	StageTrain    = "train"
	StagePredict  = "predict"
	StageEvaluate = "evaluate"
)

// StageObserver is told how long every finished pipeline stage took.
type StageObserver interface {
	ObserveStage(stage string, duration time.Duration, err error)
}

// TrainingPipeline runs split, train, predict and evaluate for one run over
// partitioned data. Only predictions and test labels are ever revealed.
type TrainingPipeline struct {
	logger   hclog.Logger
	secure   device.SecureDevice
	config   model.TrainingConfig
	observer StageObserver

	trainFeatures []*device.Future
	testFeatures  []*device.Future
	labelHolder   device.Handle
	trainLabels   *device.Future
	testLabels    *device.Future
	weights       *device.Future
}

func NewTrainingPipeline(logger hclog.Logger, secure device.SecureDevice, config model.TrainingConfig,
	observer StageObserver) *TrainingPipeline {
	return &TrainingPipeline{
		logger:   logger,
		secure:   secure,
		config:   config,
		observer: observer,
	}
}

// Split divides every partition into a train and a test side. All parties
// use the same seed, so row i of one party matches row i of every other.
func (p *TrainingPipeline) Split(ctx context.Context, features, labels *data.FederatedDataset) error {
	if len(labels.Partitions) != 1 {
		return model.NewConfigurationError(StageSplit, fmt.Sprintf("labels must have one owner, got %d", len(labels.Partitions)))
	}

	p.trainFeatures = nil
	p.testFeatures = nil
	for _, partition := range features.Partitions {
		if partition.Data == nil {
			continue
		}
		train, test, err := p.splitPartition(ctx, partition)
		if err != nil {
			return err
		}
		p.trainFeatures = append(p.trainFeatures, train)
		p.testFeatures = append(p.testFeatures, test)
	}
	if len(p.trainFeatures) == 0 {
		return model.NewConfigurationError(StageSplit, "no party holds feature columns")
	}

	labelPartition := labels.Partitions[0]
	train, test, err := p.splitPartition(ctx, labelPartition)
	if err != nil {
		return err
	}
	p.labelHolder = labelPartition.Owner
	p.trainLabels = train
	p.testLabels = test

	futures := append(append([]*device.Future{}, p.trainFeatures...), p.testFeatures...)
	futures = append(futures, train, test)
	if err := device.Wait(ctx, futures...); err != nil {
		return model.NewSecureComputeError(StageSplit, "", err)
	}
	return nil
}

func (p *TrainingPipeline) splitPartition(ctx context.Context, partition data.Partition) (*device.Future, *device.Future, error) {
	sides := make([]*device.Future, 0, 2)
	for _, side := range []data.SplitSide{data.TrainSide, data.TestSide} {
		future, err := partition.Owner.Submit(ctx, data.SplitRows{
			Input:         partition.Data,
			TrainFraction: p.config.TrainFraction,
			Seed:          p.config.Seed,
			Side:          side,
		})
		if err != nil {
			return nil, nil, model.NewSecureComputeError(StageSplit, partition.Owner.Name(), err)
		}
		sides = append(sides, future)
	}
	return sides[0], sides[1], nil
}

// Train fits the model on the secure device and returns the elapsed seconds.
func (p *TrainingPipeline) Train(ctx context.Context) (float64, error) {
	if p.trainLabels == nil {
		return 0, model.NewConfigurationError(StageTrain, "data is not split")
	}

	start := time.Now()
	future, err := p.secure.Submit(ctx, FitRegression{
		Features: p.trainFeatures,
		Labels:   p.trainLabels,
		Config:   p.config,
	})
	if err != nil {
		return 0, model.NewSecureComputeError(StageTrain, "", err)
	}
	if err := future.Await(ctx); err != nil {
		return 0, model.NewSecureComputeError(StageTrain, "", err)
	}
	p.weights = future

	return time.Since(start).Seconds(), nil
}

// Predict scores the test rows and reveals the scores.
func (p *TrainingPipeline) Predict(ctx context.Context) ([]float64, float64, error) {
	if p.weights == nil {
		return nil, 0, model.NewConfigurationError(StagePredict, "model is not trained")
	}

	start := time.Now()
	future, err := p.secure.Submit(ctx, PredictRegression{
		Weights:  p.weights,
		Features: p.testFeatures,
		Config:   p.config,
	})
	if err != nil {
		return nil, 0, model.NewSecureComputeError(StagePredict, "", err)
	}
	scores, err := device.FetchAs[*mat.Dense](ctx, p.secure, future)
	if err != nil {
		return nil, 0, model.NewSecureComputeError(StagePredict, "", err)
	}

	return mat.Col(nil, 0, scores), time.Since(start).Seconds(), nil
}

// Evaluate reveals the test labels from the label holder and scores the predictions.
func (p *TrainingPipeline) Evaluate(ctx context.Context, scores []float64) (*model.TrainingResult, error) {
	if p.testLabels == nil {
		return nil, model.NewConfigurationError(StageEvaluate, "data is not split")
	}

	labels, err := device.FetchAs[*mat.Dense](ctx, p.labelHolder, p.testLabels)
	if err != nil {
		return nil, model.NewSecureComputeError(StageEvaluate, p.labelHolder.Name(), err)
	}

	result, err := evaluate(mat.Col(nil, 0, labels), scores)
	if err != nil {
		return nil, model.NewSecureComputeError(StageEvaluate, "", err)
	}
	return result, nil
}

// Run executes every stage in order. The first failure ends the run.
func (p *TrainingPipeline) Run(ctx context.Context, features, labels *data.FederatedDataset) (*model.TrainingResult, error) {
	err := p.stage(StageSplit, func() error {
		return p.Split(ctx, features, labels)
	})
	if err != nil {
		return nil, err
	}

	var trainTime float64
	err = p.stage(StageTrain, func() error {
		var err error
		trainTime, err = p.Train(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info(fmt.Sprintf("Training finished in %.3f s", trainTime))

	var scores []float64
	var predictTime float64
	err = p.stage(StagePredict, func() error {
		var err error
		scores, predictTime, err = p.Predict(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var result *model.TrainingResult
	err = p.stage(StageEvaluate, func() error {
		var err error
		result, err = p.Evaluate(ctx, scores)
		return err
	})
	if err != nil {
		return nil, err
	}

	result.TrainTime = trainTime
	result.PredictTime = predictTime
	p.logger.Info("Evaluation finished", "auc", result.AUCScore, "accuracy", result.AccuracyScore)

	return result, nil
}

func (p *TrainingPipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if p.observer != nil {
		p.observer.ObserveStage(name, time.Since(start), err)
	}
	if err != nil {
		p.logger.Error("Pipeline stage failed", "stage", name, "error", err)
	}
	return err
}

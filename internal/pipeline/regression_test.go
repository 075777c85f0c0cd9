package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

func TestSigmoidFunc(t *testing.T) {
	for _, kind := range []string{model.SigmoidReal, model.SigmoidT1, model.SigmoidT3, model.SigmoidT5, model.SigmoidSR} {
		sigmoid, err := SigmoidFunc(kind)
		require.NoError(t, err, kind)
		require.InDelta(t, 0.5, sigmoid(0), 1e-12, kind)
		require.Greater(t, sigmoid(1), sigmoid(-1), kind)
	}

	t1, _ := SigmoidFunc(model.SigmoidT1)
	require.InDelta(t, 0.75, t1(2), 1e-12)

	_, err := SigmoidFunc("t7")
	require.Error(t, err)
}

func separable() (*mat.Dense, []float64) {
	x := mat.NewDense(8, 2, []float64{
		-2, -1,
		-1.5, -0.5,
		-1, -1.5,
		-0.5, -1,
		0.5, 1,
		1, 1.5,
		1.5, 0.5,
		2, 1,
	})
	return x, []float64{0, 0, 0, 0, 1, 1, 1, 1}
}

func TestRegression_FitSeparatesClasses(t *testing.T) {
	config := model.DefaultTrainingConfig()
	config.BatchSize = 3
	config.Epochs = 20

	regression, err := NewRegression(config)
	require.NoError(t, err)

	x, y := separable()
	require.NoError(t, regression.Fit(context.Background(), x, y))

	scores, err := regression.Predict(x)
	require.NoError(t, err)
	require.Equal(t, y, Classify(scores))

	auc, err := AUCScore(y, scores)
	require.NoError(t, err)
	require.InDelta(t, 1, auc, 1e-12)
}

func TestRegression_SingleStepMatchesHandComputation(t *testing.T) {
	config := model.DefaultTrainingConfig()
	config.Epochs = 1
	config.BatchSize = 2
	config.PenaltyKind = model.PenaltyNone

	regression, err := NewRegression(config)
	require.NoError(t, err)

	x := mat.NewDense(2, 1, []float64{1, -1})
	require.NoError(t, regression.Fit(context.Background(), x, []float64{1, 0}))

	// zero weights give 0.5 everywhere: grad = [(-0.5*1 + 0.5*-1)/2, (-0.5+0.5)/2] = [-0.5, 0]
	weights := regression.Weights()
	require.InDelta(t, 0.15, weights.At(0, 0), 1e-12)
	require.InDelta(t, 0, weights.At(1, 0), 1e-12)
}

func TestRegression_L2SkipsBias(t *testing.T) {
	config := model.DefaultTrainingConfig()
	config.Epochs = 2
	config.BatchSize = 1
	config.L2Norm = 1
	config.RegressionKind = model.RegressionLinear

	regression, err := NewRegression(config)
	require.NoError(t, err)

	// a constant target is fitted by the bias; the penalty never touches it
	x := mat.NewDense(2, 1, []float64{0, 0})
	require.NoError(t, regression.Fit(context.Background(), x, []float64{1, 1}))

	weights := regression.Weights()
	require.Equal(t, 0.0, weights.At(0, 0))
	require.Greater(t, weights.At(1, 0), 0.0)
}

func TestRegression_PredictErrors(t *testing.T) {
	regression, err := NewRegression(model.DefaultTrainingConfig())
	require.NoError(t, err)

	_, err = regression.Predict(mat.NewDense(1, 1, nil))
	require.Error(t, err)

	x, y := separable()
	require.NoError(t, regression.Fit(context.Background(), x, y))
	_, err = regression.Predict(mat.NewDense(1, 3, nil))
	require.Error(t, err)
}

func TestRegression_FitHonoursCancellation(t *testing.T) {
	regression, err := NewRegression(model.DefaultTrainingConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x, y := separable()
	require.ErrorIs(t, regression.Fit(ctx, x, y), context.Canceled)
}

func TestNewRegression_RejectsUnknownKinds(t *testing.T) {
	config := model.DefaultTrainingConfig()
	config.SigmoidKind = "t7"
	_, err := NewRegression(config)
	require.Error(t, err)
}

package pipeline

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

type Sigmoid func(x float64) float64

// SigmoidFunc returns the sigmoid or one of its polynomial approximations.
func SigmoidFunc(kind string) (Sigmoid, error) {
	switch kind {
	case model.SigmoidReal:
		return func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }, nil
	case model.SigmoidT1:
		return func(x float64) float64 { return 0.5 + 0.125*x }, nil
	case model.SigmoidT3:
		return func(x float64) float64 { return 0.5 + 0.197*x - 0.004*x*x*x }, nil
	case model.SigmoidT5:
		return func(x float64) float64 {
			x3 := x * x * x
			return 0.5 + 0.2159198015*x - 0.0082176259*x3 + 0.0001825597*x3*x*x
		}, nil
	case model.SigmoidSR:
		return func(x float64) float64 { return 0.5 + 0.5*x/math.Sqrt(1+x*x) }, nil
	}
	return nil, fmt.Errorf("unknown sigmoid kind %q", kind)
}

// Regression is a linear or logistic model over the features of all parties.
// The last weight is the bias.
type Regression struct {
	config  model.TrainingConfig
	link    Sigmoid
	weights *mat.VecDense
}

func NewRegression(config model.TrainingConfig) (*Regression, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	link := func(x float64) float64 { return x }
	if config.RegressionKind == model.RegressionLogistic {
		sigmoid, err := SigmoidFunc(config.SigmoidKind)
		if err != nil {
			return nil, err
		}
		link = sigmoid
	}

	return &Regression{config: config, link: link}, nil
}

// Fit runs mini-batch gradient descent from zero weights. Batches are taken in
// row order and the last one may be shorter.
func (r *Regression) Fit(ctx context.Context, x *mat.Dense, y []float64) error {
	rows, cols := x.Dims()
	if rows == 0 || rows != len(y) {
		return fmt.Errorf("%d labels for %d rows", len(y), rows)
	}

	xb := withBias(x)
	r.weights = mat.NewVecDense(cols+1, nil)

	for epoch := 0; epoch < r.config.Epochs; epoch++ {
		for start := 0; start < rows; start += r.config.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+r.config.BatchSize, rows)
			r.step(xb.Slice(start, end, 0, cols+1), y[start:end])
		}
	}
	return nil
}

func (r *Regression) step(batch mat.Matrix, y []float64) {
	size, _ := batch.Dims()

	var z mat.VecDense
	z.MulVec(batch, r.weights)
	residual := mat.NewVecDense(size, nil)
	for i := 0; i < size; i++ {
		residual.SetVec(i, r.link(z.AtVec(i))-y[i])
	}

	var grad mat.VecDense
	grad.MulVec(batch.T(), residual)
	grad.ScaleVec(1/float64(size), &grad)

	if r.config.PenaltyKind == model.PenaltyL2 {
		for j := 0; j < r.weights.Len()-1; j++ {
			grad.SetVec(j, grad.AtVec(j)+r.config.L2Norm*r.weights.AtVec(j))
		}
	}

	r.weights.AddScaledVec(r.weights, -r.config.LearningRate, &grad)
}

// Predict returns one score per row, probabilities for the logistic model.
func (r *Regression) Predict(x *mat.Dense) ([]float64, error) {
	if r.weights == nil {
		return nil, fmt.Errorf("model is not fitted")
	}
	_, cols := x.Dims()
	if cols+1 != r.weights.Len() {
		return nil, fmt.Errorf("model has %d features, got %d", r.weights.Len()-1, cols)
	}

	var z mat.VecDense
	z.MulVec(withBias(x), r.weights)

	scores := make([]float64, z.Len())
	for i := range scores {
		scores[i] = r.link(z.AtVec(i))
	}
	return scores, nil
}

// Weights returns the model as a column matrix so it can be held by the secure device.
func (r *Regression) Weights() *mat.Dense {
	return mat.NewDense(r.weights.Len(), 1, mat.Col(nil, 0, r.weights))
}

func (r *Regression) SetWeights(w *mat.Dense) {
	rows, _ := w.Dims()
	r.weights = mat.NewVecDense(rows, mat.Col(nil, 0, w))
}

func withBias(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	xb := mat.NewDense(rows, cols+1, nil)
	xb.Slice(0, rows, 0, cols).(*mat.Dense).Copy(x)
	for i := 0; i < rows; i++ {
		xb.Set(i, cols, 1)
	}
	return xb
}

// hstack concatenates the party feature blocks in party order.
func hstack(ctx context.Context, env device.Env, blocks []*device.Future) (*mat.Dense, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no feature blocks")
	}

	parts := make([]*mat.Dense, 0, len(blocks))
	rows, cols := -1, 0
	for _, block := range blocks {
		m, err := device.ResolveAs[*mat.Dense](ctx, env, block)
		if err != nil {
			return nil, err
		}
		r, c := m.Dims()
		if rows >= 0 && r != rows {
			return nil, fmt.Errorf("feature block of %s has %d rows, want %d", block.Ref().Owner, r, rows)
		}
		rows = r
		cols += c
		parts = append(parts, m)
	}

	out := mat.NewDense(rows, cols, nil)
	offset := 0
	for _, part := range parts {
		_, c := part.Dims()
		out.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(part)
		offset += c
	}
	return out, nil
}

// FitRegression trains the model on the secure device and keeps its weights there.
type FitRegression struct {
	Features []*device.Future
	Labels   *device.Future
	Config   model.TrainingConfig
}

func (c FitRegression) Name() string {
	return "fit_regression"
}

func (c FitRegression) Run(ctx context.Context, env device.Env) (any, error) {
	x, err := hstack(ctx, env, c.Features)
	if err != nil {
		return nil, err
	}
	y, err := device.ResolveAs[*mat.Dense](ctx, env, c.Labels)
	if err != nil {
		return nil, err
	}

	regression, err := NewRegression(c.Config)
	if err != nil {
		return nil, err
	}
	if err := regression.Fit(ctx, x, mat.Col(nil, 0, y)); err != nil {
		return nil, err
	}
	return regression.Weights(), nil
}

// PredictRegression scores the features with weights produced by FitRegression.
type PredictRegression struct {
	Weights  *device.Future
	Features []*device.Future
	Config   model.TrainingConfig
}

func (c PredictRegression) Name() string {
	return "predict_regression"
}

func (c PredictRegression) Run(ctx context.Context, env device.Env) (any, error) {
	weights, err := device.ResolveAs[*mat.Dense](ctx, env, c.Weights)
	if err != nil {
		return nil, err
	}
	x, err := hstack(ctx, env, c.Features)
	if err != nil {
		return nil, err
	}

	regression, err := NewRegression(c.Config)
	if err != nil {
		return nil, err
	}
	regression.SetWeights(weights)

	scores, err := regression.Predict(x)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(len(scores), 1, scores), nil
}

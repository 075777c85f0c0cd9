package data

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

// LoadColumns loads the standard-scaled feature columns [Start, End) on the executing party.
// A positive TotalColumns must match the width of the table.
type LoadColumns struct {
	Reader       RowReader
	Start        int
	End          int
	TotalColumns int
}

func (c LoadColumns) Name() string {
	return fmt.Sprintf("load_columns[%d:%d]", c.Start, c.End)
}

func (c LoadColumns) Run(ctx context.Context, env device.Env) (any, error) {
	table, err := c.Reader.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkWidth(table, c.TotalColumns); err != nil {
		return nil, err
	}

	rows, cols := table.Dims()
	if c.Start < 0 || c.End > cols || c.Start >= c.End {
		return nil, fmt.Errorf("column range [%d, %d) invalid for %d columns", c.Start, c.End, cols)
	}

	scaled := StandardScale(table.Features)
	slice := mat.DenseCopyOf(scaled.Slice(0, rows, c.Start, c.End))
	return slice, nil
}

// LoadLabels loads the label column on the executing party.
type LoadLabels struct {
	Reader       RowReader
	TotalColumns int
}

func (c LoadLabels) Name() string {
	return "load_labels"
}

func (c LoadLabels) Run(ctx context.Context, env device.Env) (any, error) {
	table, err := c.Reader.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkWidth(table, c.TotalColumns); err != nil {
		return nil, err
	}
	return table.LabelColumn(), nil
}

func checkWidth(table *Table, totalColumns int) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if _, cols := table.Dims(); totalColumns > 0 && cols != totalColumns {
		return model.NewConfigurationError("load", fmt.Sprintf("dataset has %d feature columns, %d configured", cols, totalColumns))
	}
	return nil
}

type SplitSide string

const (
	TrainSide SplitSide = "train"
	TestSide  SplitSide = "test"
)

// SplitRows keeps the rows of one side of a seeded shuffle split. The shuffle only
// depends on the row count and the seed, so every party selects the same rows.
type SplitRows struct {
	Input         *device.Future
	TrainFraction float64
	Seed          int64
	Side          SplitSide
}

func (c SplitRows) Name() string {
	return fmt.Sprintf("split_rows[%s]", c.Side)
}

func (c SplitRows) Run(ctx context.Context, env device.Env) (any, error) {
	input, err := device.ResolveAs[*mat.Dense](ctx, env, c.Input)
	if err != nil {
		return nil, err
	}

	rows, cols := input.Dims()
	train, test, err := SplitIndices(rows, c.TrainFraction, c.Seed)
	if err != nil {
		return nil, err
	}

	indices := train
	if c.Side == TestSide {
		indices = test
	}

	out := mat.NewDense(len(indices), cols, nil)
	for i, row := range indices {
		out.SetRow(i, input.RawRowView(row))
	}
	return out, nil
}

// SplitIndices shuffles 0..rows-1 with seed and cuts the permutation at
// floor(fraction*rows). Both sides must be non-empty.
func SplitIndices(rows int, fraction float64, seed int64) (train, test []int, err error) {
	nTrain := int(math.Floor(fraction * float64(rows)))
	if nTrain <= 0 || nTrain >= rows {
		return nil, nil, fmt.Errorf("split of %d rows at %.2f leaves an empty side", rows, fraction)
	}

	perm := rand.New(rand.NewPCG(uint64(seed), uint64(rows))).Perm(rows)
	return perm[:nTrain], perm[nTrain:], nil
}

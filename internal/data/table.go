package data

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Table is a labelled feature table, rows are samples.
type Table struct {
	Features *mat.Dense
	Labels   []float64
}

func (t *Table) Dims() (rows, cols int) {
	if t.Features == nil {
		return 0, 0
	}
	return t.Features.Dims()
}

func (t *Table) Validate() error {
	rows, cols := t.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("empty table")
	}
	if len(t.Labels) != rows {
		return fmt.Errorf("%d labels for %d rows", len(t.Labels), rows)
	}
	for i, label := range t.Labels {
		if label != 0 && label != 1 {
			return fmt.Errorf("row %d: label %v is not binary", i, label)
		}
	}
	return nil
}

// StandardScale returns a copy of m with every column shifted to zero mean and
// scaled to unit population standard deviation. Constant columns are only shifted.
func StandardScale(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	scaled := mat.NewDense(rows, cols, nil)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, m)
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 {
			std = 1
		}
		for i, v := range column {
			scaled.Set(i, j, (v-mean)/std)
		}
	}
	return scaled
}

// LabelColumn returns the labels as a single-column matrix.
func (t *Table) LabelColumn() *mat.Dense {
	return mat.NewDense(len(t.Labels), 1, append([]float64(nil), t.Labels...))
}

package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// RowReader is the source of the labelled table every party loads its columns from.
type RowReader interface {
	Read(ctx context.Context) (*Table, error)
}

// SyntheticReader generates a deterministic binary classification table.
// Every column is informative with its own offset, scale and direction, so the
// classes are separable only after combining columns of several parties.
type SyntheticReader struct {
	Rows             int
	Columns          int
	PositiveFraction float64
	Seed             uint64
}

func NewSyntheticReader(rows, columns int, seed uint64) *SyntheticReader {
	return &SyntheticReader{
		Rows:             rows,
		Columns:          columns,
		PositiveFraction: 0.63,
		Seed:             seed,
	}
}

func (r *SyntheticReader) Read(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Rows <= 0 || r.Columns <= 0 {
		return nil, fmt.Errorf("synthetic table needs positive dimensions, got %dx%d", r.Rows, r.Columns)
	}

	src := rand.NewPCG(r.Seed, r.Seed^0x9e3779b97f4a7c15)
	labelDist := distuv.Bernoulli{P: r.PositiveFraction, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	labels := make([]float64, r.Rows)
	for i := range labels {
		labels[i] = labelDist.Rand()
	}

	features := mat.NewDense(r.Rows, r.Columns, nil)
	for j := 0; j < r.Columns; j++ {
		offset := float64(j%7) - 3
		scale := 1 + float64(j%4)*2.5
		shift := 0.35 + 0.15*float64(j%5)
		if j%2 == 1 {
			shift = -shift
		}
		for i := 0; i < r.Rows; i++ {
			class := 2*labels[i] - 1
			features.Set(i, j, scale*(offset+shift*class+noise.Rand()))
		}
	}

	return &Table{Features: features, Labels: labels}, nil
}

// CSVReader reads a numeric table with one label column from a CSV file.
// A negative LabelColumn counts from the last column.
type CSVReader struct {
	Path        string
	LabelColumn int
	HasHeader   bool
}

func (r *CSVReader) Read(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer file.Close()

	return ParseCSV(file, r.LabelColumn, r.HasHeader)
}

func ParseCSV(in io.Reader, labelColumn int, hasHeader bool) (*Table, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	if hasHeader && len(records) > 0 {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset has no rows")
	}

	width := len(records[0])
	if width < 2 {
		return nil, fmt.Errorf("dataset needs a label and at least one feature column")
	}
	if labelColumn < 0 {
		labelColumn += width
	}
	if labelColumn < 0 || labelColumn >= width {
		return nil, fmt.Errorf("label column %d out of range for %d columns", labelColumn, width)
	}

	features := mat.NewDense(len(records), width-1, nil)
	labels := make([]float64, len(records))
	for i, record := range records {
		col := 0
		for j, field := range record {
			value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+1, j+1, err)
			}
			if j == labelColumn {
				labels[i] = value
				continue
			}
			features.Set(i, col, value)
			col++
		}
	}

	table := &Table{Features: features, Labels: labels}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

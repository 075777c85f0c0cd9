package data

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/device"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

type PartitionWay string

const Vertical PartitionWay = "vertical"

// Partition is the slice of a dataset held by one party. Data is nil when the
// party holds no columns.
type Partition struct {
	Owner   device.Handle
	Columns ColumnRange
	Data    *device.Future
}

type FederatedDataset struct {
	Way        PartitionWay
	Partitions []Partition
}

// Partition returns the partition held by the named party.
func (d *FederatedDataset) Partition(owner string) (Partition, bool) {
	for _, partition := range d.Partitions {
		if partition.Owner.Name() == owner {
			return partition, true
		}
	}
	return Partition{}, false
}

// Futures returns the data futures of all non-empty partitions in party order.
func (d *FederatedDataset) Futures() []*device.Future {
	futures := []*device.Future{}
	for _, partition := range d.Partitions {
		if partition.Data != nil {
			futures = append(futures, partition.Data)
		}
	}
	return futures
}

func (d *FederatedDataset) Owners() []string {
	owners := []string{}
	for _, partition := range d.Partitions {
		owners = append(owners, partition.Owner.Name())
	}
	return owners
}

// Partitioner distributes the feature columns of a table over the parties and
// places the labels on the first party.
type Partitioner struct {
	logger       hclog.Logger
	reader       RowReader
	totalColumns int
}

func NewPartitioner(logger hclog.Logger, reader RowReader, totalColumns int) *Partitioner {
	return &Partitioner{
		logger:       logger,
		reader:       reader,
		totalColumns: totalColumns,
	}
}

// Partition submits the loads and returns once every load has completed.
func (p *Partitioner) Partition(ctx context.Context, handles []device.Handle) (*FederatedDataset, *FederatedDataset, error) {
	if len(handles) == 0 {
		return nil, nil, model.NewConfigurationError("partition", "no party handles")
	}

	features := &FederatedDataset{Way: Vertical}
	for i, columns := range ColumnRanges(len(handles), p.totalColumns) {
		partition := Partition{Owner: handles[i], Columns: columns}
		if !columns.Empty() {
			future, err := handles[i].Submit(ctx, LoadColumns{Reader: p.reader, Start: columns.Start, End: columns.End,
				TotalColumns: p.totalColumns})
			if err != nil {
				return nil, nil, wrapSecureCompute("partition", err)
			}
			partition.Data = future
		} else {
			p.logger.Warn("Party holds no feature columns", "party", handles[i].Name())
		}
		features.Partitions = append(features.Partitions, partition)
		p.logger.Debug("Feature columns assigned", "party", handles[i].Name(), "columns", columns.String())
	}

	labelFuture, err := handles[0].Submit(ctx, LoadLabels{Reader: p.reader, TotalColumns: p.totalColumns})
	if err != nil {
		return nil, nil, wrapSecureCompute("partition", err)
	}
	labels := &FederatedDataset{
		Way:        Vertical,
		Partitions: []Partition{{Owner: handles[0], Columns: ColumnRange{Start: 0, End: 1}, Data: labelFuture}},
	}

	futures := append(features.Futures(), labelFuture)
	if err := device.Wait(ctx, futures...); err != nil {
		return nil, nil, wrapSecureCompute("partition", err)
	}

	p.logger.Info(fmt.Sprintf("Partitioned %d columns over %d parties", p.totalColumns, len(handles)),
		"label_holder", handles[0].Name())

	return features, labels, nil
}

func wrapSecureCompute(op string, err error) error {
	if model.KindOf(err) != "" {
		return err
	}
	return model.NewSecureComputeError(op, "", err)
}

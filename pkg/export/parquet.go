package export

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/nicktill/moldwatch/pkg/monitoring"
)

// RowRecord is one raw reading in a Parquet export.
type RowRecord struct {
	TimestampMs int64    `parquet:"timestamp_ms"`
	Value       *float64 `parquet:"value,optional"`
	ComponentID *string  `parquet:"component_id,optional,zstd"`
	MachineID   *string  `parquet:"machine_id,optional,zstd"`
}

// BucketRecord is one aggregation bucket in a Parquet export.
type BucketRecord struct {
	Timestamp string  `parquet:"timestamp,zstd"`
	Avg       float64 `parquet:"avg"`
	Count     int64   `parquet:"count"`
	Min       float64 `parquet:"min"`
	Max       float64 `parquet:"max"`
}

// WriteParquet writes res as a single Parquet file. Raw results use the
// RowRecord schema, aggregated ones BucketRecord.
func WriteParquet(w io.Writer, res *monitoring.Result) error {
	opts := []parquet.WriterOption{parquet.Compression(&parquet.Zstd)}

	if res.Aggregated {
		records := make([]BucketRecord, len(res.Buckets))
		for i, b := range res.Buckets {
			records[i] = BucketRecord{
				Timestamp: b.Timestamp,
				Avg:       b.Avg,
				Count:     int64(b.Count),
				Min:       b.Min,
				Max:       b.Max,
			}
		}
		return writeRecords(parquet.NewGenericWriter[BucketRecord](w, opts...), records)
	}

	records := make([]RowRecord, len(res.Rows))
	for i, r := range res.Rows {
		records[i] = RowRecord{
			TimestampMs: r.Timestamp.UnixMilli(),
			Value:       r.Value,
			ComponentID: r.ComponentID,
			MachineID:   r.MachineID,
		}
	}
	return writeRecords(parquet.NewGenericWriter[RowRecord](w, opts...), records)
}

func writeRecords[T any](writer *parquet.GenericWriter[T], records []T) error {
	if len(records) > 0 {
		if _, err := writer.Write(records); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

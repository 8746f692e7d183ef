package storage

import (
	"context"
	"errors"
	"time"
)

// ErrTableNotFound is returned by QueryShard when the shard table has not
// been created yet. Shard tables are created lazily per calendar month, so
// callers treat this as an empty shard rather than a failure.
var ErrTableNotFound = errors.New("table not found")

// Store is the narrow read interface the monitoring pipeline needs from the
// tabular data store.
// Implementations: memory (testing), badger (embedded), sqlstore (postgres, mysql)
type Store interface {
	// LookupMapping returns every production_data record whose treeview_id
	// or treeview2_id equals component.
	LookupMapping(ctx context.Context, component string) ([]MappingRecord, error)

	// QueryShard returns rows of one monitoring_data_YYYYMM table with
	// Start <= timestamp <= End, ascending by timestamp, at most Limit rows.
	QueryShard(ctx context.Context, table string, q ShardQuery) ([]RawRow, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close cleanly shuts down the store
	Close() error
}

// ShardQuery bounds a single shard scan.
type ShardQuery struct {
	Start time.Time
	End   time.Time

	// Limit caps the number of rows returned (0 = no limit)
	Limit int
}

// RawRow is one reading as stored in a shard table. Board and Port are kept
// as text because deployments disagree on the column types.
type RawRow struct {
	Timestamp string
	Value     *float64 // shot_time, nil when NULL
	Board     string
	Port      string
	MachineID string
}

// MappingRecord is one production_data row linking a component to a
// (board, port) channel for a period of time. Empty strings stand for NULL.
type MappingRecord struct {
	Board      string
	Port       string
	StartDate  string
	StartTime  string
	EndDate    string
	EndTime    string
	TreeviewID string
	Treeview2  string
}

// Loader is implemented by the writable backends (memory, badger) so they
// can be seeded from a JSON dump.
type Loader interface {
	InsertRows(ctx context.Context, table string, rows ...RawRow) error
	PutMapping(records ...MappingRecord) error
}

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nicktill/moldwatch/pkg/logging"
	"github.com/nicktill/moldwatch/pkg/storage"
)

const (
	// MaxImportBatchSize is the maximum number of rows written at once
	MaxImportBatchSize = 5000
)

// Importer loads seed files into a writable store.
type Importer struct {
	loader storage.Loader
}

// NewImporter creates a new importer
func NewImporter(loader storage.Loader) *Importer {
	return &Importer{loader: loader}
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	RowsImported     int       `json:"rows_imported"`
	MappingsImported int       `json:"mappings_imported"`
	BatchesWritten   int       `json:"batches_written"`
	Tables           []string  `json:"tables"`
	ImportedAt       time.Time `json:"imported_at"`
	Errors           []string  `json:"errors,omitempty"`
}

// ImportData is the seed file layout.
type ImportData struct {
	Mappings []MappingEntry `json:"mappings"`
	Rows     []RowEntry     `json:"rows"`
}

// MappingEntry is one production_data record.
type MappingEntry struct {
	Board       string `json:"board"`
	Port        string `json:"port"`
	StartDate   string `json:"start_date,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	TreeviewID  string `json:"treeview_id,omitempty"`
	Treeview2ID string `json:"treeview2_id,omitempty"`
}

// RowEntry is one reading. Table is optional.
type RowEntry struct {
	Table     string   `json:"table,omitempty"`
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
	Board     string   `json:"board"`
	Port      string   `json:"port"`
	MachineID string   `json:"machine_id,omitempty"`
}

// ImportFromJSON reads a seed file and writes its mappings and rows.
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var data ImportData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	result := &ImportResult{ImportedAt: time.Now()}

	mappings := make([]storage.MappingRecord, 0, len(data.Mappings))
	for i, m := range data.Mappings {
		if m.Board == "" || m.Port == "" || (m.TreeviewID == "" && m.Treeview2ID == "") {
			result.Errors = append(result.Errors, fmt.Sprintf("mapping %d: board, port and a treeview id are required", i))
			continue
		}
		mappings = append(mappings, storage.MappingRecord{
			Board:      m.Board,
			Port:       m.Port,
			StartDate:  m.StartDate,
			StartTime:  m.StartTime,
			EndDate:    m.EndDate,
			EndTime:    m.EndTime,
			TreeviewID: m.TreeviewID,
			Treeview2:  m.Treeview2ID,
		})
	}
	if len(mappings) > 0 {
		if err := im.loader.PutMapping(mappings...); err != nil {
			return nil, fmt.Errorf("failed to write mappings: %w", err)
		}
	}
	result.MappingsImported = len(mappings)

	byTable := make(map[string][]storage.RawRow)
	for i, row := range data.Rows {
		table, err := tableFor(row)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		byTable[table] = append(byTable[table], storage.RawRow{
			Timestamp: row.Timestamp,
			Value:     row.Value,
			Board:     row.Board,
			Port:      row.Port,
			MachineID: row.MachineID,
		})
	}

	tables := make([]string, 0, len(byTable))
	for table := range byTable {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	// Write rows in batches to avoid one huge transaction
	for _, table := range tables {
		rows := byTable[table]
		for i := 0; i < len(rows); i += MaxImportBatchSize {
			end := min(i+MaxImportBatchSize, len(rows))
			if err := im.loader.InsertRows(ctx, table, rows[i:end]...); err != nil {
				return nil, fmt.Errorf("failed to write batch %d to %s: %w", result.BatchesWritten, table, err)
			}
			result.BatchesWritten++
		}
		result.RowsImported += len(rows)
	}
	result.Tables = tables

	if len(result.Errors) > 0 {
		logging.Component("export").Warn("seed import skipped invalid entries", "count", len(result.Errors))
	}
	return result, nil
}

// tableFor validates a row and picks its shard table.
func tableFor(row RowEntry) (string, error) {
	ts, ok := storage.ParseTimestamp(row.Timestamp)
	if !ok {
		return "", fmt.Errorf("unparseable timestamp %q", row.Timestamp)
	}
	if ts.Before(storage.MinTimestamp) || ts.After(storage.MaxTimestamp) {
		return "", fmt.Errorf("timestamp %q outside the storable range", row.Timestamp)
	}
	if (row.Board == "" || row.Port == "") && row.MachineID == "" {
		return "", fmt.Errorf("board and port or machine_id are required")
	}

	if row.Table == "" {
		return storage.ShardFor(ts).Table(), nil
	}
	if err := storage.ValidateTable(row.Table); err != nil {
		return "", err
	}
	return row.Table, nil
}

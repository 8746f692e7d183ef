package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nicktill/moldwatch/pkg/monitoring"
	"github.com/nicktill/moldwatch/pkg/storage"
	"github.com/nicktill/moldwatch/pkg/storage/badger"
	"github.com/nicktill/moldwatch/pkg/storage/memory"
)

func ptr[T any](v T) *T { return &v }

func TestWriteCSV_Rows(t *testing.T) {
	res := &monitoring.Result{
		Rows: []monitoring.Row{
			{
				Timestamp:   time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC),
				Value:       ptr(4.25),
				ComponentID: ptr("276"),
				MachineID:   ptr("11"),
			},
			{
				Timestamp: time.Date(2024, 9, 10, 8, 1, 0, 0, time.UTC),
				MachineID: ptr("11"),
			},
		},
	}

	buf := &bytes.Buffer{}
	if err := WriteCSV(buf, res); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 CSV records (header + 2 rows), got %d", len(records))
	}

	if strings.Join(records[0], ",") != "timestamp,value,component_id,machine_id" {
		t.Errorf("Unexpected header: %v", records[0])
	}
	if got := strings.Join(records[1], ","); got != "2024-09-10T08:00:00.000Z,4.25,276,11" {
		t.Errorf("Unexpected first row: %s", got)
	}
	// null value and component are empty cells
	if got := strings.Join(records[2], ","); got != "2024-09-10T08:01:00.000Z,,,11" {
		t.Errorf("Unexpected second row: %s", got)
	}
}

func TestWriteCSV_Buckets(t *testing.T) {
	res := &monitoring.Result{
		Aggregated: true,
		Buckets: []monitoring.Bucket{
			{Timestamp: "2024-09-10T08:00:00.000Z", Avg: 6, Count: 3, Min: 4, Max: 8},
		},
	}

	buf := &bytes.Buffer{}
	if err := WriteCSV(buf, res); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	want := "timestamp,avg,count,min,max\n2024-09-10T08:00:00.000Z,6,3,4,8\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteCSV(buf, &monitoring.Result{}); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if buf.String() != "timestamp,value,component_id,machine_id\n" {
		t.Errorf("Expected header only, got %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"parquet", FormatParquet, false},
		{"xml", "", true},
		{"CSV", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetDownloadHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetDownloadHeaders(w, FormatCSV, time.Date(2024, 9, 10, 8, 30, 15, 0, time.UTC))

	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %s", ct)
	}
	want := "attachment; filename=moldwatch-export-20240910-083015.csv"
	if cd := w.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("Expected %q, got %q", want, cd)
	}
}

func TestSetDownloadHeaders_Parquet(t *testing.T) {
	w := httptest.NewRecorder()
	SetDownloadHeaders(w, FormatParquet, time.Date(2024, 9, 10, 8, 30, 15, 0, time.UTC))

	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.apache.parquet" {
		t.Errorf("Expected parquet content type, got %s", ct)
	}
	want := "attachment; filename=moldwatch-export-20240910-083015.parquet"
	if cd := w.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("Expected %q, got %q", want, cd)
	}
}

func TestWrite_RejectsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, &monitoring.Result{}); err == nil {
		t.Error("Expected error for json, got nil")
	}
}

func TestImportFromJSON(t *testing.T) {
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	input := `{
	  "mappings": [
	    {"board": "1", "port": "1", "treeview_id": "276", "start_date": "2024-01-01", "start_time": "00:00:00"},
	    {"board": "", "port": "1", "treeview_id": "276"}
	  ],
	  "rows": [
	    {"timestamp": "2024-09-10T08:00:00Z", "value": 4.2, "board": "1", "port": "1"},
	    {"timestamp": "2024-10-01T00:00:00Z", "value": 5, "board": "1", "port": "1"},
	    {"timestamp": "not a time", "value": 1, "board": "1", "port": "1"},
	    {"timestamp": "2024-09-11T08:00:00Z", "value": 1},
	    {"table": "users", "timestamp": "2024-09-11T08:00:00Z", "board": "1", "port": "1"}
	  ]
	}`

	result, err := NewImporter(store).ImportFromJSON(ctx, strings.NewReader(input))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.RowsImported != 2 {
		t.Errorf("Expected 2 rows imported, got %d", result.RowsImported)
	}
	if result.MappingsImported != 1 {
		t.Errorf("Expected 1 mapping imported, got %d", result.MappingsImported)
	}
	if len(result.Errors) != 4 {
		t.Errorf("Expected 4 validation errors, got %d: %v", len(result.Errors), result.Errors)
	}
	if strings.Join(result.Tables, ",") != "monitoring_data_202409,monitoring_data_202410" {
		t.Errorf("Unexpected tables: %v", result.Tables)
	}

	rows, err := store.QueryShard(ctx, "monitoring_data_202409", storage.ShardQuery{
		Start: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("QueryShard failed: %v", err)
	}
	if len(rows) != 1 || *rows[0].Value != 4.2 {
		t.Errorf("Unexpected rows in September shard: %+v", rows)
	}

	records, err := store.LookupMapping(ctx, "276")
	if err != nil {
		t.Fatalf("LookupMapping failed: %v", err)
	}
	if len(records) != 1 || records[0].StartDate != "2024-01-01" {
		t.Errorf("Unexpected mappings: %+v", records)
	}
}

func TestImportFromJSON_Badger(t *testing.T) {
	store, err := badger.New(badger.Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create badger storage: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	input := `{
	  "rows": [
	    {"timestamp": "2024-09-10T12:00:00Z", "value": 1, "board": "1", "port": "1"},
	    {"timestamp": "2024-09-10T12:01Z", "value": 2, "board": "1", "port": "1"},
	    {"timestamp": "2024-09-10T12:02", "value": 3, "board": "1", "port": "1"},
	    {"timestamp": "1500-01-01T00:00:00Z", "value": 4, "board": "1", "port": "1"}
	  ]
	}`

	result, err := NewImporter(store).ImportFromJSON(ctx, strings.NewReader(input))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.RowsImported != 3 {
		t.Errorf("Expected 3 rows imported, got %d", result.RowsImported)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 validation error, got %d: %v", len(result.Errors), result.Errors)
	}

	rows, err := store.QueryShard(ctx, "monitoring_data_202409", storage.ShardQuery{
		Start: time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 9, 11, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("QueryShard failed: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("Expected 3 rows in September shard, got %d", len(rows))
	}
}

func TestImportFromJSON_Batches(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	var b strings.Builder
	b.WriteString(`{"rows": [`)
	base := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	n := MaxImportBatchSize + 10
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		ts := base.Add(time.Duration(i) * time.Second).Format(time.RFC3339)
		b.WriteString(`{"timestamp": "` + ts + `", "value": 1, "board": "1", "port": "1"}`)
	}
	b.WriteString(`]}`)

	result, err := NewImporter(store).ImportFromJSON(ctx, strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.RowsImported != n {
		t.Errorf("Expected %d rows, got %d", n, result.RowsImported)
	}
	if result.BatchesWritten != 2 {
		t.Errorf("Expected 2 batches, got %d", result.BatchesWritten)
	}
}

func TestImportFromJSON_InvalidJSON(t *testing.T) {
	_, err := NewImporter(memory.New()).ImportFromJSON(context.Background(), strings.NewReader("{not json"))
	if err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
}

package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nicktill/moldwatch/pkg/monitoring"
)

// Formats accepted by the monitoring endpoint.
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

var contentTypes = map[string]string{
	FormatCSV:     "text/csv",
	FormatParquet: "application/vnd.apache.parquet",
}

var (
	rowHeader    = []string{"timestamp", "value", "component_id", "machine_id"}
	bucketHeader = []string{"timestamp", "avg", "count", "min", "max"}
)

// ParseFormat returns json for an empty string and rejects anything other
// than json, csv or parquet.
func ParseFormat(s string) (string, error) {
	switch s {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatParquet:
		return s, nil
	default:
		return "", fmt.Errorf("invalid format %q: must be 'json', 'csv' or 'parquet'", s)
	}
}

// Filename returns the download name for an export taken at now.
func Filename(format string, now time.Time) string {
	return fmt.Sprintf("moldwatch-export-%s.%s", now.UTC().Format("20060102-150405"), format)
}

// SetDownloadHeaders marks the response as a file attachment of the given
// format.
func SetDownloadHeaders(w http.ResponseWriter, format string, now time.Time) {
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", Filename(format, now)))
}

// Write encodes res in a download format.
func Write(w io.Writer, format string, res *monitoring.Result) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, res)
	case FormatParquet:
		return WriteParquet(w, res)
	default:
		return fmt.Errorf("format %q is not a download format", format)
	}
}

// WriteCSV writes res as CSV. The columns depend on whether the result is
// aggregated.
func WriteCSV(w io.Writer, res *monitoring.Result) error {
	writer := csv.NewWriter(w)

	if res.Aggregated {
		if err := writer.Write(bucketHeader); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		for _, b := range res.Buckets {
			record := []string{
				b.Timestamp,
				formatFloat(b.Avg),
				strconv.Itoa(b.Count),
				formatFloat(b.Min),
				formatFloat(b.Max),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	} else {
		if err := writer.Write(rowHeader); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		for _, r := range res.Rows {
			record := []string{
				r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				"",
				deref(r.ComponentID),
				deref(r.MachineID),
			}
			if r.Value != nil {
				record[1] = formatFloat(*r.Value)
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

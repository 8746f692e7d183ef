package monitoring

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// isoLayout matches JavaScript's Date.toISOString, which is what the
// dashboard chart parses.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Granularity is the bucket size used for aggregation.
type Granularity string

const (
	GranularityNone   Granularity = "none"
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
)

// ParseGranularity accepts none, minute, hour or day. Empty means none.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GranularityNone, nil
	case GranularityNone, GranularityMinute, GranularityHour, GranularityDay:
		return g, nil
	default:
		return "", &ValidationError{Message: fmt.Sprintf("invalid agg %q: must be one of none, minute, hour, day", s)}
	}
}

// TimeRange is an inclusive [Start, End] interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Span returns End - Start.
func (r TimeRange) Span() time.Duration {
	return r.End.Sub(r.Start)
}

// Row is one normalized reading.
type Row struct {
	Timestamp   time.Time
	Value       *float64
	ComponentID *string
	MachineID   *string
}

// MarshalJSON renders the row the way the dashboard expects it:
// {timestamp, value, component_id, machine_id}.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp   string   `json:"timestamp"`
		Value       *float64 `json:"value"`
		ComponentID *string  `json:"component_id"`
		MachineID   *string  `json:"machine_id"`
	}{
		Timestamp:   r.Timestamp.UTC().Format(isoLayout),
		Value:       r.Value,
		ComponentID: r.ComponentID,
		MachineID:   r.MachineID,
	})
}

// Bucket is one aggregation group keyed by a floored timestamp.
type Bucket struct {
	Timestamp string  `json:"timestamp"`
	Avg       float64 `json:"avg"`
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// Query is one monitoring request after parameter parsing.
type Query struct {
	// Component filters rows through the production_data mapping (optional)
	Component string

	// Machines is a board‖port allow-list (optional)
	Machines []string

	Granularity Granularity

	// Range; zero values are replaced by the service defaults
	Range TimeRange
}

// Result is the outcome of a query. Exactly one of Rows and Buckets is
// meaningful, depending on Aggregated.
type Result struct {
	Rows       []Row
	Buckets    []Bucket
	Aggregated bool

	// Synthetic is set when the store was unreachable and a placeholder
	// series was served instead of real data.
	Synthetic bool
}

// Len returns the number of entries in the result's data array.
func (r *Result) Len() int {
	if r.Aggregated {
		return len(r.Buckets)
	}
	return len(r.Rows)
}

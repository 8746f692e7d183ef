package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/nicktill/moldwatch/pkg/export"
	"github.com/nicktill/moldwatch/pkg/httpx"
	"github.com/nicktill/moldwatch/pkg/logging"
	"github.com/nicktill/moldwatch/pkg/monitoring"
	"github.com/nicktill/moldwatch/pkg/storage"
)

// MonitoringResponse is the JSON body of GET /api/monitoring. Data holds
// raw rows when Aggregated is false and buckets otherwise.
type MonitoringResponse struct {
	Data       any  `json:"data"`
	Aggregated bool `json:"aggregated"`
	Synthetic  bool `json:"synthetic,omitempty"`
}

// handleMonitoring handles GET /api/monitoring
// Query params:
//   - component: logical component id (optional)
//   - machines: comma-separated board‖port allow-list (optional)
//   - agg: none, minute, hour or day (default: none)
//   - start, end: ISO timestamps (default: end = now, start = end - 7d)
//   - format: json, csv or parquet (default: json)
func handleMonitoring(svc *monitoring.Service, now func() time.Time) http.HandlerFunc {
	log := logging.Component("server")

	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()

		g, err := monitoring.ParseGranularity(params.Get("agg"))
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		format, err := export.ParseFormat(params.Get("format"))
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}

		q := monitoring.Query{
			Component:   strings.TrimSpace(params.Get("component")),
			Machines:    splitList(params.Get("machines")),
			Granularity: g,
			Range: monitoring.TimeRange{
				Start: parseTimeParam(params.Get("start")),
				End:   parseTimeParam(params.Get("end")),
			},
		}

		res, err := svc.Query(r.Context(), q)
		if err != nil {
			switch {
			case r.Context().Err() != nil:
				// client went away, nobody to answer
				log.Debug("monitoring query abandoned by client", "error", err)
			case monitoring.IsValidation(err):
				httpx.RespondError(w, http.StatusBadRequest, err)
			default:
				log.Error("monitoring query failed", "error", err)
				httpx.RespondError(w, http.StatusInternalServerError, err)
			}
			return
		}

		if format != export.FormatJSON {
			export.SetDownloadHeaders(w, format, now())
			if res.Synthetic {
				w.Header().Set("X-Moldwatch-Synthetic", "true")
			}
			w.WriteHeader(http.StatusOK)
			if err := export.Write(w, format, res); err != nil {
				log.Error("failed to write export", "format", format, "error", err)
			}
			return
		}

		httpx.RespondJSON(w, http.StatusOK, MonitoringResponse{
			Data:       responseData(res),
			Aggregated: res.Aggregated,
			Synthetic:  res.Synthetic,
		})
	}
}

// responseData returns the result's data array, never nil so it encodes
// as [] rather than null.
func responseData(res *monitoring.Result) any {
	if res.Aggregated {
		if res.Buckets == nil {
			return []monitoring.Bucket{}
		}
		return res.Buckets
	}
	if res.Rows == nil {
		return []monitoring.Row{}
	}
	return res.Rows
}

// splitList splits a comma-separated parameter, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseTimeParam parses a start/end parameter. Missing or unparseable
// values yield the zero time, which the service replaces with its default.
func parseTimeParam(param string) time.Time {
	t, ok := storage.ParseTimestamp(param)
	if !ok {
		return time.Time{}
	}
	return t
}

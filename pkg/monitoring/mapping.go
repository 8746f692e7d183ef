package monitoring

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nicktill/moldwatch/pkg/storage"
)

var (
	// windowStart is used when a mapping has no start date/time.
	windowStart = time.Unix(0, 0).UTC()

	// windowEnd is used when a mapping has no end date/time.
	windowEnd = time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// ValidityWindow is a period during which (Board, Port) carried a component.
type ValidityWindow struct {
	Board int
	Port  int
	From  time.Time
	To    time.Time
}

// Contains reports whether the window covers board/port at ts (inclusive).
func (w ValidityWindow) Contains(board, port int, ts time.Time) bool {
	return w.Board == board && w.Port == port && !ts.Before(w.From) && !ts.After(w.To)
}

// WindowSet is the resolved mapping of a component. A nil *WindowSet means
// "no filter"; a non-nil empty set filters out every row.
type WindowSet struct {
	windows []ValidityWindow
}

// NewWindowSet builds an active filter from windows. With no windows the
// filter is still active and matches nothing.
func NewWindowSet(windows ...ValidityWindow) *WindowSet {
	return &WindowSet{windows: append([]ValidityWindow{}, windows...)}
}

// Len returns the number of windows; 0 for a nil set.
func (s *WindowSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.windows)
}

// Windows returns a copy of the windows.
func (s *WindowSet) Windows() []ValidityWindow {
	if s == nil {
		return nil
	}
	return append([]ValidityWindow{}, s.windows...)
}

// Allows reports whether some window covers board/port at ts. A nil set
// allows everything.
func (s *WindowSet) Allows(board, port int, ts time.Time) bool {
	if s == nil {
		return true
	}
	for _, w := range s.windows {
		if w.Contains(board, port, ts) {
			return true
		}
	}
	return false
}

// MappingResolver turns a component id into validity windows. Concurrent
// lookups of the same component share one store round trip.
type MappingResolver struct {
	store   storage.Store
	timeout time.Duration
	metrics *Metrics
	log     *slog.Logger
	group   singleflight.Group
}

// NewMappingResolver creates a resolver. timeout bounds each lookup (0 = none).
func NewMappingResolver(store storage.Store, timeout time.Duration, metrics *Metrics, log *slog.Logger) *MappingResolver {
	return &MappingResolver{store: store, timeout: timeout, metrics: metrics, log: log}
}

// Resolve returns nil (no filter) for an empty component or when the lookup
// fails; it never returns an error so a broken mapping table cannot fail the
// request.
func (m *MappingResolver) Resolve(ctx context.Context, component string) *WindowSet {
	if component == "" {
		return nil
	}

	records, err := m.lookup(ctx, component)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		m.metrics.mappingFailure()
		m.log.Warn("component mapping lookup failed, not filtering by component",
			"component", component, "error", err)
		return nil
	}

	set := NewWindowSet()
	for _, r := range records {
		w, ok := windowFromRecord(r)
		if !ok {
			m.log.Debug("skipping mapping record with non-numeric board/port",
				"component", component, "board", r.Board, "port", r.Port)
			continue
		}
		set.windows = append(set.windows, w)
	}
	return set
}

// lookup runs the store lookup under singleflight. The shared call is
// detached from any single caller's cancellation and bounded by the
// resolver timeout instead; each caller still stops waiting when its own
// ctx is done.
func (m *MappingResolver) lookup(ctx context.Context, component string) ([]storage.MappingRecord, error) {
	ch := m.group.DoChan(component, func() (interface{}, error) {
		lookupCtx := context.WithoutCancel(ctx)
		if m.timeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(lookupCtx, m.timeout)
			defer cancel()
		}
		return m.store.LookupMapping(lookupCtx, component)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]storage.MappingRecord), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func windowFromRecord(r storage.MappingRecord) (ValidityWindow, bool) {
	board, ok := parseChannel(r.Board)
	if !ok {
		return ValidityWindow{}, false
	}
	port, ok := parseChannel(r.Port)
	if !ok {
		return ValidityWindow{}, false
	}

	return ValidityWindow{
		Board: board,
		Port:  port,
		From:  combineDateTime(r.StartDate, r.StartTime, windowStart),
		To:    combineDateTime(r.EndDate, r.EndTime, windowEnd),
	}, true
}

var (
	dateLayouts  = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}
	clockLayouts = []string{"15:04:05", "15:04", "15:04:05Z07:00", "15:04:05-07"}
)

// combineDateTime joins a date column and a time column into one UTC
// instant. Both must be present and parseable, otherwise def is returned.
func combineDateTime(date, clock string, def time.Time) time.Time {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return def
	}

	var d time.Time
	var ok bool
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			d, ok = t, true
			break
		}
	}
	if !ok {
		return def
	}

	// drivers hand TIME columns back as "15:04:05", sometimes as a full
	// timestamp on 0000-01-01; only the clock part matters
	if i := strings.LastIndexAny(clock, "T "); i >= 0 {
		clock = clock[i+1:]
	}
	for _, layout := range clockLayouts {
		if c, err := time.Parse(layout, clock); err == nil {
			_, offset := c.Zone()
			return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), time.UTC).
				Add(-time.Duration(offset) * time.Second)
		}
	}
	return def
}

package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nicktill/moldwatch/pkg/logging"
	"github.com/nicktill/moldwatch/pkg/storage"
)

// Defaults used when Options leaves a field at its zero value.
const (
	DefaultWindow           = 7 * 24 * time.Hour
	DefaultMaxRawSpan       = 365 * 24 * time.Hour
	DefaultRowCap           = 500_000
	DefaultFetchConcurrency = 4
	DefaultFallbackPoints   = 500

	// ShardWarnThreshold is the shard count above which a query is logged
	// as a wide fan-out.
	ShardWarnThreshold = 60
)

// Options configures a Service.
type Options struct {
	// DefaultWindow is the range length used when start is not given
	DefaultWindow time.Duration

	// MaxRawSpan caps end-start for unaggregated queries
	MaxRawSpan time.Duration

	// RowCap is the hard row limit per shard fetch
	RowCap int

	FetchTimeout     time.Duration
	MappingTimeout   time.Duration
	FetchConcurrency int

	// MaxShards rejects queries spanning more monthly shards (0 = no limit)
	MaxShards int

	Fallback FallbackOptions

	// Now and Seed exist for tests; zero values use the wall clock.
	Now  func() time.Time
	Seed int64
}

// FallbackOptions controls the synthetic series served on store outages.
type FallbackOptions struct {
	Enabled bool
	Points  int
}

func (o Options) withDefaults() Options {
	if o.DefaultWindow <= 0 {
		o.DefaultWindow = DefaultWindow
	}
	if o.MaxRawSpan <= 0 {
		o.MaxRawSpan = DefaultMaxRawSpan
	}
	if o.RowCap <= 0 {
		o.RowCap = DefaultRowCap
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = DefaultFetchConcurrency
	}
	if o.Fallback.Points <= 0 {
		o.Fallback.Points = DefaultFallbackPoints
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service answers monitoring queries against a shard store.
type Service struct {
	opts    Options
	mapping *MappingResolver
	fetcher *Fetcher
	metrics *Metrics
	log     *slog.Logger
}

// NewService wires the pipeline. metrics may be nil.
func NewService(store storage.Store, opts Options, metrics *Metrics) *Service {
	opts = opts.withDefaults()
	log := logging.Component("monitoring")

	return &Service{
		opts:    opts,
		mapping: NewMappingResolver(store, opts.MappingTimeout, metrics, log),
		fetcher: NewFetcher(store, opts.RowCap, opts.FetchTimeout, metrics, log),
		metrics: metrics,
		log:     log,
	}
}

// Query runs one monitoring query: resolve the component mapping, fetch
// every monthly shard in the range, filter, merge and optionally
// aggregate.
//
// Errors are *ValidationError for bad input, ctx.Err() when the caller
// went away, and ErrStoreUnavailable when no shard could be read and the
// synthetic fallback is disabled.
func (s *Service) Query(ctx context.Context, q Query) (*Result, error) {
	began := time.Now()

	g := q.Granularity
	if g == "" {
		g = GranularityNone
	}

	r, err := s.resolveRange(q.Range)
	if err != nil {
		return nil, err
	}
	if g == GranularityNone && r.Span() > s.opts.MaxRawSpan {
		return nil, &ValidationError{Message: "Range too large; request aggregation using agg=hour or day"}
	}

	shards := ResolveShards(r.Start, r.End)
	if s.opts.MaxShards > 0 && len(shards) > s.opts.MaxShards {
		return nil, &ValidationError{Message: fmt.Sprintf(
			"Range too large; spans %d monthly shards, limit is %d", len(shards), s.opts.MaxShards)}
	}
	if len(shards) > ShardWarnThreshold {
		s.log.Warn("wide shard fan-out",
			"shards", len(shards), "start", r.Start, "end", r.End, "agg", g)
	}

	windows := s.mapping.Resolve(ctx, q.Component)
	allow := NewAllowList(q.Machines)

	results := make([]shardResult, len(shards))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.opts.FetchConcurrency)
	for i, shard := range shards {
		eg.Go(func() error {
			results[i] = s.fetcher.Fetch(egCtx, shard, r)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []storage.RawRow
	synthetic := false
	if storeUnavailable(results) {
		if !s.opts.Fallback.Enabled {
			return nil, fmt.Errorf("%w: all %d shard fetches failed", ErrStoreUnavailable, len(shards))
		}
		s.metrics.fallback()
		s.log.Error("store unavailable, serving synthetic series",
			"shards", len(shards), "points", s.opts.Fallback.Points)

		raw = syntheticRows(s.opts.Fallback.Points, s.opts.Now(), rand.New(rand.NewSource(s.seed())))
		windows, allow = nil, nil
		synthetic = true
	} else {
		for _, res := range results {
			raw = append(raw, res.rows...)
		}
	}

	rows := make([]Row, 0, len(raw))
	for _, rr := range raw {
		if row, ok := ParseRow(rr, windows, allow, q.Component); ok {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	result := &Result{Synthetic: synthetic}
	if g == GranularityNone {
		result.Rows = rows
	} else {
		result.Buckets = Aggregate(rows, g)
		result.Aggregated = true
	}

	s.metrics.observeQuery(g, time.Since(began))
	s.log.Debug("monitoring query",
		"component", q.Component,
		"agg", g,
		"shards", len(shards),
		"rows", len(rows),
		"results", result.Len(),
		"duration", time.Since(began))

	return result, nil
}

// resolveRange fills in defaults: end = now, start = end - DefaultWindow.
func (s *Service) resolveRange(r TimeRange) (TimeRange, error) {
	if r.End.IsZero() {
		r.End = s.opts.Now()
	}
	if r.Start.IsZero() {
		r.Start = r.End.Add(-s.opts.DefaultWindow)
	}
	r.Start, r.End = r.Start.UTC(), r.End.UTC()

	if r.Start.After(r.End) {
		return TimeRange{}, &ValidationError{Message: "start must not be after end"}
	}
	return r, nil
}

func (s *Service) seed() int64 {
	if s.opts.Seed != 0 {
		return s.opts.Seed
	}
	return time.Now().UnixNano()
}

// storeUnavailable reports a total fetch failure: nothing was read and at
// least one shard failed for a reason other than not existing.
func storeUnavailable(results []shardResult) bool {
	failed := false
	for _, r := range results {
		if r.succeeded() {
			return false
		}
		if r.err != nil {
			failed = true
		}
	}
	return failed
}

package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nicktill/moldwatch/pkg/storage"
)

// shardResult is what one shard fetch produced.
type shardResult struct {
	rows []storage.RawRow

	// missing means the table does not exist yet
	missing bool

	// err is set when the fetch failed for a reason other than the table
	// not existing yet
	err error
}

// Fetcher reads single shards with a row cap and a per-call timeout.
type Fetcher struct {
	store   storage.Store
	rowCap  int
	timeout time.Duration
	metrics *Metrics
	log     *slog.Logger
}

// NewFetcher creates a shard fetcher. timeout 0 disables the per-call
// deadline.
func NewFetcher(store storage.Store, rowCap int, timeout time.Duration, metrics *Metrics, log *slog.Logger) *Fetcher {
	return &Fetcher{store: store, rowCap: rowCap, timeout: timeout, metrics: metrics, log: log}
}

// succeeded reports whether the shard was actually read.
func (r shardResult) succeeded() bool {
	return r.err == nil && !r.missing
}

// Fetch reads rows of shard within r. A missing table yields no rows and no
// error; any other failure is logged and reported in the result, never
// returned, so one bad shard cannot abort a multi-shard scan.
func (f *Fetcher) Fetch(ctx context.Context, shard storage.Shard, r TimeRange) shardResult {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	table := shard.Table()
	rows, err := f.store.QueryShard(ctx, table, storage.ShardQuery{
		Start: r.Start,
		End:   r.End,
		Limit: f.rowCap,
	})

	switch {
	case err == nil:
		f.metrics.shardFetch(outcomeOK)
		if f.rowCap > 0 && len(rows) >= f.rowCap {
			f.log.Warn("shard hit row cap, results truncated", "table", table, "cap", f.rowCap)
		}
		return shardResult{rows: rows}
	case errors.Is(err, storage.ErrTableNotFound):
		f.metrics.shardFetch(outcomeMissing)
		f.log.Debug("shard table does not exist, treating as empty", "table", table)
		return shardResult{missing: true}
	default:
		f.metrics.shardFetch(outcomeFailed)
		f.log.Warn("shard fetch failed, treating as empty", "table", table, "error", err)
		return shardResult{err: err}
	}
}

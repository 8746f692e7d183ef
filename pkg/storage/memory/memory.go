package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nicktill/moldwatch/pkg/storage"
)

// Storage keeps shard tables and mapping records in memory. Data is lost on
// restart. Useful for testing and development.
type Storage struct {
	tables   map[string][]storage.RawRow
	mappings []storage.MappingRecord

	// fault injection
	failTables  map[string]error
	failMapping error
	pingErr     error

	mu sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		tables:     make(map[string][]storage.RawRow),
		failTables: make(map[string]error),
	}
}

// CreateTable creates an empty shard table. InsertRows creates tables on
// demand, this exists for tests that need an empty but present shard.
func (s *Storage) CreateTable(table string) error {
	if err := storage.ValidateTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = nil
	}
	return nil
}

// InsertRows appends rows to a shard table, creating it if needed.
func (s *Storage) InsertRows(ctx context.Context, table string, rows ...storage.RawRow) error {
	if err := storage.ValidateTable(table); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], rows...)
	return nil
}

// PutMapping stores production_data records.
func (s *Storage) PutMapping(records ...storage.MappingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings = append(s.mappings, records...)
	return nil
}

// FailTable makes every QueryShard on table return err. A nil err clears it.
func (s *Storage) FailTable(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failTables, table)
		return
	}
	s.failTables[table] = err
}

// FailAllTables makes every QueryShard return err, simulating an outage.
func (s *Storage) FailAllTables(err error) {
	s.FailTable("*", err)
}

// FailMapping makes LookupMapping return err. A nil err clears it.
func (s *Storage) FailMapping(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMapping = err
}

// SetPingError makes Ping return err. A nil err clears it.
func (s *Storage) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// LookupMapping returns records referencing component in either treeview column.
func (s *Storage) LookupMapping(ctx context.Context, component string) ([]storage.MappingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failMapping != nil {
		return nil, s.failMapping
	}

	var out []storage.MappingRecord
	for _, m := range s.mappings {
		if m.TreeviewID == component || m.Treeview2 == component {
			out = append(out, m)
		}
	}
	return out, nil
}

// QueryShard returns rows within the range ordered by timestamp.
func (s *Storage) QueryShard(ctx context.Context, table string, q storage.ShardQuery) ([]storage.RawRow, error) {
	if err := storage.ValidateTable(table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.failTables["*"]; ok {
		return nil, err
	}
	if err, ok := s.failTables[table]; ok {
		return nil, err
	}

	rows, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%s: %w", table, storage.ErrTableNotFound)
	}

	type keyed struct {
		ts  time.Time
		row storage.RawRow
	}
	var matched []keyed
	for _, r := range rows {
		// a column of type timestamp would reject unparseable values; rows
		// stored as text that cannot be compared are passed through
		ts, ok := storage.ParseTimestamp(r.Timestamp)
		if !ok {
			matched = append(matched, keyed{row: r})
			continue
		}
		if ts.Before(q.Start) || ts.After(q.End) {
			continue
		}
		matched = append(matched, keyed{ts: ts, row: r})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ts.Before(matched[j].ts)
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]storage.RawRow, len(matched))
	for i, m := range matched {
		out[i] = m.row
	}
	return out, nil
}

// Ping reports the injected ping error, if any.
func (s *Storage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

var (
	_ storage.Store  = (*Storage)(nil)
	_ storage.Loader = (*Storage)(nil)
)

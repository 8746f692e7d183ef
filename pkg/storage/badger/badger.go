package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/nicktill/moldwatch/pkg/logging"
	"github.com/nicktill/moldwatch/pkg/storage"
)

// Key prefixes. Every key starts with one of these bytes.
const (
	prefixTable   byte = 't' // t + table name -> presence marker
	prefixRow     byte = 'r' // r + xxhash(table) + ts + seq -> JSON RawRow
	prefixMapping byte = 'm' // m + seq -> JSON MappingRecord
)

var sequenceKey = []byte("!seq")

// Storage implements storage.Store using BadgerDB (LSM tree). Shard tables
// are key ranges: all rows of a table share the table's hash prefix and are
// ordered by timestamp within it.
type Storage struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = 48 MB default)
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)

	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3 // ~33% for memtable
	}

	// Block and index caches are unbounded by default; tie them to the memtable.
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	seq, err := db.GetSequence(sequenceKey, 1000)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to allocate key sequence: %w", err)
	}

	return &Storage{db: db, seq: seq}, nil
}

// CreateTable registers an empty shard table.
func (s *Storage) CreateTable(table string) error {
	if err := storage.ValidateTable(table); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tableKey(table), nil)
	})
}

// InsertRows writes rows into a shard table, creating it if needed. Rows
// whose timestamp cannot be parsed are rejected since the timestamp is part
// of the key.
func (s *Storage) InsertRows(ctx context.Context, table string, rows ...storage.RawRow) error {
	if err := storage.ValidateTable(table); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	type entry struct {
		key   []byte
		value []byte
	}
	entries := make([]entry, 0, len(rows))
	for i, r := range rows {
		ts, ok := storage.ParseTimestamp(r.Timestamp)
		if !ok {
			return fmt.Errorf("row %d: unparseable timestamp %q", i, r.Timestamp)
		}
		if ts.Before(storage.MinTimestamp) || ts.After(storage.MaxTimestamp) {
			return fmt.Errorf("row %d: timestamp %s outside the storable range", i, r.Timestamp)
		}
		n, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("failed to allocate key: %w", err)
		}
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
		entries = append(entries, entry{key: rowKey(table, ts, n), value: value})
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(tableKey(table), nil); err != nil {
			return err
		}
		for i, e := range entries {
			if i%100 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			if err := txn.Set(e.key, e.value); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
		return nil
	})
}

// PutMapping stores production_data records.
func (s *Storage) PutMapping(records ...storage.MappingRecord) error {
	keys := make([][]byte, len(records))
	values := make([][]byte, len(records))
	for i, m := range records {
		n, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("failed to allocate key: %w", err)
		}
		value, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode mapping: %w", err)
		}
		keys[i] = make([]byte, 9)
		keys[i][0] = prefixMapping
		binary.BigEndian.PutUint64(keys[i][1:], n)
		values[i] = value
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range keys {
			if err := txn.Set(keys[i], values[i]); err != nil {
				return fmt.Errorf("failed to write mapping: %w", err)
			}
		}
		return nil
	})
}

// LookupMapping scans the mapping records for component.
func (s *Storage) LookupMapping(ctx context.Context, component string) ([]storage.MappingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []storage.MappingRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixMapping}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m storage.MappingRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return fmt.Errorf("failed to decode mapping: %w", err)
			}
			if m.TreeviewID == component || m.Treeview2 == component {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

// QueryShard seeks to the start of the range inside the table's key space
// and iterates until End or Limit.
// Enforces context cancellation so a slow scan cannot outlive its request.
func (s *Storage) QueryShard(ctx context.Context, table string, q storage.ShardQuery) ([]storage.RawRow, error) {
	if err := storage.ValidateTable(table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type queryResult struct {
		rows []storage.RawRow
		err  error
	}
	done := make(chan queryResult, 1)

	go func() {
		var res queryResult
		startTime := time.Now()
		var iterCount int

		res.err = s.db.View(func(txn *badger.Txn) error {
			if _, err := txn.Get(tableKey(table)); err != nil {
				if err == badger.ErrKeyNotFound {
					return fmt.Errorf("%s: %w", table, storage.ErrTableNotFound)
				}
				return err
			}

			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100
			it := txn.NewIterator(opts)
			defer it.Close()

			prefix := tablePrefix(table)
			for it.Seek(rowKey(table, clampKeyTime(q.Start), 0)); it.ValidForPrefix(prefix); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				if keyTime(it.Item().Key()).After(q.End) {
					break
				}

				var r storage.RawRow
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &r)
				}); err != nil {
					return fmt.Errorf("failed to decode row: %w", err)
				}
				res.rows = append(res.rows, r)

				if q.Limit > 0 && len(res.rows) >= q.Limit {
					break
				}
			}
			return nil
		})

		if elapsed := time.Since(startTime); elapsed > 5*time.Second {
			logging.Component("storage").Warn("slow shard scan",
				"table", table, "elapsed", elapsed, "iterations", iterCount, "rows", len(res.rows))
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res.rows, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("shard query cancelled: %w", ctx.Err())
	}
}

// Ping reports whether the database is still open.
func (s *Storage) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger: database closed")
	}
	return nil
}

// Close releases the key sequence and shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to release key sequence: %w", err)
	}
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// discardRatio: run GC if this fraction of a file can be discarded (0.5 = 50%)
// Returns badger.ErrNoRewrite when nothing needed collecting.
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

func tableKey(table string) []byte {
	return append([]byte{prefixTable}, table...)
}

// tablePrefix is the row key prefix for a table: [r][xxhash(table)]
func tablePrefix(table string) []byte {
	key := make([]byte, 9)
	key[0] = prefixRow
	binary.BigEndian.PutUint64(key[1:9], xxhash.Sum64String(table))
	return key
}

// rowKey creates a sortable key: [r][table hash (8)][timestamp (8)][seq (8)]
// The timestamp's sign bit is flipped so pre-1970 instants sort first.
func rowKey(table string, ts time.Time, seq uint64) []byte {
	key := make([]byte, 25)
	copy(key, tablePrefix(table))
	binary.BigEndian.PutUint64(key[9:17], uint64(ts.UnixNano())^(1<<63))
	binary.BigEndian.PutUint64(key[17:25], seq)
	return key
}

func keyTime(key []byte) time.Time {
	if len(key) < 17 || !bytes.HasPrefix(key, []byte{prefixRow}) {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(key[9:17])^(1<<63))).UTC()
}

// clampKeyTime pulls ts into the range a row key can encode.
func clampKeyTime(ts time.Time) time.Time {
	switch {
	case ts.Before(storage.MinTimestamp):
		return storage.MinTimestamp
	case ts.After(storage.MaxTimestamp):
		return storage.MaxTimestamp
	}
	return ts
}

var (
	_ storage.Store  = (*Storage)(nil)
	_ storage.Loader = (*Storage)(nil)
)

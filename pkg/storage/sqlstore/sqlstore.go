package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nicktill/moldwatch/pkg/logging"
	"github.com/nicktill/moldwatch/pkg/storage"
)

// Config selects the SQL backend.
type Config struct {
	// Driver is "postgres" or "mysql"
	Driver string
	DSN    string
}

// Storage implements storage.Store on top of database/sql.
type Storage struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database, verifies the connection and applies the
// pool settings.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s connection test failed: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logging.Component("storage").Info("sql store connected", "driver", cfg.Driver)
	return New(db, cfg.Driver)
}

// New wraps an existing connection pool. Tests pass a sqlmock pool here.
func New(db *sql.DB, driver string) (*Storage, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db, dialect: d}, nil
}

func (s *Storage) mappingQuery() string {
	d := s.dialect
	return fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s, %s, %s, %s FROM %s WHERE CAST(%s AS %s) = %s OR CAST(%s AS %s) = %s",
		d.quote("board"), d.quote("port"),
		d.quote("start_date"), d.quote("start_time"),
		d.quote("end_date"), d.quote("end_time"),
		d.quote("treeview_id"), d.quote("treeview2_id"),
		d.quote(storage.MappingTable),
		d.quote("treeview_id"), d.textType, d.placeholder(1),
		d.quote("treeview2_id"), d.textType, d.placeholder(2),
	)
}

func (s *Storage) shardQuery(table string, limit int) string {
	d := s.dialect
	ts := d.quote("timestamp")
	query := fmt.Sprintf(
		"SELECT %s, %s, %s, %s FROM %s WHERE %s >= %s AND %s <= %s ORDER BY %s ASC",
		ts, d.quote("shot_time"), d.quote("board"), d.quote("port"),
		d.quote(table),
		ts, d.placeholder(1), ts, d.placeholder(2),
		ts,
	)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query
}

// LookupMapping selects the production_data records whose treeview_id or
// treeview2_id equals component.
func (s *Storage) LookupMapping(ctx context.Context, component string) ([]storage.MappingRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.mappingQuery(), component, component)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", storage.MappingTable, err)
	}
	defer rows.Close()

	var out []storage.MappingRecord
	for rows.Next() {
		var board, port, startDate, startTime, endDate, endTime, tv1, tv2 sql.NullString
		if err := rows.Scan(&board, &port, &startDate, &startTime, &endDate, &endTime, &tv1, &tv2); err != nil {
			return nil, fmt.Errorf("scan %s: %w", storage.MappingTable, err)
		}
		out = append(out, storage.MappingRecord{
			Board:      board.String,
			Port:       port.String,
			StartDate:  startDate.String,
			StartTime:  startTime.String,
			EndDate:    endDate.String,
			EndTime:    endTime.String,
			TreeviewID: tv1.String,
			Treeview2:  tv2.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", storage.MappingTable, err)
	}
	return out, nil
}

// QueryShard selects one month of readings. A missing table is reported as
// storage.ErrTableNotFound.
func (s *Storage) QueryShard(ctx context.Context, table string, q storage.ShardQuery) ([]storage.RawRow, error) {
	if err := storage.ValidateTable(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.shardQuery(table, q.Limit), q.Start.UTC(), q.End.UTC())
	if err != nil {
		if s.dialect.missingTable(err) {
			return nil, fmt.Errorf("%s: %w", table, storage.ErrTableNotFound)
		}
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []storage.RawRow
	for rows.Next() {
		var ts, board, port sql.NullString
		var value sql.NullFloat64
		if err := rows.Scan(&ts, &value, &board, &port); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}

		r := storage.RawRow{
			Timestamp: ts.String,
			Board:     board.String,
			Port:      port.String,
		}
		if value.Valid {
			v := value.Float64
			r.Value = &v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

var _ storage.Store = (*Storage)(nil)

/*
Package storage provides the pluggable tabular store abstraction for moldwatch.

# Store Interface

Sensor readings live in one table per calendar month (monitoring_data_YYYYMM)
and the component assignments live in production_data. The monitoring
pipeline only ever needs two reads from those tables, so the interface is
deliberately small:

	type Store interface {
	    LookupMapping(ctx context.Context, component string) ([]MappingRecord, error)
	    QueryShard(ctx context.Context, table string, q ShardQuery) ([]RawRow, error)
	    Ping(ctx context.Context) error
	    Close() error
	}

Backends:
  - memory: in-process tables for tests and demos
  - badger: BadgerDB for single-node deployments without a SQL server
  - sqlstore: PostgreSQL or MySQL through database/sql

The memory and badger backends also implement Loader so they can be seeded
from a JSON dump (see package export).

# Missing Shards

Shard tables are created lazily, so a requested range routinely covers months
with no table yet. Backends report that case as ErrTableNotFound and callers
treat it as an empty shard.

# Table Names

Table names are computed from a Shard ("YYYYMM") and checked against
ValidateTable before they are used. Backends never interpolate a name that
did not pass that check.

# Usage Example

	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: "postgres", DSN: dsn})
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	rows, err := store.QueryShard(ctx, storage.ShardFor(time.Now()).Table(), storage.ShardQuery{
	    Start: time.Now().Add(-time.Hour),
	    End:   time.Now(),
	    Limit: 1000,
	})
*/
package storage

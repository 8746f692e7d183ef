package monitoring

import (
	"time"

	"github.com/nicktill/moldwatch/pkg/storage"
)

// ResolveShards returns one shard per UTC calendar month from start's month
// through end's month, ascending. It always returns at least start's month.
func ResolveShards(start, end time.Time) []storage.Shard {
	start, end = start.UTC(), end.UTC()
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	shards := []storage.Shard{storage.ShardFor(cur)}
	for cur = cur.AddDate(0, 1, 0); !cur.After(last); cur = cur.AddDate(0, 1, 0) {
		shards = append(shards, storage.ShardFor(cur))
	}
	return shards
}

package storage

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// TablePrefix is the common prefix of every monthly shard table.
const TablePrefix = "monitoring_data_"

// MappingTable holds the component to board/port assignments.
const MappingTable = "production_data"

// ErrInvalidTable is returned for table names outside the shard allow-list.
var ErrInvalidTable = errors.New("invalid shard table name")

var tablePattern = regexp.MustCompile(`^monitoring_data_[0-9]{4}(0[1-9]|1[0-2])$`)

// Shard identifies one monthly partition as "YYYYMM".
type Shard string

// ShardFor returns the shard holding t (UTC calendar month).
func ShardFor(t time.Time) Shard {
	t = t.UTC()
	return Shard(fmt.Sprintf("%04d%02d", t.Year(), int(t.Month())))
}

// Table returns the shard's table name.
func (s Shard) Table() string {
	return TablePrefix + string(s)
}

// ValidateTable rejects any name that is not monitoring_data_YYYYMM. Every
// backend calls it before a table name reaches a query.
func ValidateTable(name string) error {
	if !tablePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

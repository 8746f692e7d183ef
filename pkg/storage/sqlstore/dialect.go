package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// DatabaseType names a supported SQL backend.
type DatabaseType string

const (
	// PostgreSQL via github.com/lib/pq
	PostgreSQL DatabaseType = "postgres"
	// MySQL via github.com/go-sql-driver/mysql
	MySQL DatabaseType = "mysql"
)

// dialect captures the few places where PostgreSQL and MySQL disagree.
type dialect struct {
	driverName string

	// quote wraps an identifier in the backend's quoting characters
	quote func(ident string) string

	// placeholder returns the n-th (1-based) bind parameter
	placeholder func(n int) string

	// textType is the type used to compare id columns as text
	textType string

	// missingTable reports whether err means the table does not exist
	missingTable func(err error) bool
}

const (
	pgUndefinedTable  = "42P01"
	mysqlNoSuchTable  = 1146
	mysqlUnknownTable = 1051
)

var dialects = map[DatabaseType]dialect{
	PostgreSQL: {
		driverName:  "postgres",
		quote:       pq.QuoteIdentifier,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		textType:    "TEXT",
		missingTable: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable
		},
	},
	MySQL: {
		driverName:  "mysql",
		quote:       func(ident string) string { return "`" + strings.ReplaceAll(ident, "`", "``") + "`" },
		placeholder: func(int) string { return "?" },
		textType:    "CHAR",
		missingTable: func(err error) bool {
			var myErr *mysql.MySQLError
			return errors.As(err, &myErr) && (myErr.Number == mysqlNoSuchTable || myErr.Number == mysqlUnknownTable)
		},
	},
}

func lookupDialect(dbType string) (dialect, error) {
	d, ok := dialects[DatabaseType(strings.ToLower(dbType))]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return d, nil
}

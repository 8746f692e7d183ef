package monitoring

import (
	"math/rand"
	"time"

	"github.com/nicktill/moldwatch/pkg/storage"
)

// Synthetic series shape.
const (
	syntheticStep  = time.Minute
	syntheticBase  = 4.0
	syntheticRange = 4.0
	syntheticBoard = "1"
	syntheticPort  = "1"
)

// syntheticRows builds n placeholder rows, one per minute, the last one at
// now. Values lie in [4, 8). The rows go through the normal row pipeline
// so the response shape matches real data.
func syntheticRows(n int, now time.Time, rnd *rand.Rand) []storage.RawRow {
	if n <= 0 {
		return nil
	}
	now = now.UTC()

	rows := make([]storage.RawRow, n)
	for i := range rows {
		ts := now.Add(-time.Duration(n-1-i) * syntheticStep)
		v := syntheticBase + rnd.Float64()*syntheticRange
		rows[i] = storage.RawRow{
			Timestamp: ts.Format(time.RFC3339Nano),
			Value:     &v,
			Board:     syntheticBoard,
			Port:      syntheticPort,
		}
	}
	return rows
}

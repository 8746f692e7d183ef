package monitoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/nicktill/moldwatch/pkg/storage"
)

// MachineKey is the board‖port identifier used by the machines allow-list.
func MachineKey(board, port string) string {
	return strings.TrimSpace(board) + strings.TrimSpace(port)
}

// NewAllowList builds the machines filter. It returns nil (no filter) when
// machines has no non-blank entries.
func NewAllowList(machines []string) map[string]struct{} {
	var allow map[string]struct{}
	for _, m := range machines {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if allow == nil {
			allow = make(map[string]struct{})
		}
		allow[m] = struct{}{}
	}
	return allow
}

// ParseRow converts one raw shard row into a Row, applying the component
// windows and the machines allow-list. The second return value is false
// when the row is dropped. It has no side effects and never panics.
func ParseRow(raw storage.RawRow, windows *WindowSet, allow map[string]struct{}, component string) (Row, bool) {
	ts, ok := storage.ParseTimestamp(raw.Timestamp)
	if !ok {
		return Row{}, false
	}

	if windows != nil {
		board, okBoard := parseChannel(raw.Board)
		port, okPort := parseChannel(raw.Port)
		if !okBoard || !okPort || !windows.Allows(board, port, ts) {
			return Row{}, false
		}
	}

	if allow != nil {
		if _, ok := allow[MachineKey(raw.Board, raw.Port)]; !ok {
			return Row{}, false
		}
	}

	row := Row{Timestamp: ts}
	if raw.Value != nil && !math.IsNaN(*raw.Value) && !math.IsInf(*raw.Value, 0) {
		v := *raw.Value
		row.Value = &v
	}
	if component != "" {
		c := component
		row.ComponentID = &c
	}

	board, port := strings.TrimSpace(raw.Board), strings.TrimSpace(raw.Port)
	switch {
	case board != "" && port != "":
		id := board + port
		row.MachineID = &id
	case strings.TrimSpace(raw.MachineID) != "":
		id := strings.TrimSpace(raw.MachineID)
		row.MachineID = &id
	}

	return row, true
}

// parseChannel parses a board or port id. Integral decimals such as "1.0"
// are accepted because some deployments store the ids as numeric columns.
func parseChannel(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

package monitoring

import (
	"sort"
	"time"
)

// bucketLayout renders bucket keys. All keys are UTC with a fixed width, so
// sorting the strings sorts the buckets chronologically.
const bucketLayout = "2006-01-02T15:04:05.000Z"

// aggregate accumulates one bucket. Avg is derived once at the end.
type aggregate struct {
	sum   float64
	count int
	min   float64
	max   float64
}

// Floor truncates ts (in UTC) to the start of its minute, hour or day.
// GranularityNone returns ts unchanged.
func Floor(ts time.Time, g Granularity) time.Time {
	ts = ts.UTC()
	switch g {
	case GranularityMinute:
		return ts.Truncate(time.Minute)
	case GranularityHour:
		return ts.Truncate(time.Hour)
	case GranularityDay:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return ts
	}
}

// Aggregate buckets rows by g and returns count/min/max/avg per bucket,
// ascending by bucket. Rows without a value are ignored and empty buckets
// are never emitted. GranularityNone yields nil; callers pass raw rows
// through instead.
func Aggregate(rows []Row, g Granularity) []Bucket {
	if g == GranularityNone || g == "" {
		return nil
	}

	groups := make(map[string]*aggregate)
	for _, r := range rows {
		if r.Value == nil {
			continue
		}
		v := *r.Value
		key := Floor(r.Timestamp, g).Format(bucketLayout)

		agg, ok := groups[key]
		if !ok {
			agg = &aggregate{min: v, max: v}
			groups[key] = agg
		}
		agg.sum += v
		agg.count++
		if v < agg.min {
			agg.min = v
		}
		if v > agg.max {
			agg.max = v
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buckets := make([]Bucket, 0, len(keys))
	for _, k := range keys {
		agg := groups[k]
		buckets = append(buckets, Bucket{
			Timestamp: k,
			Avg:       agg.sum / float64(agg.count),
			Count:     agg.count,
			Min:       agg.min,
			Max:       agg.max,
		})
	}
	return buckets
}

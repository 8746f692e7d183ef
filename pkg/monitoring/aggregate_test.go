package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowAt(ts time.Time, v *float64) Row {
	return Row{Timestamp: ts, Value: v}
}

func TestFloor(t *testing.T) {
	ts := time.Date(2024, 9, 10, 13, 45, 30, 123_000_000, time.UTC)

	assert.Equal(t, time.Date(2024, 9, 10, 13, 45, 0, 0, time.UTC), Floor(ts, GranularityMinute))
	assert.Equal(t, time.Date(2024, 9, 10, 13, 0, 0, 0, time.UTC), Floor(ts, GranularityHour))
	assert.Equal(t, time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC), Floor(ts, GranularityDay))
	assert.Equal(t, ts, Floor(ts, GranularityNone))

	// day boundaries are UTC regardless of the input zone
	local := time.Date(2024, 9, 11, 1, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC), Floor(local, GranularityDay))
}

func TestAggregate_SingleHour(t *testing.T) {
	base := time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)
	rows := []Row{
		rowAt(base.Add(5*time.Minute), fp(4)),
		rowAt(base.Add(20*time.Minute), fp(6)),
		rowAt(base.Add(59*time.Minute), fp(8)),
	}

	buckets := Aggregate(rows, GranularityHour)
	require.Len(t, buckets, 1)
	assert.Equal(t, Bucket{Timestamp: "2024-09-10T08:00:00.000Z", Avg: 6, Count: 3, Min: 4, Max: 8}, buckets[0])
}

func TestAggregate_NullValuesExcluded(t *testing.T) {
	base := time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC)
	rows := []Row{
		rowAt(base, fp(2)),
		rowAt(base.Add(time.Second), nil),
		rowAt(base.Add(2*time.Second), fp(4)),
		// a bucket holding only nulls never appears
		rowAt(base.Add(time.Hour), nil),
	}

	buckets := Aggregate(rows, GranularityMinute)
	require.Len(t, buckets, 1)
	assert.Equal(t, 2, buckets[0].Count)
	assert.Equal(t, 3.0, buckets[0].Avg)
	assert.Equal(t, 2.0, buckets[0].Min)
	assert.Equal(t, 4.0, buckets[0].Max)
}

func TestAggregate_SortedWithoutZeroFill(t *testing.T) {
	rows := []Row{
		rowAt(time.Date(2024, 9, 12, 3, 0, 0, 0, time.UTC), fp(1)),
		rowAt(time.Date(2024, 9, 10, 23, 0, 0, 0, time.UTC), fp(2)),
		rowAt(time.Date(2024, 9, 12, 22, 0, 0, 0, time.UTC), fp(3)),
	}

	buckets := Aggregate(rows, GranularityDay)
	require.Len(t, buckets, 2, "no bucket for 2024-09-11")
	assert.Equal(t, "2024-09-10T00:00:00.000Z", buckets[0].Timestamp)
	assert.Equal(t, "2024-09-12T00:00:00.000Z", buckets[1].Timestamp)
	assert.Equal(t, 2, buckets[1].Count)
	assert.Equal(t, 2.0, buckets[1].Avg)
}

func TestAggregate_Empty(t *testing.T) {
	buckets := Aggregate(nil, GranularityHour)
	assert.NotNil(t, buckets)
	assert.Empty(t, buckets)

	assert.Nil(t, Aggregate([]Row{rowAt(time.Now(), fp(1))}, GranularityNone))
}

func TestAggregate_BucketInvariants(t *testing.T) {
	base := time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)
	var rows []Row
	for i := 0; i < 500; i++ {
		v := float64((i * 37) % 101)
		rows = append(rows, rowAt(base.Add(time.Duration(i)*7*time.Minute), &v))
	}

	for _, g := range []Granularity{GranularityMinute, GranularityHour, GranularityDay} {
		total := 0
		for i, b := range Aggregate(rows, g) {
			assert.GreaterOrEqual(t, b.Count, 1)
			assert.LessOrEqual(t, b.Min, b.Avg)
			assert.LessOrEqual(t, b.Avg, b.Max)
			total += b.Count
			if i > 0 {
				assert.Less(t, Aggregate(rows, g)[i-1].Timestamp, b.Timestamp)
			}
		}
		assert.Equal(t, len(rows), total, "every valued row lands in exactly one bucket (%s)", g)
	}
}

func TestParseGranularity(t *testing.T) {
	for in, want := range map[string]Granularity{
		"":       GranularityNone,
		"none":   GranularityNone,
		"minute": GranularityMinute,
		"Hour":   GranularityHour,
		"day":    GranularityDay,
	} {
		got, err := ParseGranularity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseGranularity("week")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

package monitoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nicktill/moldwatch/pkg/storage"
	"github.com/nicktill/moldwatch/pkg/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMappingResolver_NoComponent(t *testing.T) {
	store := memory.New()
	store.FailMapping(errors.New("must not be called"))

	r := NewMappingResolver(store, time.Second, nil, discardLogger())
	assert.Nil(t, r.Resolve(context.Background(), ""))
}

func TestMappingResolver_Windows(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.PutMapping(
		storage.MappingRecord{
			Board: "1", Port: "1", TreeviewID: "276",
			StartDate: "2024-01-01", StartTime: "00:00:00",
			EndDate: "2024-06-30", EndTime: "18:30:00",
		},
		storage.MappingRecord{Board: "2", Port: "4", Treeview2: "276"},
		storage.MappingRecord{Board: "x", Port: "1", TreeviewID: "276"},
		storage.MappingRecord{Board: "9", Port: "9", TreeviewID: "300"},
	))

	set := NewMappingResolver(store, time.Second, nil, discardLogger()).Resolve(context.Background(), "276")
	require.NotNil(t, set)
	require.Equal(t, 2, set.Len())

	w := set.Windows()
	assert.Equal(t, ValidityWindow{
		Board: 1, Port: 1,
		From: date(2024, 1, 1),
		To:   time.Date(2024, 6, 30, 18, 30, 0, 0, time.UTC),
	}, w[0])

	// missing dates fall back to the epoch and the far-future sentinel
	assert.Equal(t, 2, w[1].Board)
	assert.Equal(t, 4, w[1].Port)
	assert.Equal(t, time.Unix(0, 0).UTC(), w[1].From)
	assert.Equal(t, date(2030, 1, 1), w[1].To)
}

func TestMappingResolver_UnknownComponentFiltersEverything(t *testing.T) {
	store := memory.New()

	set := NewMappingResolver(store, time.Second, nil, discardLogger()).Resolve(context.Background(), "404")
	require.NotNil(t, set, "an unmapped component is an active, empty filter")
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.Allows(1, 1, date(2024, 9, 10)))
}

func TestMappingResolver_FailureMeansNoFilter(t *testing.T) {
	store := memory.New()
	store.FailMapping(errors.New("connection refused"))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	set := NewMappingResolver(store, time.Second, metrics, discardLogger()).Resolve(context.Background(), "276")
	assert.Nil(t, set)
	assert.True(t, set.Allows(7, 7, time.Now()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.mappingFailures))
}

// gatedMappingStore holds every mapping lookup until release is closed.
type gatedMappingStore struct {
	*memory.Storage
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedMappingStore) LookupMapping(ctx context.Context, component string) ([]storage.MappingRecord, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Storage.LookupMapping(ctx, component)
}

func TestMappingResolver_ConcurrentLookupsShareOneCall(t *testing.T) {
	store := &gatedMappingStore{Storage: memory.New(), release: make(chan struct{})}
	require.NoError(t, store.PutMapping(storage.MappingRecord{TreeviewID: "276", Board: "1", Port: "1"}))
	r := NewMappingResolver(store, time.Second, nil, discardLogger())

	var wg sync.WaitGroup
	sets := make([]*WindowSet, 5)
	for i := range sets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sets[i] = r.Resolve(context.Background(), "276")
		}(i)
	}

	require.Eventually(t, func() bool { return store.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.calls.Load())
	for _, set := range sets {
		require.NotNil(t, set)
		assert.Equal(t, 1, set.Len())
	}
}

func TestMappingResolver_CallerCancelled(t *testing.T) {
	store := &gatedMappingStore{Storage: memory.New(), release: make(chan struct{})}
	defer close(store.release)
	r := NewMappingResolver(store, 0, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *WindowSet, 1)
	go func() { done <- r.Resolve(ctx, "276") }()

	require.Eventually(t, func() bool { return store.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case set := <-done:
		assert.Nil(t, set)
	case <-time.After(5 * time.Second):
		t.Fatal("resolve did not return after cancellation")
	}
}

func TestWindowSet_Allows(t *testing.T) {
	set := NewWindowSet(ValidityWindow{
		Board: 1, Port: 1,
		From: date(2024, 1, 1),
		To:   date(2024, 2, 1),
	})

	assert.True(t, set.Allows(1, 1, date(2024, 1, 1)), "from is inclusive")
	assert.True(t, set.Allows(1, 1, date(2024, 2, 1)), "to is inclusive")
	assert.False(t, set.Allows(1, 1, date(2024, 2, 1).Add(time.Nanosecond)))
	assert.False(t, set.Allows(1, 2, date(2024, 1, 15)))
	assert.False(t, set.Allows(2, 1, date(2024, 1, 15)))
}

func TestCombineDateTime(t *testing.T) {
	def := date(1999, 1, 1)

	tests := []struct {
		name  string
		date  string
		clock string
		want  time.Time
	}{
		{"date and clock", "2024-03-05", "07:08:09", time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)},
		{"clock without seconds", "2024-03-05", "07:08", time.Date(2024, 3, 5, 7, 8, 0, 0, time.UTC)},
		{"date as timestamp", "2024-03-05T00:00:00Z", "07:08:09", time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)},
		{"clock as timestamp", "2024-03-05", "0000-01-01T07:08:09Z", time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)},
		{"clock with zone", "2024-03-05", "07:08:09+02:00", time.Date(2024, 3, 5, 5, 8, 9, 0, time.UTC)},
		{"missing date", "", "07:08:09", def},
		{"missing clock", "2024-03-05", "", def},
		{"garbage date", "yesterday", "07:08:09", def},
		{"garbage clock", "2024-03-05", "noon", def},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, combineDateTime(tt.date, tt.clock, def))
		})
	}
}

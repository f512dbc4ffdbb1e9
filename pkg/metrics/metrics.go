package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

var (
	storage tstorage.Storage
	mu      sync.RWMutex

	countersMu sync.Mutex
	counters   = map[string]int64{}
)

// InitMetrics opens the time series storage under <workdir>/data/metrics.
// An empty workdir keeps everything in memory.
func InitMetrics(workdir string) error {
	opts := []tstorage.Option{
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(7 * 24 * time.Hour),
	}
	if workdir != "" {
		opts = append(opts, tstorage.WithDataPath(filepath.Join(workdir, "data", "metrics")))
	}
	s, err := tstorage.NewStorage(opts...)
	if err != nil {
		return err
	}
	mu.Lock()
	storage = s
	mu.Unlock()
	return nil
}

func insert(name string, value float64) {
	mu.RLock()
	s := storage
	mu.RUnlock()
	if s == nil {
		return
	}
	_ = s.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: value},
	}})
}

// SetGauge records the current value of a gauge
func SetGauge(name string, value int64) {
	insert(name, float64(value))
}

// Incr bumps a monotonic counter and records its new value
func Incr(name string) int64 {
	countersMu.Lock()
	counters[name]++
	v := counters[name]
	countersMu.Unlock()
	insert(name, float64(v))
	return v
}

// Counter returns the in-process value of a counter
func Counter(name string) int64 {
	countersMu.Lock()
	defer countersMu.Unlock()
	return counters[name]
}

// Points returns samples of name in [start, end)
func Points(name string, start, end time.Time) ([]*tstorage.DataPoint, error) {
	mu.RLock()
	s := storage
	mu.RUnlock()
	if s == nil {
		return nil, nil
	}
	pts, err := s.Select(name, nil, start.Unix(), end.Unix())
	if err == tstorage.ErrNoDataPoints {
		return nil, nil
	}
	return pts, err
}

// Close flushes and closes the storage
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}

// Package metrics tracks stream-level counters for the daemon. The collector
// is plain in-memory tracking; the exposition format lives in prometheus.go.
package metrics

import (
	"sync"
	"time"
)

// Collector accumulates counters across all sessions.
type Collector struct {
	mu sync.RWMutex

	// Stream lifecycle
	streamsStarted   int64
	streamsCompleted int64
	streamErrors     map[string]int64 // by error kind
	cancellations    int64

	// Token usage reported by backends
	totalPromptTokens     int64
	totalCompletionTokens int64
	tokensByModel         map[string]int64

	// Per-backend-kind request counts and latency
	backendRequests map[string]int64
	backendLatency  map[string]int64 // total ms

	startTime time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		streamErrors:    make(map[string]int64),
		tokensByModel:   make(map[string]int64),
		backendRequests: make(map[string]int64),
		backendLatency:  make(map[string]int64),
		startTime:       time.Now(),
	}
}

// RecordStreamStart counts one stream beginning against a backend kind.
func (c *Collector) RecordStreamStart(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streamsStarted++
	c.backendRequests[kind]++
}

// RecordStreamEnd counts a finished stream and its wall-clock duration.
// errKind is empty for clean completion.
func (c *Collector) RecordStreamEnd(kind string, duration time.Duration, errKind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.backendLatency[kind] += duration.Milliseconds()
	if errKind == "" {
		c.streamsCompleted++
		return
	}
	c.streamErrors[errKind]++
}

// RecordCancellation counts an explicit cancel of an active stream.
func (c *Collector) RecordCancellation() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancellations++
}

// RecordTokenUsage records usage totals a backend reported for one response.
func (c *Collector) RecordTokenUsage(model string, promptTokens, completionTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalPromptTokens += promptTokens
	c.totalCompletionTokens += completionTokens
	if model != "" {
		c.tokensByModel[model] += promptTokens + completionTokens
	}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Uptime                int64
	StreamsStarted        int64
	StreamsCompleted      int64
	StreamErrors          map[string]int64
	Cancellations         int64
	TotalPromptTokens     int64
	TotalCompletionTokens int64
	TokensByModel         map[string]int64
	BackendRequests       map[string]int64
	BackendLatency        map[string]int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Uptime:                int64(time.Since(c.startTime).Seconds()),
		StreamsStarted:        c.streamsStarted,
		StreamsCompleted:      c.streamsCompleted,
		StreamErrors:          copyMap(c.streamErrors),
		Cancellations:         c.cancellations,
		TotalPromptTokens:     c.totalPromptTokens,
		TotalCompletionTokens: c.totalCompletionTokens,
		TokensByModel:         copyMap(c.tokensByModel),
		BackendRequests:       copyMap(c.backendRequests),
		BackendLatency:        copyMap(c.backendLatency),
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

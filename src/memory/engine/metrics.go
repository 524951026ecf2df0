package engine

import "sync/atomic"

// Metrics captures lightweight runtime counters for observability.
type Metrics struct {
	created       atomic.Int64
	retrieved     atomic.Int64
	graphApplied  atomic.Int64
	graphSkipped  atomic.Int64
	graphStale    atomic.Int64
	embedFailures atomic.Int64
	storeFailures atomic.Int64
}

func (m *Metrics) IncCreated()         { m.created.Add(1) }
func (m *Metrics) IncRetrieved(n int)  { m.retrieved.Add(int64(n)) }
func (m *Metrics) IncGraphApplied()    { m.graphApplied.Add(1) }
func (m *Metrics) IncGraphSkipped()    { m.graphSkipped.Add(1) }
func (m *Metrics) IncGraphStale()      { m.graphStale.Add(1) }
func (m *Metrics) IncEmbedFailures()   { m.embedFailures.Add(1) }
func (m *Metrics) IncStoreFailures()   { m.storeFailures.Add(1) }

// MetricsSnapshot holds the current values for reporting/logging.
type MetricsSnapshot struct {
	Created       int64 `json:"created"`
	Retrieved     int64 `json:"retrieved"`
	GraphApplied  int64 `json:"graph_applied"`
	GraphSkipped  int64 `json:"graph_skipped"`
	GraphStale    int64 `json:"graph_stale"`
	EmbedFailures int64 `json:"embed_failures"`
	StoreFailures int64 `json:"store_failures"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Created:       m.created.Load(),
		Retrieved:     m.retrieved.Load(),
		GraphApplied:  m.graphApplied.Load(),
		GraphSkipped:  m.graphSkipped.Load(),
		GraphStale:    m.graphStale.Load(),
		EmbedFailures: m.embedFailures.Load(),
		StoreFailures: m.storeFailures.Load(),
	}
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/routectl/ctlplane/internal/config"
)

// Metrics receives the journal write-latency histogram of §6 "Peer
// observability". noopMetrics is used when a caller doesn't wire one.
type Metrics interface {
	ObserveJournalWrite(op string, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveJournalWrite(string, float64) {}

// Journal records applied config deltas and periodic peer-counter
// snapshots for later inspection; it never sits on the route-commit
// hot path and has no bearing on table/replication correctness.
type Journal struct {
	pool    *pgxpool.Pool
	metrics Metrics
}

// NewJournal wraps an existing pool.
func NewJournal(pool *pgxpool.Pool, opts ...JournalOption) *Journal {
	j := &Journal{pool: pool, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JournalOption configures a Journal at construction.
type JournalOption func(*Journal)

// WithMetrics attaches the collector notified of every write's latency.
func WithMetrics(m Metrics) JournalOption {
	return func(j *Journal) { j.metrics = m }
}

// AppendDelta records one applied config delta, raw content included
// so the journal can answer "what was the last instance/policy delta
// applied to X" without replaying the live process.
func (j *Journal) AppendDelta(ctx context.Context, d config.Delta, appliedAt time.Time) error {
	start := time.Now()
	defer func() { j.metrics.ObserveJournalWrite("delta", time.Since(start).Seconds()) }()

	content, err := marshalDeltaContent(d)
	if err != nil {
		return fmt.Errorf("store: marshaling delta content: %w", err)
	}
	_, err = j.pool.Exec(ctx,
		`INSERT INTO config_delta_log (kind, name, content, applied_at) VALUES ($1, $2, $3, $4)`,
		string(d.Kind), d.Name, content, appliedAt,
	)
	if err != nil {
		return fmt.Errorf("store: appending delta journal entry: %w", err)
	}
	return nil
}

// PeerSnapshot is one point-in-time count of an agent's per-family
// route contributions, recorded periodically for capacity/churn
// analysis.
type PeerSnapshot struct {
	PeerID     string
	Family     string
	RouteCount int
	At         time.Time
}

// AppendPeerSnapshot records one PeerSnapshot row.
func (j *Journal) AppendPeerSnapshot(ctx context.Context, s PeerSnapshot) error {
	start := time.Now()
	defer func() { j.metrics.ObserveJournalWrite("peer_snapshot", time.Since(start).Seconds()) }()

	_, err := j.pool.Exec(ctx,
		`INSERT INTO peer_route_snapshot (peer_id, family, route_count, snapshot_at) VALUES ($1, $2, $3, $4)`,
		s.PeerID, s.Family, s.RouteCount, s.At,
	)
	if err != nil {
		return fmt.Errorf("store: appending peer snapshot: %w", err)
	}
	return nil
}

// marshalDeltaContent re-encodes a delta's Content node back to plain
// YAML bytes for storage, rather than keeping it as a yaml.Node.
func marshalDeltaContent(d config.Delta) ([]byte, error) {
	var out interface{}
	if err := d.Content.Decode(&out); err != nil {
		return nil, err
	}
	return yaml.Marshal(out)
}

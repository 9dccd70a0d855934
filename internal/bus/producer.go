// Package bus publishes a compact telemetry event per committed route
// change and per applied config delta to an external analytics
// pipeline, the out-of-band introspection interface SPEC_FULL.md §6
// asks for without taking a dependency on Sandesh. It inverts the
// teacher's Kafka consumer-side connectivity tracking into the
// producer role: there is no partition assignment to watch, so
// readiness is set once the client is built and then follows the
// success or failure of each produce callback.
package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

// RouteEvent is the compact telemetry record published for every
// committed route add/delete.
type RouteEvent struct {
	Timestamp time.Time `json:"ts"`
	Instance  string    `json:"instance"`
	Family    string    `json:"family"`
	Prefix    string    `json:"prefix"`
	Op        string    `json:"op"` // "add" or "delete"
	Peer      string    `json:"peer,omitempty"`
}

// DeltaEvent is the compact telemetry record published whenever a
// config delta is applied.
type DeltaEvent struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
}

// Metrics receives the publish-outcome counter of §6 "Peer
// observability". noopMetrics is used when a caller doesn't wire one.
type Metrics interface {
	IncBusPublish(eventType, result string)
}

type noopMetrics struct{}

func (noopMetrics) IncBusPublish(string, string) {}

// Producer publishes gzip-free, zstd-compressed JSON telemetry events
// to a single topic.
type Producer struct {
	client  *kgo.Client
	topic   string
	logger  *zap.Logger
	encoder *zstd.Encoder
	ready   atomic.Bool
	metrics Metrics
}

// Option configures a Producer at construction.
type Option func(*Producer)

// WithMetrics attaches the collector notified of every publish outcome.
func WithMetrics(m Metrics) Option {
	return func(p *Producer) { p.metrics = m }
}

// NewProducer builds a Producer against brokers, marking itself ready
// once client construction succeeds (there is no broker round trip
// until the first Produce, unlike a consumer's group-join handshake).
func NewProducer(brokers []string, clientID, topic string, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger, opts ...Option) (*Producer, error) {
	p := &Producer{topic: topic, logger: logger, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(p)
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.NoCompression()),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: creating producer client: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bus: zstd encoder init: %w", err)
	}

	p.client = client
	p.encoder = enc
	p.ready.Store(true)
	return p, nil
}

// IsReady reports whether the producer's client is usable.
func (p *Producer) IsReady() bool { return p.ready.Load() }

// PublishRouteEvent compresses and produces ev asynchronously; fn is
// invoked with the produce result once the broker acknowledges it.
func (p *Producer) PublishRouteEvent(ctx context.Context, ev RouteEvent, fn func(error)) error {
	return p.publish(ctx, "route", ev, fn)
}

// PublishDeltaApplied compresses and produces ev asynchronously.
func (p *Producer) PublishDeltaApplied(ctx context.Context, ev DeltaEvent, fn func(error)) error {
	return p.publish(ctx, "delta", ev, fn)
}

func (p *Producer) publish(ctx context.Context, eventType string, v interface{}, fn func(error)) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshaling event: %w", err)
	}
	compressed := p.encoder.EncodeAll(raw, nil)

	rec := &kgo.Record{Topic: p.topic, Value: compressed}
	p.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		if err != nil {
			p.ready.Store(false)
			p.metrics.IncBusPublish(eventType, "error")
			p.logger.Error("bus: produce failed", zap.Error(err))
		} else {
			p.ready.Store(true)
			p.metrics.IncBusPublish(eventType, "success")
		}
		if fn != nil {
			fn(err)
		}
	})
	return nil
}

// Close flushes outstanding produces and closes the client.
func (p *Producer) Close() {
	p.client.Flush(context.Background())
	p.client.Close()
}

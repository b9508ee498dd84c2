// Package events publishes transcripts to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hubenschmidt/whisper-gateway/internal/metrics"
)

// Kind selects the topic an event is written to.
type Kind string

const (
	KindPartial Kind = "partial"
	KindFinal   Kind = "final"
	KindFile    Kind = "file"
)

// Event is the payload written for every delivered transcript.
type Event struct {
	SessionID      string    `json:"session_id"`
	Kind           Kind      `json:"kind"`
	Engine         string    `json:"engine"`
	Text           string    `json:"text"`
	Language       string    `json:"language,omitempty"`
	Duration       float64   `json:"duration"`
	ProcessingTime float64   `json:"processing_time"`
	Timestamp      time.Time `json:"timestamp"`
}

// Config holds Kafka publisher configuration. No brokers means disabled.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	TopicFile    string
}

// Publisher writes events to one Kafka topic per kind. A disabled publisher
// logs at debug level and returns nil. Nil receivers are no-ops.
type Publisher struct {
	writers map[Kind]*kafka.Writer
	topics  map[Kind]string
	log     *slog.Logger
}

// New creates a Publisher.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topics: map[Kind]string{
			KindPartial: orDefault(cfg.TopicPartial, "transcripts.partial"),
			KindFinal:   orDefault(cfg.TopicFinal, "transcripts.final"),
			KindFile:    orDefault(cfg.TopicFile, "transcripts.file"),
		},
		log: logger.With("component", "events"),
	}
	if len(cfg.Brokers) == 0 {
		p.log.Info("kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	transport := &kafka.Transport{Dial: dialer.DialFunc}
	p.writers = make(map[Kind]*kafka.Writer, len(p.topics))
	for kind, topic := range p.topics {
		p.writers[kind] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}
	p.log.Info("kafka publisher initialized", "brokers", cfg.Brokers, "topics", p.topics)
	return p
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p != nil && p.writers != nil
}

// Publish writes ev keyed by its session ID.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}
	topic, ok := p.topics[ev.Kind]
	if !ok {
		return errors.New("events: unknown kind " + string(ev.Kind))
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	writer := p.writers[ev.Kind]
	if writer == nil {
		p.log.Debug("event", "topic", topic, "key", ev.SessionID, "payload", string(payload))
		metrics.EventsPublished.WithLabelValues(topic, "skipped").Inc()
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.Kind)},
		},
	}
	if err = writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("kafka write failed", "topic", topic, "key", ev.SessionID, "error", err)
		metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(topic, "ok").Inc()
	return nil
}

// Close closes all writers.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for kind, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Error("closing kafka writer", "kind", kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

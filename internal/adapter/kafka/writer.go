package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/indicator-etl/internal/config"
	"github.com/couchcryptid/indicator-etl/internal/domain"
	"github.com/couchcryptid/indicator-etl/internal/observability"
	"github.com/couchcryptid/indicator-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Message kinds, carried in the "kind" header.
const (
	KindContinentSummary = "continent_summary"
	KindElectricityGap   = "electricity_gap"
)

// Writer produces session summaries to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes the continent groups and gap rows of a summary and writes
// them in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, summary pipeline.Summary) error {
	msgs, err := summaryMessages(summary)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d summary messages: %w", len(msgs), err)
	}
	w.metrics.MessagesPublished.Add(float64(len(msgs)))
	w.logger.Debug("summary messages written", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// continentMessage is the value of a continent_summary message.
type continentMessage struct {
	Year int `json:"year"`
	domain.Group
}

func summaryMessages(summary pipeline.Summary) ([]kafkago.Message, error) {
	msgs := make([]kafkago.Message, 0, len(summary.Continents)+len(summary.Gap))
	for _, g := range summary.Continents {
		msg, err := serializeToMessage(KindContinentSummary, g.Key, summary.SessionID, continentMessage{Year: summary.Year, Group: g})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	for _, r := range summary.Gap {
		msg, err := serializeToMessage(KindElectricityGap, r.Code, summary.SessionID, r)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// serializeToMessage marshals v into a Kafka message keyed by key.
func serializeToMessage(kind, key, sessionID string, v any) (kafkago.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s %s: %w", kind, key, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(kind)},
			{Key: "session_id", Value: []byte(sessionID)},
		},
	}, nil
}

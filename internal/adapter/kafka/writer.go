package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/meter-route-service/internal/config"
	"github.com/couchcryptid/meter-route-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes finalized route submissions for the notification service.
// It implements route.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured submission topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSubmissionTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Notify publishes one submission keyed by route, so submissions of the same
// route stay ordered on one partition.
func (w *Writer) Notify(ctx context.Context, sub domain.Submission) error {
	msg, err := serializeToMessage(sub)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish submission %s: %w", sub.SubmissionID, err)
	}
	w.logger.Info("submission published",
		"topic", w.writer.Topic,
		"route_id", sub.RouteID,
		"submission_id", sub.SubmissionID,
	)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Submission into a Kafka message.
func serializeToMessage(sub domain.Submission) (kafkago.Message, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize submission: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(sub.RouteID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "submission_id", Value: []byte(sub.SubmissionID)},
			{Key: "period", Value: []byte(sub.Period.String())},
			{Key: "submitted_at", Value: []byte(sub.SubmittedAt.Format(time.RFC3339))},
			{Key: "narratives", Value: []byte(strconv.Itoa(len(sub.Narratives)))},
		},
	}, nil
}

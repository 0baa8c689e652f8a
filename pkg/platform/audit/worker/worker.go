// Package worker streams committed audit entries to Kafka. The stream is a
// best-effort mirror of the ledger for downstream consumers (reporting,
// SIEM); the ledger itself remains the source of truth and the synchronous
// append contract never depends on Kafka availability.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"courier/pkg/platform/audit"
)

// Config holds Kafka connection settings for the audit stream.
type Config struct {
	Brokers []string
	Topic   string
}

// Worker consumes committed entries from the ledger tee and produces them to
// the audit topic. A failed produce is logged and dropped; it never
// propagates back to the transition that emitted the entry.
type Worker struct {
	client *kgo.Client
	topic  string
	inbox  <-chan audit.Entry
	logger *slog.Logger
}

// New connects to Kafka, ensures the audit topic exists, and returns a
// worker reading from inbox.
func New(ctx context.Context, cfg Config, inbox <-chan audit.Entry, logger *slog.Logger) (*Worker, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	adm := kadm.NewClient(client)
	// Idempotent: already-exists responses are not treated as failures.
	if _, err := adm.CreateTopics(ctx, 1, 1, nil, cfg.Topic); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure audit topic: %w", err)
	}

	return &Worker{client: client, topic: cfg.Topic, inbox: inbox, logger: logger}, nil
}

// streamRecord is the JSON shape produced to the audit topic.
type streamRecord struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Category   string            `json:"category"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ActorID    string            `json:"actor_id"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Seq        uint64            `json:"seq"`
}

// Run consumes entries until ctx is cancelled, then flushes and closes the
// Kafka client.
func (w *Worker) Run(ctx context.Context) error {
	defer w.client.Close()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = w.client.Flush(flushCtx)
			return ctx.Err()
		case entry := <-w.inbox:
			w.produce(ctx, entry)
		}
	}
}

func (w *Worker) produce(ctx context.Context, entry audit.Entry) {
	payload, err := json.Marshal(streamRecord{
		ID:         entry.ID.String(),
		Action:     string(entry.Action),
		Category:   string(entry.Action.Category()),
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID.String(),
		Details:    entry.Details,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Seq:        entry.Seq,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "marshal audit stream record", "error", err)
		return
	}

	record := &kgo.Record{
		Topic: w.topic,
		Key:   []byte(entry.EntityID),
		Value: payload,
	}
	if err := w.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		w.logger.WarnContext(ctx, "audit stream produce failed",
			"action", string(entry.Action), "entity_id", entry.EntityID, "error", err)
	}
}

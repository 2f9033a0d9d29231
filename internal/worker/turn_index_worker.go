package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"orgrag/internal/model"
	"orgrag/internal/platform/rabbitmq"
	"orgrag/internal/vectorstore"
)

type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

type VectorWriter interface {
	Upsert(ctx context.Context, collection string, items []vectorstore.StoredItem) error
}

// TurnIndexWorker consumes persisted chat turns and writes the prompt and the
// response into the user's chat-history collection.
type TurnIndexWorker struct {
	conn      *amqp.Connection
	queueName string
	embedder  Embedder
	store     VectorWriter
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnIndexWorker(conn *amqp.Connection, queueName string, embedder Embedder, store VectorWriter, logger *slog.Logger) *TurnIndexWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnIndexWorker{
		conn:      conn,
		queueName: queueName,
		embedder:  embedder,
		store:     store,
		logger:    logger.With("component", "turn_index_worker"),
	}
}

func (w *TurnIndexWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					w.logger.Warn("turn index job dropped", "err", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("worker started", "queue", w.queueName)
	return nil
}

// Handle indexes one encoded TurnIndexJob. A part that cannot be embedded is
// skipped; decode and store failures are returned.
func (w *TurnIndexWorker) Handle(ctx context.Context, body []byte) error {
	var job model.TurnIndexJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode turn index job failed: %w", err)
	}
	if job.UserID == 0 || job.ChatID == 0 {
		return errors.New("turn index job missing user or chat id")
	}

	parts := []struct{ kind, text string }{
		{kind: "prompt", text: job.Prompt},
		{kind: "response", text: job.Response},
	}
	items := make([]vectorstore.StoredItem, 0, len(parts))
	for _, p := range parts {
		text := strings.TrimSpace(p.text)
		if text == "" {
			continue
		}
		vec := w.embedder.Embed(ctx, text)
		if vec == nil {
			w.logger.Warn("skipping turn part with no embedding", "chat_id", job.ChatID, "type", p.kind)
			continue
		}
		items = append(items, vectorstore.StoredItem{
			ID:        uuid.NewString(),
			Document:  text,
			Embedding: vec,
			Metadata: map[string]string{
				"type":   p.kind,
				"chatId": strconv.FormatUint(uint64(job.ChatID), 10),
			},
		})
	}
	if len(items) == 0 {
		return nil
	}
	if err := w.store.Upsert(ctx, vectorstore.UserChatsCollection(job.UserID), items); err != nil {
		return fmt.Errorf("index chat turn failed: %w", err)
	}
	w.logger.Debug("chat turn indexed", "chat_id", job.ChatID, "items", len(items))
	return nil
}

func (w *TurnIndexWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

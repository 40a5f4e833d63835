package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	rabbitmqClient "gopherai-assistant/internal/platform/rabbitmq"
	"gopherai-assistant/internal/store"
)

type ChangeHandler interface {
	HandleChange(event store.ChangeEvent)
}

// ChangeFeedWorker consumes change events published by other instances and
// wakes the local subscribers of the affected partition.
type ChangeFeedWorker struct {
	conn     *amqp.Connection
	handler  ChangeHandler
	exchange string
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewChangeFeedWorker(conn *amqp.Connection, handler ChangeHandler, exchange string, logger *zap.Logger) *ChangeFeedWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeFeedWorker{
		conn:     conn,
		handler:  handler,
		exchange: exchange,
		logger:   logger,
	}
}

func (w *ChangeFeedWorker) Start(ctx context.Context) error {
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

	if err := rabbitmqClient.DeclareExchange(ch, w.exchange); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	// Each instance gets its own server-named queue that dies with the connection.
	queue, err := ch.QueueDeclare(
		"",
		false,
		true,
		true,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	if err := ch.QueueBind(queue.Name, "", w.exchange, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("bind worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		queue.Name,
		"",
		false,
		true,
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
				if err := w.handle(d.Body); err != nil {
					w.logger.Warn("worker decode change event failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *ChangeFeedWorker) handle(body []byte) error {
	var event store.ChangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("unmarshal change event failed: %w", err)
	}
	if event.AppID == "" || event.UserID == "" {
		return fmt.Errorf("change event without partition")
	}
	w.handler.HandleChange(event)
	return nil
}

func (w *ChangeFeedWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

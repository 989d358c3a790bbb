package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"referral-ledger/config"
	"referral-ledger/models"
	"referral-ledger/services"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	EventOrderCompleted = "order.completed"
	EventOrderRefunded  = "order.refunded"

	consumerTimeout  = 30 * time.Second
	ingestMaxElapsed = 20 * time.Second
)

// OrderEvents is the ledger side of the order event stream.
type OrderEvents interface {
	IngestOrderCompleted(ctx context.Context, evt services.OrderCompleted) (*services.IngestResult, error)
	MarkOrderRefunded(ctx context.Context, orderID string) (*models.CompletedOrder, error)
}

// OrderMessage is the envelope published by the order service.
type OrderMessage struct {
	Event string `json:"event"`
	services.OrderCompleted
}

type outcome int

const (
	outcomeAck     outcome = iota
	outcomeDrop            // nack without requeue
	outcomeRequeue         // nack with requeue
)

// OrderConsumer feeds order events from RabbitMQ into the ledger. Every handler on
// the ledger side is idempotent per order_id, so redelivery is always safe.
type OrderConsumer struct {
	cfg    config.RabbitMQConfig
	log    *logrus.Logger
	orders OrderEvents

	maxElapsed time.Duration
	wg         sync.WaitGroup
}

func NewOrderConsumer(cfg config.RabbitMQConfig, orders OrderEvents, log *logrus.Logger) *OrderConsumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.Workers
	}
	return &OrderConsumer{cfg: cfg, log: log, orders: orders, maxElapsed: ingestMaxElapsed}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// whenever the broker connection drops.
func (c *OrderConsumer) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.wg.Wait()
			c.log.Info("order consumer stopped")
			return nil
		}
		delay := policy.NextBackOff()
		c.log.WithError(err).WithField("retry_in", delay).Warn("order consumer disconnected")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.wg.Wait()
			return nil
		}
	}
}

func (c *OrderConsumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	c.log.WithFields(logrus.Fields{"queue": c.cfg.Queue, "workers": c.cfg.Workers}).Info("order consumer connected")

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(workerCtx, msgs, i)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case amqpErr := <-closed:
		cancel()
		c.wg.Wait()
		if amqpErr == nil {
			return fmt.Errorf("connection closed")
		}
		return amqpErr
	}
}

func (c *OrderConsumer) worker(ctx context.Context, msgs <-chan amqp.Delivery, workerID int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			switch c.handle(ctx, msg.Body) {
			case outcomeAck:
				_ = msg.Ack(false)
			case outcomeDrop:
				_ = msg.Nack(false, false)
			case outcomeRequeue:
				_ = msg.Nack(false, true)
			}
		}
	}
}

// handle applies one message and decides its fate. Malformed payloads and business
// rejections are dropped; infrastructure failures are retried here and then requeued.
func (c *OrderConsumer) handle(ctx context.Context, body []byte) outcome {
	ctx, cancel := context.WithTimeout(ctx, consumerTimeout)
	defer cancel()

	var msg OrderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.log.WithError(err).WithField("body", string(body)).Error("failed to unmarshal order event")
		return outcomeDrop
	}
	if msg.Event == "" {
		msg.Event = EventOrderCompleted
	}

	var op func() error
	switch msg.Event {
	case EventOrderCompleted:
		op = func() error {
			_, err := c.orders.IngestOrderCompleted(ctx, msg.OrderCompleted)
			return err
		}
	case EventOrderRefunded:
		op = func() error {
			_, err := c.orders.MarkOrderRefunded(ctx, msg.OrderID)
			return err
		}
	default:
		c.log.WithField("event", msg.Event).Warn("ignoring unknown order event")
		return outcomeAck
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	err := backoff.Retry(func() error {
		err := op()
		if err != nil && !services.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))

	fields := logrus.Fields{"event": msg.Event, "order_id": msg.OrderID}
	switch {
	case err == nil:
		c.log.WithFields(fields).Debug("order event applied")
		return outcomeAck
	case services.IsRetryable(err):
		c.log.WithFields(fields).WithError(err).Error("order event failed, requeueing")
		return outcomeRequeue
	default:
		c.log.WithFields(fields).WithField("reason", services.ReasonCode(err)).Warn("order event rejected")
		return outcomeDrop
	}
}

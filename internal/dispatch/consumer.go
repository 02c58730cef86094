package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/viralclips/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned by Start when the broker closes the
// delivery channel while the context is still live.
var ErrDeliveriesClosed = errors.New("dispatch: delivery channel closed")

const maxBackoff = 60 * time.Second

// MessageHandler processes one message body.
type MessageHandler func(ctx context.Context, body []byte) error

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Topology    Topology
	Prefetch    int
	WorkerCount int
	BaseDelay   time.Duration
	// MaxAttempts bounds how many times a failing task is retried before it
	// is dead-lettered.
	MaxAttempts int
}

// Consumer runs a pool of workers over the task queue.
type Consumer struct {
	channel     *amqp.Channel
	topo        Topology
	workerCount int
	baseDelay   time.Duration
	maxAttempts int
	handler     MessageHandler
	logger      *slog.Logger

	pubMu sync.Mutex
	wg    sync.WaitGroup
}

// NewConsumer opens a channel on conn, declares the topology and sets the prefetch.
func NewConsumer(conn *amqp.Connection, cfg ConsumerConfig, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.WorkerCount
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := cfg.Topology.Declare(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		channel:     ch,
		topo:        cfg.Topology,
		workerCount: cfg.WorkerCount,
		baseDelay:   cfg.BaseDelay,
		maxAttempts: cfg.MaxAttempts,
		handler:     handler,
		logger:      logger,
	}, nil
}

// Start consumes until ctx is cancelled, then waits for in-flight tasks.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.topo.Queue,
		"",
		false, // autoAck=false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool",
		slog.Int("workers", c.workerCount),
		slog.String("queue", c.topo.Queue),
	)

	done := make(chan struct{})
	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("context cancelled, waiting for workers to finish")
		<-done
		return nil
	case <-done:
		if ctx.Err() != nil {
			return nil
		}
		return ErrDeliveriesClosed
	}
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(slog.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *slog.Logger) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	attempt := attemptFromHeaders(d.Headers)
	log = log.With(
		slog.String("task", d.Type),
		slog.Int("attempt", attempt),
	)

	// Tasks run to completion once started, even during shutdown.
	err := c.handler(context.WithoutCancel(ctx), d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	if errors.Is(err, ErrMalformedTask) {
		log.Error("malformed task, dead-lettering", slog.String("error", err.Error()))
		_ = d.Nack(false, false)
		return
	}

	if attempt >= c.maxAttempts {
		log.Error("task failed permanently, dead-lettering",
			slog.String("error", err.Error()),
			slog.Int("max_attempts", c.maxAttempts),
		)
		_ = d.Nack(false, false)
		return
	}

	delay := c.calculateBackoff(attempt)
	log.Warn("task failed, retrying after backoff",
		slog.String("error", err.Error()),
		slog.Duration("delay", delay),
	)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		// Requeue as-is so another worker picks it up after restart.
		_ = d.Nack(false, true)
		return
	}

	if err := c.retry(ctx, d, attempt+1); err != nil {
		log.Error("republish failed, requeueing", slog.String("error", err.Error()))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// retry republishes the delivery with an incremented attempt counter.
func (c *Consumer) retry(ctx context.Context, d amqp.Delivery, attempt int) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptHeader] = int32(attempt)

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	return c.channel.PublishWithContext(ctx,
		c.topo.Exchange,
		d.RoutingKey,
		false, false,
		amqp.Publishing{
			ContentType:  d.ContentType,
			Body:         d.Body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         d.Type,
			Headers:      headers,
		},
	)
}

func (c *Consumer) calculateBackoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return min(delay, maxBackoff)
}

// Close closes the consumer channel.
func (c *Consumer) Close() error {
	if c.channel != nil {
		return c.channel.Close()
	}
	return nil
}

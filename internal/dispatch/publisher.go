package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Enqueuer publishes pipeline tasks.
type Enqueuer interface {
	EnqueueVideo(ctx context.Context, projectID string) error
	EnqueueBurn(ctx context.Context, task BurnTask) error
	EnqueueDeleteFiles(ctx context.Context, keys []string) error
	EnqueueRetentionSweep(ctx context.Context, maxAgeHours int) error
}

// Publisher publishes task envelopes to the task exchange.
type Publisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
	codec    *Codec
}

// Compile-time check that Publisher implements Enqueuer.
var _ Enqueuer = (*Publisher)(nil)

// NewPublisher opens a channel on conn and declares the topology.
func NewPublisher(conn *amqp.Connection, topo Topology, codec *Codec) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := topo.Declare(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{channel: ch, exchange: topo.Exchange, codec: codec}, nil
}

// EnqueueVideo publishes a primary pipeline run for projectID.
func (p *Publisher) EnqueueVideo(ctx context.Context, projectID string) error {
	return p.publish(ctx, VideoTask{ProjectID: projectID})
}

// EnqueueBurn publishes a re-burn.
func (p *Publisher) EnqueueBurn(ctx context.Context, task BurnTask) error {
	return p.publish(ctx, task)
}

// EnqueueDeleteFiles publishes a blob deletion.
func (p *Publisher) EnqueueDeleteFiles(ctx context.Context, keys []string) error {
	return p.publish(ctx, DeleteFilesTask{Keys: keys})
}

// EnqueueRetentionSweep publishes a retention sweep.
func (p *Publisher) EnqueueRetentionSweep(ctx context.Context, maxAgeHours int) error {
	return p.publish(ctx, RetentionSweepTask{MaxAgeHours: maxAgeHours})
}

func (p *Publisher) publish(ctx context.Context, task any) error {
	kind, body, err := p.codec.Encode(task)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(kind),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(kind),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s task: %w", kind, err)
	}
	return nil
}

// Close closes the publisher channel.
func (p *Publisher) Close() error {
	return p.channel.Close()
}

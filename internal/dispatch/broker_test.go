package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func startBroker(t *testing.T) *amqp.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("VIRALCLIPS_INTEGRATION") == "" {
		t.Skip("set VIRALCLIPS_INTEGRATION=1 to run broker integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestBroker_RetryThenDeadLetter(t *testing.T) {
	conn := startBroker(t)
	topo := Topology{Exchange: "it.tasks", Queue: "it.tasks", DLQ: "it.tasks.dlq"}
	codec := NewCodec()

	pub, err := NewPublisher(conn, topo, codec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	var calls atomic.Int32
	delivered := make(chan Envelope, 1)
	handler := func(_ context.Context, body []byte) error {
		env, err := codec.Decode(body)
		if err != nil {
			return err
		}
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		delivered <- env
		return nil
	}

	consumer, err := NewConsumer(conn, ConsumerConfig{
		Topology:    topo,
		WorkerCount: 1,
		BaseDelay:   10 * time.Millisecond,
		MaxAttempts: 3,
	}, handler, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.NoError(t, pub.EnqueueVideo(ctx, "project-1"))

	select {
	case env := <-delivered:
		assert.Equal(t, KindVideo, env.Kind)
		var task VideoTask
		require.NoError(t, codec.DecodePayload(env, &task))
		assert.Equal(t, "project-1", task.ProjectID)
	case <-time.After(15 * time.Second):
		t.Fatal("task was not redelivered after the first failure")
	}
	assert.Equal(t, int32(2), calls.Load())

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.PublishWithContext(ctx, topo.Exchange, RoutingKey(KindVideo), false, false,
		amqp.Publishing{ContentType: "application/json", Body: []byte("not json")}))

	assert.Eventually(t, func() bool {
		q, err := ch.QueueDeclarePassive(topo.DLQ, true, false, false, false, nil)
		return err == nil && q.Messages == 1
	}, 15*time.Second, 100*time.Millisecond, "malformed task should be dead-lettered")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

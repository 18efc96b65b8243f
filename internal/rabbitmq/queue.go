package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sf7293/job-notifier/internal/domain"
)

// RabbitMQClient is the broker backing of the task queue. Tasks live on a
// durable queue consumed with manual acks, so an executor crash makes its
// in-flight deliveries redeliverable. Delayed retries go through a companion
// retry queue whose dead-letter routing points back at the main queue: a
// message parked there with a per-message TTL reappears on the main queue
// once the retry delay has elapsed, never earlier.
type RabbitMQClient struct {
	ctx            context.Context
	conn           *amqp.Connection
	channel        *amqp.Channel
	tasksQueueName string
	retryQueueName string
}

func NewRabbitMQClient(ctx context.Context, amqpURL, tasksQueueName, retryQueueName string, prefetch int) (*RabbitMQClient, error) {
	var conn *amqp.Connection
	err := backoff.Retry(func() error {
		var dialErr error
		if conn, dialErr = amqp.Dial(amqpURL); dialErr != nil {
			slog.ErrorContext(ctx, "failed to connect to RabbitMQ.. retrying...", "error", dialErr)
			return dialErr
		}

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 5))
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		err2 := conn.Close()
		if err2 != nil {
			slog.Error("error occurred while closing connection", "error", err2.Error())
		}

		return nil, err
	}

	client := &RabbitMQClient{
		ctx:            ctx,
		conn:           conn,
		channel:        ch,
		tasksQueueName: tasksQueueName,
		retryQueueName: retryQueueName,
	}

	if err = client.declareQueues(); err != nil {
		slog.Error("Error while declaring task queues", "error", err.Error())
		client.closeQuietly()
		return nil, err
	}

	if prefetch > 0 {
		if err = ch.Qos(prefetch, 0, false); err != nil {
			client.closeQuietly()
			return nil, err
		}
	}

	return client, nil
}

func (c *RabbitMQClient) declareQueues() error {
	_, err := c.channel.QueueDeclare(
		c.tasksQueueName, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return err
	}

	// Expired messages on the retry queue are dead-lettered back onto the
	// main tasks queue through the default exchange.
	_, err = c.channel.QueueDeclare(
		c.retryQueueName,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": c.tasksQueueName,
		},
	)

	return err
}

func (c *RabbitMQClient) EnqueueTask(task *domain.Task) error {
	body, err := task.Marshal()
	if err != nil {
		return err
	}

	return c.publish(c.tasksQueueName, body, 0)
}

func (c *RabbitMQClient) publish(queueName, body string, expiration time.Duration) error {
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         []byte(body),
	}
	if expiration > 0 {
		publishing.Expiration = fmt.Sprintf("%d", expiration.Milliseconds())
	}

	return c.channel.PublishWithContext(
		c.ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		publishing,
	)
}

// ConsumeTasks delivers leased tasks to the handler. The handler owns settling
// each delivery through Ack or NackWithDelay.
func (c *RabbitMQClient) ConsumeTasks(consumerName string, handler func(domain.TaskDelivery)) error {
	msgs, err := c.channel.ConsumeWithContext(
		c.ctx,
		c.tasksQueueName, // queue
		consumerName,     // consumer
		false,            // auto-ack
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,              // args
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			task, err := domain.UnmarshalTask(string(d.Body))
			if err != nil {
				slog.Error("Dropping undecodable task message", "error", err.Error())
				if err2 := d.Ack(false); err2 != nil {
					slog.Error("Error occurred while acking undecodable message", "error", err2.Error())
				}
				continue
			}

			handler(&taskDelivery{client: c, delivery: d, task: task})
		}
	}()

	return nil
}

// Depth returns the number of ready messages on the tasks queue.
func (c *RabbitMQClient) Depth() (int, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err2 := ch.Close(); err2 != nil {
			slog.Error("Error occurred while closing rabbit channel created for depth check", "error", err2.Error())
		}
	}()

	q, err := ch.QueueInspect(c.tasksQueueName)
	if err != nil {
		return 0, err
	}

	return q.Messages, nil
}

func (c *RabbitMQClient) Close() error {
	err := c.channel.Close()
	if err != nil {
		return err
	}

	err = c.conn.Close()
	return err
}

func (c *RabbitMQClient) closeQuietly() {
	if err := c.channel.Close(); err != nil {
		slog.Error("error occurred while closing channel", "error", err.Error())
	}
	if err := c.conn.Close(); err != nil {
		slog.Error("error occurred while closing connection", "error", err.Error())
	}
}

func (c *RabbitMQClient) IsHealthy() bool {
	if c.conn.IsClosed() {
		slog.Error("RabbitMQ connection is closed, Rabbit is not healthy")
		return false
	}

	ch, err := c.conn.Channel()
	if err != nil {
		slog.Error("Failed to open RabbitMQ channel, Rabbit is not healthy", "error", err)
		return false
	}
	defer func() {
		err = ch.Close()
		if err != nil {
			slog.Error("Error occurred while closing rabbit channel created for health check", "error", err.Error())
		}
	}()

	return true
}

type taskDelivery struct {
	client   *RabbitMQClient
	delivery amqp.Delivery
	task     *domain.Task
}

func (d *taskDelivery) Task() *domain.Task {
	return d.task
}

func (d *taskDelivery) Ack() error {
	return d.delivery.Ack(false)
}

// NackWithDelay parks the mutated task on the retry queue with a per-message
// TTL equal to the retry delay, then settles the original delivery.
func (d *taskDelivery) NackWithDelay(task *domain.Task, delay time.Duration) error {
	body, err := task.Marshal()
	if err != nil {
		return err
	}

	if err = d.client.publish(d.client.retryQueueName, body, delay); err != nil {
		// Leave the original unacked, the broker redelivers it after the
		// channel closes instead of losing the task
		return err
	}

	return d.delivery.Ack(false)
}

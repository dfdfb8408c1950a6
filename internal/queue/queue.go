package queue

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the publishing half of an AMQP channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
}

const (
	retryDelay   = 10 * time.Second
	dialAttempts = 5
)

// BrokerURL builds the AMQP url from the RABBITMQ_* variables.
func BrokerURL() string {
	u := url.URL{
		Scheme: "amqp",
		User: url.UserPassword(
			util.GetEnvString("RABBITMQ_USER", "guest"),
			util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		),
		Host: util.GetEnvString("RABBITMQ_HOST", "localhost") + ":" + util.GetEnvString("RABBITMQ_PORT", "5672"),
		Path: "/",
	}
	return u.String()
}

// Dial connects to the broker, retrying while it comes up.
func Dial(ctx context.Context, brokerURL string) (*amqp091.Connection, error) {
	return util.RetryWithContext(ctx, dialAttempts, func(ctx context.Context) (*amqp091.Connection, error) {
		conn, err := amqp091.Dial(brokerURL)
		if err != nil {
			logger.Warn("[Queue] Broker not reachable", "err", err)
			return nil, err
		}
		return conn, nil
	})
}

type queueDecl struct {
	name string
	args amqp091.Table
}

// topology lists the queues backing one work queue: the queue, its
// dead-letter queue and a retry queue that dead-letters back into the
// queue once retryDelay has passed.
func topology(name string) []queueDecl {
	return []queueDecl{
		{name: name},
		{name: name + "_dlq"},
		{name: name + "_retry", args: amqp091.Table{
			"x-message-ttl":             int32(retryDelay.Milliseconds()),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": name,
		}},
	}
}

// SetupQueues declares the durable topic exchange and the topology of
// every work queue.
func SetupQueues(ch declarer, exchange string, queueNames []string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("ExchangeDeclare %s failed: %w", exchange, err)
	}
	for _, name := range queueNames {
		for _, q := range topology(name) {
			if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
				return fmt.Errorf("QueueDeclare %s failed: %w", q.name, err)
			}
		}
	}
	return nil
}

// PublishTopic sends a persistent JSON message to exchange under topic.
// correlationID may be empty.
func PublishTopic(ctx context.Context, ch Publisher, exchange, topic, correlationID string, data []byte) error {
	return ch.PublishWithContext(ctx, exchange, topic, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          data,
		DeliveryMode:  amqp091.Persistent,
		Timestamp:     time.Now(),
	})
}

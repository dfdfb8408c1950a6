package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const retriesHeader = "x-retries"

type queuedMessage struct {
	msg       amqp091.Delivery
	queueName string
}

// Consume delivers the messages of every queue in h.Queues to h one at a
// time, until ctx ends. ch should have a prefetch of one so a single message
// is in flight across all queues.
func Consume(ctx context.Context, ch *amqp091.Channel, h *Handler, maxRetries int) error {
	messageChan := make(chan queuedMessage)

	for _, queueName := range h.Queues() {
		consumerTag := fmt.Sprintf("%s_consumer", queueName)
		msgs, err := ch.Consume(
			queueName,
			consumerTag,
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to start consuming %s: %w", queueName, err)
		}

		go func(qName string, msgs <-chan amqp091.Delivery) {
			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: qName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(queueName, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping message processor")
			return nil
		case qm := <-messageChan:
			Process(ctx, ch, h, qm.msg, qm.queueName, maxRetries)
		}
	}
}

// Process handles one delivery and acks, retries or dead-letters it.
func Process(ctx context.Context, pub Publisher, h *Handler, msg amqp091.Delivery, queueName string, maxRetries int) {
	startTime := time.Now()
	logger.Info("Received message", "queue", queueName)

	if err := h.Handle(ctx, queueName, msg.Body); err != nil {
		logger.Error("Error processing message", "queue", queueName, "err", err)
		HandleFailure(ctx, pub, msg, queueName, maxRetries, err)
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("Failed to ack message", "err", err)
	}
	logger.Info("Message processed successfully", "queue", queueName, "duration", time.Since(startTime))
}

// HandleFailure sends msg to the retry queue, or to the dead-letter queue
// once it was retried maxRetries times or err is permanent. The delivery is
// requeued when neither publish succeeds.
func HandleFailure(ctx context.Context, pub Publisher, msg amqp091.Delivery, queueName string, maxRetries int, err error) {
	retries := retryCount(msg.Headers)
	headers := copyHeaders(msg.Headers)

	target := queueName + "_retry"
	if Permanent(err) || retries >= maxRetries {
		target = queueName + "_dlq"
		headers["x-error"] = err.Error()
		logger.Info("Sending message to DLQ", "dlq", target, "retries", retries)
	} else {
		headers[retriesHeader] = int32(retries + 1)
	}

	pubErr := pub.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:   msg.ContentType,
		CorrelationId: msg.CorrelationId,
		Body:          msg.Body,
		Headers:       headers,
	})
	if pubErr != nil {
		logger.Error("Failed to republish message", "target", target, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func retryCount(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func copyHeaders(headers amqp091.Table) amqp091.Table {
	out := make(amqp091.Table, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	return out
}

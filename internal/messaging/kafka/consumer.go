package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает одно сообщение из топика.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer читает топики в составе consumer group и пересылает
// неразобранные сообщения в DLQ после исчерпания повторов.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	wg         sync.WaitGroup
	dlq        *Producer
	retryLimit int
}

// newGroupConfig собирает конфигурацию consumer group.
func newGroupConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "pcshop"
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	return config
}

// NewConsumer создает consumer без DLQ c лимитом в три повтора.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerWithDLQ создает consumer, который после retryLimit неудачных
// попыток публикует сообщение в очередь недоставленных.
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlq *Producer, retryLimit int) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, newGroupConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		group:      group,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		dlq:        dlq,
		retryLimit: retryLimit,
	}, nil
}

// Start запускает фоновые горутины потребления и возвращает управление.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.wg.Add(1)
	go c.drainErrors()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// consumeLoop перезапускает Consume: при ребалансировке группы вызов завершается.
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			c.logger.WithError(err).Error("error from consumer")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Consumer) drainErrors() {
	defer c.wg.Done()
	for err := range c.group.Errors() {
		c.logger.WithError(err).Error("consumer error")
	}
}

// Stop закрывает группу и дожидается фоновых горутин.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim читает сообщения партиции до закрытия канала или отмены сессии.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			fields := log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}
			c.logger.WithFields(fields).Debug("received message")

			if err := c.processMessage(session.Context(), message); err != nil {
				// Сообщение не маркируется: оно либо уехало в DLQ,
				// либо будет доставлено группе повторно.
				c.logger.WithError(err).WithFields(fields).Error("message processing failed after all retries")
				continue
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage вызывает обработчик и решает судьбу неудачного сообщения:
// повтор, пока лимит не исчерпан, иначе публикация в DLQ.
func (c *Consumer) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	err := c.handler(ctx, message)
	if err == nil {
		return nil
	}

	attempts := retryCountFrom(message)
	if attempts < c.retryLimit {
		c.logger.WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": attempts,
			"max_retries": c.retryLimit,
		}).Warn("message processing failed, will retry")
		return err
	}

	if c.dlq == nil {
		return err
	}

	if dlqErr := c.forwardToDLQ(message, err); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": attempts,
	}).Info("message sent to DLQ after max retries")
	return nil
}

// retryCountFrom читает счетчик повторов из заголовков сообщения.
func retryCountFrom(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

// forwardToDLQ публикует исходное сообщение вместе с контекстом сбоя.
// Формат конверта разбирает утилита переигрывания DLQ.
func (c *Consumer) forwardToDLQ(message *sarama.ConsumerMessage, processingErr error) error {
	envelope := map[string]any{
		"original_topic":     message.Topic,
		"original_partition": message.Partition,
		"original_offset":    message.Offset,
		"original_key":       string(message.Key),
		"original_value":     string(message.Value),
		"error_message":      processingErr.Error(),
		"failed_at":          time.Now().UTC().Format(time.RFC3339),
		"retry_count":        retryCountFrom(message),
	}

	return c.dlq.PublishEvent(TopicDeadLetterQueue, string(message.Key), envelope)
}

// decodeEvent разбирает JSON-тело сообщения в событие указанного типа.
func decodeEvent[T any](message *sarama.ConsumerMessage, what string) (*T, error) {
	var event T
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", what, err)
	}
	return &event, nil
}

// ParseOrderEvent разбирает событие заказа.
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	return decodeEvent[OrderEvent](message, "order")
}

// ParseReceiptEvent разбирает запрос на отправку чека.
func ParseReceiptEvent(message *sarama.ConsumerMessage) (*ReceiptEvent, error) {
	return decodeEvent[ReceiptEvent](message, "receipt")
}

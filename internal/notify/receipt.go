package notify

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
	"github.com/vladislavdragonenkov/pcshop/internal/messaging/kafka"
)

// EventPublisher — минимальный контракт Kafka producer'а,
// нужный для публикации запросов на чек. Реализуется *kafka.Producer.
type EventPublisher interface {
	PublishEvent(topic string, key string, event any) error
}

// KafkaReceiptNotifier публикует запрос на отправку чека в Kafka.
// Фактическую отправку письма выполняет отдельный email-worker,
// читающий топик запросов.
type KafkaReceiptNotifier struct {
	publisher EventPublisher
	topic     string
	logger    *log.Entry
}

// NewKafkaReceiptNotifier создает notifier поверх Kafka producer.
func NewKafkaReceiptNotifier(publisher EventPublisher, logger *log.Entry) *KafkaReceiptNotifier {
	if logger == nil {
		logger = log.WithField("component", "receipt-notifier")
	}
	return &KafkaReceiptNotifier{
		publisher: publisher,
		topic:     kafka.TopicReceiptRequests,
		logger:    logger,
	}
}

func (n *KafkaReceiptNotifier) SendReceipt(orderID, locale string) error {
	if n == nil || n.publisher == nil {
		return fmt.Errorf("receipt notifier is not initialized")
	}

	event := kafka.NewReceiptEvent(orderID, locale)
	if err := n.publisher.PublishEvent(n.topic, orderID, event); err != nil {
		return fmt.Errorf("failed to request receipt for order %s: %w", orderID, err)
	}

	n.logger.WithFields(log.Fields{
		"order_id": orderID,
		"locale":   locale,
	}).Debug("receipt requested")
	return nil
}

// LogReceiptNotifier пишет запрос чека в лог. Используется, когда Kafka
// не сконфигурирована (локальная разработка, in-memory режим).
type LogReceiptNotifier struct {
	logger *log.Entry
}

// NewLogReceiptNotifier создает notifier, работающий только через лог.
func NewLogReceiptNotifier(logger *log.Entry) *LogReceiptNotifier {
	if logger == nil {
		logger = log.WithField("component", "receipt-notifier")
	}
	return &LogReceiptNotifier{logger: logger}
}

func (n *LogReceiptNotifier) SendReceipt(orderID, locale string) error {
	n.logger.WithFields(log.Fields{
		"order_id": orderID,
		"locale":   locale,
	}).Info("receipt requested (log only)")
	return nil
}

var (
	_ domain.ReceiptNotifier = (*KafkaReceiptNotifier)(nil)
	_ domain.ReceiptNotifier = (*LogReceiptNotifier)(nil)
	_ EventPublisher         = (*kafka.Producer)(nil)
)

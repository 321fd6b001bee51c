package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/messaging/kafka"
)

const (
	defaultGroupID    = "pcshop-email-worker"
	defaultMaxRetries = 3
)

// receiptSender доставляет чек покупателю. Единственная реализация пишет
// отрендеренное письмо в лог: SMTP-шлюза у сервиса нет, а сторонние
// системы забирают события из той же Kafka-темы напрямую.
type receiptSender interface {
	Send(ctx context.Context, event *kafka.ReceiptEvent) error
}

type logSender struct {
	logger *log.Entry
}

func newLogSender(logger *log.Entry) *logSender {
	if logger == nil {
		logger = log.WithField("component", "email_sender")
	}
	return &logSender{logger: logger}
}

func (s *logSender) Send(_ context.Context, event *kafka.ReceiptEvent) error {
	if event == nil || strings.TrimSpace(event.OrderID) == "" {
		return errors.New("receipt event without order id")
	}

	subject, body := renderReceipt(event)
	s.logger.WithFields(log.Fields{
		"order_id": event.OrderID,
		"locale":   event.Locale,
		"subject":  subject,
	}).Info(body)
	return nil
}

// renderReceipt собирает тему и тело письма. Поддерживаются локали ru и en,
// всё остальное сводится к en.
func renderReceipt(event *kafka.ReceiptEvent) (subject, body string) {
	switch strings.ToLower(strings.TrimSpace(event.Locale)) {
	case "ru":
		subject = fmt.Sprintf("Чек по заказу %s", event.OrderID)
		body = fmt.Sprintf("Спасибо за покупку! Оплата заказа %s подтверждена.", event.OrderID)
	default:
		subject = fmt.Sprintf("Receipt for order %s", event.OrderID)
		body = fmt.Sprintf("Thank you for your purchase! Payment for order %s is confirmed.", event.OrderID)
	}
	return subject, body
}

// handleReceiptMessage разбирает сообщение и передает его отправителю.
func handleReceiptMessage(sender receiptSender) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseReceiptEvent(message)
		if err != nil {
			return fmt.Errorf("parse receipt event: %w", err)
		}
		return sender.Send(ctx, event)
	}
}

func readBrokers() []string {
	raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if raw == "" {
		raw = "localhost:9092"
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	brokers := readBrokers()
	logger := log.WithField("component", "email_worker")

	dlqProducer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Fatal("не удалось создать DLQ producer")
	}
	defer func() {
		if err := dlqProducer.Close(); err != nil {
			logger.WithError(err).Warn("ошибка при закрытии DLQ producer")
		}
	}()

	sender := newLogSender(nil)
	consumer, err := kafka.NewConsumerWithDLQ(
		brokers,
		defaultGroupID,
		[]string{kafka.TopicReceiptRequests},
		handleReceiptMessage(sender),
		dlqProducer,
		defaultMaxRetries,
	)
	if err != nil {
		logger.WithError(err).Fatal("не удалось создать consumer")
	}

	logger.WithField("brokers", brokers).Info("email worker запущен")

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Fatal("не удалось запустить consumer")
	}

	<-ctx.Done()

	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("ошибка при остановке consumer")
	}
	logger.Info("email worker остановлен")
}

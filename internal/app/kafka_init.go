package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/messaging/kafka"
)

// parseBrokers разбирает список брокеров из конфигурации.
func parseBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// initKafkaProducer создаёт producer, если задан список брокеров.
// Ошибка подключения не фатальна: сервис работает без Kafka,
// чеки уходят в лог, а outbox копит события до следующего запуска.
func initKafkaProducer(brokers string, logger *log.Entry) *kafka.Producer {
	brokerList := parseBrokers(brokers)
	if len(brokerList) == 0 {
		return nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

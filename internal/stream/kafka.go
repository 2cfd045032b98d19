package stream

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// KafkaConfig configures the Kafka-backed live channel, used in deployments
// where the platform publishes order events to a topic instead of serving a
// websocket.
type KafkaConfig struct {
	Brokers string
	GroupID string
	Topic   string
}

// KafkaSource consumes order events from a Kafka topic. Reconnection and
// rebalancing are handled by the consumer group; like the websocket source it
// offers no replay of events missed while the console was down beyond the
// group's committed offset.
type KafkaSource struct {
	consumerGroup sarama.ConsumerGroup
	topic         string
	events        chan models.OrderEvent
	logger        *logrus.Logger
}

func NewKafkaSource(config KafkaConfig, logger *logrus.Logger) (*KafkaSource, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Version = sarama.V2_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(strings.Split(config.Brokers, ","), config.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return &KafkaSource{
		consumerGroup: consumerGroup,
		topic:         config.Topic,
		events:        make(chan models.OrderEvent, 256),
		logger:        logger,
	}, nil
}

func (s *KafkaSource) Events() <-chan models.OrderEvent {
	return s.events
}

func (s *KafkaSource) Run(ctx context.Context) error {
	defer close(s.events)
	defer s.consumerGroup.Close()

	handler := &eventGroupHandler{source: s, ctx: ctx}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Kafka order source context cancelled")
			return nil
		default:
			if err := s.consumerGroup.Consume(ctx, []string{s.topic}, handler); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.WithError(err).Error("Error consuming order events from Kafka")
				return err
			}
		}
	}
}

type eventGroupHandler struct {
	source *KafkaSource
	ctx    context.Context
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (h *eventGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.source.logger.Info("Kafka order source session setup")
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (h *eventGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.source.logger.Info("Kafka order source session cleanup")
	return nil
}

func (h *eventGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			var event models.OrderEvent
			if err := decodeEvent(message.Value, &event); err != nil {
				h.source.logger.WithError(err).WithFields(logrus.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("Failed to decode order event, skipping")
				session.MarkMessage(message, "")
				continue
			}
			if event.Type != models.EventNewOrder {
				session.MarkMessage(message, "")
				continue
			}

			select {
			case h.source.events <- event:
				session.MarkMessage(message, "")
			case <-h.ctx.Done():
				return nil
			}

		case <-session.Context().Done():
			return nil
		}
	}
}

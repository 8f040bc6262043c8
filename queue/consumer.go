package queue

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// JobHandler processes one consumed record. Returning an error leaves the
// offset unmarked so the record is redelivered.
type JobHandler interface {
	Handle(ctx context.Context, message *sarama.ConsumerMessage) error
}

type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handler       JobHandler
	log           zerolog.Logger
}

func NewConsumer(brokers []string, groupID string, topics []string,
	config *sarama.Config, handler JobHandler, log zerolog.Logger) (*Consumer, error) {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		consumerGroup: consumerGroup,
		topics:        topics,
		handler:       handler,
		log:           log.With().Str("component", "consumer").Logger(),
	}, nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		err := c.handler.Handle(session.Context(), message)
		if err == nil {
			session.MarkMessage(message, "")
		} else {
			c.log.Error().Err(err).Str("topic", message.Topic).Msg("failed to process message")
		}
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.consumerGroup.Consume(ctx, c.topics, c); err != nil {
			if err == sarama.ErrClosedConsumerGroup {
				return nil
			}
			c.log.Error().Err(err).Msg("consumer group error")
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}

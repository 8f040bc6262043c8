package queue

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// JobOptions carry queue-level scheduling hints as record headers; the
// workers on the other side honor them.
type JobOptions struct {
	Priority string
	Delay    time.Duration
}

const (
	PriorityLow  = "low"
	PriorityHigh = "high"
)

// Producer publishes jobs and notifications to Kafka. Sends are
// fire-and-forget from the engine's perspective: at-least-once delivery is
// assumed downstream, so payloads must be idempotent to apply.
type Producer struct {
	producer sarama.SyncProducer
	log      zerolog.Logger
}

func NewProducer(brokers []string, config *sarama.Config, log zerolog.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &Producer{
		producer: producer,
		log:      log.With().Str("component", "producer").Logger(),
	}, nil
}

// Enqueue publishes one job. The queue name is the topic, the job type and
// options travel as headers, and errors are logged, never surfaced: the
// mutation that triggered the job has already been applied to the cache.
func (p *Producer) Enqueue(queueName, jobType string, payload any, opts JobOptions) {
	jsonValue, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("queue", queueName).Str("job", jobType).Msg("unmarshalable job payload")
		return
	}

	headers := []sarama.RecordHeader{
		{Key: []byte("job-type"), Value: []byte(jobType)},
	}
	if opts.Priority != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte("priority"), Value: []byte(opts.Priority)})
	}
	if opts.Delay > 0 {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte("delay-ms"),
			Value: []byte(strconv.FormatInt(opts.Delay.Milliseconds(), 10)),
		})
	}

	msg := &sarama.ProducerMessage{
		Topic:   queueName,
		Key:     sarama.StringEncoder(jobType),
		Value:   sarama.ByteEncoder(jsonValue),
		Headers: headers,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error().Err(err).Str("queue", queueName).Str("job", jobType).Msg("failed to publish job")
		return
	}
	p.log.Debug().Str("queue", queueName).Str("job", jobType).
		Int32("partition", partition).Int64("offset", offset).Msg("job published")
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

// Notifier publishes chat notifications (new chat, transfers, invites) on
// the chat_notification queue.
type Notifier struct {
	producer *Producer
}

func NewNotifier(producer *Producer) *Notifier {
	return &Notifier{producer: producer}
}

func (n *Notifier) Notify(eventType string, data any) {
	n.producer.Enqueue("chat_notification", eventType, data, JobOptions{Priority: PriorityHigh})
}

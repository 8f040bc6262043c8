package queue

import (
	"time"

	"github.com/IBM/sarama"
)

// EnqueueInterceptor stamps every outgoing record with the wall-clock time
// it left the engine, so consumers can measure queue latency.
type EnqueueInterceptor struct{}

func NewEnqueueInterceptor() *EnqueueInterceptor {
	return &EnqueueInterceptor{}
}

func (i *EnqueueInterceptor) OnSend(msg *sarama.ProducerMessage) {
	msg.Headers = append(msg.Headers, sarama.RecordHeader{
		Key:   []byte("enqueued-at"),
		Value: []byte(time.Now().UTC().Format(time.RFC3339Nano)),
	})
}

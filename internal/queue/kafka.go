package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaProducer publishes work items to the jobs topic.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer builds a writer for the given brokers and topic.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Enqueue publishes one message keyed by job id, so all deliveries for a job
// land on the same partition in order.
func (p *KafkaProducer) Enqueue(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.JobID.String()),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("enqueue work item: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads work items as part of a consumer group. Offsets are
// committed only after the handler returns nil, which gives at-least-once
// delivery across restarts.
type KafkaConsumer struct {
	reader *kafka.Reader
	log    *logrus.Logger
}

// NewKafkaConsumer builds a consumer-group reader.
func NewKafkaConsumer(brokers []string, topic, groupID string, log *logrus.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		log: log,
	}
}

// Run fetches messages until ctx is cancelled. Undecodable messages are
// committed and dropped; handler failures stay uncommitted so the group
// redelivers them later.
func (c *KafkaConsumer) Run(ctx context.Context, handler func(ctx context.Context, msg Message) error) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch work item: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			c.log.WithFields(logrus.Fields{
				"partition": m.Partition,
				"offset":    m.Offset,
			}).Warnf("Dropping undecodable work item: %v", err)
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				c.log.Errorf("Failed to commit poison message: %v", err)
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.log.WithField("job_id", msg.JobID).Errorf("Work item handling failed, leaving uncommitted: %v", err)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.WithField("job_id", msg.JobID).Errorf("Failed to commit work item: %v", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

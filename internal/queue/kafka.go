package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// ErrNoBrokers is returned when no Kafka brokers are configured.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// jobMessage is the wire format of a job reference. Task ID only.
type jobMessage struct {
	TaskID string `json:"task_id"`
}

// KafkaQueue publishes job references to a Kafka topic with a
// synchronous producer. Messages are keyed by task ID so redeliveries
// of one task land on one partition.
type KafkaQueue struct {
	producer sarama.SyncProducer
	topic    string
}

// Compile-time check that KafkaQueue implements Queue.
var _ Queue = (*KafkaQueue)(nil)

// NewKafkaQueue creates a producer-side queue.
func NewKafkaQueue(brokers []string, topic string) (*KafkaQueue, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}

	return &KafkaQueue{producer: p, topic: topic}, nil
}

// Enqueue publishes a job reference.
func (q *KafkaQueue) Enqueue(_ context.Context, taskID string) error {
	data, err := json.Marshal(jobMessage{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("kafka: marshal job: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(taskID),
		Value: sarama.ByteEncoder(data),
	}

	if _, _, err := q.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka: send job: %w", err)
	}
	return nil
}

// Close shuts down the producer.
func (q *KafkaQueue) Close() error {
	return q.producer.Close()
}

// KafkaConsumer delivers job references from a Kafka consumer group.
// Offsets are marked after the handler returns. The handler typically
// only admits the id into a worker pool, so a crash between the mark
// and the claim can still lose the reference; recovering those rows is
// the stale-queued sweep's job.
type KafkaConsumer struct {
	group  sarama.ConsumerGroup
	topic  string
	logger *slog.Logger
}

// Compile-time check that KafkaConsumer implements Consumer.
var _ Consumer = (*KafkaConsumer)(nil)

// NewKafkaConsumer creates a consumer-group-based consumer.
func NewKafkaConsumer(brokers []string, groupID, topic string, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if logger == nil {
		logger = slog.Default()
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	g, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("kafka: create consumer group: %w", err)
	}

	return &KafkaConsumer{group: g, topic: topic, logger: logger}, nil
}

// Consume joins the group and delivers jobs to handler until ctx is
// cancelled. Rebalances cause Consume on the group to return; the loop
// rejoins until cancellation.
func (c *KafkaConsumer) Consume(ctx context.Context, handler Handler) error {
	h := &groupHandler{fn: handler, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("kafka: consume: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close leaves the consumer group.
func (c *KafkaConsumer) Close() error {
	return c.group.Close()
}

// groupHandler adapts a Handler to sarama's consumer group callbacks.
type groupHandler struct {
	fn     Handler
	logger *slog.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var job jobMessage
		if err := json.Unmarshal(msg.Value, &job); err != nil || job.TaskID == "" {
			// Malformed payloads are committed and skipped; redelivering
			// them forever would wedge the partition.
			h.logger.Warn("skipping malformed job message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
			)
			session.MarkMessage(msg, "")
			continue
		}

		if err := h.fn(session.Context(), job.TaskID); err != nil {
			h.logger.Error("job handler failed",
				slog.String("task_id", job.TaskID),
				slog.String("error", err.Error()),
			)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

package event

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/order"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Async makes Publish return before the broker acknowledges the write.
	// Failures are then only logged.
	Async bool
}

// KafkaPublisher writes envelopes to a Kafka topic. Messages are keyed by
// order id so all events of one order land on the same partition in order.
type KafkaPublisher struct {
	w       *kafka.Writer
	enc     *Encoder
	brokers []string
}

// NewKafkaPublisher returns a KafkaPublisher. lg receives async write errors.
func NewKafkaPublisher(cfg KafkaConfig, enc *Encoder, lg *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: empty topic")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  cfg.Async,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	if cfg.Async {
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				lg.Error("Kafka async write failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		}
	}
	return &KafkaPublisher{w: w, enc: enc, brokers: cfg.Brokers}, nil
}

// Publish implements order.Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, e order.Event) error {
	msg, err := p.message(ctx, e)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s", e.Type())
	}
	return nil
}

func (p *KafkaPublisher) message(ctx context.Context, e order.Event) (kafka.Message, error) {
	body, err := p.enc.Encode(ctx, e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode event")
	}
	return kafka.Message{
		Key:   []byte(e.OrderID()),
		Value: body,
		Time:  e.Time(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type())},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}, nil
}

// Ping dials the first reachable broker.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return errors.Wrap(lastErr, "dial kafka")
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

package event

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/bistro/internal/domain/order"
)

// AMQPConfig configures the RabbitMQ publisher.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// AMQPPublisher publishes envelopes to a durable fanout exchange. The event
// type is used as routing key so a topic exchange can be swapped in later.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	enc      *Encoder

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(cfg AMQPConfig, enc *Encoder) (*AMQPPublisher, error) {
	if cfg.Exchange == "" {
		return nil, errors.New("amqp: empty exchange")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", cfg.Exchange)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: cfg.Exchange, enc: enc}, nil
}

// Publish implements order.Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, e order.Event) error {
	body, err := p.enc.Encode(ctx, e)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		string(e.Type()),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			CorrelationId: CorrelationID(ctx),
			Type:          string(e.Type()),
			Timestamp:     e.Time(),
			Body:          body,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "publish %s", e.Type())
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *AMQPPublisher) Ping(context.Context) error {
	if p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	chErr := p.ch.Close()
	if err := p.conn.Close(); err != nil {
		return err
	}
	return chErr
}

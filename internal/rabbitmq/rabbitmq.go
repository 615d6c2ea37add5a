package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"code_auth/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery body. A non-nil error rejects the delivery
// without requeueing it.
type Handler func(body []byte) error

type RabbitMQClient struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	emailQueue string
	smsQueue   string
}

func New(urlForConn, emailQueue, smsQueue string) (*RabbitMQClient, error) {
	const op = "rabbitmq.New"

	conn, err := amqp.Dial(urlForConn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, name := range []string{emailQueue, smsQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("%s: declare %s: %w", op, name, err)
		}
	}

	return &RabbitMQClient{
		conn:       conn,
		channel:    ch,
		emailQueue: emailQueue,
		smsQueue:   smsQueue,
	}, nil
}

func (r *RabbitMQClient) SendEmail(ctx context.Context, msg models.Message) error {
	return r.publish(ctx, "rabbitmq.SendEmail", r.emailQueue, msg)
}

func (r *RabbitMQClient) SendSMS(ctx context.Context, msg models.Message) error {
	return r.publish(ctx, "rabbitmq.SendSMS", r.smsQueue, msg)
}

func (r *RabbitMQClient) publish(ctx context.Context, op, queue string, msg models.Message) error {
	p, err := publishing(msg, time.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.channel.PublishWithContext(ctx, "", queue, false, false, p); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * StartReading читает сообщения из очереди до отмены контекста
func (r *RabbitMQClient) StartReading(ctx context.Context, queue string, handler Handler) error {
	const op = "rabbitmq.StartReading"

	if err := r.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msgs, err := r.channel.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("%s: delivery channel closed", op)
			}

			if err := handler(d.Body); err != nil {
				_ = d.Nack(false, false)
				continue
			}

			_ = d.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() {
	_ = r.channel.Close()
	_ = r.conn.Close()
}

func publishing(msg models.Message, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
	}, nil
}

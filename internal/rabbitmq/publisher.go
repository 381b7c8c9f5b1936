package rabbitmq

import (
	"github.com/streadway/amqp"

	librabbitmq "github.com/firstmodai/firstmod-backend/internal/lib/rabbitmq"
)

// Publisher публикует сообщения в обменник notifications.
type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher создает новый Publisher поверх открытого канала.
func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// Publish отправляет сообщение с заданным ключом маршрутизации.
func (p *Publisher) Publish(routingKey string, message any) error {
	return librabbitmq.PublishMessage(p.ch, "notifications", routingKey, message)
}

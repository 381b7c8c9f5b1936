package rabbitmq

// QueueConfig описывает очередь уведомлений и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Ключи маршрутизации писем.
const (
	RoutingVerification = "verification"
	RoutingBilling      = "billing"
)

// GetNotificationQueues возвращает очереди почтовых уведомлений.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "email.verification", RoutingKey: RoutingVerification},
		{QueueName: "email.billing", RoutingKey: RoutingBilling},
	}
}

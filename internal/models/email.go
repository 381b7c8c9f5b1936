package models

// EmailTask описывает письмо, поставленное в очередь уведомлений.
// Публикуется сервисами в rabbitmq и доставляется отправителем по SMTP.
type EmailTask struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

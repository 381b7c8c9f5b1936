// Package smtp реализует почтовый транспорт поверх net/smtp:
// соединение с обязательным STARTTLS и аутентификацией по паролю.
package smtp

import "io"

// Client покрывает команды SMTP сессии, нужные для отправки письма.
// *smtp.Client из стандартной библиотеки реализует его напрямую.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface описывает установку SMTP соединений.
type TransportInterface interface {
	Connect() (Client, error)
	From() string
}

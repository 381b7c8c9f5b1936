package smtp

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"

	"github.com/firstmodai/firstmod-backend/internal/config"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
)

// Transport устанавливает соединения с почтовым сервером по настройкам
// секции smtp конфигурации. Соединение живёт в рамках одной отправки,
// пул не ведётся.
type Transport struct {
	cfg config.SMTP
	log *slog.Logger
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect открывает соединение, поднимает STARTTLS и проходит
// аутентификацию. Сервер без поддержки STARTTLS отклоняется: учётные
// данные не передаются по открытому каналу.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"

	addr := net.JoinHostPort(t.cfg.SMTPHost, t.cfg.SMTPPort)
	client, err := smtp.Dial(addr)
	if err != nil {
		t.log.Error("failed to dial SMTP server", slog.String("addr", addr), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := t.handshake(client); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			t.log.Warn("failed to close SMTP client", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

func (t *Transport) handshake(client *smtp.Client) error {
	if ok, _ := client.Extension("STARTTLS"); !ok {
		t.log.Error("SMTP server does not support STARTTLS",
			slog.String("host", t.cfg.SMTPHost))
		return fmt.Errorf("server %s does not support STARTTLS", t.cfg.SMTPHost)
	}

	tlsConfig := &tls.Config{
		ServerName: t.cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		t.log.Error("failed to start TLS", sl.Err(err))
		return err
	}

	auth := smtp.PlainAuth("", t.cfg.SMTPUser, t.cfg.SMTPPass, t.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		t.log.Error("SMTP authentication failed", sl.Err(err))
		return err
	}
	return nil
}

// From возвращает адрес отправителя, совпадающий с учётной записью SMTP.
func (t *Transport) From() string {
	return t.cfg.SMTPUser
}

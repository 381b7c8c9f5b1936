// Package verification реализует стратегии подтверждения электронной почты.
//
// Две взаимозаменяемые стратегии за одним интерфейсом: одноразовый код (OTP),
// который пользователь вводит вручную, и ссылка с токеном. Стратегия отвечает
// за генерацию кода и за текст письма; срок действия кода у обеих 10 минут.
package verification

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// Режимы верификации.
const (
	ModeOTP  = "otp"
	ModeLink = "link"
)

// CodeTTL срок действия кода или токена верификации.
const CodeTTL = 10 * time.Minute

// Strategy описывает способ подтверждения почты.
type Strategy interface {
	// Mode возвращает имя стратегии: otp или link.
	Mode() string
	// NewCode генерирует одноразовый код или токен.
	NewCode() (string, error)
	// Email формирует тему и текст письма с подтверждением.
	Email(fullName, code, baseURL string) (subject, body string)
}

// New возвращает стратегию по имени режима, по умолчанию OTP.
func New(mode string) Strategy {
	if mode == ModeLink {
		return Link{}
	}
	return OTP{}
}

// OTP стратегия с шестизначным цифровым кодом.
type OTP struct{}

// Mode возвращает имя стратегии.
func (OTP) Mode() string { return ModeOTP }

// NewCode генерирует 6 случайных цифр.
func (OTP) NewCode() (string, error) {
	const op = "verification.OTP.NewCode"
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Email формирует письмо с кодом подтверждения.
func (OTP) Email(fullName, code, _ string) (string, string) {
	subject := "Verify your email"
	body := fmt.Sprintf("Hello, %s!\n\n"+
		"Thank you for signing up. Please verify your email address by entering the code below:\n\n"+
		"    %s\n\n"+
		"This code will expire in 10 minutes.\n"+
		"If you didn't create an account, please ignore this email.",
		fullName, code)
	return subject, body
}

// Link стратегия со ссылкой, содержащей случайный токен.
type Link struct{}

// Mode возвращает имя стратегии.
func (Link) Mode() string { return ModeLink }

// NewCode генерирует 32-символьный шестнадцатеричный токен.
func (Link) NewCode() (string, error) {
	const op = "verification.Link.NewCode"
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return hex.EncodeToString(buf), nil
}

// Email формирует письмо со ссылкой для подтверждения.
func (Link) Email(fullName, code, baseURL string) (string, string) {
	subject := "Verify your email"
	body := fmt.Sprintf("Hello, %s!\n\n"+
		"Thank you for signing up. Please verify your email address by opening the link below:\n\n"+
		"    %s/verify?token=%s\n\n"+
		"The link will expire in 10 minutes.\n"+
		"If you didn't create an account, please ignore this email.",
		fullName, baseURL, code)
	return subject, body
}

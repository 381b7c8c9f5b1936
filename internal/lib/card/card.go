// Package card реализует поверхностную проверку данных банковской карты
// для альтернативного пути оформления подписки без платёжного провайдера.
//
// Проверка чистая, без внешних вызовов: формат номера и контрольная сумма
// Луна, срок действия, CVV и имя держателя. Возвращается первая найденная
// ошибка в фиксированном порядке проверок.
package card

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Ошибки валидации карты.
var (
	ErrNumberFormat = errors.New("card number must contain 13-19 digits")
	ErrLuhnCheck    = errors.New("card number failed checksum")
	ErrExpiryFormat = errors.New("expiry must be in MM/YY format")
	ErrExpired      = errors.New("card is expired")
	ErrCVVFormat    = errors.New("cvv must contain 3-4 digits")
	ErrHolderName   = errors.New("cardholder name is too short")
)

// Details входные данные карты, как их ввёл пользователь.
type Details struct {
	Number string // Номер, допускаются пробелы и дефисы
	Expiry string // Срок действия в формате MM/YY
	CVV    string // Код проверки
	Holder string // Имя держателя
}

// Validate проверяет данные карты и возвращает первую ошибку
// в порядке: номер, контрольная сумма, срок, CVV, имя.
func Validate(d Details, now time.Time) error {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(d.Number)
	if !isDigits(digits) || len(digits) < 13 || len(digits) > 19 {
		return ErrNumberFormat
	}
	if !LuhnValid(digits) {
		return ErrLuhnCheck
	}

	month, year, ok := parseExpiry(d.Expiry)
	if !ok {
		return ErrExpiryFormat
	}
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return ErrExpired
	}

	if !isDigits(d.CVV) || len(d.CVV) < 3 || len(d.CVV) > 4 {
		return ErrCVVFormat
	}

	if len(strings.TrimSpace(d.Holder)) < 2 {
		return ErrHolderName
	}
	return nil
}

// LuhnValid проверяет контрольную сумму Луна: каждая вторая цифра справа
// удваивается, цифры результата суммируются, итог должен делиться на 10.
func LuhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseExpiry разбирает строку MM/YY, год интерпретируется как 2000+YY.
func parseExpiry(s string) (month, year int, ok bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	yy, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return month, 2000 + yy, true
}

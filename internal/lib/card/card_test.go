package card

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	valid := Details{
		Number: "4532015112830366",
		Expiry: "12/30",
		CVV:    "123",
		Holder: "John Doe",
	}

	tests := []struct {
		name    string
		details Details
		wantErr error
	}{
		{
			name:    "корректная карта",
			details: valid,
			wantErr: nil,
		},
		{
			name: "номер с пробелами и дефисами",
			details: Details{
				Number: "4532 0151-1283 0366",
				Expiry: "12/30",
				CVV:    "123",
				Holder: "John Doe",
			},
			wantErr: nil,
		},
		{
			name: "номер содержит буквы",
			details: Details{
				Number: "4532a15112830366",
				Expiry: "12/30",
				CVV:    "123",
				Holder: "John Doe",
			},
			wantErr: ErrNumberFormat,
		},
		{
			name: "номер слишком короткий",
			details: Details{
				Number: "453201511283",
				Expiry: "12/30",
				CVV:    "123",
				Holder: "John Doe",
			},
			wantErr: ErrNumberFormat,
		},
		{
			name: "неверная контрольная сумма",
			details: Details{
				Number: "4532015112830367",
				Expiry: "12/30",
				CVV:    "123",
				Holder: "John Doe",
			},
			wantErr: ErrLuhnCheck,
		},
		{
			name: "неверный формат срока действия",
			details: Details{
				Number: "4532015112830366",
				Expiry: "13/30",
				CVV:    "123",
				Holder: "John Doe",
			},
			wantErr: ErrExpiryFormat,
		},
		{
			name: "срок действия истёк",
			details: Details{
				Number: "4532015112830366",
				Expiry: "05/25",
				CVV:    "123",
				Holder: "John Doe",
			},
			wantErr: ErrExpired,
		},
		{
			name: "последний месяц срока ещё действует",
			details: Details{
				Number: "4532015112830366",
				Expiry: "06/25",
				CVV:    "123",
				Holder: "John Doe",
			},
			wantErr: nil,
		},
		{
			name: "неверный CVV",
			details: Details{
				Number: "4532015112830366",
				Expiry: "12/30",
				CVV:    "12",
				Holder: "John Doe",
			},
			wantErr: ErrCVVFormat,
		},
		{
			name: "короткое имя держателя",
			details: Details{
				Number: "4532015112830366",
				Expiry: "12/30",
				CVV:    "123",
				Holder: " J ",
			},
			wantErr: ErrHolderName,
		},
		{
			name: "ошибка номера раньше ошибки срока",
			details: Details{
				Number: "4532015112830367",
				Expiry: "bad",
				CVV:    "1",
				Holder: "",
			},
			wantErr: ErrLuhnCheck,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.details, now)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLuhnValid(t *testing.T) {
	assert.True(t, LuhnValid("4532015112830366"))
	assert.True(t, LuhnValid("79927398713"))
	assert.False(t, LuhnValid("4532015112830367"))
	assert.False(t, LuhnValid("79927398710"))
}

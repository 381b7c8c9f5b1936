// Package sl дополняет slog атрибутами, общими для всех слоёв приложения.
package sl

import "log/slog"

// Err кладёт текст ошибки в атрибут с ключом "error", чтобы ошибки
// во всех записях лога выглядели одинаково.
func Err(err error) slog.Attr {
	return slog.String("error", err.Error())
}

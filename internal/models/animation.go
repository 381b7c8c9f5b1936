package models

import "time"

// Типы инструментов генерации.
const (
	ToolTalkingHead = "makeittalk"
	ToolFaceSwap    = "faceswap"
	ToolMotion      = "fomd"
)

// Animation представляет запись о сгенерированном пользователем контенте.
// Запись принадлежит пользователю и удаляется вместе с ним; файл на диске
// удаляется по возможности, ошибка удаления файла не считается фатальной.
type Animation struct {
	ID        int       // Идентификатор записи
	UserUID   string    // Владелец
	ToolType  string    // Инструмент: makeittalk, faceswap или fomd
	FilePath  string    // Путь к файлу результата
	Status    string    // Статус генерации
	CreatedAt time.Time // Дата создания
}

package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrInvalidEvent — событие не может быть записано в журнал.
	ErrInvalidEvent = errors.New("invalid asset event")
)

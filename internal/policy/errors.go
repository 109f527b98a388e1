package policy

import (
	"errors"
	"fmt"
)

// Ошибки определений.
var (
	// ErrInvalidDefinitions — файл не прошёл валидацию.
	ErrInvalidDefinitions = errors.New("invalid definitions")

	// ErrUnknownKind — неизвестный тип условия.
	ErrUnknownKind = errors.New("unknown condition kind")

	// ErrUnsupportedVersion — неподдерживаемая версия формата.
	ErrUnsupportedVersion = errors.New("unsupported definitions version")
)

// DefinitionError — ошибка в определении конкретного asset.
type DefinitionError struct {
	Asset string
	Field string
	Err   error
}

func (e *DefinitionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("asset %s: %s: %v", e.Asset, e.Field, e.Err)
	}
	return fmt.Sprintf("asset %s: %v", e.Asset, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

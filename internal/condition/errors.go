package condition

import (
	"errors"

	"github.com/shaiso/assetsched/internal/domain"
)

// Ошибки построения и вычисления условий.
var (
	// ErrInvalidCondition — некорректное дерево условий.
	ErrInvalidCondition = errors.New("invalid scheduling condition")

	// ErrNoDependencies — оператор зависимостей на asset без родителей.
	ErrNoDependencies = errors.New("asset has no dependencies")

	// ErrUnknownAsset — условие привязано к asset, которого нет в графе.
	ErrUnknownAsset = errors.New("unknown asset")
)

// ValidationError — ошибка проверки дерева условий.
type ValidationError struct {
	Asset     domain.AssetKey // asset, для которого проверялось условие
	Condition string          // описание узла
	Message   string          // описание ошибки
	Err       error           // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Condition != "" {
		msg = e.Condition + ": " + msg
	}
	if e.Asset != "" {
		return "asset " + e.Asset.String() + ": " + msg
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(asset domain.AssetKey, c Condition, message string) *ValidationError {
	desc := "<nil>"
	if c != nil {
		desc = c.Description()
	}
	return &ValidationError{Asset: asset, Condition: desc, Message: message, Err: ErrInvalidCondition}
}

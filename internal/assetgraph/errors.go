package assetgraph

import (
	"errors"

	"github.com/shaiso/assetsched/internal/domain"
)

// Ошибки построения графа asset.
var (
	// ErrEmptyGraph — граф не содержит asset.
	ErrEmptyGraph = errors.New("asset graph has no assets")

	// ErrEmptyAssetKey — asset без ключа.
	ErrEmptyAssetKey = errors.New("asset has empty key")

	// ErrDuplicateAsset — несколько asset с одинаковым ключом.
	ErrDuplicateAsset = errors.New("duplicate asset key")

	// ErrMissingDependency — asset зависит от несуществующего asset.
	ErrMissingDependency = errors.New("asset depends on unknown asset")

	// ErrSelfDependency — asset зависит от самого себя.
	ErrSelfDependency = errors.New("asset depends on itself")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrInvalidMapping — отображение партиций неприменимо к ребру.
	ErrInvalidMapping = errors.New("invalid partition mapping")
)

// Ошибки запросов к View.
var (
	// ErrUnknownAsset — asset отсутствует в графе.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrNotADependency — между asset нет ребра зависимости.
	ErrNotADependency = errors.New("asset is not a dependency")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Asset   domain.AssetKey // asset, где произошла ошибка
	Field   string          // поле, вызвавшее ошибку
	Message string          // описание ошибки
	Err     error           // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Asset != "" {
		return "asset " + e.Asset.String() + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(asset domain.AssetKey, field, message string, err error) *ValidationError {
	return &ValidationError{
		Asset:   asset,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

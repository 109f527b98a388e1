package subset

import "errors"

// Ошибки алгебры подмножеств.
var (
	// ErrPartitionsDrift — подмножества посчитаны для разных снимков
	// пространства партиций одного asset (или сохранённое подмножество
	// не соответствует текущему определению партиций).
	ErrPartitionsDrift = errors.New("partitions space drift")

	// ErrAssetMismatch — операция над подмножествами разных asset.
	ErrAssetMismatch = errors.New("subsets belong to different assets")

	// ErrInvalidSubset — подмножество не привязано к пространству (нулевое значение).
	ErrInvalidSubset = errors.New("invalid asset subset")

	// ErrUnknownPartition — ключ партиции отсутствует в пространстве.
	ErrUnknownPartition = errors.New("unknown partition key")
)

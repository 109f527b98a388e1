// Package subset реализует подмножества партиций asset и их алгебру.
//
// AssetSubset привязан к снимку partitions.Space. Объединение, пересечение,
// разность и дополнение выполняются над битовыми наборами позиций ключей.
// Подмножества из разных снимков несовместимы (ErrPartitionsDrift).
package subset

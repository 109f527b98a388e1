// Package partitions описывает пространства партиций asset.
//
// Включает:
//   - definition.go — определения: статические ключи и временные окна по cron
//   - space.go      — Space, снимок валидных ключей на момент тика
//
// Непартиционированный asset представлен Space с единственной неявной
// партицией "", поэтому алгебра подмножеств работает одинаково для всех asset.
package partitions

// Package cronutil — вычисления по cron-выражениям.
//
// Используется условиями "обновлён после тика cron", правилами
// материализации по расписанию, временными партициями и циклом тиков демона.
//
// В отличие от планировщика запусков, условиям чаще нужен не следующий,
// а последний прошедший тик (LatestTick).
package cronutil

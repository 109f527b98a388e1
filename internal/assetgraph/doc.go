// Package assetgraph описывает граф asset и снимок View для одного тика.
//
// Graph строится из определений asset (алгоритм Кана, проверка циклов и
// неизвестных зависимостей). View фиксирует пространства партиций на
// момент тика, таблицы отображений партиций по рёбрам и снимок истории.
// Условия планирования читают внешнее состояние только через View.
package assetgraph

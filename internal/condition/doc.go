// Package condition реализует декларативные условия планирования asset.
//
// Дерево условий (Condition) состоит из листьев (Materialized, Missing,
// InProgress, InLatestTimeWindow, UpdatedSinceCron), логических операторов
// (And, Or, Not) и операторов зависимостей (AnyDepsMatch, AllDepsMatch).
//
// Вычисление идёт в глубину: родитель получает результаты детей и
// собирает из них своё истинное подмножество.
//
//   - AND передаёт следующему операнду пересечение кандидатов с уже истинным;
//   - OR передаёт всем операндам одних и тех же кандидатов и объединяет результаты;
//   - NOT возвращает кандидатов минус результат операнда;
//   - операторы зависимостей вычисляют операнд для каждого родителя
//     (DepCondition) и проецируют результат обратно.
//
// Evaluate — единственная точка входа. Результат (Result) повторяет форму
// дерева и сохраняется между тиками как ResultSnapshot. Идентификатор узла
// (UniqueID) структурный: по нему и по кандидатам узел находит свой
// результат предыдущего тика. Переиспользование результата не меняет ответ.
package condition

// Package api содержит HTTP API демона планировщика.
//
// Структура:
//   - handler.go       — Handler с DI (политики, состояния, publisher, logger)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - asset_handler.go — обработчики для /assets и /evaluations
//   - event_handler.go — приём событий asset и статусов run
//
// Чтение политик и результатов вычисления идёт напрямую из Bundle и
// хранилища состояний. События не пишутся в журнал синхронно: они
// публикуются в очередь events.asset и попадают в журнал через consumer.
package api

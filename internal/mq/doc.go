// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация запросов на запуск и событий asset
//   - consumer.go   — потребление сообщений из очередей
//   - handler.go    — запись событий из очереди в журнал asset
//
// Типы сообщений:
//   - run.requested — запрос на материализацию, результат тика планировщика
//   - asset.event   — материализация или наблюдение партиции
//   - run.status    — изменение статуса run
//
// Exchanges:
//   - assetsched.runs   — запросы на запуск
//   - assetsched.events — события asset и run
//   - assetsched.dlq    — dead letter queue
package mq

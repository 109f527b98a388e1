// Package scheduler реализует тик декларативного планировщика asset.
//
// На каждом тике Scheduler вычисляет политику каждого asset на одном
// согласованном снимке графа и истории, сворачивает истинные партиции в
// запросы на запуск и сохраняет состояния для следующего тика.
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Run)
//   - requests.go  — BuildRunRequests
//   - store.go     — StateStore, RunRequestPublisher, MemoryStateStore
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Bundle:    bundle,
//	    Loader:    eventRepo,
//	    States:    stateRepo,
//	    Publisher: publisher,  // опционально
//	    Logger:    logger,
//	})
//
//	if _, err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
// Метод Tick() вызывается только лидером.
package scheduler

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

// schedLockKey — ключ advisory lock лидера планировщика.
const schedLockKey int64 = 424242

// pinger — соединение, удерживающее advisory lock.
type pinger interface {
	Ping(ctx context.Context) error
}

// leadership — удерживаемый advisory lock.
type leadership struct {
	conn *pgxpool.Conn
}

// release снимает lock и возвращает соединение в пул.
func (l *leadership) release() {
	_, _ = l.conn.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
	l.conn.Release()
}

// acquireLeadership блокируется, пока процесс не станет лидером или не
// отменится ctx. Advisory lock живёт в сессии, поэтому соединение
// удерживается до вызова release.
func acquireLeadership(ctx context.Context, pool *pgxpool.Pool, retry time.Duration, logger *slog.Logger) (*leadership, error) {
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("leader election: acquire connection failed", "error", err)
		} else {
			var ok bool
			err = conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok)
			if err == nil && ok {
				return &leadership{conn: conn}, nil
			}
			if err != nil {
				logger.Warn("leader election: lock query failed", "error", err)
			}
			conn.Release()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// watchLeadership проверяет сессию с lock каждые interval.
// Возвращает ошибку, как только сессия потеряна (lock снят сервером),
// и nil при отмене ctx.
func watchLeadership(ctx context.Context, clock clockwork.Clock, conn pinger, interval time.Duration) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("leader session lost: %w", err)
			}
		}
	}
}

// lead выполняет цикл лидерства: захват lock, тики планировщика до потери
// сессии, повторный захват. Возвращается при отмене ctx.
func lead(ctx context.Context, pool *pgxpool.Pool, interval time.Duration, logger *slog.Logger, run func(ctx context.Context)) {
	for {
		l, err := acquireLeadership(ctx, pool, interval, logger)
		if err != nil {
			return
		}
		logger.Info("became scheduler leader", "interval", interval)

		leaderCtx, cancel := context.WithCancel(ctx)
		watched := make(chan struct{})
		go func() {
			defer close(watched)
			if err := watchLeadership(leaderCtx, clockwork.NewRealClock(), l.conn, interval); err != nil {
				logger.Error("stepping down", "error", err)
				cancel()
			}
		}()

		run(leaderCtx)
		cancel()
		// Соединение не используется конкурентно: release после остановки проверки
		<-watched
		l.release()

		if ctx.Err() != nil {
			return
		}
	}
}

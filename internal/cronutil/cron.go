package cronutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNoTick — cron-выражение не срабатывает в разумном горизонте (например, "0 0 30 2 *").
var ErrNoTick = errors.New("cron schedule has no ticks")

// maxLookback — горизонт поиска предыдущего тика.
const maxLookback = 10 * 366 * 24 * time.Hour

// cronParser — парсер стандартных 5-польных cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse парсит cron-выражение.
func Parse(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// Validate проверяет валидность cron-выражения.
func Validate(expr string) error {
	_, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Location загружает timezone.
// Fallback на UTC если timezone пустой или невалидный.
func Location(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NextTick вычисляет первый тик строго после at.
func NextTick(expr, timezone string, at time.Time) (time.Time, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}

	next := schedule.Next(at.In(Location(timezone)))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoTick, expr)
	}
	return next.UTC(), nil
}

// LatestTick вычисляет последний тик, не позже at.
//
// robfig/cron умеет только идти вперёд, поэтому окно поиска
// расширяется назад, пока в него не попадёт хотя бы один тик,
// а затем тики перебираются вперёд до at.
func LatestTick(expr, timezone string, at time.Time) (time.Time, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}

	at = at.In(Location(timezone))

	for lookback := time.Minute; lookback <= maxLookback; lookback *= 2 {
		first := schedule.Next(at.Add(-lookback))
		if first.IsZero() {
			break
		}
		if !first.After(at) {
			return latestFrom(schedule, first, at).UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %s before %s", ErrNoTick, expr, at.Format(time.RFC3339))
}

// latestFrom идёт вперёд от tick, пока следующий тик не позже at.
func latestFrom(schedule cron.Schedule, tick, at time.Time) time.Time {
	for {
		next := schedule.Next(tick)
		if next.IsZero() || next.After(at) {
			return tick
		}
		tick = next
	}
}

// Ticks возвращает все тики в полуинтервале [from, to).
func Ticks(expr, timezone string, from, to time.Time) ([]time.Time, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	loc := Location(timezone)
	ticks := make([]time.Time, 0)

	// Next возвращает время строго после аргумента
	tick := schedule.Next(from.In(loc).Add(-time.Nanosecond))
	for !tick.IsZero() && tick.Before(to) {
		ticks = append(ticks, tick.UTC())
		tick = schedule.Next(tick)
	}

	return ticks, nil
}

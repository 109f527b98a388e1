package cronutil

import (
	"errors"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

func TestLatestTick_Daily(t *testing.T) {
	at := mustTime(t, "2024-03-10T15:30:00Z")

	tick, err := LatestTick("0 0 * * *", "UTC", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := mustTime(t, "2024-03-10T00:00:00Z")
	if !tick.Equal(want) {
		t.Errorf("expected %s, got %s", want, tick)
	}
}

func TestLatestTick_ExactlyOnTick(t *testing.T) {
	at := mustTime(t, "2024-03-10T09:00:00Z")

	tick, err := LatestTick("0 9 * * *", "UTC", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tick.Equal(at) {
		t.Errorf("tick at the evaluation time should count, got %s", tick)
	}
}

func TestLatestTick_Weekly(t *testing.T) {
	// 2024-03-10 — воскресенье
	at := mustTime(t, "2024-03-13T12:00:00Z")

	tick, err := LatestTick("0 0 * * 0", "UTC", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := mustTime(t, "2024-03-10T00:00:00Z")
	if !tick.Equal(want) {
		t.Errorf("expected %s, got %s", want, tick)
	}
}

func TestLatestTick_Timezone(t *testing.T) {
	// Полночь в Москве — 21:00 UTC предыдущего дня
	at := mustTime(t, "2024-03-10T22:00:00Z")

	tick, err := LatestTick("0 0 * * *", "Europe/Moscow", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := mustTime(t, "2024-03-10T21:00:00Z")
	if !tick.Equal(want) {
		t.Errorf("expected %s, got %s", want, tick)
	}
}

func TestLatestTick_InvalidExpr(t *testing.T) {
	_, err := LatestTick("not a cron", "UTC", time.Now())
	if err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestLatestTick_NeverFires(t *testing.T) {
	_, err := LatestTick("0 0 30 2 *", "UTC", mustTime(t, "2024-03-10T00:00:00Z"))
	if !errors.Is(err, ErrNoTick) {
		t.Errorf("expected ErrNoTick, got %v", err)
	}
}

func TestNextTick(t *testing.T) {
	at := mustTime(t, "2024-03-10T00:00:00Z")

	next, err := NextTick("0 * * * *", "UTC", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := mustTime(t, "2024-03-10T01:00:00Z")
	if !next.Equal(want) {
		t.Errorf("expected %s, got %s", want, next)
	}
}

func TestTicks_HalfOpenInterval(t *testing.T) {
	from := mustTime(t, "2024-01-01T00:00:00Z")
	to := mustTime(t, "2024-01-04T00:00:00Z")

	ticks, err := Ticks("0 0 * * *", "UTC", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(ticks))
	}
	if !ticks[0].Equal(from) {
		t.Errorf("first tick should equal from, got %s", ticks[0])
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("*/5 * * * *"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Validate("* * *"); err == nil {
		t.Error("expected error for short expression")
	}
}

func TestLocation_Fallback(t *testing.T) {
	if Location("Not/AZone") != time.UTC {
		t.Error("invalid timezone should fall back to UTC")
	}
	if Location("") != time.UTC {
		t.Error("empty timezone should be UTC")
	}
}

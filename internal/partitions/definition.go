package partitions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/shaiso/assetsched/internal/cronutil"
)

// Ошибки определений партиций.
var (
	// ErrEmptyPartitions — статическое определение без ключей.
	ErrEmptyPartitions = errors.New("partitions definition has no keys")

	// ErrDuplicatePartitionKey — ключ партиции повторяется.
	ErrDuplicatePartitionKey = errors.New("duplicate partition key")

	// ErrInvalidTimeWindow — некорректные параметры временных партиций.
	ErrInvalidTimeWindow = errors.New("invalid time window partitions")
)

// Kind — вид определения партиций.
type Kind string

const (
	KindUnpartitioned Kind = "unpartitioned"
	KindStatic        Kind = "static"
	KindTimeWindow    Kind = "time_window"
)

// Definition — определение пространства партиций asset.
//
// Само определение неизменно; набор валидных ключей зависит от
// момента времени (временные партиции появляются по мере того,
// как проходят окна). Fingerprint меняется только при изменении
// определения, а не при росте набора ключей.
type Definition interface {
	// Kind возвращает вид определения.
	Kind() Kind

	// Fingerprint — стабильный отпечаток определения.
	Fingerprint() string

	// KeysAt возвращает упорядоченные ключи партиций, существующие в момент at.
	KeysAt(at time.Time) []string
}

// fingerprint хэширует части определения.
func fingerprint(parts ...string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, "\x1f")), 16)
}

// --- Static ---

// StaticDefinition — фиксированный набор ключей партиций.
type StaticDefinition struct {
	keys        []string
	fingerprint string
}

// NewStatic создаёт статическое определение. Порядок ключей сохраняется.
func NewStatic(keys ...string) (*StaticDefinition, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyPartitions
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key == "" {
			return nil, fmt.Errorf("%w: empty key", ErrEmptyPartitions)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePartitionKey, key)
		}
		seen[key] = true
	}

	owned := make([]string, len(keys))
	copy(owned, keys)

	return &StaticDefinition{
		keys:        owned,
		fingerprint: fingerprint(append([]string{string(KindStatic)}, owned...)...),
	}, nil
}

// Kind реализует Definition.
func (d *StaticDefinition) Kind() Kind { return KindStatic }

// Fingerprint реализует Definition.
func (d *StaticDefinition) Fingerprint() string { return d.fingerprint }

// KeysAt реализует Definition. Статические ключи от времени не зависят.
func (d *StaticDefinition) KeysAt(time.Time) []string {
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

// --- Time window ---

// Window — временное окно одной партиции: [Start, End).
type Window struct {
	Key   string
	Start time.Time
	End   time.Time
}

// TimeWindowDefinition — партиции по окнам cron-расписания.
//
// Окно i — [tick_i, tick_i+1), где tick_0 — первый тик не раньше Start.
// Партиция существует, только когда её окно полностью прошло;
// EndOffset разрешает столько же окон вперёд (может быть отрицательным).
type TimeWindowDefinition struct {
	Start     time.Time
	Cron      string
	Timezone  string
	Format    string
	EndOffset int

	fingerprint string
}

// NewTimeWindow создаёт определение временных партиций.
func NewTimeWindow(start time.Time, cronExpr, timezone, format string, endOffset int) (*TimeWindowDefinition, error) {
	if start.IsZero() {
		return nil, fmt.Errorf("%w: start is required", ErrInvalidTimeWindow)
	}
	if format == "" {
		return nil, fmt.Errorf("%w: format is required", ErrInvalidTimeWindow)
	}
	if err := cronutil.Validate(cronExpr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeWindow, err)
	}
	if timezone == "" {
		timezone = "UTC"
	}

	return &TimeWindowDefinition{
		Start:     start.UTC(),
		Cron:      cronExpr,
		Timezone:  timezone,
		Format:    format,
		EndOffset: endOffset,
		fingerprint: fingerprint(
			string(KindTimeWindow),
			start.UTC().Format(time.RFC3339),
			cronExpr,
			timezone,
			format,
			strconv.Itoa(endOffset),
		),
	}, nil
}

// Daily — ежедневные партиции в UTC с ключами вида "2006-01-02".
func Daily(start time.Time) *TimeWindowDefinition {
	d, _ := NewTimeWindow(start, "0 0 * * *", "UTC", "2006-01-02", 0)
	return d
}

// Hourly — ежечасные партиции в UTC с ключами вида "2006-01-02-15:04".
func Hourly(start time.Time) *TimeWindowDefinition {
	d, _ := NewTimeWindow(start, "0 * * * *", "UTC", "2006-01-02-15:04", 0)
	return d
}

// Kind реализует Definition.
func (d *TimeWindowDefinition) Kind() Kind { return KindTimeWindow }

// Fingerprint реализует Definition.
func (d *TimeWindowDefinition) Fingerprint() string { return d.fingerprint }

// KeysAt реализует Definition.
func (d *TimeWindowDefinition) KeysAt(at time.Time) []string {
	windows := d.WindowsAt(at)
	keys := make([]string, len(windows))
	for i, w := range windows {
		keys[i] = w.Key
	}
	return keys
}

// WindowsAt возвращает окна партиций, существующих в момент at.
func (d *TimeWindowDefinition) WindowsAt(at time.Time) []Window {
	// Тики в [Start, at]
	ticks, err := cronutil.Ticks(d.Cron, d.Timezone, d.Start, at.Add(time.Nanosecond))
	if err != nil {
		return nil
	}

	// Полностью прошедших окон на одно меньше, чем тиков
	count := len(ticks) - 1 + d.EndOffset
	if len(ticks) == 0 {
		count = d.EndOffset - 1
	}
	if count <= 0 {
		return []Window{}
	}

	// Для EndOffset > 0 нужны тики за пределами at
	for len(ticks) < count+1 {
		after := d.Start.Add(-time.Nanosecond)
		if len(ticks) > 0 {
			after = ticks[len(ticks)-1]
		}
		next, err := cronutil.NextTick(d.Cron, d.Timezone, after)
		if err != nil {
			break
		}
		ticks = append(ticks, next)
	}
	if count > len(ticks)-1 {
		count = len(ticks) - 1
	}

	loc := cronutil.Location(d.Timezone)
	windows := make([]Window, count)
	for i := 0; i < count; i++ {
		windows[i] = Window{
			Key:   ticks[i].In(loc).Format(d.Format),
			Start: ticks[i],
			End:   ticks[i+1],
		}
	}
	return windows
}

package partitions

import (
	"strconv"
	"time"
)

// unpartitionedFingerprint — отпечаток пространства непартиционированного asset.
const unpartitionedFingerprint = "unpartitioned"

// Space — снимок валидных партиций asset на момент времени.
//
// Space создаётся один раз за тик для каждого asset и дальше не меняется.
// Подмножества партиций (subset.AssetSubset) индексируются позициями
// ключей в Space, поэтому два подмножества совместимы только
// при совпадении Version.
type Space struct {
	def         Definition
	fingerprint string
	keys        []string
	index       map[string]int
	windows     []Window
}

// NewSpace создаёт снимок пространства партиций.
// def == nil означает непартиционированный asset с одной неявной партицией "".
func NewSpace(def Definition, at time.Time) *Space {
	if def == nil {
		return &Space{
			fingerprint: unpartitionedFingerprint,
			keys:        []string{""},
			index:       map[string]int{"": 0},
		}
	}

	s := &Space{
		def:         def,
		fingerprint: def.Fingerprint(),
	}

	if tw, ok := def.(*TimeWindowDefinition); ok {
		s.windows = tw.WindowsAt(at)
		s.keys = make([]string, len(s.windows))
		for i, w := range s.windows {
			s.keys[i] = w.Key
		}
	} else {
		s.keys = def.KeysAt(at)
	}

	s.index = make(map[string]int, len(s.keys))
	for i, key := range s.keys {
		s.index[key] = i
	}
	return s
}

// Definition возвращает определение (nil для непартиционированного asset).
func (s *Space) Definition() Definition {
	return s.def
}

// Fingerprint возвращает отпечаток определения.
func (s *Space) Fingerprint() string {
	return s.fingerprint
}

// Version идентифицирует снимок: определение плюс число валидных ключей.
// Временное пространство растёт со временем, поэтому одного отпечатка мало.
func (s *Space) Version() string {
	return s.fingerprint + ":" + strconv.Itoa(len(s.keys))
}

// Partitioned возвращает false для непартиционированного asset.
func (s *Space) Partitioned() bool {
	return s.def != nil
}

// IsTimeWindow возвращает true для временных партиций.
func (s *Space) IsTimeWindow() bool {
	_, ok := s.def.(*TimeWindowDefinition)
	return ok
}

// Size возвращает число валидных партиций.
func (s *Space) Size() int {
	return len(s.keys)
}

// Key возвращает ключ по позиции.
func (s *Space) Key(i int) string {
	return s.keys[i]
}

// Keys возвращает копию упорядоченных ключей.
func (s *Space) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Index возвращает позицию ключа.
func (s *Space) Index(key string) (int, bool) {
	i, ok := s.index[key]
	return i, ok
}

// Contains проверяет, валиден ли ключ.
func (s *Space) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Windows возвращает окна временных партиций (nil для остальных).
func (s *Space) Windows() []Window {
	return s.windows
}

// LatestKey возвращает ключ последней партиции.
func (s *Space) LatestKey() (string, bool) {
	if len(s.keys) == 0 {
		return "", false
	}
	return s.keys[len(s.keys)-1], true
}

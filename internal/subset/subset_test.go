package subset

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/assetsched/internal/domain"
	"github.com/shaiso/assetsched/internal/partitions"
)

func staticSpace(t *testing.T, keys ...string) *partitions.Space {
	t.Helper()
	def, err := partitions.NewStatic(keys...)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	return partitions.NewSpace(def, time.Time{})
}

func mustKeys(t *testing.T, key domain.AssetKey, space *partitions.Space, keys ...string) AssetSubset {
	t.Helper()
	s, err := FromKeys(key, space, keys...)
	if err != nil {
		t.Fatalf("FromKeys: %v", err)
	}
	return s
}

// --- Algebra Tests ---

func TestUnion_Commutative(t *testing.T) {
	space := staticSpace(t, "a", "b", "c", "d")
	key := domain.NewAssetKey("asset")

	x := mustKeys(t, key, space, "a", "b")
	y := mustKeys(t, key, space, "b", "d")

	xy, err := x.Union(y)
	if err != nil {
		t.Fatalf("Union: %v", err)
	}
	yx, err := y.Union(x)
	if err != nil {
		t.Fatalf("Union: %v", err)
	}
	if !xy.Equal(yx) {
		t.Errorf("union not commutative: %s vs %s", xy, yx)
	}
	if diff := cmp.Diff([]string{"a", "b", "d"}, xy.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestIntersect_WithComplementIsEmpty(t *testing.T) {
	space := staticSpace(t, "a", "b", "c")
	key := domain.NewAssetKey("asset")

	x := mustKeys(t, key, space, "a", "c")
	notX, err := x.Invert()
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	got, err := x.Intersect(notX)
	if err != nil {
		t.Fatalf("Intersect: %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("expected empty, got %s", got)
	}
}

func TestInvert_Twice(t *testing.T) {
	space := staticSpace(t, "a", "b", "c")
	key := domain.NewAssetKey("asset")

	x := mustKeys(t, key, space, "b")
	once, _ := x.Invert()
	twice, _ := once.Invert()
	if !twice.Equal(x) {
		t.Errorf("expected %s, got %s", x, twice)
	}
	if diff := cmp.Diff([]string{"a", "c"}, once.Keys()); diff != "" {
		t.Errorf("complement mismatch (-want +got):\n%s", diff)
	}
}

func TestInvert_LargeSpace(t *testing.T) {
	keys := make([]string, 130)
	for i := range keys {
		keys[i] = string(rune('A'+i/26)) + string(rune('a'+i%26))
	}
	space := staticSpace(t, keys...)
	key := domain.NewAssetKey("wide")

	empty := Empty(key, space)
	full, _ := empty.Invert()
	if full.Size() != 130 {
		t.Errorf("expected 130, got %d", full.Size())
	}
	if !full.Equal(All(key, space)) {
		t.Error("inverted empty must equal All")
	}
}

func TestSubtract(t *testing.T) {
	space := staticSpace(t, "a", "b", "c")
	key := domain.NewAssetKey("asset")

	got, err := All(key, space).Subtract(mustKeys(t, key, space, "b"))
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, got.Keys()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	ok, err := got.IsSubsetOf(All(key, space))
	if err != nil || !ok {
		t.Errorf("expected subset, got %v, %v", ok, err)
	}
}

func TestUnpartitioned(t *testing.T) {
	space := partitions.NewSpace(nil, time.Time{})
	key := domain.NewAssetKey("plain")

	all := All(key, space)
	if all.Size() != 1 || !all.ContainsKey("") {
		t.Errorf("expected single implicit partition, got %s", all)
	}
	if all.String() != "plain{*}" {
		t.Errorf("unexpected String: %s", all.String())
	}
	if Empty(key, space).String() != "plain{}" {
		t.Errorf("unexpected String: %s", Empty(key, space).String())
	}
}

// --- Error Tests ---

func TestFromKeys_Unknown(t *testing.T) {
	space := staticSpace(t, "a")
	_, err := FromKeys(domain.NewAssetKey("x"), space, "zzz")
	if !errors.Is(err, ErrUnknownPartition) {
		t.Errorf("expected ErrUnknownPartition, got %v", err)
	}
}

func TestOperations_AssetMismatch(t *testing.T) {
	space := staticSpace(t, "a")
	_, err := All("x", space).Union(All("y", space))
	if !errors.Is(err, ErrAssetMismatch) {
		t.Errorf("expected ErrAssetMismatch, got %v", err)
	}
}

func TestOperations_Drift(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	def := partitions.Daily(start)
	key := domain.NewAssetKey("daily")

	early := partitions.NewSpace(def, start.AddDate(0, 0, 3))
	later := partitions.NewSpace(def, start.AddDate(0, 0, 5))

	_, err := All(key, early).Intersect(All(key, later))
	if !errors.Is(err, ErrPartitionsDrift) {
		t.Errorf("expected ErrPartitionsDrift, got %v", err)
	}
	if All(key, early).Equal(All(key, later)) {
		t.Error("subsets from different snapshots must not be equal")
	}
}

func TestOperations_InvalidSubset(t *testing.T) {
	var zero AssetSubset
	space := staticSpace(t, "a")

	if _, err := zero.Union(All("x", space)); !errors.Is(err, ErrInvalidSubset) {
		t.Errorf("expected ErrInvalidSubset, got %v", err)
	}
	if _, err := zero.Invert(); !errors.Is(err, ErrInvalidSubset) {
		t.Errorf("expected ErrInvalidSubset, got %v", err)
	}
	if zero.IsValid() {
		t.Error("zero value must be invalid")
	}
}

// --- Serialization Tests ---

func TestSerialized_RoundTripTimeWindow(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	def := partitions.Daily(start)
	key := domain.NewAssetKey("daily")

	space := partitions.NewSpace(def, start.AddDate(0, 0, 3))
	orig := All(key, space)

	ser := orig.Serialize()
	if ser.All {
		t.Error("time window subsets must store explicit keys")
	}

	// Пространство выросло: сохранённые ключи остаются валидными.
	grown := partitions.NewSpace(def, start.AddDate(0, 0, 5))
	got, err := FromSerialized(ser, key, grown)
	if err != nil {
		t.Fatalf("FromSerialized: %v", err)
	}
	if diff := cmp.Diff(orig.Keys(), got.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if got.Size() == All(key, grown).Size() {
		t.Error("restored subset must not cover new partitions")
	}
}

func TestSerialized_StaticAll(t *testing.T) {
	space := staticSpace(t, "a", "b")
	key := domain.NewAssetKey("s")

	ser := All(key, space).Serialize()
	if !ser.All || len(ser.Keys) != 0 {
		t.Errorf("expected compact form, got %+v", ser)
	}
	got, err := FromSerialized(ser, key, space)
	if err != nil {
		t.Fatalf("FromSerialized: %v", err)
	}
	if got.Size() != 2 {
		t.Errorf("expected 2, got %d", got.Size())
	}
}

func TestFromSerialized_FingerprintMismatch(t *testing.T) {
	key := domain.NewAssetKey("s")
	ser := All(key, staticSpace(t, "a", "b")).Serialize()

	_, err := FromSerialized(ser, key, staticSpace(t, "a", "b", "c"))
	if !errors.Is(err, ErrPartitionsDrift) {
		t.Errorf("expected ErrPartitionsDrift, got %v", err)
	}
}

func TestFromSerialized_WrongAsset(t *testing.T) {
	space := staticSpace(t, "a")
	ser := All("x", space).Serialize()

	_, err := FromSerialized(ser, "y", space)
	if !errors.Is(err, ErrAssetMismatch) {
		t.Errorf("expected ErrAssetMismatch, got %v", err)
	}
}

package kvstore

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

// backends returns every Store implementation under test, so each
// contract test runs against memory and bolt alike.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	boltStore, err := NewBoltStore(filepath.Join(t.TempDir(), "atlas.db"))
	if err != nil {
		t.Fatalf("opening bolt store: %v", err)
	}
	t.Cleanup(func() { boltStore.Close() })

	memStore := NewMemoryStore()
	t.Cleanup(func() { memStore.Close() })

	return map[string]Store{
		"memory": memStore,
		"bolt":   boltStore,
	}
}

func TestRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetRecord(ctx, "asset:1"); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound for missing record, got %v", err)
			}

			fields := map[string]string{"id": "1", "label": "North Region", "category": "Region"}
			if err := s.SetRecord(ctx, "asset:1", fields); err != nil {
				t.Fatalf("unexpected error on SetRecord: %v", err)
			}

			got, err := s.GetRecord(ctx, "asset:1")
			if err != nil {
				t.Fatalf("unexpected error on GetRecord: %v", err)
			}
			if !reflect.DeepEqual(got, fields) {
				t.Errorf("expected %v, got %v", fields, got)
			}

			// Fields merge over existing ones rather than replacing the hash.
			if err := s.SetRecord(ctx, "asset:1", map[string]string{"label": "South Region"}); err != nil {
				t.Fatalf("unexpected error on merge SetRecord: %v", err)
			}
			got, err = s.GetRecord(ctx, "asset:1")
			if err != nil {
				t.Fatalf("unexpected error on GetRecord after merge: %v", err)
			}
			if got["label"] != "South Region" {
				t.Errorf("expected merged label South Region, got %s", got["label"])
			}
			if got["category"] != "Region" {
				t.Errorf("expected category to survive merge, got %s", got["category"])
			}
		})
	}
}

func TestValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetValue(ctx, "user:token:abc"); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound for missing value, got %v", err)
			}
			if err := s.SetValue(ctx, "user:token:abc", "9"); err != nil {
				t.Fatalf("unexpected error on SetValue: %v", err)
			}
			got, err := s.GetValue(ctx, "user:token:abc")
			if err != nil {
				t.Fatalf("unexpected error on GetValue: %v", err)
			}
			if got != "9" {
				t.Errorf("expected 9, got %s", got)
			}
		})
	}
}

func TestSetAlgebra(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.AddToSet(ctx, "a", "1", "2", "3"); err != nil {
				t.Fatalf("unexpected error on AddToSet: %v", err)
			}
			if err := s.AddToSet(ctx, "b", "2", "3", "4"); err != nil {
				t.Fatalf("unexpected error on AddToSet: %v", err)
			}

			inter, err := s.Intersect(ctx, "a", "b")
			if err != nil {
				t.Fatalf("unexpected error on Intersect: %v", err)
			}
			if want := []string{"2", "3"}; !sameMembers(inter, want) {
				t.Errorf("expected intersection %v, got %v", want, inter)
			}

			union, err := s.Union(ctx, "a", "b")
			if err != nil {
				t.Fatalf("unexpected error on Union: %v", err)
			}
			if want := []string{"1", "2", "3", "4"}; !sameMembers(union, want) {
				t.Errorf("expected union %v, got %v", want, union)
			}

			// Intersecting with a missing set behaves as empty.
			inter, err = s.Intersect(ctx, "a", "missing")
			if err != nil {
				t.Fatalf("unexpected error intersecting with missing set: %v", err)
			}
			if len(inter) != 0 {
				t.Errorf("expected empty intersection, got %v", inter)
			}
		})
	}
}

func TestUnionStoreReplacesDest(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.AddToSet(ctx, "dest", "stale"); err != nil {
				t.Fatalf("unexpected error seeding dest: %v", err)
			}
			if err := s.AddToSet(ctx, "src1", "1"); err != nil {
				t.Fatalf("unexpected error seeding src1: %v", err)
			}
			if err := s.AddToSet(ctx, "src2", "2"); err != nil {
				t.Fatalf("unexpected error seeding src2: %v", err)
			}

			if err := s.UnionStore(ctx, "dest", "src1", "src2"); err != nil {
				t.Fatalf("unexpected error on UnionStore: %v", err)
			}
			got, err := s.Members(ctx, "dest")
			if err != nil {
				t.Fatalf("unexpected error on Members: %v", err)
			}
			if want := []string{"1", "2"}; !sameMembers(got, want) {
				t.Errorf("expected dest replaced with %v, got %v", want, got)
			}
		})
	}
}

func TestExistsIncrementDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.Exists(ctx, "fetched:5:2024")
			if err != nil {
				t.Fatalf("unexpected error on Exists: %v", err)
			}
			if ok {
				t.Fatal("expected missing key to not exist")
			}

			if err := s.Increment(ctx, "fetched:5:2024"); err != nil {
				t.Fatalf("unexpected error on Increment: %v", err)
			}
			if err := s.Increment(ctx, "fetched:5:2024"); err != nil {
				t.Fatalf("unexpected error on second Increment: %v", err)
			}
			got, err := s.GetValue(ctx, "fetched:5:2024")
			if err != nil {
				t.Fatalf("unexpected error reading counter: %v", err)
			}
			if got != "2" {
				t.Errorf("expected counter 2, got %s", got)
			}

			ok, err = s.Exists(ctx, "fetched:5:2024")
			if err != nil {
				t.Fatalf("unexpected error on Exists: %v", err)
			}
			if !ok {
				t.Error("expected counter key to exist")
			}

			if err := s.Delete(ctx, "fetched:5:2024", "never-existed"); err != nil {
				t.Fatalf("unexpected error on Delete: %v", err)
			}
			if _, err := s.GetValue(ctx, "fetched:5:2024"); err != ErrNotFound {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestKeysPattern(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.SetRecord(ctx, "asset:1", map[string]string{"id": "1"}); err != nil {
				t.Fatalf("unexpected error on SetRecord: %v", err)
			}
			if err := s.SetRecord(ctx, "asset:2", map[string]string{"id": "2"}); err != nil {
				t.Fatalf("unexpected error on SetRecord: %v", err)
			}
			if err := s.SetRecord(ctx, "layer:1", map[string]string{"id": "1"}); err != nil {
				t.Fatalf("unexpected error on SetRecord: %v", err)
			}

			keys, err := s.Keys(ctx, "asset:*")
			if err != nil {
				t.Fatalf("unexpected error on Keys: %v", err)
			}
			if want := []string{"asset:1", "asset:2"}; !sameMembers(keys, want) {
				t.Errorf("expected keys %v, got %v", want, keys)
			}
		})
	}
}

// sameMembers compares two member lists ignoring order.
func sameMembers(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	set := make(map[string]struct{}, len(got))
	for _, m := range got {
		set[m] = struct{}{}
	}
	for _, m := range want {
		if _, ok := set[m]; !ok {
			return false
		}
	}
	return true
}

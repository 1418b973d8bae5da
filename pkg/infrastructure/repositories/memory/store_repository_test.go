package memory

import (
	"testing"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func TestStoreRepository_LoadAndGet(t *testing.T) {
	repo := NewStoreRepository(2)

	stores := []*entities.Store{
		{ID: "S2", SizeSqft: 8000, MedianIncome: 52000, LocationTier: 2, FashionTier: 1, Format: "mall", Region: "west"},
		{ID: "S1", SizeSqft: 12000, MedianIncome: 87000, LocationTier: 3, FashionTier: 3, Format: "flagship", Region: "east"},
	}
	if err := repo.LoadStores(stores); err != nil {
		t.Fatalf("Failed to load stores: %v", err)
	}

	retrieved, err := repo.GetStore("S1")
	if err != nil {
		t.Fatalf("Failed to get store: %v", err)
	}
	if retrieved.SizeSqft != 12000 {
		t.Errorf("Expected size 12000, got %.0f", retrieved.SizeSqft)
	}

	// returned values are copies; the cached table stays read-only
	retrieved.SizeSqft = 1
	again, _ := repo.GetStore("S1")
	if again.SizeSqft != 12000 {
		t.Error("Expected repository store to be unaffected by caller mutation")
	}

	all, err := repo.GetAllStores()
	if err != nil {
		t.Fatalf("Failed to list stores: %v", err)
	}
	if len(all) != 2 || all[0].ID != "S1" || all[1].ID != "S2" {
		t.Errorf("Expected stores sorted by id, got %v", all)
	}

	if _, err := repo.GetStore("missing"); err == nil {
		t.Error("Expected error for unknown store")
	}
}

func TestStoreRepository_DuplicateID(t *testing.T) {
	repo := NewStoreRepository(1)
	store := &entities.Store{ID: "S1", SizeSqft: 1000}
	if err := repo.LoadStores([]*entities.Store{store, store}); err == nil {
		t.Error("Expected duplicate store id to be rejected")
	}
}

package memory

import (
	"fmt"
	"sort"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/domain/repositories"
)

// StoreRepository provides in-memory store attribute storage
type StoreRepository struct {
	stores    []entities.Store
	storesMap map[entities.StoreID]int
}

// NewStoreRepository creates a new in-memory store repository
func NewStoreRepository(expectedStores int) *StoreRepository {
	return &StoreRepository{
		stores:    make([]entities.Store, 0, expectedStores),
		storesMap: make(map[entities.StoreID]int, expectedStores),
	}
}

// Verify interface compliance
var _ repositories.StoreRepository = (*StoreRepository)(nil)

// LoadStores loads stores into the repository, rejecting duplicate ids
func (r *StoreRepository) LoadStores(stores []*entities.Store) error {
	for _, store := range stores {
		if err := r.AddStore(*store); err != nil {
			return err
		}
	}
	return nil
}

// AddStore adds a store to the repository
func (r *StoreRepository) AddStore(store entities.Store) error {
	if _, exists := r.storesMap[store.ID]; exists {
		return fmt.Errorf("duplicate store id: %s", store.ID)
	}
	r.storesMap[store.ID] = len(r.stores)
	r.stores = append(r.stores, store)
	return nil
}

// GetStore returns attributes for a store
func (r *StoreRepository) GetStore(id entities.StoreID) (*entities.Store, error) {
	index, exists := r.storesMap[id]
	if !exists {
		return nil, fmt.Errorf("store not found: %s", id)
	}
	store := r.stores[index]
	return &store, nil
}

// GetAllStores returns copies of all stores sorted by id
func (r *StoreRepository) GetAllStores() ([]*entities.Store, error) {
	stores := make([]*entities.Store, 0, len(r.stores))
	for i := range r.stores {
		store := r.stores[i]
		stores = append(stores, &store)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].ID < stores[j].ID })
	return stores, nil
}

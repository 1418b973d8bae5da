package repositories

import "github.com/vsinha/seasonplan/pkg/domain/entities"

// StoreRepository provides access to store attribute data
type StoreRepository interface {
	GetStore(id entities.StoreID) (*entities.Store, error)
	GetAllStores() ([]*entities.Store, error)
	LoadStores(stores []*entities.Store) error
}

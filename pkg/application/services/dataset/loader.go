package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/domain/repositories"
	"github.com/vsinha/seasonplan/pkg/infrastructure/repositories/csv"
	"github.com/vsinha/seasonplan/pkg/infrastructure/repositories/memory"
)

// Dataset is the typed, read-only view of one category's inputs.
// It is shared between workflow runs and must not be modified after load.
type Dataset struct {
	Category   string
	Stores     []entities.Store
	Weekly     entities.WeeklySeries
	StoreSales map[entities.StoreID]entities.Quantity
}

// StoreVelocity returns average weekly units for a store over the history window
func (d *Dataset) StoreVelocity(id entities.StoreID) float64 {
	if d.Weekly.Len() == 0 {
		return 0
	}
	return float64(d.StoreSales[id]) / float64(d.Weekly.Len())
}

// Files locates the historical input tables
type Files struct {
	SalesFile  string
	StoresFile string
}

// Loader reads historical tables once per category and caches the result
type Loader struct {
	files  Files
	csv    *csv.Loader
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*Dataset
}

// NewLoader creates a dataset loader over CSV files
func NewLoader(files Files, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		files:  files,
		csv:    csv.NewLoader(),
		logger: logger,
		cache:  make(map[string]*Dataset),
	}
}

// Load returns the cached dataset for a category, reading the tables on first use
func (l *Loader) Load(ctx context.Context, category string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ds, ok := l.cache[category]; ok {
		return ds, nil
	}

	salesRepo, storeRepo, err := l.loadRepositories(category)
	if err != nil {
		return nil, err
	}

	ds, err := FromRepositories(category, salesRepo, storeRepo)
	if err != nil {
		return nil, err
	}

	l.cache[category] = ds
	l.logger.Info("dataset loaded",
		zap.String("category", category),
		zap.Int("weeks", ds.Weekly.Len()),
		zap.Int("stores", len(ds.Stores)),
	)
	return ds, nil
}

// Put seeds the cache with a prepared dataset
func (l *Loader) Put(ds *Dataset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[ds.Category] = ds
}

func (l *Loader) loadRepositories(category string) (*memory.SalesRepository, *memory.StoreRepository, error) {
	if l.files.SalesFile == "" {
		return nil, nil, &entities.DataNotFoundError{Artifact: "historical sales table", Category: category}
	}
	if l.files.StoresFile == "" {
		return nil, nil, &entities.DataNotFoundError{Artifact: "store attributes table", Category: category}
	}

	sales, err := l.csv.LoadSales(l.files.SalesFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, &entities.DataNotFoundError{Artifact: "historical sales table " + l.files.SalesFile, Category: category, Err: err}
		}
		return nil, nil, fmt.Errorf("failed to load sales: %w", err)
	}

	stores, err := l.csv.LoadStores(l.files.StoresFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, &entities.DataNotFoundError{Artifact: "store attributes table " + l.files.StoresFile, Category: category, Err: err}
		}
		return nil, nil, fmt.Errorf("failed to load stores: %w", err)
	}

	salesRepo := memory.NewSalesRepository()
	if err := salesRepo.LoadSales(sales); err != nil {
		return nil, nil, fmt.Errorf("failed to load sales into repository: %w", err)
	}

	storeRepo := memory.NewStoreRepository(len(stores))
	if err := storeRepo.LoadStores(stores); err != nil {
		return nil, nil, fmt.Errorf("failed to load stores into repository: %w", err)
	}

	return salesRepo, storeRepo, nil
}

// FromRepositories builds a dataset for a category from loaded repositories
func FromRepositories(
	category string,
	salesRepo repositories.SalesRepository,
	storeRepo repositories.StoreRepository,
) (*Dataset, error) {
	series, err := salesRepo.WeeklySeries(category)
	if err != nil {
		return nil, &entities.DataNotFoundError{Artifact: "historical sales for category", Category: category, Err: err}
	}

	storeSales, err := salesRepo.StoreTotals(category)
	if err != nil {
		return nil, &entities.DataNotFoundError{Artifact: "historical sales for category", Category: category, Err: err}
	}

	stores, err := storeRepo.GetAllStores()
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	if len(stores) == 0 {
		return nil, &entities.DataNotFoundError{Artifact: "store attributes table (no stores)", Category: category}
	}

	ds := &Dataset{
		Category:   category,
		Stores:     make([]entities.Store, 0, len(stores)),
		Weekly:     series,
		StoreSales: make(map[entities.StoreID]entities.Quantity, len(stores)),
	}
	for _, s := range stores {
		ds.Stores = append(ds.Stores, *s)
		ds.StoreSales[s.ID] = storeSales[s.ID]
	}
	return ds, nil
}

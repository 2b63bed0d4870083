// Package stock fronts the remote stock store for the cart and the shop
// pages. Reads are deliberately fail-closed: a remote error reads as zero
// availability, because refusing a sale beats overselling. The
// authoritative check stays with the checkout transaction.
package stock

import (
	"context"
	"fmt"
	"sync"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/sirupsen/logrus"

	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/models"
)

// LevelReader is the slice of the store the façade needs.
type LevelReader interface {
	GetLocationByName(ctx context.Context, name string) (*models.StockLocation, error)
	GetStockQuantity(ctx context.Context, productID, locationID string) (int, error)
	StockLevelsAt(ctx context.Context, locationID string, productIDs []string) (map[string]int, error)
}

type Facade struct {
	store LevelReader
	log   *logrus.Logger

	mu        sync.Mutex
	locations map[string]string // name -> id, static within a session

	shopLevels *dataloader.Loader[string, int]
}

func NewFacade(store LevelReader, log *logrus.Logger) *Facade {
	f := &Facade{
		store:     store,
		log:       log,
		locations: make(map[string]string),
	}
	// No dataloader cache: stock freshness matters more than dedup, the
	// loader is only here to coalesce a page's reads into one query.
	f.shopLevels = dataloader.NewBatchedLoader(
		f.batchShopLevels,
		dataloader.WithCache[string, int](&dataloader.NoCache[string, int]{}),
	)
	return f
}

// ResolveLocation maps a logical location name to its id. Results are
// cached for the session; locations are effectively static.
func (f *Facade) ResolveLocation(ctx context.Context, name string) (string, bool) {
	f.mu.Lock()
	if id, ok := f.locations[name]; ok {
		f.mu.Unlock()
		return id, true
	}
	f.mu.Unlock()

	loc, err := f.store.GetLocationByName(ctx, name)
	if err != nil {
		config.LogError(f.log, "stock", "ResolveLocation", name, nil, err)
		return "", false
	}

	f.mu.Lock()
	f.locations[name] = loc.ID
	f.mu.Unlock()
	return loc.ID, true
}

// GetStock reads the quantity of a product at a named location. The
// returned quantity is always usable: any failure reads as 0 (fail-closed)
// with the error alongside so callers can surface a retry notification.
func (f *Facade) GetStock(ctx context.Context, productID, locationName string) (int, error) {
	locationID, ok := f.ResolveLocation(ctx, locationName)
	if !ok {
		return 0, fmt.Errorf("location %s not resolved", locationName)
	}
	qty, err := f.store.GetStockQuantity(ctx, productID, locationID)
	if err != nil {
		config.LogError(f.log, "stock", "GetStock", locationName, productID, err)
		return 0, err
	}
	return qty, nil
}

// GetShopStockLevels reads shop quantities for many products, coalesced
// through the batching loader. Errors degrade to an empty map.
func (f *Facade) GetShopStockLevels(ctx context.Context, productIDs []string) map[string]int {
	result := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return result
	}
	thunk := f.shopLevels.LoadMany(ctx, productIDs)
	values, errs := thunk()
	for i, id := range productIDs {
		if i < len(errs) && errs[i] != nil {
			continue
		}
		result[id] = values[i]
	}
	return result
}

func (f *Facade) batchShopLevels(ctx context.Context, productIDs []string) []*dataloader.Result[int] {
	results := make([]*dataloader.Result[int], len(productIDs))

	shopID, ok := f.ResolveLocation(ctx, models.LocationShop)
	if !ok {
		for i := range results {
			results[i] = &dataloader.Result[int]{Data: 0}
		}
		return results
	}

	levels, err := f.store.StockLevelsAt(ctx, shopID, productIDs)
	if err != nil {
		config.LogError(f.log, "stock", "batchShopLevels", models.LocationShop, nil, err)
		for i := range results {
			results[i] = &dataloader.Result[int]{Error: err}
		}
		return results
	}

	for i, id := range productIDs {
		results[i] = &dataloader.Result[int]{Data: levels[id]}
	}
	return results
}

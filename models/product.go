package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ydt710/my-pos/cache"
	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/utils"
)

var ErrorDuplicateBulkTier = errors.New("duplicate bulk price tier threshold")

// Product is immutable from the cart's perspective; the catalog owns it.
type Product struct {
	ID             string              `gorm:"primary_key;size:36" json:"id"`
	Name           string              `gorm:"size:255;not null" json:"name" binding:"required"`
	Description    string              `gorm:"type:text" json:"description"`
	Price          decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"price"`
	SpecialPrice   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"special_price"`
	ImageUrl       string              `gorm:"size:512" json:"image_url"`
	Category       string              `gorm:"index;size:100" json:"category"`
	ThcMax         decimal.NullDecimal `gorm:"type:decimal(6,2)" json:"thc_max"`
	CbdMax         decimal.NullDecimal `gorm:"type:decimal(6,2)" json:"cbd_max"`
	Indica         int                 `gorm:"default:0" json:"indica"`
	IsSpecial      *bool               `gorm:"not null;default:false" json:"is_special"`
	IsNew          *bool               `gorm:"not null;default:false" json:"is_new"`
	IsOutOfStock   *bool               `gorm:"not null;default:false" json:"is_out_of_stock"`
	LowStockBuffer int                 `gorm:"default:0" json:"low_stock_buffer"`
	BulkPrices     []BulkPrice         `gorm:"foreignKey:ProductID;references:ID" json:"bulk_prices"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// BulkPrice is one tier of a volume price schedule: the tier with the
// largest MinQty not exceeding the requested quantity wins.
type BulkPrice struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ProductID string          `gorm:"index;size:36;not null" json:"product_id"`
	MinQty    int             `gorm:"not null" json:"min_qty"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
}

// ValidateBulkPrices rejects schedules with duplicate thresholds: tier
// selection is undefined when two tiers share a MinQty, so the schedule is
// refused outright instead of picking one silently.
func (p *Product) ValidateBulkPrices() error {
	seen := make(map[int]bool, len(p.BulkPrices))
	for _, bp := range p.BulkPrices {
		if seen[bp.MinQty] {
			return fmt.Errorf("%w: product %s min_qty %d", ErrorDuplicateBulkTier, p.ID, bp.MinQty)
		}
		seen[bp.MinQty] = true
	}
	return nil
}

// OutOfStock reports the manual catalog flag, not the live stock level.
func (p *Product) OutOfStock() bool {
	return p.IsOutOfStock != nil && *p.IsOutOfStock
}

// GetProduct reads one product, trying the product cache first. Remote
// reads are retried twice before giving up.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	if s.Cache != nil {
		var cached Product
		if s.Cache.Get(cache.CategoryProduct, id, &cached) {
			return &cached, nil
		}
	}

	p, err := utils.Retry(ctx, 2, func() (*Product, error) {
		var p Product
		err := s.DB.WithContext(ctx).Preload("BulkPrices").First(&p, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		if err != nil {
			return nil, err
		}
		return &p, nil
	})
	if err != nil {
		return nil, err
	}
	if err := p.ValidateBulkPrices(); err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Put(ctx, cache.CategoryProduct, id, p); err != nil {
			config.LogError(s.Log, "models", "GetProduct", "cache product", id, err)
		}
	}
	return p, nil
}

// ListProducts returns the catalog, optionally filtered by category, newest
// first. Every fetched product lands in the product cache.
func (s *Store) ListProducts(ctx context.Context, category string) ([]Product, error) {
	products, err := utils.Retry(ctx, 2, func() ([]Product, error) {
		var products []Product
		q := s.DB.WithContext(ctx).Preload("BulkPrices").Order("created_at DESC")
		if category != "" {
			q = q.Where("category = ?", category)
		}
		if err := q.Find(&products).Error; err != nil {
			return nil, err
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		for i := range products {
			if err := s.Cache.Put(ctx, cache.CategoryProduct, products[i].ID, &products[i]); err != nil {
				config.LogError(s.Log, "models", "ListProducts", "cache product", products[i].ID, err)
			}
		}
	}
	return products, nil
}

// ClearProductCache drops every cached product, in memory and durable.
func (s *Store) ClearProductCache(ctx context.Context) {
	if s.Cache != nil {
		s.Cache.Clear(ctx, cache.CategoryProduct)
	}
}

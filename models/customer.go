package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ydt710/my-pos/cache"
	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/utils"
)

// Customer is a profile an operator can select for a POS session.
type Customer struct {
	ID          string          `gorm:"primary_key;size:36" json:"id"`
	Email       string          `gorm:"size:255;uniqueIndex;not null" json:"email" binding:"required,email"`
	DisplayName string          `gorm:"size:255" json:"display_name"`
	Phone       string          `gorm:"size:20" json:"phone"`
	Address     string          `gorm:"type:text" json:"address"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	IsAdmin     *bool           `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomPrice is a per-customer negotiated unit price for one product. It
// overrides every other pricing rule, independent of quantity.
type CustomPrice struct {
	ID         int             `gorm:"primary_key" json:"id"`
	CustomerID string          `gorm:"index:idx_custom_price,unique;size:36;not null" json:"customer_id"`
	ProductID  string          `gorm:"index:idx_custom_price,unique;size:36;not null" json:"product_id"`
	Price      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// GetCustomer reads a profile through the profile cache.
func (s *Store) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	if s.Cache != nil {
		var cached Customer
		if s.Cache.Get(cache.CategoryProfile, id, &cached) {
			return &cached, nil
		}
	}

	var c Customer
	err := s.DB.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if cerr := s.Cache.Put(ctx, cache.CategoryProfile, id, &c); cerr != nil {
			config.LogError(s.Log, "models", "GetCustomer", "cache profile", id, cerr)
		}
	}
	return &c, nil
}

// GetCustomPrices returns the negotiated price map for a customer. An empty
// customer id yields an empty map; so does a read error, with the error
// returned so the caller can surface a retry notification.
func (s *Store) GetCustomPrices(ctx context.Context, customerID string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	if customerID == "" {
		return prices, nil
	}

	var rows []CustomPrice
	if err := s.DB.WithContext(ctx).Where("customer_id = ?", customerID).Find(&rows).Error; err != nil {
		config.LogError(s.Log, "models", "GetCustomPrices", "load custom prices", customerID, err)
		return prices, err
	}
	for _, row := range rows {
		prices[row.ProductID] = row.Price
	}
	return prices, nil
}

package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockLevel tracks the on-hand quantity per (product, location). An absent
// row reads as zero.
type StockLevel struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ProductID  string    `gorm:"index:idx_stock_level,unique;size:36;not null" json:"product_id"`
	LocationID string    `gorm:"index:idx_stock_level,unique;size:36;not null" json:"location_id"`
	Quantity   int       `gorm:"not null;default:0" json:"quantity"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetStockQuantity reads one stock level; missing record = 0.
func (s *Store) GetStockQuantity(ctx context.Context, productID, locationID string) (int, error) {
	var level StockLevel
	err := s.DB.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		First(&level).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return level.Quantity, nil
}

// UpsertStockLevel writes an absolute quantity for (product, location).
func (s *Store) UpsertStockLevel(ctx context.Context, productID, locationID string, quantity int) error {
	level := StockLevel{ProductID: productID, LocationID: locationID, Quantity: quantity}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "location_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity"}),
	}).Create(&level).Error
}

// StockLevelsAt reads the quantities of many products at one location in a
// single query. Products without a row are simply absent from the result.
func (s *Store) StockLevelsAt(ctx context.Context, locationID string, productIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}
	var levels []StockLevel
	err := s.DB.WithContext(ctx).
		Where("location_id = ? AND product_id IN ?", locationID, productIDs).
		Find(&levels).Error
	if err != nil {
		return nil, err
	}
	for _, level := range levels {
		result[level.ProductID] = level.Quantity
	}
	return result, nil
}

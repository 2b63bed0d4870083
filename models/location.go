package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ydt710/my-pos/utils"
)

// Logical location names. Resolution to ids always goes through the store;
// the ids themselves are never hardcoded.
const (
	LocationShop     = "shop"
	LocationFacility = "facility"
)

type StockLocation struct {
	ID        string    `gorm:"primary_key;size:36" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetLocationByName resolves a named logical location.
func (s *Store) GetLocationByName(ctx context.Context, name string) (*StockLocation, error) {
	var loc StockLocation
	err := s.DB.WithContext(ctx).First(&loc, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

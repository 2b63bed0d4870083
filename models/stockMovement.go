package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ydt710/my-pos/utils"
)

type MovementType string

const (
	MovementProduction MovementType = "production"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
	MovementSale       MovementType = "sale"
)

type MovementStatus string

const (
	MovementPending  MovementStatus = "pending"
	MovementDone     MovementStatus = "done"
	MovementRejected MovementStatus = "rejected"
)

// StockMovement is the audit trail of every quantity change: production
// into the facility, transfers to the shop, stocktake adjustments and
// sales out of the shop.
type StockMovement struct {
	ID             string         `gorm:"primary_key;size:36" json:"id"`
	ProductID      string         `gorm:"index;size:36;not null" json:"product_id"`
	FromLocationID *string        `gorm:"size:36" json:"from_location_id"`
	ToLocationID   *string        `gorm:"size:36" json:"to_location_id"`
	Quantity       int            `gorm:"not null" json:"quantity"`
	Type           MovementType   `gorm:"type:enum('production','transfer','adjustment','sale');not null" json:"type"`
	Status         MovementStatus `gorm:"type:enum('pending','done','rejected');default:'pending'" json:"status"`
	Note           string         `gorm:"type:text" json:"note"`
	CreatedBy      string         `gorm:"size:36" json:"created_by"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockDiscrepancy records a rejected transfer's expected/actual mismatch
// so shortfalls stay trackable to a reporter.
type StockDiscrepancy struct {
	ID               int       `gorm:"primary_key" json:"id"`
	TransferID       string    `gorm:"index;size:36;not null" json:"transfer_id"`
	ProductID        string    `gorm:"index;size:36;not null" json:"product_id"`
	ExpectedQuantity int       `gorm:"not null" json:"expected_quantity"`
	ActualQuantity   int       `gorm:"not null" json:"actual_quantity"`
	Reason           string    `gorm:"type:text" json:"reason"`
	ReportedBy       string    `gorm:"size:36" json:"reported_by"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (s *Store) InsertMovement(ctx context.Context, m *StockMovement) error {
	return s.DB.WithContext(ctx).Create(m).Error
}

func (s *Store) GetMovement(ctx context.Context, id string) (*StockMovement, error) {
	var m StockMovement
	err := s.DB.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMovement writes status, quantity and note in one shot.
func (s *Store) UpdateMovement(ctx context.Context, id string, status MovementStatus, quantity int, note string) error {
	updates := map[string]any{"status": status, "quantity": quantity}
	if note != "" {
		updates["note"] = note
	}
	return s.DB.WithContext(ctx).Model(&StockMovement{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Store) InsertDiscrepancy(ctx context.Context, d *StockDiscrepancy) error {
	return s.DB.WithContext(ctx).Create(d).Error
}

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ydt710/my-pos/appctx"
	"github.com/ydt710/my-pos/cache"
	"github.com/ydt710/my-pos/utils"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

type Order struct {
	ID           string          `gorm:"primary_key;size:36" json:"id"`
	UserID       *string         `gorm:"index;size:36" json:"user_id"`
	Total        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`
	Status       OrderStatus     `gorm:"type:enum('pending','processing','completed','cancelled');default:'pending'" json:"status"`
	IsPosOrder   *bool           `gorm:"not null;default:false" json:"is_pos_order"`
	GuestName    string          `gorm:"size:255" json:"guest_name"`
	GuestEmail   string          `gorm:"size:255" json:"guest_email"`
	GuestPhone   string          `gorm:"size:50" json:"guest_phone"`
	GuestAddress string          `gorm:"type:text" json:"guest_address"`
	OrderItems   []OrderItem     `gorm:"foreignKey:OrderID;references:ID" json:"order_items"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID        string          `gorm:"primary_key;size:36" json:"id"`
	OrderID   string          `gorm:"index;size:36;not null" json:"order_id"`
	ProductID string          `gorm:"index;size:36;not null" json:"product_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type GuestInfo struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type NewOrderItem struct {
	ProductID string          `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Price     decimal.Decimal `json:"price"`
}

type NewOrder struct {
	UserID        *string        `json:"user_id"`
	Guest         *GuestInfo     `json:"guest"`
	IsPosOrder    bool           `json:"is_pos_order"`
	PaymentMethod string         `json:"payment_method"`
	Items         []NewOrderItem `json:"items" binding:"required"`
}

const payOrderLockKey = "lock:pay_order"

var payOrderLockRetry = redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20)

// PayOrder is the authoritative commit of the two-phase stock design: the
// cart's optimistic checks only shape UX, while this operation re-checks
// and decrements shop stock inside one transaction. Any shortfall fails the
// whole order; nothing is partially applied.
func (s *Store) PayOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	if len(input.Items) == 0 {
		return nil, errors.New("order has no items")
	}

	if s.Locker != nil {
		lock, err := s.Locker.Obtain(ctx, payOrderLockKey, 5*time.Second, &redislock.Options{
			RetryStrategy: payOrderLockRetry,
		})
		if err != nil {
			return nil, fmt.Errorf("pay order lock: %w", err)
		}
		defer lock.Release(context.Background())
	}

	shop, err := s.GetLocationByName(ctx, LocationShop)
	if err != nil {
		return nil, fmt.Errorf("resolve shop location: %w", err)
	}

	total := decimal.Zero
	for _, item := range input.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	order := &Order{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		Total:      total,
		Status:     OrderCompleted,
		IsPosOrder: &input.IsPosOrder,
	}
	if input.Guest != nil {
		order.GuestName = input.Guest.Name
		order.GuestEmail = input.Guest.Email
		order.GuestPhone = utils.NormalizePhone(input.Guest.Phone)
		order.GuestAddress = input.Guest.Address
	}

	createdBy := appctx.ProfileId(ctx)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range input.Items {
			var level StockLevel
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("product_id = ? AND location_id = ?", item.ProductID, shop.ID).
				First(&level).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %s", utils.ErrorInsufficientStock, item.ProductID)
			}
			if err != nil {
				return err
			}
			if level.Quantity < item.Quantity {
				return fmt.Errorf("%w: product %s has %d, need %d",
					utils.ErrorInsufficientStock, item.ProductID, level.Quantity, item.Quantity)
			}

			err = tx.Model(&StockLevel{}).Where("id = ?", level.ID).
				Update("quantity", gorm.Expr("quantity - ?", item.Quantity)).Error
			if err != nil {
				return err
			}

			movement := &StockMovement{
				ID:             uuid.NewString(),
				ProductID:      item.ProductID,
				FromLocationID: &shop.ID,
				Quantity:       item.Quantity,
				Type:           MovementSale,
				Status:         MovementDone,
				CreatedBy:      createdBy,
			}
			if err := tx.Create(movement).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(order).Error; err != nil {
			return err
		}
		for _, item := range input.Items {
			oi := &OrderItem{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
			}
			if err := tx.Create(oi).Error; err != nil {
				return err
			}
			order.OrderItems = append(order.OrderItems, *oi)
		}

		// Only POS/credit orders debit the customer's ledger at placement.
		if input.IsPosOrder && input.UserID != nil {
			entry := &CreditLedgerEntry{
				ID:      uuid.NewString(),
				UserID:  *input.UserID,
				Type:    LedgerEntryOrder,
				Amount:  total.Neg(),
				OrderID: &order.ID,
				Method:  input.PaymentMethod,
				Note:    "Order placed (POS/credit)",
			}
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if input.UserID != nil && s.Cache != nil {
		s.Cache.Invalidate(ctx, cache.CategoryLedger, *input.UserID)
	}
	return order, nil
}

// GetOrder loads one order with its items.
func (s *Store) GetOrder(ctx context.Context, id string) (*Order, error) {
	var order Order
	err := s.DB.WithContext(ctx).Preload("OrderItems").First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

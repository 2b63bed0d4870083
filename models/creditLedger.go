package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ydt710/my-pos/cache"
	"github.com/ydt710/my-pos/config"
)

type LedgerEntryType string

const (
	LedgerEntryOrder      LedgerEntryType = "order"
	LedgerEntryPayment    LedgerEntryType = "payment"
	LedgerEntryRefund     LedgerEntryType = "refund"
	LedgerEntryAdjustment LedgerEntryType = "adjustment"
	LedgerEntryCreditUsed LedgerEntryType = "credit_used"
)

// CreditLedgerEntry is one row of a customer's debt/credit history. The
// balance is always a fold over entries, never a stored accumulator.
type CreditLedgerEntry struct {
	ID        string          `gorm:"primary_key;size:36" json:"id"`
	UserID    string          `gorm:"index;size:36;not null" json:"user_id"`
	Type      LedgerEntryType `gorm:"type:enum('order','payment','refund','adjustment','credit_used');not null" json:"type"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	OrderID   *string         `gorm:"size:36" json:"order_id"`
	Method    string          `gorm:"size:50" json:"method"`
	Note      string          `gorm:"type:text" json:"note"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// LedgerEntries lists a user's entries newest first, through the ledger
// cache category.
func (s *Store) LedgerEntries(ctx context.Context, userID string) ([]CreditLedgerEntry, error) {
	if s.Cache != nil {
		var cached []CreditLedgerEntry
		if s.Cache.Get(cache.CategoryLedger, userID, &cached) {
			return cached, nil
		}
	}

	var entries []CreditLedgerEntry
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if cerr := s.Cache.Put(ctx, cache.CategoryLedger, userID, entries); cerr != nil {
			config.LogError(s.Log, "models", "LedgerEntries", "cache ledger", userID, cerr)
		}
	}
	return entries, nil
}

// LedgerBalance folds a user's entries into a single balance.
func (s *Store) LedgerBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	entries, err := s.LedgerEntries(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, e := range entries {
		balance = balance.Add(e.Amount)
	}
	return balance, nil
}

// InsertLedgerEntry appends one entry and invalidates the cached list.
func (s *Store) InsertLedgerEntry(ctx context.Context, entry *CreditLedgerEntry) error {
	if err := s.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, cache.CategoryLedger, entry.UserID)
	}
	return nil
}

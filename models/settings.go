package models

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ydt710/my-pos/config"
)

// StoreSettings is a single-row table; the cache keeps it in the unkeyed
// settings slot with a 24h TTL.
type StoreSettings struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	StoreName             string          `gorm:"size:255" json:"store_name"`
	StoreEmail            string          `gorm:"size:255" json:"store_email"`
	StorePhone            string          `gorm:"size:50" json:"store_phone"`
	StoreAddress          string          `gorm:"type:text" json:"store_address"`
	Currency              string          `gorm:"size:10" json:"currency"`
	TaxRate               decimal.Decimal `gorm:"type:decimal(6,2);default:0" json:"tax_rate"`
	ShippingFee           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipping_fee"`
	MinOrderAmount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_order_amount"`
	FreeShippingThreshold decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"free_shipping_threshold"`
}

// DefaultStoreSettings is the fallback when the remote fetch fails: the
// shop must stay usable on defaults rather than error out.
func DefaultStoreSettings() *StoreSettings {
	return &StoreSettings{
		StoreName:             "My POS Store",
		StoreEmail:            "store@example.com",
		StorePhone:            "+27 11 123 4567",
		StoreAddress:          "123 Main Street, Johannesburg, 2000",
		Currency:              "ZAR",
		TaxRate:               decimal.NewFromInt(15),
		ShippingFee:           decimal.NewFromInt(50),
		MinOrderAmount:        decimal.NewFromInt(100),
		FreeShippingThreshold: decimal.NewFromInt(500),
	}
}

// GetSettings reads the settings slot, falling back to the store row and
// finally to defaults.
func (s *Store) GetSettings(ctx context.Context) *StoreSettings {
	if s.Cache != nil {
		var cached StoreSettings
		if s.Cache.GetSettings(&cached) {
			return &cached
		}
	}

	var row StoreSettings
	if err := s.DB.WithContext(ctx).First(&row).Error; err != nil {
		config.LogError(s.Log, "models", "GetSettings", "load settings", nil, err)
		return DefaultStoreSettings()
	}

	if s.Cache != nil {
		if err := s.Cache.PutSettings(ctx, &row); err != nil {
			config.LogError(s.Log, "models", "GetSettings", "cache settings", nil, err)
		}
	}
	return &row
}

// ClearSettingsCache forces the next GetSettings to hit the store.
func (s *Store) ClearSettingsCache(ctx context.Context) {
	if s.Cache != nil {
		s.Cache.InvalidateSettings(ctx)
	}
}

// CalculateTax applies the configured rate to a subtotal.
func (st *StoreSettings) CalculateTax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(st.TaxRate).Div(decimal.NewFromInt(100))
}

// CalculateShipping is free for POS orders and above the free-shipping
// threshold.
func (st *StoreSettings) CalculateShipping(subtotal decimal.Decimal, isPosOrder bool) decimal.Decimal {
	if isPosOrder {
		return decimal.Zero
	}
	if st.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(st.FreeShippingThreshold) {
		return decimal.Zero
	}
	return st.ShippingFee
}

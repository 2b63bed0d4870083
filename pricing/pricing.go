// Package pricing computes effective unit prices. Resolution order: a
// customer's negotiated price beats the volume schedule, which beats the
// base (or special) price. EffectivePrice is a pure function; the Resolver
// only supplies its customer-dependent input and tells subscribers when
// that input changes.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/ydt710/my-pos/models"
)

// EffectivePrice resolves the unit price for quantity units of p.
// customPrice, when non-nil, is the negotiated price for the acting
// customer and wins flat, independent of quantity. Bulk tiers select the
// largest MinQty satisfied by the quantity; a quantity below every
// threshold falls through to the base price. Schedules are assumed to have
// unique thresholds (see Product.ValidateBulkPrices).
func EffectivePrice(p *models.Product, customPrice *decimal.Decimal, quantity int) decimal.Decimal {
	if customPrice != nil {
		return *customPrice
	}

	var tier *models.BulkPrice
	for i := range p.BulkPrices {
		bp := &p.BulkPrices[i]
		if quantity >= bp.MinQty && (tier == nil || bp.MinQty > tier.MinQty) {
			tier = bp
		}
	}
	if tier != nil {
		return tier.Price
	}

	if p.IsSpecial != nil && *p.IsSpecial && p.SpecialPrice.Valid {
		return p.SpecialPrice.Decimal
	}
	return p.Price
}

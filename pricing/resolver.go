package pricing

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/kvstore"
	"github.com/ydt710/my-pos/models"
)

const selectedCustomerKey = "pos_selected_customer"

// CustomPriceFetcher loads a customer's negotiated price map. An error
// must come with an empty (usable) map: pricing degrades, never breaks.
type CustomPriceFetcher interface {
	GetCustomPrices(ctx context.Context, customerID string) (map[string]decimal.Decimal, error)
}

// Resolver holds the pricing context of the session: the POS-selected
// customer and their negotiated prices. Subscribers (the cart engine) are
// told whenever that context changes so they can reprice.
type Resolver struct {
	mu           sync.Mutex
	customer     *models.Customer
	customPrices map[string]decimal.Decimal
	listeners    []func()

	prices CustomPriceFetcher
	kv     kvstore.Store
	log    *logrus.Logger
}

// NewResolver builds the resolver and rehydrates the persisted selected
// customer. A corrupt persisted value is dropped; the session starts
// without a customer.
func NewResolver(prices CustomPriceFetcher, kv kvstore.Store, log *logrus.Logger) *Resolver {
	r := &Resolver{
		customPrices: make(map[string]decimal.Decimal),
		prices:       prices,
		kv:           kv,
		log:          log,
	}
	r.rehydrate()
	return r
}

// Subscribe registers a listener fired after every pricing-context change.
func (r *Resolver) Subscribe(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// UnitPrice resolves the effective unit price of quantity units of p under
// the current pricing context.
func (r *Resolver) UnitPrice(p *models.Product, quantity int) decimal.Decimal {
	r.mu.Lock()
	var custom *decimal.Decimal
	if r.customer != nil {
		if price, ok := r.customPrices[p.ID]; ok {
			custom = &price
		}
	}
	r.mu.Unlock()
	return EffectivePrice(p, custom, quantity)
}

// SelectedCustomer returns a copy of the POS-selected customer, if any.
func (r *Resolver) SelectedCustomer() *models.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.customer == nil {
		return nil
	}
	c := *r.customer
	return &c
}

// SelectCustomer switches the session to POS mode for the given customer,
// loading their negotiated prices and persisting the selection. A failed
// price fetch still selects the customer with an empty map (fail-open);
// the error is returned so the caller can surface a retry notification.
func (r *Resolver) SelectCustomer(ctx context.Context, c *models.Customer) error {
	prices, err := r.prices.GetCustomPrices(ctx, c.ID)

	r.mu.Lock()
	r.customer = c
	r.customPrices = prices
	r.mu.Unlock()

	r.persist(ctx, c)
	r.notify()
	return err
}

// ClearCustomer ends the POS session.
func (r *Resolver) ClearCustomer(ctx context.Context) {
	r.mu.Lock()
	r.customer = nil
	r.customPrices = make(map[string]decimal.Decimal)
	r.mu.Unlock()

	if r.kv != nil {
		if err := r.kv.Remove(ctx, selectedCustomerKey); err != nil {
			config.LogError(r.log, "pricing", "ClearCustomer", "remove persisted customer", nil, err)
		}
	}
	r.notify()
}

func (r *Resolver) persist(ctx context.Context, c *models.Customer) {
	if r.kv == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		config.LogError(r.log, "pricing", "persist", "marshal customer", c.ID, err)
		return
	}
	if err := r.kv.Set(ctx, selectedCustomerKey, string(payload)); err != nil {
		config.LogError(r.log, "pricing", "persist", "persist customer", c.ID, err)
	}
}

func (r *Resolver) rehydrate() {
	if r.kv == nil {
		return
	}
	ctx := context.Background()
	raw, ok, err := r.kv.Get(ctx, selectedCustomerKey)
	if err != nil || !ok {
		return
	}
	var c models.Customer
	if err := json.Unmarshal([]byte(raw), &c); err != nil || c.ID == "" {
		// Corrupt persisted value: drop it, start without a customer.
		if rerr := r.kv.Remove(ctx, selectedCustomerKey); rerr != nil {
			config.LogError(r.log, "pricing", "rehydrate", "drop corrupt customer", nil, rerr)
		}
		return
	}

	prices, err := r.prices.GetCustomPrices(ctx, c.ID)
	if err != nil {
		config.LogError(r.log, "pricing", "rehydrate", "load custom prices", c.ID, err)
	}
	r.mu.Lock()
	r.customer = &c
	r.customPrices = prices
	r.mu.Unlock()
}

// notify runs listeners outside the resolver lock: a listener will call
// back into UnitPrice while repricing.
func (r *Resolver) notify() {
	r.mu.Lock()
	listeners := make([]func(), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

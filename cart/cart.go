// Package cart owns the authoritative list of line items a customer
// intends to purchase. Mutations validate optimistically against shop
// stock (a stale read is possible between the check and the mutation; the
// checkout transaction is the authoritative gate), reprice through the
// pricing resolver, persist across reloads, and surface exceptional
// conditions as queued notifications — expected conditions never come back
// as errors.
package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/kvstore"
	"github.com/ydt710/my-pos/models"
	"github.com/ydt710/my-pos/notify"
	"github.com/ydt710/my-pos/utils"
)

// A line never exceeds 99 units regardless of stock.
const maxLineQuantity = 99

const cartStorageKey = "pos_cart"

// StockReader reads live shop availability. The quantity is always usable
// (fail-closed zero on failure); a non-nil error means the read degraded
// and the user should be told to retry.
type StockReader interface {
	GetStock(ctx context.Context, productID, locationName string) (int, error)
}

// Pricer resolves a line's unit price at a given quantity.
type Pricer interface {
	UnitPrice(p *models.Product, quantity int) decimal.Decimal
}

// Notifier queues a user-facing message.
type Notifier interface {
	Enqueue(text string, kind notify.Kind, duration time.Duration)
}

// Line is a product snapshot plus the cart quantity (distinct from stock)
// and the unit price resolved at the last recompute.
type Line struct {
	Product   models.Product  `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Cart struct {
	mu    sync.Mutex
	lines []Line

	stock    StockReader
	pricer   Pricer
	notifier Notifier
	kv       kvstore.Store
	log      *logrus.Logger
}

// New builds the cart and rehydrates persisted lines. A corrupt persisted
// payload is dropped and the cart starts empty.
func New(stock StockReader, pricer Pricer, notifier Notifier, kv kvstore.Store, log *logrus.Logger) *Cart {
	c := &Cart{
		stock:    stock,
		pricer:   pricer,
		notifier: notifier,
		kv:       kv,
		log:      log,
	}
	c.rehydrate()
	return c
}

// AddItem puts requested units of p into the cart, merging with an
// existing line. Zero availability rejects outright; a request beyond
// availability clamps to it with a warning. Reports whether the cart
// changed.
func (c *Cart) AddItem(ctx context.Context, p models.Product, requested int) bool {
	if requested < 1 {
		requested = 1
	}

	// Optimistic check; suspension point. The stock value can be stale by
	// the time the mutation below runs.
	available, err := c.stock.GetStock(ctx, p.ID, models.LocationShop)
	if ctx.Err() != nil {
		// Cancelled: discard the whole operation, no mutation, no message.
		return false
	}
	if err != nil {
		c.notifier.Enqueue("Could not check stock, please try again", notify.KindError, notify.DefaultDuration)
		return false
	}
	if available <= 0 || p.OutOfStock() {
		c.notifier.Enqueue(fmt.Sprintf("%s is out of stock", p.Name), notify.KindError, notify.DefaultDuration)
		return false
	}

	c.mu.Lock()
	idx := c.indexLocked(p.ID)
	candidate := requested
	if idx >= 0 {
		candidate = c.lines[idx].Quantity + requested
	}

	warned := false
	if candidate > available {
		// Canonical policy: clamp and still apply. A later revision
		// rejected over-limit adds outright instead; flip here if that
		// tightening is ever confirmed.
		candidate = available
		warned = true
	}
	candidate = min(candidate, maxLineQuantity)

	if idx >= 0 {
		c.lines[idx].Quantity = candidate
	} else {
		c.lines = append(c.lines, Line{Product: p, Quantity: candidate})
		idx = len(c.lines) - 1
	}
	c.lines[idx].UnitPrice = c.pricer.UnitPrice(&c.lines[idx].Product, c.lines[idx].Quantity)
	c.persistLocked(ctx)
	c.mu.Unlock()

	if warned {
		c.notifier.Enqueue(fmt.Sprintf("Only %d of %s available", available, p.Name), notify.KindWarning, notify.DefaultDuration)
	}
	c.notifier.Enqueue(fmt.Sprintf("%s added to cart", p.Name), notify.KindSuccess, notify.DefaultDuration)
	return true
}

// UpdateQuantity sets a line's quantity, clamping to availability. Below 1
// removes the line; a confirmed zero availability removes it too, while a
// failed stock read changes nothing. Reports whether the cart changed.
func (c *Cart) UpdateQuantity(ctx context.Context, productID string, newQuantity int) bool {
	if newQuantity < 1 {
		return c.RemoveItem(ctx, productID)
	}

	c.mu.Lock()
	idx := c.indexLocked(productID)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	name := c.lines[idx].Product.Name
	c.mu.Unlock()

	// Suspension point; see AddItem.
	available, err := c.stock.GetStock(ctx, productID, models.LocationShop)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		// A degraded read must not destroy the line: only a confirmed
		// zero removes it. Keep the cart as-is and ask the user to retry.
		c.notifier.Enqueue("Could not check stock, please try again", notify.KindError, notify.DefaultDuration)
		return false
	}
	if available <= 0 {
		c.dropLine(ctx, productID)
		c.notifier.Enqueue(fmt.Sprintf("%s is out of stock and was removed", name), notify.KindError, notify.DefaultDuration)
		return true
	}

	resolved := min(newQuantity, min(available, maxLineQuantity))

	c.mu.Lock()
	idx = c.indexLocked(productID)
	if idx < 0 {
		// Removed while we were checking stock.
		c.mu.Unlock()
		return false
	}
	c.lines[idx].Quantity = resolved
	c.lines[idx].UnitPrice = c.pricer.UnitPrice(&c.lines[idx].Product, resolved)
	c.persistLocked(ctx)
	c.mu.Unlock()

	if newQuantity > available {
		c.notifier.Enqueue(fmt.Sprintf("Only %d of %s available", available, name), notify.KindWarning, notify.DefaultDuration)
	}
	return true
}

// RemoveItem drops the line unconditionally; removing an absent id is a
// no-op with the same end state.
func (c *Cart) RemoveItem(ctx context.Context, productID string) bool {
	c.dropLine(ctx, productID)
	return true
}

// ClearCart empties the line list and the persisted state.
func (c *Cart) ClearCart(ctx context.Context) {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
	if c.kv != nil {
		if err := c.kv.Remove(ctx, cartStorageKey); err != nil {
			config.LogError(c.log, "cart", "ClearCart", "remove persisted cart", nil, err)
		}
	}
}

// Reprice recomputes every line's unit price at its current quantity. It
// is the subscriber for pricing-context changes (selected customer,
// negotiated prices) and never touches quantities.
func (c *Cart) Reprice() {
	ctx := context.Background()
	c.mu.Lock()
	for i := range c.lines {
		c.lines[i].UnitPrice = c.pricer.UnitPrice(&c.lines[i].Product, c.lines[i].Quantity)
	}
	c.persistLocked(ctx)
	c.mu.Unlock()
}

// Total is a pure fold of unitPrice × quantity over current lines.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// ItemCount is a pure fold of quantities over current lines.
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, line := range c.lines {
		count += line.Quantity
	}
	return count
}

// Lines returns a snapshot copy in stable (insertion) order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := make([]Line, len(c.lines))
	copy(lines, c.lines)
	return lines
}

// CheckoutItems shapes the current lines as order input for PayOrder.
func (c *Cart) CheckoutItems() []models.NewOrderItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]models.NewOrderItem, 0, len(c.lines))
	for _, line := range c.lines {
		items = append(items, models.NewOrderItem{
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
		})
	}
	return items
}

func (c *Cart) indexLocked(productID string) int {
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) dropLine(ctx context.Context, productID string) {
	c.mu.Lock()
	idx := c.indexLocked(productID)
	if idx >= 0 {
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
		c.persistLocked(ctx)
	}
	c.mu.Unlock()
}

func (c *Cart) persistLocked(ctx context.Context) {
	if c.kv == nil {
		return
	}
	payload, err := utils.MarshalToJSON(c.lines)
	if err != nil {
		config.LogError(c.log, "cart", "persist", "marshal cart", nil, err)
		return
	}
	if err := c.kv.Set(ctx, cartStorageKey, payload); err != nil {
		config.LogError(c.log, "cart", "persist", "persist cart", nil, err)
	}
}

func (c *Cart) rehydrate() {
	if c.kv == nil {
		return
	}
	ctx := context.Background()
	raw, ok, err := c.kv.Get(ctx, cartStorageKey)
	if err != nil || !ok {
		return
	}
	var lines []Line
	if err := utils.UnmarshalFromJSON([]byte(raw), &lines); err != nil {
		if rerr := c.kv.Remove(ctx, cartStorageKey); rerr != nil {
			config.LogError(c.log, "cart", "rehydrate", "drop corrupt cart", nil, rerr)
		}
		return
	}
	c.mu.Lock()
	c.lines = lines
	c.mu.Unlock()
}

package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/kvstore"
	"github.com/ydt710/my-pos/models"
	"github.com/ydt710/my-pos/notify"
)

type fakeStock struct {
	mu   sync.Mutex
	qty  map[string]int
	err  error
	gate func()
}

func (s *fakeStock) GetStock(_ context.Context, productID, _ string) (int, error) {
	if s.gate != nil {
		s.gate()
	}
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qty[productID], nil
}

type fakePricer struct {
	mu       sync.Mutex
	override map[string]decimal.Decimal
}

func (p *fakePricer) UnitPrice(prod *models.Product, _ int) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.override[prod.ID]; ok {
		return v
	}
	return prod.Price
}

func (p *fakePricer) set(productID string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.override == nil {
		p.override = make(map[string]decimal.Decimal)
	}
	p.override[productID] = price
}

type note struct {
	text string
	kind notify.Kind
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *fakeNotifier) Enqueue(text string, kind notify.Kind, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{text: text, kind: kind})
}

func (n *fakeNotifier) countKind(kind notify.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.notes {
		if m.kind == kind {
			count++
		}
	}
	return count
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func product(id, name, price string) models.Product {
	return models.Product{ID: id, Name: name, Price: dec(price)}
}

func newTestCart(stock *fakeStock, pricer *fakePricer, notifier *fakeNotifier, kv kvstore.Store) *Cart {
	return New(stock, pricer, notifier, kv, config.NewLogger("error"))
}

func TestAddItem_MergesAndClampsToAvailability(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	pricer := &fakePricer{}
	notifier := &fakeNotifier{}
	c := newTestCart(stock, pricer, notifier, kvstore.NewMemory())

	ctx := context.Background()
	if !c.AddItem(ctx, product("x", "Cheese", "10.00"), 3) {
		t.Fatal("first add must succeed")
	}
	// 3 + 4 exceeds the 5 available: clamp, warn, still apply.
	if !c.AddItem(ctx, product("x", "Cheese", "10.00"), 4) {
		t.Fatal("clamped add must still report a change")
	}

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 merged line, got %d", len(lines))
	}
	if lines[0].Quantity != 5 {
		t.Fatalf("expected quantity clamped to 5, got %d", lines[0].Quantity)
	}
	if got := notifier.countKind(notify.KindWarning); got != 1 {
		t.Fatalf("expected 1 warning, got %d", got)
	}
	if got := notifier.countKind(notify.KindSuccess); got != 2 {
		t.Fatalf("expected 2 success notifications, got %d", got)
	}
}

func TestAddItem_ZeroStockRejects(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 0}}
	notifier := &fakeNotifier{}
	c := newTestCart(stock, &fakePricer{}, notifier, kvstore.NewMemory())

	if c.AddItem(context.Background(), product("x", "Cheese", "10.00"), 1) {
		t.Fatal("zero availability must reject the add")
	}
	if len(c.Lines()) != 0 {
		t.Fatal("cart must stay empty")
	}
	if got := notifier.countKind(notify.KindError); got != 1 {
		t.Fatalf("expected 1 out-of-stock error, got %d", got)
	}
}

func TestAddItem_StockReadFailureNotifiesRetry(t *testing.T) {
	stock := &fakeStock{err: errors.New("redis down")}
	notifier := &fakeNotifier{}
	c := newTestCart(stock, &fakePricer{}, notifier, kvstore.NewMemory())

	if c.AddItem(context.Background(), product("x", "Cheese", "10.00"), 1) {
		t.Fatal("degraded stock read must reject the add")
	}
	if len(c.Lines()) != 0 {
		t.Fatal("cart must stay empty on a failed read")
	}
	if got := notifier.countKind(notify.KindError); got != 1 {
		t.Fatalf("expected 1 retry notification, got %d", got)
	}
}

func TestAddItem_RequestBelowOneBecomesOne(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	c := newTestCart(stock, &fakePricer{}, &fakeNotifier{}, kvstore.NewMemory())

	if !c.AddItem(context.Background(), product("x", "Cheese", "10.00"), 0) {
		t.Fatal("add must succeed")
	}
	if lines := c.Lines(); lines[0].Quantity != 1 {
		t.Fatalf("expected quantity 1, got %d", lines[0].Quantity)
	}
}

func TestAddItem_LineCeiling(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 500}}
	c := newTestCart(stock, &fakePricer{}, &fakeNotifier{}, kvstore.NewMemory())

	if !c.AddItem(context.Background(), product("x", "Cheese", "10.00"), 250) {
		t.Fatal("add must succeed")
	}
	if lines := c.Lines(); lines[0].Quantity != maxLineQuantity {
		t.Fatalf("expected line ceiling %d, got %d", maxLineQuantity, lines[0].Quantity)
	}
}

func TestAddItem_CancelledContextDiscardsSilently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	// Cancel while the stock read is in flight.
	stock.gate = cancel
	notifier := &fakeNotifier{}
	c := newTestCart(stock, &fakePricer{}, notifier, kvstore.NewMemory())

	if c.AddItem(ctx, product("x", "Cheese", "10.00"), 2) {
		t.Fatal("cancelled add must not report a change")
	}
	if len(c.Lines()) != 0 {
		t.Fatal("cancelled add must not mutate the cart")
	}
	if len(notifier.notes) != 0 {
		t.Fatalf("cancelled add must not notify, got %d messages", len(notifier.notes))
	}
}

func TestAddItem_ConcurrentAddsNeverExceedObservedStock(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	// Both goroutines read availability before either mutates, so the
	// second mutation sees a line the stock check did not account for.
	var ready sync.WaitGroup
	ready.Add(2)
	stock.gate = func() {
		ready.Done()
		ready.Wait()
	}
	notifier := &fakeNotifier{}
	c := newTestCart(stock, &fakePricer{}, notifier, kvstore.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddItem(context.Background(), product("x", "Cheese", "10.00"), 4)
		}()
	}
	wg.Wait()

	if got := c.ItemCount(); got != 5 {
		t.Fatalf("expected merged quantity clamped to 5, got %d", got)
	}
	if got := notifier.countKind(notify.KindWarning); got != 1 {
		t.Fatalf("expected exactly 1 clamp warning, got %d", got)
	}
}

func TestUpdateQuantity_ClampsAndWarns(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	notifier := &fakeNotifier{}
	c := newTestCart(stock, &fakePricer{}, notifier, kvstore.NewMemory())

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 2)
	if !c.UpdateQuantity(ctx, "x", 10) {
		t.Fatal("update must report a change")
	}
	if lines := c.Lines(); lines[0].Quantity != 5 {
		t.Fatalf("expected quantity clamped to 5, got %d", lines[0].Quantity)
	}
	if got := notifier.countKind(notify.KindWarning); got != 1 {
		t.Fatalf("expected 1 clamp warning, got %d", got)
	}
}

func TestUpdateQuantity_BelowOneRemovesLine(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	c := newTestCart(stock, &fakePricer{}, &fakeNotifier{}, kvstore.NewMemory())

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 2)
	if !c.UpdateQuantity(ctx, "x", 0) {
		t.Fatal("update-to-zero must report a change")
	}
	if len(c.Lines()) != 0 {
		t.Fatal("line must be removed")
	}
}

func TestUpdateQuantity_StockGoneRemovesLine(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	notifier := &fakeNotifier{}
	c := newTestCart(stock, &fakePricer{}, notifier, kvstore.NewMemory())

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 2)
	stock.mu.Lock()
	stock.qty["x"] = 0
	stock.mu.Unlock()

	if !c.UpdateQuantity(ctx, "x", 3) {
		t.Fatal("removal is still a change")
	}
	if len(c.Lines()) != 0 {
		t.Fatal("sold-out line must be removed")
	}
	if got := notifier.countKind(notify.KindError); got != 1 {
		t.Fatalf("expected 1 sold-out notification, got %d", got)
	}
}

func TestUpdateQuantity_StockReadFailureKeepsLine(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	notifier := &fakeNotifier{}
	c := newTestCart(stock, &fakePricer{}, notifier, kvstore.NewMemory())

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 2)
	stock.err = errors.New("redis down")

	if c.UpdateQuantity(ctx, "x", 4) {
		t.Fatal("degraded read must not report a change")
	}
	lines := c.Lines()
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("line must survive a degraded read untouched, got %+v", lines)
	}
	if got := notifier.countKind(notify.KindError); got != 1 {
		t.Fatalf("expected 1 retry notification, got %d", got)
	}
}

func TestUpdateQuantity_AbsentLine(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	c := newTestCart(stock, &fakePricer{}, &fakeNotifier{}, kvstore.NewMemory())

	if c.UpdateQuantity(context.Background(), "missing", 3) {
		t.Fatal("updating an absent line must report no change")
	}
}

func TestRemoveItem_Idempotent(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 5}}
	c := newTestCart(stock, &fakePricer{}, &fakeNotifier{}, kvstore.NewMemory())

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 2)
	if !c.RemoveItem(ctx, "x") {
		t.Fatal("remove must succeed")
	}
	if !c.RemoveItem(ctx, "x") {
		t.Fatal("removing an absent line reaches the same end state")
	}
	if len(c.Lines()) != 0 {
		t.Fatal("cart must be empty")
	}
}

func TestTotalAndItemCountMatchManualFold(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 50, "y": 50}}
	c := newTestCart(stock, &fakePricer{}, &fakeNotifier{}, kvstore.NewMemory())

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 3)
	c.AddItem(ctx, product("y", "Crackers", "4.50"), 7)

	wantTotal := decimal.Zero
	wantCount := 0
	for _, line := range c.Lines() {
		wantTotal = wantTotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		wantCount += line.Quantity
	}
	if got := c.Total(); !got.Equal(wantTotal) {
		t.Fatalf("total %s does not match fold %s", got, wantTotal)
	}
	if got := c.ItemCount(); got != wantCount {
		t.Fatalf("item count %d does not match fold %d", got, wantCount)
	}
	if !c.Total().Equal(dec("61.50")) {
		t.Fatalf("expected total 61.50, got %s", c.Total())
	}
}

func TestReprice_UpdatesPricesOnly(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 50}}
	pricer := &fakePricer{}
	c := newTestCart(stock, pricer, &fakeNotifier{}, kvstore.NewMemory())

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 3)

	pricer.set("x", dec("8.00"))
	c.Reprice()

	lines := c.Lines()
	if lines[0].Quantity != 3 {
		t.Fatalf("reprice must not touch quantities, got %d", lines[0].Quantity)
	}
	if !lines[0].UnitPrice.Equal(dec("8.00")) {
		t.Fatalf("expected repriced 8.00, got %s", lines[0].UnitPrice)
	}
	if !c.Total().Equal(dec("24.00")) {
		t.Fatalf("expected total 24.00, got %s", c.Total())
	}
}

func TestCartSurvivesRestart(t *testing.T) {
	kv := kvstore.NewMemory()
	stock := &fakeStock{qty: map[string]int{"x": 50}}
	pricer := &fakePricer{}

	c := newTestCart(stock, pricer, &fakeNotifier{}, kv)
	c.AddItem(context.Background(), product("x", "Cheese", "10.00"), 3)

	c2 := newTestCart(stock, pricer, &fakeNotifier{}, kv)
	lines := c2.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 rehydrated line, got %d", len(lines))
	}
	if lines[0].Product.ID != "x" || lines[0].Quantity != 3 {
		t.Fatalf("unexpected rehydrated line %+v", lines[0])
	}
	if !lines[0].UnitPrice.Equal(dec("10.00")) {
		t.Fatalf("expected persisted unit price 10.00, got %s", lines[0].UnitPrice)
	}
}

func TestCorruptPersistedCartDropped(t *testing.T) {
	kv := kvstore.NewMemory()
	if err := kv.Set(context.Background(), cartStorageKey, "[{broken"); err != nil {
		t.Fatalf("seed kv: %v", err)
	}

	c := newTestCart(&fakeStock{}, &fakePricer{}, &fakeNotifier{}, kv)
	if len(c.Lines()) != 0 {
		t.Fatal("corrupt persisted cart must start empty")
	}
	if _, ok, _ := kv.Get(context.Background(), cartStorageKey); ok {
		t.Fatal("corrupt payload must be removed from the store")
	}
}

func TestClearCart(t *testing.T) {
	kv := kvstore.NewMemory()
	stock := &fakeStock{qty: map[string]int{"x": 50}}
	c := newTestCart(stock, &fakePricer{}, &fakeNotifier{}, kv)

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 3)
	c.ClearCart(ctx)

	if len(c.Lines()) != 0 {
		t.Fatal("cart must be empty after clear")
	}
	if _, ok, _ := kv.Get(ctx, cartStorageKey); ok {
		t.Fatal("persisted cart must be removed after clear")
	}
}

func TestCheckoutItems(t *testing.T) {
	stock := &fakeStock{qty: map[string]int{"x": 50, "y": 50}}
	c := newTestCart(stock, &fakePricer{}, &fakeNotifier{}, kvstore.NewMemory())

	ctx := context.Background()
	c.AddItem(ctx, product("x", "Cheese", "10.00"), 3)
	c.AddItem(ctx, product("y", "Crackers", "4.50"), 2)

	items := c.CheckoutItems()
	if len(items) != 2 {
		t.Fatalf("expected 2 order items, got %d", len(items))
	}
	if items[0].ProductID != "x" || items[0].Quantity != 3 || !items[0].Price.Equal(dec("10.00")) {
		t.Fatalf("unexpected first order item %+v", items[0])
	}
}

package stock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ydt710/my-pos/appctx"
	"github.com/ydt710/my-pos/config"
	"github.com/ydt710/my-pos/models"
	"github.com/ydt710/my-pos/utils"
)

type fakeStore struct {
	mu            sync.Mutex
	locations     map[string]*models.StockLocation
	levels        map[string]int
	movements     map[string]*models.StockMovement
	discrepancies []*models.StockDiscrepancy

	locationCalls int
	levelErr      error
	batchErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		locations: map[string]*models.StockLocation{
			models.LocationShop:     {ID: "loc-shop", Name: models.LocationShop},
			models.LocationFacility: {ID: "loc-fac", Name: models.LocationFacility},
		},
		levels:    make(map[string]int),
		movements: make(map[string]*models.StockMovement),
	}
}

func levelKey(productID, locationID string) string {
	return productID + "|" + locationID
}

func (s *fakeStore) GetLocationByName(_ context.Context, name string) (*models.StockLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locationCalls++
	loc, ok := s.locations[name]
	if !ok {
		return nil, fmt.Errorf("location %s: %w", name, utils.ErrorRecordNotFound)
	}
	return loc, nil
}

func (s *fakeStore) GetStockQuantity(_ context.Context, productID, locationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.levelErr != nil {
		return 0, s.levelErr
	}
	return s.levels[levelKey(productID, locationID)], nil
}

func (s *fakeStore) StockLevelsAt(_ context.Context, locationID string, productIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	out := make(map[string]int)
	for _, id := range productIDs {
		if qty, ok := s.levels[levelKey(id, locationID)]; ok {
			out[id] = qty
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertStockLevel(_ context.Context, productID, locationID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[levelKey(productID, locationID)] = quantity
	return nil
}

func (s *fakeStore) InsertMovement(_ context.Context, m *models.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.movements[m.ID] = &copied
	return nil
}

func (s *fakeStore) GetMovement(_ context.Context, id string) (*models.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movements[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *m
	return &copied, nil
}

func (s *fakeStore) UpdateMovement(_ context.Context, id string, status models.MovementStatus, quantity int, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movements[id]
	if !ok {
		return utils.ErrorRecordNotFound
	}
	m.Status = status
	m.Quantity = quantity
	if note != "" {
		m.Note = note
	}
	return nil
}

func (s *fakeStore) InsertDiscrepancy(_ context.Context, d *models.StockDiscrepancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *d
	s.discrepancies = append(s.discrepancies, &copied)
	return nil
}

func (s *fakeStore) level(productID, locationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[levelKey(productID, locationID)]
}

func TestFacadeGetStock(t *testing.T) {
	store := newFakeStore()
	store.levels[levelKey("p1", "loc-shop")] = 7
	f := NewFacade(store, config.NewLogger("error"))

	qty, err := f.GetStock(context.Background(), "p1", models.LocationShop)
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if qty != 7 {
		t.Fatalf("expected 7, got %d", qty)
	}
}

func TestFacadeCachesLocationLookups(t *testing.T) {
	store := newFakeStore()
	f := NewFacade(store, config.NewLogger("error"))

	ctx := context.Background()
	f.GetStock(ctx, "p1", models.LocationShop)
	f.GetStock(ctx, "p2", models.LocationShop)

	if store.locationCalls != 1 {
		t.Fatalf("expected 1 location lookup for the session, got %d", store.locationCalls)
	}
}

func TestFacadeFailsClosedOnReadError(t *testing.T) {
	store := newFakeStore()
	store.levels[levelKey("p1", "loc-shop")] = 7
	store.levelErr = errors.New("connection reset")
	f := NewFacade(store, config.NewLogger("error"))

	qty, err := f.GetStock(context.Background(), "p1", models.LocationShop)
	if err == nil {
		t.Fatal("expected the degraded-read error")
	}
	if qty != 0 {
		t.Fatalf("a failed read must report zero availability, got %d", qty)
	}
}

func TestFacadeUnknownLocationFailsClosed(t *testing.T) {
	store := newFakeStore()
	f := NewFacade(store, config.NewLogger("error"))

	qty, err := f.GetStock(context.Background(), "p1", "warehouse-9")
	if err == nil {
		t.Fatal("expected an error for an unknown location")
	}
	if qty != 0 {
		t.Fatalf("expected zero availability, got %d", qty)
	}
}

func TestFacadeBatchedShopLevels(t *testing.T) {
	store := newFakeStore()
	store.levels[levelKey("p1", "loc-shop")] = 3
	store.levels[levelKey("p2", "loc-shop")] = 0
	f := NewFacade(store, config.NewLogger("error"))

	levels := f.GetShopStockLevels(context.Background(), []string{"p1", "p2", "p3"})
	if levels["p1"] != 3 {
		t.Fatalf("expected p1=3, got %d", levels["p1"])
	}
	// Products the store has no row for read as zero.
	if levels["p3"] != 0 {
		t.Fatalf("expected p3=0, got %d", levels["p3"])
	}
}

func TestFacadeBatchErrorDegradesToEmpty(t *testing.T) {
	store := newFakeStore()
	store.batchErr = errors.New("query failed")
	f := NewFacade(store, config.NewLogger("error"))

	levels := f.GetShopStockLevels(context.Background(), []string{"p1", "p2"})
	if len(levels) != 0 {
		t.Fatalf("expected an empty map on batch failure, got %v", levels)
	}
}

func TestProductionFlow(t *testing.T) {
	store := newFakeStore()
	m := NewMovements(store, config.NewLogger("error"))

	ctx := appctx.Set(context.Background(), appctx.ContextKeyProfileId, "op-1")
	movement, err := m.AddProduction(ctx, "p1", 20, "batch 42")
	if err != nil {
		t.Fatalf("AddProduction: %v", err)
	}
	if movement.Status != models.MovementPending {
		t.Fatalf("expected pending, got %s", movement.Status)
	}
	if movement.CreatedBy != "op-1" {
		t.Fatalf("expected creator op-1, got %q", movement.CreatedBy)
	}
	// Pending production moves nothing yet.
	if got := store.level("p1", "loc-fac"); got != 0 {
		t.Fatalf("expected facility 0 before confirm, got %d", got)
	}

	if err := m.ConfirmProductionDone(ctx, movement.ID); err != nil {
		t.Fatalf("ConfirmProductionDone: %v", err)
	}
	if got := store.level("p1", "loc-fac"); got != 20 {
		t.Fatalf("expected facility 20, got %d", got)
	}

	// Confirming twice must not double-count.
	if err := m.ConfirmProductionDone(ctx, movement.ID); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if got := store.level("p1", "loc-fac"); got != 20 {
		t.Fatalf("double confirm changed stock, got %d", got)
	}
}

func TestTransferAcceptFlow(t *testing.T) {
	store := newFakeStore()
	store.levels[levelKey("p1", "loc-fac")] = 20
	m := NewMovements(store, config.NewLogger("error"))

	ctx := context.Background()
	transfer, err := m.TransferToShop(ctx, "p1", 8, "")
	if err != nil {
		t.Fatalf("TransferToShop: %v", err)
	}
	if got := store.level("p1", "loc-fac"); got != 12 {
		t.Fatalf("expected facility 12 after dispatch, got %d", got)
	}
	if got := store.level("p1", "loc-shop"); got != 0 {
		t.Fatalf("shop must not change before acceptance, got %d", got)
	}

	if err := m.AcceptStockTransfer(ctx, transfer.ID, 8); err != nil {
		t.Fatalf("AcceptStockTransfer: %v", err)
	}
	if got := store.level("p1", "loc-shop"); got != 8 {
		t.Fatalf("expected shop 8 after acceptance, got %d", got)
	}

	// Accepting twice must not double-count.
	if err := m.AcceptStockTransfer(ctx, transfer.ID, 8); err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if got := store.level("p1", "loc-shop"); got != 8 {
		t.Fatalf("double accept changed stock, got %d", got)
	}
}

func TestRejectTransferLogsDiscrepancy(t *testing.T) {
	store := newFakeStore()
	store.levels[levelKey("p1", "loc-fac")] = 20
	m := NewMovements(store, config.NewLogger("error"))

	ctx := appctx.Set(context.Background(), appctx.ContextKeyProfileId, "op-2")
	transfer, err := m.TransferToShop(ctx, "p1", 8, "")
	if err != nil {
		t.Fatalf("TransferToShop: %v", err)
	}

	// Only 6 of the 8 dispatched units arrived.
	if err := m.RejectStockTransfer(ctx, transfer.ID, 6, "two units damaged"); err != nil {
		t.Fatalf("RejectStockTransfer: %v", err)
	}
	if got := store.level("p1", "loc-shop"); got != 6 {
		t.Fatalf("expected shop booked at actual 6, got %d", got)
	}

	updated, err := store.GetMovement(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("GetMovement: %v", err)
	}
	if updated.Status != models.MovementRejected {
		t.Fatalf("expected rejected status, got %s", updated.Status)
	}

	if len(store.discrepancies) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(store.discrepancies))
	}
	d := store.discrepancies[0]
	if d.ExpectedQuantity != 8 || d.ActualQuantity != 6 {
		t.Fatalf("unexpected discrepancy quantities %+v", d)
	}
	if d.ReportedBy != "op-2" {
		t.Fatalf("expected reporter op-2, got %q", d.ReportedBy)
	}
}

func TestSellFromShop(t *testing.T) {
	store := newFakeStore()
	store.levels[levelKey("p1", "loc-shop")] = 5
	m := NewMovements(store, config.NewLogger("error"))

	ctx := context.Background()
	if err := m.SellFromShop(ctx, "p1", 3, ""); err != nil {
		t.Fatalf("SellFromShop: %v", err)
	}
	if got := store.level("p1", "loc-shop"); got != 2 {
		t.Fatalf("expected shop 2 after sale, got %d", got)
	}

	err := m.SellFromShop(ctx, "p1", 3, "")
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("expected ErrorInsufficientStock, got %v", err)
	}
	if got := store.level("p1", "loc-shop"); got != 2 {
		t.Fatalf("failed sale must not change stock, got %d", got)
	}
}

func TestAdjustStockRecordsDelta(t *testing.T) {
	store := newFakeStore()
	store.levels[levelKey("p1", "loc-shop")] = 10
	m := NewMovements(store, config.NewLogger("error"))

	ctx := context.Background()
	if err := m.AdjustStock(ctx, "p1", models.LocationShop, 7, "stocktake"); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if got := store.level("p1", "loc-shop"); got != 7 {
		t.Fatalf("expected absolute 7, got %d", got)
	}

	var adjustment *models.StockMovement
	store.mu.Lock()
	for _, mv := range store.movements {
		if mv.Type == models.MovementAdjustment {
			adjustment = mv
		}
	}
	store.mu.Unlock()
	if adjustment == nil {
		t.Fatal("expected an adjustment movement")
	}
	if adjustment.Quantity != -3 {
		t.Fatalf("expected delta -3, got %d", adjustment.Quantity)
	}
}

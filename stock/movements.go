package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ydt710/my-pos/appctx"
	"github.com/ydt710/my-pos/models"
	"github.com/ydt710/my-pos/utils"
)

// MovementStore is the slice of the store the movement commands need.
type MovementStore interface {
	LevelReader
	UpsertStockLevel(ctx context.Context, productID, locationID string, quantity int) error
	InsertMovement(ctx context.Context, m *models.StockMovement) error
	GetMovement(ctx context.Context, id string) (*models.StockMovement, error)
	UpdateMovement(ctx context.Context, id string, status models.MovementStatus, quantity int, note string) error
	InsertDiscrepancy(ctx context.Context, d *models.StockDiscrepancy) error
}

// Movements implements the warehouse/POS stock workflows: production into
// the facility, transfers to the shop, stocktake adjustments, and transfer
// acceptance with discrepancy logging.
type Movements struct {
	store MovementStore
	log   *logrus.Logger
}

func NewMovements(store MovementStore, log *logrus.Logger) *Movements {
	return &Movements{store: store, log: log}
}

// AddProduction records a pending production movement into the facility.
// Stock only moves when the production is confirmed done.
func (m *Movements) AddProduction(ctx context.Context, productID string, quantity int, note string) (*models.StockMovement, error) {
	facility, err := m.store.GetLocationByName(ctx, models.LocationFacility)
	if err != nil {
		return nil, fmt.Errorf("facility location not found: %w", err)
	}
	movement := &models.StockMovement{
		ID:           uuid.NewString(),
		ProductID:    productID,
		ToLocationID: &facility.ID,
		Quantity:     quantity,
		Type:         models.MovementProduction,
		Status:       models.MovementPending,
		Note:         note,
		CreatedBy:    appctx.ProfileId(ctx),
	}
	if err := m.store.InsertMovement(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

// ConfirmProductionDone increments facility stock for a pending production
// movement. Confirming twice is a no-op.
func (m *Movements) ConfirmProductionDone(ctx context.Context, movementID string) error {
	movement, err := m.store.GetMovement(ctx, movementID)
	if err != nil {
		return fmt.Errorf("production movement not found: %w", err)
	}
	if movement.Status == models.MovementDone {
		return nil
	}
	if movement.ToLocationID == nil {
		return fmt.Errorf("production movement %s has no destination", movementID)
	}

	current, err := m.store.GetStockQuantity(ctx, movement.ProductID, *movement.ToLocationID)
	if err != nil {
		return err
	}
	if err := m.store.UpsertStockLevel(ctx, movement.ProductID, *movement.ToLocationID, current+movement.Quantity); err != nil {
		return err
	}
	return m.store.UpdateMovement(ctx, movementID, models.MovementDone, movement.Quantity, "")
}

// TransferToShop decrements facility stock and records a pending transfer;
// shop stock only changes when the POS accepts the delivery.
func (m *Movements) TransferToShop(ctx context.Context, productID string, quantity int, note string) (*models.StockMovement, error) {
	facility, err := m.store.GetLocationByName(ctx, models.LocationFacility)
	if err != nil {
		return nil, fmt.Errorf("facility location not found: %w", err)
	}
	shop, err := m.store.GetLocationByName(ctx, models.LocationShop)
	if err != nil {
		return nil, fmt.Errorf("shop location not found: %w", err)
	}

	current, err := m.store.GetStockQuantity(ctx, productID, facility.ID)
	if err != nil {
		return nil, err
	}
	if err := m.store.UpsertStockLevel(ctx, productID, facility.ID, current-quantity); err != nil {
		return nil, err
	}

	movement := &models.StockMovement{
		ID:             uuid.NewString(),
		ProductID:      productID,
		FromLocationID: &facility.ID,
		ToLocationID:   &shop.ID,
		Quantity:       quantity,
		Type:           models.MovementTransfer,
		Status:         models.MovementPending,
		Note:           note,
		CreatedBy:      appctx.ProfileId(ctx),
	}
	if err := m.store.InsertMovement(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

// AdjustStock writes an absolute quantity at a location (stocktake) and
// records the delta as an adjustment movement.
func (m *Movements) AdjustStock(ctx context.Context, productID, locationName string, newQuantity int, note string) error {
	loc, err := m.store.GetLocationByName(ctx, locationName)
	if err != nil {
		return fmt.Errorf("location not found: %w", err)
	}
	oldQuantity, err := m.store.GetStockQuantity(ctx, productID, loc.ID)
	if err != nil {
		return err
	}
	if err := m.store.UpsertStockLevel(ctx, productID, loc.ID, newQuantity); err != nil {
		return err
	}
	movement := &models.StockMovement{
		ID:             uuid.NewString(),
		ProductID:      productID,
		FromLocationID: &loc.ID,
		ToLocationID:   &loc.ID,
		Quantity:       newQuantity - oldQuantity,
		Type:           models.MovementAdjustment,
		Status:         models.MovementDone,
		Note:           note,
		CreatedBy:      appctx.ProfileId(ctx),
	}
	return m.store.InsertMovement(ctx, movement)
}

// SellFromShop decrements shop stock and records a completed sale
// movement. Checkout has its own transactional path; this covers direct
// counter sales placed outside an order.
func (m *Movements) SellFromShop(ctx context.Context, productID string, quantity int, note string) error {
	shop, err := m.store.GetLocationByName(ctx, models.LocationShop)
	if err != nil {
		return fmt.Errorf("shop location not found: %w", err)
	}
	current, err := m.store.GetStockQuantity(ctx, productID, shop.ID)
	if err != nil {
		return err
	}
	if current < quantity {
		return fmt.Errorf("%w: product %s has %d, need %d", utils.ErrorInsufficientStock, productID, current, quantity)
	}
	if err := m.store.UpsertStockLevel(ctx, productID, shop.ID, current-quantity); err != nil {
		return err
	}
	movement := &models.StockMovement{
		ID:             uuid.NewString(),
		ProductID:      productID,
		FromLocationID: &shop.ID,
		Quantity:       quantity,
		Type:           models.MovementSale,
		Status:         models.MovementDone,
		Note:           note,
		CreatedBy:      appctx.ProfileId(ctx),
	}
	return m.store.InsertMovement(ctx, movement)
}

// AcceptStockTransfer confirms a delivery at the shop with the quantity
// actually received. Accepting twice is a no-op.
func (m *Movements) AcceptStockTransfer(ctx context.Context, transferID string, actualQuantity int) error {
	transfer, err := m.store.GetMovement(ctx, transferID)
	if err != nil {
		return fmt.Errorf("transfer not found: %w", err)
	}
	if transfer.Status == models.MovementDone {
		return nil
	}
	if transfer.ToLocationID == nil {
		return fmt.Errorf("transfer %s has no destination", transferID)
	}

	current, err := m.store.GetStockQuantity(ctx, transfer.ProductID, *transfer.ToLocationID)
	if err != nil {
		return err
	}
	if err := m.store.UpsertStockLevel(ctx, transfer.ProductID, *transfer.ToLocationID, current+actualQuantity); err != nil {
		return err
	}
	return m.store.UpdateMovement(ctx, transferID, models.MovementDone, actualQuantity, "")
}

// RejectStockTransfer books the received quantity but flags the transfer
// and logs the discrepancy with the reporter for follow-up.
func (m *Movements) RejectStockTransfer(ctx context.Context, transferID string, actualQuantity int, reason string) error {
	transfer, err := m.store.GetMovement(ctx, transferID)
	if err != nil {
		return fmt.Errorf("transfer not found: %w", err)
	}
	if transfer.Status == models.MovementDone {
		return nil
	}
	if transfer.ToLocationID == nil {
		return fmt.Errorf("transfer %s has no destination", transferID)
	}

	current, err := m.store.GetStockQuantity(ctx, transfer.ProductID, *transfer.ToLocationID)
	if err != nil {
		return err
	}
	if err := m.store.UpsertStockLevel(ctx, transfer.ProductID, *transfer.ToLocationID, current+actualQuantity); err != nil {
		return err
	}
	if err := m.store.UpdateMovement(ctx, transferID, models.MovementRejected, actualQuantity, reason); err != nil {
		return err
	}

	return m.store.InsertDiscrepancy(ctx, &models.StockDiscrepancy{
		TransferID:       transferID,
		ProductID:        transfer.ProductID,
		ExpectedQuantity: transfer.Quantity,
		ActualQuantity:   actualQuantity,
		Reason:           reason,
		ReportedBy:       appctx.ProfileId(ctx),
	})
}

package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/db"
	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/enums"
	"github.com/identitywear/storefront-backend/pkg/pagination"
)

// ErrPaymentSessionInUse means another order already carries the session id.
var ErrPaymentSessionInUse = errors.New("payment session already attached to another order")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order and its items in one statement batch.
func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentSession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_session_id = ?", sessionID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByUser pages through a user's orders newest first using a
// (created_at, id) cursor.
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}

	rows, next := pagination.Trim(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return rows, next, nil
}

func (r *repository) SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_session_id": sessionID,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		// the only unique column an update here can collide on
		if db.IsUniqueViolation(res.Error, "") {
			return ErrPaymentSessionInUse
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, paidAt *time.Time) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, errors.New("order status transition not allowed")
	}
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if paidAt != nil {
		updates["paid_at"] = paidAt.UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

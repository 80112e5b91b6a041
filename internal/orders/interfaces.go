package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/enums"
	"github.com/identitywear/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentSession(ctx context.Context, sessionID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string) error
	// UpdateStatus moves an order only if it is still in from. It reports
	// whether a row changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, paidAt *time.Time) (bool, error)
	// ListPendingBefore returns the oldest pending orders created before cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

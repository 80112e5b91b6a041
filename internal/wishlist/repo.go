package wishlist

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/identitywear/storefront-backend/internal/repo"
	"github.com/identitywear/storefront-backend/pkg/db/models"
)

// Repository encapsulates wishlist persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// AddItem inserts a like and ignores duplicates. It returns the stored row,
// which is the earlier one when the product was already liked.
func (r *Repository) AddItem(ctx context.Context, userID uuid.UUID, input AddInput) (models.WishlistItem, error) {
	if userID == uuid.Nil || input.ProductID == "" {
		return models.WishlistItem{}, gorm.ErrInvalidValue
	}
	row := models.WishlistItem{
		ID:           uuid.New(),
		UserID:       userID,
		ProductID:    input.ProductID,
		ProductName:  input.ProductName,
		ProductImage: input.ProductImage,
		ProductPrice: input.ProductPrice,
	}
	err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil {
		return models.WishlistItem{}, err
	}

	var stored models.WishlistItem
	if err := r.DB(ctx).
		Where("user_id = ? AND product_id = ?", userID, input.ProductID).
		First(&stored).Error; err != nil {
		return models.WishlistItem{}, err
	}
	return stored, nil
}

// RemoveItem deletes the like if it exists.
func (r *Repository) RemoveItem(ctx context.Context, userID uuid.UUID, productID string) error {
	return r.DB(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{}).
		Error
}

// ListItems returns a user's likes, oldest first.
func (r *Repository) ListItems(ctx context.Context, userID uuid.UUID) ([]models.WishlistItem, error) {
	var rows []models.WishlistItem
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

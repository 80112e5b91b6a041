package wishlist

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupWishlistTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:wishlist_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS wishlist (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  product_image TEXT,
  product_price INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX wishlist_user_product_key ON wishlist (user_id, product_id);`).Error)
	return db
}

func TestRepositoryAddIgnoresDuplicates(t *testing.T) {
	repo := NewRepository(setupWishlistTestDB(t))
	ctx := context.Background()
	userID := uuid.New()

	first, err := repo.AddItem(ctx, userID, AddInput{ProductID: "p-1", ProductName: "Hoodie", ProductPrice: 59900})
	require.NoError(t, err)
	assert.Equal(t, "Hoodie", first.ProductName)

	second, err := repo.AddItem(ctx, userID, AddInput{ProductID: "p-1", ProductName: "Hoodie v2", ProductPrice: 1})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Hoodie", second.ProductName)

	rows, err := repo.ListItems(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRepositoryListIsScopedToUser(t *testing.T) {
	repo := NewRepository(setupWishlistTestDB(t))
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	_, err := repo.AddItem(ctx, alice, AddInput{ProductID: "p-1", ProductName: "Hoodie"})
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, alice, AddInput{ProductID: "p-2", ProductName: "Cap"})
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, bob, AddInput{ProductID: "p-1", ProductName: "Hoodie"})
	require.NoError(t, err)

	rows, err := repo.ListItems(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.RemoveItem(ctx, alice, "p-1"))
	rows, err = repo.ListItems(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p-2", rows[0].ProductID)

	rows, err = repo.ListItems(ctx, bob)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRepositoryRemoveMissingIsNoop(t *testing.T) {
	repo := NewRepository(setupWishlistTestDB(t))
	require.NoError(t, repo.RemoveItem(context.Background(), uuid.New(), "nope"))
}

func TestRepositoryAddRejectsEmptyKeys(t *testing.T) {
	repo := NewRepository(setupWishlistTestDB(t))
	_, err := repo.AddItem(context.Background(), uuid.Nil, AddInput{ProductID: "p-1"})
	require.Error(t, err)
}

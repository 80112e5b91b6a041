package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "wishlist_user_product_key"}
	wrapped := fmt.Errorf("insert: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Fatal("expected wrapped pg unique violation to match")
	}
	if !IsUniqueViolation(wrapped, "wishlist_user_product_key") {
		t.Fatal("expected constraint match")
	}
	if IsUniqueViolation(wrapped, "orders_payment_session_id_idx") {
		t.Fatal("different constraint must not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: orders.payment_session_id"), "") {
		t.Fatal("expected sqlite message to match")
	}
	if IsUniqueViolation(nil, "") || IsUniqueViolation(errors.New("timeout"), "") {
		t.Fatal("unrelated errors must not match")
	}
}

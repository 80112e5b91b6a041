// Package repo holds the pieces shared by the GORM-backed repositories.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base is embedded by repositories that only need a connection scoped to the
// caller's context or transaction.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB binds ctx so cancellation reaches the driver.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}

// WithTx returns a copy bound to tx. A nil tx keeps the pooled connection.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx != nil {
		b.conn = tx
	}
	return b
}

// FirstOrNil runs query.First and maps "no rows" to (nil, nil) for lookups
// where absence is a normal answer.
func FirstOrNil[T any](query *gorm.DB) (*T, error) {
	var row T
	err := query.First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &row, nil
}

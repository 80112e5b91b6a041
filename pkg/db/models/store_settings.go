package models

import "time"

// StoreSettings holds the single row of storefront-wide settings.
type StoreSettings struct {
	ID        int       `gorm:"column:id;primaryKey"`
	TaxRate   *float64  `gorm:"column:tax_rate"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName maps to the settings table shared with the admin tooling.
func (StoreSettings) TableName() string {
	return "online_store_settings"
}

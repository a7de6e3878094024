// internal/storage/models/base.go
package models

import "time"

// Timestamps replaces gorm.Model: rows are keyed by domain ids, not serials.
type Timestamps struct {
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

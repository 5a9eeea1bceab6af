// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// UsageRecord model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence. Day-rollover and limit decisions live in the usage service.
//
// Error semantics:
//   - When a record is not found, GetUsage returns gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-banger-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUsage fetches the usage row for userID, or ErrNotFound if the user has
// never generated anything.
func GetUsage(ctx context.Context, db *gorm.DB, userID string) (*domain.UsageRecord, error) {
	var rec domain.UsageRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveUsage inserts or replaces the usage row for rec.UserID. UpdatedAt is
// refreshed to UTC now.
func SaveUsage(ctx context.Context, db *gorm.DB, rec *domain.UsageRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(rec).Error
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cubamarket/go-classifieds-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUserByTelegramID fetches a user by their Telegram account id.
// Returns ErrNotFound if no such user exists.
func GetUserByTelegramID(ctx context.Context, db *gorm.DB, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateUser returns the user with the given Telegram id, creating the
// row when it does not exist yet. The second return value is true when a new
// user was created.
//
// Concurrent first requests from the same account can race on the insert;
// a unique violation on telegram_id is resolved by re-reading the row.
func GetOrCreateUser(ctx context.Context, db *gorm.DB, telegramID int64, username, firstName, lastName *string) (*domain.User, bool, error) {
	u, err := GetUserByTelegramID(ctx, db, telegramID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	nu := &domain.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(nu).Error; err != nil {
		// Lost the insert race: another request created the row first.
		if existing, lookupErr := GetUserByTelegramID(ctx, db, telegramID); lookupErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return nu, true, nil
}

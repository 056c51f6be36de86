// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Listing
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a listing is not found, functions return gorm.ErrRecordNotFound
//     (exported as ErrNotFound).
//   - On DB errors the raw gorm error is propagated.
//
// Functions:
//
//   - CreateListing(ctx, db, l) -> error
//     Inserts a new Listing row with UTC timestamps.
//
//   - GetListing(ctx, db, id) -> *domain.Listing, error
//     Fetches a listing by ID with its owner and ordered photos preloaded.
//
//   - ListListings(ctx, db, f) -> []domain.Listing, int64, error
//     Returns a filtered, ranked page of listings plus the total match count.
//
//   - UpdateListingFields(ctx, db, id, fields) -> error
//     Applies a partial column update, returning ErrNotFound on zero rows.
//
//   - UpdateListingStatus(ctx, db, id, status) -> error
//     Transitions the lifecycle status.
//
//   - DeleteListing(ctx, db, id) -> error
//     Removes a listing row (photos cascade at the DB level).
//
//   - IncrementViews(ctx, db, id) -> error
//     Bumps the view counter by one.
//
//   - CountActiveListings(ctx, db, userID) -> (int64, error)
//     Counts a user's currently active listings.
//
//   - HasTextDuplicate(ctx, db, userID, title, description, excludeID) -> (bool, error)
//     Detects an active listing by the same user with identical
//     case/whitespace-insensitive title and description.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ListingService) which enforces business rules such as
// publication quotas and duplicate guards.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cubamarket/go-classifieds-backend/internal/domain"
)

// ListFilters narrows and pages the public listing feed. Zero values mean
// "no filter". Status defaults to active when empty. Pointer fields
// distinguish "unset" from an explicit zero.
//
// The apartment filters (Rooms through Internet) and HasRentPeriod only
// apply when Category is rent, mirroring the client forms.
type ListFilters struct {
	Category           string
	City               string
	Neighborhood       string
	Scope              string
	RentType           string
	ItemSubcategory    string
	ServiceSubcategory string
	Status             string

	// OwnerTelegramID restricts the feed to listings owned by the given
	// Telegram account ("my listings").
	OwnerTelegramID int64

	// Price bounds. Negotiable listings always pass a price bound.
	PriceMin *float64
	PriceMax *float64

	// Search is a case-insensitive substring match over title or description.
	Search string

	// HasRentPeriod selects rentals (true) or for-sale properties (false).
	HasRentPeriod *bool

	Rooms         string
	TotalAreaMin  *float64
	LivingAreaMin *float64
	Floor         *int
	FloorFrom     *int
	Renovation    string
	Furniture     string
	Appliances    string
	Internet      string

	Limit  int
	Offset int
}

// DefaultListLimit caps an unpaged feed request.
const DefaultListLimit = 50

// CreateListing inserts a new Listing row with UTC timestamps. The caller
// is expected to have validated category-specific fields beforehand.
func CreateListing(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	return db.WithContext(ctx).Create(l).Error
}

// GetListing fetches a single listing by ID with its owner and photos
// (ordered by gallery position) preloaded. Returns ErrNotFound if missing.
func GetListing(ctx context.Context, db *gorm.DB, id int64) (*domain.Listing, error) {
	var l domain.Listing
	err := db.WithContext(ctx).
		Preload("User").
		Preload("Photos", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position asc")
		}).
		First(&l, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns a page of listings matching f, ranked pinned first,
// then promoted, then newest, together with the total match count.
//
// Location semantics: a neighborhood filter also matches listings that
// widened their scope to CITY or COUNTRY; a city filter on non-rent
// categories also matches COUNTRY-scoped listings (rentals are inherently
// local, so their city filter stays exact).
func ListListings(ctx context.Context, db *gorm.DB, f ListFilters) ([]domain.Listing, int64, error) {
	status := f.Status
	if status == "" {
		status = domain.StatusActive
	}

	q := db.WithContext(ctx).Model(&domain.Listing{}).Where("status = ?", status)

	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.City != "" {
		if f.Category == domain.CategoryRent {
			q = q.Where("city = ?", f.City)
		} else {
			q = q.Where("(city = ? OR scope = ?)", f.City, domain.ScopeCountry)
		}
	}
	if f.Neighborhood != "" {
		q = q.Where("(neighborhood = ? OR scope IN ?)", f.Neighborhood,
			[]string{domain.ScopeCity, domain.ScopeCountry})
	}
	if f.Scope != "" {
		q = q.Where("scope = ?", f.Scope)
	}
	if f.OwnerTelegramID != 0 {
		q = q.Where("user_id IN (?)",
			db.Model(&domain.User{}).Select("id").Where("telegram_id = ?", f.OwnerTelegramID))
	}
	if f.RentType != "" {
		q = q.Where("rent_type = ?", f.RentType)
	}
	if f.ItemSubcategory != "" {
		q = q.Where("item_subcategory = ?", f.ItemSubcategory)
	}
	if f.ServiceSubcategory != "" {
		q = q.Where("service_subcategory = ?", f.ServiceSubcategory)
	}
	if f.PriceMin != nil {
		q = q.Where("(price >= ? OR is_negotiable = ?)", *f.PriceMin, true)
	}
	if f.PriceMax != nil {
		q = q.Where("(price <= ? OR is_negotiable = ?)", *f.PriceMax, true)
	}
	if f.Search != "" {
		pat := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", pat, pat)
	}

	if f.Category == domain.CategoryRent {
		if f.HasRentPeriod != nil {
			if *f.HasRentPeriod {
				q = q.Where("rent_period IS NOT NULL AND rent_period <> ''")
			} else {
				q = q.Where("(rent_period IS NULL OR rent_period = '')")
			}
		}
		if f.Rooms != "" {
			q = q.Where("rooms = ?", f.Rooms)
		}
		if f.TotalAreaMin != nil {
			q = q.Where("total_area >= ?", *f.TotalAreaMin)
		}
		if f.LivingAreaMin != nil {
			q = q.Where("living_area >= ?", *f.LivingAreaMin)
		}
		if f.Floor != nil && f.FloorFrom != nil {
			q = q.Where("floor = ? AND floor_from = ?", *f.Floor, *f.FloorFrom)
		} else if f.Floor != nil {
			q = q.Where("floor = ?", *f.Floor)
		}
		if f.Renovation != "" {
			q = q.Where("renovation = ?", f.Renovation)
		}
		if f.Furniture != "" {
			q = q.Where("furniture = ?", f.Furniture)
		}
		if f.Appliances != "" {
			q = q.Where("appliances = ?", f.Appliances)
		}
		if f.Internet != "" {
			q = q.Where("internet = ?", f.Internet)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	var out []domain.Listing
	err := q.
		Preload("User").
		Preload("Photos", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position asc")
		}).
		Order("is_pinned desc, is_promoted desc, created_at desc").
		Offset(f.Offset).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}

// UpdateListingFields applies a partial update to a listing row. Only the
// columns present in fields are touched; UpdatedAt is always refreshed.
// Returns ErrNotFound if no row matched.
func UpdateListingFields(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateListingStatus transitions a listing to the given lifecycle status.
// Returns ErrNotFound if the listing does not exist.
func UpdateListingStatus(ctx context.Context, db *gorm.DB, id int64, status string) error {
	return UpdateListingFields(ctx, db, id, map[string]any{"status": status})
}

// DeleteListing removes a listing row. Its photos are removed by the DB
// cascade. Returns ErrNotFound if the listing does not exist.
func DeleteListing(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Delete(&domain.Listing{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementViews bumps the listing's view counter by one. Missing rows are
// ignored; a view on a just-deleted listing is not an error.
func IncrementViews(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
}

// CountActiveListings returns the number of active listings owned by userID.
func CountActiveListings(ctx context.Context, db *gorm.DB, userID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusActive).
		Count(&total).Error
	return total, err
}

// HasTextDuplicate reports whether userID already has an active listing with
// the same title and description, compared case-insensitively after trimming
// whitespace. excludeID, when non-zero, skips the listing being edited.
//
// LOWER(...) comparison is used instead of a dialect-specific ILIKE so the
// query runs identically on Postgres and SQLite.
func HasTextDuplicate(ctx context.Context, db *gorm.DB, userID int64, title, description string, excludeID int64) (bool, error) {
	t := strings.ToLower(strings.TrimSpace(title))
	d := strings.ToLower(strings.TrimSpace(description))

	q := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusActive).
		Where("LOWER(TRIM(title)) = ? AND LOWER(TRIM(description)) = ?", t, d)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

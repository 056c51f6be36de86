// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for listing photos.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cubamarket/go-classifieds-backend/internal/domain"
)

// AddPhotos inserts photo rows for listingID, assigning consecutive gallery
// positions starting at startPos. Paths are stored in the given order.
func AddPhotos(ctx context.Context, db *gorm.DB, listingID int64, paths []string, startPos int) ([]domain.ListingPhoto, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	photos := make([]domain.ListingPhoto, 0, len(paths))
	for i, p := range paths {
		photos = append(photos, domain.ListingPhoto{
			ListingID: listingID,
			Path:      p,
			Position:  startPos + i,
			CreatedAt: now,
		})
	}
	if err := db.WithContext(ctx).Create(&photos).Error; err != nil {
		return nil, err
	}
	return photos, nil
}

// MaxPhotoPosition returns the highest gallery position used by listingID,
// or -1 when the listing has no photos. New photos append at the returned
// value plus one.
func MaxPhotoPosition(ctx context.Context, db *gorm.DB, listingID int64) (int, error) {
	var pos *int
	err := db.WithContext(ctx).
		Model(&domain.ListingPhoto{}).
		Where("listing_id = ?", listingID).
		Select("MAX(position)").
		Scan(&pos).Error
	if err != nil {
		return -1, err
	}
	if pos == nil {
		return -1, nil
	}
	return *pos, nil
}

// ListPhotos returns the photos of listingID ordered by gallery position.
func ListPhotos(ctx context.Context, db *gorm.DB, listingID int64) ([]domain.ListingPhoto, error) {
	var out []domain.ListingPhoto
	err := db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("position asc").
		Find(&out).Error
	return out, err
}

// CountPhotos returns the number of photos attached to listingID.
func CountPhotos(ctx context.Context, db *gorm.DB, listingID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ListingPhoto{}).
		Where("listing_id = ?", listingID).
		Count(&total).Error
	return total, err
}

// DeletePhotos removes the photos of listingID whose path appears in paths.
// Deleting by path rather than id matches what clients send back when a
// gallery entry is removed during an edit.
func DeletePhotos(ctx context.Context, db *gorm.DB, listingID int64, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("listing_id = ? AND path IN ?", listingID, paths).
		Delete(&domain.ListingPhoto{}).Error
}

// ActivePhotoPaths returns the stored photo paths across all of userID's
// active listings, the corpus inspected by the content duplicate guard.
func ActivePhotoPaths(ctx context.Context, db *gorm.DB, userID int64, excludeListingID int64) (map[int64][]string, error) {
	type row struct {
		ListingID int64
		Path      string
	}

	q := db.WithContext(ctx).
		Model(&domain.ListingPhoto{}).
		Select("listing_photos.listing_id, listing_photos.path").
		Joins("JOIN listings ON listings.id = listing_photos.listing_id").
		Where("listings.user_id = ? AND listings.status = ?", userID, domain.StatusActive)
	if excludeListingID != 0 {
		q = q.Where("listings.id <> ?", excludeListingID)
	}

	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[int64][]string, len(rows))
	for _, r := range rows {
		out[r.ListingID] = append(out[r.ListingID], r.Path)
	}
	return out, nil
}

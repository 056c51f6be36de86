// Package services – duplicate guards
//
// Republishing the same ad to climb the feed is the main abuse vector of a
// free classifieds board. Two guards catch it: a text guard (identical title
// and description, case/whitespace-insensitive) and a content guard that
// fingerprints photo bytes, so re-uploads of the same pictures under a
// reworded title are still caught.
package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"gorm.io/gorm"

	"github.com/cubamarket/go-classifieds-backend/internal/repo"
)

// PhotoReader loads stored photo bytes by their public path. Implemented by
// storage.FSStore.
type PhotoReader interface {
	Read(publicPath string) ([]byte, error)
}

// PhotoFingerprint returns the hex md5 of a photo's bytes. md5 is used as a
// content fingerprint here, not for any security property.
func PhotoFingerprint(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// fingerprintCounts builds an order-independent multiset of fingerprints.
func fingerprintCounts(hashes []string) map[string]int {
	m := make(map[string]int, len(hashes))
	for _, h := range hashes {
		m[h]++
	}
	return m
}

// sameFingerprints reports whether two galleries contain exactly the same
// photos, regardless of upload order.
func sameFingerprints(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for h, n := range a {
		if b[h] != n {
			return false
		}
	}
	return true
}

// HasPhotoDuplicate reports whether userID already has an active listing
// whose gallery consists of exactly the same photos as newHashes. Stored
// galleries are re-read and fingerprinted through reader; files that cannot
// be read (cleaned up out of band) disqualify their listing from matching.
//
// excludeListingID skips the listing currently being edited.
func HasPhotoDuplicate(ctx context.Context, db *gorm.DB, reader PhotoReader, userID int64, newHashes []string, excludeListingID int64) (bool, error) {
	if len(newHashes) == 0 {
		return false, nil
	}
	galleries, err := repo.ActivePhotoPaths(ctx, db, userID, excludeListingID)
	if err != nil {
		return false, err
	}

	want := fingerprintCounts(newHashes)
	for _, paths := range galleries {
		if len(paths) != len(newHashes) {
			continue
		}
		have := make([]string, 0, len(paths))
		readable := true
		for _, p := range paths {
			data, err := reader.Read(p)
			if err != nil {
				readable = false
				break
			}
			have = append(have, PhotoFingerprint(data))
		}
		if !readable {
			continue
		}
		if sameFingerprints(want, fingerprintCounts(have)) {
			return true, nil
		}
	}
	return false, nil
}

// Package services defines the business logic for marketplace listings.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Listing-related errors.
var (
	// ErrListingNotFound indicates that the requested listing does not exist.
	ErrListingNotFound = errors.New("listing not found")

	// ErrInvalidInput is returned when required listing fields are missing or
	// fail validation (unknown category, rent without a city, bad status...).
	ErrInvalidInput = errors.New("invalid listing input")

	// ErrTitleTooLong is returned when a listing title exceeds the configured
	// maximum length.
	ErrTitleTooLong = errors.New("title too long")

	// ErrQuotaExceeded is returned when a user already has the maximum number
	// of simultaneously active listings.
	ErrQuotaExceeded = errors.New("active listing quota exceeded")

	// ErrDuplicateListing is returned when a new or edited listing matches an
	// existing active listing by text or by photo content.
	ErrDuplicateListing = errors.New("duplicate listing")

	// ErrMissingPhoto is returned when a listing is created without any photo.
	ErrMissingPhoto = errors.New("at least one photo is required")

	// ErrPhotoMinimum is returned when an edit would leave a listing with no
	// photos.
	ErrPhotoMinimum = errors.New("listing must keep at least one photo")

	// ErrTooManyPhotos is returned when a request carries more photos than the
	// configured per-listing maximum.
	ErrTooManyPhotos = errors.New("too many photos")

	// ErrForbidden is returned when a user attempts to modify or delete a
	// listing they do not own and they are not an administrator.
	ErrForbidden = errors.New("not allowed to manage this listing")

	// ErrInvalidStatus is returned when a lifecycle transition targets an
	// unknown status or reactivates a closed listing.
	ErrInvalidStatus = errors.New("invalid status transition")
)

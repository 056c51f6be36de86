// Package services – ListingService
//
// This file implements ListingService, the application-level component that
// owns the listing lifecycle: publication with quota and duplicate guards,
// partial edits with gallery maintenance, status transitions, and deletion
// with owner-or-admin authorization.
//
// Photo files and photo rows are kept consistent: files are written inside
// the surrounding database transaction and removed again if it rolls back,
// so a failed publish never leaves orphaned uploads behind.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include listing/user identifiers where applicable.

package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cubamarket/go-classifieds-backend/internal/domain"
	"github.com/cubamarket/go-classifieds-backend/internal/notify"
	"github.com/cubamarket/go-classifieds-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PhotoStore is the slice of the storage layer the service needs.
// Implemented by storage.FSStore.
type PhotoStore interface {
	PhotoReader
	Save(data []byte, originalName string) (string, error)
	Delete(publicPath string) error
}

// Identity is the authenticated Telegram account acting on the service.
type Identity struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// PhotoUpload is a decoded multipart photo ready for storage.
type PhotoUpload struct {
	Name string
	Data []byte
}

// CreateListingInput carries the fields of a new listing. Pointer fields
// are optional; nil means "not provided". A listing without a price must
// be marked negotiable.
type CreateListingInput struct {
	Category    string
	Title       string
	Description string

	Price        *float64
	Currency     string
	IsNegotiable bool

	City         string
	Neighborhood *string
	Scope        string
	Landmark     *string

	RentType       *string
	RentPeriod     *string
	AvailableFrom  *time.Time
	IsAvailableNow *bool

	Rooms      *string
	TotalArea  *float64
	LivingArea *float64
	Floor      *int
	FloorFrom  *int
	Renovation *string
	Furniture  *string
	Appliances *string
	Internet   *string

	ItemSubcategory *string
	ItemCondition   *string
	ItemBrand       *string
	DeliveryType    *string

	ServiceSubcategory *string
	ServiceFormat      *string
	ServiceArea        *string

	ContactTelegram *string
	ContactWhatsapp *string
}

// UpdateListingInput carries a partial edit. Every field is optional;
// nil leaves the stored value untouched. Category is immutable.
type UpdateListingInput struct {
	Title       *string
	Description *string

	Price        *float64
	Currency     *string
	IsNegotiable *bool

	City         *string
	Neighborhood *string
	Scope        *string
	Landmark     *string

	RentType       *string
	RentPeriod     *string
	AvailableFrom  *time.Time
	IsAvailableNow *bool

	Rooms      *string
	TotalArea  *float64
	LivingArea *float64
	Floor      *int
	FloorFrom  *int
	Renovation *string
	Furniture  *string
	Appliances *string
	Internet   *string

	ItemSubcategory *string
	ItemCondition   *string
	ItemBrand       *string
	DeliveryType    *string

	ServiceSubcategory *string
	ServiceFormat      *string
	ServiceArea        *string

	ContactTelegram *string
	ContactWhatsapp *string
}

// ListingService coordinates listing persistence, guards, and notifications.
type ListingService struct {
	DB       *gorm.DB
	Store    PhotoStore
	Notifier notify.Notifier
	Policy   *AuthPolicy

	ActiveListingCap int
	TitleMaxLen      int
	MaxPhotos        int
}

// Create validates the input, runs the quota and duplicate guards, and
// persists the listing with its photos atomically. First-time sellers are
// registered on the fly and announced to the admin.
func (s *ListingService) Create(ctx context.Context, ident Identity, in CreateListingInput, photos []PhotoUpload) (*domain.Listing, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.Int64("user.telegram_id", ident.TelegramID),
			attribute.String("listing.category", in.Category),
		),
	)
	defer span.End()

	if err := s.validateCreate(&in); err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, ErrMissingPhoto
	}
	if s.MaxPhotos > 0 && len(photos) > s.MaxPhotos {
		return nil, ErrTooManyPhotos
	}

	user, created, err := repo.GetOrCreateUser(ctx, s.DB, ident.TelegramID,
		optStr(ident.Username), optStr(ident.FirstName), optStr(ident.LastName))
	if err != nil {
		return nil, err
	}
	if created {
		// Best-effort, never blocks the publish.
		go s.Notifier.NewUser(context.WithoutCancel(ctx), user)
	}

	active, err := repo.CountActiveListings(ctx, s.DB, user.ID)
	if err != nil {
		return nil, err
	}
	if s.ActiveListingCap > 0 && active >= int64(s.ActiveListingCap) {
		return nil, ErrQuotaExceeded
	}

	if dup, err := repo.HasTextDuplicate(ctx, s.DB, user.ID, in.Title, in.Description, 0); err != nil {
		return nil, err
	} else if dup {
		return nil, ErrDuplicateListing
	}

	hashes := make([]string, 0, len(photos))
	for _, p := range photos {
		hashes = append(hashes, PhotoFingerprint(p.Data))
	}
	if dup, err := HasPhotoDuplicate(ctx, s.DB, s.Store, user.ID, hashes, 0); err != nil {
		return nil, err
	} else if dup {
		return nil, ErrDuplicateListing
	}

	listing := s.buildListing(user.ID, ident, in)

	var savedPaths []string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateListing(ctx, tx, listing); err != nil {
			return err
		}
		for _, p := range photos {
			path, err := s.Store.Save(p.Data, p.Name)
			if err != nil {
				return err
			}
			savedPaths = append(savedPaths, path)
		}
		_, err := repo.AddPhotos(ctx, tx, listing.ID, savedPaths, 0)
		return err
	})
	if err != nil {
		s.removeFiles(savedPaths)
		return nil, err
	}

	return repo.GetListing(ctx, s.DB, listing.ID)
}

// Get fetches a listing by id with photos and owner, counting the view.
// Every detail read increments the counter, owner reads included.
func (s *ListingService) Get(ctx context.Context, id int64) (*domain.Listing, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("listing.id", id)),
	)
	defer span.End()

	l, err := repo.GetListing(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if err := repo.IncrementViews(ctx, s.DB, id); err != nil {
		return nil, err
	}
	l.Views++
	return l, nil
}

// List returns the filtered public feed plus the total match count.
func (s *ListingService) List(ctx context.Context, f repo.ListFilters) ([]domain.Listing, int64, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("filter.category", f.Category),
			attribute.String("filter.city", f.City),
		),
	)
	defer span.End()

	if f.Status != "" && !domain.ValidStatus(f.Status) {
		return nil, 0, ErrInvalidInput
	}
	if f.Category != "" && !domain.ValidCategory(f.Category) {
		return nil, 0, ErrInvalidInput
	}
	return repo.ListListings(ctx, s.DB, f)
}

// Update applies a partial edit and reconciles the photo gallery: deletions
// by photo id or stored path, additions appended after the current maximum
// position. Edits are not re-checked against the duplicate guards.
func (s *ListingService) Update(ctx context.Context, ident Identity, id int64, in UpdateListingInput, addPhotos []PhotoUpload, deletePaths []string) (*domain.Listing, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.Int64("listing.id", id),
			attribute.Int64("user.telegram_id", ident.TelegramID),
		),
	)
	defer span.End()

	current, err := s.authorize(ctx, ident, id)
	if err != nil {
		return nil, err
	}

	fields, err := s.mergeUpdate(current, in)
	if err != nil {
		return nil, err
	}

	// Gallery arithmetic before touching anything.
	matched := matchPaths(current.Photos, deletePaths)
	remaining := len(current.Photos) - len(matched) + len(addPhotos)
	if remaining < 1 {
		return nil, ErrPhotoMinimum
	}
	if s.MaxPhotos > 0 && len(addPhotos) > s.MaxPhotos {
		return nil, ErrTooManyPhotos
	}

	var savedPaths []string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateListingFields(ctx, tx, id, fields); err != nil {
			return err
		}
		if len(matched) > 0 {
			if err := repo.DeletePhotos(ctx, tx, id, matched); err != nil {
				return err
			}
		}
		if len(addPhotos) > 0 {
			maxPos, err := repo.MaxPhotoPosition(ctx, tx, id)
			if err != nil {
				return err
			}
			for _, p := range addPhotos {
				path, err := s.Store.Save(p.Data, p.Name)
				if err != nil {
					return err
				}
				savedPaths = append(savedPaths, path)
			}
			if _, err := repo.AddPhotos(ctx, tx, id, savedPaths, maxPos+1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.removeFiles(savedPaths)
		return nil, err
	}

	// Files of removed rows go last, after the transaction committed.
	s.removeFiles(matched)

	return repo.GetListing(ctx, s.DB, id)
}

// SetStatus transitions a listing between active, sold, and rented. Any
// direction is allowed, including reactivating a closed ad; the quota guard
// only applies at create time.
func (s *ListingService) SetStatus(ctx context.Context, ident Identity, id int64, status string) (*domain.Listing, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "SetStatus",
		trace.WithAttributes(
			attribute.Int64("listing.id", id),
			attribute.String("listing.status", status),
		),
	)
	defer span.End()

	if !domain.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	if _, err := s.authorize(ctx, ident, id); err != nil {
		return nil, err
	}
	if err := repo.UpdateListingStatus(ctx, s.DB, id, status); err != nil {
		return nil, err
	}
	return repo.GetListing(ctx, s.DB, id)
}

// Delete removes a listing, its photo rows, and its files. Moderation
// deletes (admin removing someone else's ad) are reported for the audit
// trail.
func (s *ListingService) Delete(ctx context.Context, ident Identity, id int64) error {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.Int64("listing.id", id),
			attribute.Int64("user.telegram_id", ident.TelegramID),
		),
	)
	defer span.End()

	current, err := s.authorize(ctx, ident, id)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(current.Photos))
	for _, p := range current.Photos {
		paths = append(paths, p.Path)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeletePhotos(ctx, tx, id, paths); err != nil {
			return err
		}
		return repo.DeleteListing(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	s.removeFiles(paths)

	if ident.TelegramID != current.User.TelegramID && s.Policy.IsAdmin(ident.TelegramID) {
		go s.Notifier.ListingDeletedByAdmin(context.WithoutCancel(ctx), current, ident.TelegramID)
	}
	return nil
}

// authorize loads the listing and enforces owner-or-admin access.
func (s *ListingService) authorize(ctx context.Context, ident Identity, id int64) (*domain.Listing, error) {
	l, err := repo.GetListing(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if !s.Policy.CanManage(ident.TelegramID, l.User.TelegramID) {
		return nil, ErrForbidden
	}
	return l, nil
}

// validateCreate normalizes and validates a new listing's fields in place.
func (s *ListingService) validateCreate(in *CreateListingInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.City = strings.TrimSpace(in.City)

	if !domain.ValidCategory(in.Category) {
		return ErrInvalidInput
	}
	if in.Title == "" || in.Description == "" {
		return ErrInvalidInput
	}
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(in.Title) > s.TitleMaxLen {
		return ErrTitleTooLong
	}

	// A buyer needs either a number or an invitation to haggle.
	if in.Price == nil && !in.IsNegotiable {
		return ErrInvalidInput
	}
	if in.Price != nil && *in.Price < 0 {
		return ErrInvalidInput
	}

	if !domain.ValidScope(in.Scope) {
		return ErrInvalidInput
	}
	if in.Currency == "" {
		in.Currency = domain.CurrencyCUP
	}
	if !domain.ValidCurrency(in.Currency) {
		return ErrInvalidInput
	}

	// Rentals are tied to a real city and never advertise country-wide.
	if in.Category == domain.CategoryRent {
		if in.City == "" || strings.EqualFold(in.City, "all") {
			return ErrInvalidInput
		}
		if in.Scope == domain.ScopeCountry {
			return ErrInvalidInput
		}
	}
	if in.City == "" {
		in.City = "La Habana"
	}
	return nil
}

// buildListing assembles the domain model from validated input, falling
// back to the seller's Telegram username as the contact handle.
func (s *ListingService) buildListing(userID int64, ident Identity, in CreateListingInput) *domain.Listing {
	contact := in.ContactTelegram
	if (contact == nil || *contact == "") && ident.Username != "" {
		handle := "@" + ident.Username
		contact = &handle
	}
	available := true
	if in.IsAvailableNow != nil {
		available = *in.IsAvailableNow
	}
	return &domain.Listing{
		UserID:             userID,
		Category:           in.Category,
		Title:              in.Title,
		Description:        in.Description,
		Price:              in.Price,
		Currency:           in.Currency,
		IsNegotiable:       in.IsNegotiable,
		City:               in.City,
		Neighborhood:       in.Neighborhood,
		Scope:              in.Scope,
		Landmark:           in.Landmark,
		RentType:           in.RentType,
		RentPeriod:         in.RentPeriod,
		AvailableFrom:      in.AvailableFrom,
		IsAvailableNow:     available,
		Rooms:              in.Rooms,
		TotalArea:          in.TotalArea,
		LivingArea:         in.LivingArea,
		Floor:              in.Floor,
		FloorFrom:          in.FloorFrom,
		Renovation:         in.Renovation,
		Furniture:          in.Furniture,
		Appliances:         in.Appliances,
		Internet:           in.Internet,
		ItemSubcategory:    in.ItemSubcategory,
		ItemCondition:      in.ItemCondition,
		ItemBrand:          in.ItemBrand,
		DeliveryType:       in.DeliveryType,
		ServiceSubcategory: in.ServiceSubcategory,
		ServiceFormat:      in.ServiceFormat,
		ServiceArea:        in.ServiceArea,
		ContactTelegram:    contact,
		ContactWhatsapp:    in.ContactWhatsapp,
		Status:             domain.StatusActive,
	}
}

// mergeUpdate turns a partial edit into a column map, validating each
// supplied field against the state the listing will have after the edit.
func (s *ListingService) mergeUpdate(current *domain.Listing, in UpdateListingInput) (map[string]any, error) {
	fields := map[string]any{}
	mergedCity := current.City
	mergedScope := current.Scope

	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, ErrInvalidInput
		}
		if s.TitleMaxLen > 0 && utf8.RuneCountInString(t) > s.TitleMaxLen {
			return nil, ErrTitleTooLong
		}
		fields["title"] = t
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if d == "" {
			return nil, ErrInvalidInput
		}
		fields["description"] = d
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return nil, ErrInvalidInput
		}
		fields["price"] = *in.Price
	}
	if in.Currency != nil {
		if !domain.ValidCurrency(*in.Currency) {
			return nil, ErrInvalidInput
		}
		fields["currency"] = *in.Currency
	}
	if in.IsNegotiable != nil {
		fields["is_negotiable"] = *in.IsNegotiable
	}
	if in.City != nil {
		c := strings.TrimSpace(*in.City)
		if c == "" {
			return nil, ErrInvalidInput
		}
		fields["city"] = c
		mergedCity = c
	}
	if in.Neighborhood != nil {
		fields["neighborhood"] = *in.Neighborhood
	}
	if in.Scope != nil {
		if !domain.ValidScope(*in.Scope) {
			return nil, ErrInvalidInput
		}
		fields["scope"] = *in.Scope
		mergedScope = *in.Scope
	}
	if in.Landmark != nil {
		fields["landmark"] = *in.Landmark
	}
	if in.RentType != nil {
		fields["rent_type"] = *in.RentType
	}
	if in.RentPeriod != nil {
		fields["rent_period"] = *in.RentPeriod
	}
	if in.AvailableFrom != nil {
		fields["available_from"] = *in.AvailableFrom
	}
	if in.IsAvailableNow != nil {
		fields["is_available_now"] = *in.IsAvailableNow
	}
	if in.Rooms != nil {
		fields["rooms"] = *in.Rooms
	}
	if in.TotalArea != nil {
		fields["total_area"] = *in.TotalArea
	}
	if in.LivingArea != nil {
		fields["living_area"] = *in.LivingArea
	}
	if in.Floor != nil {
		fields["floor"] = *in.Floor
	}
	if in.FloorFrom != nil {
		fields["floor_from"] = *in.FloorFrom
	}
	if in.Renovation != nil {
		fields["renovation"] = *in.Renovation
	}
	if in.Furniture != nil {
		fields["furniture"] = *in.Furniture
	}
	if in.Appliances != nil {
		fields["appliances"] = *in.Appliances
	}
	if in.Internet != nil {
		fields["internet"] = *in.Internet
	}
	if in.ItemSubcategory != nil {
		fields["item_subcategory"] = *in.ItemSubcategory
	}
	if in.ItemCondition != nil {
		fields["item_condition"] = *in.ItemCondition
	}
	if in.ItemBrand != nil {
		fields["item_brand"] = *in.ItemBrand
	}
	if in.DeliveryType != nil {
		fields["delivery_type"] = *in.DeliveryType
	}
	if in.ServiceSubcategory != nil {
		fields["service_subcategory"] = *in.ServiceSubcategory
	}
	if in.ServiceFormat != nil {
		fields["service_format"] = *in.ServiceFormat
	}
	if in.ServiceArea != nil {
		fields["service_area"] = *in.ServiceArea
	}
	if in.ContactTelegram != nil {
		fields["contact_telegram"] = *in.ContactTelegram
	}
	if in.ContactWhatsapp != nil {
		fields["contact_whatsapp"] = *in.ContactWhatsapp
	}

	// Rental rules hold for the merged state, not just the delta.
	if current.Category == domain.CategoryRent {
		if mergedCity == "" || strings.EqualFold(mergedCity, "all") {
			return nil, ErrInvalidInput
		}
		if mergedScope == domain.ScopeCountry {
			return nil, ErrInvalidInput
		}
	}

	return fields, nil
}

// removeFiles drops stored photo files after the database already moved on.
// Failures are logged and skipped; a leftover file is not worth failing the
// request over.
func (s *ListingService) removeFiles(paths []string) {
	for _, p := range paths {
		if err := s.Store.Delete(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("photo file cleanup failed")
		}
	}
}

// matchPaths resolves the requested deletions against the listing's gallery.
// An entry is either a numeric photo id or a stored path; the result is the
// set of matched paths. Unknown entries are ignored rather than rejected.
func matchPaths(photos []domain.ListingPhoto, deletions []string) []string {
	if len(deletions) == 0 {
		return nil
	}
	byPath := make(map[string]struct{}, len(photos))
	byID := make(map[int64]string, len(photos))
	for _, p := range photos {
		byPath[p.Path] = struct{}{}
		byID[p.ID] = p.Path
	}
	out := make([]string, 0, len(deletions))
	seen := make(map[string]struct{}, len(deletions))
	for _, d := range deletions {
		path := d
		if id, err := strconv.ParseInt(d, 10, 64); err == nil {
			if p, ok := byID[id]; ok {
				path = p
			}
		}
		if _, ok := byPath[path]; !ok {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package handlers – listing endpoints
//
// This file implements the listing lifecycle over HTTP: multipart publication
// with photo validation, the filtered public feed, detail reads, partial
// edits, status transitions, deletion, and the informational promote stub.
//
// Handlers are transport-thin: they decode and validate the wire format,
// delegate to the listing service, and translate service sentinels into the
// standard error envelope. All business rules (quotas, duplicate guards,
// authorization) live below this layer.
package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cubamarket/go-classifieds-backend/internal/domain"
	"github.com/cubamarket/go-classifieds-backend/internal/http/middleware"
	"github.com/cubamarket/go-classifieds-backend/internal/repo"
	"github.com/cubamarket/go-classifieds-backend/internal/services"
	"github.com/cubamarket/go-classifieds-backend/internal/utils"
)

// ListingService defines the listing operations the HTTP layer depends on.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ListingService interface {
	// Create publishes a new listing with at least one photo.
	Create(ctx context.Context, ident services.Identity, in services.CreateListingInput, photos []services.PhotoUpload) (*domain.Listing, error)
	// Get fetches a listing by id, counting the view.
	Get(ctx context.Context, id int64) (*domain.Listing, error)
	// List returns the filtered feed and the total match count.
	List(ctx context.Context, f repo.ListFilters) ([]domain.Listing, int64, error)
	// Update applies a partial edit and reconciles the photo gallery.
	Update(ctx context.Context, ident services.Identity, id int64, in services.UpdateListingInput, addPhotos []services.PhotoUpload, deletions []string) (*domain.Listing, error)
	// SetStatus transitions a listing between lifecycle states.
	SetStatus(ctx context.Context, ident services.Identity, id int64, status string) (*domain.Listing, error)
	// Delete removes a listing, its photo rows, and its files.
	Delete(ctx context.Context, ident services.Identity, id int64) error
}

// AdminChecker reports whether a Telegram account is a configured
// administrator. Implemented by services.AuthPolicy.
type AdminChecker interface {
	IsAdmin(telegramID int64) bool
}

// SubscriptionChecker verifies membership of the required Telegram channel.
type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, telegramID int64) (bool, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the marketplace API. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	listings ListingService
	admins   AdminChecker
	subs     SubscriptionChecker

	requiredChannel string
	maxPhotoBytes   int64
	maxPhotos       int
}

// New constructs a Handlers instance bound to the given services.
// maxPhotoBytes and maxPhotos bound a single multipart request.
func New(listings ListingService, admins AdminChecker, subs SubscriptionChecker, requiredChannel string, maxPhotoBytes int64, maxPhotos int) *Handlers {
	return &Handlers{
		listings:        listings,
		admins:          admins,
		subs:            subs,
		requiredChannel: requiredChannel,
		maxPhotoBytes:   maxPhotoBytes,
		maxPhotos:       maxPhotos,
	}
}

// listResponse is the feed payload: the page of listings plus the total
// number of matches for the applied filters.
type listResponse struct {
	Listings []domain.Listing `json:"listings"`
	Total    int64            `json:"total"`
}

// CreateListing handles POST /listings. The request is multipart/form-data:
// scalar fields plus 1..maxPhotos files under the "photos" key.
func (h *Handlers) CreateListing(c *gin.Context) {
	ident, authed := middleware.IdentityFrom(c)
	if !authed {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart form expected")
		return
	}

	in, err := decodeCreateInput(form)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	photos, err := h.readPhotos(form.File["photos"])
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	l, err := h.listings.Create(c.Request.Context(), ident, in, photos)
	if err != nil {
		h.listingError(c, err)
		return
	}
	ok(c, http.StatusCreated, l)
}

// GetListing handles GET /listings/:id. A non-numeric id is reported as
// not found rather than a syntax error, matching client expectations.
func (h *Handlers) GetListing(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "listing not found")
		return
	}
	l, err := h.listings.Get(c.Request.Context(), id)
	if err != nil {
		h.listingError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// ListListings handles GET /listings with the full filter surface: category,
// location, price bounds, free-text search, rent specifics, and pagination.
// my=true restricts the feed to the authenticated caller's own listings.
func (h *Handlers) ListListings(c *gin.Context) {
	f := repo.ListFilters{
		Category:           c.Query("category"),
		City:               c.Query("city"),
		Neighborhood:       c.Query("neighborhood"),
		Scope:              c.Query("scope"),
		ItemSubcategory:    c.Query("item_subcategory"),
		ServiceSubcategory: c.Query("service_subcategory"),
		Status:             c.Query("status"),
		Search:             c.Query("search"),
		RentType:           c.Query("rentType"),
		Rooms:              c.Query("rooms"),
		Renovation:         c.Query("renovation"),
		Furniture:          c.Query("furniture"),
		Appliances:         c.Query("appliances"),
		Internet:           c.Query("internet"),
		Limit:              utils.AtoiDefault(c.Query("limit"), repo.DefaultListLimit),
		Offset:             utils.AtoiDefault(c.Query("offset"), 0),
	}
	if f.City == "all" {
		f.City = ""
	}

	var perr error
	f.PriceMin, perr = queryFloat(c, "minPrice", perr)
	f.PriceMax, perr = queryFloat(c, "maxPrice", perr)
	f.TotalAreaMin, perr = queryFloat(c, "totalArea", perr)
	f.LivingAreaMin, perr = queryFloat(c, "livingArea", perr)
	f.Floor, perr = queryInt(c, "floor", perr)
	f.FloorFrom, perr = queryInt(c, "floorFrom", perr)
	if perr != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, perr.Error())
		return
	}
	if v := c.Query("has_rent_period"); v == "true" || v == "false" {
		b := v == "true"
		f.HasRentPeriod = &b
	}

	if c.Query("my") == "true" {
		ident, authed := middleware.IdentityFrom(c)
		if !authed {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required for my listings")
			return
		}
		f.OwnerTelegramID = ident.TelegramID
	}

	listings, total, err := h.listings.List(c.Request.Context(), f)
	if err != nil {
		h.listingError(c, err)
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	ok(c, http.StatusOK, listResponse{Listings: listings, Total: total})
}

// UpdateListing handles PUT /listings/:id. Multipart like create, but every
// field is optional; omitted fields keep their stored value. Photos to
// remove are passed as delete_photos entries (numeric photo id or stored
// path), new photos under the "photos" key.
func (h *Handlers) UpdateListing(c *gin.Context) {
	ident, authed := middleware.IdentityFrom(c)
	if !authed {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "listing not found")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart form expected")
		return
	}

	in, err := decodeUpdateInput(form)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	var add []services.PhotoUpload
	if files := form.File["photos"]; len(files) > 0 {
		add, err = h.readPhotos(files)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
	}

	l, err := h.listings.Update(c.Request.Context(), ident, id, in, add, deletions(form))
	if err != nil {
		h.listingError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// statusRequest is the PATCH /listings/:id/status body.
type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetListingStatus handles PATCH /listings/:id/status.
func (h *Handlers) SetListingStatus(c *gin.Context) {
	ident, authed := middleware.IdentityFrom(c)
	if !authed {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "listing not found")
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}
	l, err := h.listings.SetStatus(c.Request.Context(), ident, id, req.Status)
	if err != nil {
		h.listingError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// DeleteListing handles DELETE /listings/:id.
func (h *Handlers) DeleteListing(c *gin.Context) {
	ident, authed := middleware.IdentityFrom(c)
	if !authed {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "listing not found")
		return
	}
	if err := h.listings.Delete(c.Request.Context(), ident, id); err != nil {
		h.listingError(c, err)
		return
	}
	noContent(c)
}

// PromoteListing handles POST /listings/:id/promote. Promotion is handled
// manually by the administrator, so this endpoint only points the seller at
// the right contact.
func (h *Handlers) PromoteListing(c *gin.Context) {
	if _, authed := middleware.IdentityFrom(c); !authed {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"message": "Para promocionar su anuncio contacte al administrador",
		"contact": "@admin",
	})
}

// CheckAdmin handles GET /listings/check-admin. Unauthenticated callers are
// simply not admins; the endpoint never errors.
func (h *Handlers) CheckAdmin(c *gin.Context) {
	ident, authed := middleware.IdentityFrom(c)
	isAdmin := authed && h.admins.IsAdmin(ident.TelegramID)
	ok(c, http.StatusOK, gin.H{"is_admin": isAdmin})
}

// listingError maps service sentinels onto the error envelope.
func (h *Handlers) listingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrListingNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "listing not found")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not allowed to manage this listing")
	case errors.Is(err, services.ErrMissingPhoto):
		fail(c, http.StatusBadRequest, ErrCodeMissingPhoto, "at least one photo is required")
	case errors.Is(err, services.ErrPhotoMinimum):
		fail(c, http.StatusBadRequest, ErrCodePhotoMinimum, "a listing must keep at least one photo")
	case errors.Is(err, services.ErrQuotaExceeded):
		fail(c, http.StatusBadRequest, ErrCodeQuotaExceeded, "active listing limit reached")
	case errors.Is(err, services.ErrDuplicateListing):
		fail(c, http.StatusBadRequest, ErrCodeDuplicateListing, "you already have an identical active listing")
	case errors.Is(err, services.ErrTitleTooLong),
		errors.Is(err, services.ErrTooManyPhotos),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

//
// Multipart decoding
//

var photoExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {},
}

// readPhotos validates and buffers the uploaded files. Count, per-file size,
// and image type are enforced here so oversized uploads never reach the
// service layer.
func (h *Handlers) readPhotos(files []*multipart.FileHeader) ([]services.PhotoUpload, error) {
	if h.maxPhotos > 0 && len(files) > h.maxPhotos {
		return nil, errors.New("too many photos in one request")
	}
	out := make([]services.PhotoUpload, 0, len(files))
	for _, fh := range files {
		if h.maxPhotoBytes > 0 && fh.Size > h.maxPhotoBytes {
			return nil, errors.New("photo exceeds the size limit")
		}
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if _, ok := photoExts[ext]; !ok {
			return nil, errors.New("unsupported photo type")
		}
		if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
			return nil, errors.New("unsupported photo type")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.New("unreadable photo upload")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.New("unreadable photo upload")
		}
		out = append(out, services.PhotoUpload{Name: fh.Filename, Data: data})
	}
	return out, nil
}

// decodeCreateInput maps form values onto the create input. Scalar parse
// failures surface as bad-request errors with the field name.
func decodeCreateInput(form *multipart.Form) (services.CreateListingInput, error) {
	in := services.CreateListingInput{
		Category:     formValue(form, "category"),
		Title:        formValue(form, "title"),
		Description:  formValue(form, "description"),
		Currency:     formValue(form, "currency"),
		City:         formValue(form, "city"),
		Scope:        formValue(form, "scope"),
		IsNegotiable: formValue(form, "is_negotiable") == "true",

		Neighborhood:       formPtr(form, "neighborhood"),
		Landmark:           formPtr(form, "landmark"),
		RentType:           formPtr(form, "rent_type"),
		RentPeriod:         formPtr(form, "rent_period"),
		Rooms:              formPtr(form, "rooms"),
		Renovation:         formPtr(form, "renovation"),
		Furniture:          formPtr(form, "furniture"),
		Appliances:         formPtr(form, "appliances"),
		Internet:           formPtr(form, "internet"),
		ItemSubcategory:    formPtr(form, "item_subcategory"),
		ItemCondition:      formPtr(form, "item_condition"),
		ItemBrand:          formPtr(form, "item_brand"),
		DeliveryType:       formPtr(form, "delivery_type"),
		ServiceSubcategory: formPtr(form, "service_subcategory"),
		ServiceFormat:      formPtr(form, "service_format"),
		ServiceArea:        formPtr(form, "service_area"),
		ContactTelegram:    formPtr(form, "contact_telegram"),
		ContactWhatsapp:    formPtr(form, "contact_whatsapp"),
	}

	var err error
	if in.Price, err = formFloat(form, "price"); err != nil {
		return in, err
	}
	if in.TotalArea, err = formFloat(form, "total_area"); err != nil {
		return in, err
	}
	if in.LivingArea, err = formFloat(form, "living_area"); err != nil {
		return in, err
	}
	if in.Floor, err = formInt(form, "floor"); err != nil {
		return in, err
	}
	if in.FloorFrom, err = formInt(form, "floor_from"); err != nil {
		return in, err
	}
	if in.AvailableFrom, err = formDate(form, "available_from"); err != nil {
		return in, err
	}
	if v := formPtr(form, "is_available_now"); v != nil {
		b := *v == "true"
		in.IsAvailableNow = &b
	}
	return in, nil
}

// decodeUpdateInput maps form values onto the partial edit input. A key
// absent from the form leaves the field nil, preserving the stored value.
func decodeUpdateInput(form *multipart.Form) (services.UpdateListingInput, error) {
	in := services.UpdateListingInput{
		Title:       formPtr(form, "title"),
		Description: formPtr(form, "description"),
		Currency:    formPtr(form, "currency"),

		City:         formPtr(form, "city"),
		Neighborhood: formPtr(form, "neighborhood"),
		Scope:        formPtr(form, "scope"),
		Landmark:     formPtr(form, "landmark"),

		RentType:           formPtr(form, "rent_type"),
		RentPeriod:         formPtr(form, "rent_period"),
		Rooms:              formPtr(form, "rooms"),
		Renovation:         formPtr(form, "renovation"),
		Furniture:          formPtr(form, "furniture"),
		Appliances:         formPtr(form, "appliances"),
		Internet:           formPtr(form, "internet"),
		ItemSubcategory:    formPtr(form, "item_subcategory"),
		ItemCondition:      formPtr(form, "item_condition"),
		ItemBrand:          formPtr(form, "item_brand"),
		DeliveryType:       formPtr(form, "delivery_type"),
		ServiceSubcategory: formPtr(form, "service_subcategory"),
		ServiceFormat:      formPtr(form, "service_format"),
		ServiceArea:        formPtr(form, "service_area"),
		ContactTelegram:    formPtr(form, "contact_telegram"),
		ContactWhatsapp:    formPtr(form, "contact_whatsapp"),
	}

	var err error
	if in.Price, err = formFloat(form, "price"); err != nil {
		return in, err
	}
	if in.TotalArea, err = formFloat(form, "total_area"); err != nil {
		return in, err
	}
	if in.LivingArea, err = formFloat(form, "living_area"); err != nil {
		return in, err
	}
	if in.Floor, err = formInt(form, "floor"); err != nil {
		return in, err
	}
	if in.FloorFrom, err = formInt(form, "floor_from"); err != nil {
		return in, err
	}
	if in.AvailableFrom, err = formDate(form, "available_from"); err != nil {
		return in, err
	}
	if v := formPtr(form, "is_negotiable"); v != nil {
		b := *v == "true"
		in.IsNegotiable = &b
	}
	if v := formPtr(form, "is_available_now"); v != nil {
		b := *v == "true"
		in.IsAvailableNow = &b
	}
	return in, nil
}

// deletions collects the delete_photos entries. Clients send either repeated
// delete_photos values or indexed keys (delete_photos[0], delete_photos[1]).
func deletions(form *multipart.Form) []string {
	var out []string
	for key, vals := range form.Value {
		if key == "delete_photos" || strings.HasPrefix(key, "delete_photos[") {
			for _, v := range vals {
				if v = strings.TrimSpace(v); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func formPtr(form *multipart.Form, key string) *string {
	vals, ok := form.Value[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	v := vals[0]
	return &v
}

func formFloat(form *multipart.Form, key string) (*float64, error) {
	v := formPtr(form, key)
	if v == nil || *v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(*v, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &f, nil
}

func formInt(form *multipart.Form, key string) (*int, error) {
	v := formPtr(form, key)
	if v == nil || *v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &n, nil
}

func formDate(form *multipart.Form, key string) (*time.Time, error) {
	v := formPtr(form, key)
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *v)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &t, nil
}

func queryFloat(c *gin.Context, key string, prev error) (*float64, error) {
	if prev != nil {
		return nil, prev
	}
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &f, nil
}

func queryInt(c *gin.Context, key string, prev error) (*int, error) {
	if prev != nil {
		return nil, prev
	}
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &n, nil
}

// Package domain defines the persistence models for users, listings, and
// listing photos. These types are mapped with GORM and form the core data
// layer of the marketplace application.
package domain

import (
	"time"
)

// Listing category values.
const (
	CategoryRent     = "rent"
	CategoryItems    = "items"
	CategoryServices = "services"
)

// Listing visibility scope values. Scope widens the audience of a listing
// beyond its own neighborhood.
const (
	ScopeNeighborhood = "NEIGHBORHOOD"
	ScopeCity         = "CITY"
	ScopeCountry      = "COUNTRY"
)

// Listing lifecycle status values. A sold or rented listing never returns
// to active.
const (
	StatusActive = "active"
	StatusSold   = "sold"
	StatusRented = "rented"
)

// Accepted price currencies.
const (
	CurrencyCUP = "CUP"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// User represents a Telegram account known to the marketplace. Users are
// created lazily the first time they publish a listing.
//
// Fields:
//   - ID: auto-increment primary key.
//   - TelegramID: the Telegram account id (unique).
//   - Username / FirstName / LastName: profile data captured at first contact.
//   - CreatedAt: timestamp managed by GORM.
type User struct {
	ID         int64     `json:"id"          gorm:"primaryKey;autoIncrement"`
	TelegramID int64     `json:"telegram_id" gorm:"not null;uniqueIndex"`
	Username   *string   `json:"username"    gorm:"type:varchar(255)"`
	FirstName  *string   `json:"first_name"  gorm:"type:varchar(255)"`
	LastName   *string   `json:"last_name"   gorm:"type:varchar(255)"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Listing represents a published classified ad. Category-specific attributes
// (rent, items, services) are nullable and only populated for their category.
//
// Pointer fields map to nullable columns; a nil pointer is stored as NULL
// and omitted from category sections that do not apply.
type Listing struct {
	ID          int64  `json:"id"          gorm:"primaryKey;autoIncrement"`
	UserID      int64  `json:"user_id"     gorm:"not null;index"`
	Category    string `json:"category"    gorm:"type:varchar(16);not null;check:category IN ('rent','items','services')"`
	Title       string `json:"title"       gorm:"type:varchar(255);not null"`
	Description string `json:"description" gorm:"type:text;not null"`

	// Commercial terms. A nil price is only valid alongside IsNegotiable.
	Price        *float64 `json:"price"         gorm:"type:decimal(10,2)"`
	Currency     string   `json:"currency"      gorm:"type:varchar(8);not null;default:'CUP';check:currency IN ('CUP','USD','EUR')"`
	IsNegotiable bool     `json:"is_negotiable" gorm:"not null;default:false"`

	// Location
	City         string  `json:"city"         gorm:"type:varchar(100);not null;default:'La Habana';index"`
	Neighborhood *string `json:"neighborhood" gorm:"type:varchar(100);index"`
	Scope        string  `json:"scope"        gorm:"type:varchar(16);not null;default:'NEIGHBORHOOD';check:scope IN ('NEIGHBORHOOD','CITY','COUNTRY')"`
	Landmark     *string `json:"landmark,omitempty" gorm:"type:text"`

	// Rent attributes. RentPeriod present means "for rent"; absent means the
	// property itself is for sale.
	RentType       *string    `json:"rent_type,omitempty"   gorm:"type:varchar(16);check:rent_type IN ('room','apartment','house')"`
	RentPeriod     *string    `json:"rent_period,omitempty" gorm:"type:varchar(16);check:rent_period IN ('daily','monthly')"`
	AvailableFrom  *time.Time `json:"available_from,omitempty"`
	IsAvailableNow bool       `json:"is_available_now" gorm:"not null;default:true"`

	// Apartment attributes (rent only). Rooms is stored as a string because
	// clients send values like "4+".
	Rooms      *string  `json:"rooms,omitempty"       gorm:"type:varchar(10)"`
	TotalArea  *float64 `json:"total_area,omitempty"  gorm:"type:decimal(10,2)"`
	LivingArea *float64 `json:"living_area,omitempty" gorm:"type:decimal(10,2)"`
	Floor      *int     `json:"floor,omitempty"`
	FloorFrom  *int     `json:"floor_from,omitempty"`
	Renovation *string  `json:"renovation,omitempty" gorm:"type:varchar(50)"`
	Furniture  *string  `json:"furniture,omitempty"  gorm:"type:varchar(20)"`
	Appliances *string  `json:"appliances,omitempty" gorm:"type:varchar(20)"`
	Internet   *string  `json:"internet,omitempty"   gorm:"type:varchar(20)"`

	// Item attributes
	ItemSubcategory *string `json:"item_subcategory,omitempty" gorm:"type:varchar(32);check:item_subcategory IN ('clothing','electronics','furniture','kids','other')"`
	ItemCondition   *string `json:"item_condition,omitempty"   gorm:"type:varchar(16);check:item_condition IN ('new','used')"`
	ItemBrand       *string `json:"item_brand,omitempty"       gorm:"type:varchar(100)"`
	DeliveryType    *string `json:"delivery_type,omitempty"    gorm:"type:varchar(16);check:delivery_type IN ('pickup','shipping')"`

	// Service attributes
	ServiceSubcategory *string `json:"service_subcategory,omitempty" gorm:"type:varchar(32);check:service_subcategory IN ('repair','cleaning','transport','food','other')"`
	ServiceFormat      *string `json:"service_format,omitempty"      gorm:"type:varchar(16);check:service_format IN ('one-time','ongoing')"`
	ServiceArea        *string `json:"service_area,omitempty"        gorm:"type:text"`

	// Contact
	ContactTelegram *string `json:"contact_telegram" gorm:"type:varchar(100)"`
	ContactWhatsapp *string `json:"contact_whatsapp" gorm:"type:varchar(100)"`

	// Lifecycle, promotion, and ranking. Promotion flags are set by the
	// administrator out of band; there is no self-service path.
	Status        string     `json:"status"         gorm:"type:varchar(16);not null;default:'active';index;check:status IN ('active','sold','rented')"`
	IsPinned      bool       `json:"is_pinned"      gorm:"not null;default:false"`
	IsPromoted    bool       `json:"is_promoted"    gorm:"not null;default:false"`
	IsVIP         bool       `json:"is_vip"         gorm:"column:is_vip;not null;default:false"`
	PromotedUntil *time.Time `json:"promoted_until,omitempty"`
	Views         int64      `json:"views" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	// User is the listing owner. Listings are cascade-deleted if their
	// owner is removed.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Photos are preloaded ordered by Position for API responses.
	Photos []ListingPhoto `json:"photos,omitempty" gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Listing.
func (Listing) TableName() string { return "listings" }

// IsRent reports whether the listing belongs to the rent category.
func (l *Listing) IsRent() bool { return l.Category == CategoryRent }

// ListingPhoto is a stored photo attached to a listing. Position is the
// zero-based display order within the listing's gallery.
type ListingPhoto struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	ListingID int64     `json:"listing_id" gorm:"not null;index:idx_listing_photos,priority:1"`
	Path      string    `json:"photo_url"  gorm:"type:varchar(512);not null"`
	Position  int       `json:"photo_order" gorm:"not null;default:0;index:idx_listing_photos,priority:2"`
	CreatedAt time.Time `json:"created_at"`

	// Listing is the parent ad. Photos are cascade-deleted with it.
	Listing Listing `json:"-" gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ListingPhoto.
func (ListingPhoto) TableName() string { return "listing_photos" }

// ValidStatus reports whether s is one of the allowed listing statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusSold, StatusRented:
		return true
	}
	return false
}

// ValidCategory reports whether c is one of the allowed listing categories.
func ValidCategory(c string) bool {
	switch c {
	case CategoryRent, CategoryItems, CategoryServices:
		return true
	}
	return false
}

// ValidScope reports whether s is one of the allowed visibility scopes.
func ValidScope(s string) bool {
	switch s {
	case ScopeNeighborhood, ScopeCity, ScopeCountry:
		return true
	}
	return false
}

// ValidCurrency reports whether c is one of the accepted currencies.
func ValidCurrency(c string) bool {
	switch c {
	case CurrencyCUP, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

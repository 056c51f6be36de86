package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func f64(v float64) *float64 { return &v }

func TestTableNames(t *testing.T) {
	if (User{}).TableName() != "users" {
		t.Fatalf("User.TableName() = %q; want %q", (User{}).TableName(), "users")
	}
	if (Listing{}).TableName() != "listings" {
		t.Fatalf("Listing.TableName() = %q; want %q", (Listing{}).TableName(), "listings")
	}
	if (ListingPhoto{}).TableName() != "listing_photos" {
		t.Fatalf("ListingPhoto.TableName() = %q; want %q", (ListingPhoto{}).TableName(), "listing_photos")
	}
}

func TestValidators(t *testing.T) {
	for _, s := range []string{StatusActive, StatusSold, StatusRented} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false", s)
		}
	}
	if ValidStatus("archived") {
		t.Error("ValidStatus(archived) = true")
	}
	for _, c := range []string{CategoryRent, CategoryItems, CategoryServices} {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false", c)
		}
	}
	if ValidCategory("cars") {
		t.Error("ValidCategory(cars) = true")
	}
	for _, s := range []string{ScopeNeighborhood, ScopeCity, ScopeCountry} {
		if !ValidScope(s) {
			t.Errorf("ValidScope(%q) = false", s)
		}
	}
	if ValidScope("city") {
		t.Error("ValidScope(city) = true; scopes are upper-case")
	}
	for _, c := range []string{CurrencyCUP, CurrencyUSD, CurrencyEUR} {
		if !ValidCurrency(c) {
			t.Errorf("ValidCurrency(%q) = false", c)
		}
	}
	if ValidCurrency("MXN") {
		t.Error("ValidCurrency(MXN) = true")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&User{}, &Listing{}, &ListingPhoto{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&User{}, &Listing{}, &ListingPhoto{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	if !m.HasIndex(&ListingPhoto{}, "idx_listing_photos") {
		t.Fatalf("expected index idx_listing_photos on listing_photos")
	}

	now := time.Now().UTC()

	uname := "seller"
	u := &User{TelegramID: 100200300, Username: &uname, CreatedAt: now}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}

	// Unique telegram_id
	if err := db.Create(&User{TelegramID: 100200300}).Error; err == nil {
		t.Fatal("expected unique violation on duplicate telegram_id")
	}

	l := &Listing{
		UserID:      u.ID,
		Category:    CategoryItems,
		Title:       "Ventilador",
		Description: "Poco uso",
		Price:       f64(1500),
		Currency:    "CUP",
		City:        "La Habana",
		Scope:       ScopeCity,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("insert listing: %v", err)
	}

	p1 := &ListingPhoto{ListingID: l.ID, Path: "uploads/a.jpg", Position: 0, CreatedAt: now}
	p2 := &ListingPhoto{ListingID: l.ID, Path: "uploads/b.jpg", Position: 1, CreatedAt: now}
	if err := db.Create(p1).Error; err != nil {
		t.Fatalf("insert p1: %v", err)
	}
	if err := db.Create(p2).Error; err != nil {
		t.Fatalf("insert p2: %v", err)
	}

	// CASCADE: deleting the listing should delete its photos
	if err := db.Delete(&Listing{}, "id = ?", l.ID).Error; err != nil {
		t.Fatalf("delete listing: %v", err)
	}
	var cnt int64
	if err := db.Model(&ListingPhoto{}).Where("listing_id = ?", l.ID).Count(&cnt).Error; err != nil {
		t.Fatalf("count photos after listing delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected photos to cascade-delete when listing deleted, got count=%d", cnt)
	}
}

func TestCheckConstraints(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&User{}, &Listing{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	u := &User{TelegramID: 7}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}

	bad := &Listing{
		UserID:      u.ID,
		Category:    "vehicles",
		Title:       "Moto",
		Description: "x",
		Price:       f64(1),
		Status:      StatusActive,
		Scope:       ScopeNeighborhood,
		City:        "Santiago",
	}
	if err := db.Create(bad).Error; err == nil {
		t.Fatal("expected CHECK violation on unknown category")
	}
}

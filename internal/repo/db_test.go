package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/cubamarket/go-classifieds-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers:
	// - Windows: *os.PathError ("CreateFile … cannot find the file specified")
	// - SQLite:  "unable to open database file" / "out of memory (14)"
	// - Unix:    "no such file or directory"
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("journal_mode = %q; want wal", journalMode)
	}
	intPragmas := map[string]int{
		"synchronous":  1, // NORMAL
		"foreign_keys": 1,
		"busy_timeout": 5000,
	}
	for name, want := range intPragmas {
		var got int
		if err := db.Raw("PRAGMA " + name + ";").Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s = %d; want %d", name, got, want)
		}
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("MaxOpenConnections = %d; want 10", stats.MaxOpenConnections)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.User{}, &domain.Listing{}, &domain.ListingPhoto{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	u := &domain.User{TelegramID: 42, CreatedAt: now}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	l := &domain.Listing{
		UserID: u.ID, Category: domain.CategoryItems, Title: "t", Description: "d",
		Price: f64(10), Currency: "CUP", City: "La Habana",
		Scope: domain.ScopeNeighborhood, Status: domain.StatusActive,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("insert listing: %v", err)
	}
	p := &domain.ListingPhoto{ListingID: l.ID, Path: "uploads/x.jpg", Position: 0, CreatedAt: now}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("insert photo: %v", err)
	}

	var got domain.Listing
	if err := db.First(&got, "id = ?", l.ID).Error; err != nil || got.UserID != u.ID {
		t.Fatalf("readback listing failed: err=%v got=%+v", err, got)
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite

package database

import (
	"context"
	"testing"
	"time"
)

func TestMigrateIsRepeatable(t *testing.T) {
	db := NewTestDB(t)
	if err := Migrate(context.Background(), db, DialectSQLite); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMigrateUnknownDialect(t *testing.T) {
	db := NewTestDB(t)
	if err := Migrate(context.Background(), db, "oracle"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestListingWindowCheckConstraint(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	res, err := db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, created_at, updated_at) VALUES (?,?,?,?,?)`,
		"b@example.com", "x", "BUSINESS", now, now)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	uid, _ := res.LastInsertId()
	res, err = db.ExecContext(ctx,
		`INSERT INTO businesses (owner_user_id, name, address, postal_code, locality, canton, registration_id, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		uid, "Bakery", "Main 1", "1000", "Lausanne", "VD", "CHE-1", now, now)
	if err != nil {
		t.Fatalf("insert business: %v", err)
	}
	bid, _ := res.LastInsertId()

	_, err = db.ExecContext(ctx,
		`INSERT INTO listings (business_id, title, quantity, unit, available_from, available_until, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		bid, "Bread", 2.0, "kg", now, now.Add(-time.Hour), now, now)
	if err == nil {
		t.Fatal("expected the window check to reject until <= from")
	}
}

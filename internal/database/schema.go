package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialects understood by Migrate.
const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite"
)

// mysqlSchema is the production schema.  Times are stored as UTC DATETIME.
const mysqlSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    email         VARCHAR(191) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    first_name    VARCHAR(100) NOT NULL DEFAULT '',
    last_name     VARCHAR(100) NOT NULL DEFAULT '',
    phone         VARCHAR(30) NULL,
    role          VARCHAR(20) NOT NULL DEFAULT 'NONE',
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS refresh_tokens (
    id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    user_id    BIGINT UNSIGNED NOT NULL,
    token_hash CHAR(64) NOT NULL UNIQUE,
    expires_at DATETIME NOT NULL,
    revoked_at DATETIME NULL,
    created_at DATETIME NOT NULL,
    CONSTRAINT fk_rt_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS businesses (
    id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    owner_user_id   BIGINT UNSIGNED NOT NULL,
    name            VARCHAR(100) NOT NULL,
    description     TEXT NULL,
    address         VARCHAR(200) NOT NULL,
    postal_code     VARCHAR(10) NOT NULL,
    locality        VARCHAR(100) NOT NULL,
    canton          VARCHAR(50) NOT NULL,
    latitude        DOUBLE NULL,
    longitude       DOUBLE NULL,
    website         VARCHAR(255) NULL,
    registration_id VARCHAR(30) NOT NULL UNIQUE,
    approved        TINYINT(1) NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    KEY idx_businesses_owner (owner_user_id),
    CONSTRAINT fk_business_owner FOREIGN KEY (owner_user_id) REFERENCES users(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS organizations (
    id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    owner_user_id   BIGINT UNSIGNED NOT NULL,
    name            VARCHAR(100) NOT NULL,
    description     TEXT NULL,
    address         VARCHAR(200) NOT NULL,
    postal_code     VARCHAR(10) NOT NULL,
    locality        VARCHAR(100) NOT NULL,
    canton          VARCHAR(50) NOT NULL,
    latitude        DOUBLE NULL,
    longitude       DOUBLE NULL,
    website         VARCHAR(255) NULL,
    registration_id VARCHAR(30) NOT NULL UNIQUE,
    approved        TINYINT(1) NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    KEY idx_organizations_owner (owner_user_id),
    CONSTRAINT fk_organization_owner FOREIGN KEY (owner_user_id) REFERENCES users(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS listings (
    id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    business_id     BIGINT UNSIGNED NOT NULL,
    title           VARCHAR(100) NOT NULL,
    description     TEXT NULL,
    quantity        DOUBLE NOT NULL,
    unit            VARCHAR(20) NOT NULL,
    available_from  DATETIME NOT NULL,
    available_until DATETIME NOT NULL,
    urgent          TINYINT(1) NOT NULL DEFAULT 0,
    allergens       TEXT NULL,
    temperature     VARCHAR(50) NULL,
    status          VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE',
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    KEY idx_listings_visible (status, available_until),
    KEY idx_listings_business (business_id),
    CONSTRAINT fk_listing_business FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE,
    CONSTRAINT chk_listing_window CHECK (available_until > available_from),
    CONSTRAINT chk_listing_quantity CHECK (quantity > 0)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS reservations (
    id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    listing_id      BIGINT UNSIGNED NOT NULL,
    organization_id BIGINT UNSIGNED NOT NULL,
    collect_at      DATETIME NOT NULL,
    status          VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    comment         TEXT NULL,
    idempotency_key VARCHAR(100) NULL,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    KEY idx_reservations_listing (listing_id, status),
    UNIQUE KEY uq_reservations_idem (organization_id, idempotency_key),
    CONSTRAINT fk_reservation_listing FOREIGN KEY (listing_id) REFERENCES listings(id) ON DELETE CASCADE,
    CONSTRAINT fk_reservation_org FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS documents (
    id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    user_id       BIGINT UNSIGNED NOT NULL,
    kind          VARCHAR(20) NOT NULL,
    storage_key   VARCHAR(255) NOT NULL UNIQUE,
    original_name VARCHAR(255) NOT NULL,
    content_type  VARCHAR(100) NOT NULL,
    size_bytes    BIGINT NOT NULL,
    status        VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    comment       VARCHAR(500) NULL,
    submitted_at  DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    KEY idx_documents_user (user_id),
    CONSTRAINT fk_document_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// sqliteSchema mirrors mysqlSchema for the embedded driver and the test
// database.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    first_name    TEXT NOT NULL DEFAULT '',
    last_name     TEXT NOT NULL DEFAULT '',
    phone         TEXT,
    role          TEXT NOT NULL DEFAULT 'NONE',
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token_hash TEXT NOT NULL UNIQUE,
    expires_at DATETIME NOT NULL,
    revoked_at DATETIME,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS businesses (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name            TEXT NOT NULL,
    description     TEXT,
    address         TEXT NOT NULL,
    postal_code     TEXT NOT NULL,
    locality        TEXT NOT NULL,
    canton          TEXT NOT NULL,
    latitude        REAL,
    longitude       REAL,
    website         TEXT,
    registration_id TEXT NOT NULL UNIQUE,
    approved        BOOLEAN NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS organizations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name            TEXT NOT NULL,
    description     TEXT,
    address         TEXT NOT NULL,
    postal_code     TEXT NOT NULL,
    locality        TEXT NOT NULL,
    canton          TEXT NOT NULL,
    latitude        REAL,
    longitude       REAL,
    website         TEXT,
    registration_id TEXT NOT NULL UNIQUE,
    approved        BOOLEAN NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    business_id     INTEGER NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
    title           TEXT NOT NULL,
    description     TEXT,
    quantity        REAL NOT NULL CHECK (quantity > 0),
    unit            TEXT NOT NULL,
    available_from  DATETIME NOT NULL,
    available_until DATETIME NOT NULL,
    urgent          BOOLEAN NOT NULL DEFAULT 0,
    allergens       TEXT,
    temperature     TEXT,
    status          TEXT NOT NULL DEFAULT 'AVAILABLE',
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    CHECK (available_until > available_from)
);

CREATE INDEX IF NOT EXISTS idx_listings_visible ON listings(status, available_until);

CREATE TABLE IF NOT EXISTS reservations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    listing_id      INTEGER NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
    organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    collect_at      DATETIME NOT NULL,
    status          TEXT NOT NULL DEFAULT 'PENDING',
    comment         TEXT,
    idempotency_key TEXT,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    UNIQUE (organization_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS idx_reservations_listing ON reservations(listing_id, status);

CREATE TABLE IF NOT EXISTS documents (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    kind          TEXT NOT NULL,
    storage_key   TEXT NOT NULL UNIQUE,
    original_name TEXT NOT NULL,
    content_type  TEXT NOT NULL,
    size_bytes    INTEGER NOT NULL,
    status        TEXT NOT NULL DEFAULT 'PENDING',
    comment       TEXT,
    submitted_at  DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);
`

// Migrate creates the schema for the given dialect.  Statements are
// idempotent, so Migrate may run on every start.
func Migrate(ctx context.Context, db *sql.DB, dialect string) error {
	var schema string
	switch dialect {
	case DialectMySQL:
		schema = mysqlSchema
	case DialectSQLite:
		schema = sqliteSchema
	default:
		return fmt.Errorf("unknown dialect %q", dialect)
	}
	// The MySQL driver rejects multi-statement Exec unless multiStatements is
	// set on the DSN, so run one statement at a time for both dialects.
	for i, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

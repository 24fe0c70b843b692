package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. Offers are stored as JSON documents
// keyed by their date; the document itself carries no row identifier.
const schema = `
CREATE TABLE IF NOT EXISTS offers (
    date       INTEGER PRIMARY KEY,
    document   TEXT NOT NULL CHECK (json_valid(document)),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS images (
    name       TEXT PRIMARY KEY,
    kind       TEXT NOT NULL CHECK (kind IN ('avatars', 'previews')),
    mime       TEXT NOT NULL,
    checksum   TEXT NOT NULL,
    data       BLOB NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

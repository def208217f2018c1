package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DBTX is an interface that both *sqlx.DB and *sqlx.Tx satisfy.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

var _ DBTX = (*sqlx.DB)(nil)
var _ DBTX = (*sqlx.Tx)(nil)

type DB struct {
	*sqlx.DB
}

// Open opens (and creates, if needed) the embedded device store. The kiosk
// has no database server; everything lives in one sqlite file.
func Open(path string) (*DB, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, err
	}

	// The store is accessed from request handlers and background jobs;
	// sqlite wants a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS device_sessions (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS profiles (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	email  TEXT NOT NULL DEFAULT '',
	member INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trips (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	trip_date   TEXT NOT NULL,
	total_items INTEGER NOT NULL,
	total_spent REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trip_items (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	trip_id INTEGER NOT NULL REFERENCES trips(id),
	name    TEXT NOT NULL,
	price   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS wishlist_items (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id          TEXT NOT NULL,
	name             TEXT NOT NULL,
	image_url        TEXT NOT NULL DEFAULT '',
	original_price   REAL NOT NULL,
	discounted_price REAL,
	aisle_location   TEXT NOT NULL DEFAULT '',
	added_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS aisle_pins (
	aisle    TEXT PRIMARY KEY,
	top_pct  REAL NOT NULL,
	left_pct REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS promos (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	title    TEXT NOT NULL,
	subtitle TEXT NOT NULL,
	image_url TEXT NOT NULL,
	accent   TEXT NOT NULL
);
`

package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	// GlobalRoomID is the room every fresh database starts with.
	GlobalRoomID   = "global-chat"
	GlobalRoomName = "Campus Chat"
)

// Connect opens the database for driver and runs migrations.
func Connect(driver, dsn string, log zerolog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == DriverSQLite {
		// one writer; an in-memory database also lives only as long as its connection
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info().Str("driver", driver).Msg("database migrations applied")
	return db, nil
}

// Migrate creates the schema for the connection's driver and seeds the global room.
func Migrate(db *sqlx.DB) error {
	migrations := postgresMigrations
	if db.DriverName() == DriverSQLite {
		migrations = sqliteMigrations
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	_, err := db.Exec(db.Rebind(`INSERT INTO rooms (id, name) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`), GlobalRoomID, GlobalRoomName)
	return err
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS room_members (
            room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(room_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            sender_name TEXT NOT NULL,
            content TEXT NOT NULL,
            client_key TEXT,
            created_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS messages_room_order_idx ON messages (room_id, created_at DESC, id DESC);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS messages_client_key_idx ON messages (room_id, sender_id, client_key);`,
}

var sqliteMigrations = []string{
	`PRAGMA foreign_keys = ON;`,
	`CREATE TABLE IF NOT EXISTS rooms (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS room_members (
            room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(room_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            sender_name TEXT NOT NULL,
            content TEXT NOT NULL,
            client_key TEXT,
            created_at DATETIME NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS messages_room_order_idx ON messages (room_id, created_at DESC, id DESC);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS messages_client_key_idx ON messages (room_id, sender_id, client_key);`,
}

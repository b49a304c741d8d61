package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL CHECK (kind IN ('private', 'group')),
            user_low INT,
            user_high INT,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(user_low, user_high),
            CHECK (kind <> 'private' OR (user_low IS NOT NULL AND user_high IS NOT NULL AND user_low < user_high))
        );`,
		`CREATE TABLE IF NOT EXISTS room_participants (
            room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            PRIMARY KEY(room_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS groups (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            owner_id INT NOT NULL,
            room_id TEXT UNIQUE REFERENCES rooms(id),
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            author_id INT NOT NULL,
            body TEXT NOT NULL,
            client_nonce TEXT NOT NULL DEFAULT '',
            sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS messages_room_sent_idx ON messages (room_id, sent_at);`,
		`CREATE TABLE IF NOT EXISTS profiles (
            user_id INT PRIMARY KEY,
            display_name TEXT NOT NULL,
            avatar_url TEXT NOT NULL DEFAULT ''
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}

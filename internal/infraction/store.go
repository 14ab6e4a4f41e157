// Package infraction provides PostgreSQL-backed storage for moderation
// infractions. Every infraction found in a blocked message becomes one row in
// moderation_infractions with its review status left NULL (pending) for the
// admin workflow that resolves it later.
package infraction

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/bookstage/chatguard/internal/moderation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// validTypes matches the CHECK constraint on moderation_infractions.
var validTypes = map[moderation.InfractionType]bool{
	moderation.TypeEmail:        true,
	moderation.TypePhone:        true,
	moderation.TypeSocial:       true,
	moderation.TypePayment:      true,
	moderation.TypeExternalLink: true,
}

// Store manages infraction records in PostgreSQL.
type Store struct {
	db    *sql.DB
	newID func() uuid.UUID
}

var _ moderation.InfractionRecorder = (*Store)(nil)

// NewStore creates a new infraction store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, newID: uuid.New}
}

// RecordInfraction inserts one infraction row. The detected pattern is stored
// as JSONB; an empty conversation id is stored as NULL.
func (s *Store) RecordInfraction(ctx context.Context, rec moderation.InfractionRecord) error {
	if !validTypes[rec.InfractionType] {
		return fmt.Errorf("infraction: invalid type %q", rec.InfractionType)
	}
	if !rec.Severity.Valid() {
		return fmt.Errorf("infraction: invalid severity %q", rec.Severity)
	}
	if rec.UserID == "" {
		return errors.New("infraction: missing user id")
	}

	patterns, err := json.Marshal(rec.DetectedPatterns)
	if err != nil {
		return fmt.Errorf("infraction: marshal patterns: %w", err)
	}

	const query = `
		INSERT INTO moderation_infractions
			(id, user_id, conversation_id, message_content, infraction_type, detected_patterns, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(ctx, query,
		s.newID(),
		rec.UserID,
		sql.NullString{String: rec.ConversationID, Valid: rec.ConversationID != ""},
		rec.MessageContent,
		string(rec.InfractionType),
		patterns,
		string(rec.Severity),
	)
	if err != nil {
		return fmt.Errorf("infraction: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of infractions recorded for userID within
// the given window.
func (s *Store) CountRecent(ctx context.Context, userID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_infractions
		WHERE user_id = $1
		  AND created_at >= $2`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, time.Now().Add(-window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("infraction: count recent: %w", err)
	}
	return count, nil
}

// Migrate applies the embedded schema migrations to db. It is a no-op when
// the schema is already current. Migrations run on a dedicated connection that
// is released afterwards; db itself stays open.
func Migrate(ctx context.Context, db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("infraction: migrations source: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		src.Close()
		return fmt.Errorf("infraction: migrations conn: %w", err)
	}
	drv, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		src.Close()
		conn.Close()
		return fmt.Errorf("infraction: migrations driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		src.Close()
		drv.Close()
		return fmt.Errorf("infraction: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("infraction: migrate up: %w", err)
	}
	return nil
}

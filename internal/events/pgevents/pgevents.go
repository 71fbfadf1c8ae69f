// Package pgevents is the Postgres-backed Events Repository (spec.md
// §4.5), grounded on explorer/indexer/internal/database/db.go's raw
// database/sql + lib/pq + ON CONFLICT idiom.
package pgevents

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/events"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

//go:embed schema.sql
var schemaFile embed.FS

type Config struct {
	URL            string
	MaxConnections int
	MaxIdle        int
	ConnMaxLife    time.Duration
}

type Repository struct {
	db  *sql.DB
	log *logger.Logger
}

func New(cfg Config) (*Repository, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening events database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging events database: %w", err)
	}

	log := logger.New("pgevents")
	log.Info("connected to events database")
	return &Repository{db: db, log: log}, nil
}

func (r *Repository) InitSchema() error {
	schema, err := schemaFile.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading events schema: %w", err)
	}
	if _, err := r.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("applying events schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() error { return r.db.Close() }

// Create is idempotent on (signature, type, nonce): a conflicting insert
// yields (nil, nil), matching the MemRepository's dedup contract.
func (r *Repository) Create(ctx context.Context, e *domain.StoredEvent) (*domain.StoredEvent, error) {
	var slot sql.NullInt64
	if e.Slot != nil {
		slot = sql.NullInt64{Int64: *e.Slot, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO chain_events (signature, slot, chain, type, nonce, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (signature, type, nonce) DO NOTHING
		RETURNING id, signature, slot, chain, type, nonce, payload, created_at
	`, e.Signature, slot, e.Chain, e.Type, e.Nonce, e.Payload)

	stored, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return stored, nil
}

func scanEvent(row *sql.Row) (*domain.StoredEvent, error) {
	var e domain.StoredEvent
	var slot sql.NullInt64
	if err := row.Scan(&e.ID, &e.Signature, &slot, &e.Chain, &e.Type, &e.Nonce, &e.Payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	if slot.Valid {
		e.Slot = &slot.Int64
	}
	return &e, nil
}

func (r *Repository) FindExistingSignatures(ctx context.Context, signatures []string) (map[string]bool, error) {
	found := make(map[string]bool, len(signatures))
	if len(signatures) == 0 {
		return found, nil
	}

	placeholders := make([]string, len(signatures))
	args := make([]interface{}, len(signatures))
	for i, s := range signatures {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT signature FROM chain_events WHERE signature IN (%s)", strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return nil, fmt.Errorf("finding existing signatures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, err
		}
		found[sig] = true
	}
	return found, rows.Err()
}

func (r *Repository) ListAfterCreatedAt(ctx context.Context, createdAfter time.Time, afterID int64, limit int) ([]*domain.StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, signature, slot, chain, type, nonce, payload, created_at
		FROM chain_events
		WHERE (created_at > $1) OR (created_at = $1 AND id > $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, createdAfter, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var out []*domain.StoredEvent
	for rows.Next() {
		var e domain.StoredEvent
		var slot sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Signature, &slot, &e.Chain, &e.Type, &e.Nonce, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		if slot.Valid {
			e.Slot = &slot.Int64
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

var _ events.Repository = (*Repository)(nil)

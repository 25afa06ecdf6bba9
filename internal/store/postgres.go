package store

import (
	"context"
	"fmt"
	"time"

	"collab-service/internal/models"
	"collab-service/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresStore{pool: pool}, nil
}

var _ ActivityStore = (*PostgresStore)(nil)

func (db *PostgresStore) SaveActivityEvent(ctx context.Context, roomID string, ev models.ActivityEvent) error {
	query := `
		INSERT INTO room_activity (id, room_id, actor_id, actor_name, event_type, summary, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, ev.ID, roomID, ev.ActorID, ev.ActorName, string(ev.Type), ev.Summary, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save activity event: %w", err)
	}
	return nil
}

func (db *PostgresStore) SaveSessionEvent(ctx context.Context, roomID, userID, sessionID, kind string, at time.Time) error {
	query := `
		INSERT INTO room_sessions (room_id, user_id, session_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := db.pool.Exec(ctx, query, roomID, userID, sessionID, kind, at)
	if err != nil {
		return fmt.Errorf("failed to save session event: %w", err)
	}
	return nil
}

func (db *PostgresStore) Close() error {
	db.pool.Close()
	return nil
}

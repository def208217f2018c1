package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stacyai/kiosk-agent-go/internal/model"
)

// DeviceSessionRepository persists the device session id so it stays stable
// across agent restarts within one trip.
type DeviceSessionRepository interface {
	Current(ctx context.Context) (*model.Session, error)
	Create(ctx context.Context) (*model.Session, error)
	End(ctx context.Context, id string) error
	// EnsureCurrent returns the open device session, creating one if none.
	EnsureCurrent(ctx context.Context) (*model.Session, error)
}

type deviceSessionRepo struct {
	db DBTX
}

func NewDeviceSessionRepository(db *sqlx.DB) DeviceSessionRepository {
	return &deviceSessionRepo{db: db}
}

func (r *deviceSessionRepo) Current(ctx context.Context) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT id, started_at, ended_at FROM device_sessions
		WHERE ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *deviceSessionRepo) Create(ctx context.Context) (*model.Session, error) {
	session := &model.Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_sessions (id, started_at) VALUES (?, ?)
	`, session.ID, session.StartedAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *deviceSessionRepo) End(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL
	`, time.Now(), id)
	return err
}

func (r *deviceSessionRepo) EnsureCurrent(ctx context.Context) (*model.Session, error) {
	session, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	return r.Create(ctx)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SlotRepository stores the timer's opaque blobs, one row per owner and slot.
type SlotRepository struct {
	db *sql.DB
}

func NewSlotRepository(db *sql.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) LoadSlot(ctx context.Context, owner, slot string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRowContext(
		ctx,
		`SELECT payload FROM timer_slots WHERE user_id = ? AND slot = ?`,
		owner,
		slot,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", slot, err)
	}
	return payload, nil
}

func (r *SlotRepository) SaveSlot(ctx context.Context, owner, slot string, payload []byte) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO timer_slots (user_id, slot, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, slot) DO UPDATE
		 SET payload = excluded.payload,
		     updated_at = excluded.updated_at`,
		owner,
		slot,
		payload,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save slot %s: %w", slot, err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"paralello/backend/internal/model"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Insert(ctx context.Context, record *model.PhaseRecord) error {
	var taskID interface{}
	if record.TaskID != nil {
		taskID = *record.TaskID
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO phase_history (
			id, user_id, phase, planned_seconds, outcome, cycle_number, task_id, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.Phase,
		record.PlannedSeconds,
		record.Outcome,
		record.CycleNumber,
		taskID,
		formatTime(record.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert phase record: %w", err)
	}
	return nil
}

func (r *HistoryRepository) List(ctx context.Context, userID string, limit int) ([]model.PhaseRecord, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, phase, planned_seconds, outcome, cycle_number, task_id, ended_at
		 FROM phase_history
		 WHERE user_id = ?
		 ORDER BY ended_at DESC, rowid DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list phase history: %w", err)
	}
	defer rows.Close()

	records := make([]model.PhaseRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanPhaseRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phase history: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPhaseRecord(s scanner) (*model.PhaseRecord, error) {
	record := model.PhaseRecord{}
	var taskID sql.NullString
	var endedAt string
	err := s.Scan(
		&record.ID,
		&record.UserID,
		&record.Phase,
		&record.PlannedSeconds,
		&record.Outcome,
		&record.CycleNumber,
		&taskID,
		&endedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan phase record: %w", err)
	}

	if taskID.Valid {
		value := taskID.String
		record.TaskID = &value
	}

	parsedEndedAt, err := parseTime(endedAt)
	if err != nil {
		return nil, fmt.Errorf("parse phase ended_at: %w", err)
	}
	record.EndedAt = parsedEndedAt
	return &record, nil
}

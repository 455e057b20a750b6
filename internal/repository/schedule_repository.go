package repository

import (
	"context"
	"database/sql"
	"fmt"

	"paralello/backend/internal/model"
)

type ScheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create stores the schedule and its slots in one transaction.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *model.Schedule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO schedules (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		schedule.ID,
		schedule.UserID,
		schedule.Title,
		formatTime(schedule.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	for _, slot := range schedule.Slots {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO schedule_slots (schedule_id, day, start_time, end_time, subject_id)
			 VALUES (?, ?, ?, ?, ?)`,
			schedule.ID,
			slot.Day,
			slot.StartTime,
			slot.EndTime,
			slot.SubjectID,
		); err != nil {
			return fmt.Errorf("insert schedule slot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) ListByUser(ctx context.Context, userID string) ([]model.Schedule, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, title, created_at
		 FROM schedules
		 WHERE user_id = ?
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]model.Schedule, 0)
	for rows.Next() {
		schedule, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		schedules = append(schedules, *schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}

	for i := range schedules {
		slots, err := r.listSlots(ctx, schedules[i].ID)
		if err != nil {
			return nil, err
		}
		schedules[i].Slots = slots
	}
	return schedules, nil
}

func (r *ScheduleRepository) Get(ctx context.Context, userID, id string) (*model.Schedule, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, title, created_at
		 FROM schedules
		 WHERE id = ? AND user_id = ?`,
		id,
		userID,
	)
	schedule, err := scanSchedule(row)
	if err != nil {
		return nil, err
	}

	slots, err := r.listSlots(ctx, schedule.ID)
	if err != nil {
		return nil, err
	}
	schedule.Slots = slots
	return schedule, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(
		ctx,
		`DELETE FROM schedules WHERE id = ? AND user_id = ?`,
		id,
		userID,
	)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) listSlots(ctx context.Context, scheduleID string) ([]model.ScheduleSlot, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT day, start_time, end_time, subject_id
		 FROM schedule_slots
		 WHERE schedule_id = ?
		 ORDER BY day, start_time`,
		scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedule slots: %w", err)
	}
	defer rows.Close()

	slots := make([]model.ScheduleSlot, 0)
	for rows.Next() {
		var slot model.ScheduleSlot
		if err := rows.Scan(&slot.Day, &slot.StartTime, &slot.EndTime, &slot.SubjectID); err != nil {
			return nil, fmt.Errorf("scan schedule slot: %w", err)
		}
		if subject, ok := model.SubjectByID(slot.SubjectID); ok {
			slot.Subject = subject.Name
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule slots: %w", err)
	}
	return slots, nil
}

func scanSchedule(s scanner) (*model.Schedule, error) {
	schedule := model.Schedule{}
	var createdAt string
	if err := s.Scan(&schedule.ID, &schedule.UserID, &schedule.Title, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse schedule created_at: %w", err)
	}
	schedule.CreatedAt = parsedCreatedAt
	return &schedule, nil
}

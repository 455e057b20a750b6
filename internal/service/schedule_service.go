package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "paralello/backend/internal/errors"
	"paralello/backend/internal/model"
	"paralello/backend/internal/repository"
)

type ScheduleService struct {
	repo *repository.ScheduleRepository
}

// Catalog lists what a schedule slot may hold.
type Catalog struct {
	Days     []string        `json:"days"`
	Hours    []string        `json:"hours"`
	Subjects []model.Subject `json:"subjects"`
}

func NewScheduleService(repo *repository.ScheduleRepository) *ScheduleService {
	return &ScheduleService{repo: repo}
}

func (s *ScheduleService) Catalog() Catalog {
	return Catalog{
		Days:     model.ScheduleDays,
		Hours:    model.ScheduleHours,
		Subjects: model.Subjects,
	}
}

func (s *ScheduleService) Create(ctx context.Context, userID string, input model.ScheduleInput) (*model.Schedule, *apperrors.APIError) {
	if err := input.Normalize(); err != nil {
		return nil, apperrors.BadRequest("invalid_schedule", err.Error())
	}

	slots := input.Slots
	if slots == nil {
		slots = []model.ScheduleSlot{}
	}
	schedule := model.Schedule{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     input.Title,
		Slots:     slots,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, &schedule); err != nil {
		return nil, apperrors.Internal("failed to create schedule")
	}
	return &schedule, nil
}

func (s *ScheduleService) List(ctx context.Context, userID string) ([]model.Schedule, *apperrors.APIError) {
	schedules, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list schedules")
	}
	return schedules, nil
}

func (s *ScheduleService) Get(ctx context.Context, userID, id string) (*model.Schedule, *apperrors.APIError) {
	schedule, err := s.repo.Get(ctx, userID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("schedule_not_found", "schedule not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get schedule")
	}
	return schedule, nil
}

func (s *ScheduleService) Delete(ctx context.Context, userID, id string) *apperrors.APIError {
	err := s.repo.Delete(ctx, userID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("schedule_not_found", "schedule not found")
	}
	if err != nil {
		return apperrors.Internal("failed to delete schedule")
	}
	return nil
}

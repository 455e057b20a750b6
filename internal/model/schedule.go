package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Weekly timetable. Days run 0 (Sunday) to 6 (Saturday); each slot is one
// hour starting on the hour between 07:00 and 17:00.
var (
	ScheduleDays = []string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}

	ScheduleHours = []string{
		"07:00", "08:00", "09:00", "10:00", "11:00", "12:00",
		"13:00", "14:00", "15:00", "16:00", "17:00",
	}

	Subjects = []Subject{
		{ID: 1, Name: "Língua Portuguesa"},
		{ID: 2, Name: "Literatura"},
		{ID: 3, Name: "Redação"},
		{ID: 4, Name: "Língua Estrangeira"},
		{ID: 5, Name: "Matemática"},
		{ID: 6, Name: "Física"},
		{ID: 7, Name: "Química"},
		{ID: 8, Name: "Biologia"},
		{ID: 9, Name: "História"},
		{ID: 10, Name: "Geografia"},
		{ID: 11, Name: "Sociologia"},
		{ID: 12, Name: "Filosofia"},
		{ID: 13, Name: "Pausa"},
	}
)

type Subject struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Schedule struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Title     string         `json:"title"`
	Slots     []ScheduleSlot `json:"slots"`
	CreatedAt time.Time      `json:"createdAt"`
}

type ScheduleSlot struct {
	Day       int    `json:"day" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"schedule_hour"`
	EndTime   string `json:"endTime"`
	SubjectID int    `json:"subjectId" validate:"subject"`
	Subject   string `json:"subject"`
}

type ScheduleInput struct {
	Title string         `validate:"required,max=120"`
	Slots []ScheduleSlot `validate:"max=77,dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("schedule_hour", func(fl validator.FieldLevel) bool {
		return slices.Contains(ScheduleHours, fl.Field().String())
	})
	_ = validate.RegisterValidation("subject", func(fl validator.FieldLevel) bool {
		_, ok := SubjectByID(int(fl.Field().Int()))
		return ok
	})
}

func SubjectByID(id int) (Subject, bool) {
	for _, s := range Subjects {
		if s.ID == id {
			return s, true
		}
	}
	return Subject{}, false
}

// Normalize trims the title, fills derived slot fields and checks the input.
// A (day, hour) cell may be assigned once.
func (in *ScheduleInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return err
	}
	seen := make(map[string]bool, len(in.Slots))
	for i := range in.Slots {
		slot := &in.Slots[i]
		key := fmt.Sprintf("%d@%s", slot.Day, slot.StartTime)
		if seen[key] {
			return fmt.Errorf("slot %s %s assigned twice", ScheduleDays[slot.Day], slot.StartTime)
		}
		seen[key] = true

		start, _ := time.Parse("15:04", slot.StartTime)
		slot.EndTime = start.Add(time.Hour).Format("15:04")
		subject, _ := SubjectByID(slot.SubjectID)
		slot.Subject = subject.Name
	}
	return nil
}

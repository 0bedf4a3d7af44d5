package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a timer schedule cannot be interpreted.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Schedule is a parsed recurrence for a schedule-mode timer step.
// Only standard 5-field cron expressions (minute hour day month weekday) are understood.
type Schedule struct {
	// Expression is the cron expression as written in the step configuration
	Expression string `json:"expression" validate:"required"`

	// Location is the timezone the expression is evaluated in
	Location *time.Location `json:"-"`

	schedule cron.Schedule
}

// ParseSchedule parses expression in the named timezone. An empty timezone means UTC.
func ParseSchedule(expression, timezone string) (*Schedule, error) {
	location := time.UTC

	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, timezone)
		}

		location = loc
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return &Schedule{
		Expression: expression,
		Location:   location,
		schedule:   cronSchedule,
	}, nil
}

// Next returns the first occurrence strictly after reference, expressed in UTC.
func (s *Schedule) Next(reference time.Time) time.Time {
	return s.schedule.Next(reference.In(s.Location)).UTC()
}

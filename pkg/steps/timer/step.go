// Package timer provides the timer step handler. Timers never wait: they compute
// the earliest time the instance may move on and hand it back to the caller.
package timer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

var (
	ErrInvalidDelay    = errors.New("invalid timer delay")
	ErrInvalidTimezone = errors.New("invalid timer timezone")
)

var delayPattern = regexp.MustCompile(`^(\d+)\s*([smhd])$`)

var delayUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseDelay parses a delay of the form N followed by s, m, h or d.
func ParseDelay(value string) (time.Duration, error) {
	matches := delayPattern.FindStringSubmatch(strings.TrimSpace(strings.ToLower(value)))
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, value)
	}

	amount, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, value)
	}

	unit := delayUnits[matches[2]]
	if amount > int64(math.MaxInt64/unit) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidDelay, value)
	}

	return time.Duration(amount) * unit, nil
}

// Step computes a not-before time from a delay or a schedule.
type Step struct {
	clock protocol.Clock
}

// NewStep creates a timer handler reading the current time from clock.
func NewStep(clock protocol.Clock) *Step {
	if clock == nil {
		clock = protocol.SystemClock
	}

	return &Step{clock: clock}
}

// Type returns the step type.
func (s *Step) Type() models.StepType {
	return models.StepTypeTimer
}

// Execute resolves the timer. In delay mode NotBefore is now plus the delay. In
// schedule mode a cron expression yields its next occurrence in the configured
// timezone; any other schedule value is passed through uninterpreted.
func (s *Step) Execute(_ context.Context, step *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error) {
	cfg, ok := step.TimerConfig()
	if !ok || strings.TrimSpace(cfg.Value) == "" {
		return models.ExecutionResult{}, fmt.Errorf("step %s: timer value is not configured", step.ID)
	}

	now := s.clock.Now()
	result := models.ExecutionResult{Data: models.CopyData(data)}

	mode := cfg.Mode
	if mode == "" {
		mode = models.TimerModeSchedule
		if delayPattern.MatchString(strings.TrimSpace(strings.ToLower(cfg.Value))) {
			mode = models.TimerModeDelay
		}
	}

	switch mode {
	case models.TimerModeDelay:
		delay, err := ParseDelay(cfg.Value)
		if err != nil {
			return models.ExecutionResult{}, err
		}

		notBefore := now.Add(delay).UTC()
		result.NotBefore = &notBefore
	case models.TimerModeSchedule:
		if cfg.Timezone != "" {
			if _, err := time.LoadLocation(cfg.Timezone); err != nil {
				return models.ExecutionResult{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, cfg.Timezone)
			}
		}

		result.Schedule = cfg.Value

		schedule, err := models.ParseSchedule(cfg.Value, cfg.Timezone)
		if err == nil {
			next := schedule.Next(now)
			result.NotBefore = &next
		}
	default:
		return models.ExecutionResult{}, fmt.Errorf("step %s: unknown timer mode %q", step.ID, cfg.Mode)
	}

	if result.NotBefore != nil {
		result.Output = map[string]any{"not_before": result.NotBefore.Format(time.RFC3339)}
	}

	return result, nil
}

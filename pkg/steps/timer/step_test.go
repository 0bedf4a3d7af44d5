package timer

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

func newTestStep() *Step {
	return NewStep(protocol.ClockFunc(func() time.Time { return fixedNow }))
}

func timerStep(cfg *models.TimerConfig) *models.WorkflowStep {
	return &models.WorkflowStep{ID: "wait", Name: "Wait", Type: models.StepTypeTimer, Config: cfg}
}

func TestParseDelay(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
		wantErr  bool
	}{
		{value: "30s", expected: 30 * time.Second},
		{value: "5m", expected: 5 * time.Minute},
		{value: "2 h", expected: 2 * time.Hour},
		{value: "1d", expected: 24 * time.Hour},
		{value: "10", wantErr: true},
		{value: "5w", wantErr: true},
		{value: "-5m", wantErr: true},
		{value: "106751d", expected: 106751 * 24 * time.Hour},
		{value: "200000d", wantErr: true},
		{value: "99999999999999999999s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			delay, err := ParseDelay(tt.value)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDelay)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, delay)
		})
	}
}

func TestStep_ExecuteDelay(t *testing.T) {
	result, err := newTestStep().Execute(context.Background(),
		timerStep(&models.TimerConfig{Mode: models.TimerModeDelay, Value: "2h"}), map[string]any{"a": 1})
	require.NoError(t, err)
	require.NotNil(t, result.NotBefore)
	assert.Equal(t, fixedNow.Add(2*time.Hour), *result.NotBefore)
	assert.Equal(t, map[string]any{"a": 1}, result.Data)

	_, err = newTestStep().Execute(context.Background(),
		timerStep(&models.TimerConfig{Mode: models.TimerModeDelay, Value: "soon"}), nil)
	require.ErrorIs(t, err, ErrInvalidDelay)

	_, err = newTestStep().Execute(context.Background(),
		timerStep(&models.TimerConfig{Mode: models.TimerModeDelay, Value: "200000d"}), nil)
	require.ErrorIs(t, err, ErrInvalidDelay)
}

func TestStep_ExecuteNilConfig(t *testing.T) {
	step := &models.WorkflowStep{ID: "wait", Type: models.StepTypeTimer, Config: (*models.TimerConfig)(nil)}

	_, err := newTestStep().Execute(context.Background(), step, nil)
	require.ErrorContains(t, err, "timer value is not configured")
}

func TestStep_ExecuteInfersMode(t *testing.T) {
	result, err := newTestStep().Execute(context.Background(), timerStep(&models.TimerConfig{Value: "15m"}), nil)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(15*time.Minute), *result.NotBefore)
	assert.Empty(t, result.Schedule)
}

func TestStep_ExecuteSchedule(t *testing.T) {
	result, err := newTestStep().Execute(context.Background(),
		timerStep(&models.TimerConfig{Mode: models.TimerModeSchedule, Value: "0 9 * * *", Timezone: "Europe/Lisbon"}), nil)
	require.NoError(t, err)
	require.NotNil(t, result.NotBefore)
	// Lisbon is on UTC in March before DST starts
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), *result.NotBefore)
	assert.Equal(t, "0 9 * * *", result.Schedule)
}

func TestStep_ExecuteOpaqueSchedule(t *testing.T) {
	result, err := newTestStep().Execute(context.Background(),
		timerStep(&models.TimerConfig{Mode: models.TimerModeSchedule, Value: "every business day"}), nil)
	require.NoError(t, err)
	assert.Nil(t, result.NotBefore)
	assert.Equal(t, "every business day", result.Schedule)
}

func TestStep_ExecuteFailures(t *testing.T) {
	_, err := newTestStep().Execute(context.Background(),
		timerStep(&models.TimerConfig{Mode: models.TimerModeSchedule, Value: "0 9 * * *", Timezone: "Nowhere/City"}), nil)
	require.ErrorIs(t, err, ErrInvalidTimezone)

	_, err = newTestStep().Execute(context.Background(), timerStep(&models.TimerConfig{}), nil)
	require.Error(t, err)

	_, err = newTestStep().Execute(context.Background(), timerStep(&models.TimerConfig{Mode: "later", Value: "1m"}), nil)
	require.Error(t, err)
}

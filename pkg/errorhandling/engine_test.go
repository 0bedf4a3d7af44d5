package errorhandling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Send(ctx context.Context, channel, message string, recipients []string) error {
	args := m.Called(ctx, channel, message, recipients)

	return args.Error(0)
}

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)

	return ctx.Err()
}

var errCall = errors.New("upstream unavailable")

func intPtr(v int) *int { return &v }

// failing returns an ExecuteFunc that fails `failures` times before succeeding.
func failing(failures int, calls *int) ExecuteFunc {
	return func(ctx context.Context) (models.ExecutionResult, error) {
		*calls++
		if *calls <= failures {
			return models.ExecutionResult{}, errCall
		}

		return models.ExecutionResult{Output: "ok"}, nil
	}
}

func newTestEngine(dispatcher *mockDispatcher, sleeper Sleeper) *Engine {
	if dispatcher == nil {
		return NewEngine(nil, log.Discard(), WithSleeper(sleeper))
	}

	return NewEngine(dispatcher, log.Discard(), WithSleeper(sleeper))
}

func TestGuard_SuccessIgnoresHandlers(t *testing.T) {
	sleeper := &recordingSleeper{}
	engine := newTestEngine(nil, sleeper)
	step := &models.WorkflowStep{ID: "s", ErrorHandlers: []models.ErrorHandler{{Type: models.ErrorHandlerRetry}}}

	calls := 0
	result, err := engine.Guard(context.Background(), step, nil, failing(0, &calls))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.waits)
}

func TestGuard_NoHandlersPropagates(t *testing.T) {
	engine := newTestEngine(nil, &recordingSleeper{})

	calls := 0
	_, err := engine.Guard(context.Background(), &models.WorkflowStep{ID: "s"}, nil, failing(10, &calls))
	require.ErrorIs(t, err, errCall)
	assert.Equal(t, 1, calls)
}

func TestGuard_RetryRecovers(t *testing.T) {
	sleeper := &recordingSleeper{}
	engine := newTestEngine(nil, sleeper)
	step := &models.WorkflowStep{ID: "s", ErrorHandlers: []models.ErrorHandler{
		{Type: models.ErrorHandlerRetry, MaxRetries: intPtr(3), RetryDelay: intPtr(2)},
	}}

	calls := 0
	result, err := engine.Guard(context.Background(), step, nil, failing(2, &calls))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.waits)
}

func TestGuard_RetryExhaustedUsesDefaults(t *testing.T) {
	sleeper := &recordingSleeper{}
	engine := newTestEngine(nil, sleeper)
	step := &models.WorkflowStep{ID: "s", ErrorHandlers: []models.ErrorHandler{{Type: models.ErrorHandlerRetry}}}

	calls := 0
	_, err := engine.Guard(context.Background(), step, nil, failing(100, &calls))
	require.ErrorIs(t, err, errCall)
	assert.Equal(t, 1+models.DefaultMaxRetries, calls)
	assert.Len(t, sleeper.waits, models.DefaultMaxRetries)
	assert.Equal(t, models.DefaultRetryDelay, sleeper.waits[0])
}

func TestGuard_RetryThenFallback(t *testing.T) {
	engine := newTestEngine(nil, &recordingSleeper{})
	step := &models.WorkflowStep{ID: "s", ErrorHandlers: []models.ErrorHandler{
		{Type: models.ErrorHandlerRetry, MaxRetries: intPtr(1), RetryDelay: intPtr(0)},
		{Type: models.ErrorHandlerFallback, FallbackValue: json.RawMessage(`{"approved": false}`)},
	}}

	calls := 0
	data := map[string]any{"amount": 10}
	result, err := engine.Guard(context.Background(), step, data, failing(100, &calls))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, result.Fallback)
	assert.Equal(t, map[string]any{"approved": false}, result.Output)
	assert.Equal(t, data, result.Data)
}

func TestGuard_LogsWithContextLogger(t *testing.T) {
	var buf bytes.Buffer

	engine := newTestEngine(nil, &recordingSleeper{})
	step := &models.WorkflowStep{ID: "s", ErrorHandlers: []models.ErrorHandler{
		{Type: models.ErrorHandlerFallback, FallbackValue: json.RawMessage(`true`)},
	}}

	ctx := log.ContextWithLogger(context.Background(), log.New(&buf, "info").With("instance_id", "inst-1"))

	calls := 0
	_, err := engine.Guard(ctx, step, nil, failing(100, &calls))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "using fallback value")
	assert.Contains(t, buf.String(), "instance_id=inst-1")
	assert.Contains(t, buf.String(), "handler_type=fallback")
}

func TestGuard_InvalidFallbackIsSkipped(t *testing.T) {
	engine := newTestEngine(nil, &recordingSleeper{})
	step := &models.WorkflowStep{ID: "s", ErrorHandlers: []models.ErrorHandler{
		{Type: models.ErrorHandlerFallback, FallbackValue: json.RawMessage(`{not json`)},
	}}

	calls := 0
	_, err := engine.Guard(context.Background(), step, nil, failing(100, &calls))
	require.ErrorIs(t, err, errCall)
}

func TestGuard_NotificationThenPropagates(t *testing.T) {
	dispatcher := &mockDispatcher{}
	dispatcher.On("Send", mock.Anything, "slack", "Step Call vendor failed: upstream unavailable (order 7)", []string{"#ops"}).
		Return(nil).Once()

	engine := newTestEngine(dispatcher, &recordingSleeper{})
	step := &models.WorkflowStep{ID: "call", Name: "Call vendor", ErrorHandlers: []models.ErrorHandler{
		{
			Type:                 models.ErrorHandlerNotification,
			Channel:              "slack",
			NotificationTemplate: "Step {{ .step_name }} failed: {{ .error }} (order {{ .order }})",
			Recipients:           []string{"#ops"},
		},
	}}

	calls := 0
	_, err := engine.Guard(context.Background(), step, map[string]any{"order": 7}, failing(100, &calls))
	require.ErrorIs(t, err, errCall)
	assert.Equal(t, 1, calls)
	dispatcher.AssertExpectations(t)
}

func TestGuard_NotificationSendFailureDoesNotStopChain(t *testing.T) {
	dispatcher := &mockDispatcher{}
	dispatcher.On("Send", mock.Anything, DefaultNotificationChannel, "failed", mock.Anything).
		Return(errors.New("smtp down"))

	engine := newTestEngine(dispatcher, &recordingSleeper{})
	step := &models.WorkflowStep{ID: "s", ErrorHandlers: []models.ErrorHandler{
		{Type: models.ErrorHandlerNotification, NotificationTemplate: "failed"},
		{Type: models.ErrorHandlerFallback, FallbackValue: json.RawMessage(`"default"`)},
	}}

	calls := 0
	result, err := engine.Guard(context.Background(), step, nil, failing(100, &calls))
	require.NoError(t, err)
	assert.Equal(t, "default", result.Output)
	dispatcher.AssertExpectations(t)
}

func TestGuard_CancelledDuringRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(nil, TimerSleeper)
	step := &models.WorkflowStep{ID: "s", ErrorHandlers: []models.ErrorHandler{
		{Type: models.ErrorHandlerRetry, MaxRetries: intPtr(5), RetryDelay: intPtr(60)},
		{Type: models.ErrorHandlerFallback, FallbackValue: json.RawMessage(`1`)},
	}}

	calls := 0
	_, err := engine.Guard(ctx, step, nil, failing(100, &calls))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

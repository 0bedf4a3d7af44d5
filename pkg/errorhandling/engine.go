// Package errorhandling applies a step's ordered error handlers when the step fails.
package errorhandling

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/template"
)

// DefaultNotificationChannel is used by notification handlers that do not name one.
const DefaultNotificationChannel = "email"

// ExecuteFunc runs a step once.
type ExecuteFunc func(ctx context.Context) (models.ExecutionResult, error)

// Sleeper waits between retry attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper waits on a real timer and stops early when ctx is done.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})

// Engine guards step execution with the step's error handlers.
type Engine struct {
	dispatcher protocol.Dispatcher
	sleeper    Sleeper
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleeper replaces the retry sleeper.
func WithSleeper(sleeper Sleeper) Option {
	return func(e *Engine) {
		e.sleeper = sleeper
	}
}

// NewEngine creates an error handling engine. dispatcher delivers notification
// handler messages and may be nil, in which case notifications are only logged.
func NewEngine(dispatcher protocol.Dispatcher, logger *slog.Logger, opts ...Option) *Engine {
	engine := &Engine{
		dispatcher: dispatcher,
		sleeper:    TimerSleeper,
		logger:     logger.With("module", "errorhandling"),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Guard runs execute. On failure the step's handlers are applied in declared order:
// retry re-runs execute, fallback ends the chain with a synthetic success and
// notification reports the failure and lets it propagate. When no handler recovers,
// the last error is returned. Handlers are ignored when execute succeeds.
// Handler activity is logged with the logger carried by ctx, when there is one.
func (e *Engine) Guard(
	ctx context.Context,
	step *models.WorkflowStep,
	data map[string]any,
	execute ExecuteFunc,
) (models.ExecutionResult, error) {
	result, err := execute(ctx)
	if err == nil {
		return result, nil
	}

	for idx, handler := range step.ErrorHandlers {
		logger := log.FromContext(ctx, e.logger.With("step_id", step.ID)).
			With("handler_index", idx, "handler_type", handler.Type)

		switch handler.Type {
		case models.ErrorHandlerRetry:
			result, err = e.retry(ctx, logger, handler, execute, err)
			if err == nil {
				return result, nil
			}

			if ctx.Err() != nil {
				return models.ExecutionResult{}, err
			}
		case models.ErrorHandlerFallback:
			value, parseErr := handler.Fallback()
			if parseErr != nil {
				logger.WarnContext(ctx, "fallback value is not valid JSON, handler skipped", "error", parseErr)

				continue
			}

			logger.InfoContext(ctx, "step failed, using fallback value", "error", err)

			return models.ExecutionResult{
				Data:     models.CopyData(data),
				Output:   value,
				Fallback: true,
			}, nil
		case models.ErrorHandlerNotification:
			e.notify(ctx, logger, handler, step, data, err)
		default:
			logger.WarnContext(ctx, "unknown error handler type ignored")
		}
	}

	return models.ExecutionResult{}, err
}

func (e *Engine) retry(
	ctx context.Context,
	logger *slog.Logger,
	handler models.ErrorHandler,
	execute ExecuteFunc,
	lastErr error,
) (models.ExecutionResult, error) {
	attempts := handler.Retries()
	delay := handler.Delay()

	for attempt := 1; attempt <= attempts; attempt++ {
		logger.InfoContext(ctx, "retrying step", "attempt", attempt, "max_retries", attempts, "delay", delay, "error", lastErr)

		if err := e.sleeper.Sleep(ctx, delay); err != nil {
			return models.ExecutionResult{}, err
		}

		result, err := execute(ctx)
		if err == nil {
			logger.InfoContext(ctx, "step recovered after retry", "attempt", attempt)

			return result, nil
		}

		lastErr = err
	}

	logger.WarnContext(ctx, "retries exhausted", "max_retries", attempts, "error", lastErr)

	return models.ExecutionResult{}, lastErr
}

func (e *Engine) notify(
	ctx context.Context,
	logger *slog.Logger,
	handler models.ErrorHandler,
	step *models.WorkflowStep,
	data map[string]any,
	stepErr error,
) {
	view := models.CopyData(data)
	if view == nil {
		view = make(map[string]any)
	}

	view["error"] = stepErr.Error()
	view["step_id"] = step.ID
	view["step_name"] = step.Name

	message, err := template.RenderString(handler.NotificationTemplate, view)
	if err != nil {
		logger.WarnContext(ctx, "failed to render notification template", "error", err)

		message = handler.NotificationTemplate
	}

	if e.dispatcher == nil {
		logger.WarnContext(ctx, "step failure notification not sent, no dispatcher", "message", message)

		return
	}

	channel := handler.Channel
	if channel == "" {
		channel = DefaultNotificationChannel
	}

	recipients, err := template.RenderAll(handler.Recipients, view)
	if err != nil {
		logger.WarnContext(ctx, "failed to render notification recipients", "error", err)

		recipients = handler.Recipients
	}

	if err := e.dispatcher.Send(ctx, channel, message, recipients); err != nil {
		logger.ErrorContext(ctx, "failed to send step failure notification", "channel", channel, "error", err)

		return
	}

	logger.InfoContext(ctx, "step failure notification sent", "channel", channel, "recipients", len(recipients))
}

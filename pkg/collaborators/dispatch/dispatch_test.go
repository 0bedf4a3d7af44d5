package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys   []string
	events []eventbus.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event eventbus.Event) error {
	if p.err != nil {
		return p.err
	}

	p.keys = append(p.keys, key)
	p.events = append(p.events, event)

	return nil
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer

	dispatcher := NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := protocol.ContextWithScope(context.Background(), protocol.ExecutionScope{InstanceID: "inst-1", StepID: "notify"})

	require.NoError(t, dispatcher.Send(ctx, "email", "hello", []string{"a@example.com"}))
	assert.Contains(t, buf.String(), `"instance_id":"inst-1"`)
	assert.Contains(t, buf.String(), `"channel":"email"`)
}

func TestLogDispatcher_UsesContextLogger(t *testing.T) {
	var fallback, scoped bytes.Buffer

	dispatcher := NewLogDispatcher(slog.New(slog.NewJSONHandler(&fallback, nil)))
	ctx := log.ContextWithLogger(context.Background(),
		slog.New(slog.NewJSONHandler(&scoped, nil)).With("instance_id", "inst-2"))

	require.NoError(t, dispatcher.Send(ctx, "sms", "ping", []string{"+100"}))

	assert.Empty(t, fallback.String())
	assert.Contains(t, scoped.String(), `"instance_id":"inst-2"`)
	assert.Contains(t, scoped.String(), `"channel":"sms"`)
}

func TestEventDispatcher_PublishesMessage(t *testing.T) {
	publisher := &recordingPublisher{}
	dispatcher := NewEventDispatcher(publisher)

	ctx := protocol.ContextWithScope(context.Background(), protocol.ExecutionScope{
		DefinitionID: "def-1",
		InstanceID:   "inst-1",
		StepID:       "notify",
	})

	require.NoError(t, dispatcher.Send(ctx, "sms", "approved", []string{"+5511"}))
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "inst-1", publisher.keys[0])

	event, ok := publisher.events[0].(events.MessageDispatched)
	require.True(t, ok)
	assert.Equal(t, "def-1", event.DefinitionID)
	assert.Equal(t, "sms", event.Channel)
	assert.Equal(t, "approved", event.Message)
	assert.Equal(t, []string{"+5511"}, event.Recipients)
}

func TestEventDispatcher_WithoutScopeKeysByChannel(t *testing.T) {
	publisher := &recordingPublisher{}

	require.NoError(t, NewEventDispatcher(publisher).Send(context.Background(), "email", "x", []string{"a"}))
	assert.Equal(t, []string{"email"}, publisher.keys)
}

func TestEventDispatcher_PublishError(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}

	err := NewEventDispatcher(publisher).Send(context.Background(), "email", "x", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestMultiDispatcher_StopsAtFirstError(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("boom")}
	after := &recordingPublisher{}

	multi := MultiDispatcher{NewEventDispatcher(failing), NewEventDispatcher(after)}

	require.Error(t, multi.Send(context.Background(), "email", "x", []string{"a"}))
	assert.Empty(t, after.events)
}

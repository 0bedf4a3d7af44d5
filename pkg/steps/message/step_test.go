package message

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
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

func messageStep(cfg *models.MessageConfig) *models.WorkflowStep {
	return &models.WorkflowStep{ID: "welcome", Name: "Welcome", Type: models.StepTypeMessage, Config: cfg}
}

func TestStep_ExecuteSends(t *testing.T) {
	dispatcher := &mockDispatcher{}
	dispatcher.On("Send", mock.Anything, "email", "Welcome aboard, Ada!", []string{"ada@example.com", "hr@example.com"}).
		Return(nil)

	step := messageStep(&models.MessageConfig{
		Channel:    "email",
		Template:   "Welcome aboard, {{ .employee.name }}!",
		Recipients: []string{"{{ .employee.email }}", "hr@example.com"},
	})

	data := map[string]any{"employee": map[string]any{"name": "Ada", "email": "ada@example.com"}}

	result, err := NewStep(models.StepTypeMessage, dispatcher).Execute(context.Background(), step, data)
	require.NoError(t, err)
	assert.Equal(t, "Welcome aboard, Ada!", result.Output.(map[string]any)["message"])
	assert.Equal(t, data, result.Data)
	dispatcher.AssertExpectations(t)
}

func TestStep_ExecuteFailures(t *testing.T) {
	dispatcher := &mockDispatcher{}
	dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	step := messageStep(&models.MessageConfig{Channel: "email", Template: "hi", Recipients: []string{"a@b.c"}})

	_, err := NewStep(models.StepTypeMessage, dispatcher).Execute(context.Background(), step, nil)
	require.EqualError(t, err, "smtp down")

	_, err = NewStep(models.StepTypeMessage, nil).Execute(context.Background(), step, nil)
	require.ErrorIs(t, err, protocol.ErrCollaboratorUnavailable)

	noRecipients := messageStep(&models.MessageConfig{Template: "hi", Recipients: []string{"{{ .missing }}"}})
	_, err = NewStep(models.StepTypeMessage, dispatcher).Execute(context.Background(), noRecipients, nil)
	require.Error(t, err)

	_, err = NewStep(models.StepTypeMessage, dispatcher).Execute(context.Background(), messageStep(&models.MessageConfig{}), nil)
	require.Error(t, err)
}

func TestFactories(t *testing.T) {
	assert.Equal(t, models.StepTypeMessage, NewMessageStepFactory().ID())
	assert.Equal(t, "Notification", NewNotificationStepFactory().Name())

	handler, err := NewNotificationStepFactory().Create(protocol.Collaborators{})
	require.NoError(t, err)
	assert.Equal(t, models.StepTypeNotification, handler.Type())
}

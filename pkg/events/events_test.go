package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(InstanceCreatedEvent, "def-1", "inst-1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, InstanceCreatedEvent, base.Type)
	assert.Equal(t, "def-1", base.DefinitionID)
	assert.Equal(t, "inst-1", base.InstanceID)
	assert.WithinDuration(t, time.Now().UTC(), base.Timestamp, time.Second)
	assert.NotNil(t, base.Metadata)
}

func TestGetType(t *testing.T) {
	assert.Equal(t, InstanceCreatedEvent, InstanceCreated{}.GetType())
	assert.Equal(t, InstanceAdvancedEvent, InstanceAdvanced{}.GetType())
	assert.Equal(t, InstanceCompletedEvent, InstanceCompleted{}.GetType())
	assert.Equal(t, InstanceTerminatedEvent, InstanceTerminated{}.GetType())
	assert.Equal(t, StepFailedEvent, StepFailed{}.GetType())
	assert.Equal(t, DefinitionPublishedEvent, DefinitionPublished{}.GetType())
	assert.Equal(t, DefinitionArchivedEvent, DefinitionArchived{}.GetType())
	assert.Equal(t, MessageDispatchedEvent, MessageDispatched{}.GetType())
}

func TestNew_DecodesPayload(t *testing.T) {
	notBefore := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	original := InstanceAdvanced{
		BaseEvent:  NewBaseEvent(InstanceAdvancedEvent, "def-1", "inst-1"),
		FromStepID: "wait",
		ToStepID:   "notify",
		ActorID:    "alice",
		NotBefore:  &notBefore,
	}

	payload, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"type":"instance.advanced"`)
	assert.Contains(t, string(payload), `"to_step_id":"notify"`)

	target := New(InstanceAdvancedEvent)
	require.IsType(t, &InstanceAdvanced{}, target)
	require.NoError(t, json.Unmarshal(payload, target))

	decoded := target.(*InstanceAdvanced)
	assert.Equal(t, "wait", decoded.FromStepID)
	assert.Equal(t, "alice", decoded.ActorID)
	require.NotNil(t, decoded.NotBefore)
	assert.True(t, notBefore.Equal(*decoded.NotBefore))
}

func TestNew_UnknownType(t *testing.T) {
	assert.Nil(t, New("workflow.triggered"))
}

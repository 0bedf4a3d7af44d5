package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definitionJSON = `{
	"id": "wf-1",
	"name": "Expense approval",
	"version": "1.0.0",
	"status": "draft",
	"steps": [
		{"id": "start", "name": "Start", "type": "start", "position": {"x": 10, "y": 20}},
		{"id": "form", "name": "Fill form", "type": "task", "config": {"fields": [{"name": "amount", "required": true}]}},
		{"id": "call", "name": "Call", "type": "service", "config": {"endpoint": "https://example.com", "method": "POST"}},
		{"id": "wait", "name": "Wait", "type": "timer", "config": {"mode": "delay", "value": "5m"}},
		{"id": "mail", "name": "Mail", "type": "message", "config": {"channel": "email", "template": "hi", "recipients": ["a@b.c"]}},
		{"id": "custom", "name": "Custom", "type": "approval-chain", "config": {"levels": 2}},
		{"id": "end", "name": "End", "type": "end"}
	],
	"transitions": [
		{"id": "t1", "from": "start", "to": "form"},
		{"id": "t2", "from": "form", "to": "end", "condition": "amount > 10"},
		{"id": "t3", "from": "form", "to": "call"}
	]
}`

func TestWorkflowDefinition_DecodeSelectsConfigVariant(t *testing.T) {
	var def WorkflowDefinition
	require.NoError(t, json.Unmarshal([]byte(definitionJSON), &def))

	start, ok := def.StepByID("start")
	require.True(t, ok)
	assert.IsType(t, &EmptyConfig{}, start.Config)
	assert.Equal(t, Position{X: 10, Y: 20}, start.Position)

	form, _ := def.StepByID("form")
	taskConfig, ok := form.TaskConfig()
	require.True(t, ok)
	require.Len(t, taskConfig.Fields, 1)
	assert.True(t, taskConfig.Fields[0].Required)

	call, _ := def.StepByID("call")
	serviceConfig, ok := call.ServiceConfig()
	require.True(t, ok)
	assert.Equal(t, "POST", serviceConfig.Method)

	wait, _ := def.StepByID("wait")
	timerConfig, ok := wait.TimerConfig()
	require.True(t, ok)
	assert.Equal(t, TimerModeDelay, timerConfig.Mode)

	mail, _ := def.StepByID("mail")
	messageConfig, ok := mail.MessageConfig()
	require.True(t, ok)
	assert.Equal(t, []string{"a@b.c"}, messageConfig.Recipients)

	custom, _ := def.StepByID("custom")
	raw, ok := custom.Config.(*RawConfig)
	require.True(t, ok)
	assert.InDelta(t, 2, (*raw)["levels"], 0)
}

func TestWorkflowDefinition_RoundTripKeepsVariant(t *testing.T) {
	var def WorkflowDefinition
	require.NoError(t, json.Unmarshal([]byte(definitionJSON), &def))

	encoded, err := json.Marshal(&def)
	require.NoError(t, err)

	var decoded WorkflowDefinition
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	call, _ := decoded.StepByID("call")
	cfg, ok := call.ServiceConfig()
	require.True(t, ok)
	assert.Equal(t, "https://example.com", cfg.Endpoint)
}

func TestWorkflowDefinition_StructuralQueries(t *testing.T) {
	var def WorkflowDefinition
	require.NoError(t, json.Unmarshal([]byte(definitionJSON), &def))

	start, ok := def.StartStep()
	require.True(t, ok)
	assert.Equal(t, "start", start.ID)

	outgoing := def.Outgoing("form")
	require.Len(t, outgoing, 2)
	assert.Equal(t, "t2", outgoing[0].ID)
	assert.Equal(t, "t3", outgoing[1].ID)

	assert.Len(t, def.Incoming("end"), 1)
	assert.Empty(t, def.Incoming("start"))
	assert.Len(t, def.StepsOfType(StepTypeEnd), 1)

	_, ok = def.StepByID("missing")
	assert.False(t, ok)
}

func TestWorkflowTransition_HasCondition(t *testing.T) {
	assert.False(t, (&WorkflowTransition{}).HasCondition())
	assert.False(t, (&WorkflowTransition{Condition: "  \n"}).HasCondition())
	assert.True(t, (&WorkflowTransition{Condition: "x"}).HasCondition())
}

func TestWorkflowDefinition_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	def := &WorkflowDefinition{Name: "ab", Status: DefinitionStatusDraft}
	err := validate.Struct(def)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "Name", validationErrors[0].Field())
	assert.Equal(t, "min", validationErrors[0].Tag())

	def.Name = "Valid name"
	def.Version = "1.2.3"
	assert.NoError(t, validate.Struct(def))
}

func TestNewStep_RejectsMismatchedConfig(t *testing.T) {
	_, err := NewStep("s", "S", StepTypeTask, &ServiceConfig{})
	require.ErrorIs(t, err, ErrConfigMismatch)

	step, err := NewStep("s", "S", StepTypeNotification, &MessageConfig{Channel: "sms"})
	require.NoError(t, err)
	assert.Equal(t, StepTypeNotification, step.Type)

	step, err = NewStep("e", "End", StepTypeEnd, nil)
	require.NoError(t, err)
	assert.IsType(t, &EmptyConfig{}, step.Config)
}

func TestNewStep_TypedNilConfig(t *testing.T) {
	step, err := NewStep("wait", "Wait", StepTypeTimer, (*TimerConfig)(nil))
	require.NoError(t, err)

	cfg, ok := step.TimerConfig()
	require.True(t, ok)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Value)

	step, err = NewStep("call", "Call", StepTypeService, (*ScriptConfig)(nil))
	require.NoError(t, err)
	assert.IsType(t, &ServiceConfig{}, step.Config)
}

func TestStepConfigAccessors_NilVariant(t *testing.T) {
	step := &WorkflowStep{ID: "s", Type: StepTypeTimer, Config: (*TimerConfig)(nil)}

	cfg, ok := step.TimerConfig()
	assert.False(t, ok)
	assert.Nil(t, cfg)

	step = &WorkflowStep{ID: "s", Type: StepTypeMessage, Config: (*MessageConfig)(nil)}
	_, ok = step.MessageConfig()
	assert.False(t, ok)
}

func TestErrorHandler_Defaults(t *testing.T) {
	handler := ErrorHandler{Type: ErrorHandlerRetry}
	assert.Equal(t, 3, handler.Retries())
	assert.Equal(t, 5*time.Second, handler.Delay())

	retries, delay := 1, 0
	handler = ErrorHandler{Type: ErrorHandlerRetry, MaxRetries: &retries, RetryDelay: &delay}
	assert.Equal(t, 1, handler.Retries())
	assert.Equal(t, time.Duration(0), handler.Delay())
}

func TestErrorHandler_Fallback(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected any
	}{
		{name: "object", raw: `{"approved": false}`, expected: map[string]any{"approved": false}},
		{name: "json in string", raw: `"{\"approved\": true}"`, expected: map[string]any{"approved": true}},
		{name: "plain string", raw: `"n/a"`, expected: "n/a"},
		{name: "number", raw: `42`, expected: float64(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := ErrorHandler{FallbackValue: json.RawMessage(tt.raw)}.Fallback()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestWorkflowInstance_CloneIsDeep(t *testing.T) {
	exited := time.Now()
	inst := &WorkflowInstance{
		ID:   "i-1",
		Data: map[string]any{"nested": map[string]any{"a": 1}, "list": []any{1, 2}},
		History: []HistoryEntry{
			{StepID: "start", ExitedAt: &exited},
			{StepID: "form"},
		},
	}

	clone := inst.Clone()
	clone.Data["nested"].(map[string]any)["a"] = 2
	clone.Data["list"].([]any)[0] = 9
	clone.History[1].Comment = "changed"

	assert.Equal(t, 1, inst.Data["nested"].(map[string]any)["a"])
	assert.Equal(t, 1, inst.Data["list"].([]any)[0])
	assert.Empty(t, inst.History[1].Comment)
	assert.Equal(t, 1, inst.OpenEntry())
}

func TestSchedule_NextInTimezone(t *testing.T) {
	schedule, err := ParseSchedule("0 9 * * *", "America/New_York")
	require.NoError(t, err)

	reference := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) // 07:00 in New York
	assert.Equal(t, time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC), schedule.Next(reference))

	_, err = ParseSchedule("every monday", "")
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = ParseSchedule("0 9 * * *", "Mars/Olympus")
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestMergeData(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	merged := MergeData(base, map[string]any{"b": 3, "c": 4})

	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)
	assert.Equal(t, 2, base["b"])
	assert.Equal(t, map[string]any{"x": 1}, MergeData(nil, map[string]any{"x": 1}))
}

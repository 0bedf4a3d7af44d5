package models

import "errors"

// ErrConfigMismatch is returned when a configuration variant does not belong to a step type.
var ErrConfigMismatch = errors.New("step configuration does not match step type")

// StepConfig is the type-specific configuration payload of a step.
// The set of variants is closed; custom step types carry a RawConfig.
type StepConfig interface {
	stepConfig()
}

// FormField is one field of a task step's form.
type FormField struct {
	Name     string `json:"name"            validate:"required"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required"`
}

// TaskConfig configures a human task step.
type TaskConfig struct {
	Fields   []FormField `json:"fields"`
	Assignee string      `json:"assignee,omitempty"`
}

// ServiceConfig configures an external service call.
type ServiceConfig struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     string            `json:"body,omitempty"`
}

// ScriptConfig configures a script evaluation.
type ScriptConfig struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

// TimerMode selects how a timer value is interpreted.
type TimerMode string

const (
	TimerModeDelay    TimerMode = "delay"
	TimerModeSchedule TimerMode = "schedule"
)

// TimerConfig configures a logical delay or a recurrence schedule.
type TimerConfig struct {
	Mode     TimerMode `json:"mode,omitempty"`
	Value    string    `json:"value"`
	Timezone string    `json:"timezone,omitempty"`
}

// MessageConfig configures message and notification steps.
type MessageConfig struct {
	Channel    string   `json:"channel"`
	Template   string   `json:"template"`
	Recipients []string `json:"recipients"`
}

// EmptyConfig is the configuration of steps that carry none (start, end, decision, error).
type EmptyConfig struct{}

// RawConfig holds the configuration of step types unknown to this package.
type RawConfig map[string]any

func (*TaskConfig) stepConfig()    {}
func (*ServiceConfig) stepConfig() {}
func (*ScriptConfig) stepConfig()  {}
func (*TimerConfig) stepConfig()   {}
func (*MessageConfig) stepConfig() {}
func (*EmptyConfig) stepConfig()   {}
func (*RawConfig) stepConfig()     {}

// NewStepConfig returns a zero configuration of the variant used by stepType.
func NewStepConfig(stepType StepType) StepConfig {
	switch stepType {
	case StepTypeTask:
		return &TaskConfig{}
	case StepTypeService:
		return &ServiceConfig{}
	case StepTypeScript:
		return &ScriptConfig{}
	case StepTypeTimer:
		return &TimerConfig{}
	case StepTypeMessage, StepTypeNotification:
		return &MessageConfig{}
	case StepTypeStart, StepTypeEnd, StepTypeDecision, StepTypeError:
		return &EmptyConfig{}
	default:
		return &RawConfig{}
	}
}

func isNilConfig(config StepConfig) bool {
	switch cfg := config.(type) {
	case nil:
		return true
	case *TaskConfig:
		return cfg == nil
	case *ServiceConfig:
		return cfg == nil
	case *ScriptConfig:
		return cfg == nil
	case *TimerConfig:
		return cfg == nil
	case *MessageConfig:
		return cfg == nil
	case *EmptyConfig:
		return cfg == nil
	case *RawConfig:
		return cfg == nil
	default:
		return false
	}
}

func configMatches(stepType StepType, config StepConfig) bool {
	switch config.(type) {
	case *TaskConfig:
		return stepType == StepTypeTask
	case *ServiceConfig:
		return stepType == StepTypeService
	case *ScriptConfig:
		return stepType == StepTypeScript
	case *TimerConfig:
		return stepType == StepTypeTimer
	case *MessageConfig:
		return stepType == StepTypeMessage || stepType == StepTypeNotification
	case *EmptyConfig:
		return stepType == StepTypeStart || stepType == StepTypeEnd ||
			stepType == StepTypeDecision || stepType == StepTypeError
	case *RawConfig:
		return !stepType.IsKnown()
	default:
		return false
	}
}

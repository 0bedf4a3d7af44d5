package validation

import (
	"encoding/json"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(findings []Finding) []string {
	out := make([]string, len(findings))
	for idx, f := range findings {
		out[idx] = f.Code
	}

	return out
}

func TestValidate_ValidDefinitions(t *testing.T) {
	for name, def := range map[string]*models.WorkflowDefinition{
		"linear":   testutil.CreateLinearDefinition(),
		"approval": testutil.CreateApprovalDefinition(),
	} {
		t.Run(name, func(t *testing.T) {
			report := Validate(def)
			assert.True(t, report.CanPublish(), report.String())
			assert.Empty(t, report.Errors())
		})
	}
}

func TestValidate_ApprovalHasDefaultBranchWarning(t *testing.T) {
	report := Validate(testutil.CreateApprovalDefinition())

	warnings := report.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, CodeUnconditionedBranch, warnings[0].Code)
	assert.Equal(t, "decide", warnings[0].StepID)
	assert.Equal(t, "decide->done", warnings[0].TransitionID)
}

func TestValidate_StartAndEnd(t *testing.T) {
	noStart := testutil.CreateTestDefinition([]*models.WorkflowStep{
		testutil.CreateTestStep("end", models.StepTypeEnd),
	})
	report := Validate(noStart)
	assert.False(t, report.CanPublish())
	assert.True(t, report.HasCode(CodeMissingStart))

	twoStarts := testutil.CreateTestDefinition(
		[]*models.WorkflowStep{
			testutil.CreateTestStep("s1", models.StepTypeStart),
			testutil.CreateTestStep("s2", models.StepTypeStart),
			testutil.CreateTestStep("end", models.StepTypeEnd),
		},
		testutil.CreateTestTransition("s1", "end"),
		testutil.CreateTestTransition("s2", "end"),
	)
	report = Validate(twoStarts)
	assert.Equal(t, []string{CodeMultipleStart}, codes(report.Errors()))

	noEnd := testutil.CreateTestDefinition(
		[]*models.WorkflowStep{
			testutil.CreateTestStep("start", models.StepTypeStart),
			testutil.CreateTestStep("task", models.StepTypeTask),
		},
		testutil.CreateTestTransition("start", "task"),
	)
	report = Validate(noEnd)
	assert.Equal(t, []string{CodeMissingEnd}, codes(report.Errors()))
	assert.True(t, report.HasCode(CodeNoOutgoing))
}

func TestValidate_Transitions(t *testing.T) {
	def := testutil.CreateLinearDefinition()
	def.Transitions = append(def.Transitions,
		testutil.CreateTestTransition("review", "ghost"),
		testutil.CreateTestTransition("review", "review"),
		testutil.CreateTestTransition("start", "end", "amount >"),
	)

	report := Validate(def)
	assert.False(t, report.CanPublish())

	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, CodeDanglingTransition, errs[0].Code)
	assert.Equal(t, "review->ghost", errs[0].TransitionID)

	assert.True(t, report.HasCode(CodeSelfTransition))
	assert.True(t, report.HasCode(CodeMalformedCondition))
}

func TestValidate_Reachability(t *testing.T) {
	def := testutil.CreateLinearDefinition()
	def.Steps = append(def.Steps,
		testutil.CreateTestStep("orphan", models.StepTypeTask),
		testutil.CreateTestStep("island", models.StepTypeTask),
	)
	def.Transitions = append(def.Transitions,
		testutil.CreateTestTransition("orphan", "island"),
		testutil.CreateTestTransition("island", "end"),
	)

	report := Validate(def)
	assert.True(t, report.CanPublish())

	var unreachable, noIncoming []string

	for _, f := range report.Warnings() {
		switch f.Code {
		case CodeUnreachableStep:
			unreachable = append(unreachable, f.StepID)
		case CodeNoIncoming:
			noIncoming = append(noIncoming, f.StepID)
		}
	}

	assert.Equal(t, []string{"orphan", "island"}, unreachable)
	assert.Equal(t, []string{"orphan"}, noIncoming)
}

func TestValidate_Decisions(t *testing.T) {
	def := testutil.CreateTestDefinition(
		[]*models.WorkflowStep{
			testutil.CreateTestStep("start", models.StepTypeStart),
			testutil.CreateTestStep("decide", models.StepTypeDecision),
			testutil.CreateTestStep("end", models.StepTypeEnd),
		},
		testutil.CreateTestTransition("start", "decide"),
		testutil.CreateTestTransition("decide", "end", "true"),
	)

	report := Validate(def)
	assert.Equal(t, []string{CodeDecisionBranches}, codes(report.Errors()))
	assert.False(t, report.HasCode(CodeUnconditionedBranch))
}

func TestValidate_ConfigCompleteness(t *testing.T) {
	def := testutil.CreateTestDefinition(
		[]*models.WorkflowStep{
			testutil.CreateTestStep("start", models.StepTypeStart),
			testutil.CreateTestStep("call", models.StepTypeService),
			testutil.CreateTestStep("calc", models.StepTypeScript),
			testutil.CreateTestStep("wait", models.StepTypeTimer),
			testutil.CreateTestStep("mail", models.StepTypeMessage),
			testutil.CreateTestStep("end", models.StepTypeEnd),
		},
		testutil.CreateTestTransition("start", "call"),
		testutil.CreateTestTransition("call", "calc"),
		testutil.CreateTestTransition("calc", "wait"),
		testutil.CreateTestTransition("wait", "mail"),
		testutil.CreateTestTransition("mail", "end"),
	)

	report := Validate(def)
	assert.True(t, report.CanPublish())

	incomplete := map[string]int{}
	for _, f := range report.Warnings() {
		if f.Code == CodeIncompleteConfig {
			incomplete[f.StepID]++
		}
	}

	assert.Equal(t, map[string]int{"call": 1, "calc": 1, "wait": 1, "mail": 2}, incomplete)
}

func TestValidate_ScriptLanguage(t *testing.T) {
	tests := []struct {
		language string
		warns    bool
	}{
		{language: "", warns: false},
		{language: "hcl", warns: false},
		{language: "HCL", warns: false},
		{language: "python", warns: true},
	}

	for _, tt := range tests {
		t.Run("language "+tt.language, func(t *testing.T) {
			def := testutil.CreateTestDefinition(
				[]*models.WorkflowStep{
					testutil.CreateTestStep("start", models.StepTypeStart),
					testutil.CreateTestStep("calc", models.StepTypeScript, testutil.WithConfig(
						&models.ScriptConfig{Language: tt.language, Source: "1 + 1"},
					)),
					testutil.CreateTestStep("end", models.StepTypeEnd),
				},
				testutil.CreateTestTransition("start", "calc"),
				testutil.CreateTestTransition("calc", "end"),
			)

			report := Validate(def)
			assert.True(t, report.CanPublish())
			assert.Equal(t, tt.warns, report.HasCode(CodeIncompleteConfig))
		})
	}
}

func TestValidate_HandlersAndMappings(t *testing.T) {
	negative := -1
	def := testutil.CreateLinearDefinition()
	review, _ := def.StepByID("review")
	review.ErrorHandlers = []models.ErrorHandler{
		{Type: models.ErrorHandlerRetry, MaxRetries: &negative},
		{Type: models.ErrorHandlerFallback, FallbackValue: json.RawMessage(`{oops`)},
		{Type: models.ErrorHandlerNotification},
		{Type: "escalate"},
	}
	review.Mappings = []models.VariableMapping{{Type: "sideways", Source: "a"}}

	report := Validate(def)
	assert.True(t, report.CanPublish())

	count := 0
	for _, f := range report.Warnings() {
		if f.Code == CodeInvalidErrorHandler {
			count++
		}
	}

	assert.Equal(t, 4, count)
	assert.True(t, report.HasCode(CodeInvalidVariableMap))
}

func TestValidate_DuplicatesAndUnknownTypes(t *testing.T) {
	def := testutil.CreateLinearDefinition()
	def.Steps = append(def.Steps, testutil.CreateTestStep("review", models.StepTypeTask))
	def.Steps = append(def.Steps, testutil.CreateTestStep("custom", "approval-chain"))
	def.Transitions = append(def.Transitions,
		testutil.CreateTestTransition("review", "custom"),
		testutil.CreateTestTransition("custom", "end"),
	)

	report := Validate(def)
	assert.Equal(t, []string{CodeDuplicateStep}, codes(report.Errors()))
	assert.True(t, report.HasCode(CodeUnknownStepType))
}

func TestValidate_NilDefinition(t *testing.T) {
	report := Validate(nil)
	assert.False(t, report.CanPublish())
}

func TestValidate_DoesNotMutate(t *testing.T) {
	def := testutil.CreateApprovalDefinition()
	before, err := json.Marshal(def)
	require.NoError(t, err)

	Validate(def)

	after, err := json.Marshal(def)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

package web_test

import (
	"errors"
	"testing"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationFields(t *testing.T, err error) []string {
	t.Helper()

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, fieldErr.Field())
	}

	return fields
}

func TestCreateWorkflowRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name      string
		request   web.CreateWorkflowRequest
		errFields []string
	}{
		{
			name: "valid request",
			request: web.CreateWorkflowRequest{
				Name:     "Abandoned cart",
				Category: models.CategoryMarketing,
				Owner:    "growth@example.com",
			},
		},
		{
			name:      "missing name",
			request:   web.CreateWorkflowRequest{Category: models.CategorySales},
			errFields: []string{"Name"},
		},
		{
			name:      "name too short",
			request:   web.CreateWorkflowRequest{Name: "Ab", Category: models.CategorySales},
			errFields: []string{"Name"},
		},
		{
			name:      "missing category",
			request:   web.CreateWorkflowRequest{Name: "Abandoned cart"},
			errFields: []string{"Category"},
		},
		{
			name: "unknown status",
			request: web.CreateWorkflowRequest{
				Name:     "Abandoned cart",
				Category: models.CategoryMarketing,
				Status:   "running",
			},
			errFields: []string{"Status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if len(tt.errFields) == 0 {
				assert.NoError(t, err)

				return
			}

			assert.ElementsMatch(t, tt.errFields, validationFields(t, err))
		})
	}
}

func TestCreateWorkflowRequest_Workflow(t *testing.T) {
	t.Parallel()

	req := web.CreateWorkflowRequest{
		Name:     "Abandoned cart",
		Category: models.CategoryMarketing,
		Owner:    "growth@example.com",
	}

	workflow := req.Workflow()

	assert.Equal(t, "Abandoned cart", workflow.Name)
	assert.Equal(t, models.CategoryMarketing, workflow.Category)
	assert.NotNil(t, workflow.Nodes)
	assert.NotNil(t, workflow.Triggers)
	assert.Empty(t, workflow.ID)
}

func TestUpdateWorkflowRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	short := "Ab"
	category := models.WorkflowCategory("wholesale")
	paused := models.WorkflowStatusPaused

	assert.NoError(t, v.Struct(web.UpdateWorkflowRequest{}))
	assert.NoError(t, v.Struct(web.UpdateWorkflowRequest{Status: &paused}))
	assert.Equal(t, []string{"Name"}, validationFields(t, v.Struct(web.UpdateWorkflowRequest{Name: &short})))
	assert.Equal(t, []string{"Category"}, validationFields(t, v.Struct(web.UpdateWorkflowRequest{Category: &category})))
}

func TestUpdateWorkflowRequest_Patch(t *testing.T) {
	t.Parallel()

	name := "Abandoned cart v2"
	req := web.UpdateWorkflowRequest{
		Name:      &name,
		Variables: map[string]any{"discount": 10},
	}

	patch := req.Patch()

	require.NotNil(t, patch.Name)
	assert.Equal(t, name, *patch.Name)
	assert.Nil(t, patch.Status)
	assert.Nil(t, patch.Nodes)
	assert.Equal(t, 10, patch.Variables["discount"])
}

func TestApprovalDecisionRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	assert.NoError(t, v.Struct(web.ApprovalDecisionRequest{Decision: models.ApprovalApproved}))
	assert.NoError(t, v.Struct(web.ApprovalDecisionRequest{Decision: models.ApprovalRejected, DecidedBy: "finance@example.com"}))
	assert.Equal(t, []string{"Decision"}, validationFields(t, v.Struct(web.ApprovalDecisionRequest{})))
	assert.Equal(t, []string{"Decision"}, validationFields(t, v.Struct(web.ApprovalDecisionRequest{Decision: "maybe"})))
}

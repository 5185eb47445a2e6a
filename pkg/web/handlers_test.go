package web_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/storeflow/pkg/analytics"
	"github.com/dukex/storeflow/pkg/messaging"
	"github.com/dukex/storeflow/pkg/mocks"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/persistence"
	"github.com/dukex/storeflow/pkg/persistence/file"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/registry"
	"github.com/dukex/storeflow/pkg/testutil"
	"github.com/dukex/storeflow/pkg/web"
	"github.com/dukex/storeflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry(slog.Default())
	require.NoError(t, reg.RegisterDefaultNodes())

	collaborator := messaging.NewLogCollaborator(slog.Default())
	require.NoError(t, reg.Build(protocol.Dependencies{
		Email:    collaborator,
		SMS:      collaborator,
		Notifier: collaborator,
		Records:  collaborator,
		Tasks:    collaborator,
		Reports:  collaborator,
	}))

	return reg
}

func setupApp(t *testing.T, p persistence.Persistence) (*fiber.App, *workflow.Engine) {
	t.Helper()

	reg := newRegistry(t)
	engine := workflow.NewEngine(slog.Default(), p, reg)
	handlers := web.NewAPIHandlers(engine, reg, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app, engine
}

func setupTestApp(t *testing.T) (*fiber.App, *workflow.Engine) {
	t.Helper()

	return setupApp(t, file.NewPersistence(t.TempDir()))
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	problemType, _ := problem["type"].(string)

	return problemType
}

func activeWorkflowRequest() web.CreateWorkflowRequest {
	return web.CreateWorkflowRequest{
		Name:     "Low stock alert",
		Category: models.CategoryInventory,
		Status:   models.WorkflowStatusActive,
		Owner:    "inventory@example.com",
		Nodes: []*models.WorkflowNode{
			testutil.CreateTestNode("start", &models.TriggerConfig{}, testutil.WithConnections("low")),
			testutil.CreateTestNode("low", &models.ConditionConfig{
				Conditions: []models.Condition{{Field: "stock", Operator: models.OperatorLessThan, Value: 10}},
				Operator:   models.LogicAnd,
			}, testutil.WithConnections("alert")),
			testutil.CreateTestNode("alert", &models.ActionConfig{
				ActionType: models.ActionCreateTask,
				Title:      "Restock {{sku}}",
				Assignee:   "warehouse",
			}),
		},
		Triggers:  []models.WorkflowTrigger{{ID: "manual", Type: models.TriggerTypeManual, Enabled: true}},
		Variables: map[string]any{"warehouse": "sp-01"},
	}
}

func createWorkflow(t *testing.T, app *fiber.App, req web.CreateWorkflowRequest) *models.Workflow {
	t.Helper()

	resp, body := doRequest(t, app, http.MethodPost, "/workflows", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))

	return &created
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "successful creation",
			requestBody:    activeWorkflowRequest(),
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			requestBody:    web.CreateWorkflowRequest{Category: models.CategorySales},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "unknown category",
			requestBody:    web.CreateWorkflowRequest{Name: "Wholesale", Category: "wholesale"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name: "active without trigger node",
			requestBody: web.CreateWorkflowRequest{
				Name:     "Broken",
				Category: models.CategorySales,
				Status:   models.WorkflowStatusActive,
			},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "unknown node type",
			requestBody:    `{"name":"Fax","category":"sales","nodes":[{"id":"a","type":"fax","name":"Fax"}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "null node",
			requestBody:    `{"name":"Null node","category":"sales","nodes":[null]}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			resp, body := doRequest(t, app, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, body))

				return
			}

			var created models.Workflow
			require.NoError(t, json.Unmarshal(body, &created))
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, 1, created.Version)
			assert.Len(t, created.Nodes, 3)
			assert.IsType(t, &models.ConditionConfig{}, created.Nodes[1].Config)
		})
	}
}

func TestAPIHandlers_GetWorkflow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	created := createWorkflow(t, app, activeWorkflowRequest())

	resp, body := doRequest(t, app, http.MethodGet, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Workflow
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created.Name, fetched.Name)

	resp, body = doRequest(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "workflow_not_found", problemType(t, body))
}

func TestAPIHandlers_GetWorkflows(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	createWorkflow(t, app, activeWorkflowRequest())

	marketing := activeWorkflowRequest()
	marketing.Name = "Newsletter"
	marketing.Category = models.CategoryMarketing
	createWorkflow(t, app, marketing)

	resp, body := doRequest(t, app, http.MethodGet, "/workflows", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Workflows  []*models.Workflow `json:"workflows"`
		TotalCount int                `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 2, list.TotalCount)

	resp, body = doRequest(t, app, http.MethodGet, "/workflows?category=marketing", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 1, list.TotalCount)
	assert.Equal(t, "Newsletter", list.Workflows[0].Name)

	resp, _ = doRequest(t, app, http.MethodGet, "/workflows?category=wholesale", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_UpdateWorkflow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	created := createWorkflow(t, app, activeWorkflowRequest())

	name := "Critical stock alert"

	resp, body := doRequest(t, app, http.MethodPatch, "/workflows/"+created.ID, web.UpdateWorkflowRequest{Name: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated models.Workflow
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 2, updated.Version)
	assert.Len(t, updated.Nodes, 3)

	short := "ab"
	resp, _ = doRequest(t, app, http.MethodPatch, "/workflows/"+created.ID, web.UpdateWorkflowRequest{Name: &short})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPatch, "/workflows/missing", web.UpdateWorkflowRequest{Name: &name})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	created := createWorkflow(t, app, activeWorkflowRequest())

	resp, _ := doRequest(t, app, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ExecuteWorkflow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	created := createWorkflow(t, app, activeWorkflowRequest())

	resp, body := doRequest(t, app, http.MethodPost, "/workflows/"+created.ID+"/execute",
		web.ExecuteWorkflowRequest{TriggerData: map[string]any{"stock": 3, "sku": "COVER-L-GREY"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var execution models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Len(t, execution.ExecutionLog, 6)
	assert.Equal(t, "sp-01", execution.Variables["warehouse"])

	resp, body = doRequest(t, app, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	resp, body = doRequest(t, app, http.MethodGet, "/executions?workflow_id="+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.TotalCount)

	resp, body = doRequest(t, app, http.MethodPost, "/executions/"+execution.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_state", problemType(t, body))
}

func TestAPIHandlers_ExecuteWorkflowErrors(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	draft := activeWorkflowRequest()
	draft.Status = models.WorkflowStatusDraft
	created := createWorkflow(t, app, draft)

	resp, body := doRequest(t, app, http.MethodPost, "/workflows/"+created.ID+"/execute", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_state", problemType(t, body))

	resp, _ = doRequest(t, app, http.MethodPost, "/workflows/missing/execute", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doRequest(t, app, http.MethodGet, "/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "execution_not_found", problemType(t, body))
}

func TestAPIHandlers_ResolveApproval(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	req := activeWorkflowRequest()
	req.Nodes = []*models.WorkflowNode{
		testutil.CreateTestNode("start", &models.TriggerConfig{}, testutil.WithConnections("approve")),
		testutil.CreateTestNode("approve", &models.ApprovalConfig{Approvers: []string{"buyer@example.com"}},
			testutil.WithConnections("alert")),
		testutil.CreateTestNode("alert", &models.ActionConfig{ActionType: models.ActionCreateTask, Title: "Restock"}),
	}
	created := createWorkflow(t, app, req)

	resp, body := doRequest(t, app, http.MethodPost, "/workflows/"+created.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var execution models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &execution))
	require.Equal(t, models.ExecutionStatusWaitingApproval, execution.Status)

	path := "/executions/" + execution.ID + "/approvals/approve"

	resp, _ = doRequest(t, app, http.MethodPost, path, web.ApprovalDecisionRequest{Decision: "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doRequest(t, app, http.MethodPost, path, web.ApprovalDecisionRequest{Decision: models.ApprovalApproved, DecidedBy: "buyer@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	resp, _ = doRequest(t, app, http.MethodPost, path, web.ApprovalDecisionRequest{Decision: models.ApprovalApproved})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_GetWorkflowAnalytics(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	created := createWorkflow(t, app, activeWorkflowRequest())

	for _, stock := range []int{3, 50} {
		resp, _ := doRequest(t, app, http.MethodPost, "/workflows/"+created.ID+"/execute",
			web.ExecuteWorkflowRequest{TriggerData: map[string]any{"stock": stock}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := doRequest(t, app, http.MethodGet, "/workflows/"+created.ID+"/analytics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report analytics.Report
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 2, report.TotalExecutions)
	assert.Len(t, report.NodePerformance, 3)
	assert.Len(t, report.DailyTrend, analytics.TrendDays)

	resp, body = doRequest(t, app, http.MethodGet, "/workflows/"+created.ID+"/analytics?start=2000-01-01&end=2000-01-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Zero(t, report.TotalExecutions)

	resp, _ = doRequest(t, app, http.MethodGet, "/workflows/"+created.ID+"/analytics?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_GetNodeTypes(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/node-types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var nodeTypes []web.NodeTypeResponse
	require.NoError(t, json.Unmarshal(body, &nodeTypes))
	require.Len(t, nodeTypes, len(models.NodeTypes))
	assert.Equal(t, models.NodeTypeAction, nodeTypes[0].Type)
	assert.NotEmpty(t, nodeTypes[0].Schema)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPIHandlers_PersistenceFailures(t *testing.T) {
	t.Parallel()

	p := mocks.NewMockPersistence()
	p.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))
	p.Workflows.On("GetAll", mock.Anything).Return(nil, errors.New("connection refused"))

	app, _ := setupApp(t, p)

	resp, body := doRequest(t, app, http.MethodGet, "/workflows", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal_error", problemType(t, body))

	resp, body = doRequest(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "connection refused")
}

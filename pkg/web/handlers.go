// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/storeflow/pkg/analytics"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// WorkflowService is the engine surface the API exposes.
type WorkflowService interface {
	HealthCheck(ctx context.Context) (string, bool)
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, patch workflow.WorkflowPatch) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	GetWorkflows(ctx context.Context, category models.WorkflowCategory) ([]*models.Workflow, error)
	ExecuteWorkflow(ctx context.Context, workflowID string, triggerData map[string]any) (*models.WorkflowExecution, error)
	GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error)
	GetExecutions(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	CancelExecution(ctx context.Context, executionID string) error
	ResolveApproval(ctx context.Context, executionID, nodeID string, decision models.ApprovalDecision) (*models.WorkflowExecution, error)
	GetWorkflowAnalytics(ctx context.Context, workflowID string, dateRange *analytics.DateRange) (*analytics.Report, error)
}

// NodeCatalog lists the registered node types.
type NodeCatalog interface {
	Factories() []protocol.NodeFactory
}

type APIHandlers struct {
	service   WorkflowService
	catalog   NodeCatalog
	validator *validator.Validate
}

func NewAPIHandlers(service WorkflowService, catalog NodeCatalog, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		service:   service,
		catalog:   catalog,
		validator: validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	check, ok := h.service.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Storeflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Storeflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	factories := h.catalog.Factories()

	nodeTypes := make([]NodeTypeResponse, 0, len(factories))
	for _, factory := range factories {
		nodeTypes = append(nodeTypes, TransformNodeType(factory))
	}

	return c.JSON(nodeTypes)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	category := models.WorkflowCategory(c.Query("category"))

	if err := h.validator.Var(category, "omitempty,oneof=sales marketing inventory customer_service finance operations"); err != nil {
		return badRequest(c, "Invalid category: "+string(category))
	}

	workflows, err := h.service.GetWorkflows(c.Context(), category)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := h.service.GetWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.service.CreateWorkflow(c.Context(), req.Workflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.service.UpdateWorkflow(c.Context(), id, req.Patch())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.service.DeleteWorkflow(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteWorkflow runs the workflow and answers with the execution as the run left it.
// A failed run is still a successful request: callers read the execution status.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format: "+err.Error())
		}
	}

	execution, err := h.service.ExecuteWorkflow(c.Context(), id, req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetWorkflowAnalytics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	dateRange, err := parseDateRange(c.Query("start"), c.Query("end"))
	if err != nil {
		return badRequest(c, "Invalid date range: "+err.Error())
	}

	report, err := h.service.GetWorkflowAnalytics(c.Context(), id, dateRange)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	executions, err := h.service.GetExecutions(c.Context(), c.Query("workflow_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.service.GetExecution(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.service.CancelExecution(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	execution, err := h.service.GetExecution(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ResolveApproval(c fiber.Ctx) error {
	id := c.Params("id")
	nodeID := c.Params("nodeId")

	if id == "" || nodeID == "" {
		return badRequest(c, "Execution ID and node ID are required")
	}

	var req ApprovalDecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.service.ResolveApproval(c.Context(), id, nodeID, req.Decision)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// parseDateRange accepts RFC 3339 timestamps or plain dates. A plain end date covers its whole day.
func parseDateRange(start, end string) (*analytics.DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}

	dateRange := &analytics.DateRange{}

	if start != "" {
		t, _, err := parseTime(start)
		if err != nil {
			return nil, err
		}

		dateRange.Start = t
	}

	if end != "" {
		t, dateOnly, err := parseTime(end)
		if err != nil {
			return nil, err
		}

		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}

		dateRange.End = t
	}

	return dateRange, nil
}

func parseTime(value string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, true, nil
	}

	t, err := time.Parse(time.RFC3339, value)

	return t, false, err
}

package web

import "github.com/gofiber/fiber/v3"

// RegisterRoutes mounts the workflow, execution and node type endpoints.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/execute", h.ExecuteWorkflow)
	w.Get("/:id/analytics", h.GetWorkflowAnalytics)

	e := router.Group("/executions")
	e.Get("/", h.GetExecutions)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Post("/:id/approvals/:nodeId", h.ResolveApproval)

	router.Get("/node-types", h.GetNodeTypes)
	router.Get("/health", h.HealthCheck)
}

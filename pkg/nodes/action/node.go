package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/storeflow/pkg/httpclient"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/template"
)

// APIResponseVariable is where api_call stores the decoded response.
const APIResponseVariable = "api_response"

var ErrUnknownAction = errors.New("unknown action type")

type Node struct {
	client   *http.Client
	records  protocol.RecordUpdater
	notifier protocol.Notifier
	tasks    protocol.TaskCreator
	reports  protocol.ReportGenerator
	logger   *slog.Logger
}

// Execute performs the configured action. Actions never gate traversal.
func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	config, err := protocol.Config[*models.ActionConfig](node)
	if err != nil {
		return false, err
	}

	vars := execution.Variables

	switch config.ActionType {
	case models.ActionUpdateDatabase:
		err = n.records.UpdateRecord(ctx, config.Table, template.Process(config.RecordID, vars), expandMap(config.Fields, vars))
	case models.ActionSendNotification:
		err = n.notifier.Notify(ctx, config.Recipients, template.Process(config.Title, vars), template.Process(config.Message, vars), map[string]any{
			"execution_id": execution.ID,
			"workflow_id":  execution.WorkflowID,
		})
	case models.ActionCreateTask:
		var taskID string

		taskID, err = n.tasks.CreateTask(ctx, template.Process(config.Title, vars), template.Process(config.Assignee, vars), expandMap(config.Fields, vars))
		if err == nil {
			n.log(ctx, "task created", "node_id", node.ID, "task_id", taskID)
		}
	case models.ActionAPICall:
		err = n.callAPI(ctx, execution, config)
	case models.ActionGenerateReport:
		var location string

		location, err = n.reports.GenerateReport(ctx, config.ReportType, expandMap(config.Fields, vars))
		if err == nil {
			n.log(ctx, "report generated", "node_id", node.ID, "location", location)
		}
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownAction, config.ActionType)
	}

	if err != nil {
		return false, fmt.Errorf("%s failed: %w", config.ActionType, err)
	}

	return true, nil
}

func (n *Node) callAPI(ctx context.Context, execution *models.WorkflowExecution, config *models.ActionConfig) error {
	method := config.Method
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string, len(config.Headers))
	for key, value := range config.Headers {
		headers[key] = template.Process(value, execution.Variables)
	}

	var body any
	if config.Body != nil {
		body = expandMap(config.Body, execution.Variables)
	}

	resp, err := httpclient.Do(ctx, n.client, httpclient.Request{
		Method:  method,
		URL:     template.Process(config.URL, execution.Variables),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return err
	}

	return execution.SetVariable(APIResponseVariable, resp.JSON)
}

func (n *Node) log(ctx context.Context, msg string, args ...any) {
	if n.logger != nil {
		n.logger.InfoContext(ctx, msg, args...)
	}
}

// expandMap applies template expansion to every string value, one level deep.
func expandMap(in map[string]any, vars map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for key, value := range in {
		if s, ok := value.(string); ok {
			out[key] = template.Process(s, vars)
		} else {
			out[key] = value
		}
	}

	return out
}

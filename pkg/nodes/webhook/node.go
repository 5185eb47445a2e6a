package webhook

import (
	"context"
	"net/http"

	"github.com/dukex/storeflow/pkg/httpclient"
	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/template"
)

// ResponseVariable is where the decoded response body is stored.
const ResponseVariable = "webhook_response"

type Node struct {
	client *http.Client
}

// Execute sends config.body plus execution_id and variables. A non-2xx response fails the node.
func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	config, err := protocol.Config[*models.WebhookConfig](node)
	if err != nil {
		return false, err
	}

	body := make(map[string]any, len(config.Body)+2)
	for key, value := range config.Body {
		body[key] = value
	}

	body["execution_id"] = execution.ID
	body["variables"] = execution.Variables

	headers := make(map[string]string, len(config.Headers))
	for key, value := range config.Headers {
		headers[key] = template.Process(value, execution.Variables)
	}

	method := config.Method
	if method == "" {
		method = http.MethodPost
	}

	resp, err := httpclient.Do(ctx, n.client, httpclient.Request{
		Method:  method,
		URL:     template.Process(config.URL, execution.Variables),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return false, err
	}

	if err := execution.SetVariable(ResponseVariable, resp.JSON); err != nil {
		return false, err
	}

	return true, nil
}

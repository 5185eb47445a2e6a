package email

import (
	"context"
	"fmt"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/template"
)

type Node struct {
	sender protocol.EmailSender
}

// Execute renders subject, body and recipients, then hands the message to the sender.
// Unresolved placeholders are sent as written.
func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	config, err := protocol.Config[*models.EmailConfig](node)
	if err != nil {
		return false, err
	}

	vars := template.Merge(execution.Variables, config.Variables)

	recipients := make([]string, 0, len(config.Recipients))
	for _, recipient := range config.Recipients {
		recipients = append(recipients, template.Process(recipient, vars))
	}

	subject := template.Process(config.Subject, vars)
	body := template.Process(config.Template, vars)

	if err := n.sender.SendBulkEmail(ctx, recipients, subject, body); err != nil {
		return false, fmt.Errorf("failed to send email: %w", err)
	}

	return true, nil
}

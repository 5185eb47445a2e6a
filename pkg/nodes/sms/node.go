package sms

import (
	"context"
	"fmt"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/template"
)

type Node struct {
	sender protocol.SMSSender
}

func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	config, err := protocol.Config[*models.SMSConfig](node)
	if err != nil {
		return false, err
	}

	vars := template.Merge(execution.Variables, config.Variables)

	if err := n.sender.SendSMS(ctx, template.Process(config.To, vars), template.Process(config.Message, vars)); err != nil {
		return false, fmt.Errorf("failed to send sms: %w", err)
	}

	return true, nil
}

package approval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/template"
	"github.com/google/uuid"
)

var ErrInvalidTimeout = errors.New("invalid approval timeout")

// maxTimeoutHours is the longest timeout a time.Duration can hold.
const maxTimeoutHours = float64(math.MaxInt64 / int64(time.Hour))

type Node struct {
	notifier protocol.Notifier
	now      func() time.Time
}

// Execute records a pending approval, notifies approvers and halts the branch.
// Traversal resumes from the node's connections once the request is approved.
func (n *Node) Execute(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	config, err := protocol.Config[*models.ApprovalConfig](node)
	if err != nil {
		return false, err
	}

	if config.TimeoutHours < 0 || config.TimeoutHours > maxTimeoutHours {
		return false, fmt.Errorf("%w: %v hours", ErrInvalidTimeout, config.TimeoutHours)
	}

	now := n.now().UTC()
	request := models.ApprovalRequest{
		ID:          uuid.New().String(),
		NodeID:      node.ID,
		Approvers:   config.Approvers,
		Message:     template.Process(config.Message, execution.Variables),
		RequestedAt: now,
	}

	if config.TimeoutHours > 0 {
		expiresAt := now.Add(time.Duration(config.TimeoutHours * float64(time.Hour)))
		request.ExpiresAt = &expiresAt
	}

	title := fmt.Sprintf("Approval needed: %s", node.Name)

	err = n.notifier.Notify(ctx, config.Approvers, title, request.Message, map[string]any{
		"approval_id":  request.ID,
		"execution_id": execution.ID,
		"node_id":      node.ID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to notify approvers: %w", err)
	}

	if err := execution.AwaitApproval(request); err != nil {
		return false, err
	}

	return false, nil
}

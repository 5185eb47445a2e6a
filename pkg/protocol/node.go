// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/storeflow/pkg/models"
)

// NodeHandler performs the side effect of one node type.
// The returned bool is the continue signal: false halts traversal below this node.
type NodeHandler interface {
	Execute(ctx context.Context, execution *models.WorkflowExecution, node *models.WorkflowNode) (bool, error)
}

// NodeFactory creates node handlers and provides metadata about the node type.
type NodeFactory interface {
	// Create builds the handler with its collaborators
	Create(deps Dependencies) (NodeHandler, error)

	// ID returns the node type this factory handles
	ID() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// Dependencies are the collaborators handed to every node factory.
type Dependencies struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	Email      EmailSender
	SMS        SMSSender
	Notifier   Notifier
	Records    RecordUpdater
	Tasks      TaskCreator
	Reports    ReportGenerator
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

// SleepContext waits for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config returns the node's typed configuration, failing when the node carries another shape.
func Config[T models.NodeConfig](node *models.WorkflowNode) (T, error) {
	config, ok := node.Config.(T)
	if !ok {
		var zero T

		return zero, fmt.Errorf("node %s: expected %T config, got %T", node.ID, zero, node.Config)
	}

	return config, nil
}

package workflow

import (
	"fmt"

	"github.com/dukex/storeflow/pkg/models"
)

// ValidateGraph checks the node graph and returns its single trigger node.
// Node ids must be unique and every connection must name a node of the workflow.
// Cycles are not rejected here; the step limit bounds them at run time.
func ValidateGraph(workflow *models.Workflow) (*models.WorkflowNode, error) {
	ids := make(map[string]struct{}, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if _, dup := ids[node.ID]; dup {
			return nil, &GraphError{WorkflowID: workflow.ID, Reason: fmt.Sprintf("duplicate node id %q", node.ID)}
		}

		ids[node.ID] = struct{}{}
	}

	for _, node := range workflow.Nodes {
		for _, target := range node.Connections {
			if _, ok := ids[target]; !ok {
				return nil, &GraphError{
					WorkflowID: workflow.ID,
					Reason:     fmt.Sprintf("node %q connects to unknown node %q", node.ID, target),
				}
			}
		}
	}

	triggers := workflow.NodesOfType(models.NodeTypeTrigger)

	switch len(triggers) {
	case 0:
		return nil, &GraphError{WorkflowID: workflow.ID, Reason: "no trigger node"}
	case 1:
		return triggers[0], nil
	default:
		return nil, &GraphError{
			WorkflowID: workflow.ID,
			Reason:     fmt.Sprintf("%d trigger nodes, expected exactly one", len(triggers)),
		}
	}
}

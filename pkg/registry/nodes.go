package registry

import (
	"github.com/dukex/storeflow/pkg/nodes/action"
	"github.com/dukex/storeflow/pkg/nodes/approval"
	"github.com/dukex/storeflow/pkg/nodes/condition"
	"github.com/dukex/storeflow/pkg/nodes/delay"
	"github.com/dukex/storeflow/pkg/nodes/email"
	"github.com/dukex/storeflow/pkg/nodes/sms"
	"github.com/dukex/storeflow/pkg/nodes/trigger"
	"github.com/dukex/storeflow/pkg/nodes/webhook"
	"github.com/dukex/storeflow/pkg/protocol"
)

// DefaultNodeFactories returns a factory for every built-in node type.
func DefaultNodeFactories() []protocol.NodeFactory {
	return []protocol.NodeFactory{
		trigger.NewNodeFactory(),
		condition.NewNodeFactory(),
		action.NewNodeFactory(),
		approval.NewNodeFactory(),
		delay.NewNodeFactory(),
		webhook.NewNodeFactory(),
		email.NewNodeFactory(),
		sms.NewNodeFactory(),
	}
}

// RegisterDefaultNodes registers every built-in node type.
func (r *Registry) RegisterDefaultNodes() error {
	for _, factory := range DefaultNodeFactories() {
		if err := r.RegisterNode(factory); err != nil {
			return err
		}
	}

	return nil
}

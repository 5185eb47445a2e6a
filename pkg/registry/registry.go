// Package registry holds the node factories, their built handlers and their configuration schemas.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrNotRegistered = errors.New("node type not registered")
	ErrInvalidConfig = errors.New("invalid node configuration")
)

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[models.NodeType]protocol.NodeFactory
	schemas   map[models.NodeType]*gojsonschema.Schema
	handlers  map[models.NodeType]protocol.NodeHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		factories: make(map[models.NodeType]protocol.NodeFactory),
		schemas:   make(map[models.NodeType]*gojsonschema.Schema),
		handlers:  make(map[models.NodeType]protocol.NodeHandler),
	}
}

// RegisterNode adds a factory and compiles its configuration schema.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(factory.Schema()))
	if err != nil {
		return fmt.Errorf("invalid schema for node type %s: %w", factory.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
	r.schemas[factory.ID()] = schema
	delete(r.handlers, factory.ID())

	r.logger.Debug("registered node type", "node_type", factory.ID(), "name", factory.Name())

	return nil
}

// Build creates one handler per registered factory. Handlers are shared by every execution.
func (r *Registry) Build(deps protocol.Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if deps.Logger == nil {
		deps.Logger = r.logger
	}

	for nodeType, factory := range r.factories {
		handler, err := factory.Create(deps)
		if err != nil {
			return fmt.Errorf("failed to create %s handler: %w", nodeType, err)
		}

		r.handlers[nodeType] = handler
	}

	return nil
}

// Handler returns the built handler for a node type.
func (r *Registry) Handler(nodeType models.NodeType) (protocol.NodeHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, nodeType)
	}

	return handler, nil
}

// Factories returns the registered factories ordered by node type.
func (r *Registry) Factories() []protocol.NodeFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.NodeFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.NodeFactory) int {
		return strings.Compare(string(a.ID()), string(b.ID()))
	})

	return factories
}

// ValidateNode checks that the node's type is registered and its config satisfies the type's schema.
func (r *Registry) ValidateNode(node *models.WorkflowNode) error {
	r.mu.RLock()
	schema, ok := r.schemas[node.Type]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: node %s has type %q", ErrNotRegistered, node.ID, node.Type)
	}

	if node.ConfigMismatch() {
		return fmt.Errorf("%w: node %s of type %s carries %T", ErrInvalidConfig, node.ID, node.Type, node.Config)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(node.Config))
	if err != nil {
		return fmt.Errorf("%w: node %s: %w", ErrInvalidConfig, node.ID, err)
	}

	if !result.Valid() {
		var problems []string
		for _, resultErr := range result.Errors() {
			problems = append(problems, resultErr.String())
		}

		return fmt.Errorf("%w: node %s: %s", ErrInvalidConfig, node.ID, strings.Join(problems, "; "))
	}

	return nil
}

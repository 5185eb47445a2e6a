// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/storeflow/pkg/eventbus"
	"github.com/dukex/storeflow/pkg/httpclient"
	"github.com/dukex/storeflow/pkg/messaging"
	"github.com/dukex/storeflow/pkg/protocol"
	"github.com/dukex/storeflow/pkg/registry"
)

// NewDependencies wires node collaborators. With a publisher, email and SMS deliveries are
// handed to the bus; everything else, and email/SMS without a publisher, is logged.
func NewDependencies(logger *slog.Logger, publisher eventbus.EventPublisher) protocol.Dependencies {
	collaborator := messaging.NewLogCollaborator(logger)

	deps := protocol.Dependencies{
		Logger:     logger,
		HTTPClient: httpclient.New(),
		Email:      collaborator,
		SMS:        collaborator,
		Notifier:   collaborator,
		Records:    collaborator,
		Tasks:      collaborator,
		Reports:    collaborator,
		Now:        time.Now,
		Sleep:      protocol.SleepContext,
	}

	if publisher != nil {
		sender := messaging.NewBusSender(publisher)
		deps.Email = sender
		deps.SMS = sender
	}

	return deps
}

// NewRegistry registers the built-in node types and builds their handlers.
func NewRegistry(logger *slog.Logger, deps protocol.Dependencies) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	if err := reg.RegisterDefaultNodes(); err != nil {
		return nil, err
	}

	if err := reg.Build(deps); err != nil {
		return nil, err
	}

	return reg, nil
}

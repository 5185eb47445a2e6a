package delay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dukex/storeflow/pkg/models"
	"github.com/dukex/storeflow/pkg/protocol"
)

var ErrInvalidDelay = errors.New("invalid delay")

type Node struct {
	sleep func(ctx context.Context, d time.Duration) error
}

// Execute blocks for the configured period. Cancelling ctx interrupts the wait.
func (n *Node) Execute(ctx context.Context, _ *models.WorkflowExecution, node *models.WorkflowNode) (bool, error) {
	config, err := protocol.Config[*models.DelayConfig](node)
	if err != nil {
		return false, err
	}

	d, err := Duration(config)
	if err != nil {
		return false, err
	}

	if err := n.sleep(ctx, d); err != nil {
		return false, fmt.Errorf("delay interrupted: %w", err)
	}

	return true, nil
}

// Duration converts the configured unit and value into a time.Duration.
func Duration(config *models.DelayConfig) (time.Duration, error) {
	if config.DelayValue < 0 {
		return 0, fmt.Errorf("%w: negative value %v", ErrInvalidDelay, config.DelayValue)
	}

	var unit time.Duration

	switch config.DelayType {
	case models.DelaySeconds:
		unit = time.Second
	case models.DelayMinutes:
		unit = time.Minute
	case models.DelayHours:
		unit = time.Hour
	case models.DelayDays:
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidDelay, config.DelayType)
	}

	d := config.DelayValue * float64(unit)
	if d >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v %s is too long", ErrInvalidDelay, config.DelayValue, config.DelayType)
	}

	return time.Duration(d), nil
}

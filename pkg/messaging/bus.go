package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/storeflow/pkg/eventbus"
	"github.com/dukex/storeflow/pkg/events"
)

// BusSender hands email and SMS deliveries to whichever service consumes the notification events.
type BusSender struct {
	publisher eventbus.EventPublisher
}

func NewBusSender(publisher eventbus.EventPublisher) *BusSender {
	return &BusSender{publisher: publisher}
}

func (s *BusSender) SendBulkEmail(ctx context.Context, recipients []string, subject, body string) error {
	event := events.EmailRequested{
		BaseEvent:  events.NewBaseEvent(events.EmailRequestedEvent, ""),
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
	}

	if err := s.publisher.Publish(ctx, strings.Join(recipients, ","), event); err != nil {
		return fmt.Errorf("failed to publish email request: %w", err)
	}

	return nil
}

func (s *BusSender) SendSMS(ctx context.Context, to, message string) error {
	event := events.SMSRequested{
		BaseEvent: events.NewBaseEvent(events.SMSRequestedEvent, ""),
		To:        to,
		Message:   message,
	}

	if err := s.publisher.Publish(ctx, to, event); err != nil {
		return fmt.Errorf("failed to publish sms request: %w", err)
	}

	return nil
}

package messaging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/storeflow/pkg/events"
	"github.com/dukex/storeflow/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLogCollaborator(t *testing.T) {
	var buf bytes.Buffer

	collaborator := NewLogCollaborator(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, collaborator.SendBulkEmail(t.Context(), []string{"ann@example.com"}, "Order shipped", "body"))
	require.NoError(t, collaborator.UpdateRecord(t.Context(), "orders", "o-1", map[string]any{"status": "shipped"}))

	taskID, err := collaborator.CreateTask(t.Context(), "Call customer", "sam", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	location, err := collaborator.GenerateReport(t.Context(), "weekly_sales", nil)
	require.NoError(t, err)
	assert.Contains(t, location, "weekly_sales")

	assert.Contains(t, buf.String(), `"msg":"email sent"`)
	assert.Contains(t, buf.String(), `"table":"orders"`)
	assert.Contains(t, buf.String(), `"module":"messaging"`)
}

func TestBusSender_SendBulkEmail(t *testing.T) {
	publisher := &mocks.MockEventBus{}
	publisher.On("Publish", mock.Anything, "ann@example.com,bob@example.com", mock.MatchedBy(func(e events.EmailRequested) bool {
		return e.Subject == "Restock" && e.Body == "Grey covers are back" && e.Type == events.EmailRequestedEvent
	})).Return(nil)

	sender := NewBusSender(publisher)
	err := sender.SendBulkEmail(t.Context(), []string{"ann@example.com", "bob@example.com"}, "Restock", "Grey covers are back")
	require.NoError(t, err)

	publisher.AssertExpectations(t)
}

func TestBusSender_SendSMSPropagatesPublishFailure(t *testing.T) {
	publisher := &mocks.MockEventBus{}
	publisher.On("Publish", mock.Anything, "+4915100000", mock.AnythingOfType("events.SMSRequested")).Return(errors.New("broker down"))

	err := NewBusSender(publisher).SendSMS(t.Context(), "+4915100000", "Your order shipped")
	require.ErrorContains(t, err, "broker down")
}

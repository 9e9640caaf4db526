package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.roomchat", "roomchat-service", "test")

	userID := int64(7)
	publisher.On("Publish", mock.Anything, "audit.roomchat", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(AuditEnvelope)
		if !ok {
			return false
		}
		return envelope.SchemaVersion == 1 &&
			envelope.EventType == "audit_log" &&
			envelope.Service == "roomchat-service" &&
			envelope.Environment == "test" &&
			envelope.RequestID == "req-1" &&
			envelope.UserID != nil && *envelope.UserID == 7 &&
			envelope.Payload.Level == "INFO" &&
			envelope.Payload.Text == "user logged in"
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "user logged in", "req-1", &userID)
	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.roomchat", "roomchat-service", "test")

	publisher.On("Publish", mock.Anything, "audit.roomchat", mock.Anything).
		Return(context.DeadlineExceeded).Once()

	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "ERROR", "boom", "req-2", nil)
	})
	publisher.AssertExpectations(t)
}

func TestEmitOnNilEmitter(t *testing.T) {
	var emitter *AuditEmitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "ignored", "req-3", nil)
	})
}

package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-intake/pkg/auth"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestScreenLineItems(t *testing.T) {
	items := []models.LineItem{
		{Description: "Bread white 500g", Barcode: "3800123456789"},
		{Description: "'; DROP TABLE USERS--", Code: "B-12"},
		{Description: "Milk", Code: "1 UNION SELECT * FROM USERS"},
	}

	found := ScreenLineItems(items)

	require.Len(t, found, 2)
	assert.Equal(t, 1, found[0].Index)
	assert.Equal(t, "description", found[0].Field)
	assert.NotEmpty(t, found[0].Fingerprint)
	assert.Equal(t, 2, found[1].Index)
	assert.Equal(t, "code", found[1].Field)
}

func TestScreenLineItems_Clean(t *testing.T) {
	assert.Nil(t, ScreenLineItems([]models.LineItem{
		{Description: "Cheese 1kg", Barcode: "3800000000017"},
		{Description: "This is a normal description with spaces"},
	}))
}

func TestLogLogin(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogLogin("shop",
		&models.OperatorIdentity{UserID: "2", Login: "IVAN", Source: "plain_table"},
		models.LoginMechanismTable,
		"192.0.2.10:5000")

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "security_audit", entry.LoggerName)

	event := decodeEvent(t, entry)
	assert.Equal(t, EventLoginSucceeded, event.EventType)
	assert.Equal(t, "shop", event.Profile)
	assert.Equal(t, "2", event.UserID)
	assert.Equal(t, "info", event.Severity)
}

func TestLogLoginFailure(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogLoginFailure("shop", "IVAN", 3, "192.0.2.10:5000")

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)

	event := decodeEvent(t, entry)
	assert.Equal(t, EventLoginFailed, event.EventType)
	assert.Equal(t, "192.0.2.10:5000", event.ClientIP)
	details, ok := event.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "IVAN", details["login"])
	assert.Equal(t, "3", details["attempts"])
}

func TestLogSuspiciousInput(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	ctx := auth.WithSession(context.Background(), &services.Session{
		Identity: &models.OperatorIdentity{UserID: "7"},
	})

	auditor.LogSuspiciousInput(ctx, "shop", []SuspiciousInput{{Index: 0, Field: "description", Fingerprint: "s&1c"}}, "")

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	event := decodeEvent(t, entry)
	assert.Equal(t, EventSuspiciousInput, event.EventType)
	assert.Equal(t, "7", event.UserID)
	assert.Equal(t, "critical", event.Severity)
}

func TestLogSuspiciousInput_NothingFound(t *testing.T) {
	logger, recorded := setupTestLogger(t)

	NewSecurityAuditor(logger).LogSuspiciousInput(context.Background(), "shop", nil, "")

	assert.Equal(t, 0, recorded.Len())
}

func TestLogDeliveryPushed(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogDeliveryPushed(context.Background(), "shop", &models.DeliverySummary{
		DeliveryID:   41,
		Status:       models.DeliveryCommitted,
		DryRun:       true,
		Total:        3,
		AutoResolved: 2,
		Unresolved:   1,
	}, "")

	require.Equal(t, 1, recorded.Len())
	event := decodeEvent(t, recorded.All()[0])
	assert.Equal(t, EventDeliveryPushed, event.EventType)
	assert.Empty(t, event.UserID)
	details, ok := event.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "41", details["delivery_id"])
	assert.Equal(t, "true", details["dry_run"])
	assert.Equal(t, "2", details["written"])
}

func TestNilAuditor(t *testing.T) {
	var auditor *SecurityAuditor
	assert.NotPanics(t, func() {
		auditor.LogLoginFailure("shop", "IVAN", 1, "")
		auditor.LogDeliveryPushed(context.Background(), "shop", &models.DeliverySummary{}, "")
	})
}

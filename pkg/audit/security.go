// Package audit provides security audit logging for SIEM consumption.
// It records operator logins, delivery pushes and suspicious invoice text
// as structured JSON events under the "security_audit" logger.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/auth"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventLoginSucceeded is logged when an operator session opens.
	EventLoginSucceeded SecurityEventType = "login_succeeded"
	// EventLoginFailed is logged when every login attempt was rejected.
	EventLoginFailed SecurityEventType = "login_failed"
	// EventSuspiciousInput is logged when libinjection flags invoice text.
	EventSuspiciousInput SecurityEventType = "suspicious_input"
	// EventDeliveryPushed is logged for every delivery push, dry run included.
	EventDeliveryPushed SecurityEventType = "delivery_pushed"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	Profile   string            `json:"profile"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SuspiciousInput is one line item field that matched an injection pattern.
// Text is bound as a query parameter, so a match is never executed; it usually
// means a tampered or maliciously crafted invoice document.
type SuspiciousInput struct {
	Index       int    `json:"index"`
	Field       string `json:"field"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// ScreenLineItems checks the free-text fields of items with libinjection.
// It returns nil when every field is clean.
func ScreenLineItems(items []models.LineItem) []SuspiciousInput {
	var found []SuspiciousInput
	for i, item := range items {
		for _, f := range []struct{ name, value string }{
			{"description", item.Description},
			{"barcode", item.Barcode},
			{"code", item.Code},
		} {
			if f.value == "" {
				continue
			}
			if isSQLi, fingerprint := libinjection.IsSQLi(f.value); isSQLi {
				found = append(found, SuspiciousInput{Index: i, Field: f.name, Fingerprint: string(fingerprint)})
			}
		}
	}
	return found
}

// SecurityAuditor logs security events for SIEM consumption.
// A nil *SecurityAuditor discards every event.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogLogin records an opened operator session.
func (a *SecurityAuditor) LogLogin(profile string, identity *models.OperatorIdentity, mechanism models.LoginMechanism, clientIP string) {
	if a == nil {
		return
	}
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLoginSucceeded,
		Profile:   profile,
		UserID:    identity.UserID,
		ClientIP:  clientIP,
		Details: map[string]string{
			"login":     identity.Login,
			"source":    identity.Source,
			"mechanism": string(mechanism),
		},
		Severity: "info",
	}

	a.logger.Info("Operator logged in",
		zap.String("event_json", marshal(event)),
		zap.String("profile", profile),
		zap.String("user_id", identity.UserID),
		zap.String("client_ip", clientIP),
		zap.String("severity", "info"),
	)
}

// LogLoginFailure records a rejected login. The password is never logged.
func (a *SecurityAuditor) LogLoginFailure(profile, login string, attempts int, clientIP string) {
	if a == nil {
		return
	}
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLoginFailed,
		Profile:   profile,
		ClientIP:  clientIP,
		Details: map[string]string{
			"login":    login,
			"attempts": strconv.Itoa(attempts),
		},
		Severity: "warning",
	}

	a.logger.Warn("Operator login failed",
		zap.String("event_json", marshal(event)),
		zap.String("profile", profile),
		zap.String("login", login),
		zap.String("client_ip", clientIP),
		zap.String("severity", "warning"),
	)
}

// LogSuspiciousInput records invoice fields flagged by ScreenLineItems.
// This is logged at ERROR level with "critical" severity for immediate alerting.
func (a *SecurityAuditor) LogSuspiciousInput(ctx context.Context, profile string, found []SuspiciousInput, clientIP string) {
	if a == nil || len(found) == 0 {
		return
	}
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSuspiciousInput,
		Profile:   profile,
		UserID:    userID,
		ClientIP:  clientIP,
		Details:   found,
		Severity:  "critical",
	}

	a.logger.Error("Suspicious invoice text detected",
		zap.String("event_json", marshal(event)),
		zap.String("profile", profile),
		zap.Int("fields", len(found)),
		zap.String("fingerprint", found[0].Fingerprint),
		zap.String("client_ip", clientIP),
		zap.String("user_id", userID),
		zap.String("severity", "critical"),
	)
}

// LogDeliveryPushed records the outcome of a delivery push for the audit trail.
func (a *SecurityAuditor) LogDeliveryPushed(ctx context.Context, profile string, summary *models.DeliverySummary, clientIP string) {
	if a == nil || summary == nil {
		return
	}
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventDeliveryPushed,
		Profile:   profile,
		UserID:    userID,
		ClientIP:  clientIP,
		Details: map[string]string{
			"delivery_id": strconv.FormatInt(summary.DeliveryID, 10),
			"status":      string(summary.Status),
			"dry_run":     strconv.FormatBool(summary.DryRun),
			"written":     strconv.Itoa(summary.Written()),
			"unresolved":  strconv.Itoa(summary.Unresolved),
		},
		Severity: "info",
	}

	a.logger.Info("Delivery pushed",
		zap.String("event_json", marshal(event)),
		zap.String("profile", profile),
		zap.Int64("delivery_id", summary.DeliveryID),
		zap.String("status", string(summary.Status)),
		zap.Bool("dry_run", summary.DryRun),
		zap.String("client_ip", clientIP),
		zap.String("user_id", userID),
		zap.String("severity", "info"),
	)
}

// Ignoring error as marshaling known types should never fail
func marshal(event SecurityEvent) string {
	b, _ := json.Marshal(event)
	return string(b)
}

package auditlog

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/gatherly/intake/internal/domain"
)

// IntakeEvent describes one decided submission. Malformed requests never reach the audit trail.
type IntakeEvent struct {
	Time         time.Time
	SubmissionID string
	RuleSpec     string
	RequestID    string
	RemoteAddr   string
	UserAgent    string
	Outcome      domain.Outcome
	ObjectKeys   []string
}

func InsertIntakeOutcome(ctx context.Context, q QueryRower, service string, event IntakeEvent) (int64, error) {
	var ip net.IP
	host, _, err := net.SplitHostPort(event.RemoteAddr)
	if err == nil {
		ip = net.ParseIP(host)
	}

	return Insert(ctx, q, Event{
		OccurredAt:   event.Time,
		Actor:        "intake",
		Action:       "submission." + string(event.Outcome.Status),
		ResourceType: "submission",
		ResourceID:   event.SubmissionID,
		RequestID:    event.RequestID,
		IP:           ip,
		UserAgent:    event.UserAgent,
		Payload:      intakePayload(service, event),
	})
}

func intakePayload(service string, event IntakeEvent) map[string]any {
	payload := map[string]any{
		"service":   service,
		"rule_spec": strings.TrimSpace(event.RuleSpec),
		"status":    string(event.Outcome.Status),
	}
	if rej := event.Outcome.Rejected; rej != nil {
		fields := make([]string, 0, len(rej.Fields))
		for _, f := range rej.Fields {
			fields = append(fields, f.Field+":"+f.Reason)
		}
		payload["field_failures"] = fields
		payload["oversized"] = len(rej.Oversized)
		payload["unsupported"] = len(rej.Unsupported)
	}
	if acc := event.Outcome.Accepted; acc != nil {
		payload["attachments"] = len(acc.Routes)
	}
	if len(event.ObjectKeys) > 0 {
		payload["object_keys"] = event.ObjectKeys
	}
	return payload
}

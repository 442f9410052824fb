package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gatherly/intake/internal/domain"
	"github.com/gatherly/intake/internal/media"
	"github.com/gatherly/intake/internal/routing"
	"github.com/gatherly/intake/internal/rules"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	engine, err := rules.NewEngine(rules.DefaultSpecs(), rules.DefaultPredicates(), rules.WithClock(clock))
	if err != nil {
		t.Fatalf("NewEngine() err=%v", err)
	}
	classifier, err := media.NewClassifier(media.DefaultMaxBytes)
	if err != nil {
		t.Fatalf("NewClassifier() err=%v", err)
	}
	router, err := routing.NewRouter("gatherly", routing.WithClock(clock))
	if err != nil {
		t.Fatalf("NewRouter() err=%v", err)
	}
	p, err := NewPipeline(engine, classifier, router)
	if err != nil {
		t.Fatalf("NewPipeline() err=%v", err)
	}
	return p
}

func eventSubmission(byteLength int64) domain.Submission {
	return domain.Submission{
		Fields: map[string]any{
			"eventName": "Expo Day",
			"time":      fixedNow.Add(time.Hour).Format(time.RFC3339),
			"category":  "Social & Cultural Events",
			"pattern":   "weekly",
			"longitude": 38.7,
			"latitude":  9.0,
		},
		Attachments: []domain.Attachment{
			{ContentType: "image/jpeg", ByteLength: byteLength, OriginalName: "banner.jpg"},
		},
	}
}

func TestIngest_RegistrationRejected(t *testing.T) {
	p := newTestPipeline(t)
	outcome, err := p.Ingest(domain.Submission{Fields: map[string]any{
		"name":     "Al",
		"email":    "bad",
		"password": "abc",
		"role":     "x",
	}}, rules.SpecRegistration)
	if err != nil {
		t.Fatalf("Ingest() err=%v", err)
	}
	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status=%s, want rejected", outcome.Status)
	}
	if got := len(outcome.Rejected.Fields); got != 4 {
		t.Fatalf("field failures=%d, want 4 (%+v)", got, outcome.Rejected.Fields)
	}
}

func TestIngest_EventAccepted(t *testing.T) {
	p := newTestPipeline(t)
	outcome, err := p.Ingest(eventSubmission(2_000_000), rules.SpecEventCreation)
	if err != nil {
		t.Fatalf("Ingest() err=%v", err)
	}
	if !outcome.IsAccepted() {
		t.Fatalf("status=%s, rejection=%+v", outcome.Status, outcome.Rejected)
	}
	routes := outcome.Accepted.Routes
	if len(routes) != 1 {
		t.Fatalf("routes=%d, want 1", len(routes))
	}
	if routes[0].ResourceType != domain.MediaImage {
		t.Fatalf("ResourceType=%s, want image", routes[0].ResourceType)
	}
	if outcome.Accepted.Fields["eventName"] != "Expo Day" {
		t.Fatalf("fields=%+v", outcome.Accepted.Fields)
	}
}

func TestIngest_OversizedAttachmentOnly(t *testing.T) {
	p := newTestPipeline(t)
	outcome, err := p.Ingest(eventSubmission(60_000_000), rules.SpecEventCreation)
	if err != nil {
		t.Fatalf("Ingest() err=%v", err)
	}
	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status=%s, want rejected", outcome.Status)
	}
	rej := outcome.Rejected
	if len(rej.Fields) != 0 || len(rej.Unsupported) != 0 {
		t.Fatalf("unexpected failures: %+v", rej)
	}
	if len(rej.Oversized) != 1 {
		t.Fatalf("oversized=%+v, want 1", rej.Oversized)
	}
	if got := rej.Oversized[0]; got.Index != 0 || got.Kind != domain.KindPayloadTooLarge || got.Limit != media.DefaultMaxBytes {
		t.Fatalf("oversized[0]=%+v", got)
	}
}

func TestIngest_RejectionListsNeverNull(t *testing.T) {
	p := newTestPipeline(t)
	tests := []struct {
		name string
		sub  domain.Submission
		spec string
	}{
		{"attachment only", eventSubmission(60_000_000), rules.SpecEventCreation},
		{"fields only", domain.Submission{Fields: map[string]any{"eventId": "evt_1"}}, rules.SpecReport},
	}
	for _, tt := range tests {
		outcome, err := p.Ingest(tt.sub, tt.spec)
		if err != nil {
			t.Fatalf("%s: Ingest() err=%v", tt.name, err)
		}
		rej := outcome.Rejected
		if rej == nil {
			t.Fatalf("%s: status=%s, want rejected", tt.name, outcome.Status)
		}
		if rej.Fields == nil || rej.Oversized == nil || rej.Unsupported == nil {
			t.Fatalf("%s: nil failure list in %+v", tt.name, rej)
		}
		raw, err := json.Marshal(rej)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tt.name, err)
		}
		if bytes.Contains(raw, []byte("null")) {
			t.Fatalf("%s: rejection=%s", tt.name, raw)
		}
	}
}

func TestIngest_LatitudeOutOfRange(t *testing.T) {
	p := newTestPipeline(t)
	sub := eventSubmission(2_000_000)
	sub.Fields["latitude"] = 95
	outcome, err := p.Ingest(sub, rules.SpecEventCreation)
	if err != nil {
		t.Fatalf("Ingest() err=%v", err)
	}
	if outcome.Status != domain.StatusRejected {
		t.Fatalf("status=%s, want rejected", outcome.Status)
	}
	rej := outcome.Rejected
	if len(rej.Fields) != 1 || rej.Fields[0].Field != "latitude" || rej.Fields[0].Reason != "numeric_range" {
		t.Fatalf("field failures=%+v", rej.Fields)
	}
	if len(rej.Oversized)+len(rej.Unsupported) != 0 {
		t.Fatalf("unexpected attachment failures: %+v", rej)
	}
}

func TestIngest_EveryAttachmentEvaluated(t *testing.T) {
	p := newTestPipeline(t)
	sub := eventSubmission(2_000_000)
	sub.Fields["category"] = "Cooking"
	sub.Attachments = []domain.Attachment{
		{ContentType: "application/zip", ByteLength: 10, OriginalName: "a.zip"},
		{ContentType: "video/mp4", ByteLength: 70_000_000, OriginalName: "clip.mp4"},
		{ContentType: "image/png", ByteLength: 10, OriginalName: "ok.png"},
		{ContentType: "text/html", ByteLength: 10, OriginalName: "x.html"},
	}
	outcome, err := p.Ingest(sub, rules.SpecEventCreation)
	if err != nil {
		t.Fatalf("Ingest() err=%v", err)
	}
	rej := outcome.Rejected
	if rej == nil {
		t.Fatalf("expected rejection")
	}
	if len(rej.Fields) != 1 {
		t.Fatalf("field failures=%+v", rej.Fields)
	}
	if len(rej.Unsupported) != 2 || rej.Unsupported[0].Index != 0 || rej.Unsupported[1].Index != 3 {
		t.Fatalf("unsupported=%+v", rej.Unsupported)
	}
	if len(rej.Oversized) != 1 || rej.Oversized[0].Index != 1 {
		t.Fatalf("oversized=%+v", rej.Oversized)
	}
	if rej.Count() != 4 {
		t.Fatalf("Count()=%d, want 4", rej.Count())
	}
}

func TestIngest_RoutesAlignedAndDistinct(t *testing.T) {
	p := newTestPipeline(t)
	sub := eventSubmission(2_000_000)
	sub.Attachments = []domain.Attachment{
		{ContentType: "image/jpeg", ByteLength: 100, OriginalName: "same.jpg"},
		{ContentType: "video/mp4", ByteLength: 100, OriginalName: "promo.mp4"},
		{ContentType: "image/jpeg", ByteLength: 100, OriginalName: "same.jpg"},
	}
	outcome, err := p.Ingest(sub, rules.SpecEventCreation)
	if err != nil {
		t.Fatalf("Ingest() err=%v", err)
	}
	if !outcome.IsAccepted() {
		t.Fatalf("rejection=%+v", outcome.Rejected)
	}
	routes := outcome.Accepted.Routes
	if len(routes) != 3 {
		t.Fatalf("routes=%d, want 3", len(routes))
	}
	if routes[1].ResourceType != domain.MediaVideo {
		t.Fatalf("routes[1]=%+v, want video", routes[1])
	}
	if routes[0].ObjectKey == routes[2].ObjectKey {
		t.Fatalf("identical names produced identical keys: %q", routes[0].ObjectKey)
	}
}

func TestIngest_NoAttachments(t *testing.T) {
	p := newTestPipeline(t)
	outcome, err := p.Ingest(domain.Submission{Fields: map[string]any{
		"eventId": "evt_1",
		"rating":  "4",
	}}, rules.SpecReview)
	if err != nil {
		t.Fatalf("Ingest() err=%v", err)
	}
	if !outcome.IsAccepted() || len(outcome.Accepted.Routes) != 0 {
		t.Fatalf("outcome=%+v", outcome)
	}
}

func TestIngest_Malformed(t *testing.T) {
	p := newTestPipeline(t)
	tests := []struct {
		name string
		sub  domain.Submission
		spec string
	}{
		{"unknown spec", eventSubmission(1), "checkout"},
		{"negative size", domain.Submission{Attachments: []domain.Attachment{{ContentType: "image/png", ByteLength: -1}}}, rules.SpecReview},
		{"nested field", domain.Submission{Fields: map[string]any{"eventId": []string{"a"}}}, rules.SpecReview},
	}
	for _, tt := range tests {
		outcome, err := p.Ingest(tt.sub, tt.spec)
		if !domain.IsMalformed(err) {
			t.Fatalf("%s: err=%v, want malformed", tt.name, err)
		}
		if outcome.Status != "" {
			t.Fatalf("%s: partial outcome returned: %+v", tt.name, outcome)
		}
	}
}

type failingRouter struct{}

func (failingRouter) Route(domain.Attachment, domain.MediaPolicy) (domain.RoutingDecision, error) {
	return domain.RoutingDecision{}, errors.New("boom")
}

func TestIngest_UntypedRouterErrorPropagates(t *testing.T) {
	engine, _ := rules.NewEngine(rules.DefaultSpecs(), rules.DefaultPredicates())
	classifier, _ := media.NewClassifier(media.DefaultMaxBytes)
	p, err := NewPipeline(engine, classifier, failingRouter{})
	if err != nil {
		t.Fatalf("NewPipeline() err=%v", err)
	}
	_, err = p.Ingest(domain.Submission{
		Fields:      map[string]any{"eventId": "e1", "reason": "spam"},
		Attachments: []domain.Attachment{{ContentType: "image/png", ByteLength: 1, OriginalName: "a.png"}},
	}, rules.SpecReport)
	if err == nil || domain.KindOf(err) != "" {
		t.Fatalf("err=%v, want untyped error", err)
	}
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	if _, err := NewPipeline(nil, nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}

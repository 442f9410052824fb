package domain

// FieldFailure reports the first failing constraint of one field.
type FieldFailure struct {
	Field   string `json:"field"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// AttachmentFailure reports why the attachment at Index could not be routed.
type AttachmentFailure struct {
	Index       int      `json:"attachment_index"`
	Kind        Kind     `json:"reason"`
	ContentType string   `json:"content_type,omitempty"`
	Limit       int64    `json:"limit,omitempty"`
	Allowed     []string `json:"allowed,omitempty"`
}

type OutcomeStatus string

const (
	StatusAccepted OutcomeStatus = "accepted"
	StatusRejected OutcomeStatus = "rejected"
)

// Acceptance holds the validated fields and one routing decision per input attachment.
type Acceptance struct {
	Fields map[string]any    `json:"fields"`
	Routes []RoutingDecision `json:"routes"`
}

// Rejection collects every failure found across fields and attachments.
type Rejection struct {
	Fields      []FieldFailure      `json:"validation_failures"`
	Oversized   []AttachmentFailure `json:"oversized_attachments"`
	Unsupported []AttachmentFailure `json:"unsupported_attachments"`
}

func (r *Rejection) Empty() bool {
	return r == nil || len(r.Fields) == 0 && len(r.Oversized) == 0 && len(r.Unsupported) == 0
}

// Count returns the total number of failures carried by the rejection.
func (r *Rejection) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Fields) + len(r.Oversized) + len(r.Unsupported)
}

type Outcome struct {
	Status   OutcomeStatus `json:"status"`
	Accepted *Acceptance   `json:"accepted,omitempty"`
	Rejected *Rejection    `json:"rejected,omitempty"`
}

func (o Outcome) IsAccepted() bool {
	return o.Status == StatusAccepted
}

package domain

// MediaKind is the storage treatment chosen for an attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaPolicy is derived per attachment from its content type; it is never persisted.
type MediaPolicy struct {
	Kind             MediaKind `json:"kind"`
	AllowedEncodings []string  `json:"allowed_encodings"`
	MaxBytes         int64     `json:"max_bytes"`
}

func (p MediaPolicy) Allows(encoding string) bool {
	for _, item := range p.AllowedEncodings {
		if item == encoding {
			return true
		}
	}
	return false
}

// RoutingDecision tells the storage collaborator where and how to store one attachment.
type RoutingDecision struct {
	Namespace        string    `json:"storage_namespace"`
	ObjectKey        string    `json:"object_key"`
	ResourceType     MediaKind `json:"resource_type"`
	AllowedEncodings []string  `json:"allowed_encodings"`
}

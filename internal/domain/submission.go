package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Submission is one untrusted client request: scalar form fields plus media attachments.
type Submission struct {
	Fields      map[string]any
	Attachments []Attachment
}

// Attachment describes a binary media item. The bytes themselves never enter the core.
type Attachment struct {
	ContentType  string `json:"content_type"`
	ByteLength   int64  `json:"byte_length"`
	OriginalName string `json:"original_name"`
}

// CheckShape rejects submissions the pipeline cannot interpret at all.
func (s Submission) CheckShape() error {
	for name, value := range s.Fields {
		if strings.TrimSpace(name) == "" {
			return Malformed("field name must not be empty")
		}
		if !isScalar(value) {
			return Malformed("field %q has unsupported value type %T", name, value)
		}
	}
	for i, att := range s.Attachments {
		if att.ByteLength < 0 {
			return Malformed("attachments[%d].byte_length must be >= 0", i)
		}
	}
	return nil
}

func isScalar(value any) bool {
	switch value.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func (a Attachment) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", a.OriginalName, a.ContentType, a.ByteLength)
}

package media

import (
	"errors"
	"strings"

	"github.com/gatherly/intake/internal/domain"
)

// DefaultMaxBytes is the attachment ceiling applied to every media kind.
const DefaultMaxBytes int64 = 50 << 20

var (
	imageEncodings = []string{"jpg", "jpeg", "png", "gif", "webp"}
	videoEncodings = []string{"mp4", "mov", "avi", "mkv"}
)

type family struct {
	prefix    string
	kind      domain.MediaKind
	encodings []string
}

// The classification table is keyed by content-type prefix and never changes at runtime.
var families = []family{
	{prefix: "image/", kind: domain.MediaImage, encodings: imageEncodings},
	{prefix: "video/", kind: domain.MediaVideo, encodings: videoEncodings},
}

// Classifier maps a declared content type to the media policy that applies to it.
type Classifier struct {
	maxBytes int64
}

func NewClassifier(maxBytes int64) (*Classifier, error) {
	if maxBytes <= 0 {
		return nil, errors.New("max bytes must be positive")
	}
	return &Classifier{maxBytes: maxBytes}, nil
}

func (c *Classifier) MaxBytes() int64 {
	return c.maxBytes
}

// Classify is total: recognized families yield a policy, anything else an
// unsupported_media_type error.
func (c *Classifier) Classify(att domain.Attachment) (domain.MediaPolicy, error) {
	contentType := NormalizeContentType(att.ContentType)
	for _, f := range families {
		if strings.HasPrefix(contentType, f.prefix) && len(contentType) > len(f.prefix) {
			return domain.MediaPolicy{
				Kind:             f.kind,
				AllowedEncodings: append([]string(nil), f.encodings...),
				MaxBytes:         c.maxBytes,
			}, nil
		}
	}
	return domain.MediaPolicy{}, domain.UnsupportedMediaType(att.ContentType, AcceptedFamilies())
}

// AcceptedFamilies lists the content-type families the classifier recognizes.
func AcceptedFamilies() []string {
	out := make([]string, 0, len(families))
	for _, f := range families {
		out = append(out, f.prefix+"*")
	}
	return out
}

// NormalizeContentType lower-cases the media type and drops any parameters.
func NormalizeContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return contentType
}

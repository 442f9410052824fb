package routing

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gatherly/intake/internal/domain"
	"github.com/google/uuid"
)

const (
	maxBaseNameLen = 64
	fallbackName   = "upload"
	tokenHexDigits = 12
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Router computes where a classified attachment should be stored. It performs no I/O.
type Router struct {
	namespace string
	now       func() time.Time
	token     func() string
}

type Option func(*Router)

// WithClock replaces the timestamp source used in object keys.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTokenSource replaces the per-key random tiebreaker.
func WithTokenSource(token func() string) Option {
	return func(r *Router) {
		if token != nil {
			r.token = token
		}
	}
}

func NewRouter(namespace string, opts ...Option) (*Router, error) {
	namespace = strings.Trim(strings.TrimSpace(namespace), "/")
	if namespace == "" {
		return nil, errors.New("storage namespace is required")
	}
	r := &Router{
		namespace: namespace,
		now:       time.Now,
		token:     randomToken,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Router) Namespace() string {
	return r.namespace
}

// Route rejects oversized attachments before computing any address.
func (r *Router) Route(att domain.Attachment, policy domain.MediaPolicy) (domain.RoutingDecision, error) {
	if att.ByteLength > policy.MaxBytes {
		return domain.RoutingDecision{}, domain.PayloadTooLarge(att.ByteLength, policy.MaxBytes)
	}
	return domain.RoutingDecision{
		Namespace:        r.namespace,
		ObjectKey:        ObjectKey(att.OriginalName, r.now(), r.token()),
		ResourceType:     policy.Kind,
		AllowedEncodings: append([]string(nil), policy.AllowedEncodings...),
	}, nil
}

// ObjectKey joins the sanitized base name, a millisecond timestamp and a tiebreaker token.
func ObjectKey(originalName string, at time.Time, token string) string {
	return fmt.Sprintf("%s_%d_%s", SanitizeBaseName(originalName), at.UTC().UnixMilli(), token)
}

// SanitizeBaseName strips directories and the extension, then reduces the rest to [A-Za-z0-9_-].
func SanitizeBaseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return fallbackName
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	base = unsafeKeyChars.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if len(base) > maxBaseNameLen {
		base = strings.TrimRight(base[:maxBaseNameLen], "-")
	}
	if base == "" {
		return fallbackName
	}
	return base
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenHexDigits]
}

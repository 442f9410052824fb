package routing

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gatherly/intake/internal/domain"
)

var imagePolicy = domain.MediaPolicy{
	Kind:             domain.MediaImage,
	AllowedEncodings: []string{"jpg", "jpeg", "png", "gif", "webp"},
	MaxBytes:         50 << 20,
}

func TestRoute(t *testing.T) {
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r, err := NewRouter("gatherly", WithClock(func() time.Time { return at }), WithTokenSource(func() string { return "abc123" }))
	if err != nil {
		t.Fatalf("NewRouter() err=%v", err)
	}

	decision, err := r.Route(domain.Attachment{ContentType: "image/jpeg", ByteLength: 2_000_000, OriginalName: "banner.jpg"}, imagePolicy)
	if err != nil {
		t.Fatalf("Route() err=%v", err)
	}
	if decision.Namespace != "gatherly" {
		t.Fatalf("Namespace=%q, want gatherly", decision.Namespace)
	}
	if want := "banner_1773489600000_abc123"; decision.ObjectKey != want {
		t.Fatalf("ObjectKey=%q, want %q", decision.ObjectKey, want)
	}
	if decision.ResourceType != domain.MediaImage {
		t.Fatalf("ResourceType=%s, want image", decision.ResourceType)
	}
	if len(decision.AllowedEncodings) != 5 {
		t.Fatalf("AllowedEncodings=%v", decision.AllowedEncodings)
	}
}

func TestRoute_PayloadTooLarge(t *testing.T) {
	r, _ := NewRouter("gatherly")
	_, err := r.Route(domain.Attachment{ContentType: "image/jpeg", ByteLength: 60_000_000, OriginalName: "banner.jpg"}, imagePolicy)
	if domain.KindOf(err) != domain.KindPayloadTooLarge {
		t.Fatalf("err=%v, want payload_too_large", err)
	}

	// Exactly at the limit is still accepted.
	if _, err := r.Route(domain.Attachment{ByteLength: imagePolicy.MaxBytes, OriginalName: "a.png"}, imagePolicy); err != nil {
		t.Fatalf("Route() at limit err=%v", err)
	}
}

func TestRoute_SameNameDistinctKeys(t *testing.T) {
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r, _ := NewRouter("gatherly", WithClock(func() time.Time { return at }))
	att := domain.Attachment{ContentType: "image/png", ByteLength: 10, OriginalName: "photo.png"}

	const workers = 64
	keys := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := r.Route(att, imagePolicy)
			if err != nil {
				t.Errorf("Route() err=%v", err)
				return
			}
			keys[i] = d.ObjectKey
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, workers)
	for _, key := range keys {
		if !strings.HasPrefix(key, "photo_") {
			t.Fatalf("key %q missing base name", key)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = struct{}{}
	}
}

func TestSanitizeBaseName(t *testing.T) {
	tests := map[string]string{
		"banner.jpg":               "banner",
		"../../etc/passwd":         "passwd",
		`C:\Users\me\My Photo.PNG`: "My-Photo",
		"archive.tar.gz":           "archive-tar",
		"résumé final.mov":         "r-sum-final",
		"":                         "upload",
		".hidden":                  "upload",
		"///":                      "upload",
		strings.Repeat("a", 80):    strings.Repeat("a", 64),
	}
	for in, want := range tests {
		if got := SanitizeBaseName(in); got != want {
			t.Fatalf("SanitizeBaseName(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestNewRouter_RequiresNamespace(t *testing.T) {
	if _, err := NewRouter("  / "); err == nil {
		t.Fatalf("expected error")
	}
}

package objectstore

import (
	"context"
	"strings"
	"testing"
	"time"

	platformstore "github.com/gatherly/intake/internal/platform/objectstore"
)

func TestNewMinioStoreWithClient_RequiresClient(t *testing.T) {
	if _, err := NewMinioStoreWithClient(nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMinioStore_NilReceiver(t *testing.T) {
	var s *MinioStore
	if err := s.Put(context.Background(), "b", "k", strings.NewReader("x"), 1, PutOptions{}); err == nil {
		t.Fatalf("Put() expected error")
	}
	if _, err := s.PresignPut(context.Background(), "b", "k", time.Minute); err == nil {
		t.Fatalf("PresignPut() expected error")
	}
}

// Presigning is computed locally, so no server is needed.
func TestMinioStore_PresignPut(t *testing.T) {
	s, err := NewMinioStore(platformstore.Config{
		Endpoint:  "localhost:9000",
		AccessKey: "access",
		SecretKey: "secretsecret",
		Region:    "us-east-1",
		Bucket:    "gatherly",
	})
	if err != nil {
		t.Fatalf("NewMinioStore() err=%v", err)
	}
	url, err := s.PresignPut(context.Background(), "gatherly", "banner_1_abc", 0)
	if err != nil {
		t.Fatalf("PresignPut() err=%v", err)
	}
	if !strings.Contains(url, "/gatherly/banner_1_abc") || !strings.Contains(url, "X-Amz-Signature=") {
		t.Fatalf("url=%q", url)
	}
}

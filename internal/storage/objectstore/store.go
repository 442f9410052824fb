package objectstore

import (
	"context"
	"io"
	"time"
)

// Store is the storage collaborator that performs the byte transfer for routed attachments.
type Store interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error
	Delete(ctx context.Context, bucket, key string) error
	PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

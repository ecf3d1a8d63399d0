package s3infra

import (
	"context"
	"io"
)

// BlacklistSource reads the blacklist from a single object.
type BlacklistSource struct {
	client API
	bucket string
	key    string
}

func NewBlacklistSource(client API, bucket, key string) *BlacklistSource {
	return &BlacklistSource{client: client, bucket: bucket, key: key}
}

func (s *BlacklistSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return open(ctx, s.client, s.bucket, s.key)
}

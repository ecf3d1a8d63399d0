package s3infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/techservice/notifier/internal/domain"
)

const templateExt = ".html"

// TemplateSource keeps one object per template under a key prefix,
// named <prefix><name>.html.
type TemplateSource struct {
	client API
	bucket string
	prefix string
}

func NewTemplateSource(client API, bucket, prefix string) *TemplateSource {
	return &TemplateSource{client: client, bucket: bucket, prefix: prefix}
}

func (s *TemplateSource) Load(ctx context.Context) ([]domain.Template, error) {
	var out []domain.Template
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list templates: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, templateExt) {
				continue
			}
			body, err := s.get(ctx, key)
			if err != nil {
				return nil, err
			}
			name := strings.TrimSuffix(path.Base(key), templateExt)
			out = append(out, domain.ParseTemplate(name, body))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no templates under s3://%s/%s: %w", s.bucket, s.prefix, domain.ErrNotFound)
	}
	return out, nil
}

func (s *TemplateSource) Save(ctx context.Context, templates []domain.Template) error {
	for _, t := range templates {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.prefix + t.Name + templateExt),
			Body:        strings.NewReader(domain.FormatTemplate(t)),
			ContentType: aws.String("text/html; charset=utf-8"),
		})
		if err != nil {
			return fmt.Errorf("s3 put template %s: %w", t.Name, err)
		}
	}
	return nil
}

func (s *TemplateSource) get(ctx context.Context, key string) (string, error) {
	rc, err := open(ctx, s.client, s.bucket, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("s3 read %s: %w", key, err)
	}
	return string(b), nil
}

// open fetches an object body. A missing key yields domain.ErrNotFound.
func open(ctx context.Context, client API, bucket, key string) (io.ReadCloser, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return out.Body, nil
}

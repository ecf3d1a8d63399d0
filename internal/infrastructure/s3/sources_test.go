package s3infra

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/techservice/notifier/internal/domain"
)

type mockAPI struct{ mock.Mock }

func (m *mockAPI) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}
func (m *mockAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}
func (m *mockAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func body(s string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(s))}
}

func keyIs(key string) interface{} {
	return mock.MatchedBy(func(in *s3.GetObjectInput) bool { return aws.ToString(in.Key) == key })
}

func TestTemplateSource_Load(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("templates/urgent-request.html")},
			{Key: aws.String("templates/README.md")},
		},
	}, nil).Once()
	api.On("GetObject", mock.Anything, keyIs("templates/urgent-request.html")).
		Return(body("SUBJECT: Urgent {RequestId}\n<p>{Description}</p>"), nil).Once()

	tpls, err := NewTemplateSource(api, "bucket", "templates/").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, tpls, 1)
	assert.Equal(t, domain.Template{Name: "urgent-request", Subject: "Urgent {RequestId}", Body: "<p>{Description}</p>"}, tpls[0])
	api.AssertExpectations(t)
}

func TestTemplateSource_LoadEmpty(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{}, nil).Once()

	_, err := NewTemplateSource(api, "bucket", "templates/").Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTemplateSource_Save(t *testing.T) {
	api := &mockAPI{}
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		b, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Key) == "templates/default.html" && string(b) == "SUBJECT: Notification\n{Message}"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	err := NewTemplateSource(api, "bucket", "templates/").Save(context.Background(), []domain.Template{
		{Name: "default", Subject: "Notification", Body: "{Message}"},
	})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestBlacklistSource_Open(t *testing.T) {
	api := &mockAPI{}
	api.On("GetObject", mock.Anything, keyIs("blacklist.txt")).Return(body("spam@example.com\n"), nil).Once()

	rc, err := NewBlacklistSource(api, "bucket", "blacklist.txt").Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "spam@example.com\n", string(b))
}

func TestBlacklistSource_Missing(t *testing.T) {
	api := &mockAPI{}
	api.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{}).Once()
	api.On("GetObject", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()
	src := NewBlacklistSource(api, "bucket", "blacklist.txt")

	_, err := src.Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = src.Open(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

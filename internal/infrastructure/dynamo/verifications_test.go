package dynamo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/techservice/notifier/internal/domain"
)

type mockAPI struct{ mock.Mock }

func (m *mockAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

var created = time.Date(2026, 10, 1, 8, 0, 0, 42, time.UTC)

func storedCode(t *testing.T, version int64) *domain.VerificationCode {
	t.Helper()
	return &domain.VerificationCode{
		ID:         "c1",
		Email:      "a@b.com",
		Code:       "123456",
		Type:       domain.CodeTypeUserCreation,
		CreatedAt:  created,
		ExpiresAt:  created.Add(15 * time.Minute),
		MaxRetries: 3,
		Version:    version,
	}
}

func TestCodeRepo_LatestIsConsistentNewestFirstQuery(t *testing.T) {
	item, err := marshalCode(storedCode(t, 2))
	require.NoError(t, err)

	api := &mockAPI{}
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		et, _ := in.ExpressionAttributeValues[":et"].(*types.AttributeValueMemberS)
		return in.IndexName == nil &&
			*in.ConsistentRead && !*in.ScanIndexForward && *in.Limit == 1 &&
			et != nil && et.Value == "a@b.com#user_creation"
	})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil)

	got, err := NewCodeRepo(api, "codes").LatestByEmailAndType(context.Background(), "a@b.com", domain.CodeTypeUserCreation)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, created.Equal(got.CreatedAt))
	api.AssertExpectations(t)
}

func TestCodeRepo_LatestNotFound(t *testing.T) {
	api := &mockAPI{}
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

	_, err := NewCodeRepo(api, "codes").LatestByEmailAndType(context.Background(), "a@b.com", domain.CodeTypeUserCreation)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCodeRepo_CreateConflict(t *testing.T) {
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return *in.ConditionExpression == "attribute_not_exists(email_type)"
	})).Return(nil, &types.ConditionalCheckFailedException{})

	v := storedCode(t, 0)
	err := NewCodeRepo(api, "codes").Create(context.Background(), v)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, int64(1), v.Version)
}

func TestCodeRepo_UpdateGuardsVersion(t *testing.T) {
	api := &mockAPI{}
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		exp, _ := in.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN)
		next, _ := in.Item["version"].(*types.AttributeValueMemberN)
		return exp != nil && exp.Value == "3" && next != nil && next.Value == "4"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()
	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{}).Once()

	repo := NewCodeRepo(api, "codes")
	v := storedCode(t, 3)
	require.NoError(t, repo.Update(context.Background(), v))
	assert.Equal(t, int64(4), v.Version)

	err := repo.Update(context.Background(), v)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, int64(4), v.Version)
}

func TestCodeRepo_ReloadReadsByCompositeKey(t *testing.T) {
	fresh, err := marshalCode(storedCode(t, 5))
	require.NoError(t, err)

	api := &mockAPI{}
	api.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		et, _ := in.Key["email_type"].(*types.AttributeValueMemberS)
		ca, _ := in.Key["created_at"].(*types.AttributeValueMemberN)
		return *in.ConsistentRead && len(in.Key) == 2 &&
			et != nil && et.Value == "a@b.com#user_creation" &&
			ca != nil && ca.Value == fmt.Sprint(created.UnixNano())
	})).Return(&dynamodb.GetItemOutput{Item: fresh}, nil).Once()
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil).Once()

	repo := NewCodeRepo(api, "codes")
	got, err := repo.Reload(context.Background(), storedCode(t, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)

	_, err = repo.Reload(context.Background(), storedCode(t, 1))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	api.AssertExpectations(t)
}

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/techservice/notifier/internal/domain"
)

// CodeRepo stores verification codes.
// PK: email_type (hash) + created_at (range, unix nanos), so the newest code
// for a pair is a strongly consistent single-item query.
// Updates are guarded by a version attribute so concurrent writers cannot
// silently overwrite each other.
type CodeRepo struct {
	client    API
	tableName string
}

func NewCodeRepo(client API, tableName string) *CodeRepo {
	return &CodeRepo{client: client, tableName: tableName}
}

// Create inserts a new record. The record's Version is set to 1.
func (r *CodeRepo) Create(ctx context.Context, v *domain.VerificationCode) error {
	v.Version = 1
	item, err := marshalCode(v)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(email_type)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("verification code %s already exists: %w", v.ID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// LatestByEmailAndType returns the most recently created code for the pair.
func (r *CodeRepo) LatestByEmailAndType(ctx context.Context, email string, t domain.CodeType) (*domain.VerificationCode, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("email_type = :et"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":et": &types.AttributeValueMemberS{Value: domain.EmailTypeKey(email, t)},
		},
		ConsistentRead:   aws.Bool(true),
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("verification code not found: %w", domain.ErrNotFound)
	}
	return unmarshalCode(out.Items[0])
}

// Reload reads the stored state of the record v identifies.
func (r *CodeRepo) Reload(ctx context.Context, v *domain.VerificationCode) (*domain.VerificationCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            codeKey(v),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification code not found: %w", domain.ErrNotFound)
	}
	return unmarshalCode(out.Item)
}

// Update replaces the record if its stored version still equals v.Version,
// then advances v.Version. A stale version yields domain.ErrConflict.
func (r *CodeRepo) Update(ctx context.Context, v *domain.VerificationCode) error {
	expected := v.Version
	next := *v
	next.Version = expected + 1
	item, err := marshalCode(&next)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("#ver = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#ver": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("verification code %s modified concurrently: %w", v.ID, domain.ErrConflict)
		}
		return err
	}
	v.Version = next.Version
	return nil
}

func marshalCode(v *domain.VerificationCode) (map[string]types.AttributeValue, error) {
	v.EmailType = domain.EmailTypeKey(v.Email, v.Type)
	v.CreatedAtNano = v.CreatedAt.UnixNano()
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("marshal verification code: %w", err)
	}
	return item, nil
}

func unmarshalCode(item map[string]types.AttributeValue) (*domain.VerificationCode, error) {
	var v domain.VerificationCode
	if err := attributevalue.UnmarshalMap(item, &v); err != nil {
		return nil, fmt.Errorf("unmarshal verification code: %w", err)
	}
	v.CreatedAt = time.Unix(0, v.CreatedAtNano).UTC()
	return &v, nil
}

func codeKey(v *domain.VerificationCode) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"email_type": &types.AttributeValueMemberS{Value: domain.EmailTypeKey(v.Email, v.Type)},
		"created_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(v.CreatedAt.UnixNano(), 10)},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

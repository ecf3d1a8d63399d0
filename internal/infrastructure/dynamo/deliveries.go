package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/techservice/notifier/internal/domain"
)

// deliveryItem is the stored form of a delivery result. expires_at drives
// the table's TTL.
type deliveryItem struct {
	domain.DeliveryResult
	ExpiresAt int64 `dynamodbav:"expires_at"`
}

// DeliveryRepo archives terminal delivery results by tracking id.
// PK: tracking_id. Items are write-once.
type DeliveryRepo struct {
	client    API
	tableName string
	retention time.Duration
}

func NewDeliveryRepo(client API, tableName string, retention time.Duration) *DeliveryRepo {
	return &DeliveryRepo{client: client, tableName: tableName, retention: retention}
}

func (r *DeliveryRepo) Put(ctx context.Context, res domain.DeliveryResult) error {
	item, err := marshalDelivery(res, r.retention)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(tracking_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("delivery %s already archived: %w", res.TrackingID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *DeliveryRepo) Get(ctx context.Context, trackingID string) (domain.DeliveryResult, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("tracking_id", trackingID),
	})
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	if out.Item == nil {
		return domain.DeliveryResult{}, fmt.Errorf("delivery not found: %w", domain.ErrNotFound)
	}
	var it deliveryItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return domain.DeliveryResult{}, fmt.Errorf("unmarshal delivery: %w", err)
	}
	return it.DeliveryResult, nil
}

func marshalDelivery(res domain.DeliveryResult, retention time.Duration) (map[string]types.AttributeValue, error) {
	it := deliveryItem{DeliveryResult: res}
	if retention > 0 {
		it.ExpiresAt = res.SentAt.Add(retention).Unix()
	}
	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("marshal delivery: %w", err)
	}
	return item, nil
}

package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/notify-relay/internal/domain"
)

// unprocessedRetries bounds how often a batch delete resubmits throttled items.
const unprocessedRetries = 3

// SubscriptionRepo provides typed DynamoDB operations for the push subscriptions table.
// The partition key is domain.SubscriptionID(user, endpoint), so a save is an upsert
// on that pair.
type SubscriptionRepo struct {
	client    API
	tableName string
}

func NewSubscriptionRepo(client API, tableName string) *SubscriptionRepo {
	return &SubscriptionRepo{client: client, tableName: tableName}
}

// Save upserts the subscription. created_at survives repeated saves.
func (r *SubscriptionRepo) Save(ctx context.Context, s *domain.PushSubscription) error {
	now := s.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id := s.SubscriptionID
	if id == "" {
		id = domain.SubscriptionID(s.UserID, s.Endpoint)
	}
	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":uid": s.UserID,
		":ep":  s.Endpoint,
		":pk":  s.P256dh,
		":au":  s.Auth,
		":now": now,
	})
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("subscription_id", id),
		UpdateExpression:          aws.String("SET user_id = :uid, endpoint = :ep, p256dh = :pk, auth = :au, updated_at = :now, created_at = if_not_exists(created_at, :now)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	return r.query(ctx, userIndex, "user_id", userID)
}

// Delete removes every subscription registered for endpoint.
func (r *SubscriptionRepo) Delete(ctx context.Context, endpoint string) error {
	subs, err := r.query(ctx, endpointIndex, "endpoint", endpoint)
	if err != nil {
		return err
	}
	ids := make([]string, len(subs))
	for i := range subs {
		ids[i] = subs[i].SubscriptionID
	}
	return r.DeleteMany(ctx, ids)
}

// DeleteForUser removes userID's registration of endpoint. The key is derived,
// so no index query is needed.
func (r *SubscriptionRepo) DeleteForUser(ctx context.Context, userID, endpoint string) error {
	return r.DeleteMany(ctx, []string{domain.SubscriptionID(userID, endpoint)})
}

// DeleteMany removes the given subscriptions in batches of 25. Missing ids are
// not an error.
func (r *SubscriptionRepo) DeleteMany(ctx context.Context, ids []string) error {
	for _, batch := range chunk(ids, maxBatchWrite) {
		reqs := make([]types.WriteRequest, len(batch))
		for i, id := range batch {
			reqs[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: strKey("subscription_id", id)}}
		}
		pending := map[string][]types.WriteRequest{r.tableName: reqs}
		for attempt := 0; len(pending[r.tableName]) > 0; attempt++ {
			if attempt > unprocessedRetries {
				return fmt.Errorf("delete subscriptions: %d items left unprocessed", len(pending[r.tableName]))
			}
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("delete subscriptions: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

func (r *SubscriptionRepo) query(ctx context.Context, index, attr, value string) ([]domain.PushSubscription, error) {
	var (
		subs     []domain.PushSubscription
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(index),
			KeyConditionExpression: aws.String("#k = :v"),
			ExpressionAttributeNames: map[string]string{
				"#k": attr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberS{Value: value},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query subscriptions by %s: %w", attr, err)
		}
		var page []domain.PushSubscription
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal subscriptions: %w", err)
		}
		subs = append(subs, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return subs, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

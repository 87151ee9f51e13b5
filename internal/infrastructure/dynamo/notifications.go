package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/notify-relay/internal/domain"
)

// NotificationRepo provides typed DynamoDB operations for the notifications table.
type NotificationRepo struct {
	client    API
	tableName string
}

func NewNotificationRepo(client API, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListUnread queries the user_id-created_at GSI and filters for readed=0.
func (r *NotificationRepo) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	var (
		notifications []domain.Notification
		startKey      map[string]types.AttributeValue
	)
	for {
		out, err := r.client.Query(ctx, r.unreadQuery(userID, types.SelectAllProjectedAttributes, startKey))
		if err != nil {
			return nil, err
		}
		var page []domain.Notification
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		notifications = append(notifications, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return notifications, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// CountUnread runs the same query as ListUnread with Select=COUNT.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var (
		total    int
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := r.client.Query(ctx, r.unreadQuery(userID, types.SelectCount, startKey))
		if err != nil {
			return 0, err
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (r *NotificationRepo) MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{"readed": 1})
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, err
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Attributes, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) unreadQuery(userID string, sel types.Select, startKey map[string]types.AttributeValue) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(userCreatedIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("readed = :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":  &types.AttributeValueMemberS{Value: userID},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		Select:            sel,
		ScanIndexForward:  aws.Bool(false),
		ExclusiveStartKey: startKey,
	}
}

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/notify-relay/internal/config"
)

// Upper bound on waiting for a freshly created table to turn ACTIVE.
const tableReadyWait = 2 * time.Minute

// TableAdmin is the subset of *dynamodb.Client used to provision tables.
type TableAdmin interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	dynamodb.DescribeTableAPIClient
}

var _ TableAdmin = (*dynamodb.Client)(nil)

// Bootstrap provisions the subscription and notification tables with the
// indexes the repos query. Existing tables are left untouched.
func Bootstrap(ctx context.Context, client TableAdmin, tables config.DynamoTables) error {
	var errs []error
	for _, in := range tableDefinitions(tables) {
		if err := ensureTable(ctx, client, in); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func tableDefinitions(tables config.DynamoTables) []*dynamodb.CreateTableInput {
	return []*dynamodb.CreateTableInput{
		{
			TableName:            aws.String(tables.PushSubscriptions),
			BillingMode:          types.BillingModePayPerRequest,
			AttributeDefinitions: stringAttrs("subscription_id", "user_id", "endpoint"),
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("subscription_id"), KeyType: types.KeyTypeHash}},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				index(userIndex, "user_id", ""),
				index(endpointIndex, "endpoint", ""),
			},
		},
		{
			TableName:            aws.String(tables.Notifications),
			BillingMode:          types.BillingModePayPerRequest,
			AttributeDefinitions: stringAttrs("notification_id", "user_id", "created_at"),
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("notification_id"), KeyType: types.KeyTypeHash}},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				index(userCreatedIndex, "user_id", "created_at"),
			},
		},
	}
}

func stringAttrs(names ...string) []types.AttributeDefinition {
	defs := make([]types.AttributeDefinition, len(names))
	for i, n := range names {
		defs[i] = types.AttributeDefinition{AttributeName: aws.String(n), AttributeType: types.ScalarAttributeTypeS}
	}
	return defs
}

// index describes an all-projection GSI; sortKey may be empty.
func index(name, hashKey, sortKey string) types.GlobalSecondaryIndex {
	keys := []types.KeySchemaElement{{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash}}
	if sortKey != "" {
		keys = append(keys, types.KeySchemaElement{AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange})
	}
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(name),
		KeySchema:  keys,
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func ensureTable(ctx context.Context, client TableAdmin, in *dynamodb.CreateTableInput) error {
	name := aws.ToString(in.TableName)
	_, err := client.CreateTable(ctx, in)
	var inUse *types.ResourceInUseException
	switch {
	case errors.As(err, &inUse):
		slog.Debug("table exists", "table", name)
		return nil
	case err != nil:
		return fmt.Errorf("create table %s: %w", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: in.TableName}, tableReadyWait); err != nil {
		return fmt.Errorf("wait for table %s: %w", name, err)
	}
	slog.Info("created table", "table", name)
	return nil
}

package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/notify-relay/internal/config"
	"github.com/notify-relay/internal/infrastructure/awscfg"
)

// NewClient returns a DynamoDB client for cfg.AWSRegion, pointed at LocalStack
// when AWS_ENDPOINT_URL is set.
func NewClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	awsCfg, err := awscfg.Load(ctx, cfg, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = awscfg.Endpoint(cfg)
	}), nil
}

package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/notify-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

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

func (m *mockAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockAPI) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.BatchWriteItemOutput)
	return out, args.Error(1)
}

func itemsOf(t *testing.T, subs ...domain.PushSubscription) []map[string]types.AttributeValue {
	t.Helper()
	items := make([]map[string]types.AttributeValue, len(subs))
	for i := range subs {
		item, err := attributevalue.MarshalMap(subs[i])
		require.NoError(t, err)
		items[i] = item
	}
	return items
}

// --- tests ---

func TestSubscriptionRepo_Save_UpsertsOnDerivedKey(t *testing.T) {
	api := &mockAPI{}
	repo := NewSubscriptionRepo(api, "subs")
	sub := domain.NewPushSubscription("u1", "https://push.example/e1", "pk", "au", time.Now().UTC())

	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		key, ok := in.Key["subscription_id"].(*types.AttributeValueMemberS)
		return ok && key.Value == domain.SubscriptionID("u1", "https://push.example/e1") &&
			*in.TableName == "subs"
	})).Return(&dynamodb.UpdateItemOutput{}, nil).Twice()

	require.NoError(t, repo.Save(context.Background(), sub))
	require.NoError(t, repo.Save(context.Background(), sub))
	api.AssertExpectations(t)
}

func TestSubscriptionRepo_Save_WrapsError(t *testing.T) {
	api := &mockAPI{}
	repo := NewSubscriptionRepo(api, "subs")
	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := repo.Save(context.Background(), domain.NewPushSubscription("u1", "https://e", "pk", "au", time.Now()))
	assert.ErrorContains(t, err, "save subscription")
}

func TestSubscriptionRepo_ListByUser_FollowsPages(t *testing.T) {
	api := &mockAPI{}
	repo := NewSubscriptionRepo(api, "subs")
	s1 := *domain.NewPushSubscription("u1", "https://e/1", "pk", "au", time.Now().UTC())
	s2 := *domain.NewPushSubscription("u1", "https://e/2", "pk", "au", time.Now().UTC())
	cursor := strKey("subscription_id", s1.SubscriptionID)

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.IndexName == "user_id-index" && in.ExclusiveStartKey == nil
	})).Return(&dynamodb.QueryOutput{Items: itemsOf(t, s1), LastEvaluatedKey: cursor}, nil).Once()
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&dynamodb.QueryOutput{Items: itemsOf(t, s2)}, nil).Once()

	subs, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "https://e/1", subs[0].Endpoint)
	assert.Equal(t, "https://e/2", subs[1].Endpoint)
	api.AssertExpectations(t)
}

func TestSubscriptionRepo_DeleteMany_RetriesUnprocessed(t *testing.T) {
	api := &mockAPI{}
	repo := NewSubscriptionRepo(api, "subs")
	leftover := map[string][]types.WriteRequest{
		"subs": {{DeleteRequest: &types.DeleteRequest{Key: strKey("subscription_id", "b")}}},
	}
	api.On("BatchWriteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchWriteItemInput) bool {
		return len(in.RequestItems["subs"]) == 2
	})).Return(&dynamodb.BatchWriteItemOutput{UnprocessedItems: leftover}, nil).Once()
	api.On("BatchWriteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchWriteItemInput) bool {
		return len(in.RequestItems["subs"]) == 1
	})).Return(&dynamodb.BatchWriteItemOutput{}, nil).Once()

	require.NoError(t, repo.DeleteMany(context.Background(), []string{"a", "b"}))
	api.AssertExpectations(t)
}

func TestSubscriptionRepo_DeleteMany_EmptyIsNoop(t *testing.T) {
	api := &mockAPI{}
	repo := NewSubscriptionRepo(api, "subs")
	require.NoError(t, repo.DeleteMany(context.Background(), nil))
	api.AssertNotCalled(t, "BatchWriteItem", mock.Anything, mock.Anything)
}

func TestSubscriptionRepo_Delete_ByEndpoint(t *testing.T) {
	api := &mockAPI{}
	repo := NewSubscriptionRepo(api, "subs")
	s1 := *domain.NewPushSubscription("u1", "https://e/1", "pk", "au", time.Now().UTC())

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.IndexName == "endpoint-index"
	})).Return(&dynamodb.QueryOutput{Items: itemsOf(t, s1)}, nil).Once()
	api.On("BatchWriteItem", mock.Anything, mock.Anything).Return(&dynamodb.BatchWriteItemOutput{}, nil).Once()

	require.NoError(t, repo.Delete(context.Background(), "https://e/1"))
	api.AssertExpectations(t)
}

func TestSubscriptionRepo_Delete_AbsentEndpoint(t *testing.T) {
	api := &mockAPI{}
	repo := NewSubscriptionRepo(api, "subs")
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()

	require.NoError(t, repo.Delete(context.Background(), "https://gone"))
	api.AssertNotCalled(t, "BatchWriteItem", mock.Anything, mock.Anything)
}

func TestSubscriptionRepo_DeleteForUser_UsesDerivedKey(t *testing.T) {
	api := &mockAPI{}
	repo := NewSubscriptionRepo(api, "subs")
	want := domain.SubscriptionID("u2", "https://e/1")

	api.On("BatchWriteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchWriteItemInput) bool {
		reqs := in.RequestItems["subs"]
		if len(reqs) != 1 || reqs[0].DeleteRequest == nil {
			return false
		}
		key, ok := reqs[0].DeleteRequest.Key["subscription_id"].(*types.AttributeValueMemberS)
		return ok && key.Value == want
	})).Return(&dynamodb.BatchWriteItemOutput{}, nil).Once()

	require.NoError(t, repo.DeleteForUser(context.Background(), "u2", "https://e/1"))
	api.AssertExpectations(t)
	api.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestNotificationRepo_Get_NotFound(t *testing.T) {
	api := &mockAPI{}
	repo := NewNotificationRepo(api, "notifications")
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := repo.Get(context.Background(), "n1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationRepo_CountUnread_SumsPages(t *testing.T) {
	api := &mockAPI{}
	repo := NewNotificationRepo(api, "notifications")
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.Select == types.SelectCount && in.ExclusiveStartKey == nil
	})).Return(&dynamodb.QueryOutput{Count: 3, LastEvaluatedKey: strKey("notification_id", "n3")}, nil).Once()
	api.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Count: 2}, nil).Once()

	n, err := repo.CountUnread(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

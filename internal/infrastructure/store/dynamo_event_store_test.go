package store

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	head        int
	transactErr error
	putErr      error
	transacts   []*dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.head == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	item := map[string]types.AttributeValue{
		"version": &types.AttributeValueMemberN{Value: strconv.Itoa(f.head)},
	}
	return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}, Count: 1}, nil
}

func (f *fakeDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transacts = append(f.transacts, params)
	return &dynamodb.TransactWriteItemsOutput{}, f.transactErr
}

func TestDynamoEventStore_AppendWritesOneTransaction(t *testing.T) {
	client := &fakeDynamo{head: 2}
	es := NewDynamoEventStore(client, "events", "snapshots", nil)

	res, err := es.Append(context.Background(), "s-1", 2, mustEvents(t, "s-1", 3, "A", "B"))
	require.NoError(t, err)
	assert.Equal(t, 4, res.ToVersion)

	require.Len(t, client.transacts, 1)
	items := client.transacts[0].TransactItems
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, "events", aws.ToString(item.Put.TableName))
		assert.Contains(t, aws.ToString(item.Put.ConditionExpression), "attribute_not_exists")
	}
}

func TestDynamoEventStore_AppendStaleHead(t *testing.T) {
	client := &fakeDynamo{head: 3}
	es := NewDynamoEventStore(client, "events", "snapshots", nil)

	_, err := es.Append(context.Background(), "s-1", 2, mustEvents(t, "s-1", 3, "A"))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Empty(t, client.transacts)
}

func TestDynamoEventStore_AppendLostRace(t *testing.T) {
	client := &fakeDynamo{
		head: 2,
		transactErr: &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
		},
	}
	es := NewDynamoEventStore(client, "events", "snapshots", nil)

	_, err := es.Append(context.Background(), "s-1", 2, mustEvents(t, "s-1", 3, "A"))
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	var ce *ConcurrencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, -1, ce.Actual)
}

func TestDynamoEventStore_AppendOtherFailure(t *testing.T) {
	client := &fakeDynamo{transactErr: errors.New("throttled")}
	es := NewDynamoEventStore(client, "events", "snapshots", nil)

	_, err := es.Append(context.Background(), "s-1", 0, mustEvents(t, "s-1", 1, "A"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConcurrencyConflict)
}

func TestDynamoEventStore_SaveOlderSnapshotIsIgnored(t *testing.T) {
	client := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{}}
	es := NewDynamoEventStore(client, "events", "snapshots", nil)

	err := es.SaveSnapshot(context.Background(), &Snapshot{AggregateID: "s-1", Version: 3, State: []byte(`{}`)})
	assert.NoError(t, err)
}

func TestIsConditionalFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"conditional check", &types.ConditionalCheckFailedException{}, true},
		{"cancelled on condition", &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
		}, true},
		{"cancelled otherwise", &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{{Code: aws.String("ThrottlingError")}},
		}, false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConditionalFailure(tt.err))
		})
	}
}

package ddb

import (
	"context"
	"lunchbell/internal/types"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const registryName = "lunchbell"

// SnapshotStore keeps the whole snapshot in one item (PK REGISTRY#lunchbell, SK SNAPSHOT).
type SnapshotStore struct {
	table string
	cli   tableAPI
}

type snapshotItem struct {
	PK          string                       `dynamodbav:"PK"`
	SK          string                       `dynamodbav:"SK"`
	Subscribers map[string]map[string]string `dynamodbav:"subscribers"`
	UpdatedAt   int64                        `dynamodbav:"updated_at"`
}

// NewSnapshotStore creates the table when it does not exist yet.
func NewSnapshotStore(ctx context.Context, table string, cli *dynamodb.Client) (*SnapshotStore, error) {
	return newSnapshotStore(ctx, table, cli)
}

func newSnapshotStore(ctx context.Context, table string, cli tableAPI) (*SnapshotStore, error) {
	if err := createTableIfNotExists(ctx, cli, table); err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "")
	}
	return &SnapshotStore{table: table, cli: cli}, nil
}

func (s *SnapshotStore) key() map[string]ddbTypes.AttributeValue {
	return map[string]ddbTypes.AttributeValue{
		"PK": &ddbTypes.AttributeValueMemberS{Value: pkRegistry(registryName)},
		"SK": &ddbTypes.AttributeValueMemberS{Value: skSnapshot()},
	}
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (types.Snapshot, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		ConsistentRead: awsBool(true),
		Key:            s.key(),
	})
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "get snapshot item")
	}
	if out.Item == nil {
		return nil, types.ErrNotFound
	}
	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "unmarshal snapshot item")
	}
	return types.SnapshotFromRaw(item.Subscribers), nil
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot types.Snapshot) error {
	item := snapshotItem{
		PK:          pkRegistry(registryName),
		SK:          skSnapshot(),
		Subscribers: snapshot.Raw(),
		UpdatedAt:   time.Now().Unix(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	if _, err := s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      av,
	}); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "put snapshot item")
	}
	return nil
}

package testdoubles

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDb implements db.DynamoDbClient.
//
// GetItem and PutItem keep items in memory keyed by the string value of
// KeyName. UpdateItem only records its input and returns UpdateItemOutput,
// since emulating update expressions isn't worth it when
// db/dynamodb_contract_test.go covers them against DynamoDB Local.
type DynamoDb struct {
	mu      sync.Mutex
	KeyName string
	Items   map[string]map[string]dbtypes.AttributeValue

	ServerErr error

	CreateTableInput  *dynamodb.CreateTableInput
	CreateTableOutput *dynamodb.CreateTableOutput
	CreateTableErr    error
	DescTableCalls    int
	DescTableOutput   *dynamodb.DescribeTableOutput
	DescTableErr      error

	UpdateItemInputs []*dynamodb.UpdateItemInput
	UpdateItemOutput *dynamodb.UpdateItemOutput
	UpdateItemErr    error
}

func NewDynamoDb(keyName string) *DynamoDb {
	tableDesc := &dbtypes.TableDescription{
		TableName:   aws.String(""),
		TableStatus: dbtypes.TableStatusActive,
	}

	return &DynamoDb{
		KeyName: keyName,
		Items:   map[string]map[string]dbtypes.AttributeValue{},
		CreateTableOutput: &dynamodb.CreateTableOutput{
			TableDescription: tableDesc,
		},
		DescTableOutput:  &dynamodb.DescribeTableOutput{Table: tableDesc},
		UpdateItemOutput: &dynamodb.UpdateItemOutput{},
	}
}

func (client *DynamoDb) key(attrs map[string]dbtypes.AttributeValue) string {
	if attr, ok := attrs[client.KeyName].(*dbtypes.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}

func (client *DynamoDb) CreateTable(
	_ context.Context,
	input *dynamodb.CreateTableInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.CreateTableOutput, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.CreateTableInput = input
	return client.CreateTableOutput, client.CreateTableErr
}

func (client *DynamoDb) DescribeTable(
	context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options),
) (*dynamodb.DescribeTableOutput, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.DescTableCalls++
	return client.DescTableOutput, client.DescTableErr
}

func (client *DynamoDb) DeleteTable(
	context.Context, *dynamodb.DeleteTableInput, ...func(*dynamodb.Options),
) (*dynamodb.DeleteTableOutput, error) {
	return &dynamodb.DeleteTableOutput{}, client.ServerErr
}

func (client *DynamoDb) GetItem(
	_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.GetItemOutput, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.ServerErr != nil {
		return nil, client.ServerErr
	}
	return &dynamodb.GetItemOutput{Item: client.Items[client.key(input.Key)]}, nil
}

func (client *DynamoDb) PutItem(
	_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.ServerErr != nil {
		return nil, client.ServerErr
	}
	client.Items[client.key(input.Item)] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (client *DynamoDb) UpdateItem(
	_ context.Context,
	input *dynamodb.UpdateItemInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.UpdateItemOutput, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.UpdateItemInputs = append(client.UpdateItemInputs, input)
	return client.UpdateItemOutput, client.UpdateItemErr
}

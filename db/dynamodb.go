package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/mabumusa1/ses-plugin/ops"
)

type DynamoDbClient interface {
	CreateTable(
		context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options),
	) (*dynamodb.CreateTableOutput, error)

	DescribeTable(
		context.Context,
		*dynamodb.DescribeTableInput,
		...func(*dynamodb.Options),
	) (*dynamodb.DescribeTableOutput, error)

	DeleteTable(
		context.Context, *dynamodb.DeleteTableInput, ...func(*dynamodb.Options),
	) (*dynamodb.DeleteTableOutput, error)

	GetItem(
		context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options),
	) (*dynamodb.GetItemOutput, error)

	PutItem(
		context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options),
	) (*dynamodb.PutItemOutput, error)

	UpdateItem(
		context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options),
	) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDb stores one AccountSettings item per access key.
//
// https://docs.aws.amazon.com/amazondynamodb/latest/developerguide/WorkingWithItems.html
type DynamoDb struct {
	Client    DynamoDbClient
	TableName string
	Now       func() time.Time
}

var _ SettingsStore = &DynamoDb{}

func NewDynamoDb(cfg *aws.Config, tableName string) *DynamoDb {
	return &DynamoDb{
		Client:    dynamodb.NewFromConfig(*cfg),
		TableName: tableName,
		Now:       time.Now,
	}
}

var DynamoDbPrimaryKey string = "accessKey"

var DynamoDbCreateTableInput = &dynamodb.CreateTableInput{
	AttributeDefinitions: []dbtypes.AttributeDefinition{
		{
			AttributeName: &DynamoDbPrimaryKey,
			AttributeType: dbtypes.ScalarAttributeTypeS,
		},
	},
	KeySchema: []dbtypes.KeySchemaElement{
		{AttributeName: &DynamoDbPrimaryKey, KeyType: dbtypes.KeyTypeHash},
	},
	BillingMode: dbtypes.BillingModePayPerRequest,
}

func (db *DynamoDb) CreateTable(ctx context.Context) (err error) {
	var input dynamodb.CreateTableInput = *DynamoDbCreateTableInput
	input.TableName = &db.TableName

	if _, err = db.Client.CreateTable(ctx, &input); err != nil {
		err = ops.AwsError("failed to create db table "+db.TableName, err)
	}
	return
}

func (db *DynamoDb) WaitForTable(
	ctx context.Context, maxAttempts int, sleep func(),
) error {
	if maxAttempts <= 0 {
		const errFmt = "maxAttempts to wait for DB table must be >= 0, got: %d"
		return fmt.Errorf(errFmt, maxAttempts)
	}

	for current := 0; ; {
		td, err := db.DescribeTable(ctx)

		if err == nil && td.TableStatus == dbtypes.TableStatusActive {
			return nil
		} else if current++; current == maxAttempts {
			const errFmt = "db table %s not active after " +
				"%d attempts to check; last error: %s"
			return fmt.Errorf(errFmt, db.TableName, maxAttempts, err)
		}
		sleep()
	}
}

func (db *DynamoDb) DescribeTable(
	ctx context.Context,
) (td *dbtypes.TableDescription, err error) {
	input := &dynamodb.DescribeTableInput{TableName: &db.TableName}
	output, descErr := db.Client.DescribeTable(ctx, input)

	if descErr != nil {
		err = ops.AwsError("failed to describe db table "+db.TableName, descErr)
	} else {
		td = output.Table
	}
	return
}

func (db *DynamoDb) DeleteTable(ctx context.Context) error {
	input := &dynamodb.DeleteTableInput{TableName: &db.TableName}
	if _, err := db.Client.DeleteTable(ctx, input); err != nil {
		return ops.AwsError("failed to delete db table "+db.TableName, err)
	}
	return nil
}

type (
	dbString     = dbtypes.AttributeValueMemberS
	dbNumber     = dbtypes.AttributeValueMemberN
	dbStringSet  = dbtypes.AttributeValueMemberSS
	dbAttributes = map[string]dbtypes.AttributeValue
)

func settingsKey(accessKey string) dbAttributes {
	return dbAttributes{DynamoDbPrimaryKey: &dbString{Value: accessKey}}
}

func toDynamoDbTimestamp(t time.Time) *dbNumber {
	return &dbNumber{Value: strconv.FormatInt(t.Unix(), 10)}
}

func getAttribute[T any, V any](
	name string, attrs dbAttributes, parse func(T) (V, error),
) (value V, err error) {
	if attr, ok := attrs[name]; !ok {
		err = fmt.Errorf("attribute '%s' not in: %+v", name, attrs)
	} else if dbAttr, ok := attr.(T); !ok {
		// Inspired by: https://stackoverflow.com/a/72626548
		const errFmt = "attribute '%s' is of type %T, not %T: %+v"
		err = fmt.Errorf(errFmt, name, attr, new(T), attr)
	} else if value, err = parse(dbAttr); err != nil {
		value = *new(V)
		const errFmt = "failed to parse '%s' from: %+v: %s"
		err = fmt.Errorf(errFmt, name, dbAttr, err)
	}
	return
}

func (db *DynamoDb) now() time.Time {
	if db.Now == nil {
		return time.Now()
	}
	return db.Now()
}

func (db *DynamoDb) GetSettings(
	ctx context.Context, accessKey string,
) (settings *AccountSettings, err error) {
	input := &dynamodb.GetItemInput{
		Key: settingsKey(accessKey), TableName: &db.TableName,
	}
	var output *dynamodb.GetItemOutput

	if output, err = db.Client.GetItem(ctx, input); err != nil {
		err = ops.AwsError("failed to get settings for "+accessKey, err)
	} else if len(output.Item) == 0 {
		err = fmt.Errorf("%w: %s", ErrSettingsNotFound, accessKey)
	} else {
		settings = &AccountSettings{}
		if err = attributevalue.UnmarshalMap(output.Item, settings); err != nil {
			const errFmt = "failed to parse settings for %s: %w"
			settings, err = nil, fmt.Errorf(errFmt, accessKey, err)
		}
	}
	return
}

func (db *DynamoDb) PutSettings(
	ctx context.Context, settings *AccountSettings,
) (err error) {
	var item dbAttributes

	if item, err = attributevalue.MarshalMap(settings); err != nil {
		const errFmt = "failed to marshal settings for %s: %w"
		return fmt.Errorf(errFmt, settings.AccessKey, err)
	}

	input := &dynamodb.PutItemInput{Item: item, TableName: &db.TableName}
	if _, err = db.Client.PutItem(ctx, input); err != nil {
		err = ops.AwsError("failed to put settings for "+settings.AccessKey, err)
	}
	return
}

func (db *DynamoDb) SetMaxSendRate(
	ctx context.Context, accessKey string, rate int,
) error {
	input := &dynamodb.UpdateItemInput{
		TableName:        &db.TableName,
		Key:              settingsKey(accessKey),
		UpdateExpression: aws.String("SET maxSendRate = :rate, updated = :now"),
		ExpressionAttributeValues: dbAttributes{
			":rate": &dbNumber{Value: strconv.Itoa(rate)},
			":now":  toDynamoDbTimestamp(db.now()),
		},
	}

	if _, err := db.Client.UpdateItem(ctx, input); err != nil {
		return ops.AwsError("failed to set max send rate for "+accessKey, err)
	}
	return nil
}

// AddTemplate adds name to the account's template string set.
//
// ADD on a string set is atomic, and UPDATED_OLD returns the set as it was
// before the update, so name was added only if it wasn't already there.
func (db *DynamoDb) AddTemplate(
	ctx context.Context, accessKey, name string,
) (bool, error) {
	input := &dynamodb.UpdateItemInput{
		TableName:        &db.TableName,
		Key:              settingsKey(accessKey),
		UpdateExpression: aws.String("ADD templates :name SET updated = :now"),
		ExpressionAttributeValues: dbAttributes{
			":name": &dbStringSet{Value: []string{name}},
			":now":  toDynamoDbTimestamp(db.now()),
		},
		ReturnValues: dbtypes.ReturnValueUpdatedOld,
	}

	output, err := db.Client.UpdateItem(ctx, input)
	if err != nil {
		return false, ops.AwsError("failed to register template "+name, err)
	} else if _, ok := output.Attributes["templates"]; !ok {
		return true, nil
	}

	previous, err := getAttribute(
		"templates",
		output.Attributes,
		func(attr *dbStringSet) ([]string, error) { return attr.Value, nil },
	)
	if err != nil {
		return false, fmt.Errorf("failed to register template %s: %w", name, err)
	}
	return !slices.Contains(previous, name), nil
}

func (db *DynamoDb) RemoveTemplate(
	ctx context.Context, accessKey, name string,
) error {
	const update = "DELETE templates :name SET updated = :now"
	input := &dynamodb.UpdateItemInput{
		TableName:           &db.TableName,
		Key:                 settingsKey(accessKey),
		UpdateExpression:    aws.String(update),
		ConditionExpression: aws.String("attribute_exists(accessKey)"),
		ExpressionAttributeValues: dbAttributes{
			":name": &dbStringSet{Value: []string{name}},
			":now":  toDynamoDbTimestamp(db.now()),
		},
	}
	var condErr *dbtypes.ConditionalCheckFailedException

	if _, err := db.Client.UpdateItem(ctx, input); errors.As(err, &condErr) {
		return nil
	} else if err != nil {
		return ops.AwsError("failed to unregister template "+name, err)
	}
	return nil
}

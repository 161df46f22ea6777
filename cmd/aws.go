package cmd

import (
	"context"
	"log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/mabumusa1/ses-plugin/config"
	"github.com/mabumusa1/ses-plugin/db"
	"github.com/mabumusa1/ses-plugin/ops"
	"github.com/mabumusa1/ses-plugin/transport"
)

type LambdaClient interface {
	Invoke(
		context.Context,
		*lambda.InvokeInput,
		...func(*lambda.Options),
	) (*lambda.InvokeOutput, error)
}

type LambdaClientFactoryFunc func(ctx context.Context) (LambdaClient, error)

// NewLambdaClient uses the default AWS configuration, since the Lambda
// function may belong to a different account than the SES credentials.
func NewLambdaClient(ctx context.Context) (LambdaClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return lambda.NewFromConfig(cfg), nil
}

type TransportFactoryFunc func(
	ctx context.Context, opts *config.Options, logger *log.Logger,
) (*transport.Transport, error)

func NewTransport(
	ctx context.Context, opts *config.Options, logger *log.Logger,
) (*transport.Transport, error) {
	return transport.New(ctx, opts, logger)
}

type DynamoDbFactoryFunc func(
	ctx context.Context, opts *config.Options, tableName string,
) (*db.DynamoDb, error)

func NewDynamoDb(
	ctx context.Context, opts *config.Options, tableName string,
) (*db.DynamoDb, error) {
	cfg, err := ops.LoadAwsConfig(
		ctx, opts.Region, opts.AccessKey, opts.SecretKey,
	)
	if err != nil {
		return nil, err
	}
	return db.NewDynamoDb(&cfg, tableName), nil
}

type PostgresFactoryFunc func(dsn string) (*db.Postgres, error)

func NewPostgres(dsn string) (*db.Postgres, error) {
	return db.NewPostgres(dsn)
}

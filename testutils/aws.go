package testutils

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"
	"gotest.tools/assert"
)

type BaseEndpoint string

func createBaseEndpoint() (*BaseEndpoint, error) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, fmt.Errorf("could not create local base endpoint: %s", err)
	}
	defer listener.Close()

	endpoint := BaseEndpoint(listener.Addr().String())
	return &endpoint, nil
}

// AwsConfig returns a configuration for talking to a local AWS service
// emulator, such as DynamoDB Local, at the returned endpoint.
//
// Inspired by:
// - https://davidagood.com/dynamodb-local-go/
// - https://github.com/aws/aws-sdk-go-v2/blob/main/config/example_test.go
func AwsConfig() (*aws.Config, *BaseEndpoint, error) {
	baseEndpoint, err := createBaseEndpoint()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadDefaultConfig(
		context.Background(),
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     "AKID",
				SecretAccessKey: "SECRET",
				SessionToken:    "SESSION",
				Source:          "example hard coded credentials",
			},
		}),
		config.WithRegion("local"),
	)
	if err != nil {
		err = fmt.Errorf("error loading local AWS configuration: %s", err)
		return nil, nil, err
	}
	return &cfg, baseEndpoint, nil
}

func AwsServerError(msg string) error {
	return &smithy.GenericAPIError{Message: msg, Fault: smithy.FaultServer}
}

func AwsClientError(code, msg string) error {
	return &smithy.GenericAPIError{
		Code: code, Message: msg, Fault: smithy.FaultClient,
	}
}

func AssertAwsStringEqual(t *testing.T, expected string, actual *string) {
	t.Helper()
	assert.Equal(t, expected, aws.ToString(actual))
}

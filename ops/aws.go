package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"
)

// AwsError prefixes err with context and marks server faults as ErrExternal.
//
// Inspired by:
// https://aws.github.io/aws-sdk-go-v2/docs/handling-errors/#api-error-responses
func AwsError(prefix string, err error) error {
	var apiErr smithy.APIError

	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultServer {
		return fmt.Errorf("%s: %w: %w", prefix, ErrExternal, err)
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

// AwsErrorCode returns the API error code from err, or the empty string if err
// isn't a smithy.APIError.
func AwsErrorCode(err error) string {
	var apiErr smithy.APIError

	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// LoadAwsConfig loads the default AWS configuration for region.
//
// When both accessKey and secretKey are set, they replace the default
// credential chain.
func LoadAwsConfig(
	ctx context.Context, region, accessKey, secretKey string,
) (cfg aws.Config, err error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	if accessKey != "" && secretKey != "" {
		provider := credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)
		opts = append(opts, config.WithCredentialsProvider(provider))
	}

	if cfg, err = config.LoadDefaultConfig(ctx, opts...); err != nil {
		err = fmt.Errorf("failed to load AWS config: %w", err)
	}
	return
}

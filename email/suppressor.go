package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/mabumusa1/ses-plugin/ops"
	"github.com/mabumusa1/ses-plugin/types"
)

// Suppressor wraps methods for the [SES account-level suppression list].
//
// [SES account-level suppression list]: https://docs.aws.amazon.com/ses/latest/dg/sending-email-suppression-list.html
type Suppressor interface {
	// IsSuppressed checks whether an email address is on the SES account-level
	// suppression list.
	IsSuppressed(ctx context.Context, email string) (bool, error)

	// RecordFailure adds the instruction's address to the suppression list,
	// with a reason matching its category.
	RecordFailure(ctx context.Context, inst types.SuppressionInstruction) error

	// Unsuppress removes an email address from the SES account-level
	// suppression list.
	Unsuppress(ctx context.Context, email string) error
}

type SesSuppressor struct {
	Client SesV2Api
}

func (s *SesSuppressor) IsSuppressed(
	ctx context.Context, email string,
) (verdict bool, err error) {
	input := &sesv2.GetSuppressedDestinationInput{EmailAddress: &email}
	var notFoundErr *sesv2types.NotFoundException

	if _, err = s.Client.GetSuppressedDestination(ctx, input); err == nil {
		verdict = true
	} else if errors.As(err, &notFoundErr) {
		err = nil
	} else {
		const errFmt = "unexpected error while checking if %s suppressed"
		err = ops.AwsError(fmt.Sprintf(errFmt, email), err)
	}
	return
}

func (s *SesSuppressor) RecordFailure(
	ctx context.Context, inst types.SuppressionInstruction,
) error {
	reason := sesv2types.SuppressionListReasonBounce
	if inst.Category == types.SuppressionUnsubscribed {
		reason = sesv2types.SuppressionListReasonComplaint
	}
	input := &sesv2.PutSuppressedDestinationInput{
		EmailAddress: aws.String(inst.Address),
		Reason:       reason,
	}

	_, err := s.Client.PutSuppressedDestination(ctx, input)

	if err != nil {
		err = ops.AwsError("failed to suppress "+inst.Address, err)
	}
	return err
}

func (s *SesSuppressor) Unsuppress(ctx context.Context, email string) error {
	input := &sesv2.DeleteSuppressedDestinationInput{
		EmailAddress: aws.String(email),
	}

	_, err := s.Client.DeleteSuppressedDestination(ctx, input)

	if err != nil {
		err = ops.AwsError("failed to unsuppress "+email, err)
	}
	return err
}

package email

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

// SesV2Api is the subset of *sesv2.Client used by this package.
type SesV2Api interface {
	GetAccount(
		context.Context, *sesv2.GetAccountInput, ...func(*sesv2.Options),
	) (*sesv2.GetAccountOutput, error)

	CreateEmailTemplate(
		context.Context,
		*sesv2.CreateEmailTemplateInput,
		...func(*sesv2.Options),
	) (*sesv2.CreateEmailTemplateOutput, error)

	DeleteEmailTemplate(
		context.Context,
		*sesv2.DeleteEmailTemplateInput,
		...func(*sesv2.Options),
	) (*sesv2.DeleteEmailTemplateOutput, error)

	ListEmailTemplates(
		context.Context,
		*sesv2.ListEmailTemplatesInput,
		...func(*sesv2.Options),
	) (*sesv2.ListEmailTemplatesOutput, error)

	SendEmail(
		context.Context, *sesv2.SendEmailInput, ...func(*sesv2.Options),
	) (*sesv2.SendEmailOutput, error)

	SendBulkEmail(
		context.Context, *sesv2.SendBulkEmailInput, ...func(*sesv2.Options),
	) (*sesv2.SendBulkEmailOutput, error)

	GetSuppressedDestination(
		context.Context,
		*sesv2.GetSuppressedDestinationInput,
		...func(*sesv2.Options),
	) (*sesv2.GetSuppressedDestinationOutput, error)

	PutSuppressedDestination(
		context.Context,
		*sesv2.PutSuppressedDestinationInput,
		...func(*sesv2.Options),
	) (*sesv2.PutSuppressedDestinationOutput, error)

	DeleteSuppressedDestination(
		context.Context,
		*sesv2.DeleteSuppressedDestinationInput,
		...func(*sesv2.Options),
	) (*sesv2.DeleteSuppressedDestinationOutput, error)
}

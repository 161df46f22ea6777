package testdoubles

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SesV2 records every call made through email.SesV2Api. It's safe for
// concurrent use, since raw sends go out from several goroutines at once.
type SesV2 struct {
	mu sync.Mutex

	AccountOutput   *sesv2.GetAccountOutput
	AccountError    error
	GetAccountCalls int

	CreateTemplateInputs []*sesv2.CreateEmailTemplateInput
	CreateTemplateError  error

	DeleteTemplateInputs []*sesv2.DeleteEmailTemplateInput
	DeleteTemplateErrors map[string]error

	// ListTemplates returns Templates in pages of ListPageSize, or all at
	// once when ListPageSize is zero.
	Templates          []string
	ListPageSize       int
	ListTemplatesCalls int
	ListTemplatesError error

	// SendEmailErrors is keyed by the bare email address of the first
	// ToAddresses entry.
	SendEmailInputs []*sesv2.SendEmailInput
	SendEmailErrors map[string]error
	SendEmailHook   func(ctx context.Context, input *sesv2.SendEmailInput) error

	// BulkErrors is keyed by the zero based index of the SendBulkEmail call.
	// BulkStatuses returns the status of each entry; an empty status ends
	// the results at that index.
	SendBulkInputs []*sesv2.SendBulkEmailInput
	BulkErrors     map[int]error
	BulkStatuses   func(call, index int) sesv2types.BulkEmailStatus

	GetSuppressedInputs []*sesv2.GetSuppressedDestinationInput
	GetSuppressedError  error

	PutSuppressedInputs []*sesv2.PutSuppressedDestinationInput
	PutSuppressedError  error

	DeleteSuppressedInputs []*sesv2.DeleteSuppressedDestinationInput
	DeleteSuppressedError  error
}

func NewSesV2() *SesV2 {
	return &SesV2{
		AccountOutput: &sesv2.GetAccountOutput{
			SendingEnabled: true,
			SendQuota: &sesv2types.SendQuota{
				MaxSendRate:     10.0,
				Max24HourSend:   50000.0,
				SentLast24Hours: 0.0,
			},
		},
		DeleteTemplateErrors: map[string]error{},
		SendEmailErrors:      map[string]error{},
		BulkErrors:           map[int]error{},
	}
}

func (ses *SesV2) SetQuota(maxSendRate, max24HourSend, sentLast24Hours float64) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.AccountOutput.SendQuota = &sesv2types.SendQuota{
		MaxSendRate:     maxSendRate,
		Max24HourSend:   max24HourSend,
		SentLast24Hours: sentLast24Hours,
	}
}

// NumSendCalls counts the template creation and send calls received.
func (ses *SesV2) NumSendCalls() int {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	return len(ses.CreateTemplateInputs) +
		len(ses.SendEmailInputs) +
		len(ses.SendBulkInputs)
}

// SentTo returns the bare email addresses of every SendEmail call, in call
// order.
func (ses *SesV2) SentTo() []string {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	result := make([]string, 0, len(ses.SendEmailInputs))

	for _, input := range ses.SendEmailInputs {
		result = append(result, firstRecipient(input.Destination))
	}
	return result
}

func (ses *SesV2) GetAccount(
	_ context.Context, _ *sesv2.GetAccountInput, _ ...func(*sesv2.Options),
) (*sesv2.GetAccountOutput, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.GetAccountCalls++

	if ses.AccountError != nil {
		return nil, ses.AccountError
	}
	output := *ses.AccountOutput
	return &output, nil
}

func (ses *SesV2) CreateEmailTemplate(
	_ context.Context,
	input *sesv2.CreateEmailTemplateInput,
	_ ...func(*sesv2.Options),
) (*sesv2.CreateEmailTemplateOutput, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.CreateTemplateInputs = append(ses.CreateTemplateInputs, input)

	if ses.CreateTemplateError != nil {
		return nil, ses.CreateTemplateError
	}
	return &sesv2.CreateEmailTemplateOutput{}, nil
}

func (ses *SesV2) DeleteEmailTemplate(
	_ context.Context,
	input *sesv2.DeleteEmailTemplateInput,
	_ ...func(*sesv2.Options),
) (*sesv2.DeleteEmailTemplateOutput, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.DeleteTemplateInputs = append(ses.DeleteTemplateInputs, input)

	if err := ses.DeleteTemplateErrors[aws.ToString(input.TemplateName)]; err != nil {
		return nil, err
	}
	return &sesv2.DeleteEmailTemplateOutput{}, nil
}

func (ses *SesV2) ListEmailTemplates(
	_ context.Context,
	input *sesv2.ListEmailTemplatesInput,
	_ ...func(*sesv2.Options),
) (*sesv2.ListEmailTemplatesOutput, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.ListTemplatesCalls++

	if ses.ListTemplatesError != nil {
		return nil, ses.ListTemplatesError
	}
	start := 0
	if input.NextToken != nil {
		start, _ = strconv.Atoi(*input.NextToken)
	}
	end := len(ses.Templates)
	if ses.ListPageSize != 0 {
		end = min(start+ses.ListPageSize, end)
	}

	output := &sesv2.ListEmailTemplatesOutput{}
	for _, name := range ses.Templates[start:end] {
		output.TemplatesMetadata = append(
			output.TemplatesMetadata,
			sesv2types.EmailTemplateMetadata{TemplateName: aws.String(name)},
		)
	}
	if end < len(ses.Templates) {
		output.NextToken = aws.String(strconv.Itoa(end))
	}
	return output, nil
}

func (ses *SesV2) SendEmail(
	ctx context.Context,
	input *sesv2.SendEmailInput,
	_ ...func(*sesv2.Options),
) (*sesv2.SendEmailOutput, error) {
	ses.mu.Lock()
	ses.SendEmailInputs = append(ses.SendEmailInputs, input)
	msgId := fmt.Sprintf("msg-%d", len(ses.SendEmailInputs))
	err := ses.SendEmailErrors[firstRecipient(input.Destination)]
	hook := ses.SendEmailHook
	ses.mu.Unlock()

	if err == nil && hook != nil {
		err = hook(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String(msgId)}, nil
}

func (ses *SesV2) SendBulkEmail(
	_ context.Context,
	input *sesv2.SendBulkEmailInput,
	_ ...func(*sesv2.Options),
) (*sesv2.SendBulkEmailOutput, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	call := len(ses.SendBulkInputs)
	ses.SendBulkInputs = append(ses.SendBulkInputs, input)

	if err := ses.BulkErrors[call]; err != nil {
		return nil, err
	}

	results := make([]sesv2types.BulkEmailEntryResult, 0, len(input.BulkEmailEntries))
	for i := range input.BulkEmailEntries {
		status := sesv2types.BulkEmailStatusSuccess
		if ses.BulkStatuses != nil {
			status = ses.BulkStatuses(call, i)
		}
		if status == "" {
			break
		}
		result := sesv2types.BulkEmailEntryResult{Status: status}

		if status == sesv2types.BulkEmailStatusSuccess {
			result.MessageId = aws.String(fmt.Sprintf("bulk-%d-%d", call, i))
		} else {
			result.Error = aws.String("rejected: " + string(status))
		}
		results = append(results, result)
	}
	return &sesv2.SendBulkEmailOutput{BulkEmailEntryResults: results}, nil
}

func (ses *SesV2) GetSuppressedDestination(
	_ context.Context,
	input *sesv2.GetSuppressedDestinationInput,
	_ ...func(*sesv2.Options),
) (*sesv2.GetSuppressedDestinationOutput, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.GetSuppressedInputs = append(ses.GetSuppressedInputs, input)

	if ses.GetSuppressedError != nil {
		return nil, ses.GetSuppressedError
	}
	return &sesv2.GetSuppressedDestinationOutput{}, nil
}

func (ses *SesV2) PutSuppressedDestination(
	_ context.Context,
	input *sesv2.PutSuppressedDestinationInput,
	_ ...func(*sesv2.Options),
) (*sesv2.PutSuppressedDestinationOutput, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.PutSuppressedInputs = append(ses.PutSuppressedInputs, input)

	if ses.PutSuppressedError != nil {
		return nil, ses.PutSuppressedError
	}
	return &sesv2.PutSuppressedDestinationOutput{}, nil
}

func (ses *SesV2) DeleteSuppressedDestination(
	_ context.Context,
	input *sesv2.DeleteSuppressedDestinationInput,
	_ ...func(*sesv2.Options),
) (*sesv2.DeleteSuppressedDestinationOutput, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.DeleteSuppressedInputs = append(ses.DeleteSuppressedInputs, input)

	if ses.DeleteSuppressedError != nil {
		return nil, ses.DeleteSuppressedError
	}
	return &sesv2.DeleteSuppressedDestinationOutput{}, nil
}

func firstRecipient(dest *sesv2types.Destination) string {
	if dest == nil || len(dest.ToAddresses) == 0 {
		return ""
	}
	if addr, err := mail.ParseAddress(dest.ToAddresses[0]); err == nil {
		return addr.Address
	}
	return dest.ToAddresses[0]
}

package email

import (
	"bytes"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"
)

// MaxBulkBatchSize is the SES limit on destinations per SendBulkEmail call.
const MaxBulkBatchSize = 50

// RawPayload is one SendEmail request. Recipient is nil when the message
// carries no recipient metadata and goes out once to its own To, Cc, and Bcc.
type RawPayload struct {
	Recipient *RecipientMetadata
	Input     *sesv2.SendEmailInput
}

// BulkPayload is one SendBulkEmail request covering Recipients, which begin
// at Offset within the message's Recipients.
type BulkPayload struct {
	Offset     int
	Recipients []*RecipientMetadata
	Input      *sesv2.SendBulkEmailInput
}

type PayloadBuilder struct {
	ConfigurationSet string
	BatchSize        int
	Now              func() time.Time
	NewId            func() string
}

func (pb *PayloadBuilder) batchSize() int {
	if pb.BatchSize <= 0 || pb.BatchSize > MaxBulkBatchSize {
		return MaxBulkBatchSize
	}
	return pb.BatchSize
}

func (pb *PayloadBuilder) now() time.Time {
	if pb.Now == nil {
		return time.Now()
	}
	return pb.Now()
}

func (pb *PayloadBuilder) newId() string {
	if pb.NewId == nil {
		return uuid.NewString()
	}
	return pb.NewId()
}

// envelope holds the addresses shared by every payload built from a message.
type envelope struct {
	From    *Address
	ReplyTo []*Address
	To      []*Address
	Cc      []*Address
	Bcc     []*Address
}

func parseEnvelope(msg *OutboundMessage) (env *envelope, err error) {
	if invalid := invalidHeaderNames(msg.Headers); len(invalid) != 0 {
		const errFmt = "%w: invalid header name %q"
		return nil, fmt.Errorf(errFmt, ErrInvalidMessage, invalid[0])
	}

	env = &envelope{}
	if env.From, err = ParseAddress(msg.From); err != nil {
		return nil, fmt.Errorf("%w: From: %w", ErrInvalidMessage, err)
	}
	lists := []struct {
		field string
		src   []string
		dst   *[]*Address
	}{
		{"ReplyTo", msg.ReplyTo, &env.ReplyTo},
		{"To", msg.To, &env.To},
		{"Cc", msg.Cc, &env.Cc},
		{"Bcc", msg.Bcc, &env.Bcc},
	}
	for _, list := range lists {
		if *list.dst, err = ParseAddresses(list.src); err != nil {
			const errFmt = "%w: %s: %w"
			return nil, fmt.Errorf(errFmt, ErrInvalidMessage, list.field, err)
		}
	}
	return
}

func (env *envelope) messageId(id string) string {
	_, domain, _ := strings.Cut(env.From.Email, "@")
	return id + "@" + domain
}

// BuildRaw returns the SendEmail payloads for msg, one per recipient. Each
// payload is built only when the consumer asks for it, so the sequence is
// single use. It stops after yielding the first build error.
func (pb *PayloadBuilder) BuildRaw(
	msg *OutboundMessage,
) iter.Seq2[*RawPayload, error] {
	return func(yield func(*RawPayload, error) bool) {
		env, err := parseEnvelope(msg)
		if err != nil {
			yield(nil, err)
			return
		}
		sh := newSesHeaders(msg.Headers, msg.Tags, pb.ConfigurationSet)

		if len(msg.Recipients) == 0 {
			yield(pb.buildRaw(msg, env, sh, nil, env.To, nil))
			return
		}

		tokens := DeclaredTokens(msg.Recipients)
		for _, r := range msg.Recipients {
			addr, err := r.Address()
			if err != nil {
				yield(nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err))
				return
			}
			to := []*Address{addr}
			replacer := tokens.Replacer(r.Tokens)
			payload, err := pb.buildRaw(msg, env, sh, r, to, replacer)

			if !yield(payload, err) || err != nil {
				return
			}
		}
	}
}

func (pb *PayloadBuilder) buildRaw(
	msg *OutboundMessage,
	env *envelope,
	sh *sesHeaders,
	recipient *RecipientMetadata,
	to []*Address,
	replacer *strings.Replacer,
) (*RawPayload, error) {
	render := func(s string) string {
		if replacer == nil {
			return s
		}
		return replacer.Replace(s)
	}
	mm := &mimeMessage{
		From:        env.From,
		To:          to,
		Cc:          env.Cc,
		ReplyTo:     env.ReplyTo,
		Subject:     render(msg.Subject),
		TextBody:    render(msg.TextBody),
		HtmlBody:    render(msg.HtmlBody),
		Headers:     sh.headersFor(recipient),
		Attachments: msg.Attachments,
		MessageId:   env.messageId(pb.newId()),
		Date:        pb.now(),
	}

	buf := &bytes.Buffer{}
	if err := mm.Emit(buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(env.From.String()),
		ReplyToAddresses: StringifyAddresses(env.ReplyTo),
		Destination: &sesv2types.Destination{
			ToAddresses:  StringifyAddresses(to),
			CcAddresses:  StringifyAddresses(env.Cc),
			BccAddresses: StringifyAddresses(env.Bcc),
		},
		Content: &sesv2types.EmailContent{
			Raw: &sesv2types.RawMessage{Data: buf.Bytes()},
		},
	}
	sh.applyToSend(input)
	return &RawPayload{Recipient: recipient, Input: input}, nil
}

// BuildBulk returns the template for msg along with the SendBulkEmail
// payloads that use it, at most BatchSize destinations apiece.
func (pb *PayloadBuilder) BuildBulk(
	msg *OutboundMessage,
) (td *TemplateDescriptor, payloads []*BulkPayload, err error) {
	if len(msg.Recipients) == 0 {
		return nil, nil, ErrNoRecipientMetadata
	} else if msg.HasAttachments() {
		const errMsg = "%w: messages with attachments can't use templates"
		return nil, nil, fmt.Errorf(errMsg, ErrInvalidMessage)
	}

	var env *envelope
	if env, err = parseEnvelope(msg); err != nil {
		return
	}

	tokens := DeclaredTokens(msg.Recipients)
	var mapping map[string]string
	if mapping, err = ProviderTokens(tokens); err != nil {
		return
	}

	subject := providerTemplate(msg.Subject, tokens, mapping)
	text := providerTemplate(msg.TextBody, tokens, mapping)
	html := providerTemplate(msg.HtmlBody, tokens, mapping)
	td = &TemplateDescriptor{
		Name:    TemplateName(msg.Recipients[0].EmailId, subject, text, html),
		Subject: subject,
		Text:    text,
		Html:    html,
	}

	var defaultData string
	if defaultData, err = templateData(nil, mapping); err != nil {
		return
	}

	sh := newSesHeaders(msg.Headers, msg.Tags, pb.ConfigurationSet)
	size := pb.batchSize()

	for offset := 0; offset < len(msg.Recipients); offset += size {
		chunk := msg.Recipients[offset:min(offset+size, len(msg.Recipients))]
		var payload *BulkPayload

		payload, err = pb.buildBulk(env, sh, td.Name, defaultData, chunk, mapping)
		if err != nil {
			return nil, nil, err
		}
		payload.Offset = offset
		payloads = append(payloads, payload)
	}
	return
}

func (pb *PayloadBuilder) buildBulk(
	env *envelope,
	sh *sesHeaders,
	templateName, defaultData string,
	recipients []*RecipientMetadata,
	mapping map[string]string,
) (*BulkPayload, error) {
	entries := make([]sesv2types.BulkEmailEntry, 0, len(recipients))

	for _, r := range recipients {
		addr, err := r.Address()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		data, err := templateData(r.Tokens, mapping)
		if err != nil {
			return nil, err
		}
		entries = append(entries, sesv2types.BulkEmailEntry{
			Destination: &sesv2types.Destination{
				ToAddresses:  []string{addr.String()},
				CcAddresses:  StringifyAddresses(env.Cc),
				BccAddresses: StringifyAddresses(env.Bcc),
			},
			ReplacementEmailContent: &sesv2types.ReplacementEmailContent{
				ReplacementTemplate: &sesv2types.ReplacementTemplate{
					ReplacementTemplateData: aws.String(data),
				},
			},
		})
	}

	input := &sesv2.SendBulkEmailInput{
		FromEmailAddress: aws.String(env.From.String()),
		ReplyToAddresses: StringifyAddresses(env.ReplyTo),
		BulkEmailEntries: entries,
		DefaultContent: &sesv2types.BulkEmailContent{
			Template: &sesv2types.Template{
				TemplateName: aws.String(templateName),
				TemplateData: aws.String(defaultData),
			},
		},
	}
	sh.applyToBulk(input)
	return &BulkPayload{Recipients: recipients, Input: input}, nil
}

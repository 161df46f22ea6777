package handler

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/mabumusa1/ses-plugin/types"
)

// DefaultSubscribeHostPattern matches the hosts of SNS SubscribeURL values.
const DefaultSubscribeHostPattern = `^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`

type HttpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// https://docs.aws.amazon.com/ses/latest/dg/notification-contents.html#complaint-object
var complaintFeedbackReasons = map[string]string{
	"abuse":        "unsolicited email or some other kind of email abuse",
	"auth-failure": "email authentication failure report",
	"fraud":        "some kind of fraud or phishing activity",
	"not-spam":     "the reporting entity does not consider the message spam",
	"other":        "feedback that doesn't fit into other registered types",
	"virus":        "a virus was found in the originating message",
}

// Interpreter translates webhook payloads into suppression instructions.
//
// It confirms SNS subscriptions by fetching the SubscribeURL through Client.
// When HostPattern is set, it doesn't fetch URLs whose host doesn't match.
type Interpreter struct {
	Client      HttpDoer
	HostPattern *regexp.Regexp
	Log         *log.Logger
}

// Interpret parses raw with ParseEnvelope and returns the instructions it
// implies.
//
// The error wraps ErrBadPayload for malformed payloads or ErrUnknownType for
// unrecognized types. Subscription confirmation failures are only logged.
func (in *Interpreter) Interpret(
	ctx context.Context, raw []byte,
) ([]types.SuppressionInstruction, error) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		in.Log.Printf("%s: %s", err, raw)
		return nil, err
	}
	return in.interpret(ctx, env, raw)
}

// InterpretNotification parses raw with ParseNotification and returns the
// instructions it implies.
func (in *Interpreter) InterpretNotification(
	ctx context.Context, raw []byte,
) ([]types.SuppressionInstruction, error) {
	env, err := ParseNotification(raw)
	if err != nil {
		in.Log.Printf("%s: %s", err, raw)
		return nil, err
	}
	return in.interpret(ctx, env, raw)
}

// interpret resolves env, logging raw, the payload as received, when nothing
// recognizes its type.
func (in *Interpreter) interpret(
	ctx context.Context, env *Envelope, raw []byte,
) ([]types.SuppressionInstruction, error) {
	switch env.Kind {
	case SubscriptionConfirmationKind:
		in.confirmSubscription(ctx, env)
	case UnsubscribeConfirmationKind:
		in.Log.Printf("%s: %s: %s", env.Type, env.TopicArn, env.Raw)
	case NotificationKind:
		return in.interpret(ctx, env.Inner, raw)
	case BounceKind:
		return in.bounce(env), nil
	case ComplaintKind:
		return in.complaint(env), nil
	case DeliveryKind:
		in.logOutcome(env, "success")
	case InformationalKind:
		in.logOutcome(env, informationalOutcome(env.Event))
	default:
		in.Log.Printf("unknown webhook type %q: %s", env.Type, raw)
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
	return nil, nil
}

func (in *Interpreter) confirmSubscription(ctx context.Context, env *Envelope) {
	const errFmt = "SNS subscription confirmation failed: %s: %s"
	subscribeUrl, err := url.Parse(env.SubscribeUrl)

	if err != nil || subscribeUrl.Host == "" {
		in.Log.Printf(errFmt, "invalid SubscribeURL", env.Raw)
		return
	} else if in.HostPattern != nil &&
		!in.HostPattern.MatchString(subscribeUrl.Hostname()) {
		in.Log.Printf(errFmt, "untrusted host "+subscribeUrl.Host, env.Raw)
		return
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, subscribeUrl.String(), nil,
	)
	if err != nil {
		in.Log.Printf(errFmt, err, env.Raw)
		return
	}

	res, err := in.client().Do(req)
	if err != nil {
		in.Log.Printf(errFmt, err, env.Raw)
		return
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		reason := fmt.Sprintf("HTTP %d: %s", res.StatusCode, body)
		in.Log.Printf(errFmt, reason, env.Raw)
		return
	}
	in.Log.Printf("confirmed SNS subscription to %s", env.TopicArn)
}

func (in *Interpreter) client() HttpDoer {
	if in.Client == nil {
		return http.DefaultClient
	}
	return in.Client
}

func (in *Interpreter) bounce(env *Envelope) []types.SuppressionInstruction {
	bounce := env.Event.Bounce

	if bounce.BounceType != "Permanent" {
		reason := bounce.BounceType + "/" + bounce.BounceSubType
		in.logOutcome(env, "not suppressing recipients: "+reason)
		return nil
	}

	emailId := env.Event.Mail.EmailId()
	instructions := make(
		[]types.SuppressionInstruction, 0, len(bounce.BouncedRecipients),
	)

	for _, r := range bounce.BouncedRecipients {
		reason := cmp.Or(r.DiagnosticCode, "unknown")
		if bounce.BounceSubType != "" {
			reason += " (" + bounce.BounceSubType + ")"
		}
		instructions = append(instructions, types.SuppressionInstruction{
			Address:       r.EmailAddress,
			Reason:        reason,
			Category:      types.SuppressionBounced,
			CorrelationId: emailId,
		})
	}
	in.logInstructions(env, instructions)
	return instructions
}

func (in *Interpreter) complaint(env *Envelope) []types.SuppressionInstruction {
	complaint := env.Event.Complaint
	reason, ok := complaintFeedbackReasons[complaint.ComplaintFeedbackType]

	if !ok {
		reason = cmp.Or(complaint.ComplaintSubType, "unknown")
	}

	emailId := env.Event.Mail.EmailId()
	instructions := make(
		[]types.SuppressionInstruction, 0, len(complaint.ComplainedRecipients),
	)

	for _, r := range complaint.ComplainedRecipients {
		instructions = append(instructions, types.SuppressionInstruction{
			Address:       r.EmailAddress,
			Reason:        reason,
			Category:      types.SuppressionUnsubscribed,
			CorrelationId: emailId,
		})
	}
	in.logInstructions(env, instructions)
	return instructions
}

func informationalOutcome(event *SesEventRecord) string {
	switch {
	case event.Reject != nil:
		return "rejected: " + event.Reject.Reason
	case event.DeliveryDelay != nil:
		return "delayed: " + event.DeliveryDelay.DelayType
	case event.Failure != nil:
		f := event.Failure
		return fmt.Sprintf("rendering failed: %s: %s", f.TemplateName, f.ErrorMessage)
	}
	return "received"
}

func (in *Interpreter) logInstructions(
	env *Envelope, instructions []types.SuppressionInstruction,
) {
	if len(instructions) == 0 {
		in.logOutcome(env, "no recipients")
	}
	for _, si := range instructions {
		in.logOutcome(env, "suppressing "+si.String())
	}
}

func (in *Interpreter) logOutcome(env *Envelope, outcome string) {
	mail := &env.Event.Mail
	headers := &mail.CommonHeaders

	in.Log.Printf(
		`%s [Id:"%s" From:"%s" To:"%s" Subject:"%s"]: %s: %s`,
		env.Type,
		mail.MessageID,
		strings.Join(headers.From, ","),
		strings.Join(headers.To, ","),
		headers.Subject,
		outcome,
		env.Raw,
	)
}

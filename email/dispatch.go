package email

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/mabumusa1/ses-plugin/ops"
	"golang.org/x/sync/errgroup"
)

const DefaultBulkThreshold = 50

const DefaultSendTimeout = 30 * time.Second

// Sender delivers an OutboundMessage to all of its recipients.
//
// When SES rejects only some recipients, Send returns the receipt for the
// rest along with a *PartialFailureError.
type Sender interface {
	Send(ctx context.Context, msg *OutboundMessage) (*SendReceipt, error)
}

type SendReceipt struct {
	Strategy Strategy
	NumSent  int

	// MessageIds maps each recipient address to its SES message id. Only raw
	// sends produce message ids.
	MessageIds map[string]string
}

// DispatchEngine sends messages through SES, choosing between one raw
// SendEmail call per recipient and templated SendBulkEmail calls.
//
// A DispatchEngine isn't safe for concurrent Send calls, since they would
// share and retune one RateLimiter. Serialize calls, or use separate engines
// at the cost of exceeding the account's send rate.
type DispatchEngine struct {
	Client         SesV2Api
	Quota          QuotaChecker
	Limiter        *RateLimiter
	Templates      *TemplateCache
	Builder        *PayloadBuilder
	EnableTemplate bool
	BulkThreshold  int
	SendTimeout    time.Duration
	Log            *log.Logger
}

const (
	stateQuotaChecked     = "QuotaChecked"
	stateStrategySelected = "StrategySelected"
	stateRawInFlight      = "RawInFlight"
	stateBulkInFlight     = "TemplatedInFlight"
	stateCompleted        = "Completed"
	stateFailed           = "Failed"
)

func (e *DispatchEngine) Send(
	ctx context.Context, msg *OutboundMessage,
) (receipt *SendReceipt, err error) {
	if err = msg.Validate(); err != nil {
		return nil, e.fail(fatalError(err))
	}

	var quota *QuotaState
	if quota, err = e.Quota.CheckCapacity(ctx); err != nil {
		return nil, e.fail(err)
	} else if err = e.Limiter.SetSendRate(quota.SendRate()); err != nil {
		return nil, e.fail(fatalError(err))
	}
	e.logState(
		stateQuotaChecked,
		"%d remaining, %d/sec", quota.Remaining, quota.SendRate(),
	)

	strategy := e.SelectStrategy(msg)
	e.logState(stateStrategySelected, "%s", strategy)

	var failed PartialFailureSet
	if strategy == BulkStrategy {
		e.logState(stateBulkInFlight, "%d recipients", len(msg.Recipients))
		receipt, failed, err = e.sendBulk(ctx, msg)
	} else {
		e.logState(stateRawInFlight, "%d recipients", len(msg.Recipients))
		receipt, failed, err = e.sendRaw(ctx, msg, quota.SendRate())
	}

	if err != nil {
		return nil, e.fail(err)
	} else if len(failed) != 0 {
		err = &PartialFailureError{Failed: failed}
		e.fail(err)
		return
	}
	e.logState(stateCompleted, "%d sent", receipt.NumSent)
	return
}

// SelectStrategy returns BulkStrategy only when templating is enabled, the
// message has no attachments, and it has at least BulkThreshold recipients.
func (e *DispatchEngine) SelectStrategy(msg *OutboundMessage) Strategy {
	threshold := e.BulkThreshold
	if threshold <= 0 {
		threshold = DefaultBulkThreshold
	}

	switch {
	case msg.HasAttachments():
	case !e.EnableTemplate:
	case len(msg.Recipients) < threshold:
	default:
		return BulkStrategy
	}
	return RawStrategy
}

// Close removes session templates created by this engine.
func (e *DispatchEngine) Close(ctx context.Context) {
	if e.Templates != nil {
		e.Templates.Close(ctx)
	}
}

func (e *DispatchEngine) sendRaw(
	ctx context.Context, msg *OutboundMessage, width int,
) (*SendReceipt, PartialFailureSet, error) {
	receipt := &SendReceipt{Strategy: RawStrategy, MessageIds: map[string]string{}}
	failed := PartialFailureSet{}
	var mu sync.Mutex
	var g errgroup.Group
	var stopErr error
	g.SetLimit(width)

	for payload, err := range e.Builder.BuildRaw(msg) {
		if err != nil {
			stopErr = transportError(err)
			break
		} else if err = e.Limiter.Acquire(ctx, SendGate, 1); err != nil {
			stopErr = transportError(err)
			break
		}

		g.Go(func() error {
			msgId, err := e.sendEmail(ctx, payload.Input)
			mu.Lock()
			defer mu.Unlock()

			if err != nil && payload.Recipient == nil {
				return transportError(ops.AwsError("send failed", err))
			} else if err != nil {
				email := payload.Recipient.Email
				e.Log.Printf("failed to send to %s: %s", email, err)
				failed[email] = payload.Recipient
				return nil
			}
			receipt.NumSent++
			receipt.MessageIds[destinationKey(payload)] = msgId
			return nil
		})
	}

	// Every send already in flight finishes before the outcome is reported.
	err := g.Wait()
	if err = errors.Join(stopErr, err); err != nil {
		return nil, nil, err
	}
	return receipt, failed, nil
}

func (e *DispatchEngine) sendEmail(
	ctx context.Context, input *sesv2.SendEmailInput,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout())
	defer cancel()

	output, err := e.Client.SendEmail(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(output.MessageId), nil
}

func (e *DispatchEngine) sendBulk(
	ctx context.Context, msg *OutboundMessage,
) (*SendReceipt, PartialFailureSet, error) {
	td, payloads, err := e.Builder.BuildBulk(msg)
	if err != nil {
		return nil, nil, fatalError(err)
	}

	outcome, err := e.Templates.EnsureTemplate(ctx, td)
	if err != nil {
		return nil, nil, transportError(err)
	}
	e.Log.Printf("template %s %s", td.Name, outcome)

	receipt := &SendReceipt{Strategy: BulkStrategy}
	failed := PartialFailureSet{}

	for i, payload := range payloads {
		err := e.Limiter.Acquire(ctx, SendGate, len(payload.Recipients))
		if err != nil {
			return nil, nil, transportError(err)
		}

		var output *sesv2.SendBulkEmailOutput
		if output, err = e.sendBulkEmail(ctx, payload.Input); err != nil {
			// Nothing has gone out yet, so there's no subset to retry.
			if i == 0 {
				return nil, nil, transportError(
					ops.AwsError("bulk send failed", err),
				)
			}
			const errFmt = "bulk send of recipients %d-%d failed: %s"
			last := payload.Offset + len(payload.Recipients) - 1
			e.Log.Printf(errFmt, payload.Offset, last, err)

			for _, r := range payload.Recipients {
				failed[r.Email] = r
			}
			continue
		}
		receipt.NumSent += e.collectBulkResults(payload, output, failed)
	}
	return receipt, failed, nil
}

func (e *DispatchEngine) sendBulkEmail(
	ctx context.Context, input *sesv2.SendBulkEmailInput,
) (*sesv2.SendBulkEmailOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout())
	defer cancel()
	return e.Client.SendBulkEmail(ctx, input)
}

// collectBulkResults adds every recipient without a SUCCESS result to failed
// and returns the number that succeeded.
func (e *DispatchEngine) collectBulkResults(
	payload *BulkPayload,
	output *sesv2.SendBulkEmailOutput,
	failed PartialFailureSet,
) (numSent int) {
	results := output.BulkEmailEntryResults

	for i, r := range payload.Recipients {
		if i >= len(results) {
			e.Log.Printf("no bulk send result for %s", r.Email)
			failed[r.Email] = r
			continue
		}

		result := results[i]
		if result.Status != sesv2types.BulkEmailStatusSuccess {
			const errFmt = "failed to send to %s: %s: %s"
			e.Log.Printf(errFmt, r.Email, result.Status, aws.ToString(result.Error))
			failed[r.Email] = r
		} else {
			numSent++
		}
	}
	return
}

func (e *DispatchEngine) sendTimeout() time.Duration {
	if e.SendTimeout <= 0 {
		return DefaultSendTimeout
	}
	return e.SendTimeout
}

func (e *DispatchEngine) logState(state, format string, args ...any) {
	e.Log.Printf("%s: %s", state, fmt.Sprintf(format, args...))
}

func (e *DispatchEngine) fail(err error) error {
	e.logState(stateFailed, "%s", err)
	return err
}

func destinationKey(payload *RawPayload) string {
	if payload.Recipient != nil {
		return payload.Recipient.Email
	}
	if dest := payload.Input.Destination; dest != nil {
		lists := [][]string{dest.ToAddresses, dest.CcAddresses, dest.BccAddresses}
		for _, list := range lists {
			if len(list) != 0 {
				return list[0]
			}
		}
	}
	return ""
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mabumusa1/ses-plugin/ops"
	"github.com/mabumusa1/ses-plugin/types"
)

const ProcessedMessage = "PROCESSED"

// Webhook interprets webhook payloads and hands every resulting instruction
// to Sink.
type Webhook struct {
	Interpreter *Interpreter
	Sink        SuppressionSink
}

type WebhookResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// Handle interprets an SNS HTTP(S) delivery.
//
// Every instruction reaches the sink even if an earlier one fails. The error
// joins every sink failure.
func (wh *Webhook) Handle(
	ctx context.Context, raw []byte,
) ([]types.SuppressionInstruction, error) {
	instructions, err := wh.Interpreter.Interpret(ctx, raw)
	if err != nil {
		return nil, err
	}
	return instructions, wh.record(ctx, instructions)
}

// HandleNotification interprets the Message of an SNS Notification, as
// delivered in a Lambda SNS event record.
func (wh *Webhook) HandleNotification(
	ctx context.Context, raw []byte,
) ([]types.SuppressionInstruction, error) {
	instructions, err := wh.Interpreter.InterpretNotification(ctx, raw)
	if err != nil {
		return nil, err
	}
	return instructions, wh.record(ctx, instructions)
}

func (wh *Webhook) record(
	ctx context.Context, instructions []types.SuppressionInstruction,
) error {
	errs := make([]error, 0, len(instructions))

	for _, si := range instructions {
		if err := wh.Sink.RecordFailure(ctx, si); err != nil {
			const errFmt = "failed to record suppression of %s: %w"
			errs = append(errs, fmt.Errorf(errFmt, si.Address, err))
		}
	}
	return errors.Join(errs...)
}

// NewWebhookResponse maps the outcome of Handle to an HTTP status and body.
//
// Client errors produce 400, sink failures due to an upstream service produce
// 502, and all other sink failures produce 500.
func NewWebhookResponse(err error) (int, *WebhookResponse) {
	switch {
	case err == nil:
		return http.StatusOK, &WebhookResponse{ProcessedMessage, true}
	case errors.Is(err, ErrBadPayload), errors.Is(err, ErrUnknownType):
		return http.StatusBadRequest, &WebhookResponse{err.Error(), false}
	case errors.Is(err, ops.ErrExternal):
		return http.StatusBadGateway, &WebhookResponse{err.Error(), false}
	}
	return http.StatusInternalServerError, &WebhookResponse{err.Error(), false}
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mabumusa1/ses-plugin/email"
	"github.com/mabumusa1/ses-plugin/events"
)

type cliHandler struct {
	Sender email.Sender
	Log    *log.Logger
}

func (h *cliHandler) HandleEvent(
	ctx context.Context, e *events.CommandLineEvent,
) (res any, err error) {
	switch e.SesPluginCommand {
	case events.CommandLineSendEvent:
		res = h.HandleSendEvent(ctx, e.Send)
	default:
		err = fmt.Errorf("unknown command: %s", e.SesPluginCommand)
	}
	return
}

func (h *cliHandler) HandleSendEvent(
	ctx context.Context, e *events.SendEvent,
) (res *events.SendResponse) {
	res = &events.SendResponse{}
	msg := &e.OutboundMessage
	receipt, err := h.Sender.Send(ctx, msg)

	if receipt != nil {
		res.NumSent = receipt.NumSent
		res.Strategy = receipt.Strategy.String()
	}

	var pfErr *email.PartialFailureError
	if errors.As(err, &pfErr) {
		res.Failed = msg.Retry(pfErr.Failed).Recipients
	}

	if err != nil {
		res.Details = err.Error()
	} else {
		res.Success = true
	}

	const logFmt = "send: subject: \"%s\"; success: %t; num sent: %d"
	h.Log.Printf(logFmt, msg.Subject, res.Success, res.NumSent)
	return
}

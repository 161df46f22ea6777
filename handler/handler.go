package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/mabumusa1/ses-plugin/email"
)

// LambdaHandler routes every event the Lambda function receives.
//
// API Gateway requests carry SNS HTTP(S) deliveries, SNS events carry SES
// notifications, and command line events carry sends from the CLI.
type LambdaHandler struct {
	webhook *Webhook
	cli     *cliHandler
	log     *log.Logger
}

// closer is implemented by senders that hold session resources, such as
// email.DispatchEngine and its session templates.
type closer interface {
	Close(ctx context.Context)
}

func NewLambdaHandler(
	webhook *Webhook, sender email.Sender, logger *log.Logger,
) *LambdaHandler {
	return &LambdaHandler{
		webhook: webhook,
		cli:     &cliHandler{Sender: sender, Log: logger},
		log:     logger,
	}
}

func (h *LambdaHandler) HandleEvent(
	ctx context.Context, event *Event,
) (result any, err error) {
	switch event.Type {
	case ApiRequest:
		result = h.handleApiRequest(ctx, event.ApiRequest)
	case SnsEvent:
		h.handleSnsEvent(ctx, event.SnsEvent)
	case CommandLineEvent:
		if c, ok := h.cli.Sender.(closer); ok {
			defer c.Close(ctx)
		}
		result, err = h.cli.HandleEvent(ctx, event.CommandLineEvent)
	default:
		h.log.Printf("ignoring %s event", event.Type)
	}
	return
}

func (h *LambdaHandler) handleApiRequest(
	ctx context.Context, req *awsevents.APIGatewayV2HTTPRequest,
) *awsevents.APIGatewayV2HTTPResponse {
	var status int
	var resBody *WebhookResponse
	var err error

	if req.RequestContext.HTTP.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		resBody = &WebhookResponse{http.StatusText(status), false}
	} else {
		status, resBody, err = h.handleWebhookBody(ctx, req)
	}

	body, _ := json.Marshal(resBody)
	res := &awsevents.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(body),
	}
	logApiResponse(h.log, req, res, err)
	return res
}

func (h *LambdaHandler) handleWebhookBody(
	ctx context.Context, req *awsevents.APIGatewayV2HTTPRequest,
) (int, *WebhookResponse, error) {
	body := []byte(req.Body)

	// API Gateway may base64 encode POST bodies.
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			const errFmt = "%w: failed to base64 decode body: %w"
			err = fmt.Errorf(errFmt, ErrBadPayload, err)
			status, res := NewWebhookResponse(err)
			return status, res, err
		}
		body = decoded
	}

	if account := req.PathParameters["account"]; account != "" {
		ctx = WithAccount(ctx, account)
	}
	_, err := h.webhook.Handle(ctx, body)
	status, res := NewWebhookResponse(err)
	return status, res, err
}

func (h *LambdaHandler) handleSnsEvent(
	ctx context.Context, e *awsevents.SNSEvent,
) {
	for _, record := range e.Records {
		msg := record.SNS.Message

		if _, err := h.webhook.HandleNotification(ctx, []byte(msg)); err != nil {
			const errFmt = "handling SNS message %s failed: %s"
			h.log.Printf(errFmt, record.SNS.MessageID, err)
		}
	}
}

func logApiResponse(
	log *log.Logger,
	req *awsevents.APIGatewayV2HTTPRequest,
	res *awsevents.APIGatewayV2HTTPResponse,
	err error,
) {
	reqId := req.RequestContext.RequestID
	desc := req.RequestContext.HTTP
	errMsg := ""

	if err != nil {
		errMsg = ": " + err.Error()
	}

	log.Printf(`%s: %s "%s %s %s" %d%s`,
		reqId,
		desc.SourceIP, desc.Method, desc.Path, desc.Protocol, res.StatusCode,
		errMsg,
	)
}

// Copyright © 2023 Mike Bland <mbland@acm.org>
// See LICENSE.txt for details.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	ltypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/mabumusa1/ses-plugin/email"
	"github.com/mabumusa1/ses-plugin/events"
	"github.com/spf13/cobra"
)

const sendDescription = `Reads a JSON object from standard input describing
a message:

` + email.ExampleMessageJson + `

If the input passes validation, the ses-plugin Lambda function sends a copy
to each recipient, through a templated bulk send when the message qualifies.

It takes one argument, the ARN of the Lambda function to invoke to send the
message. When SES rejects some recipients, the command lists them and fails.`

func newSendCmd(newLambdaClient LambdaClientFactoryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "send",
		Short: "Send an email message through the ses-plugin Lambda function",
		Long:  sendDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := context.Background()

			client, err := newLambdaClient(ctx)
			if err != nil {
				return err
			}
			return sendMessage(ctx, cmd, client, args[0])
		},
	}
}

func sendMessage(
	ctx context.Context,
	cmd *cobra.Command,
	client LambdaClient,
	lambdaArn string,
) (err error) {
	var msg *email.OutboundMessage
	input := cmd.InOrStdin()

	if msg, err = email.NewOutboundMessageFromJson(input); err != nil {
		return
	}

	evt := &events.CommandLineEvent{
		SesPluginCommand: events.CommandLineSendEvent,
		Send:             &events.SendEvent{OutboundMessage: *msg},
	}
	var payload []byte
	if payload, err = json.Marshal(evt); err != nil {
		return fmt.Errorf("error creating Lambda payload: %w", err)
	}

	invokeInput := &lambda.InvokeInput{
		FunctionName: aws.String(lambdaArn),
		LogType:      ltypes.LogTypeTail,
		Payload:      payload,
	}
	var output *lambda.InvokeOutput
	var response events.SendResponse

	// https://docs.aws.amazon.com/lambda/latest/dg/invocation-sync.html
	if output, err = client.Invoke(ctx, invokeInput); err != nil {
		err = fmt.Errorf("error invoking Lambda function: %w", err)
	} else if output.StatusCode != http.StatusOK {
		const errFmt = "received non-200 response: %s"
		err = fmt.Errorf(errFmt, http.StatusText(int(output.StatusCode)))
	} else if output.FunctionError != nil {
		const errFmt = "error executing Lambda function: %s: %s"
		funcErr := aws.ToString(output.FunctionError)
		err = fmt.Errorf(errFmt, funcErr, string(output.Payload))
	} else if err = json.Unmarshal(output.Payload, &response); err != nil {
		const errFmt = "failed to unmarshal Lambda response payload: %w: %s"
		err = fmt.Errorf(errFmt, err, string(output.Payload))
	} else if !response.Success {
		for _, r := range response.Failed {
			cmd.Printf("failed: %s\n", r.Email)
		}
		const errFmt = "sending failed after sending to %d recipients: %s"
		err = fmt.Errorf(errFmt, response.NumSent, response.Details)
	} else {
		const successFmt = "Sent the message successfully to %d recipients " +
			"(%s).\n"
		cmd.Printf(successFmt, response.NumSent, response.Strategy)
	}
	return
}

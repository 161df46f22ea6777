// Copyright © 2023 Mike Bland <mbland@acm.org>
// See LICENSE.txt for details.

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/mabumusa1/ses-plugin/email"
	"github.com/spf13/cobra"
)

const FlagExample = "example"

const previewSeparator = "-----"

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview raw email messages without sending them",
		Long: `Reads a JSON object from standard input describing a message:

` + email.ExampleMessageJson + `

If the input passes validation, it then emits to standard output the raw
message SES would receive for each recipient, separated by lines of "` +
			previewSeparator + `".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			var input io.Reader = cmd.InOrStdin()

			if emitExample, _ := cmd.Flags().GetBool(FlagExample); emitExample {
				input = strings.NewReader(email.ExampleMessageJson)
			}
			return previewMessage(input, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolP(
		FlagExample, "x", false, "Use the help example to generate the preview",
	)
	return cmd
}

func previewMessage(input io.Reader, output io.Writer) error {
	msg, err := email.NewOutboundMessageFromJson(input)
	if err != nil {
		return err
	}

	builder := &email.PayloadBuilder{}
	first := true
	for payload, err := range builder.BuildRaw(msg) {
		if err != nil {
			return err
		} else if !first {
			fmt.Fprintln(output, previewSeparator)
		}
		first = false

		if _, err = output.Write(payload.Input.Content.Raw.Data); err != nil {
			return err
		}
	}
	return nil
}

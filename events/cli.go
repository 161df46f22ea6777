package events

import "github.com/mabumusa1/ses-plugin/email"

type CommandLineEventType string

const CommandLineSendEvent = CommandLineEventType("Send")

type CommandLineEvent struct {
	SesPluginCommand CommandLineEventType `json:"sesPluginCommand"`
	Send             *SendEvent           `json:"send"`
}

type SendEvent struct {
	email.OutboundMessage
}

// SendResponse reports the outcome of a SendEvent.
//
// Failed lists the rejected recipients, in their original order, when SES
// accepted the message for only some of them.
type SendResponse struct {
	Success  bool
	NumSent  int
	Strategy string                     `json:",omitempty"`
	Details  string                     `json:",omitempty"`
	Failed   []*email.RecipientMetadata `json:",omitempty"`
}

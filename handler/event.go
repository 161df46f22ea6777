package handler

import (
	"bytes"
	"encoding/json"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/mabumusa1/ses-plugin/events"
)

type EventType int

const (
	NullEvent EventType = iota
	ApiRequest
	SnsEvent
	CommandLineEvent
)

func (event EventType) String() string {
	switch event {
	case NullEvent:
		return "Null"
	case ApiRequest:
		return "API Request"
	case SnsEvent:
		return "SNS"
	case CommandLineEvent:
		return "Command Line"
	}
	return "Unknown"
}

type Event struct {
	Type             EventType
	ApiRequest       *awsevents.APIGatewayV2HTTPRequest
	SnsEvent         *awsevents.SNSEvent
	CommandLineEvent *events.CommandLineEvent
}

// Inspired by:
// https://www.synvert-tcm.com/blog/handling-multiple-aws-lambda-event-types-with-go/
func (event *Event) UnmarshalJSON(data []byte) error {
	var err error

	if bytes.Contains(data, []byte(`"rawPath":`)) {
		event.Type = ApiRequest
		event.ApiRequest = &awsevents.APIGatewayV2HTTPRequest{}
		err = json.Unmarshal(data, event.ApiRequest)
	} else if bytes.Contains(data, []byte(`"Sns":`)) {
		event.Type = SnsEvent
		event.SnsEvent = &awsevents.SNSEvent{}
		err = json.Unmarshal(data, event.SnsEvent)
	} else if bytes.Contains(data, []byte(`"sesPluginCommand":`)) {
		event.Type = CommandLineEvent
		event.CommandLineEvent = &events.CommandLineEvent{}
		err = json.Unmarshal(data, event.CommandLineEvent)
	}
	return err
}

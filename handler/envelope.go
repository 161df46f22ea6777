package handler

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
)

type EnvelopeKind int

const (
	UnknownKind EnvelopeKind = iota
	SubscriptionConfirmationKind
	UnsubscribeConfirmationKind
	NotificationKind
	BounceKind
	ComplaintKind
	DeliveryKind
	InformationalKind
)

func (k EnvelopeKind) String() string {
	switch k {
	case SubscriptionConfirmationKind:
		return "SubscriptionConfirmation"
	case UnsubscribeConfirmationKind:
		return "UnsubscribeConfirmation"
	case NotificationKind:
		return "Notification"
	case BounceKind:
		return "Bounce"
	case ComplaintKind:
		return "Complaint"
	case DeliveryKind:
		return "Delivery"
	case InformationalKind:
		return "Informational"
	}
	return "Unknown"
}

// SES notification and event types that never produce suppression
// instructions.
var informationalTypes = map[string]bool{
	"AmazonSnsSubscriptionSucceeded": true,
	"Send":                           true,
	"Reject":                         true,
	"Open":                           true,
	"Click":                          true,
	"DeliveryDelay":                  true,
	"Rendering Failure":              true,
	"Subscription":                   true,
}

// Envelope is one parsed webhook payload.
//
// Type holds the discriminator exactly as received. A NotificationKind
// envelope holds the parsed SNS Message in Inner. Bounce, Complaint, Delivery,
// and Informational envelopes hold the SES record in Event. Raw is the JSON
// the envelope was parsed from.
type Envelope struct {
	Kind         EnvelopeKind
	Type         string
	TopicArn     string
	SubscribeUrl string
	Inner        *Envelope
	Event        *SesEventRecord
	Raw          string
}

type envelopeFields struct {
	Type             string `json:"Type"`
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	TopicArn         string `json:"TopicArn"`
	Message          string `json:"Message"`
	SubscribeUrl     string `json:"SubscribeURL"`
}

// ParseEnvelope parses an SNS HTTP(S) delivery or an SES event posted
// directly.
//
// The discriminator is the SNS Type, else the SES eventType. A Notification's
// Message is parsed as an SES notification, and no deeper. Unrecognized types
// produce an UnknownKind envelope, not an error.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	fields, err := decodeEnvelopeFields(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON payload: %w", ErrBadPayload, err)
	}

	env := &Envelope{
		Type:     cmp.Or(fields.Type, fields.EventType),
		TopicArn: fields.TopicArn,
		Raw:      string(raw),
	}
	switch env.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrBadPayload)
	case "SubscriptionConfirmation":
		env.Kind = SubscriptionConfirmationKind
		env.SubscribeUrl = fields.SubscribeUrl
	case "UnsubscribeConfirmation":
		env.Kind = UnsubscribeConfirmationKind
	case "Notification":
		env.Kind = NotificationKind
		if env.Inner, err = ParseNotification([]byte(fields.Message)); err != nil {
			return nil, err
		}
	default:
		if err = env.parseSesRecord(raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
	}
	return env, nil
}

// ParseNotification parses the Message of an SNS Notification, as delivered
// over HTTP or in a Lambda SNS event record.
//
// The discriminator is the SES notificationType, else the eventType used by
// configuration set event publishing.
func ParseNotification(raw []byte) (*Envelope, error) {
	const errPrefix = "%w: invalid inner notification: "
	fields, err := decodeEnvelopeFields(raw)

	if err != nil {
		return nil, fmt.Errorf(errPrefix+"%w", ErrBadPayload, err)
	}

	env := &Envelope{
		Type: cmp.Or(fields.NotificationType, fields.EventType),
		Raw:  string(raw),
	}
	if env.Type == "" {
		return nil, fmt.Errorf(errPrefix+"missing type", ErrBadPayload)
	} else if err = env.parseSesRecord(raw); err != nil {
		return nil, fmt.Errorf(errPrefix+"%w", ErrBadPayload, err)
	}
	return env, nil
}

func decodeEnvelopeFields(raw []byte) (*envelopeFields, error) {
	fields := &envelopeFields{}
	if err := json.Unmarshal(raw, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// parseSesRecord sets Kind and Event from env.Type. Types that aren't SES
// types leave the envelope as UnknownKind.
func (env *Envelope) parseSesRecord(raw []byte) error {
	switch {
	case env.Type == "Bounce":
		env.Kind = BounceKind
	case env.Type == "Complaint":
		env.Kind = ComplaintKind
	case env.Type == "Delivery":
		env.Kind = DeliveryKind
	case informationalTypes[env.Type]:
		env.Kind = InformationalKind
	default:
		return nil
	}

	env.Event = &SesEventRecord{}
	if err := json.Unmarshal(raw, env.Event); err != nil {
		return err
	} else if env.Kind == BounceKind && env.Event.Bounce == nil {
		return errors.New("missing bounce object")
	} else if env.Kind == ComplaintKind && env.Event.Complaint == nil {
		return errors.New("missing complaint object")
	}
	return nil
}

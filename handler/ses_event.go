// These types aren't defined in the AWS SDK. Only the fields needed to
// interpret notifications are defined here.
//
// See:
// - https://docs.aws.amazon.com/ses/latest/dg/notification-contents.html
// - https://docs.aws.amazon.com/ses/latest/dg/event-publishing-retrieving-sns-contents.html

package handler

import (
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/mabumusa1/ses-plugin/email"
)

// SesEventRecord is either an SES notification, which sets NotificationType,
// or a configuration set event, which sets EventType.
type SesEventRecord struct {
	NotificationType string               `json:"notificationType"`
	EventType        string               `json:"eventType"`
	Mail             SesEventMessage      `json:"mail"`
	Bounce           *SesBounceEvent      `json:"bounce"`
	Complaint        *SesComplaintEvent   `json:"complaint"`
	Delivery         *SesDeliveryEvent    `json:"delivery"`
	Reject           *SesRejectEvent      `json:"reject"`
	DeliveryDelay    *SesDeliveryDelay    `json:"deliveryDelay"`
	Failure          *SesRenderingFailure `json:"failure"`
}

type SesEventMessage struct {
	events.SimpleEmailMessage
	SourceArn        string              `json:"sourceArn"`
	SendingAccountId string              `json:"sendingAccountId"`
	Tags             map[string][]string `json:"tags"`
}

// EmailId returns the value of the X-EMAIL-ID header of the original message,
// matching the header name case-insensitively.
func (m *SesEventMessage) EmailId() string {
	for _, h := range m.Headers {
		if strings.EqualFold(strings.TrimSpace(h.Name), email.HeaderEmailId) {
			return h.Value
		}
	}
	return ""
}

type SesBounceEvent struct {
	BounceType        string                `json:"bounceType"`
	BounceSubType     string                `json:"bounceSubType"`
	BouncedRecipients []SesBouncedRecipient `json:"bouncedRecipients"`
	Timestamp         time.Time             `json:"timestamp"`
	FeedbackId        string                `json:"feedbackId"`
	ReportingMTA      string                `json:"reportingMTA"`
}

type SesBouncedRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Action         string `json:"action"`
	Status         string `json:"status"`
	DiagnosticCode string `json:"diagnosticCode"`
}

type SesComplaintEvent struct {
	ComplaintSubType      string                   `json:"complaintSubType"`
	ComplainedRecipients  []SesComplainedRecipient `json:"complainedRecipients"`
	Timestamp             time.Time                `json:"timestamp"`
	FeedbackId            string                   `json:"feedbackId"`
	UserAgent             string                   `json:"userAgent"`
	ComplaintFeedbackType string                   `json:"complaintFeedbackType"`
	ArrivalDate           time.Time                `json:"arrivalDate"`
}

type SesComplainedRecipient struct {
	EmailAddress string `json:"emailAddress"`
}

type SesDeliveryEvent struct {
	Timestamp            time.Time `json:"timestamp"`
	ProcessingTimeMillis int64     `json:"processingTimeMillis"`
	Recipients           []string  `json:"recipients"`
	SmtpResponse         string    `json:"smtpResponse"`
	ReportingMTA         string    `json:"reportingMTA"`
}

type SesRejectEvent struct {
	Reason string `json:"reason"`
}

type SesDeliveryDelay struct {
	DelayType string `json:"delayType"`
}

type SesRenderingFailure struct {
	TemplateName string `json:"templateName"`
	ErrorMessage string `json:"errorMessage"`
}

//go:build small_tests || all_tests

package handler

import (
	"encoding/json"
	"testing"

	tu "github.com/mabumusa1/ses-plugin/testutils"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

const testTopicArn = "arn:aws:sns:us-east-1:123456789012:ses-notifications"

// This and other test messages adapted from:
// https://docs.aws.amazon.com/ses/latest/dg/notification-examples.html
const testMailJson = `
  "mail": {
    "timestamp": "1970-09-18T12:45:00.000Z",
    "source": "no-reply@example.com",
    "sourceArn": "arn:aws:ses:us-east-1:123456789012:identity/example.com",
    "sendingAccountId": "123456789012",
    "messageId": "EXAMPLE7c191be45",
    "destination": [ "recipient@example.com" ],
    "headersTruncated": false,
    "headers": [
      { "name": "From", "value": "no-reply@example.com" },
      { "name": "To", "value": "recipient@example.com" },
      { "name": "Subject", "value": "Test message" },
      { "name": "x-email-id", "value": "42" }
    ],
    "commonHeaders": {
      "from": [ "no-reply@example.com" ],
      "to": [ "recipient@example.com" ],
      "messageId": "EXAMPLE7c191be45",
      "subject": "Test message"
    }
  }`

func bounceNotificationJson(bounceType, bounceSubType string) string {
	return `{
  "notificationType": "Bounce",
  "bounce": {
    "bounceType": "` + bounceType + `",
    "bounceSubType": "` + bounceSubType + `",
    "bouncedRecipients": [
      {
        "emailAddress": "bounced@example.com",
        "action": "failed",
        "status": "5.1.1",
        "diagnosticCode": "smtp; 550 5.1.1 user unknown"
      }
    ],
    "timestamp": "1970-09-18T12:45:00.000Z",
    "feedbackId": "0100017fexample-000000"
  },` + testMailJson + `
}`
}

func complaintNotificationJson(feedbackType, subType string) string {
	return `{
  "notificationType": "Complaint",
  "complaint": {
    "complainedRecipients": [
      { "emailAddress": "complained@example.com" },
      { "emailAddress": "also-complained@example.com" }
    ],
    "complaintFeedbackType": "` + feedbackType + `",
    "complaintSubType": "` + subType + `",
    "timestamp": "1970-09-18T12:45:00.000Z",
    "feedbackId": "0100017fexample-000001"
  },` + testMailJson + `
}`
}

const deliveryNotificationJson = `{
  "notificationType": "Delivery",
  "delivery": {
    "timestamp": "1970-09-18T12:45:00.000Z",
    "recipients": [ "recipient@example.com" ],
    "smtpResponse": "250 ok"
  },` + testMailJson + `
}`

const rejectEventJson = `{
  "eventType": "Reject",
  "reject": { "reason": "Bad content" },` + testMailJson + `
}`

func snsNotification(message string) []byte {
	return snsPayload(map[string]string{
		"Type":      "Notification",
		"MessageId": "22b80b92-fdea-4c2c-8f9d-bdfb0c7bf324",
		"TopicArn":  testTopicArn,
		"Message":   message,
	})
}

func subscriptionConfirmation(subscribeUrl string) []byte {
	return snsPayload(map[string]string{
		"Type":         "SubscriptionConfirmation",
		"MessageId":    "165545c9-2a5c-472c-8df2-7ff2be2b3b1b",
		"TopicArn":     testTopicArn,
		"Message":      "You have chosen to subscribe to the topic.",
		"SubscribeURL": subscribeUrl,
	})
}

func snsPayload(fields map[string]string) []byte {
	payload, err := json.Marshal(fields)
	if err != nil {
		panic("failed to marshal SNS payload: " + err.Error())
	}
	return payload
}

func TestParseEnvelope(t *testing.T) {
	t.Run("ParsesSubscriptionConfirmation", func(t *testing.T) {
		url := "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription"

		env, err := ParseEnvelope(subscriptionConfirmation(url))

		assert.NilError(t, err)
		assert.Equal(t, SubscriptionConfirmationKind, env.Kind)
		assert.Equal(t, url, env.SubscribeUrl)
		assert.Equal(t, testTopicArn, env.TopicArn)
		assert.Assert(t, is.Nil(env.Inner))
	})

	t.Run("ParsesNotificationOneLevelDeep", func(t *testing.T) {
		inner := bounceNotificationJson("Permanent", "General")

		env, err := ParseEnvelope(snsNotification(inner))

		assert.NilError(t, err)
		assert.Equal(t, NotificationKind, env.Kind)
		assert.Equal(t, BounceKind, env.Inner.Kind)
		assert.Equal(t, "Bounce", env.Inner.Type)
		assert.Equal(t, inner, env.Inner.Raw)
		assert.Equal(t, "Permanent", env.Inner.Event.Bounce.BounceType)
		assert.Assert(t, is.Nil(env.Inner.Inner))
	})

	t.Run("TreatsNestedNotificationAsUnknown", func(t *testing.T) {
		nested := `{"notificationType": "Notification", "Message": "{}"}`

		env, err := ParseEnvelope(snsNotification(nested))

		assert.NilError(t, err)
		assert.Equal(t, UnknownKind, env.Inner.Kind)
		assert.Assert(t, is.Nil(env.Inner.Inner))
	})

	t.Run("ParsesEventTypeWhenTypeMissing", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(rejectEventJson))

		assert.NilError(t, err)
		assert.Equal(t, InformationalKind, env.Kind)
		assert.Equal(t, "Reject", env.Type)
		assert.Equal(t, "Bad content", env.Event.Reject.Reason)
	})

	t.Run("ReturnsUnknownKindForUnrecognizedType", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"Type": "SomeNewType"}`))

		assert.NilError(t, err)
		assert.Equal(t, UnknownKind, env.Kind)
		assert.Equal(t, "SomeNewType", env.Type)
	})

	t.Run("FailsOnInvalidJson", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"Type": `))

		assert.Assert(t, tu.ErrorIs(err, ErrBadPayload))
		assert.ErrorContains(t, err, "invalid JSON payload")
	})

	t.Run("FailsOnMissingType", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"Message": "hello"}`))

		assert.Assert(t, tu.ErrorIs(err, ErrBadPayload))
		assert.ErrorContains(t, err, "missing type")
	})

	t.Run("FailsOnInvalidInnerNotification", func(t *testing.T) {
		_, err := ParseEnvelope(snsNotification("not JSON"))

		assert.Assert(t, tu.ErrorIs(err, ErrBadPayload))
		assert.ErrorContains(t, err, "invalid inner notification")
	})

	t.Run("FailsOnInnerNotificationWithoutType", func(t *testing.T) {
		_, err := ParseEnvelope(snsNotification(`{"mail": {}}`))

		assert.ErrorContains(t, err, "invalid inner notification: missing type")
	})

	t.Run("FailsOnBounceWithoutBounceObject", func(t *testing.T) {
		_, err := ParseEnvelope(snsNotification(`{"notificationType": "Bounce"}`))

		assert.Assert(t, tu.ErrorIs(err, ErrBadPayload))
		assert.ErrorContains(t, err, "missing bounce object")
	})
}

func TestEnvelopeKindString(t *testing.T) {
	assert.Equal(t, "Notification", NotificationKind.String())
	assert.Equal(t, "Unknown", UnknownKind.String())
	assert.Equal(t, "Unknown", EnvelopeKind(-1).String())
}

func TestEmailIdMatchesHeaderCaseInsensitively(t *testing.T) {
	env, err := ParseNotification([]byte(deliveryNotificationJson))

	assert.NilError(t, err)
	assert.Equal(t, "42", env.Event.Mail.EmailId())
}

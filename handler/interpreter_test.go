//go:build small_tests || all_tests

package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"

	tu "github.com/mabumusa1/ses-plugin/testutils"
	"github.com/mabumusa1/ses-plugin/types"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

type interpreterFixture struct {
	ctx         context.Context
	logs        *tu.Logs
	interpreter *Interpreter
}

func newInterpreterFixture() *interpreterFixture {
	logs, logger := tu.NewLogs()
	return &interpreterFixture{
		ctx:         context.Background(),
		logs:        logs,
		interpreter: &Interpreter{Log: logger},
	}
}

type confirmationServer struct {
	*httptest.Server
	numRequests atomic.Int32
}

func newConfirmationServer(t *testing.T, status int) *confirmationServer {
	t.Helper()
	cs := &confirmationServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			cs.numRequests.Add(1)
			w.WriteHeader(status)
			w.Write([]byte("confirmation response"))
		},
	))
	t.Cleanup(cs.Close)
	return cs
}

type errorDoer struct{ err error }

func (d errorDoer) Do(*http.Request) (*http.Response, error) {
	return nil, d.err
}

func TestInterpretBounce(t *testing.T) {
	t.Run("SuppressesPermanentBounceWithCorrelationId", func(t *testing.T) {
		f := newInterpreterFixture()
		payload := snsNotification(bounceNotificationJson("Permanent", "General"))

		instructions, err := f.interpreter.Interpret(f.ctx, payload)

		assert.NilError(t, err)
		expected := []types.SuppressionInstruction{
			{
				Address:       "bounced@example.com",
				Reason:        "smtp; 550 5.1.1 user unknown (General)",
				Category:      types.SuppressionBounced,
				CorrelationId: "42",
			},
		}
		assert.DeepEqual(t, expected, instructions)
		f.logs.AssertContains(
			t,
			`Bounce [Id:"EXAMPLE7c191be45" From:"no-reply@example.com" `+
				`To:"recipient@example.com" Subject:"Test message"]: `+
				"suppressing bounced@example.com (bounced)",
		)
	})

	t.Run("IgnoresTransientBounce", func(t *testing.T) {
		f := newInterpreterFixture()
		payload := snsNotification(bounceNotificationJson("Transient", "General"))

		instructions, err := f.interpreter.Interpret(f.ctx, payload)

		assert.NilError(t, err)
		assert.Equal(t, 0, len(instructions))
		f.logs.AssertContains(t, "not suppressing recipients: Transient/General")
	})

	t.Run("DefaultsReasonToUnknownWithoutSubType", func(t *testing.T) {
		f := newInterpreterFixture()
		msg := `{
			"notificationType": "Bounce",
			"bounce": {
				"bounceType": "Permanent",
				"bouncedRecipients": [{"emailAddress": "bounced@example.com"}]
			},
			"mail": {"messageId": "EXAMPLE7c191be45"}
		}`

		instructions, err := f.interpreter.Interpret(f.ctx, snsNotification(msg))

		assert.NilError(t, err)
		assert.Equal(t, 1, len(instructions))
		assert.Equal(t, "unknown", instructions[0].Reason)
		assert.Equal(t, "", instructions[0].CorrelationId)
	})
}

func TestInterpretComplaint(t *testing.T) {
	interpret := func(
		t *testing.T, feedbackType, subType string,
	) []types.SuppressionInstruction {
		t.Helper()
		f := newInterpreterFixture()
		payload := snsNotification(
			complaintNotificationJson(feedbackType, subType),
		)

		instructions, err := f.interpreter.Interpret(f.ctx, payload)

		assert.NilError(t, err)
		assert.Equal(t, 2, len(instructions))
		return instructions
	}

	t.Run("UsesFeedbackTypeReason", func(t *testing.T) {
		instructions := interpret(t, "abuse", "")

		expected := types.SuppressionInstruction{
			Address:       "complained@example.com",
			Reason:        complaintFeedbackReasons["abuse"],
			Category:      types.SuppressionUnsubscribed,
			CorrelationId: "42",
		}
		assert.DeepEqual(t, expected, instructions[0])
		assert.Equal(t, "also-complained@example.com", instructions[1].Address)
	})

	t.Run("FallsBackToComplaintSubType", func(t *testing.T) {
		instructions := interpret(t, "", "OnAccountSuppressionList")

		assert.Equal(t, "OnAccountSuppressionList", instructions[0].Reason)
	})

	t.Run("DefaultsToUnknown", func(t *testing.T) {
		instructions := interpret(t, "", "")

		assert.Equal(t, "unknown", instructions[0].Reason)
	})

	t.Run("DefaultsToUnknownForUnrecognizedFeedbackType", func(t *testing.T) {
		instructions := interpret(t, "some-new-type", "")

		assert.Equal(t, "unknown", instructions[0].Reason)
	})
}

func TestInterpretInformational(t *testing.T) {
	t.Run("LogsDelivery", func(t *testing.T) {
		f := newInterpreterFixture()

		instructions, err := f.interpreter.Interpret(
			f.ctx, snsNotification(deliveryNotificationJson),
		)

		assert.NilError(t, err)
		assert.Assert(t, is.Nil(instructions))
		f.logs.AssertContains(t, `Delivery [Id:"EXAMPLE7c191be45"`)
		f.logs.AssertContains(t, `Subject:"Test message"]: success: {`)
	})

	t.Run("LogsRejectReason", func(t *testing.T) {
		f := newInterpreterFixture()

		instructions, err := f.interpreter.Interpret(f.ctx, []byte(rejectEventJson))

		assert.NilError(t, err)
		assert.Assert(t, is.Nil(instructions))
		f.logs.AssertContains(t, "rejected: Bad content")
	})

	t.Run("LogsUnsubscribeConfirmation", func(t *testing.T) {
		f := newInterpreterFixture()
		payload := snsPayload(map[string]string{
			"Type":     "UnsubscribeConfirmation",
			"TopicArn": testTopicArn,
		})

		instructions, err := f.interpreter.Interpret(f.ctx, payload)

		assert.NilError(t, err)
		assert.Assert(t, is.Nil(instructions))
		f.logs.AssertContains(t, "UnsubscribeConfirmation: "+testTopicArn)
	})
}

func TestInterpretUnknownType(t *testing.T) {
	f := newInterpreterFixture()
	payload := `{"Type": "SomeNewType", "Detail": "unexpected"}`

	instructions, err := f.interpreter.Interpret(f.ctx, []byte(payload))

	assert.Assert(t, is.Nil(instructions))
	assert.Assert(t, tu.ErrorIs(err, ErrUnknownType))
	assert.Error(t, err, "unknown webhook type: SomeNewType")
	f.logs.AssertContains(t, `unknown webhook type "SomeNewType": `+payload)
}

func TestInterpretUnknownInnerTypeLogsPayloadAsReceived(t *testing.T) {
	f := newInterpreterFixture()
	payload := snsNotification(`{"notificationType": "SomethingNew"}`)

	instructions, err := f.interpreter.Interpret(f.ctx, payload)

	assert.Assert(t, is.Nil(instructions))
	assert.Assert(t, tu.ErrorIs(err, ErrUnknownType))
	const prefix = `unknown webhook type "SomethingNew": `
	f.logs.AssertContains(t, prefix+string(payload))
	f.logs.AssertContains(t, testTopicArn)
}

func TestInterpretBadPayloadIsLogged(t *testing.T) {
	f := newInterpreterFixture()

	_, err := f.interpreter.Interpret(f.ctx, []byte("not JSON"))

	assert.Assert(t, tu.ErrorIs(err, ErrBadPayload))
	f.logs.AssertContains(t, "invalid JSON payload")
	f.logs.AssertContains(t, ": not JSON")
}

func TestInterpretSubscriptionConfirmation(t *testing.T) {
	t.Run("ConfirmsSubscription", func(t *testing.T) {
		f := newInterpreterFixture()
		server := newConfirmationServer(t, http.StatusOK)

		instructions, err := f.interpreter.Interpret(
			f.ctx, subscriptionConfirmation(server.URL+"/?Action=Confirm"),
		)

		assert.NilError(t, err)
		assert.Assert(t, is.Nil(instructions))
		assert.Equal(t, int32(1), server.numRequests.Load())
		f.logs.AssertContains(t, "confirmed SNS subscription to "+testTopicArn)
	})

	t.Run("LogsButDoesNotFailOnErrorStatus", func(t *testing.T) {
		f := newInterpreterFixture()
		server := newConfirmationServer(t, http.StatusInternalServerError)

		instructions, err := f.interpreter.Interpret(
			f.ctx, subscriptionConfirmation(server.URL),
		)

		assert.NilError(t, err)
		assert.Assert(t, is.Nil(instructions))
		f.logs.AssertContains(
			t,
			"SNS subscription confirmation failed: "+
				"HTTP 500: confirmation response",
		)
	})

	t.Run("LogsButDoesNotFailOnTransportError", func(t *testing.T) {
		f := newInterpreterFixture()
		f.interpreter.Client = errorDoer{errors.New("connection refused")}

		_, err := f.interpreter.Interpret(
			f.ctx, subscriptionConfirmation("https://sns.example.com/"),
		)

		assert.NilError(t, err)
		f.logs.AssertContains(t, "connection refused")
	})

	t.Run("SkipsUntrustedHost", func(t *testing.T) {
		f := newInterpreterFixture()
		f.interpreter.HostPattern = regexp.MustCompile(DefaultSubscribeHostPattern)
		server := newConfirmationServer(t, http.StatusOK)

		_, err := f.interpreter.Interpret(
			f.ctx, subscriptionConfirmation(server.URL),
		)

		assert.NilError(t, err)
		assert.Equal(t, int32(0), server.numRequests.Load())
		f.logs.AssertContains(t, "untrusted host")
	})

	t.Run("SkipsInvalidUrl", func(t *testing.T) {
		f := newInterpreterFixture()

		_, err := f.interpreter.Interpret(f.ctx, subscriptionConfirmation(""))

		assert.NilError(t, err)
		f.logs.AssertContains(t, "invalid SubscribeURL")
	})
}

func TestDefaultSubscribeHostPattern(t *testing.T) {
	pattern := regexp.MustCompile(DefaultSubscribeHostPattern)

	assert.Assert(t, pattern.MatchString("sns.us-east-1.amazonaws.com"))
	assert.Assert(t, pattern.MatchString("sns.cn-north-1.amazonaws.com.cn"))
	assert.Assert(t, !pattern.MatchString("sns.us-east-1.amazonaws.com.evil.io"))
	assert.Assert(t, !pattern.MatchString("127.0.0.1"))
}

func TestInterpretNotification(t *testing.T) {
	f := newInterpreterFixture()
	msg := []byte(bounceNotificationJson("Permanent", "NoEmail"))

	instructions, err := f.interpreter.InterpretNotification(f.ctx, msg)

	assert.NilError(t, err)
	assert.Equal(t, 1, len(instructions))
	assert.Equal(t, "smtp; 550 5.1.1 user unknown (NoEmail)", instructions[0].Reason)
}

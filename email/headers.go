package email

import (
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Headers that configure the SES request instead of appearing in the message.
const (
	HeaderConfigurationSet      = "X-SES-CONFIGURATION-SET"
	HeaderFeedbackForwarding    = "X-SES-FEEDBACK-FORWARDING-EMAIL-ADDRESS"
	HeaderFeedbackForwardingArn = HeaderFeedbackForwarding + "-IDENTITYARN"
	HeaderFromIdentityArn       = "X-SES-FROM-EMAIL-ADDRESS-IDENTITYARN"

	// Some senders still emit this misspelling, so it's accepted as well.
	headerFeedbackForwardingTypo    = "X-SES-FEEDBACK-FORWARDNG-EMAIL-ADDRESS"
	headerFeedbackForwardingArnTypo = headerFeedbackForwardingTypo + "-IDENTITYARN"
)

// HeaderEmailId carries the logical email id so bounce and complaint
// notifications can be correlated with the original send.
const HeaderEmailId = "X-EMAIL-ID"

// sesHeaders holds the SES request fields derived from a message's headers
// and tags, plus the headers that remain part of the message itself.
type sesHeaders struct {
	ConfigurationSet      string
	FeedbackForwarding    string
	FeedbackForwardingArn string
	FromIdentityArn       string
	Tags                  []sesv2types.MessageTag
	Custom                []header
}

// ValidHeaderName reports whether name is an RFC 5322 field name: one or more
// printable ASCII characters other than ':'.
func ValidHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 33 || c > 126 || c == ':' {
			return false
		}
	}
	return true
}

// invalidHeaderNames returns the names in headers that ValidHeaderName
// rejects, sorted.
func invalidHeaderNames(headers map[string]string) []string {
	var invalid []string
	for name := range headers {
		if !ValidHeaderName(name) {
			invalid = append(invalid, name)
		}
	}
	slices.Sort(invalid)
	return invalid
}

func newSesHeaders(
	headers, tags map[string]string, defaultConfigSet string,
) *sesHeaders {
	sh := &sesHeaders{ConfigurationSet: defaultConfigSet}

	for name, value := range headers {
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case HeaderConfigurationSet:
			sh.ConfigurationSet = value
		case HeaderFeedbackForwarding, headerFeedbackForwardingTypo:
			sh.FeedbackForwarding = value
		case HeaderFeedbackForwardingArn, headerFeedbackForwardingArnTypo:
			sh.FeedbackForwardingArn = value
		case HeaderFromIdentityArn:
			sh.FromIdentityArn = value
		case HeaderEmailId:
			// Set per recipient from RecipientMetadata.EmailId instead.
		default:
			sh.Custom = append(sh.Custom, header{Name: name, Value: value})
		}
	}
	slices.SortFunc(sh.Custom, func(a, b header) int {
		return strings.Compare(a.Name, b.Name)
	})

	for name, value := range tags {
		sh.Tags = append(sh.Tags, sesv2types.MessageTag{
			Name: aws.String(name), Value: aws.String(value),
		})
	}
	slices.SortFunc(sh.Tags, func(a, b sesv2types.MessageTag) int {
		return strings.Compare(aws.ToString(a.Name), aws.ToString(b.Name))
	})
	return sh
}

// headersFor returns the message headers for one recipient.
func (sh *sesHeaders) headersFor(recipient *RecipientMetadata) []header {
	if recipient == nil || recipient.EmailId == "" {
		return sh.Custom
	}
	result := make([]header, 0, len(sh.Custom)+1)
	result = append(result, sh.Custom...)
	return append(result, header{Name: HeaderEmailId, Value: recipient.EmailId})
}

func (sh *sesHeaders) applyToSend(input *sesv2.SendEmailInput) {
	input.ConfigurationSetName = optionalString(sh.ConfigurationSet)
	input.FeedbackForwardingEmailAddress = optionalString(sh.FeedbackForwarding)
	input.FeedbackForwardingEmailAddressIdentityArn = optionalString(
		sh.FeedbackForwardingArn,
	)
	input.FromEmailAddressIdentityArn = optionalString(sh.FromIdentityArn)
	input.EmailTags = sh.Tags
}

func (sh *sesHeaders) applyToBulk(input *sesv2.SendBulkEmailInput) {
	input.ConfigurationSetName = optionalString(sh.ConfigurationSet)
	input.FeedbackForwardingEmailAddress = optionalString(sh.FeedbackForwarding)
	input.FeedbackForwardingEmailAddressIdentityArn = optionalString(
		sh.FeedbackForwardingArn,
	)
	input.FromEmailAddressIdentityArn = optionalString(sh.FromIdentityArn)
	input.DefaultEmailTags = sh.Tags
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

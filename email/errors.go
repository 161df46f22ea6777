package email

import (
	"fmt"
	"slices"

	"github.com/mabumusa1/ses-plugin/types"
)

// ErrFatalPrecondition wraps every error that stops a send before any remote
// send call.
const ErrFatalPrecondition = types.SentinelError("fatal precondition")

const ErrQuotaExceeded = types.SentinelError(
	"SES 24 hour send quota exceeded",
)

const ErrSendingDisabled = types.SentinelError(
	"SES account is not enabled for sending",
)

const ErrInvalidMessage = types.SentinelError("invalid message")

const ErrInvalidAddress = types.SentinelError("invalid email address")

// ErrTransport prefixes every failure of a remote call itself, as opposed to
// the rejection of individual recipients reported by PartialFailureError.
const ErrTransport = types.SentinelError("unable to send email")

const ErrInvalidRate = types.SentinelError("rate must be greater than zero")

const ErrNoRecipientMetadata = types.SentinelError(
	"bulk send requires recipient metadata",
)

const ErrInvalidTemplateMode = types.SentinelError("invalid template mode")

const ErrTokenCollision = types.SentinelError(
	"placeholders map to the same template token",
)

func fatalError(err error) error {
	return fmt.Errorf("%w: %w", ErrFatalPrecondition, err)
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// PartialFailureSet maps the email address of each rejected recipient to its
// original, unmodified metadata.
type PartialFailureSet map[string]*RecipientMetadata

// Emails returns the failed addresses in sorted order.
func (pfs PartialFailureSet) Emails() []string {
	emails := make([]string, 0, len(pfs))
	for email := range pfs {
		emails = append(emails, email)
	}
	slices.Sort(emails)
	return emails
}

// PartialFailureError reports recipients rejected by SES while the rest of the
// message went out. Callers retry with OutboundMessage.Retry(err.Failed).
type PartialFailureError struct {
	Failed PartialFailureSet
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("There are %d partial failures", len(e.Failed))
}

package types

import "fmt"

type SuppressionCategory string

const (
	SuppressionBounced      SuppressionCategory = "bounced"
	SuppressionUnsubscribed SuppressionCategory = "unsubscribed"
)

// SuppressionInstruction describes an address that should no longer receive
// mail, as derived from a bounce or complaint notification.
type SuppressionInstruction struct {
	Address  string
	Reason   string
	Category SuppressionCategory

	// CorrelationId is the logical email id taken from the X-EMAIL-ID header
	// of the original message, if present.
	CorrelationId string
}

func (si *SuppressionInstruction) String() string {
	s := fmt.Sprintf("%s (%s): %s", si.Address, si.Category, si.Reason)
	if si.CorrelationId != "" {
		s += " [email id: " + si.CorrelationId + "]"
	}
	return s
}

package email

import (
	"fmt"
	"net/mail"
	"strings"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Name  string
	Email string
}

// ParseAddress parses a single RFC 5322 address such as "Foo <foo@bar.com>".
//
// The domain part of the address is lowercased. The local part is left as is,
// since it is technically case sensitive.
func ParseAddress(s string) (*Address, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %s", ErrInvalidAddress, s, err)
	}
	return &Address{Name: addr.Name, Email: NormalizeEmail(addr.Address)}, nil
}

// ParseAddresses parses every element of list, stopping at the first error.
func ParseAddresses(list []string) ([]*Address, error) {
	if len(list) == 0 {
		return nil, nil
	}
	addrs := make([]*Address, 0, len(list))

	for _, s := range list {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.LastIndexByte(email, '@'); i != -1 {
		return email[:i+1] + strings.ToLower(email[i+1:])
	}
	return email
}

// String returns the address in a form suitable for both SES destination lists
// and message headers. Non-ASCII display names are RFC 2047 encoded.
func (a *Address) String() string {
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

func StringifyAddresses(addrs []*Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	result := make([]string, len(addrs))

	for i, addr := range addrs {
		result[i] = addr.String()
	}
	return result
}

func formatAddressHeader(addrs []*Address) string {
	return strings.Join(StringifyAddresses(addrs), ", ")
}

package email

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ExampleMessageJson documents the message input accepted by the CLI and the
// Lambda send event.
const ExampleMessageJson = `  {
    "From": "Foo Bar <foobar@example.com>",
    "ReplyTo": ["replies@example.com"],
    "Subject": "Hello, {contactfield=firstname}!",
    "TextBody": "Hi {contactfield=firstname}, your code is {code}.",
    "HtmlBody": "<p>Hi {contactfield=firstname}, your code is {code}.</p>",
    "Headers": {"X-SES-CONFIGURATION-SET": "newsletter"},
    "Tags": {"campaign": "spring"},
    "Recipients": [
      {
        "Email": "alice@example.com",
        "Name": "Alice",
        "ContactId": "1",
        "EmailId": "42",
        "Tokens": {"{contactfield=firstname}": "Alice", "{code}": "A1"}
      },
      {
        "Email": "bob@example.com",
        "Name": "Bob",
        "ContactId": "2",
        "EmailId": "42",
        "Tokens": {"{contactfield=firstname}": "Bob", "{code}": "B2"}
      }
    ]
  }`

// OutboundMessage is one logical email addressed to many recipients.
//
// Subject and bodies may contain placeholders declared by the Tokens of the
// first entry in Recipients. When Recipients is empty, the message goes out
// once to its own To, Cc, and Bcc lists.
type OutboundMessage struct {
	From        string
	ReplyTo     []string `json:",omitempty"`
	To          []string `json:",omitempty"`
	Cc          []string `json:",omitempty"`
	Bcc         []string `json:",omitempty"`
	Subject     string
	TextBody    string               `json:",omitempty"`
	HtmlBody    string               `json:",omitempty"`
	Headers     map[string]string    `json:",omitempty"`
	Tags        map[string]string    `json:",omitempty"`
	Attachments []*Attachment        `json:",omitempty"`
	Recipients  []*RecipientMetadata `json:",omitempty"`
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type RecipientMetadata struct {
	Email     string
	Name      string            `json:",omitempty"`
	ContactId string            `json:",omitempty"`
	EmailId   string            `json:",omitempty"`
	HashId    string            `json:",omitempty"`
	Tokens    map[string]string `json:",omitempty"`
}

func (rm *RecipientMetadata) Address() (*Address, error) {
	addr, err := ParseAddress(rm.Email)
	if err != nil {
		return nil, err
	}
	if rm.Name != "" {
		addr.Name = rm.Name
	}
	return addr, nil
}

func NewOutboundMessageFromJson(r io.Reader) (*OutboundMessage, error) {
	msg := &OutboundMessage{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(msg); err != nil {
		return nil, fmt.Errorf("failed to parse message input from JSON: %w", err)
	} else if dec.More() {
		return nil, errors.New("message input contains more than one object")
	} else if err = msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func MustParseOutboundMessageFromJson(r io.Reader) *OutboundMessage {
	msg, err := NewOutboundMessageFromJson(r)
	if err != nil {
		panic(err.Error())
	}
	return msg
}

// Validate reports every problem with the message at once, wrapped in
// ErrInvalidMessage.
func (m *OutboundMessage) Validate() error {
	problems := make([]string, 0, 4)
	addProblem := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if m.From == "" {
		addProblem("missing From")
	} else if _, err := ParseAddress(m.From); err != nil {
		addProblem("From: %s", err)
	}
	if m.Subject == "" {
		addProblem("missing Subject")
	}
	if m.TextBody == "" && m.HtmlBody == "" {
		addProblem("missing TextBody and HtmlBody")
	}
	lists := []struct {
		field string
		addrs []string
	}{{"ReplyTo", m.ReplyTo}, {"To", m.To}, {"Cc", m.Cc}, {"Bcc", m.Bcc}}

	for _, list := range lists {
		if _, err := ParseAddresses(list.addrs); err != nil {
			addProblem("%s: %s", list.field, err)
		}
	}
	for _, name := range invalidHeaderNames(m.Headers) {
		addProblem("Headers: invalid header name %q", name)
	}
	if len(m.Recipients) == 0 && len(m.To)+len(m.Cc)+len(m.Bcc) == 0 {
		addProblem("no recipients")
	}

	seen := make(map[string]bool, len(m.Recipients))
	for i, r := range m.Recipients {
		if r == nil {
			addProblem("Recipients[%d]: missing", i)
		} else if _, err := r.Address(); err != nil {
			addProblem("Recipients[%d]: %s", i, err)
		} else if email := NormalizeEmail(r.Email); seen[email] {
			addProblem("Recipients[%d]: duplicate recipient %s", i, r.Email)
		} else {
			seen[email] = true
		}
	}

	if len(problems) != 0 {
		list := strings.Join(problems, "\n- ")
		return fmt.Errorf("%w:\n- %s", ErrInvalidMessage, list)
	}
	return nil
}

func (m *OutboundMessage) HasAttachments() bool {
	return len(m.Attachments) != 0
}

// Retry returns a shallow copy of the message addressed only to the failed
// recipients, in their original order.
func (m *OutboundMessage) Retry(failed PartialFailureSet) *OutboundMessage {
	retry := *m
	retry.Recipients = make([]*RecipientMetadata, 0, len(failed))

	for _, r := range m.Recipients {
		if _, ok := failed[r.Email]; ok {
			retry.Recipients = append(retry.Recipients, r)
		}
	}
	return &retry
}

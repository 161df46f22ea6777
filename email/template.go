package email

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

const TemplateNamePrefix = "BulkTemplate-"

// SES template names are limited to 64 alphanumeric, '-', or '_' characters.
const maxTemplateNameLength = 64

// TemplateDescriptor describes an SES template built from a message's
// subject and bodies, with placeholders in SES "{{name}}" form.
type TemplateDescriptor struct {
	Name    string
	Subject string
	Text    string
	Html    string
}

var invalidTemplateNameChars = regexp.MustCompile(`[^0-9A-Za-z_-]`)

// TemplateName derives a stable name from the logical email id and the
// message content. The same id and content always yield the same name.
func TemplateName(emailId, subject, text, html string) string {
	h := md5.New()
	for _, s := range []string{subject, text, html} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	digest := hex.EncodeToString(h.Sum(nil))

	id := invalidTemplateNameChars.ReplaceAllString(emailId, "_")
	maxIdLen := maxTemplateNameLength - len(TemplateNamePrefix) - len(digest) - 1
	if len(id) > maxIdLen {
		id = id[:maxIdLen]
	}
	return TemplateNamePrefix + id + "-" + digest
}

func (td *TemplateDescriptor) CreateInput() *sesv2.CreateEmailTemplateInput {
	return &sesv2.CreateEmailTemplateInput{
		TemplateName: aws.String(td.Name),
		TemplateContent: &sesv2types.EmailTemplateContent{
			Subject: aws.String(td.Subject),
			Text:    optionalString(td.Text),
			Html:    optionalString(td.Html),
		},
	}
}

package testutils

import (
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"testing"

	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

const contentTransferEncoding = "Content-Transfer-Encoding"

var CharsetUtf8 = map[string]string{"charset": "utf-8"}

// ParseMessage parses a raw MIME payload as produced by the message builder.
func ParseMessage(t *testing.T, content string) *mail.Message {
	t.Helper()

	msg, err := mail.ReadMessage(strings.NewReader(content))
	assert.NilError(t, err, "unparseable message:\n%s", content)
	return msg
}

func AssertContentTypeAndGetParams(
	t *testing.T, headers textproto.MIMEHeader, expectedMediaType string,
) map[string]string {
	t.Helper()

	ct := headers.Get("Content-Type")
	assert.Assert(t, ct != "", "no Content-Type header in: %+v", headers)

	mediaType, params, err := mime.ParseMediaType(ct)
	assert.NilError(t, err, "bad Content-Type: %s", ct)
	assert.Equal(t, expectedMediaType, mediaType)
	return params
}

func AssertContentType(
	t *testing.T,
	headers textproto.MIMEHeader,
	expectedMediaType string,
	expectedParams map[string]string,
) {
	t.Helper()

	params := AssertContentTypeAndGetParams(t, headers, expectedMediaType)
	assert.Assert(t, is.DeepEqual(expectedParams, params))
}

func GetDecodedContent(t *testing.T, content io.Reader) string {
	t.Helper()

	decoded, err := io.ReadAll(content)
	assert.NilError(t, err)
	return string(decoded)
}

func AssertDecodedContent(t *testing.T, content io.Reader, expected string) {
	t.Helper()
	assert.Equal(t, expected, GetDecodedContent(t, content))
}

// ParseTextMessage checks that content is a single quoted-printable UTF-8
// text/plain body and returns a reader that decodes it.
func ParseTextMessage(
	t *testing.T, content string,
) (*mail.Message, *quotedprintable.Reader) {
	t.Helper()

	msg := ParseMessage(t, content)
	header := textproto.MIMEHeader(msg.Header)
	AssertContentType(t, header, "text/plain", CharsetUtf8)
	assert.Equal(t, "quoted-printable", header.Get(contentTransferEncoding))
	return msg, quotedprintable.NewReader(msg.Body)
}

// NextRawPart returns the next part without checking its Content-Type, for
// nested multipart containers and attachments.
func NextRawPart(t *testing.T, reader *multipart.Reader) *multipart.Part {
	t.Helper()

	part, err := reader.NextPart()
	assert.NilError(t, err, "couldn't read message part")
	return part
}

// AssertNextPart checks the next UTF-8 part's media type and decoded body.
//
// multipart.Reader hides the quoted-printable Content-Transfer-Encoding header
// and decodes the body itself, so the header must be absent here.
func AssertNextPart(
	t *testing.T, reader *multipart.Reader, mediaType, decoded string,
) {
	t.Helper()

	part := NextRawPart(t, reader)
	AssertContentType(t, part.Header, mediaType, CharsetUtf8)
	assert.Equal(t, "", part.Header.Get(contentTransferEncoding))
	AssertDecodedContent(t, part, decoded)
}

func ParseMultipartMessageAndBoundary(
	t *testing.T, content, mediaType string,
) (msg *mail.Message, boundary string, partReader *multipart.Reader) {
	t.Helper()

	msg = ParseMessage(t, content)
	header := textproto.MIMEHeader(msg.Header)
	boundary = AssertContentTypeAndGetParams(t, header, mediaType)["boundary"]
	return msg, boundary, multipart.NewReader(msg.Body, boundary)
}

// TestHeader checks individual header values of a parsed message.
type TestHeader struct {
	mail.Header
}

func (th *TestHeader) Assert(t *testing.T, name string, expected string) {
	t.Helper()
	assert.Equal(t, expected, th.Get(name), "header: %s", name)
}

package email

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

var charsetUtf8 = map[string]string{"charset": "utf-8"}
var textContentType = mime.FormatMediaType("text/plain", charsetUtf8)
var htmlContentType = mime.FormatMediaType("text/html", charsetUtf8)

const base64LineLength = 76

type header struct {
	Name  string
	Value string
}

// mimeMessage is a fully rendered message, tokens already substituted.
type mimeMessage struct {
	From        *Address
	To          []*Address
	Cc          []*Address
	ReplyTo     []*Address
	Subject     string
	TextBody    string
	HtmlBody    string
	Headers     []header
	Attachments []*Attachment
	MessageId   string
	Date        time.Time
}

// Emit writes the message in RFC 5322 form. Bcc recipients never appear in
// the output.
func (mm *mimeMessage) Emit(dst io.Writer) error {
	w := &writer{buf: dst}

	w.WriteHeader("From", mm.From.String())
	if len(mm.To) != 0 {
		w.WriteHeader("To", formatAddressHeader(mm.To))
	}
	if len(mm.Cc) != 0 {
		w.WriteHeader("Cc", formatAddressHeader(mm.Cc))
	}
	if len(mm.ReplyTo) != 0 {
		w.WriteHeader("Reply-To", formatAddressHeader(mm.ReplyTo))
	}
	w.WriteHeader("Subject", encodeHeaderValue(mm.Subject))
	w.WriteHeader("Date", mm.Date.Format(time.RFC1123Z))
	w.WriteHeader("Message-ID", "<"+mm.MessageId+">")

	for _, h := range mm.Headers {
		w.WriteHeader(h.Name, encodeHeaderValue(h.Value))
	}
	w.WriteHeader("MIME-Version", "1.0")

	if len(mm.Attachments) == 0 {
		mm.emitBody(w)
	} else {
		mm.emitMixed(w)
	}
	return w.err
}

var headerLineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func encodeHeaderValue(value string) string {
	return mime.QEncoding.Encode("utf-8", headerLineBreaks.Replace(value))
}

func (mm *mimeMessage) emitBody(w *writer) {
	switch {
	case mm.HtmlBody == "":
		emitSinglePart(w, textContentType, mm.TextBody)
	case mm.TextBody == "":
		emitSinglePart(w, htmlContentType, mm.HtmlBody)
	default:
		boundary := newBoundary()
		w.WriteHeader("Content-Type", alternativeContentType(boundary))
		w.WriteLine("")

		if w.err == nil {
			w.err = emitAlternativeParts(w, boundary, mm.TextBody, mm.HtmlBody)
		}
	}
}

func (mm *mimeMessage) emitMixed(w *writer) {
	mpw := multipart.NewWriter(w)
	contentType := mime.FormatMediaType(
		"multipart/mixed", map[string]string{"boundary": mpw.Boundary()},
	)
	w.WriteHeader("Content-Type", contentType)
	w.WriteLine("")

	if w.err == nil {
		w.err = mm.emitBodyPart(mpw)
	}
	for _, attachment := range mm.Attachments {
		if w.err == nil {
			w.err = emitAttachment(mpw, attachment)
		}
	}
	if w.err == nil {
		w.err = mpw.Close()
	}
}

func (mm *mimeMessage) emitBodyPart(mpw *multipart.Writer) error {
	if mm.TextBody != "" && mm.HtmlBody != "" {
		boundary := newBoundary()
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", alternativeContentType(boundary))

		pw, err := mpw.CreatePart(h)
		if err != nil {
			return err
		}
		return emitAlternativeParts(pw, boundary, mm.TextBody, mm.HtmlBody)
	}

	contentType, body := textContentType, mm.TextBody
	if body == "" {
		contentType, body = htmlContentType, mm.HtmlBody
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	return emitPart(mpw, h, contentType, body)
}

func emitSinglePart(w *writer, contentType, body string) {
	w.WriteHeader("Content-Type", contentType)
	w.WriteHeader("Content-Transfer-Encoding", "quoted-printable")
	w.WriteLine("")

	if w.err == nil {
		w.err = convertToQuotedPrintable(w, convertToCrlf(body))
	}
}

func emitAlternativeParts(dst io.Writer, boundary, text, html string) error {
	mpw := multipart.NewWriter(dst)
	if err := mpw.SetBoundary(boundary); err != nil {
		return err
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	if err := emitPart(mpw, h, textContentType, text); err != nil {
		return err
	} else if err = emitPart(mpw, h, htmlContentType, html); err != nil {
		return err
	}
	return mpw.Close()
}

func emitPart(
	w *multipart.Writer, h textproto.MIMEHeader, contentType, body string,
) error {
	h.Set("Content-Type", contentType)
	if pw, err := w.CreatePart(h); err != nil {
		return err
	} else {
		return convertToQuotedPrintable(pw, convertToCrlf(body))
	}
}

func emitAttachment(w *multipart.Writer, attachment *Attachment) error {
	filename := attachment.Filename
	if filename == "" {
		filename = "attachment"
	}
	contentType := attachment.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set(
		"Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": filename}),
	)

	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	return writeBase64Lines(pw, attachment.Content)
}

func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)

	for len(encoded) != 0 {
		n := min(base64LineLength, len(encoded))
		if _, err := io.WriteString(w, encoded[:n]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func alternativeContentType(boundary string) string {
	return mime.FormatMediaType(
		"multipart/alternative", map[string]string{"boundary": boundary},
	)
}

func newBoundary() string {
	return multipart.NewWriter(io.Discard).Boundary()
}

func convertToQuotedPrintable(w io.Writer, msg string) error {
	qpw := quotedprintable.NewWriter(w)
	if _, err := qpw.Write([]byte(msg)); err != nil {
		return err
	}
	return qpw.Close()
}

func convertToCrlf(s string) string {
	// Per 'man ascii':
	// - 0x0d == "\r"
	// - 0x0a == "\n"
	numLf := 0
	for i := range s {
		if s[i] == 0x0a {
			numLf++
		}
	}

	buf := make([]byte, len(s)+numLf)
	n := 0
	emitCr := true

	for i := range s {
		c := s[i]
		switch c {
		case 0x0a:
			if emitCr {
				buf[n] = 0x0d
				n++
			}
			emitCr = true
		default:
			emitCr = c != 0x0d
		}
		buf[n] = c
		n++
	}
	return string(buf[:n])
}

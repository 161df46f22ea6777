//go:build small_tests || all_tests

package email

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"gotest.tools/assert"
)

type ErrWriter struct {
	buf     io.Writer
	errorOn string
	err     error
}

func (ew *ErrWriter) Write(b []byte) (int, error) {
	if bytes.Contains(b, []byte(ew.errorOn)) {
		return 0, ew.err
	}
	return ew.buf.Write(b)
}

func TestWriter(t *testing.T) {
	newWriter := func(errorOn string) (*strings.Builder, *writer) {
		sb := &strings.Builder{}
		ew := &ErrWriter{buf: sb, errorOn: errorOn, err: errors.New("disk full")}
		return sb, &writer{buf: ew}
	}

	t.Run("WritesLinesAndHeadersWithCrlf", func(t *testing.T) {
		sb, w := newWriter("never matches")

		w.WriteHeader("Subject", "Your code")
		w.WriteLine("")
		n, err := w.Write([]byte("body"))

		assert.NilError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, "Subject: Your code\r\n\r\nbody", sb.String())
		assert.NilError(t, w.err)
	})

	t.Run("DropsEverythingAfterFirstError", func(t *testing.T) {
		sb, w := newWriter("To:")

		w.WriteHeader("From", "sender@example.com")
		w.WriteHeader("To", "bob@example.com")
		w.WriteLine("Subject: never written")
		n, err := w.Write([]byte("body"))

		assert.Equal(t, "From: sender@example.com\r\n", sb.String())
		assert.Error(t, w.err, "disk full")
		assert.NilError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("WriteReturnsTheFailure", func(t *testing.T) {
		_, w := newWriter("body")

		_, err := w.Write([]byte("body"))

		assert.Error(t, err, "disk full")
		assert.Error(t, w.err, "disk full")
	})
}

package email

import (
	"io"
)

// writer remembers the first error from buf and drops every later write.
type writer struct {
	buf io.Writer
	err error
}

func (w *writer) WriteLine(s string) {
	if w.err == nil {
		_, w.err = w.buf.Write([]byte(s + "\r\n"))
	}
}

func (w *writer) WriteHeader(name, value string) {
	w.WriteLine(name + ": " + value)
}

func (w *writer) Write(b []byte) (n int, err error) {
	if w.err == nil {
		n, err = w.buf.Write(b)
		w.err = err
	}
	return
}

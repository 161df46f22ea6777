package email

//go:generate go run golang.org/x/tools/cmd/stringer -type=Strategy -linecomment
type Strategy int

const (
	RawStrategy  Strategy = iota // raw
	BulkStrategy                 // templated-bulk
)

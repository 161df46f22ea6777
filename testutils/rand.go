package testutils

import (
	"math/rand"
	"strings"
)

const randomChars = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"

// RandomString returns n characters that are valid in DynamoDB table names,
// SES template names, and email local parts.
func RandomString(n int) string {
	var sb strings.Builder
	sb.Grow(n)

	for range n {
		sb.WriteByte(randomChars[rand.Intn(len(randomChars))])
	}
	return sb.String()
}

func RandomEmail(n int, domain string) string {
	return RandomString(n) + "@" + domain
}

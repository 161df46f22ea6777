//go:build small_tests || all_tests

package email

import (
	"testing"

	tu "github.com/mabumusa1/ses-plugin/testutils"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

func TestParseAddress(t *testing.T) {
	t.Run("Succeeds", func(t *testing.T) {
		addr, err := ParseAddress("Foo Bar <foobar@EXAMPLE.com>")

		assert.NilError(t, err)
		assert.DeepEqual(t, &Address{Name: "Foo Bar", Email: "foobar@example.com"}, addr)
	})

	t.Run("PreservesLocalPartCase", func(t *testing.T) {
		addr, err := ParseAddress("  FooBar@Example.COM ")

		assert.NilError(t, err)
		assert.Equal(t, "FooBar@example.com", addr.Email)
	})

	t.Run("FailsOnInvalidAddress", func(t *testing.T) {
		addr, err := ParseAddress("foobar at example.com")

		assert.Assert(t, is.Nil(addr))
		assert.Assert(t, tu.ErrorIs(err, ErrInvalidAddress))
		assert.ErrorContains(t, err, `"foobar at example.com"`)
	})
}

func TestParseAddresses(t *testing.T) {
	t.Run("ReturnsNilForEmptyList", func(t *testing.T) {
		addrs, err := ParseAddresses(nil)

		assert.NilError(t, err)
		assert.Assert(t, is.Nil(addrs))
	})

	t.Run("ParsesEveryAddress", func(t *testing.T) {
		addrs, err := ParseAddresses(
			[]string{"alice@example.com", "Bob <bob@example.com>"},
		)

		assert.NilError(t, err)
		expected := []string{"<alice@example.com>", `"Bob" <bob@example.com>`}
		assert.DeepEqual(t, expected, StringifyAddresses(addrs))
	})

	t.Run("StopsAtFirstError", func(t *testing.T) {
		_, err := ParseAddresses([]string{"alice@example.com", "bogus", "@"})

		assert.Assert(t, tu.ErrorIs(err, ErrInvalidAddress))
		assert.ErrorContains(t, err, `"bogus"`)
	})
}

func TestAddressString(t *testing.T) {
	t.Run("EncodesNonAsciiNames", func(t *testing.T) {
		addr := &Address{Name: "Jürgen", Email: "j@example.com"}

		assert.Equal(t, "=?utf-8?q?J=C3=BCrgen?= <j@example.com>", addr.String())
	})

	t.Run("FormatsAddressHeader", func(t *testing.T) {
		addrs := []*Address{
			{Email: "alice@example.com"}, {Name: "Bob", Email: "bob@example.com"},
		}

		const expected = `<alice@example.com>, "Bob" <bob@example.com>`
		assert.Equal(t, expected, formatAddressHeader(addrs))
	})
}

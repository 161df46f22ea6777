//go:build small_tests || all_tests

package email

import (
	"encoding/json"
	"testing"

	tu "github.com/mabumusa1/ses-plugin/testutils"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

func TestDeclaredTokens(t *testing.T) {
	t.Run("ReturnsNilWithoutRecipients", func(t *testing.T) {
		assert.Assert(t, is.Nil(DeclaredTokens(nil)))
	})

	t.Run("UsesFirstRecipientLongestFirst", func(t *testing.T) {
		recipients := []*RecipientMetadata{
			{Tokens: map[string]string{"{a}": "", "{abc}": "", "{ab}": ""}},
			{Tokens: map[string]string{"{other}": ""}},
		}

		ts := DeclaredTokens(recipients)

		assert.DeepEqual(t, TokenSet{"{abc}", "{ab}", "{a}"}, ts)
	})
}

func TestReplacer(t *testing.T) {
	ts := TokenSet{"{name}", "{code}"}

	t.Run("SubstitutesEveryValue", func(t *testing.T) {
		r := ts.Replacer(map[string]string{"{name}": "Alice", "{code}": "A1"})

		assert.Equal(t, "Hi Alice, A1", r.Replace("Hi {name}, {code}"))
	})

	t.Run("LeavesPlaceholdersWithoutValues", func(t *testing.T) {
		r := ts.Replacer(map[string]string{"{name}": "Alice"})

		assert.Equal(t, "Hi Alice, {code}", r.Replace("Hi {name}, {code}"))
	})

	t.Run("PrefersLongestPlaceholder", func(t *testing.T) {
		ts := DeclaredTokens([]*RecipientMetadata{
			{Tokens: map[string]string{"{name}": "", "{name_full}": ""}},
		})
		r := ts.Replacer(
			map[string]string{"{name}": "Al", "{name_full}": "Alice Smith"},
		)

		assert.Equal(t, "Alice Smith (Al)", r.Replace("{name_full} ({name})"))
	})
}

func TestProviderTokens(t *testing.T) {
	t.Run("ConvertsPlaceholderNames", func(t *testing.T) {
		assert.Equal(
			t, "contactfield_firstname", ProviderTokenName("{contactfield=firstname}"),
		)
		assert.Equal(t, "unsubscribe_url", ProviderTokenName("{unsubscribe_url}"))
	})

	t.Run("MapsEveryPlaceholder", func(t *testing.T) {
		mapping, err := ProviderTokens(TokenSet{"{contactfield=firstname}", "{code}"})

		assert.NilError(t, err)
		expected := map[string]string{
			"{contactfield=firstname}": "contactfield_firstname",
			"{code}":                   "code",
		}
		assert.DeepEqual(t, expected, mapping)
	})

	t.Run("FailsOnCollision", func(t *testing.T) {
		_, err := ProviderTokens(TokenSet{"{a-b}", "{a=b}"})

		assert.Assert(t, tu.ErrorIs(err, ErrTokenCollision))
		assert.ErrorContains(t, err, `"a_b"`)
	})

	t.Run("FailsOnEmptyName", func(t *testing.T) {
		_, err := ProviderTokens(TokenSet{"{}"})

		assert.Assert(t, tu.ErrorIs(err, ErrInvalidMessage))
	})
}

func TestProviderTemplate(t *testing.T) {
	ts := TokenSet{"{contactfield=firstname}", "{code}"}
	mapping, err := ProviderTokens(ts)
	assert.NilError(t, err)

	t.Run("RewritesPlaceholders", func(t *testing.T) {
		result := providerTemplate("Hi {contactfield=firstname}: {code}", ts, mapping)

		assert.Equal(t, "Hi {{contactfield_firstname}}: {{code}}", result)
	})

	t.Run("LeavesEmptyTextEmpty", func(t *testing.T) {
		assert.Equal(t, "", providerTemplate("", ts, mapping))
	})
}

func TestTemplateData(t *testing.T) {
	mapping := map[string]string{"{name}": "name", "{code}": "code"}

	t.Run("KeysValuesByProviderName", func(t *testing.T) {
		data, err := templateData(
			map[string]string{"{name}": "Alice", "{code}": "A1"}, mapping,
		)

		assert.NilError(t, err)
		decoded := map[string]string{}
		assert.NilError(t, json.Unmarshal([]byte(data), &decoded))
		assert.DeepEqual(t, map[string]string{"name": "Alice", "code": "A1"}, decoded)
	})

	t.Run("FallsBackToPlaceholderText", func(t *testing.T) {
		data, err := templateData(map[string]string{"{name}": "Alice"}, mapping)

		assert.NilError(t, err)
		assert.Equal(t, `{"code":"{code}","name":"Alice"}`, data)
	})
}

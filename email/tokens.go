package email

import (
	"cmp"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// TokenSet is the list of placeholders a message declares, such as
// "{contactfield=firstname}", ordered longest first so that a placeholder
// never shadows a longer one sharing its prefix.
type TokenSet []string

// DeclaredTokens returns the placeholders declared by the first recipient.
func DeclaredTokens(recipients []*RecipientMetadata) TokenSet {
	if len(recipients) == 0 {
		return nil
	}
	ts := make(TokenSet, 0, len(recipients[0].Tokens))

	for placeholder := range recipients[0].Tokens {
		if placeholder != "" {
			ts = append(ts, placeholder)
		}
	}
	slices.SortFunc(ts, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return ts
}

// Replacer substitutes every declared placeholder that has an entry in values.
// Placeholders without a value are left as is.
func (ts TokenSet) Replacer(values map[string]string) *strings.Replacer {
	oldnew := make([]string, 0, len(ts)*2)

	for _, placeholder := range ts {
		if value, ok := values[placeholder]; ok {
			oldnew = append(oldnew, placeholder, value)
		}
	}
	return strings.NewReplacer(oldnew...)
}

var nonAlphanumeric = regexp.MustCompile(`[^0-9A-Za-z]`)

// ProviderTokenName converts a placeholder into a name usable inside an SES
// template, e.g. "{contactfield=firstname}" becomes "contactfield_firstname".
func ProviderTokenName(placeholder string) string {
	return nonAlphanumeric.ReplaceAllString(strings.Trim(placeholder, "{}"), "_")
}

// ProviderTokens maps each placeholder to its SES template token name.
//
// Fails with ErrTokenCollision if two placeholders map to the same name, since
// the per-recipient substitution data would then be ambiguous.
func ProviderTokens(ts TokenSet) (map[string]string, error) {
	mapping := make(map[string]string, len(ts))
	owners := make(map[string]string, len(ts))

	for _, placeholder := range ts {
		name := ProviderTokenName(placeholder)

		if name == "" {
			const errFmt = "%w: placeholder %q has no usable token name"
			return nil, fmt.Errorf(errFmt, ErrInvalidMessage, placeholder)
		} else if other, ok := owners[name]; ok {
			return nil, fmt.Errorf(
				"%w: %q and %q both map to %q",
				ErrTokenCollision, other, placeholder, name,
			)
		}
		owners[name] = placeholder
		mapping[placeholder] = name
	}
	return mapping, nil
}

// providerTemplate rewrites every placeholder into SES "{{name}}" syntax.
func providerTemplate(
	text string, ts TokenSet, mapping map[string]string,
) string {
	if text == "" {
		return ""
	}
	oldnew := make([]string, 0, len(ts)*2)

	for _, placeholder := range ts {
		oldnew = append(oldnew, placeholder, "{{"+mapping[placeholder]+"}}")
	}
	return strings.NewReplacer(oldnew...).Replace(text)
}

// templateData returns the JSON substitution data for one recipient.
//
// Tokens missing from values fall back to the original placeholder text, the
// same result a raw send produces.
func templateData(values, mapping map[string]string) (string, error) {
	data := make(map[string]string, len(mapping))

	for placeholder, name := range mapping {
		if value, ok := values[placeholder]; ok {
			data[name] = value
		} else {
			data[name] = placeholder
		}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode template data: %w", err)
	}
	return string(encoded), nil
}

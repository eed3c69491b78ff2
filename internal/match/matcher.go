// Package match maps free-text message content to candidate accounts using
// number and name heuristics. It holds no state; every function is pure.
package match

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/mukuzz/myfi-sub000/internal/models"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Match returns every account the text plausibly refers to. Two strategies
// run independently and their results are unioned: number-based matching is
// primary, name-based matching recovers accounts whose messages carry no
// number at all.
func Match(text string, accounts []models.Account) []models.Account {
	norm := normalize(text)

	matched := make([]models.Account, 0, len(accounts))
	seen := make(map[string]bool)

	for _, acc := range accounts {
		if matchesNumber(norm, &acc) {
			log.Printf("Matched account %s (%s) by number", acc.Name, acc.TrailingDigits())
			matched = append(matched, acc)
			seen[acc.ID] = true
		}
	}

	for _, acc := range accounts {
		if seen[acc.ID] {
			continue
		}
		if matchesName(norm, &acc) {
			log.Printf("Matched account %s by name fallback", acc.Name)
			matched = append(matched, acc)
			seen[acc.ID] = true
		}
	}

	return matched
}

// matchesNumber tests the normalized text against the known written forms of
// the account number.
func matchesNumber(norm string, acc *models.Account) bool {
	number := strings.ToLower(acc.Number)
	last4 := strings.ToLower(acc.TrailingDigits())
	if last4 == "" {
		return false
	}

	candidates := []string{
		number,
		"ending with " + last4,
		"ending " + last4,
		"xxxx" + last4,
		"****" + last4,
		spaced(last4),
	}
	for _, c := range candidates {
		if c != "" && strings.Contains(norm, c) {
			return true
		}
	}

	// a run of 4+ mask characters immediately followed by the trailing digits
	maskRe := regexp.MustCompile(fmt.Sprintf(`[x*#]{4,}\s?%s`, regexp.QuoteMeta(last4)))
	return maskRe.MatchString(norm)
}

// matchesName tests the text for any known alias of the account's name.
func matchesName(norm string, acc *models.Account) bool {
	for _, alias := range nameAliases(acc) {
		if alias != "" && strings.Contains(norm, alias) {
			return true
		}
	}
	return false
}

// nameAliases expands an account's display and institution names into the
// variants issuers actually print: the full name, the institution name, and
// the institution's leading word (the common abbreviation, e.g. "hdfc" for
// "HDFC Bank").
func nameAliases(acc *models.Account) []string {
	aliases := []string{
		normalize(acc.Name),
		normalize(acc.InstitutionName),
	}
	if fields := strings.Fields(normalize(acc.InstitutionName)); len(fields) > 1 {
		aliases = append(aliases, fields[0])
	}
	return aliases
}

// NumbersConsistent checks a claimed account against a number extracted
// downstream. They are consistent when the extracted number is empty (defer
// to other signals) or its trailing 4 digits equal the account's.
func NumbersConsistent(acc *models.Account, extracted string) bool {
	extracted = strings.TrimSpace(extracted)
	if extracted == "" {
		return true
	}
	if len(extracted) > 4 {
		extracted = extracted[len(extracted)-4:]
	}
	return extracted == acc.TrailingDigits()
}

// MentionsAccount is the content filter applied before extraction: the text
// must carry the account's trailing digits in some written form, or an
// issuer-specific keyword for issuers whose messages omit account numbers.
func MentionsAccount(text string, acc *models.Account, issuerKeywords []string) bool {
	norm := normalize(text)
	if matchesNumber(norm, acc) {
		return true
	}
	for _, kw := range issuerKeywords {
		if kw != "" && strings.Contains(norm, normalize(kw)) {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

// spaced renders digits with single spaces between them ("1 2 3 4").
func spaced(digits string) string {
	if digits == "" {
		return ""
	}
	return strings.Join(strings.Split(digits, ""), " ")
}

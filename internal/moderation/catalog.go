package moderation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// Rule is a single detection pattern. Skip, when set, discards a match that
// the pattern alone cannot rule out (an allow-listed URL). Split, when set,
// replaces a match with the sub-spans it returns, given as [start, end]
// offsets into the match; returning none discards the match.
type Rule struct {
	Pattern *regexp.Regexp
	Skip    func(match string) bool
	Split   func(match string) [][]int
}

// Category groups the rules for one infraction type under a fixed severity.
type Category struct {
	Type     InfractionType
	Severity Severity
	Rules    []Rule
}

func rule(expr string) Rule {
	return Rule{Pattern: regexp.MustCompile(expr)}
}

// handleSep matches the separator between a platform name and a handle:
// "instagram: foo", "instagram:@foo" or "instagram @foo".
const handleSep = `\s*(?::\s*@?|@)`

// AllowedLinkDomains are hosts (and their subdomains) where artists keep
// portfolios. Links to them are not flagged as external links.
var AllowedLinkDomains = []string{
	"drive.google.com",
	"docs.google.com",
	"dropbox.com",
	"behance.net",
	"artstation.com",
	"github.io",
}

// defaultCatalog is scanned in order for every message. It is built once at
// package init and never mutated, so a Classifier can be shared freely across
// goroutines.
var defaultCatalog = []Category{
	{
		Type:     TypeEmail,
		Severity: SeveritySevere,
		Rules: []Rule{
			rule(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`),
			// artist [at] gmail [dot] com, artist(arroba)gmail.com
			rule(`(?i)[a-z0-9._%+\-]+\s*(?:\[at\]|\(at\)|\[arroba\]|\(arroba\))\s*[a-z0-9\-]+(?:\s*(?:\.|\[dot\]|\(dot\)|\[punto\]|\(punto\))\s*[a-z0-9\-]+)*`),
			rule(`(?i)\bcorreo(?:\s+electr[oó]nico)?\s*:\s*\S+`),
		},
	},
	{
		Type:     TypePhone,
		Severity: SeveritySevere,
		Rules: []Rule{
			rule(`(?i)\b(?:whatsapp|wsp|celular|m[oó]vil|tel[eé]fono|tel|phone|mi\s+n[uú]mero|ll[aá]mame\s+al)\b\s*(?:es\s*)?[:.\-]?\s*\+?\d[\d\s().\-]{5,}\d`),
			{
				Pattern: regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`),
				Split:   phoneNumbers,
			},
			rule(`\(?\b\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`),
		},
	},
	{
		Type:     TypeSocial,
		Severity: SeverityWarning,
		Rules: []Rule{
			rule(`(?i)\b(?:instagram|insta|ig)\b` + handleSep + `[a-z0-9._]{2,30}`),
			// A bare "x" needs a letter-led handle so "4 x: 20 euros" stays clean.
			rule(`(?i)(?:\btwitter\b` + handleSep + `[a-z0-9_]{2,15}|\bx\b` + handleSep + `[a-z_][a-z0-9_]{1,14}|\bx\.com/[a-z0-9_]{2,15})`),
			rule(`(?i)\b(?:facebook|fb)(?:\.com/[a-z0-9.]{3,50}|\b` + handleSep + `[a-z0-9.]{3,50})`),
			rule(`(?i)(?:\btelegram\b` + handleSep + `[a-z0-9_]{3,32}|\bt\.me/[a-z0-9_]{3,32})`),
			rule(`(?i)(?:\bdiscord\b` + handleSep + `[a-z0-9_.#]{2,37}|\bdiscord\.gg/[a-z0-9]+)`),
			rule(`(?i)\btik\s?tok\b` + handleSep + `[a-z0-9._]{2,24}`),
			rule(`(?i)(?:\blinkedin\b` + handleSep + `[a-z0-9\-]{3,100}|\blinkedin\.com/in/[a-z0-9\-_%]+)`),
			rule(`(?i)\b(?:s[ií]gueme|b[uú]scame|follow\s+me)\s+(?:en|on)\s+(?:[a-z]+\s+)?@[a-z0-9._]{2,30}`),
		},
	},
	{
		Type:     TypePayment,
		Severity: SeverityCritical,
		Rules: []Rule{
			rule(`(?i)\b(?:pay\s?pal|bizum|iban|stripe|mercado\s?pago|western\s+union|venmo|cash\s?app|zelle|revolut)\b`),
			rule(`(?i)\b(?:bank\s+transfer|wire\s+transfer|transferencia\s+bancaria)\b`),
			rule(`(?i)\b(?:pago\s+externo|pagar\s+por\s+fuera|te\s+paso\s+mi\s+pay\s?pal|hazme\s+un\s+bizum|pay\s+(?:me\s+)?outside(?:\s+the\s+platform)?)`),
		},
	},
	{
		Type:     TypeExternalLink,
		Severity: SeverityWarning,
		Rules: []Rule{
			{
				Pattern: regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`),
				Skip:    IsAllowedLink,
			},
			rule(`(?i)\b(?:enlace|link)\s+externo\b|\bexternal\s+link\b`),
		},
	},
}

// DefaultCatalog returns a copy of the built-in category table.
func DefaultCatalog() []Category {
	out := make([]Category, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

const (
	minPhoneDigits = 9
	maxPhoneDigits = 15 // E.164
)

// phoneNumbers cuts a run of digits and separators into phone numbers. A run
// of 9 to 15 digits is one number. A longer run may hold several numbers, or a
// number followed by a date, so it is cut at separators: from each group, the
// longest stretch of groups that stays within 15 digits is taken if it reaches
// 9. Stretches that never reach 9 digits, such as a single group longer than
// 15, are dropped.
func phoneNumbers(run string) [][]int {
	type group struct{ start, end int }
	var groups []group
	total := 0
	for i := 0; i < len(run); {
		if !isASCIIDigit(run[i]) {
			i++
			continue
		}
		j := i
		for j < len(run) && isASCIIDigit(run[j]) {
			j++
		}
		groups = append(groups, group{i, j})
		total += j - i
		i = j
	}
	if total >= minPhoneDigits && total <= maxPhoneDigits {
		return [][]int{{0, len(run)}}
	}

	var spans [][]int
	for i := 0; i < len(groups); {
		digits, last := 0, -1
		for j := i; j < len(groups); j++ {
			digits += groups[j].end - groups[j].start
			if digits > maxPhoneDigits {
				break
			}
			if digits >= minPhoneDigits {
				last = j
			}
		}
		if last < 0 {
			i++
			continue
		}
		start := groups[i].start
		if i == 0 {
			start = 0 // keep a leading "+" or "("
		}
		spans = append(spans, []int{start, groups[last].end})
		i = last + 1
	}
	return spans
}

func isASCIIDigit(b byte) bool {
	return '0' <= b && b <= '9'
}

// IsAllowedLink reports whether a URL found in a message points to one of
// the AllowedLinkDomains.
func IsAllowedLink(raw string) bool {
	raw = strings.TrimRight(raw, ".,;:!?)]}")
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "http://" + raw
	}

	normalized, err := purell.NormalizeURLString(raw, purell.FlagsSafe|purell.FlagRemoveWWW)
	if err != nil {
		return false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, domain := range AllowedLinkDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

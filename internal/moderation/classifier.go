package moderation

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MatchConfidence is the weight attached to every pattern match. It is a
	// fixed placeholder until matches are scored individually.
	MatchConfidence = 0.9

	// contextRunes is how many characters of surrounding text are kept on
	// each side of a match.
	contextRunes = 20
)

// Classifier scans message text against a category catalog. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	categories []Category
}

// NewClassifier returns a Classifier using the built-in catalog.
func NewClassifier() *Classifier {
	return &Classifier{categories: defaultCatalog}
}

// NewClassifierWithCatalog returns a Classifier scanning the given categories
// in order. The slice must not be modified afterwards.
func NewClassifierWithCatalog(categories []Category) *Classifier {
	return &Classifier{categories: categories}
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// Classify returns every infraction found in text, in catalog order.
//
// Text is NFC-normalized first so that decomposed accents ("e" followed by a
// combining acute) match the same keywords as precomposed ones. Within one
// category a match overlapping an already flagged span is dropped, so a single
// phone number caught by two phone rules counts once. Matches from different
// categories may overlap freely.
func (c *Classifier) Classify(text string) []Infraction {
	text = norm.NFC.String(text)
	infractions := []Infraction{}

	for _, cat := range c.categories {
		var flagged []span
		for _, r := range cat.Rules {
		matches:
			for _, sp := range ruleSpans(r, text) {
				for _, f := range flagged {
					if f.overlaps(sp) {
						continue matches
					}
				}
				flagged = append(flagged, sp)
				infractions = append(infractions, Infraction{
					Type:        cat.Type,
					MatchedText: text[sp.start:sp.end],
					Confidence:  MatchConfidence,
					Context:     contextWindow(text, sp.start, sp.end),
					Severity:    cat.Severity,
				})
			}
		}
	}
	return infractions
}

// ruleSpans returns the spans of text a single rule flags, after Skip and
// Split are applied.
func ruleSpans(r Rule, text string) []span {
	var spans []span
	for _, loc := range r.Pattern.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		if r.Skip != nil && r.Skip(match) {
			continue
		}
		if r.Split == nil {
			spans = append(spans, span{loc[0], loc[1]})
			continue
		}
		for _, sub := range r.Split(match) {
			spans = append(spans, span{loc[0] + sub[0], loc[0] + sub[1]})
		}
	}
	return spans
}

// Decide classifies text and aggregates the result. It performs no I/O.
func (c *Classifier) Decide(text string) Result {
	infractions := c.Classify(text)
	blocked, severity := Aggregate(infractions)
	return Result{
		IsBlocked:   blocked,
		Infractions: infractions,
		Severity:    severity,
	}
}

// contextWindow returns text[start:end] widened by up to contextRunes runes on
// each side, clipped to the bounds of text.
func contextWindow(text string, start, end int) string {
	from := start
	for i := 0; i < contextRunes && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for i := 0; i < contextRunes && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return text[from:to]
}

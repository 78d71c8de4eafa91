// Package textproc normalizes natural-language and source text into terms.
//
// The same Preprocessor must be used for queries and indexed content so that
// term matching is symmetric.
package textproc

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

var tokenPattern = regexp.MustCompile(`[\w]+(?:'\w)?`)

// Preprocessor tokenizes text, splits compound identifiers, removes stop
// words and short tokens, and optionally stems. It is safe for concurrent use.
type Preprocessor struct {
	minLength int
	noStem    bool
	stopWords map[string]struct{}
}

// Option configures a Preprocessor
type Option func(*Preprocessor)

// WithMinLength drops terms shorter than n runes
func WithMinLength(n int) Option {
	return func(p *Preprocessor) { p.minLength = n }
}

// WithStemming(false) turns the stem argument of Preprocess into a no-op
func WithStemming(enabled bool) Option {
	return func(p *Preprocessor) { p.noStem = !enabled }
}

// WithStopWords replaces the default English stop word list
func WithStopWords(words []string) Option {
	return func(p *Preprocessor) {
		p.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			p.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// New creates a Preprocessor. The default minimum length is 3; Lasso
// indexes use 1 so that single-letter operands stay matchable.
func New(opts ...Option) *Preprocessor {
	p := &Preprocessor{minLength: 3, stopWords: defaultStopWords}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preprocess returns the normalized terms of text in order of appearance
func (p *Preprocessor) Preprocess(text string, stem bool) []string {
	tokens := tokenPattern.FindAllString(text, -1)
	terms := make([]string, 0, len(tokens))

	for _, token := range tokens {
		token = strings.ReplaceAll(token, "'", "")
		parts := SplitIdentifier(token)

		candidates := []string{strings.ToLower(token)}
		if len(parts) > 1 {
			for _, part := range parts {
				candidates = append(candidates, strings.ToLower(part))
			}
		}

		for _, c := range candidates {
			if t, ok := p.normalize(c, stem); ok {
				terms = append(terms, t)
			}
		}
	}
	return terms
}

// Join preprocesses text and joins the terms with single spaces, the form
// stored in whitespace-tokenized index fields
func (p *Preprocessor) Join(text string, stem bool) string {
	return strings.Join(p.Preprocess(text, stem), " ")
}

func (p *Preprocessor) normalize(term string, stem bool) (string, bool) {
	if term == "" || isAllUnderscore(term) {
		return "", false
	}
	if _, stop := p.stopWords[term]; stop {
		return "", false
	}
	if len([]rune(term)) < p.minLength {
		return "", false
	}
	if stem && !p.noStem {
		term = english.Stem(term, false)
	}
	return term, term != ""
}

// SplitIdentifier splits camelCase, PascalCase, snake_case and digit
// boundaries: "parseHTTPHeader_v2" -> [parse HTTP Header v 2]
func SplitIdentifier(s string) []string {
	var parts []string
	runes := []rune(s)
	start := -1

	flush := func(end int) {
		if start >= 0 && end > start {
			parts = append(parts, string(runes[start:end]))
		}
		start = -1
	}

	for i, r := range runes {
		if r == '_' {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}

		prev := runes[i-1]
		switch {
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush(i)
			start = i
		case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
			start = i
		case unicode.IsDigit(r) != unicode.IsDigit(prev):
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return parts
}

func isAllUnderscore(s string) bool {
	return strings.Trim(s, "_") == ""
}

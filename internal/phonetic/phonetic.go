// Package phonetic scores how likely a spoken phrase refers to a known
// contact name. It combines Double Metaphone codes with Jaro-Winkler
// similarity:
//
//  1. A name is a phonetic candidate when any Double Metaphone code of a
//     spoken token overlaps with a code of the name. Phonetic candidates are
//     accepted above the phonetic threshold (default 0.70).
//  2. Names without code overlap are accepted only on pure Jaro-Winkler
//     similarity above the fuzzy threshold (default 0.85).
//
// The scores are hints. Recipient resolution itself is delegated to the
// generation service, which sees the candidates next to the full directory.
package phonetic

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Candidate is a name that sounds like part of the input.
type Candidate struct {
	Name     string
	Score    float64
	Phonetic bool
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for names that
// share a Double Metaphone code with the input. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for names without a
// shared phonetic code. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Candidates returns the names that plausibly occur somewhere in utterance,
// best score first. Multi-word names are compared against windows of the
// same number of spoken tokens.
func (m *Matcher) Candidates(utterance string, names []string) []Candidate {
	tokens := tokenize(utterance)
	if len(tokens) == 0 {
		return nil
	}

	var out []Candidate
	for _, name := range names {
		nameTokens := tokenize(name)
		if len(nameTokens) == 0 {
			continue
		}
		size := min(len(nameTokens), len(tokens))

		var best Candidate
		for i := 0; i+size <= len(tokens); i++ {
			if c, ok := m.score(tokens[i:i+size], nameTokens); ok && better(c, best) {
				best = c
			}
		}
		if best.Score > 0 {
			best.Name = name
			out = append(out, best)
		}
	}
	sortCandidates(out)
	return out
}

// Similar returns the names in names that sound like name, excluding exact
// (case-insensitive) matches, best score first.
func (m *Matcher) Similar(name string, names []string) []Candidate {
	nameTokens := tokenize(name)
	if len(nameTokens) == 0 {
		return nil
	}
	key := strings.Join(nameTokens, " ")

	var out []Candidate
	for _, other := range names {
		otherTokens := tokenize(other)
		if len(otherTokens) == 0 || strings.Join(otherTokens, " ") == key {
			continue
		}
		if c, ok := m.score(nameTokens, otherTokens); ok {
			c.Name = other
			out = append(out, c)
		}
	}
	sortCandidates(out)
	return out
}

// score compares spoken tokens with name tokens and reports whether the pair
// clears the relevant threshold.
func (m *Matcher) score(spoken, name []string) (Candidate, bool) {
	jw := bestJWScore(spoken, name)
	if codesOverlap(codesForTokens(spoken), codesForTokens(name)) {
		return Candidate{Score: jw, Phonetic: true}, jw >= m.phoneticThreshold
	}
	return Candidate{Score: jw}, jw >= m.fuzzyThreshold
}

// better prefers phonetic candidates, then higher scores.
func better(c, than Candidate) bool {
	if c.Phonetic != than.Phonetic {
		return c.Phonetic
	}
	return c.Score > than.Score
}

func sortCandidates(cs []Candidate) {
	slices.SortStableFunc(cs, func(a, b Candidate) int {
		if better(a, b) {
			return -1
		}
		if better(b, a) {
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

// tokenize lowercases s and splits it on anything that is not a letter or
// digit, so "Alice," and "alice" compare equal.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the maximum Jaro-Winkler similarity over the joined
// phrases, the space-stripped phrases and every token pair.
func bestJWScore(a, b []string) float64 {
	score := matchr.JaroWinkler(strings.Join(a, " "), strings.Join(b, " "), false)
	if len(a) > 1 || len(b) > 1 {
		if s := matchr.JaroWinkler(strings.Join(a, ""), strings.Join(b, ""), false); s > score {
			score = s
		}
	}
	for _, x := range a {
		for _, y := range b {
			if s := matchr.JaroWinkler(x, y, false); s > score {
				score = s
			}
		}
	}
	return score
}

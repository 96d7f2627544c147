package repoql

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// --------------------------------------------------------------------------
// Full-text matching for CONTAINS.
//
// Expression syntax:
//
//	term        word must occur
//	-term       word must not occur
//	"a b"       phrase: words must occur consecutively
//	x OR y      either group matches
//
// Matching is case-insensitive (Unicode case folding) over the words of
// the searched property values.
// --------------------------------------------------------------------------

type ftTerm struct {
	words   []string
	exclude bool
}

type fullText struct {
	groups [][]ftTerm // OR of ANDs
}

func foldWords(s string) []string {
	folded := cases.Fold().String(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func parseFullText(expr string) (*fullText, error) {
	ft := &fullText{}
	var group []ftTerm
	flush := func() {
		if len(group) > 0 {
			ft.groups = append(ft.groups, group)
			group = nil
		}
	}
	rest := strings.TrimSpace(expr)
	for rest != "" {
		exclude := false
		if rest[0] == '-' {
			exclude = true
			rest = rest[1:]
		}
		var raw string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("repoql: unterminated phrase in full-text expression %q", expr)
			}
			raw, rest = rest[1:end+1], rest[end+2:]
		} else {
			end := strings.IndexFunc(rest, unicode.IsSpace)
			if end < 0 {
				end = len(rest)
			}
			raw, rest = rest[:end], rest[end:]
		}
		rest = strings.TrimSpace(rest)
		if raw == "OR" && !exclude {
			flush()
			continue
		}
		if words := foldWords(raw); len(words) > 0 {
			group = append(group, ftTerm{words: words, exclude: exclude})
		}
	}
	flush()
	if len(ft.groups) == 0 {
		return nil, fmt.Errorf("repoql: empty full-text expression %q", expr)
	}
	return ft, nil
}

func containsPhrase(doc, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(doc); i++ {
		match := true
		for j, w := range phrase {
			if doc[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func termIn(docs [][]string, t ftTerm) bool {
	for _, d := range docs {
		if containsPhrase(d, t.words) {
			return true
		}
	}
	return false
}

// evaluate returns whether any group matches and the best score, the
// fraction of a group's positive terms found.
func (ft *fullText) evaluate(texts []string) (bool, float64) {
	docs := make([][]string, len(texts))
	for i, t := range texts {
		docs[i] = foldWords(t)
	}
	matched, best := false, 0.0
	for _, group := range ft.groups {
		ok, positive, found := true, 0, 0
		for _, t := range group {
			in := termIn(docs, t)
			if t.exclude {
				if in {
					ok = false
				}
				continue
			}
			positive++
			if in {
				found++
			} else {
				ok = false
			}
		}
		if positive > 0 {
			if s := float64(found) / float64(positive); s > best {
				best = s
			}
		}
		if ok {
			matched = true
		}
	}
	return matched, best
}

func (ft *fullText) matches(texts []string) bool {
	ok, _ := ft.evaluate(texts)
	return ok
}

// FullTextScore scores expr against the properties of e (all of them when
// property is ""). It returns 0 for an unparsable expression.
func FullTextScore(e *RowEntry, property, expr string) float64 {
	ft, err := parseFullText(expr)
	if err != nil || e == nil {
		return 0
	}
	_, score := ft.evaluate(e.texts(property))
	return score
}

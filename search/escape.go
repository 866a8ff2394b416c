package search

import "strings"

// tagEscapeChars are escaped inside TAG field queries. Hyphen is the NOT
// operator and period is a JSON-path separator inside RediSearch tag
// syntax, so both need escaping even though neither is a query operator in
// the usual sense (spec.md §4.7 "Escape sets").
const tagEscapeChars = `${}\|-.`

// textOperatorEscapeChars are escaped inside TEXT query-operator contexts
// (prefix/contains/fuzzy terms). "-" and "/" are deliberately excluded:
// they are tokenizers at index time and must reach the query unescaped to
// match the tokens they produced (spec.md §4.7, scenario 5).
const textOperatorEscapeChars = `\()|'"[]{}:@?~&!.*%`

// phraseEscapeChars are escaped inside an exact-match quoted phrase.
const phraseEscapeChars = `\"`

func escapeChars(s, chars string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if strings.ContainsRune(chars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeTag escapes s for use inside a TAG field query.
func EscapeTag(s string) string { return escapeChars(s, tagEscapeChars) }

// EscapeTextOperator escapes s for use as a TEXT query-operator term
// (prefix, contains, fuzzy). Never escapes "-" or "/".
func EscapeTextOperator(s string) string { return escapeChars(s, textOperatorEscapeChars) }

// EscapePhrase escapes s for use inside a quoted exact-match phrase.
func EscapePhrase(s string) string { return escapeChars(s, phraseEscapeChars) }

// tokenizerSplitChars are the characters RediSearch's default tokenizer
// breaks TEXT fields on that this compiler also needs to split on when
// building a multi-token prefix query (spec.md §4.7 "prefix on TEXT").
const tokenizerSplitChars = "-/"

// tokenize splits s on the tokenizer characters, dropping empty tokens.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if strings.ContainsRune(tokenizerSplitChars, r) {
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return tokens
}

// Package tokenizer splits record text into positional terms and parses
// logfmt record lines.
//
// Terms are the unit phrase and proximity functions match on: each term
// is a maximal run of letters, digits and underscores, lowercased, and its
// offset is its index among the terms of the text. Every word takes an
// offset, so consecutive offsets are adjacent words and an excerpt can be
// rebuilt from term-frequency data alone.
package tokenizer

import (
	"unicode"
	"unicode/utf8"

	"sieve/internal/termoffset"
)

// DefaultMaxTokenLen bounds the bytes kept of one term. Longer words are
// truncated, not split.
const DefaultMaxTokenLen = 64

// Token is one term and its offset.
type Token struct {
	Term   string
	Offset int
}

// IterTokens calls fn for each term of data with its offset. The byte slice
// passed to fn is reused between calls and must not be retained. If fn
// returns false, iteration stops early.
//
// buf is a reusable buffer for building terms; pass nil to allocate one.
// maxLen <= 0 means DefaultMaxTokenLen.
func IterTokens(data []byte, buf []byte, maxLen int, fn func(term []byte, offset int) bool) {
	if len(data) == 0 {
		return
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxTokenLen
	}
	current := buf[:0]
	if cap(current) < maxLen {
		current = make([]byte, 0, maxLen)
	}

	offset := 0
	inWord := false
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if isTermRune(r) {
			inWord = true
			if lr := unicode.ToLower(r); len(current)+utf8.RuneLen(lr) <= maxLen {
				current = utf8.AppendRune(current, lr)
			}
			continue
		}
		if inWord {
			if !fn(current, offset) {
				return
			}
			offset++
			current = current[:0]
			inWord = false
		}
	}
	if inWord {
		fn(current, offset)
	}
}

// isTermRune reports whether r belongs to a term. Invalid UTF-8 decodes to
// RuneError and delimits.
func isTermRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Tokens returns the terms of text in order.
func Tokens(text string) []Token {
	var tokens []Token
	IterTokens([]byte(text), nil, DefaultMaxTokenLen, func(term []byte, offset int) bool {
		tokens = append(tokens, Token{Term: string(term), Offset: offset})
		return true
	})
	return tokens
}

// TermFrequencies returns the term-frequency list of one text field of
// recordID.
func TermFrequencies(recordID, text string) *termoffset.TermFrequencyList {
	return AddTermFrequencies(termoffset.NewTermFrequencyList(), recordID, text)
}

// AddTermFrequencies adds the terms of text under recordID to list and
// returns it.
func AddTermFrequencies(list *termoffset.TermFrequencyList, recordID, text string) *termoffset.TermFrequencyList {
	IterTokens([]byte(text), nil, DefaultMaxTokenLen, func(term []byte, offset int) bool {
		list.Add(string(term), recordID, offset)
		return true
	})
	return list
}

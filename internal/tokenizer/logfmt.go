package tokenizer

import (
	"bytes"
	"fmt"
)

// MaxKeyLength and MaxValueLength bound logfmt keys and values in bytes.
const (
	MaxKeyLength   = 64
	MaxValueLength = 4096
)

// KeyValue is one field of a logfmt line.
type KeyValue struct {
	Key   string
	Value string
}

// ParseLogfmt parses one logfmt line into fields, in order. Repeated keys
// are kept, so a field can carry several values; an exact repeat of a pair
// is dropped. Keys and values keep their case.
//
//	key   := ident
//	value := ident | '"' quoted_string '"'
//	ident := byte > ' ', excluding '=' and '"'
//	pair  := key '=' value | key '=' | key (bare key → true)
//
// A key with an empty value is skipped. Lines that start like JSON or
// carry no '=' are rejected.
func ParseLogfmt(line []byte) ([]KeyValue, error) {
	if !isLogfmt(line) {
		return nil, fmt.Errorf("not a logfmt line: %.40q", line)
	}

	var result []KeyValue
	seen := make(map[KeyValue]struct{})
	add := func(kv KeyValue) {
		if _, ok := seen[kv]; !ok {
			seen[kv] = struct{}{}
			result = append(result, kv)
		}
	}

	i := 0
	for i < len(line) {
		i = skipSpace(line, i)
		if i >= len(line) {
			break
		}

		keyStart, keyEnd := i, scanIdent(line, i)
		i = keyEnd
		if keyEnd == keyStart {
			i++
			continue
		}
		key := string(line[keyStart:keyEnd])
		if len(key) > MaxKeyLength {
			return nil, fmt.Errorf("logfmt key %.20q... longer than %d bytes", key, MaxKeyLength)
		}

		if i >= len(line) || line[i] != '=' {
			add(KeyValue{Key: key, Value: "true"})
			continue
		}
		i++ // '='

		if i >= len(line) || isSpace(line[i]) {
			continue
		}

		var value string
		if line[i] == '"' {
			var err error
			if value, i, err = quotedValue(line, i); err != nil {
				return nil, fmt.Errorf("logfmt key %s: %w", key, err)
			}
		} else {
			end := scanIdent(line, i)
			value = string(line[i:end])
			i = end
		}
		if len(value) > MaxValueLength {
			return nil, fmt.Errorf("logfmt key %s: value longer than %d bytes", key, MaxValueLength)
		}
		if value != "" {
			add(KeyValue{Key: key, Value: value})
		}
	}
	return result, nil
}

func isLogfmt(line []byte) bool {
	first := skipSpace(line, 0)
	if first >= len(line) {
		return false
	}
	if c := line[first]; c == '{' || c == '[' || c == '<' {
		return false
	}
	return bytes.IndexByte(line, '=') >= 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func skipSpace(line []byte, i int) int {
	for i < len(line) && isSpace(line[i]) {
		i++
	}
	return i
}

func scanIdent(line []byte, i int) int {
	for i < len(line) && line[i] > ' ' && line[i] != '=' && line[i] != '"' {
		i++
	}
	return i
}

// quotedValue reads the string starting at the quote at i. \" and \\ are
// unescaped; other backslashes are kept.
func quotedValue(line []byte, i int) (string, int, error) {
	i++
	var buf []byte
	for i < len(line) && line[i] != '"' {
		if line[i] == '\\' && i+1 < len(line) && (line[i+1] == '"' || line[i+1] == '\\') {
			buf = append(buf, line[i+1])
			i += 2
			continue
		}
		buf = append(buf, line[i])
		i++
	}
	if i >= len(line) {
		return "", i, fmt.Errorf("unterminated quoted value")
	}
	return string(buf), i + 1, nil
}

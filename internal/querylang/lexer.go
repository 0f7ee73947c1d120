package querylang

import (
	"strings"
)

// TokenKind identifies the type of lexical token.
type TokenKind int

const (
	TokEOF      TokenKind = iota
	TokIdent              // field or function name
	TokString             // quoted string (quotes stripped, escapes processed)
	TokInt                // integer literal
	TokFloat              // floating point literal
	TokTrue               // true
	TokFalse              // false
	TokNull               // null
	TokAnd                // && or and (case-insensitive)
	TokOr                 // || or or (case-insensitive)
	TokNot                // ! or not (case-insensitive)
	TokLParen             // (
	TokRParen             // )
	TokComma              // ,
	TokColon              // :
	TokEq                 // ==
	TokNe                 // !=
	TokLt                 // <
	TokGt                 // >
	TokLe                 // <=
	TokGe                 // >=
	TokMatch              // =~
	TokNotMatch           // !~
	TokPlus               // +
	TokMinus              // -
	TokStar               // *
	TokSlash              // /
	TokPercent            // %
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "EOF"
	case TokIdent:
		return "IDENT"
	case TokString:
		return "STRING"
	case TokInt:
		return "INT"
	case TokFloat:
		return "FLOAT"
	case TokTrue:
		return "true"
	case TokFalse:
		return "false"
	case TokNull:
		return "null"
	case TokAnd:
		return "&&"
	case TokOr:
		return "||"
	case TokNot:
		return "!"
	case TokLParen:
		return "("
	case TokRParen:
		return ")"
	case TokComma:
		return ","
	case TokColon:
		return ":"
	case TokEq:
		return "=="
	case TokNe:
		return "!="
	case TokLt:
		return "<"
	case TokGt:
		return ">"
	case TokLe:
		return "<="
	case TokGe:
		return ">="
	case TokMatch:
		return "=~"
	case TokNotMatch:
		return "!~"
	case TokPlus:
		return "+"
	case TokMinus:
		return "-"
	case TokStar:
		return "*"
	case TokSlash:
		return "/"
	case TokPercent:
		return "%"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Kind TokenKind
	Lit  string // for quoted strings: unescaped content without quotes
	Pos  int    // byte offset in input for error reporting
}

// Lexer tokenizes an expression string.
type Lexer struct {
	input string
	pos   int // current position in input
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// twoCharTokens maps two-byte operators to their kinds.
var twoCharTokens = map[string]TokenKind{
	"&&": TokAnd,
	"||": TokOr,
	"==": TokEq,
	"!=": TokNe,
	"<=": TokLe,
	">=": TokGe,
	"=~": TokMatch,
	"!~": TokNotMatch,
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos}, nil
	}

	startPos := l.pos
	ch := l.input[l.pos]

	if l.pos+1 < len(l.input) {
		if kind, ok := twoCharTokens[l.input[l.pos:l.pos+2]]; ok {
			l.pos += 2
			return Token{Kind: kind, Lit: l.input[startPos:l.pos], Pos: startPos}, nil
		}
	}

	switch ch {
	case '(':
		return l.single(TokLParen), nil
	case ')':
		return l.single(TokRParen), nil
	case ',':
		return l.single(TokComma), nil
	case ':':
		return l.single(TokColon), nil
	case '!':
		return l.single(TokNot), nil
	case '<':
		return l.single(TokLt), nil
	case '>':
		return l.single(TokGt), nil
	case '+':
		return l.single(TokPlus), nil
	case '-':
		return l.single(TokMinus), nil
	case '*':
		return l.single(TokStar), nil
	case '/':
		return l.single(TokSlash), nil
	case '%':
		return l.single(TokPercent), nil
	case '"', '\'':
		return l.scanQuotedString(ch)
	}

	if isDigit(ch) {
		return l.scanNumber()
	}
	if isIdentStart(ch) {
		return l.scanIdent(), nil
	}
	return Token{}, newParseError(startPos, ErrUnexpectedChar, "unexpected character %q", ch)
}

func (l *Lexer) single(kind TokenKind) Token {
	tok := Token{Kind: kind, Lit: l.input[l.pos : l.pos+1], Pos: l.pos}
	l.pos++
	return tok
}

// skipWhitespace advances past whitespace characters.
func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			l.pos++
		} else {
			break
		}
	}
}

// scanQuotedString scans a quoted string, processing escape sequences.
func (l *Lexer) scanQuotedString(quote byte) (Token, error) {
	startPos := l.pos
	l.pos++ // skip opening quote

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		if ch == quote {
			l.pos++ // skip closing quote
			return Token{Kind: TokString, Lit: sb.String(), Pos: startPos}, nil
		}

		if ch == '\\' {
			l.pos++
			if l.pos >= len(l.input) {
				return Token{}, newParseError(l.pos-1, ErrUnterminatedString, "unterminated string: escape at end of input")
			}

			escaped := l.input[l.pos]
			switch escaped {
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '\'':
				sb.WriteByte('\'')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '|', '^', '$', 'd', 'w', 's', 'b':
				// Regex escapes pass through untouched.
				sb.WriteByte('\\')
				sb.WriteByte(escaped)
			default:
				return Token{}, newParseError(l.pos-1, ErrInvalidEscape, "invalid escape sequence: \\%c", escaped)
			}
			l.pos++
			continue
		}

		sb.WriteByte(ch)
		l.pos++
	}

	return Token{}, newParseError(startPos, ErrUnterminatedString, "unterminated string starting at position %d", startPos)
}

// scanNumber scans an integer or floating point literal.
func (l *Lexer) scanNumber() (Token, error) {
	startPos := l.pos
	kind := TokInt
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		kind = TokFloat
		l.pos++
		if l.pos >= len(l.input) || !isDigit(l.input[l.pos]) {
			return Token{}, newParseError(startPos, ErrInvalidNumber, "invalid number %q", l.input[startPos:l.pos])
		}
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		kind = TokFloat
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.pos >= len(l.input) || !isDigit(l.input[l.pos]) {
			return Token{}, newParseError(startPos, ErrInvalidNumber, "invalid number %q", l.input[startPos:l.pos])
		}
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && isIdentStart(l.input[l.pos]) {
		return Token{}, newParseError(startPos, ErrInvalidNumber, "invalid number %q", l.input[startPos:l.pos+1])
	}
	return Token{Kind: kind, Lit: l.input[startPos:l.pos], Pos: startPos}, nil
}

// scanIdent scans an identifier, which may be a keyword.
func (l *Lexer) scanIdent() Token {
	startPos := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	lit := l.input[startPos:l.pos]
	return Token{Kind: classifyWord(lit), Lit: lit, Pos: startPos}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '.'
}

// classifyWord checks if a word is a keyword. The boolean operators are
// case-insensitive; literals are not.
func classifyWord(word string) TokenKind {
	switch word {
	case "true":
		return TokTrue
	case "false":
		return TokFalse
	case "null":
		return TokNull
	}
	switch strings.ToUpper(word) {
	case "AND":
		return TokAnd
	case "OR":
		return TokOr
	case "NOT":
		return TokNot
	default:
		return TokIdent
	}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() (Token, error) {
	savedPos := l.pos
	tok, err := l.Next()
	l.pos = savedPos
	return tok, err
}

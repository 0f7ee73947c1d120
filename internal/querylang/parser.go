package querylang

import "strconv"

// Parser parses a filter expression into an AST.
//
// Grammar (EBNF):
//
//	script     = or_expr EOF
//	or_expr    = and_expr ( ( "||" | "or" ) and_expr )*
//	and_expr   = unary_expr ( ( "&&" | "and" ) unary_expr )*
//	unary_expr = ( "!" | "not" ) unary_expr | comparison
//	comparison = additive [ cmp_op additive ]
//	cmp_op     = "==" | "!=" | "<" | ">" | "<=" | ">=" | "=~" | "!~"
//	additive   = term ( ( "+" | "-" ) term )*
//	term       = primary ( ( "*" | "/" | "%" ) primary )*
//	primary    = "(" or_expr ")" | literal | call | IDENT | "-" number
//	call       = [ IDENT ":" ] IDENT "(" [ or_expr ( "," or_expr )* ] ")"
//	literal    = STRING | number | "true" | "false" | "null"
//
// Precedence (highest to lowest):
//  1. Parentheses, calls, literals
//  2. * / %
//  3. + -
//  4. Comparisons
//  5. NOT (prefix, right-associative)
//  6. AND
//  7. OR
//
// Chains of the same boolean operator produce a single junction node:
// "a || b || c" is one Or with three terms. Parentheses produce a Reference.
type parser struct {
	lex *Lexer
	cur Token
}

// Parse parses an expression string into a Script.
func Parse(input string) (*Script, error) {
	p := &parser{lex: NewLexer(input)}

	// Prime the parser with the first token.
	if err := p.advance(); err != nil {
		return nil, err
	}

	// Check for empty query.
	if p.cur.Kind == TokEOF {
		return nil, newParseError(0, ErrEmptyQuery, "empty query")
	}

	expr, err := p.parseOrExpr()
	if err != nil {
		return nil, err
	}

	// Ensure we consumed all input.
	if p.cur.Kind != TokEOF {
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "unexpected token: %s", p.cur.Lit)
	}

	return NewScript(expr), nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(input string) *Script {
	s, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return s
}

// advance moves to the next token.
func (p *parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// parseOrExpr parses: or_expr = and_expr ( "||" and_expr )*
func (p *parser) parseOrExpr() (Node, error) {
	first, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}

	terms := []Node{first}
	for p.cur.Kind == TokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}

	if len(terms) == 1 {
		return first, nil
	}
	return NewOr(terms...), nil
}

// parseAndExpr parses: and_expr = unary_expr ( "&&" unary_expr )*
func (p *parser) parseAndExpr() (Node, error) {
	first, err := p.parseUnaryExpr()
	if err != nil {
		return nil, err
	}

	terms := []Node{first}
	for p.cur.Kind == TokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnaryExpr()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}

	if len(terms) == 1 {
		return first, nil
	}
	return NewAnd(terms...), nil
}

// parseUnaryExpr parses: unary_expr = "!" unary_expr | comparison
func (p *parser) parseUnaryExpr() (Node, error) {
	if p.cur.Kind == TokNot {
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}

		// Check for something after NOT.
		if p.cur.Kind == TokEOF {
			return nil, newParseError(pos, ErrUnexpectedEOF, "expected expression after !")
		}

		term, err := p.parseUnaryExpr()
		if err != nil {
			return nil, err
		}
		return NewNot(term), nil
	}

	return p.parseComparison()
}

var compareOps = map[TokenKind]CompareOp{
	TokEq:       OpEQ,
	TokNe:       OpNE,
	TokLt:       OpLT,
	TokGt:       OpGT,
	TokLe:       OpLE,
	TokGe:       OpGE,
	TokMatch:    OpMatches,
	TokNotMatch: OpNotMatches,
}

// parseComparison parses: comparison = additive [ cmp_op additive ]
func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	op, ok := compareOps[p.cur.Kind]
	if !ok {
		return left, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, chained := compareOps[p.cur.Kind]; chained {
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "chained comparison %s", p.cur.Lit)
	}
	return NewComparison(op, left, right), nil
}

// parseAdditive parses: additive = term ( ( "+" | "-" ) term )*
func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokPlus || p.cur.Kind == TokMinus {
		op := OpAdd
		if p.cur.Kind == TokMinus {
			op = OpSub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = NewArithmetic(op, left, right)
	}
	return left, nil
}

// parseTerm parses: term = primary ( ( "*" | "/" | "%" ) primary )*
func (p *parser) parseTerm() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		var op ArithOp
		switch p.cur.Kind {
		case TokStar:
			op = OpMul
		case TokSlash:
			op = OpDiv
		case TokPercent:
			op = OpMod
		default:
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = NewArithmetic(op, left, right)
	}
}

// parsePrimary parses: primary = "(" or_expr ")" | literal | call | IDENT | "-" number
func (p *parser) parsePrimary() (Node, error) {
	tok := p.cur
	switch tok.Kind {
	case TokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}

		// Check for empty parens.
		if p.cur.Kind == TokRParen {
			return nil, newParseError(tok.Pos, ErrEmptyQuery, "empty parentheses")
		}

		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}

		if p.cur.Kind != TokRParen {
			return nil, newParseError(tok.Pos, ErrUnmatchedParen, "unmatched opening parenthesis")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return NewReference(expr), nil

	case TokString:
		return StringLit(tok.Lit), p.advance()
	case TokTrue:
		return BoolLit(true), p.advance()
	case TokFalse:
		return BoolLit(false), p.advance()
	case TokNull:
		return NullLit(), p.advance()
	case TokInt, TokFloat:
		lit, err := numberLit(tok, false)
		if err != nil {
			return nil, err
		}
		return lit, p.advance()

	case TokMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokInt && p.cur.Kind != TokFloat {
			return nil, newParseError(tok.Pos, ErrUnexpectedToken, "expected number after -")
		}
		lit, err := numberLit(p.cur, true)
		if err != nil {
			return nil, err
		}
		return lit, p.advance()

	case TokIdent:
		return p.parseIdentOrCall()

	case TokEOF:
		return nil, newParseError(tok.Pos, ErrUnexpectedEOF, "unexpected end of query")
	case TokRParen:
		return nil, newParseError(tok.Pos, ErrUnmatchedParen, "unexpected closing parenthesis")
	default:
		return nil, newParseError(tok.Pos, ErrUnexpectedToken, "unexpected token %s", tok.Kind)
	}
}

func numberLit(tok Token, negative bool) (*Literal, error) {
	text := tok.Lit
	if negative {
		text = "-" + text
	}
	if tok.Kind == TokInt {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, newParseError(tok.Pos, ErrInvalidNumber, "invalid integer %q", text)
		}
		return IntLit(n), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, newParseError(tok.Pos, ErrInvalidNumber, "invalid float %q", text)
	}
	return FloatLit(f), nil
}

// parseIdentOrCall parses an identifier, "name(args)" or "ns:name(args)".
func (p *parser) parseIdentOrCall() (Node, error) {
	first := p.cur
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch p.cur.Kind {
	case TokColon:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokIdent {
			return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected function name after %s:", first.Lit)
		}
		name := p.cur.Lit
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokLParen {
			return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "expected ( after %s:%s", first.Lit, name)
		}
		return p.parseCall(first.Lit, name)
	case TokLParen:
		return p.parseCall("", first.Lit)
	default:
		return NewIdentifier(first.Lit), nil
	}
}

// parseCall parses the argument list; the current token is "(".
func (p *parser) parseCall(namespace, name string) (Node, error) {
	openPos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []Node
	if p.cur.Kind != TokRParen {
		for {
			arg, err := p.parseOrExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.Kind != TokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.cur.Kind != TokRParen {
		if p.cur.Kind == TokEOF {
			return nil, newParseError(openPos, ErrUnmatchedParen, "unterminated argument list for %s", name)
		}
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "unexpected token %s in arguments of %s", p.cur.Kind, name)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return NewFunction(namespace, name, args...), nil
}

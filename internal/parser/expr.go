package parser

import (
	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/lexer"
	"github.com/parisxmas/esp32basic/internal/token"
)

// precedence implements spec.md §4.2's operator-precedence table, lowest
// binding first: OR/XOR, AND, comparisons, +/-, */ \ MOD, ^ (right-assoc).
func precedence(k token.Kind) int {
	switch k {
	case token.KwOr, token.KwXor:
		return 1
	case token.KwAnd:
		return 2
	case token.Eq, token.Neq, token.Lt, token.Gt, token.Leq, token.Geq:
		return 3
	case token.Plus, token.Minus:
		return 4
	case token.Star, token.Slash, token.Backslash, token.KwMod:
		return 5
	case token.Caret:
		return 6
	}
	return 0
}

func isRightAssoc(k token.Kind) bool { return k == token.Caret }

func opTextOf(t token.Token) string {
	switch t.Kind {
	case token.KwOr:
		return "OR"
	case token.KwXor:
		return "XOR"
	case token.KwAnd:
		return "AND"
	case token.KwMod:
		return "MOD"
	case token.Eq:
		return "="
	case token.Neq:
		return "<>"
	case token.Lt:
		return "<"
	case token.Gt:
		return ">"
	case token.Leq:
		return "<="
	case token.Geq:
		return ">="
	case token.Plus:
		return "+"
	case token.Minus:
		return "-"
	case token.Star:
		return "*"
	case token.Slash:
		return "/"
	case token.Backslash:
		return "\\"
	case token.Caret:
		return "^"
	}
	return t.Text
}

// parseExpr parses a full expression via precedence climbing.
func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseBinaryExpr(1)
}

func (p *Parser) parseBinaryExpr(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnaryExpr()
	if err != nil {
		return nil, err
	}
	for {
		opTok := p.peek()
		prec := precedence(opTok.Kind)
		if prec < minPrec || prec == 0 {
			break
		}
		p.advance()
		nextMin := prec + 1
		if isRightAssoc(opTok.Kind) {
			nextMin = prec
		}
		right, err := p.parseBinaryExpr(nextMin)
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{
			Base: baseOf(left.Span(), right.Span()),
			Op:   opTextOf(opTok),
			X:    left,
			Y:    right,
		}
	}
	return left, nil
}

func (p *Parser) parseUnaryExpr() (ast.Expr, error) {
	if p.at(token.Minus) {
		start := p.advance().Span
		x, err := p.parseUnaryExpr()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Base: baseOf(start, x.Span()), Op: "-", X: x}, nil
	}
	if p.at(token.KwNot) {
		start := p.advance().Span
		x, err := p.parseUnaryExpr()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Base: baseOf(start, x.Span()), Op: "NOT", X: x}, nil
	}
	if p.at(token.Plus) {
		// Unary plus is a no-op; drop the token and keep parsing.
		p.advance()
		return p.parseUnaryExpr()
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parsePostfixExpr() (ast.Expr, error) {
	e, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	for {
		if p.at(token.Dot) {
			p.advance()
			field, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			e = &ast.FieldAccess{Base: baseOf(e.Span(), field.Span), Object: e, Field: field.Text}
			continue
		}
		break
	}
	return e, nil
}

func (p *Parser) parsePrimaryExpr() (ast.Expr, error) {
	t := p.peek()
	switch t.Kind {
	case token.IntLit:
		p.advance()
		return &ast.IntLit{Base: ast.Base{Sp: t.Span}, Value: parseIntLiteral(t.Text)}, nil
	case token.FloatLit:
		p.advance()
		return &ast.FloatLit{Base: ast.Base{Sp: t.Span}, Value: parseFloatLiteral(t.Text)}, nil
	case token.StringLit:
		p.advance()
		return &ast.StringLit{Base: ast.Base{Sp: t.Span}, Value: t.Text}, nil
	case token.InterpStringLit:
		p.advance()
		return p.desugarInterpString(t)
	case token.LParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return inner, nil
	case token.Ident, token.IdentInt, token.IdentLong, token.IdentSingle, token.IdentDouble, token.IdentString:
		p.advance()
		if p.at(token.LParen) {
			p.advance()
			var args []ast.Expr
			for !p.at(token.RParen) {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if !p.match(token.Comma) {
					break
				}
			}
			end := p.peek().Span
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
			return &ast.CallOrIndex{Base: baseOf(t.Span, end), Name: t.Text, Args: args}, nil
		}
		return ast.NewIdent(t.Span, t.Text), nil
	default:
		return nil, p.errorf("unexpected token in expression: %v", t.Kind)
	}
}

// desugarInterpString turns an InterpStringLit's raw `...{expr}...`
// template into the '+'-chain of StringLit/CallOrIndex("STR$", expr) nodes
// described in spec.md §4.2, re-lexing each {expr} placeholder with a
// fresh Parser over the placeholder's own byte range.
func (p *Parser) desugarInterpString(t token.Token) (ast.Expr, error) {
	raw := t.Text
	var parts []ast.Expr
	var lit []byte
	flushLit := func() {
		if len(lit) > 0 {
			parts = append(parts, &ast.StringLit{Base: ast.Base{Sp: t.Span}, Value: string(lit)})
			lit = nil
		}
	}
	i := 0
	for i < len(raw) {
		c := raw[i]
		if c == '{' {
			flushLit()
			depth := 1
			j := i + 1
			for j < len(raw) && depth > 0 {
				if raw[j] == '{' {
					depth++
				} else if raw[j] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				j++
			}
			exprSrc := raw[i+1 : j]
			e, err := parseSubExpr(t.Span.File, exprSrc)
			if err != nil {
				return nil, err
			}
			parts = append(parts, &ast.CallOrIndex{
				Base: ast.Base{Sp: t.Span},
				Name: "STR$",
				Args: []ast.Expr{e},
			})
			i = j + 1
			continue
		}
		lit = append(lit, c)
		i++
	}
	flushLit()

	if len(parts) == 0 {
		return &ast.InterpString{Base: ast.Base{Sp: t.Span}, Parts: &ast.StringLit{Base: ast.Base{Sp: t.Span}, Value: ""}}, nil
	}
	chain := parts[0]
	for _, part := range parts[1:] {
		chain = &ast.BinOp{Base: ast.Base{Sp: t.Span}, Op: "+", X: chain, Y: part}
	}
	return &ast.InterpString{Base: ast.Base{Sp: t.Span}, Parts: chain}, nil
}

// parseSubExpr re-lexes and parses a standalone expression fragment (the
// inside of an interpolated-string placeholder), reusing the same file ID.
// The fragment is lexed from offset 0, so spans inside it are relative to
// the placeholder text, not to the original source.
func parseSubExpr(fileID int, src string) (ast.Expr, error) {
	toks, err := lexer.Tokenize(fileID, []byte(src))
	if err != nil {
		return nil, err
	}
	sub := &Parser{toks: toks, file: fileID}
	return sub.parseExpr()
}

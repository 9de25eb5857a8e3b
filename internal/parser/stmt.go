package parser

import (
	"strconv"
	"strings"

	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/span"
	"github.com/parisxmas/esp32basic/internal/token"
)

// parseStmt dispatches on the leading token kind, per spec.md §4.2's
// statement-dispatch algorithm: optional label, then a switch on the
// leading token with small fixed lookahead for compound constructs.
func (p *Parser) parseStmt() (ast.Stmt, error) {
	if lbl, ok, err := p.tryParseLabel(); err != nil {
		return nil, err
	} else if ok {
		return lbl, nil
	}

	switch p.peek().Kind {
	case token.KwDim:
		return p.parseDim()
	case token.KwConst:
		return p.parseConst()
	case token.KwLet:
		return p.parseLet()
	case token.KwPrint:
		return p.parsePrint()
	case token.KwInput:
		return p.parseInput()
	case token.KwLine:
		if p.peekAt(1).Kind == token.KwInput {
			return p.parseLineInput()
		}
		return nil, p.errorf("unexpected LINE without INPUT")
	case token.KwIf:
		return p.parseIf()
	case token.KwFor:
		return p.parseFor()
	case token.KwDo:
		return p.parseDoLoop()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwSelect:
		return p.parseSelectCase()
	case token.KwGoto:
		return p.parseGoto()
	case token.KwGosub:
		return p.parseGosub()
	case token.KwReturn:
		return p.parseReturn()
	case token.KwEnd:
		// Bare END is the top-level halt statement; END X is a block
		// terminator consumed by the enclosing parse*/expectEnd, so a bare
		// END here always means the halt statement.
		start := p.advance().Span
		return &ast.End{Base: baseOf(start, p.lastSpan())}, nil
	case token.KwExit:
		return p.parseExit()
	case token.KwOn:
		return p.parseOn()
	case token.KwData:
		return p.parseData()
	case token.KwRead:
		return p.parseRead()
	case token.KwRestore:
		return p.parseRestore()
	case token.KwSwap:
		return p.parseSwap()
	case token.KwRandomize:
		return p.parseRandomize()
	case token.KwAssert:
		return p.parseAssert()
	case token.KwTry:
		return p.parseTryCatch()
	case token.KwTask:
		return p.parseTask()
	case token.KwCall:
		return p.parseCallStmt()
	case token.KwDefFn:
		return p.parseDefFn()
	case token.CompoundIdent:
		return p.parseHWStmt()
	case token.Ident, token.IdentInt, token.IdentLong, token.IdentSingle, token.IdentDouble, token.IdentString:
		return p.parseIdentLeadingStmt()
	default:
		return nil, p.errorf("unexpected token at start of statement: %v", p.peek().Kind)
	}
}

// tryParseLabel recognizes `identifier:` or a bare integer literal at the
// start of a line as a label declaration.
func (p *Parser) tryParseLabel() (ast.Stmt, bool, error) {
	t := p.peek()
	if t.Kind == token.Ident && p.peekAt(1).Kind == token.Colon {
		p.advance()
		p.advance()
		return &ast.Label{Base: baseOf(t.Span, p.lastSpan()), Name: t.Text}, true, nil
	}
	if t.Kind == token.IntLit && (p.peekAt(1).Kind == token.Newline || p.peekAt(1).Kind == token.Colon) {
		p.advance()
		p.skipStmtEnd()
		return &ast.Label{Base: baseOf(t.Span, t.Span), Name: t.Text}, true, nil
	}
	return nil, false, nil
}

func (p *Parser) parseDim() (ast.Stmt, error) {
	start := p.advance().Span // DIM
	var items []ast.DimItem
	for {
		nameTok := p.peek()
		if !isIdentLike(nameTok.Kind) {
			return nil, p.errorf("expected variable name after DIM, got %v", nameTok.Kind)
		}
		p.advance()
		var dims []ast.Expr
		if p.match(token.LParen) {
			for !p.at(token.RParen) {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				dims = append(dims, e)
				if !p.match(token.Comma) {
					break
				}
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
		}
		qt := p.typeFromSigil(nameTok.Kind)
		if p.match(token.KwAs) {
			t, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			qt = t
		}
		items = append(items, ast.DimItem{Name: nameTok.Text, Type: qt, Dims: dims})
		if !p.match(token.Comma) {
			break
		}
	}
	return &ast.Dim{Base: baseOf(start, p.lastSpan()), Items: items}, nil
}

func (p *Parser) parseConst() (ast.Stmt, error) {
	start := p.advance().Span // CONST
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Eq); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Const{Base: baseOf(start, p.lastSpan()), Name: name.Text, Value: val}, nil
}

func (p *Parser) parseLet() (ast.Stmt, error) {
	start := p.advance().Span // LET
	return p.parseAssignmentLike(start)
}

// parseAssignmentLike parses the body of a Let/FieldAssign/ArrayAssign
// once any leading LET has been consumed (or is absent, for the bare
// `name = expr` form).
func (p *Parser) parseAssignmentLike(start span.Span) (ast.Stmt, error) {
	nameTok := p.peek()
	if !isIdentLike(nameTok.Kind) {
		return nil, p.errorf("expected variable name, got %v", nameTok.Kind)
	}
	p.advance()

	if p.match(token.Dot) {
		field, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Eq); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.FieldAssign{Base: baseOf(start, p.lastSpan()), Object: nameTok.Text, Field: field.Text, Value: val}, nil
	}

	if p.match(token.LParen) {
		var idx []ast.Expr
		for !p.at(token.RParen) {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			idx = append(idx, e)
			if !p.match(token.Comma) {
				break
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Eq); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ArrayAssign{Base: baseOf(start, p.lastSpan()), Name: nameTok.Text, Indices: idx, Value: val}, nil
	}

	if _, err := p.expect(token.Eq); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Let{Base: baseOf(start, p.lastSpan()), Name: nameTok.Text, Value: val, Sigil: p.typeFromSigil(nameTok.Kind)}, nil
}

// parseIdentLeadingStmt handles the fall-through identifier-leading forms
// from spec.md §4.2 step 3: Let, ArrayAssign, CallSub, or MachineEvent.
func (p *Parser) parseIdentLeadingStmt() (ast.Stmt, error) {
	start := p.peek().Span
	nameTok := p.peek()

	// machineVar.EVENT expr
	if p.peekAt(1).Kind == token.Dot && p.peekAt(2).Kind == token.KwEvent {
		p.advance()
		p.advance()
		p.advance()
		ev, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.MachineEvent{Base: baseOf(start, p.lastSpan()), Machine: nameTok.Text, Event: ev}, nil
	}

	// Lookahead: name '=' / name '.' field '=' -> assignment forms.
	// name '(' ... ')' '=' -> array assignment; name '(' ... ')' alone
	// (or a bare identifier argument list) -> CallSub.
	nxt := p.peekAt(1)
	if nxt.Kind == token.Eq || nxt.Kind == token.Dot {
		return p.parseAssignmentLike(start)
	}
	if nxt.Kind == token.LParen && p.followedByEqAfterParens(1) {
		return p.parseAssignmentLike(start)
	}

	return p.parseCallSubNoKeyword(nameTok, start)
}

// followedByEqAfterParens reports whether the balanced-paren group
// starting at p.pos+from is immediately followed by '='. Used to
// disambiguate `name(idx) = expr` (ArrayAssign) from a bare sub call
// `name(args)` with no assignment.
func (p *Parser) followedByEqAfterParens(from int) bool {
	i := p.pos + from
	if i >= len(p.toks) || p.toks[i].Kind != token.LParen {
		return false
	}
	depth := 0
	for ; i < len(p.toks); i++ {
		switch p.toks[i].Kind {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
			if depth == 0 {
				i++
				return i < len(p.toks) && p.toks[i].Kind == token.Eq
			}
		case token.EOF, token.Newline:
			return false
		}
	}
	return false
}

// parseCallSubNoKeyword parses `name args...` (no CALL keyword, no
// parentheses) as a sub-call statement.
func (p *Parser) parseCallSubNoKeyword(nameTok token.Token, start span.Span) (ast.Stmt, error) {
	p.advance() // name
	var args []ast.Expr
	if p.match(token.LParen) {
		for !p.at(token.RParen) {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, e)
			if !p.match(token.Comma) {
				break
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
	} else if !p.atStmtEnd() {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, e)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	return &ast.CallSub{Base: baseOf(start, p.lastSpan()), Name: nameTok.Text, Args: args}, nil
}

func (p *Parser) atStmtEnd() bool {
	k := p.peek().Kind
	return k == token.Newline || k == token.Colon || k == token.EOF ||
		k == token.KwElse || k == token.KwElseIf || k == token.KwEnd
}

func (p *Parser) parseCallStmt() (ast.Stmt, error) {
	start := p.advance().Span // CALL
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	var args []ast.Expr
	if p.match(token.LParen) {
		for !p.at(token.RParen) {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, e)
			if !p.match(token.Comma) {
				break
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
	}
	return &ast.CallSub{Base: baseOf(start, p.lastSpan()), Name: name.Text, Args: args}, nil
}

// ---- PRINT / INPUT ----

func (p *Parser) parsePrint() (ast.Stmt, error) {
	start := p.advance().Span // PRINT
	if p.match(token.KwUsing) {
		format, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, err
		}
		var items []ast.Expr
		for !p.atStmtEnd() {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			items = append(items, e)
			if !p.match(token.Semicolon) && !p.match(token.Comma) {
				break
			}
		}
		return &ast.PrintUsing{Base: baseOf(start, p.lastSpan()), Format: format, Items: items}, nil
	}

	var items []ast.PrintItem
	trailingSemi := false
	for !p.atStmtEnd() {
		if p.match(token.Comma) {
			items = append(items, ast.PrintItem{Comma: true})
			continue
		}
		if p.match(token.Semicolon) {
			trailingSemi = true
			continue
		}
		trailingSemi = false
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, ast.PrintItem{Expr: e})
	}
	return &ast.Print{Base: baseOf(start, p.lastSpan()), Items: items, TrailingSemi: trailingSemi}, nil
}

func (p *Parser) parseInput() (ast.Stmt, error) {
	start := p.advance().Span // INPUT
	var prompt ast.Expr
	if p.at(token.StringLit) {
		s := p.advance()
		prompt = &ast.StringLit{Base: ast.Base{Sp: s.Span}, Value: s.Text}
		if !p.match(token.Semicolon) {
			p.match(token.Comma)
		}
	}
	var vars []string
	for {
		v, err := p.expect(token.Ident)
		if err != nil {
			// allow sigil-typed vars too
			t := p.peek()
			if !isIdentLike(t.Kind) {
				return nil, err
			}
			p.advance()
			vars = append(vars, t.Text)
		} else {
			vars = append(vars, v.Text)
		}
		if !p.match(token.Comma) {
			break
		}
	}
	return &ast.Input{Base: baseOf(start, p.lastSpan()), Prompt: prompt, Vars: vars}, nil
}

func (p *Parser) parseLineInput() (ast.Stmt, error) {
	start := p.advance().Span // LINE
	p.advance()                // INPUT
	var prompt ast.Expr
	if p.at(token.StringLit) {
		s := p.advance()
		prompt = &ast.StringLit{Base: ast.Base{Sp: s.Span}, Value: s.Text}
		p.match(token.Semicolon)
	}
	v := p.peek()
	if !isIdentLike(v.Kind) {
		return nil, p.errorf("expected variable after LINE INPUT, got %v", v.Kind)
	}
	p.advance()
	return &ast.LineInput{Base: baseOf(start, p.lastSpan()), Prompt: prompt, Var: v.Text}, nil
}

// ---- IF ----

func (p *Parser) parseIf() (ast.Stmt, error) {
	start := p.advance().Span // IF
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KwThen); err != nil {
		return nil, err
	}

	// Single-line form: any non-newline token after THEN before the next
	// newline.
	if !p.at(token.Newline) && !p.atEOF() {
		thenStmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		then := []ast.Stmt{thenStmt}
		var elseBody []ast.Stmt
		if p.match(token.KwElse) {
			elseStmt, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			elseBody = []ast.Stmt{elseStmt}
		}
		return &ast.If{Base: baseOf(start, p.lastSpan()), Cond: cond, Then: then, Else: elseBody, SingleLine: true}, nil
	}

	// Multi-line form.
	then, err := p.parseBlockUntil(func() bool {
		return p.at(token.KwElse) || p.at(token.KwElseIf) || p.atKwEnd(token.KwIf)
	})
	if err != nil {
		return nil, err
	}
	var elseIfs []ast.ElseIfClause
	for p.at(token.KwElseIf) {
		p.advance()
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.KwThen); err != nil {
			return nil, err
		}
		body, err := p.parseBlockUntil(func() bool {
			return p.at(token.KwElse) || p.at(token.KwElseIf) || p.atKwEnd(token.KwIf)
		})
		if err != nil {
			return nil, err
		}
		elseIfs = append(elseIfs, ast.ElseIfClause{Cond: c, Body: body})
	}
	var elseBody []ast.Stmt
	if p.match(token.KwElse) {
		elseBody, err = p.parseBlockUntil(func() bool { return p.atKwEnd(token.KwIf) })
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectEnd(token.KwIf); err != nil {
		return nil, err
	}
	return &ast.If{Base: baseOf(start, p.lastSpan()), Cond: cond, Then: then, ElseIfs: elseIfs, Else: elseBody}, nil
}

// ---- FOR / FOR EACH ----

func (p *Parser) parseFor() (ast.Stmt, error) {
	start := p.advance().Span // FOR
	if p.match(token.KwForEach) {
		v, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.KwIn); err != nil {
			return nil, err
		}
		coll, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlockUntil(func() bool { return p.at(token.KwNext) })
		if err != nil {
			return nil, err
		}
		p.advance() // NEXT
		if isIdentLike(p.peek().Kind) {
			p.advance() // optional loop variable after NEXT
		}
		return &ast.ForEach{Base: baseOf(start, p.lastSpan()), Var: v.Text, Collection: coll, Body: body}, nil
	}

	vTok := p.peek()
	if !isIdentLike(vTok.Kind) {
		return nil, p.errorf("expected loop variable after FOR, got %v", vTok.Kind)
	}
	p.advance()
	if _, err := p.expect(token.Eq); err != nil {
		return nil, err
	}
	from, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KwTo); err != nil {
		return nil, err
	}
	to, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var step ast.Expr
	if p.match(token.KwStep) {
		step, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlockUntil(func() bool { return p.at(token.KwNext) })
	if err != nil {
		return nil, err
	}
	p.advance() // NEXT
	if isIdentLike(p.peek().Kind) {
		p.advance()
	}
	return &ast.For{Base: baseOf(start, p.lastSpan()), Var: vTok.Text, From: from, To: to, Step: step, Body: body}, nil
}

// ---- DO/LOOP, WHILE/WEND ----

func (p *Parser) parseDoLoop() (ast.Stmt, error) {
	start := p.advance().Span // DO
	preCond := ast.CondNone
	var preExpr ast.Expr
	var err error
	if p.match(token.KwWhile) {
		preCond = ast.CondWhile
		preExpr, err = p.parseExpr()
	} else if p.match(token.KwUntil) {
		preCond = ast.CondUntil
		preExpr, err = p.parseExpr()
	}
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlockUntil(func() bool { return p.at(token.KwLoop) })
	if err != nil {
		return nil, err
	}
	p.advance() // LOOP
	postCond := ast.CondNone
	var postExpr ast.Expr
	if p.match(token.KwWhile) {
		postCond = ast.CondWhile
		postExpr, err = p.parseExpr()
	} else if p.match(token.KwUntil) {
		postCond = ast.CondUntil
		postExpr, err = p.parseExpr()
	}
	if err != nil {
		return nil, err
	}
	return &ast.DoLoop{
		Base: baseOf(start, p.lastSpan()),
		PreCond: preCond, PreExpr: preExpr, Body: body,
		PostCond: postCond, PostExpr: postExpr,
	}, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	start := p.advance().Span // WHILE
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlockUntil(func() bool { return p.at(token.KwWend) })
	if err != nil {
		return nil, err
	}
	p.advance() // WEND
	return &ast.While{Base: baseOf(start, p.lastSpan()), Cond: cond, Body: body}, nil
}

// ---- SELECT CASE ----

func (p *Parser) parseSelectCase() (ast.Stmt, error) {
	start := p.advance().Span // SELECT
	if _, err := p.expect(token.KwCase); err != nil {
		return nil, err
	}
	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	var clauses []ast.CaseClause
	for p.at(token.KwCase) {
		p.advance()
		isElse := false
		var tests []ast.CaseTest
		if p.at(token.KwElse) {
			p.advance()
			isElse = true
		} else {
			for {
				test, err := p.parseCaseTest()
				if err != nil {
					return nil, err
				}
				tests = append(tests, test)
				if !p.match(token.Comma) {
					break
				}
			}
		}
		body, err := p.parseBlockUntil(func() bool { return p.at(token.KwCase) || p.atKwEnd(token.KwSelect) })
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, ast.CaseClause{Tests: tests, Else: isElse, Body: body})
	}
	if err := p.expectEnd(token.KwSelect); err != nil {
		return nil, err
	}
	return &ast.SelectCase{Base: baseOf(start, p.lastSpan()), Subject: subject, Clauses: clauses}, nil
}

func (p *Parser) parseCaseTest() (ast.CaseTest, error) {
	if p.match(token.KwIs) {
		op := p.peek()
		if !isComparisonOp(op.Kind) {
			return ast.CaseTest{}, p.errorf("expected comparison operator after IS, got %v", op.Kind)
		}
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return ast.CaseTest{}, err
		}
		return ast.CaseTest{IsOp: opText(op.Kind), IsValue: v}, nil
	}
	lo, err := p.parseExpr()
	if err != nil {
		return ast.CaseTest{}, err
	}
	if p.match(token.KwTo) {
		hi, err := p.parseExpr()
		if err != nil {
			return ast.CaseTest{}, err
		}
		return ast.CaseTest{Lo: lo, Hi: hi}, nil
	}
	return ast.CaseTest{Value: lo}, nil
}

func isComparisonOp(k token.Kind) bool {
	switch k {
	case token.Eq, token.Neq, token.Lt, token.Gt, token.Leq, token.Geq:
		return true
	}
	return false
}

// ---- GOTO / GOSUB / RETURN / EXIT ----

func (p *Parser) parseGoto() (ast.Stmt, error) {
	start := p.advance().Span
	target, err := p.expectLabelName()
	if err != nil {
		return nil, err
	}
	return &ast.Goto{Base: baseOf(start, p.lastSpan()), Target: target}, nil
}

func (p *Parser) parseGosub() (ast.Stmt, error) {
	start := p.advance().Span
	target, err := p.expectLabelName()
	if err != nil {
		return nil, err
	}
	return &ast.Gosub{Base: baseOf(start, p.lastSpan()), Target: target}, nil
}

func (p *Parser) expectLabelName() (string, error) {
	t := p.peek()
	if t.Kind == token.Ident {
		p.advance()
		return t.Text, nil
	}
	if t.Kind == token.IntLit {
		p.advance()
		return t.Text, nil
	}
	return "", p.errorf("expected label name, got %v", t.Kind)
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	start := p.advance().Span
	var val ast.Expr
	if !p.atStmtEnd() {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		val = v
	}
	return &ast.Return{Base: baseOf(start, p.lastSpan()), Value: val}, nil
}

func (p *Parser) parseExit() (ast.Stmt, error) {
	start := p.advance().Span // EXIT
	var kind ast.ExitKind
	switch p.peek().Kind {
	case token.KwFor:
		kind = ast.ExitFor
	case token.KwDo:
		kind = ast.ExitDo
	case token.KwSub:
		kind = ast.ExitSub
	case token.KwFunction:
		kind = ast.ExitFunction
	default:
		return nil, p.errorf("expected FOR, DO, SUB, or FUNCTION after EXIT, got %v", p.peek().Kind)
	}
	p.advance()
	return &ast.Exit{Base: baseOf(start, p.lastSpan()), Kind: kind}, nil
}

// ---- ON ... ----

func (p *Parser) parseOn() (ast.Stmt, error) {
	start := p.advance().Span // ON
	if p.match(token.KwError) {
		if _, err := p.expect(token.KwGoto); err != nil {
			return nil, err
		}
		target, err := p.expectLabelName()
		if err != nil {
			return nil, err
		}
		return &ast.OnErrorGoto{Base: baseOf(start, p.lastSpan()), Target: target}, nil
	}
	if p.at(token.CompoundIdent) && p.peek().Text == "GPIO.CHANGE" {
		p.advance()
		args, err := p.parseExprListUntilGosub()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.KwGosub); err != nil {
			return nil, err
		}
		target, err := p.expectLabelName()
		if err != nil {
			return nil, err
		}
		return &ast.OnEvent{Base: baseOf(start, p.lastSpan()), Kind: ast.OnGPIOChange, Args: args, Target: target}, nil
	}
	if p.match(token.KwTimer) {
		args, err := p.parseExprListUntilGosub()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.KwGosub); err != nil {
			return nil, err
		}
		target, err := p.expectLabelName()
		if err != nil {
			return nil, err
		}
		return &ast.OnEvent{Base: baseOf(start, p.lastSpan()), Kind: ast.OnTimer, Args: args, Target: target}, nil
	}
	if p.at(token.CompoundIdent) && p.peek().Text == "MQTT.MESSAGE" {
		p.advance()
		args, err := p.parseExprListUntilGosub()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.KwGosub); err != nil {
			return nil, err
		}
		target, err := p.expectLabelName()
		if err != nil {
			return nil, err
		}
		return &ast.OnEvent{Base: baseOf(start, p.lastSpan()), Kind: ast.OnMQTTMessage, Args: args, Target: target}, nil
	}

	// ON expr GOTO/GOSUB l1, l2, ...
	sel, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	isGosub := false
	if p.match(token.KwGosub) {
		isGosub = true
	} else if _, err := p.expect(token.KwGoto); err != nil {
		return nil, err
	}
	var targets []string
	for {
		t, err := p.expectLabelName()
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
		if !p.match(token.Comma) {
			break
		}
	}
	if isGosub {
		return &ast.OnGosub{Base: baseOf(start, p.lastSpan()), Selector: sel, Targets: targets}, nil
	}
	return &ast.OnGoto{Base: baseOf(start, p.lastSpan()), Selector: sel, Targets: targets}, nil
}

// parseExprListUntilGosub parses zero or more comma-separated expressions
// before a mandatory GOSUB keyword (e.g. ON GPIO.CHANGE pin GOSUB label).
func (p *Parser) parseExprListUntilGosub() ([]ast.Expr, error) {
	var args []ast.Expr
	for !p.at(token.KwGosub) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if !p.match(token.Comma) {
			break
		}
	}
	return args, nil
}

// ---- DATA / READ / RESTORE ----

func (p *Parser) parseData() (ast.Stmt, error) {
	start := p.advance().Span // DATA
	var items []ast.DataItem
	for {
		t := p.peek()
		switch t.Kind {
		case token.IntLit:
			p.advance()
			items = append(items, ast.DataItem{Kind: ast.DataInt, IntVal: parseIntLiteral(t.Text)})
		case token.FloatLit:
			p.advance()
			items = append(items, ast.DataItem{Kind: ast.DataFloat, FloatVal: parseFloatLiteral(t.Text)})
		case token.StringLit:
			p.advance()
			items = append(items, ast.DataItem{Kind: ast.DataString, StringVal: t.Text})
		case token.Minus:
			p.advance()
			n := p.peek()
			p.advance()
			if n.Kind == token.FloatLit {
				items = append(items, ast.DataItem{Kind: ast.DataFloat, FloatVal: -parseFloatLiteral(n.Text)})
			} else {
				items = append(items, ast.DataItem{Kind: ast.DataInt, IntVal: -parseIntLiteral(n.Text)})
			}
		default:
			return nil, p.errorf("expected literal in DATA statement, got %v", t.Kind)
		}
		if !p.match(token.Comma) {
			break
		}
	}
	return &ast.Data{Base: baseOf(start, p.lastSpan()), Items: items}, nil
}

func (p *Parser) parseRead() (ast.Stmt, error) {
	start := p.advance().Span // READ
	var vars []string
	for {
		t := p.peek()
		if !isIdentLike(t.Kind) {
			return nil, p.errorf("expected variable in READ statement, got %v", t.Kind)
		}
		p.advance()
		vars = append(vars, t.Text)
		if !p.match(token.Comma) {
			break
		}
	}
	return &ast.Read{Base: baseOf(start, p.lastSpan()), Vars: vars}, nil
}

func (p *Parser) parseRestore() (ast.Stmt, error) {
	start := p.advance().Span // RESTORE
	label := ""
	if isIdentLike(p.peek().Kind) {
		label = p.advance().Text
	}
	return &ast.Restore{Base: baseOf(start, p.lastSpan()), Label: label}, nil
}

// ---- SWAP / RANDOMIZE / ASSERT / TRY / TASK ----

func (p *Parser) parseDefFn() (ast.Stmt, error) {
	start := p.advance().Span // DEFFN
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Eq); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.DefFn{Base: baseOf(start, p.lastSpan()), Name: name.Text, Params: params, Body: body}, nil
}

func (p *Parser) parseSwap() (ast.Stmt, error) {
	start := p.advance().Span // SWAP
	a, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Comma); err != nil {
		return nil, err
	}
	b, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	return &ast.Swap{Base: baseOf(start, p.lastSpan()), A: a.Text, B: b.Text}, nil
}

func (p *Parser) parseRandomize() (ast.Stmt, error) {
	start := p.advance().Span // RANDOMIZE
	var seed ast.Expr
	if !p.atStmtEnd() {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		seed = e
	}
	return &ast.Randomize{Base: baseOf(start, p.lastSpan()), Seed: seed}, nil
}

func (p *Parser) parseAssert() (ast.Stmt, error) {
	start := p.advance().Span // ASSERT
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var msg ast.Expr
	if p.match(token.Comma) {
		msg, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &ast.Assert{Base: baseOf(start, p.lastSpan()), Cond: cond, Message: msg}, nil
}

func (p *Parser) parseTryCatch() (ast.Stmt, error) {
	start := p.advance().Span // TRY
	tryBody, err := p.parseBlockUntil(func() bool { return p.at(token.KwCatch) || p.atKwEnd(token.KwTry) })
	if err != nil {
		return nil, err
	}
	errVar := ""
	var catchBody []ast.Stmt
	if p.match(token.KwCatch) {
		if isIdentLike(p.peek().Kind) {
			errVar = p.advance().Text
		}
		catchBody, err = p.parseBlockUntil(func() bool { return p.atKwEnd(token.KwTry) })
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectEnd(token.KwTry); err != nil {
		return nil, err
	}
	return &ast.TryCatch{Base: baseOf(start, p.lastSpan()), TryBody: tryBody, ErrVar: errVar, CatchBody: catchBody}, nil
}

func (p *Parser) parseTask() (ast.Stmt, error) {
	start := p.advance().Span // TASK
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	var stack, priority ast.Expr
	if p.match(token.Comma) {
		stack, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.match(token.Comma) {
			priority, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
	}
	body, err := p.parseBlockUntil(func() bool { return p.atKwEnd(token.KwTask) })
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(token.KwTask); err != nil {
		return nil, err
	}
	return &ast.Task{Base: baseOf(start, p.lastSpan()), Name: name.Text, Stack: stack, Priority: priority, Body: body}, nil
}

// ---- Hardware primitives ----

var hwFamilyByName = map[string]ast.HWFamily{
	"GPIO.MODE": ast.HWGPIOMode, "GPIO.WRITE": ast.HWGPIOWrite, "GPIO.READ": ast.HWGPIORead,
	"I2C.SETUP": ast.HWI2CSetup, "I2C.WRITE": ast.HWI2CWrite, "I2C.READ": ast.HWI2CRead,
	"SPI.SETUP": ast.HWSPISetup, "SPI.TRANSFER": ast.HWSPITransfer,
	"UART.SETUP": ast.HWUARTSetup, "UART.WRITE": ast.HWUARTWrite, "UART.READ": ast.HWUARTRead,
	"PWM.SETUP": ast.HWPWMSetup, "PWM.WRITE": ast.HWPWMWrite,
	"ADC.SETUP": ast.HWADCSetup, "ADC.READ": ast.HWADCRead,
	"WIFI.CONNECT": ast.HWWiFiConnect, "WIFI.STATUS": ast.HWWiFiStatus, "WIFI.DISCONNECT": ast.HWWiFiDisconnect,
	"MQTT.SETUP": ast.HWMQTTSetup, "MQTT.PUBLISH": ast.HWMQTTPublish, "MQTT.SUBSCRIBE": ast.HWMQTTSubscribe,
	"BLE.ADVERTISE": ast.HWBLEAdvertise, "BLE.SCAN": ast.HWBLEScan,
	"HTTP.GET": ast.HWHTTPGet, "HTTP.POST": ast.HWHTTPPost,
	"UDP.SEND": ast.HWUDPSend, "UDP.RECEIVE": ast.HWUDPReceive,
	"OLED.SETUP": ast.HWOLEDSetup, "OLED.LINE": ast.HWOLEDLine, "OLED.CLEAR": ast.HWOLEDClear,
	"LCD.SETUP": ast.HWLCDSetup, "LCD.WRITE": ast.HWLCDWrite,
	"LED.SETUP": ast.HWLEDSetup, "LED.SET": ast.HWLEDSet, "LED.SHOW": ast.HWLEDShow,
	"TIMER.SETUP": ast.HWTimerSetup,
	"NVS.READ": ast.HWNVSRead, "NVS.WRITE": ast.HWNVSWrite,
	"DEEPSLEEP.START": ast.HWDeepSleep,
	"ESPNOW.SETUP": ast.HWESPNowSetup, "ESPNOW.SEND": ast.HWESPNowSend,
	"WATCHDOG.SETUP": ast.HWWatchdogSetup, "WATCHDOG.FEED": ast.HWWatchdogFeed,
	"NTP.SYNC": ast.HWNTPSync,
	"HTTPS.GET": ast.HWHTTPSGet,
	"I2S.SETUP": ast.HWI2SSetup, "I2S.WRITE": ast.HWI2SWrite,
	"WEBSOCKET.SETUP": ast.HWWebSocketSetup, "WEBSOCKET.SEND": ast.HWWebSocketSend,
	"TCP.CONNECT": ast.HWTCPConnect, "TCP.SEND": ast.HWTCPSend, "TCP.RECEIVE": ast.HWTCPReceive,
	"FS.OPEN": ast.HWFSOpen, "FS.WRITE": ast.HWFSWrite, "FS.READ": ast.HWFSRead, "FS.CLOSE": ast.HWFSClose,
}

// hwFamiliesWithDest names the hardware statement families that produce a
// value and so support an optional trailing destination variable.
var hwFamiliesWithDest = map[ast.HWFamily]bool{
	ast.HWGPIORead: true, ast.HWI2CRead: true, ast.HWSPITransfer: true, ast.HWUARTRead: true,
	ast.HWADCRead: true, ast.HWWiFiStatus: true, ast.HWUDPReceive: true, ast.HWNVSRead: true,
	ast.HWTCPReceive: true, ast.HWFSRead: true, ast.HWHTTPGet: true, ast.HWHTTPPost: true,
	ast.HWBLEScan: true, ast.HWHTTPSGet: true,
}

func (p *Parser) parseHWStmt() (ast.Stmt, error) {
	t := p.advance()
	family, ok := hwFamilyByName[t.Text]
	if !ok {
		return nil, p.errorf("unrecognized hardware statement %q", t.Text)
	}
	var args []ast.Expr
	if !p.atStmtEnd() && !p.at(token.FatArrow) {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, e)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	dest := ""
	if hwFamiliesWithDest[family] && p.match(token.FatArrow) {
		d := p.peek()
		if !isIdentLike(d.Kind) {
			return nil, p.errorf("expected destination variable after '=>', got %v", d.Kind)
		}
		p.advance()
		dest = d.Text
	}
	return &ast.HWStmt{Base: baseOf(t.Span, p.lastSpan()), Family: family, Args: args, Dest: dest}, nil
}

func opText(k token.Kind) string {
	switch k {
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
	}
	return ""
}

// parseIntLiteral converts an IntLit token's text to its numeric value.
// &H/&O radix prefixes (spec.md §4.1) aren't something strconv.ParseInt
// recognizes on its own, so they're stripped and the base passed
// explicitly; everything else is a plain strconv.ParseInt(s, 10, 64).
func parseIntLiteral(s string) int64 {
	base := 10
	switch {
	case strings.HasPrefix(s, "&H") || strings.HasPrefix(s, "&h"):
		base = 16
		s = s[2:]
	case strings.HasPrefix(s, "&O") || strings.HasPrefix(s, "&o"):
		base = 8
		s = s[2:]
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFloatLiteral converts a FloatLit token's text (always plain
// decimal/exponent form; see lexer.scanNumber) via strconv.ParseFloat.
func parseFloatLiteral(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

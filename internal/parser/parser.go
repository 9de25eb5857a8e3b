// Package parser turns a token.Token stream into an ast.Program. It is a
// single forward pass with no backtracking. Lookahead is at most 2 tokens,
// except that telling `name(idx) = expr` from a `name(args)` sub call
// scans ahead to the matching ')' (followedByEqAfterParens). The shape
// mirrors the teacher compiler's Parser
// (std/compiler/parser.go's peek/advance/at/match/expect/errorf toolkit)
// generalized from Go's grammar to BASIC's.
package parser

import (
	"fmt"

	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/lexer"
	"github.com/parisxmas/esp32basic/internal/span"
	"github.com/parisxmas/esp32basic/internal/token"
)

// Error reports a parse failure at a specific span, matching the "halt at
// first occurrence" propagation policy for parse errors.
type Error struct {
	Span    span.Span
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Span, e.Message) }

// Parser owns the token vector for the duration of parsing and is
// discarded once Parse returns.
type Parser struct {
	toks []token.Token
	pos  int
	file int
}

// Parse tokenizes and parses source bytes into a Program.
func Parse(fileID int, src []byte) (*ast.Program, error) {
	toks, err := lexer.Tokenize(fileID, src)
	if err != nil {
		return nil, err
	}
	return ParseTokens(fileID, toks)
}

// ParseTokens parses an already-scanned token stream.
func ParseTokens(fileID int, toks []token.Token) (*ast.Program, error) {
	p := &Parser{toks: toks, file: fileID}
	return p.parseProgram()
}

// ---- token stream primitives ----

func (p *Parser) peek() token.Token  { return p.toks[p.pos] }
func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}
func (p *Parser) at(k token.Kind) bool { return p.peek().Kind == k }
func (p *Parser) atEOF() bool          { return p.at(token.EOF) }

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) match(kinds ...token.Kind) bool {
	for _, k := range kinds {
		if p.at(k) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, p.errorf("expected %v, got %v", k, p.peek().Kind)
	}
	return p.advance(), nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &Error{Span: p.peek().Span, Message: fmt.Sprintf(format, args...)}
}

// skipNewlines consumes any run of blank-line separators (Newline/Colon).
func (p *Parser) skipNewlines() {
	for p.at(token.Newline) || p.at(token.Colon) {
		p.advance()
	}
}

// skipStmtEnd consumes exactly one statement terminator if present.
func (p *Parser) skipStmtEnd() {
	if p.at(token.Newline) || p.at(token.Colon) {
		p.advance()
	}
}

// ---- top level ----

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	p.skipNewlines()
	for !p.atEOF() {
		switch {
		case p.at(token.KwSub):
			sub, err := p.parseSubDecl()
			if err != nil {
				return nil, err
			}
			prog.Subs = append(prog.Subs, sub)
		case p.at(token.KwFunction):
			fn, err := p.parseFuncDecl()
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, fn)
		case p.at(token.KwType):
			td, err := p.parseTypeDecl()
			if err != nil {
				return nil, err
			}
			prog.Types = append(prog.Types, td)
		case p.at(token.KwEnum):
			ed, err := p.parseEnumDecl()
			if err != nil {
				return nil, err
			}
			prog.Enums = append(prog.Enums, ed)
		case p.at(token.KwModule):
			md, err := p.parseModuleDecl()
			if err != nil {
				return nil, err
			}
			prog.Modules = append(prog.Modules, md)
		case p.at(token.KwMachine):
			mc, err := p.parseMachineDecl()
			if err != nil {
				return nil, err
			}
			prog.Machines = append(prog.Machines, mc)
		default:
			stmt, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			if stmt != nil {
				prog.TopLevel = append(prog.TopLevel, stmt)
			}
		}
		p.skipNewlines()
	}
	return prog, nil
}

// parseBlockUntil parses statements (handling labels) until one of the
// given stop predicates matches at the start of a line. It does not
// consume the terminator.
func (p *Parser) parseBlockUntil(stop func() bool) ([]ast.Stmt, error) {
	var body []ast.Stmt
	p.skipNewlines()
	for !p.atEOF() && !stop() {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			body = append(body, stmt)
		}
		p.skipNewlines()
	}
	return body, nil
}

func (p *Parser) atKwEnd(x token.Kind) bool {
	return p.at(token.KwEnd) && p.peekAt(1).Kind == x
}

// atBareWord reports whether the current token is a plain identifier
// spelled w (already upper-cased by the lexer). STATE is not a reserved
// keyword (spec.md's state-machine grammar treats it as a bare identifier
// so it stays available as a variable/SUB/FUNCTION name elsewhere); the
// MACHINE-block parser recognizes its header this way instead.
func (p *Parser) atBareWord(w string) bool {
	t := p.peek()
	return t.Kind == token.Ident && t.Text == w
}

// atKwEndBareWord is atKwEnd's counterpart for a bare-word block header:
// reports whether the current token is END followed by the bare word w.
func (p *Parser) atKwEndBareWord(w string) bool {
	return p.at(token.KwEnd) && p.peekAt(1).Kind == token.Ident && p.peekAt(1).Text == w
}

func (p *Parser) expectEnd(x token.Kind) error {
	if _, err := p.expect(token.KwEnd); err != nil {
		return err
	}
	if _, err := p.expect(x); err != nil {
		return err
	}
	return nil
}

func (p *Parser) parseParamList() ([]ast.Param, error) {
	var params []ast.Param
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	for !p.at(token.RParen) {
		nameTok := p.peek()
		if !isIdentLike(nameTok.Kind) {
			return nil, p.errorf("expected parameter name, got %v", nameTok.Kind)
		}
		p.advance()
		qt := p.typeFromSigil(nameTok.Kind)
		if p.match(token.KwAs) {
			t, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			qt = t
		}
		params = append(params, ast.Param{Name: nameTok.Text, Type: qt, Sp: nameTok.Span})
		if !p.match(token.Comma) {
			break
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return params, nil
}

func isIdentLike(k token.Kind) bool {
	switch k {
	case token.Ident, token.IdentInt, token.IdentLong, token.IdentSingle, token.IdentDouble, token.IdentString:
		return true
	}
	return false
}

func (p *Parser) typeFromSigil(k token.Kind) ast.QBType {
	switch k {
	case token.IdentInt:
		return ast.QBType{Kind: ast.TInteger}
	case token.IdentLong:
		return ast.QBType{Kind: ast.TLong}
	case token.IdentSingle:
		return ast.QBType{Kind: ast.TSingle}
	case token.IdentDouble:
		return ast.QBType{Kind: ast.TDouble}
	case token.IdentString:
		return ast.QBType{Kind: ast.TString}
	default:
		return ast.QBType{Kind: ast.TInferred}
	}
}

func (p *Parser) parseTypeName() (ast.QBType, error) {
	t := p.peek()
	if t.Kind != token.Ident {
		return ast.QBType{}, p.errorf("expected type name, got %v", t.Kind)
	}
	p.advance()
	switch t.Text {
	case "INTEGER":
		return ast.QBType{Kind: ast.TInteger}, nil
	case "LONG":
		return ast.QBType{Kind: ast.TLong}, nil
	case "SINGLE":
		return ast.QBType{Kind: ast.TSingle}, nil
	case "DOUBLE":
		return ast.QBType{Kind: ast.TDouble}, nil
	case "STRING":
		return ast.QBType{Kind: ast.TString}, nil
	default:
		return ast.QBType{Kind: ast.TUserType, UserName: t.Text}, nil
	}
}

func (p *Parser) parseSubDecl() (*ast.SubDecl, error) {
	start := p.peek().Span
	p.advance() // SUB
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlockUntil(func() bool { return p.atKwEnd(token.KwSub) })
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(token.KwSub); err != nil {
		return nil, err
	}
	return &ast.SubDecl{Base: baseOf(start, p.lastSpan()), Name: name.Text, Params: params, Body: body}, nil
}

func (p *Parser) parseFuncDecl() (*ast.FuncDecl, error) {
	start := p.peek().Span
	p.advance() // FUNCTION
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	ret := ast.QBType{Kind: ast.TInferred}
	if p.match(token.KwAs) {
		ret, err = p.parseTypeName()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlockUntil(func() bool { return p.atKwEnd(token.KwFunction) })
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(token.KwFunction); err != nil {
		return nil, err
	}
	return &ast.FuncDecl{Base: baseOf(start, p.lastSpan()), Name: name.Text, Params: params, Ret: ret, Body: body}, nil
}

func (p *Parser) parseTypeDecl() (*ast.TypeDecl, error) {
	start := p.peek().Span
	p.advance() // TYPE
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	var fields []ast.Param
	for !p.atKwEnd(token.KwType) {
		fname := p.peek()
		if !isIdentLike(fname.Kind) {
			return nil, p.errorf("expected field name, got %v", fname.Kind)
		}
		p.advance()
		ft := p.typeFromSigil(fname.Kind)
		if p.match(token.KwAs) {
			ft, err = p.parseTypeName()
			if err != nil {
				return nil, err
			}
		}
		fields = append(fields, ast.Param{Name: fname.Text, Type: ft, Sp: fname.Span})
		p.skipNewlines()
	}
	if err := p.expectEnd(token.KwType); err != nil {
		return nil, err
	}
	return &ast.TypeDecl{Base: baseOf(start, p.lastSpan()), Name: name.Text, Fields: fields}, nil
}

func (p *Parser) parseEnumDecl() (*ast.EnumDecl, error) {
	start := p.peek().Span
	p.advance() // ENUM
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	var members []string
	for !p.atKwEnd(token.KwEnum) {
		m, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		members = append(members, m.Text)
		p.skipNewlines()
	}
	if err := p.expectEnd(token.KwEnum); err != nil {
		return nil, err
	}
	return &ast.EnumDecl{Base: baseOf(start, p.lastSpan()), Name: name.Text, Members: members}, nil
}

func (p *Parser) parseModuleDecl() (*ast.ModuleDecl, error) {
	start := p.peek().Span
	p.advance() // MODULE
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlockUntil(func() bool { return p.atKwEnd(token.KwModule) })
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(token.KwModule); err != nil {
		return nil, err
	}
	return &ast.ModuleDecl{Base: baseOf(start, p.lastSpan()), Name: name.Text, Body: body}, nil
}

// parseMachineDecl parses the state-machine grammar from spec.md §4.2:
//
//	MACHINE Name
//	  STATE S1
//	    ON event GOTO S2
//	  [END STATE]
//	END MACHINE
//
// STATE is a bare identifier, not a keyword (spec.md explicitly says so):
// it stays usable as a variable/SUB/FUNCTION name everywhere else, so the
// block header is recognized by text match on an Ident token rather than
// through token.Keywords.
func (p *Parser) parseMachineDecl() (*ast.MachineDecl, error) {
	start := p.peek().Span
	p.advance() // MACHINE
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	var states []ast.MachineState
	for p.atBareWord("STATE") {
		stateStart := p.peek().Span
		p.advance() // STATE
		stName, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		p.skipNewlines()
		var transitions []ast.MachineTransition
		for p.at(token.KwOn) {
			tStart := p.peek().Span
			p.advance() // ON
			eventTok := p.peek()
			if !isIdentLike(eventTok.Kind) {
				return nil, p.errorf("expected event name, got %v", eventTok.Kind)
			}
			p.advance()
			if _, err := p.expect(token.KwGoto); err != nil {
				return nil, err
			}
			target, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			transitions = append(transitions, ast.MachineTransition{
				Event: eventTok.Text, Target: target.Text, Sp: span.Merge(tStart, p.lastSpan()),
			})
			p.skipNewlines()
		}
		if p.atKwEndBareWord("STATE") {
			p.advance()
			p.advance()
			p.skipNewlines()
		}
		states = append(states, ast.MachineState{Name: stName.Text, Transitions: transitions, Sp: span.Merge(stateStart, p.lastSpan())})
	}
	if err := p.expectEnd(token.KwMachine); err != nil {
		return nil, err
	}
	return &ast.MachineDecl{Base: baseOf(start, p.lastSpan()), Name: name.Text, States: states}, nil
}

func (p *Parser) lastSpan() span.Span {
	if p.pos == 0 {
		return p.toks[0].Span
	}
	return p.toks[p.pos-1].Span
}

// baseOf builds the ast.Base every node embeds, spanning from a
// statement/expression's first token to the last one consumed for it.
func baseOf(start, end span.Span) ast.Base {
	return ast.Base{Sp: span.Merge(start, end)}
}

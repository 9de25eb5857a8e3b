package ast

import "github.com/parisxmas/esp32basic/internal/span"

// IntLit is an integer literal expression.
type IntLit struct {
	Base
	Value int64
}

func (*IntLit) exprNode() {}

// FloatLit is a floating-point literal expression.
type FloatLit struct {
	Base
	Value float64
}

func (*FloatLit) exprNode() {}

// StringLit is a string literal expression.
type StringLit struct {
	Base
	Value string
}

func (*StringLit) exprNode() {}

// InterpString is the desugared chain an interpolated-string template
// parses to: an alternation of StringLit and STR$(expr) calls joined by
// '+', carrying the span of the original template (spec.md §4.2).
type InterpString struct {
	Base
	Parts Expr // the folded '+' chain
}

func (*InterpString) exprNode() {}

// Ident is a variable reference. Its Type is TInferred until sema
// resolves it from the symbol table.
type Ident struct {
	Base
	Name string
	Type QBType
}

func (*Ident) exprNode() {}

// FieldAccess reads obj.field.
type FieldAccess struct {
	Base
	Object Expr
	Field  string
}

func (*FieldAccess) exprNode() {}

// BinOp is a binary operator expression, tagged by the operator's token
// text ("+", "AND", "MOD", ...).
type BinOp struct {
	Base
	Op       string
	X, Y     Expr
}

func (*BinOp) exprNode() {}

// UnaryOp is a prefix unary operator expression ("-" or "NOT").
type UnaryOp struct {
	Base
	Op string
	X  Expr
}

func (*UnaryOp) exprNode() {}

// CallOrIndex is the parser's generic "function-call-form" node: an
// identifier followed by (args), ambiguous between an array read and a
// function/sub call until sema/codegen consult the symbol table
// (spec.md §9 "Ambiguous array-vs-call").
type CallOrIndex struct {
	Base
	Name string
	Args []Expr
}

func (*CallOrIndex) exprNode() {}

// ArrayAccess is a resolved array read, produced only after sema has
// determined a CallOrIndex actually names an array.
type ArrayAccess struct {
	Base
	Name    string
	Indices []Expr
}

func (*ArrayAccess) exprNode() {}

// Lambda is a DEF FN-style inline function expression.
type Lambda struct {
	Base
	Params []Param
	Body   Expr
}

func (*Lambda) exprNode() {}

// NewIdent is a small constructor helper used by the parser.
func NewIdent(sp span.Span, name string) *Ident {
	return &Ident{Base: Base{Sp: sp}, Name: name, Type: QBType{Kind: TInferred}}
}

package sema

import "github.com/parisxmas/esp32basic/internal/ast"

// builtinReturnTypes is the whitelist of built-in function return types
// used to type CallOrIndex nodes that name a function rather than an
// array (spec.md §4.3's "built-in return-type whitelist").
var builtinReturnTypes = map[string]ast.QBType{
	"LEN":   {Kind: ast.TInteger},
	"LEFT$": {Kind: ast.TString},
	"RIGHT$": {Kind: ast.TString},
	"MID$":  {Kind: ast.TString},
	"STR$":  {Kind: ast.TString},
	"VAL":   {Kind: ast.TDouble},
	"CHR$":  {Kind: ast.TString},
	"ASC":   {Kind: ast.TInteger},
	"UCASE$": {Kind: ast.TString},
	"LCASE$": {Kind: ast.TString},
	"INSTR":  {Kind: ast.TInteger},
	"ABS":    {Kind: ast.TDouble},
	"INT":    {Kind: ast.TLong},
	"SGN":    {Kind: ast.TInteger},
	"SQR":    {Kind: ast.TDouble},
	"RND":    {Kind: ast.TSingle},
	"TIMER":  {Kind: ast.TSingle},
}

// widen implements spec.md §4.3's numeric widening ladder: Integer < Long <
// Single < Double. String only combines with String via '+'. Comparisons,
// AND/OR/XOR, '\', and MOD always produce Integer.
func widen(op string, x, y ast.QBType) ast.QBType {
	switch op {
	case "AND", "OR", "XOR", "MOD", "\\":
		return ast.QBType{Kind: ast.TInteger}
	case "=", "<>", "<", ">", "<=", ">=":
		return ast.QBType{Kind: ast.TInteger}
	case "+":
		if x.Kind == ast.TString || y.Kind == ast.TString {
			return ast.QBType{Kind: ast.TString}
		}
		return widenNumeric(x, y)
	default:
		return widenNumeric(x, y)
	}
}

var rank = map[ast.QBTypeKind]int{
	ast.TInteger: 0, ast.TLong: 1, ast.TSingle: 2, ast.TDouble: 3, ast.TInferred: 2,
}

func widenNumeric(x, y ast.QBType) ast.QBType {
	xr, xok := rank[x.Kind]
	yr, yok := rank[y.Kind]
	if !xok {
		xr = 2
	}
	if !yok {
		yr = 2
	}
	if xr >= yr {
		return x
	}
	return y
}

// walkStmts auto-declares variables and resolves CallOrIndex ambiguity for
// one statement list, recursing into every nested block.
func (a *analyzer) walkStmts(body []ast.Stmt) {
	for _, s := range body {
		a.walkStmt(s)
	}
}

func (a *analyzer) walkStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.Dim:
		for _, item := range n.Items {
			v := a.declare(item.Name, item.Type)
			if len(item.Dims) > 0 {
				v.IsArray = true
				v.Dims = len(item.Dims)
				a.info.UserArrays[item.Name] = true
			}
			for _, d := range item.Dims {
				a.walkExpr(d)
			}
		}
	case *ast.Const:
		a.walkExpr(n.Value)
		a.declare(n.Name, a.typeOf(n.Value))
	case *ast.Let:
		a.walkExpr(n.Value)
		valType := a.typeOf(n.Value)
		if n.Sigil.Kind != ast.TInferred && valType.Kind != ast.TInferred && n.Sigil.Storage() != valType.Storage() {
			a.fail("cannot assign %s value to %s variable %s", storageWord(valType.Storage()), storageWord(n.Sigil.Storage()), sigilName(n.Name, n.Sigil))
		}
		declType := n.Sigil
		if declType.Kind == ast.TInferred {
			declType = valType
		}
		a.declare(n.Name, declType)
	case *ast.FieldAssign:
		a.declare(n.Object, ast.QBType{Kind: ast.TUserType})
		a.walkExpr(n.Value)
	case *ast.ArrayAssign:
		if v, ok := a.lookup(n.Name); ok {
			v.IsArray = true
		}
		a.info.UserArrays[n.Name] = true
		for _, idx := range n.Indices {
			a.walkExpr(idx)
		}
		a.walkExpr(n.Value)
	case *ast.Print:
		for _, item := range n.Items {
			if item.Expr != nil {
				a.walkExpr(item.Expr)
			}
		}
	case *ast.PrintUsing:
		a.walkExpr(n.Format)
		for _, item := range n.Items {
			a.walkExpr(item)
		}
	case *ast.Input:
		if n.Prompt != nil {
			a.walkExpr(n.Prompt)
		}
		for _, v := range n.Vars {
			a.declare(v, ast.QBType{Kind: ast.TInferred})
		}
	case *ast.LineInput:
		if n.Prompt != nil {
			a.walkExpr(n.Prompt)
		}
		a.declare(n.Var, ast.QBType{Kind: ast.TString})
	case *ast.If:
		a.walkExpr(n.Cond)
		a.walkStmts(n.Then)
		for _, ei := range n.ElseIfs {
			a.walkExpr(ei.Cond)
			a.walkStmts(ei.Body)
		}
		a.walkStmts(n.Else)
	case *ast.For:
		a.declare(n.Var, ast.QBType{Kind: ast.TInferred})
		a.walkExpr(n.From)
		a.walkExpr(n.To)
		if n.Step != nil {
			a.walkExpr(n.Step)
		}
		a.walkStmts(n.Body)
	case *ast.ForEach:
		a.declare(n.Var, ast.QBType{Kind: ast.TInferred})
		a.walkExpr(n.Collection)
		a.walkStmts(n.Body)
	case *ast.DoLoop:
		if n.PreExpr != nil {
			a.walkExpr(n.PreExpr)
		}
		a.walkStmts(n.Body)
		if n.PostExpr != nil {
			a.walkExpr(n.PostExpr)
		}
	case *ast.While:
		a.walkExpr(n.Cond)
		a.walkStmts(n.Body)
	case *ast.SelectCase:
		a.walkExpr(n.Subject)
		for _, c := range n.Clauses {
			for _, t := range c.Tests {
				if t.Value != nil {
					a.walkExpr(t.Value)
				}
				if t.Lo != nil {
					a.walkExpr(t.Lo)
				}
				if t.Hi != nil {
					a.walkExpr(t.Hi)
				}
				if t.IsValue != nil {
					a.walkExpr(t.IsValue)
				}
			}
			a.walkStmts(c.Body)
		}
	case *ast.OnGoto:
		a.walkExpr(n.Selector)
	case *ast.OnGosub:
		a.walkExpr(n.Selector)
	case *ast.OnEvent:
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
	case *ast.MachineEvent:
		a.declare(n.Machine, ast.QBType{Kind: ast.TUserType})
		a.walkExpr(n.Event)
	case *ast.Read:
		for _, v := range n.Vars {
			a.declare(v, ast.QBType{Kind: ast.TInferred})
		}
	case *ast.DefFn:
		a.pushScope()
		for _, p := range n.Params {
			a.declare(p.Name, p.Type)
		}
		a.walkExpr(n.Body)
		a.popScope()
	case *ast.Swap:
		a.declare(n.A, ast.QBType{Kind: ast.TInferred})
		a.declare(n.B, ast.QBType{Kind: ast.TInferred})
	case *ast.Randomize:
		if n.Seed != nil {
			a.walkExpr(n.Seed)
		}
	case *ast.Assert:
		a.walkExpr(n.Cond)
		if n.Message != nil {
			a.walkExpr(n.Message)
		}
	case *ast.TryCatch:
		a.walkStmts(n.TryBody)
		if n.ErrVar != "" {
			a.declare(n.ErrVar, ast.QBType{Kind: ast.TString})
		}
		a.walkStmts(n.CatchBody)
	case *ast.Task:
		if n.Stack != nil {
			a.walkExpr(n.Stack)
		}
		if n.Priority != nil {
			a.walkExpr(n.Priority)
		}
		a.walkStmts(n.Body)
	case *ast.CallSub:
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
		if _, ok := a.info.Subs[n.Name]; !ok {
			a.fail("call to undeclared SUB %q", n.Name)
		} else if len(a.info.Subs[n.Name].Params) != len(n.Args) {
			a.fail("SUB %q called with %d args, expects %d", n.Name, len(n.Args), len(a.info.Subs[n.Name].Params))
		}
	case *ast.HWStmt:
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
		if n.Dest != "" {
			a.declare(n.Dest, ast.QBType{Kind: ast.TInferred})
		}
	case *ast.Return:
		if n.Value != nil {
			a.walkExpr(n.Value)
		}
	}
}

// walkExpr recurses through an expression tree, resolving CallOrIndex
// ambiguity against the array/sub/function symbol tables as it goes
// (spec.md §9 "Ambiguous array-vs-call").
func (a *analyzer) walkExpr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.BinOp:
		a.walkExpr(n.X)
		a.walkExpr(n.Y)
	case *ast.UnaryOp:
		a.walkExpr(n.X)
	case *ast.FieldAccess:
		a.walkExpr(n.Object)
	case *ast.CallOrIndex:
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
		if _, ok := a.lookup(n.Name); ok {
			a.info.UserArrays[n.Name] = true
		}
	case *ast.ArrayAccess:
		for _, idx := range n.Indices {
			a.walkExpr(idx)
		}
	case *ast.InterpString:
		a.walkExpr(n.Parts)
	case *ast.Ident:
		a.declare(n.Name, ast.QBType{Kind: ast.TInferred})
	case *ast.Lambda:
		for _, p := range n.Params {
			a.declare(p.Name, p.Type)
		}
		a.walkExpr(n.Body)
	}
}

// typeOf computes an expression's static QBType for the auto-declare rule,
// widening through binary operators per the numeric ladder.
func (a *analyzer) typeOf(e ast.Expr) ast.QBType {
	switch n := e.(type) {
	case *ast.IntLit:
		return ast.QBType{Kind: ast.TInteger}
	case *ast.FloatLit:
		return ast.QBType{Kind: ast.TDouble}
	case *ast.StringLit:
		return ast.QBType{Kind: ast.TString}
	case *ast.InterpString:
		return ast.QBType{Kind: ast.TString}
	case *ast.Ident:
		if v, ok := a.lookup(n.Name); ok {
			return v.Type
		}
		return ast.QBType{Kind: ast.TInferred}
	case *ast.FieldAccess:
		return ast.QBType{Kind: ast.TInferred}
	case *ast.BinOp:
		return widen(n.Op, a.typeOf(n.X), a.typeOf(n.Y))
	case *ast.UnaryOp:
		return a.typeOf(n.X)
	case *ast.CallOrIndex:
		if t, ok := builtinReturnTypes[n.Name]; ok {
			return t
		}
		if fn, ok := a.info.Funcs[n.Name]; ok {
			return fn.Ret
		}
		if v, ok := a.lookup(n.Name); ok {
			return v.Type
		}
		return ast.QBType{Kind: ast.TInferred}
	case *ast.ArrayAccess:
		if v, ok := a.lookup(n.Name); ok {
			return v.Type
		}
		return ast.QBType{Kind: ast.TInferred}
	}
	return ast.QBType{Kind: ast.TInferred}
}

// Package ast defines the algebraic representation of the BASIC dialect:
// statements, expressions, and declarations, each carrying the span it was
// parsed from. The AST is produced once by internal/parser and is
// immutable thereafter (internal/sema and internal/codegen only read it).
package ast

import "github.com/parisxmas/esp32basic/internal/span"

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	Span() span.Span
}

// Expr is implemented by every expression node.
type Expr interface {
	exprNode()
	Span() span.Span
}

// Base carries the span every node has; embedded so accessors don't need
// to be repeated on every concrete type.
type Base struct{ Sp span.Span }

func (b Base) Span() span.Span { return b.Sp }

// ---- Top-level program ----

// Program is the root of a compilation unit: a flat top-level body plus
// every declared SUB, FUNCTION, TYPE, ENUM, MODULE, and state MACHINE.
type Program struct {
	TopLevel  []Stmt
	Subs      []*SubDecl
	Functions []*FuncDecl
	Types     []*TypeDecl
	Enums     []*EnumDecl
	Modules   []*ModuleDecl
	Machines  []*MachineDecl
}

// Param is a single SUB/FUNCTION parameter.
type Param struct {
	Name string
	Type QBType
	Sp   span.Span
}

// SubDecl declares a SUB name(params) ... END SUB.
type SubDecl struct {
	Base
	Name   string
	Params []Param
	Body   []Stmt
}

func (*SubDecl) stmtNode() {}

// FuncDecl declares a FUNCTION name(params) AS type ... END FUNCTION.
type FuncDecl struct {
	Base
	Name   string
	Params []Param
	Ret    QBType
	Body   []Stmt
}

func (*FuncDecl) stmtNode() {}

// TypeDecl declares a user TYPE name ... END TYPE record with named fields.
type TypeDecl struct {
	Base
	Name   string
	Fields []Param
}

func (*TypeDecl) stmtNode() {}

// EnumDecl declares an ENUM name ... END ENUM set of named constants.
type EnumDecl struct {
	Base
	Name    string
	Members []string
}

func (*EnumDecl) stmtNode() {}

// ModuleDecl groups declarations under MODULE name ... END MODULE.
type ModuleDecl struct {
	Base
	Name string
	Body []Stmt
}

func (*ModuleDecl) stmtNode() {}

// MachineState is one STATE block inside a MACHINE declaration.
type MachineState struct {
	Name        string
	Transitions []MachineTransition
	Sp          span.Span
}

// MachineTransition is one ON event GOTO target line inside a STATE block.
type MachineTransition struct {
	Event  string
	Target string
	Sp     span.Span
}

// MachineDecl declares a state MACHINE name ... END MACHINE.
type MachineDecl struct {
	Base
	Name   string
	States []MachineState
}

func (*MachineDecl) stmtNode() {}

// ---- QBType ----

// QBTypeKind tags the QBType variant.
type QBTypeKind int

const (
	TInferred QBTypeKind = iota
	TInteger
	TLong
	TSingle
	TDouble
	TString
	TUserType
	TFunctionPtr
)

// QBType is the source-level type of a declared or inferred value.
type QBType struct {
	Kind     QBTypeKind
	UserName string // populated when Kind == TUserType
}

func (k QBTypeKind) String() string {
	switch k {
	case TInferred:
		return "INFERRED"
	case TInteger:
		return "INTEGER"
	case TLong:
		return "LONG"
	case TSingle:
		return "SINGLE"
	case TDouble:
		return "DOUBLE"
	case TString:
		return "STRING"
	case TUserType:
		return "USERTYPE"
	case TFunctionPtr:
		return "FUNCTIONPTR"
	}
	return "?"
}

// StorageKind is the coarse IR-lowering representation of a QBType.
type StorageKind int

const (
	StorageNumericI32 StorageKind = iota
	StorageNumericF32
	StoragePointerString
)

// Storage maps a source-level QBType to its coarse IR storage
// representation, per spec.md §3: Integer/Long share i32; Single/Double/
// Inferred share f32 on this target; UserType/FunctionPtr are pointer-sized
// integers in the current target model.
func (t QBType) Storage() StorageKind {
	switch t.Kind {
	case TInteger, TLong:
		return StorageNumericI32
	case TSingle, TDouble, TInferred:
		return StorageNumericF32
	case TString:
		return StoragePointerString
	case TUserType, TFunctionPtr:
		return StorageNumericI32
	}
	return StorageNumericF32
}

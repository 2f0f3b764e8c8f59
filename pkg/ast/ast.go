// Package ast defines the typed abstract syntax tree accepted by the
// middle-end. The tree arrives fully resolved from the type checker: every
// identifier is a Val/Temp id, every expression carries a non-placeholder
// type and a source location, and templates are already instantiated.
package ast

import (
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
)

// Typ is the interface for source-level types.
type Typ interface {
	implTyp()
}

// TypInt is the default (64-bit) integer type.
type TypInt struct{}

// TypSInt is a sized signed integer type (8, 16, 32 or 64 bits).
type TypSInt struct {
	Bits int
}

// TypUInt is a sized unsigned integer type.
type TypUInt struct {
	Bits int
}

// TypFloat is a floating-point type (16, 32 or 64 bits).
type TypFloat struct {
	Bits int
}

// TypBool is the boolean type.
type TypBool struct{}

// TypChar is the unicode character type.
type TypChar struct{}

// TypString is the immutable string type.
type TypString struct{}

// TypVoid is the unit/void type.
type TypVoid struct{}

// TypExn is the exception type.
type TypExn struct{}

// TypCPtr is the opaque C smart-pointer type.
type TypCPtr struct{}

// TypFun is a function type.
type TypFun struct {
	Args []Typ
	Ret  Typ
}

// TypTuple is a tuple type.
type TypTuple struct {
	Elems []Typ
}

// TypList is a list type.
type TypList struct {
	Elem Typ
}

// TypRef is a mutable reference type.
type TypRef struct {
	Elem Typ
}

// TypArray is a multi-dimensional array type.
type TypArray struct {
	Dims int
	Elem Typ
}

// TypRecord is an anonymous record type (named records and variants are
// referenced via TypName).
type TypRecord struct {
	Fields []RecField
}

// TypName references a named type, variant or record by its id.
type TypName struct {
	Id ids.Id
}

// RecField is a record field: a name, a type and an optional default value.
type RecField struct {
	Name    ids.Id
	Typ     Typ
	Default Exp // nil when the field has no declared default
}

func (TypInt) implTyp()    {}
func (TypSInt) implTyp()   {}
func (TypUInt) implTyp()   {}
func (TypFloat) implTyp()  {}
func (TypBool) implTyp()   {}
func (TypChar) implTyp()   {}
func (TypString) implTyp() {}
func (TypVoid) implTyp()   {}
func (TypExn) implTyp()    {}
func (TypCPtr) implTyp()   {}
func (TypFun) implTyp()    {}
func (TypTuple) implTyp()  {}
func (TypList) implTyp()   {}
func (TypRef) implTyp()    {}
func (TypArray) implTyp()  {}
func (TypRecord) implTyp() {}
func (TypName) implTyp()   {}

// Ctx is the (type, location) context carried by every expression.
type Ctx struct {
	Typ Typ
	Loc diag.Loc
}

// Lit is a literal constant value.
type Lit interface {
	implLit()
}

// LitInt is an integer literal.
type LitInt struct {
	Value int64
}

// LitFloat is a floating-point literal.
type LitFloat struct {
	Bits  int
	Value float64
}

// LitBool is a boolean literal.
type LitBool struct {
	Value bool
}

// LitChar is a character literal.
type LitChar struct {
	Value rune
}

// LitString is a string literal.
type LitString struct {
	Value string
}

// LitNil is the empty list literal.
type LitNil struct{}

// LitUnit is the unit value literal.
type LitUnit struct{}

func (LitInt) implLit()    {}
func (LitFloat) implLit()  {}
func (LitBool) implLit()   {}
func (LitChar) implLit()   {}
func (LitString) implLit() {}
func (LitNil) implLit()    {}
func (LitUnit) implLit()   {}

// BinOp is a binary operator in the source language.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpShiftLeft
	OpShiftRight
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLogicAnd
	OpLogicOr
	OpCmpEQ
	OpCmpNE
	OpCmpLT
	OpCmpLE
	OpCmpGT
	OpCmpGE
	OpCons
)

func (op BinOp) String() string {
	names := []string{"+", "-", "*", "/", "%", "**", "<<", ">>", "&", "|", "^",
		"&&", "||", "==", "!=", "<", "<=", ">", ">=", "::"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// UnOp is a unary operator in the source language.
type UnOp int

const (
	OpNeg UnOp = iota
	OpBitNot
	OpLogicNot
	OpDeref
	OpMkRef
	OpExpand
)

func (op UnOp) String() string {
	names := []string{"-", "~", "!", "*", "ref", "\\"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Exp is the interface for all AST expressions (including definitions and
// directives, which appear as statements at module scope).
type Exp interface {
	implExp()
	Context() Ctx
}

// ExpLit is a literal expression.
type ExpLit struct {
	Lit Lit
	Ctx Ctx
}

// ExpIdent is a resolved identifier reference.
type ExpIdent struct {
	Id  ids.Id
	Ctx Ctx
}

// ExpBinary is a binary operation.
type ExpBinary struct {
	Op    BinOp
	Left  Exp
	Right Exp
	Ctx   Ctx
}

// ExpUnary is a unary operation.
type ExpUnary struct {
	Op  UnOp
	Arg Exp
	Ctx Ctx
}

// ExpSeq is a sequence of expressions evaluated in order; the value of the
// last expression is the value of the sequence.
type ExpSeq struct {
	Exps []Exp
	Ctx  Ctx
}

// ExpIf is a conditional expression.
type ExpIf struct {
	Cond Exp
	Then Exp
	Else Exp
	Ctx  Ctx
}

// ExpCall is a function call. Arguments are positional; keyword arguments
// have been folded into a trailing record literal by the parser.
type ExpCall struct {
	Fun  Exp
	Args []Exp
	Ctx  Ctx
}

// ExpMkTuple constructs a tuple.
type ExpMkTuple struct {
	Elems []Exp
	Ctx   Ctx
}

// ExpMkRecord constructs a record or a variant case with named fields.
// Ctor is the constructor id when the record is a variant case, None for a
// plain record.
type ExpMkRecord struct {
	Ctor   ids.Id
	Fields []FieldInit
	Ctx    Ctx
}

// FieldInit is a single named-field initializer.
type FieldInit struct {
	Name ids.Id
	Exp  Exp
}

// ExpUpdateRecord builds a new record from an existing one with some fields
// replaced.
type ExpUpdateRecord struct {
	Rec    Exp
	Fields []FieldInit
	Ctx    Ctx
}

// ExpMkArray constructs an array from rows of elements.
type ExpMkArray struct {
	Rows [][]Exp
	Ctx  Ctx
}

// ExpRange is a range a:b:delta; absent bounds are nil.
type ExpRange struct {
	Begin Exp
	End   Exp
	Delta Exp
	Ctx   Ctx
}

// ForClause is one "pattern <- domain" iteration clause. IdxPat, when
// non-nil, is the @-index pattern bound to the current position.
type ForClause struct {
	Pat    Pat
	IdxPat Pat
	Domain Exp
}

// ForStage is one nesting level of a for/comprehension: the clauses iterated
// in lockstep at that level.
type ForStage struct {
	Clauses []ForClause
}

// ExpFor is an imperative for loop over one or more nested stages.
type ExpFor struct {
	Stages []ForStage
	Body   Exp
	Ctx    Ctx
}

// ExpMap is an array or list comprehension. MakeList selects the produced
// collection kind.
type ExpMap struct {
	Stages   []ForStage
	Body     Exp
	MakeList bool
	Ctx      Ctx
}

// ExpWhile is a while loop.
type ExpWhile struct {
	Cond Exp
	Body Exp
	Ctx  Ctx
}

// ExpDoWhile is a do-while loop.
type ExpDoWhile struct {
	Body Exp
	Cond Exp
	Ctx  Ctx
}

// ExpMatch is a pattern match over a scrutinee.
type ExpMatch struct {
	Arg   Exp
	Cases []MatchCase
	Ctx   Ctx
}

// MatchCase is one match arm: alternative patterns sharing a body.
type MatchCase struct {
	Pats []Pat
	Body Exp
}

// ExpTry is try/catch: the body, then the catch arms matched against the
// caught exception.
type ExpTry struct {
	Body  Exp
	Cases []MatchCase
	Ctx   Ctx
}

// ExpThrow raises an exception value.
type ExpThrow struct {
	Exn Exp
	Ctx Ctx
}

// ExpMem is field access: tuple component by index or record field by name.
type ExpMem struct {
	Rec   Exp
	Field ids.Id // record field; None for tuple access
	Idx   int    // tuple component index when Field is None
	Ctx   Ctx
}

// ExpAt is array/string indexing; each index is a point, a range, or the
// expand operator.
type ExpAt struct {
	Arr  Exp
	Idxs []Exp
	Ctx  Ctx
}

// ExpRevIndex is the reverse index ".-e": size along the innermost active
// axis minus e.
type ExpRevIndex struct {
	Arg Exp
	Ctx Ctx
}

// ExpAssign is an assignment to an lvalue.
type ExpAssign struct {
	LHS Exp
	RHS Exp
	Ctx Ctx
}

// ExpCast is an explicit numeric/pointer conversion.
type ExpCast struct {
	Arg Exp
	Ctx Ctx
}

// ExpTyped is a type ascription (e: t).
type ExpTyped struct {
	Arg Exp
	Ctx Ctx
}

// ExpCCode is inline C code passed through verbatim.
type ExpCCode struct {
	Code string
	Ctx  Ctx
}

// DefVal is a value definition "val p = e".
type DefVal struct {
	Pat   Pat
	Init  Exp
	Flags ValFlags
	Ctx   Ctx
}

// DefFun is a function definition, possibly with template instances already
// expanded by the type checker.
type DefFun struct {
	Name      ids.Id
	Params    []Pat
	ParamTyps []Typ
	RetTyp    Typ
	Body      Exp
	Flags     FunFlags
	Instances []ids.Id
	Ctx       Ctx
}

// DefTyp is a type alias definition.
type DefTyp struct {
	Name ids.Id
	Typ  Typ
	Ctx  Ctx
}

// DefVariant is a variant type definition; a single-case variant whose case
// payload is a record is a "record variant".
type DefVariant struct {
	Name      ids.Id
	Cases     []VariantCase
	Recursive bool
	Option    bool // two cases, one of them payload-free
	Ctx       Ctx
}

// VariantCase is one constructor of a variant with its payload type
// (TypVoid for payload-free cases).
type VariantCase struct {
	Name ids.Id
	Typ  Typ
}

// DefExn is an exception definition with an optional payload type.
type DefExn struct {
	Name ids.Id
	Typ  Typ
	Ctx  Ctx
}

// DirImport is an import directive naming a module dependency.
type DirImport struct {
	Module ids.Id
	Ctx    Ctx
}

// DirPragma passes an option ("cpp", "clib:...") to the build driver.
type DirPragma struct {
	Pragmas []string
	Ctx     Ctx
}

func (ExpLit) implExp()          {}
func (ExpIdent) implExp()        {}
func (ExpBinary) implExp()       {}
func (ExpUnary) implExp()        {}
func (ExpSeq) implExp()          {}
func (ExpIf) implExp()           {}
func (ExpCall) implExp()         {}
func (ExpMkTuple) implExp()      {}
func (ExpMkRecord) implExp()     {}
func (ExpUpdateRecord) implExp() {}
func (ExpMkArray) implExp()      {}
func (ExpRange) implExp()        {}
func (ExpFor) implExp()          {}
func (ExpMap) implExp()          {}
func (ExpWhile) implExp()        {}
func (ExpDoWhile) implExp()      {}
func (ExpMatch) implExp()        {}
func (ExpTry) implExp()          {}
func (ExpThrow) implExp()        {}
func (ExpMem) implExp()          {}
func (ExpAt) implExp()           {}
func (ExpRevIndex) implExp()     {}
func (ExpAssign) implExp()       {}
func (ExpCast) implExp()         {}
func (ExpTyped) implExp()        {}
func (ExpCCode) implExp()        {}
func (DefVal) implExp()          {}
func (DefFun) implExp()          {}
func (DefTyp) implExp()          {}
func (DefVariant) implExp()      {}
func (DefExn) implExp()          {}
func (DirImport) implExp()       {}
func (DirPragma) implExp()       {}

func (e ExpLit) Context() Ctx          { return e.Ctx }
func (e ExpIdent) Context() Ctx        { return e.Ctx }
func (e ExpBinary) Context() Ctx       { return e.Ctx }
func (e ExpUnary) Context() Ctx        { return e.Ctx }
func (e ExpSeq) Context() Ctx          { return e.Ctx }
func (e ExpIf) Context() Ctx           { return e.Ctx }
func (e ExpCall) Context() Ctx         { return e.Ctx }
func (e ExpMkTuple) Context() Ctx      { return e.Ctx }
func (e ExpMkRecord) Context() Ctx     { return e.Ctx }
func (e ExpUpdateRecord) Context() Ctx { return e.Ctx }
func (e ExpMkArray) Context() Ctx      { return e.Ctx }
func (e ExpRange) Context() Ctx        { return e.Ctx }
func (e ExpFor) Context() Ctx          { return e.Ctx }
func (e ExpMap) Context() Ctx          { return e.Ctx }
func (e ExpWhile) Context() Ctx        { return e.Ctx }
func (e ExpDoWhile) Context() Ctx      { return e.Ctx }
func (e ExpMatch) Context() Ctx        { return e.Ctx }
func (e ExpTry) Context() Ctx          { return e.Ctx }
func (e ExpThrow) Context() Ctx        { return e.Ctx }
func (e ExpMem) Context() Ctx          { return e.Ctx }
func (e ExpAt) Context() Ctx           { return e.Ctx }
func (e ExpRevIndex) Context() Ctx     { return e.Ctx }
func (e ExpAssign) Context() Ctx       { return e.Ctx }
func (e ExpCast) Context() Ctx         { return e.Ctx }
func (e ExpTyped) Context() Ctx        { return e.Ctx }
func (e ExpCCode) Context() Ctx        { return e.Ctx }
func (e DefVal) Context() Ctx          { return e.Ctx }
func (e DefFun) Context() Ctx          { return e.Ctx }
func (e DefTyp) Context() Ctx          { return e.Ctx }
func (e DefVariant) Context() Ctx      { return e.Ctx }
func (e DefExn) Context() Ctx          { return e.Ctx }
func (e DirImport) Context() Ctx       { return e.Ctx }
func (e DirPragma) Context() Ctx       { return e.Ctx }

// Pat is the interface for patterns.
type Pat interface {
	implPat()
	PatLoc() diag.Loc
}

// PatAny matches anything and binds nothing.
type PatAny struct {
	Loc diag.Loc
}

// PatIdent binds the whole scrutinee to a name.
type PatIdent struct {
	Id  ids.Id
	Loc diag.Loc
}

// PatLit matches a literal constant.
type PatLit struct {
	Lit Lit
	Loc diag.Loc
}

// PatAs matches the inner pattern and also binds the scrutinee to a name.
type PatAs struct {
	Pat Pat
	Id  ids.Id
	Loc diag.Loc
}

// PatTuple matches a tuple componentwise.
type PatTuple struct {
	Elems []Pat
	Loc   diag.Loc
}

// PatVariant matches a variant case and its payload.
type PatVariant struct {
	Ctor ids.Id
	Args []Pat
	Loc  diag.Loc
}

// PatRecord matches record fields by name. Ctor is the variant case id when
// the record pattern targets a case of a multi-case variant, None otherwise.
type PatRecord struct {
	Ctor   ids.Id
	Fields []FieldPat
	Loc    diag.Loc
}

// FieldPat is a single named-field sub-pattern.
type FieldPat struct {
	Name ids.Id
	Pat  Pat
}

// PatCons matches a non-empty list as head :: tail.
type PatCons struct {
	Head Pat
	Tail Pat
	Loc  diag.Loc
}

// PatRef matches a reference cell by dereferencing it.
type PatRef struct {
	Pat Pat
	Loc diag.Loc
}

// PatTyped ascribes a type to the inner pattern.
type PatTyped struct {
	Pat Pat
	Typ Typ
	Loc diag.Loc
}

// PatWhen attaches a boolean guard to the inner pattern.
type PatWhen struct {
	Pat   Pat
	Guard Exp
	Loc   diag.Loc
}

func (PatAny) implPat()     {}
func (PatIdent) implPat()   {}
func (PatLit) implPat()     {}
func (PatAs) implPat()      {}
func (PatTuple) implPat()   {}
func (PatVariant) implPat() {}
func (PatRecord) implPat()  {}
func (PatCons) implPat()    {}
func (PatRef) implPat()     {}
func (PatTyped) implPat()   {}
func (PatWhen) implPat()    {}

func (p PatAny) PatLoc() diag.Loc     { return p.Loc }
func (p PatIdent) PatLoc() diag.Loc   { return p.Loc }
func (p PatLit) PatLoc() diag.Loc     { return p.Loc }
func (p PatAs) PatLoc() diag.Loc      { return p.Loc }
func (p PatTuple) PatLoc() diag.Loc   { return p.Loc }
func (p PatVariant) PatLoc() diag.Loc { return p.Loc }
func (p PatRecord) PatLoc() diag.Loc  { return p.Loc }
func (p PatCons) PatLoc() diag.Loc    { return p.Loc }
func (p PatRef) PatLoc() diag.Loc     { return p.Loc }
func (p PatTyped) PatLoc() diag.Loc   { return p.Loc }
func (p PatWhen) PatLoc() diag.Loc    { return p.Loc }

// ValFlags records properties of a value binding.
type ValFlags struct {
	Mutable  bool
	TempRef  bool
	Private  bool
	Global   bool
	SubArray bool
	CtorOf   ids.Id // variant id when the value is a constructor tag
	Arg      bool
}

// FunFlags records properties of a function definition.
type FunFlags struct {
	CCode       bool
	Pure        bool
	NoThrow     bool
	Private     bool
	HasKeywords bool
	Ctor        ids.Id // variant/exception id for auto-generated constructors
}

// Module is one compilation unit: its name, declared imports and top-level
// statements in source order.
type Module struct {
	Name    ids.Id
	Imports []ids.Id
	Stmts   []Exp
	IsMain  bool
}

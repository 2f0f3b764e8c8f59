// Package kform defines the K-form intermediate representation: a
// let-normalized IR in which every operand of a primitive operation is
// atomic (an identifier or a literal). K-form is produced by the
// K-normalizer and consumed by the optimizer, the mangler and the C-form
// generator.
package kform

import (
	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
)

// Lit reuses the source literal representation; K-normalization does not
// change constant values.
type Lit = ast.Lit

// KTyp is the interface for K-form types.
type KTyp interface {
	implKTyp()
}

// KTypInt is the default (64-bit) integer type.
type KTypInt struct{}

// KTypSInt is a sized signed integer type.
type KTypSInt struct {
	Bits int
}

// KTypUInt is a sized unsigned integer type.
type KTypUInt struct {
	Bits int
}

// KTypFloat is a floating-point type.
type KTypFloat struct {
	Bits int
}

// KTypVoid is the unit/void type.
type KTypVoid struct{}

// KTypBool is the boolean type.
type KTypBool struct{}

// KTypChar is the character type.
type KTypChar struct{}

// KTypString is the string type.
type KTypString struct{}

// KTypCPtr is the opaque C smart-pointer type.
type KTypCPtr struct{}

// KTypExn is the exception type.
type KTypExn struct{}

// KTypErr marks a type-checking failure that leaked into K-form; any
// appearance downstream is an internal error.
type KTypErr struct{}

// KTypFun is a function type.
type KTypFun struct {
	Args []KTyp
	Ret  KTyp
}

// KTypTuple is a tuple type. Anonymous tuples are converted to KTypName by
// the mangler.
type KTypTuple struct {
	Elems []KTyp
}

// KTypList is a list type.
type KTypList struct {
	Elem KTyp
}

// KTypRef is a reference-cell type.
type KTypRef struct {
	Elem KTyp
}

// KTypArray is a multi-dimensional array type. Arrays stay structural; the
// runtime represents all of them with a generic fx_arr_t header.
type KTypArray struct {
	Dims int
	Elem KTyp
}

// KTypRecord is a record type, retained structurally through the whole
// pipeline. Name is the nominal record id, None for anonymous records.
type KTypRecord struct {
	Name   ids.Id
	Fields []KField
}

// KTypName references a nominal type (a KDefTyp or KDefVariant id).
type KTypName struct {
	Id ids.Id
}

// KField is a record field.
type KField struct {
	Name ids.Id
	Typ  KTyp
}

func (KTypInt) implKTyp()    {}
func (KTypSInt) implKTyp()   {}
func (KTypUInt) implKTyp()   {}
func (KTypFloat) implKTyp()  {}
func (KTypVoid) implKTyp()   {}
func (KTypBool) implKTyp()   {}
func (KTypChar) implKTyp()   {}
func (KTypString) implKTyp() {}
func (KTypCPtr) implKTyp()   {}
func (KTypExn) implKTyp()    {}
func (KTypErr) implKTyp()    {}
func (KTypFun) implKTyp()    {}
func (KTypTuple) implKTyp()  {}
func (KTypList) implKTyp()   {}
func (KTypRef) implKTyp()    {}
func (KTypArray) implKTyp()  {}
func (KTypRecord) implKTyp() {}
func (KTypName) implKTyp()   {}

// Atom is an atomic operand: an identifier or a literal.
type Atom interface {
	implAtom()
}

// AtomId is an identifier operand.
type AtomId struct {
	Id ids.Id
}

// AtomLit is a literal operand.
type AtomLit struct {
	Lit Lit
}

func (AtomId) implAtom()  {}
func (AtomLit) implAtom() {}

// IntrinOp enumerates the K-form intrinsics: primitives not expressible as
// user functions.
type IntrinOp int

const (
	IntrinVariantTag IntrinOp = iota
	IntrinVariantCase
	IntrinListHead
	IntrinListTail
	IntrinStrConcat
	IntrinGetSize
	IntrinCheckIdx
	IntrinPopExn
)

func (op IntrinOp) String() string {
	names := []string{"VARIANT_TAG", "VARIANT_CASE", "LIST_HEAD", "LIST_TAIL",
		"STR_CONCAT", "GET_SIZE", "CHECK_IDX", "POP_EXN"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Ctx is the (type, location) context carried by every K-expression.
type Ctx struct {
	Typ KTyp
	Loc diag.Loc
}

// KExp is the interface for K-form expressions and statements.
type KExp interface {
	implKExp()
	KCtx() Ctx
}

// KExpNop is a no-op statement (the residue of a hoisted definition).
type KExpNop struct {
	Loc diag.Loc
}

// KExpAtom returns an atom as a value.
type KExpAtom struct {
	Atom Atom
	Ctx  Ctx
}

// KExpBinary is a binary primitive over atomic operands. Short-circuit
// operators never appear here; they are lowered to KExpIf.
type KExpBinary struct {
	Op    ast.BinOp
	Left  Atom
	Right Atom
	Ctx   Ctx
}

// KExpUnary is a unary primitive over an atomic operand.
type KExpUnary struct {
	Op  ast.UnOp
	Arg Atom
	Ctx Ctx
}

// KExpIntrin is an intrinsic application over atomic operands.
type KExpIntrin struct {
	Op   IntrinOp
	Args []Atom
	Ctx  Ctx
}

// KExpSeq is a sequence; the value of the last expression is the value of
// the sequence.
type KExpSeq struct {
	Exps []KExp
	Ctx  Ctx
}

// KExpIf is a conditional.
type KExpIf struct {
	Cond KExp
	Then KExp
	Else KExp
	Ctx  Ctx
}

// KExpCall is a call of a known function id over atomic arguments.
type KExpCall struct {
	Fun  ids.Id
	Args []Atom
	Ctx  Ctx
}

// KExpMkTuple constructs a tuple from atoms.
type KExpMkTuple struct {
	Elems []Atom
	Ctx   Ctx
}

// KExpMkRecord constructs a record from atoms in field order.
type KExpMkRecord struct {
	Fields []Atom
	Ctx    Ctx
}

// KExpMkArray constructs an array from rows of atoms.
type KExpMkArray struct {
	Rows [][]Atom
	Ctx  Ctx
}

// KExpMkClosure packs a function and its captured values into a closure.
type KExpMkClosure struct {
	Fun      ids.Id
	FreeVars []Atom
	Ctx      Ctx
}

// Dom is an iteration or indexing domain: a single element or a range.
type Dom interface {
	implDom()
}

// DomElem is a point domain.
type DomElem struct {
	Atom Atom
}

// DomRange is a begin:end:delta domain; absent components are nil.
type DomRange struct {
	Begin Atom
	End   Atom
	Delta Atom
}

func (DomElem) implDom()  {}
func (DomRange) implDom() {}

// KExpAt is array/string element or slice access.
type KExpAt struct {
	Arr  Atom
	Idxs []Dom
	Ctx  Ctx
}

// KExpMem is tuple/record member access by index.
type KExpMem struct {
	Rec Atom
	Idx int
	Ctx Ctx
}

// KExpAssign stores the value of RHS into an identifier.
type KExpAssign struct {
	LHS ids.Id
	RHS KExp
	Loc diag.Loc
}

// MatchCase is one compiled match arm: a list of boolean checks and the
// body evaluated when all checks pass.
type MatchCase struct {
	Checks []KExp
	Body   KExp
}

// KExpMatch is a compiled pattern match: cases tried in order, lowered to a
// right-associated if chain by the C-form generator.
type KExpMatch struct {
	Cases []MatchCase
	Ctx   Ctx
}

// LoopClause is one "var over domain" iteration clause.
type LoopClause struct {
	Var ids.Id
	Dom Dom
}

// MapStage is one nesting level of a comprehension: code evaluated before
// entering the level, the clauses iterated in lockstep, and the @-index ids
// bound at that level.
type MapStage struct {
	Pre     KExp
	Clauses []LoopClause
	AtIds   []ids.Id
}

// KExpMap is an array/list comprehension. The original source nesting is
// preserved as a list of stages so later passes can optimize each level
// independently.
type KExpMap struct {
	Stages   []MapStage
	Body     KExp
	MakeList bool
	Ctx      Ctx
}

// KExpFor is one level of an imperative for loop; nested levels nest in the
// body.
type KExpFor struct {
	Clauses []LoopClause
	AtIds   []ids.Id
	Body    KExp
	Loc     diag.Loc
}

// KExpWhile is a while loop.
type KExpWhile struct {
	Cond KExp
	Body KExp
	Loc  diag.Loc
}

// KExpDoWhile is a do-while loop.
type KExpDoWhile struct {
	Body KExp
	Cond KExp
	Loc  diag.Loc
}

// KExpBreak exits the innermost loop.
type KExpBreak struct {
	Loc diag.Loc
}

// KExpContinue skips to the next iteration of the innermost loop.
type KExpContinue struct {
	Loc diag.Loc
}

// KExpTryCatch wraps Body in a try region; Handler runs with the raised
// exception available via the POP_EXN intrinsic.
type KExpTryCatch struct {
	Body    KExp
	Handler KExp
	Ctx     Ctx
}

// KExpThrow raises the exception bound to Exn; Rethrow re-raises a caught
// exception preserving its backtrace.
type KExpThrow struct {
	Exn     ids.Id
	Rethrow bool
	Loc     diag.Loc
}

// KExpCast converts an atom to the context type.
type KExpCast struct {
	Arg Atom
	Ctx Ctx
}

// KExpCCode is inline C code passed through to the backend.
type KExpCCode struct {
	Code string
	Ctx  Ctx
}

// KParam is a function parameter: its id and type.
type KParam struct {
	Name ids.Id
	Typ  KTyp
}

// ClosureInfo records the ids materialized for a closure-converted function.
type ClosureInfo struct {
	FreeVarStruct ids.Id
	FpTyp         ids.Id
	MakeFp        ids.Id
	Wrap          ids.Id
}

// KDefVal is a value definition.
type KDefVal struct {
	Name  ids.Id
	Rhs   KExp
	Flags ast.ValFlags
	Typ   KTyp
	CName string
	Loc   diag.Loc
}

// KDefFun is a function definition.
type KDefFun struct {
	Name    ids.Id
	Params  []KParam
	RetTyp  KTyp
	Body    KExp
	Flags   ast.FunFlags
	Closure ClosureInfo
	Scope   ast.ScopePath
	CName   string
	Loc     diag.Loc
}

// KVariantCase is one constructor of a variant with its payload type.
type KVariantCase struct {
	Name ids.Id
	Typ  KTyp
}

// KDefVariant is a variant type definition.
type KDefVariant struct {
	Name      ids.Id
	Cases     []KVariantCase
	Ctors     []ids.Id
	Recursive bool
	Option    bool
	Scope     ast.ScopePath
	CName     string
	Loc       diag.Loc
}

// KDefExn is an exception definition.
type KDefExn struct {
	Name  ids.Id
	Typ   KTyp
	Ctor  ids.Id
	Scope ast.ScopePath
	CName string
	Loc   diag.Loc
}

// KDefTyp is a named type definition; the mangler materializes anonymous
// structural types into these.
type KDefTyp struct {
	Name  ids.Id
	Typ   KTyp
	CName string // assigned by the mangler
	Scope ast.ScopePath
	Loc   diag.Loc
}

func (KExpNop) implKExp()       {}
func (KExpAtom) implKExp()      {}
func (KExpBinary) implKExp()    {}
func (KExpUnary) implKExp()     {}
func (KExpIntrin) implKExp()    {}
func (KExpSeq) implKExp()       {}
func (KExpIf) implKExp()        {}
func (KExpCall) implKExp()      {}
func (KExpMkTuple) implKExp()   {}
func (KExpMkRecord) implKExp()  {}
func (KExpMkArray) implKExp()   {}
func (KExpMkClosure) implKExp() {}
func (KExpAt) implKExp()        {}
func (KExpMem) implKExp()       {}
func (KExpAssign) implKExp()    {}
func (KExpMatch) implKExp()     {}
func (KExpMap) implKExp()       {}
func (KExpFor) implKExp()       {}
func (KExpWhile) implKExp()     {}
func (KExpDoWhile) implKExp()   {}
func (KExpBreak) implKExp()     {}
func (KExpContinue) implKExp()  {}
func (KExpTryCatch) implKExp()  {}
func (KExpThrow) implKExp()     {}
func (KExpCast) implKExp()      {}
func (KExpCCode) implKExp()     {}
func (*KDefVal) implKExp()      {}
func (*KDefFun) implKExp()      {}
func (*KDefVariant) implKExp()  {}
func (*KDefExn) implKExp()      {}
func (*KDefTyp) implKExp()      {}

func (e KExpNop) KCtx() Ctx       { return Ctx{Typ: KTypVoid{}, Loc: e.Loc} }
func (e KExpAtom) KCtx() Ctx      { return e.Ctx }
func (e KExpBinary) KCtx() Ctx    { return e.Ctx }
func (e KExpUnary) KCtx() Ctx     { return e.Ctx }
func (e KExpIntrin) KCtx() Ctx    { return e.Ctx }
func (e KExpSeq) KCtx() Ctx       { return e.Ctx }
func (e KExpIf) KCtx() Ctx        { return e.Ctx }
func (e KExpCall) KCtx() Ctx      { return e.Ctx }
func (e KExpMkTuple) KCtx() Ctx   { return e.Ctx }
func (e KExpMkRecord) KCtx() Ctx  { return e.Ctx }
func (e KExpMkArray) KCtx() Ctx   { return e.Ctx }
func (e KExpMkClosure) KCtx() Ctx { return e.Ctx }
func (e KExpAt) KCtx() Ctx        { return e.Ctx }
func (e KExpMem) KCtx() Ctx       { return e.Ctx }
func (e KExpAssign) KCtx() Ctx    { return Ctx{Typ: KTypVoid{}, Loc: e.Loc} }
func (e KExpMatch) KCtx() Ctx     { return e.Ctx }
func (e KExpMap) KCtx() Ctx       { return e.Ctx }
func (e KExpFor) KCtx() Ctx       { return Ctx{Typ: KTypVoid{}, Loc: e.Loc} }
func (e KExpWhile) KCtx() Ctx     { return Ctx{Typ: KTypVoid{}, Loc: e.Loc} }
func (e KExpDoWhile) KCtx() Ctx   { return Ctx{Typ: KTypVoid{}, Loc: e.Loc} }
func (e KExpBreak) KCtx() Ctx     { return Ctx{Typ: KTypVoid{}, Loc: e.Loc} }
func (e KExpContinue) KCtx() Ctx  { return Ctx{Typ: KTypVoid{}, Loc: e.Loc} }
func (e KExpTryCatch) KCtx() Ctx  { return e.Ctx }
func (e KExpThrow) KCtx() Ctx     { return Ctx{Typ: KTypVoid{}, Loc: e.Loc} }
func (e KExpCast) KCtx() Ctx      { return e.Ctx }
func (e KExpCCode) KCtx() Ctx     { return e.Ctx }
func (d *KDefVal) KCtx() Ctx      { return Ctx{Typ: KTypVoid{}, Loc: d.Loc} }
func (d *KDefFun) KCtx() Ctx      { return Ctx{Typ: KTypVoid{}, Loc: d.Loc} }
func (d *KDefVariant) KCtx() Ctx  { return Ctx{Typ: KTypVoid{}, Loc: d.Loc} }
func (d *KDefExn) KCtx() Ctx      { return Ctx{Typ: KTypVoid{}, Loc: d.Loc} }
func (d *KDefTyp) KCtx() Ctx      { return Ctx{Typ: KTypVoid{}, Loc: d.Loc} }

// Def is an entry of the K-form symbol table.
type Def interface {
	implKDef()
	DefName() ids.Id
}

func (*KDefVal) implKDef()     {}
func (*KDefFun) implKDef()     {}
func (*KDefVariant) implKDef() {}
func (*KDefExn) implKDef()     {}
func (*KDefTyp) implKDef()     {}

func (d *KDefVal) DefName() ids.Id     { return d.Name }
func (d *KDefFun) DefName() ids.Id     { return d.Name }
func (d *KDefVariant) DefName() ids.Id { return d.Name }
func (d *KDefExn) DefName() ids.Id     { return d.Name }
func (d *KDefTyp) DefName() ids.Id     { return d.Name }

// Module is a compilation unit after K-normalization.
type Module struct {
	Name    ids.Id
	Imports []ids.Id
	Stmts   []KExp
	IsMain  bool
	Pragmas []string
}

// Seq builds a sequence expression, flattening nested sequences and
// dropping interior no-ops. The context is taken from the last expression.
func Seq(exps ...KExp) KExp {
	var flat []KExp
	for i, e := range exps {
		if s, ok := e.(KExpSeq); ok {
			flat = append(flat, s.Exps...)
			continue
		}
		if _, ok := e.(KExpNop); ok && i != len(exps)-1 {
			continue
		}
		flat = append(flat, e)
	}
	switch len(flat) {
	case 0:
		return KExpNop{}
	case 1:
		return flat[0]
	default:
		return KExpSeq{Exps: flat, Ctx: flat[len(flat)-1].KCtx()}
	}
}

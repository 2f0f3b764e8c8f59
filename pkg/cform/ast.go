package cform

import (
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
)

// CExp is the interface for C-form expressions.
type CExp interface {
	implCExp()
	ExpTyp() CTyp
}

// CExpIdent is an identifier reference.
type CExpIdent struct {
	Id  ids.Id
	Typ CTyp
}

// CLitKind discriminates C literal forms.
type CLitKind int

const (
	CLitInt CLitKind = iota
	CLitFloat
	CLitBool
	CLitChar
	CLitString
	CLitNull
)

// CExpLit is a literal.
type CExpLit struct {
	Kind CLitKind
	IVal int64
	FVal float64
	SVal string
	BVal bool
	Typ  CTyp
}

// CBinOp is a C binary operator.
type CBinOp int

const (
	COpAdd CBinOp = iota
	COpSub
	COpMul
	COpDiv
	COpMod
	COpShl
	COpShr
	COpBitAnd
	COpBitOr
	COpBitXor
	COpLogicAnd
	COpLogicOr
	COpEQ
	COpNE
	COpLT
	COpLE
	COpGT
	COpGE
	COpAssign
)

func (op CBinOp) String() string {
	names := []string{"+", "-", "*", "/", "%", "<<", ">>", "&", "|", "^",
		"&&", "||", "==", "!=", "<", "<=", ">", ">=", "="}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// CUnOp is a C unary operator.
type CUnOp int

const (
	COpNeg CUnOp = iota
	COpBitNot
	COpLogicNot
	COpDeref
	COpAddrOf
)

func (op CUnOp) String() string {
	names := []string{"-", "~", "!", "*", "&"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// CExpBinary is a binary operation.
type CExpBinary struct {
	Op    CBinOp
	Left  CExp
	Right CExp
	Typ   CTyp
}

// CExpUnary is a unary operation.
type CExpUnary struct {
	Op  CUnOp
	Arg CExp
	Typ CTyp
}

// CExpMem is member access a.f.
type CExpMem struct {
	Rec   CExp
	Field ids.Id
	Typ   CTyp
}

// CExpArrow is member access through a pointer, a->f.
type CExpArrow struct {
	Rec   CExp
	Field ids.Id
	Typ   CTyp
}

// CExpCast is a C cast.
type CExpCast struct {
	Arg CExp
	Typ CTyp
}

// CExpTernary is cond ? a : b.
type CExpTernary struct {
	Cond CExp
	Then CExp
	Else CExp
	Typ  CTyp
}

// CExpCall is a function or macro call.
type CExpCall struct {
	Fun  CExp
	Args []CExp
	Typ  CTyp
}

// CExpInit is a brace initializer { ... }.
type CExpInit struct {
	Elems []CExp
	Typ   CTyp
}

// CExpCCode is verbatim C text.
type CExpCCode struct {
	Code string
	Typ  CTyp
}

func (CExpIdent) implCExp()   {}
func (CExpLit) implCExp()     {}
func (CExpBinary) implCExp()  {}
func (CExpUnary) implCExp()   {}
func (CExpMem) implCExp()     {}
func (CExpArrow) implCExp()   {}
func (CExpCast) implCExp()    {}
func (CExpTernary) implCExp() {}
func (CExpCall) implCExp()    {}
func (CExpInit) implCExp()    {}
func (CExpCCode) implCExp()   {}

func (e CExpIdent) ExpTyp() CTyp   { return e.Typ }
func (e CExpLit) ExpTyp() CTyp     { return e.Typ }
func (e CExpBinary) ExpTyp() CTyp  { return e.Typ }
func (e CExpUnary) ExpTyp() CTyp   { return e.Typ }
func (e CExpMem) ExpTyp() CTyp     { return e.Typ }
func (e CExpArrow) ExpTyp() CTyp   { return e.Typ }
func (e CExpCast) ExpTyp() CTyp    { return e.Typ }
func (e CExpTernary) ExpTyp() CTyp { return e.Typ }
func (e CExpCall) ExpTyp() CTyp    { return e.Typ }
func (e CExpInit) ExpTyp() CTyp    { return e.Typ }
func (e CExpCCode) ExpTyp() CTyp   { return e.Typ }

// CStmt is the interface for C-form statements and top-level definitions.
type CStmt interface {
	implCStmt()
}

// CStmtExp is an expression statement.
type CStmtExp struct {
	Exp CExp
}

// CStmtBlock is a { ... } block.
type CStmtBlock struct {
	Stmts []CStmt
}

// CStmtIf is an if statement; Else may be nil.
type CStmtIf struct {
	Cond CExp
	Then CStmt
	Else CStmt
}

// CStmtFor is a C for loop; any of the three slots may be nil.
type CStmtFor struct {
	Init CStmt
	Cond CExp
	Step CExp
	Body CStmt
}

// CStmtWhile is a while loop.
type CStmtWhile struct {
	Cond CExp
	Body CStmt
}

// CStmtDoWhile is a do-while loop.
type CStmtDoWhile struct {
	Body CStmt
	Cond CExp
}

// CSwitchCase is one case of a switch.
type CSwitchCase struct {
	Value int64
	Body  []CStmt
}

// CStmtSwitch is a switch with an optional default.
type CStmtSwitch struct {
	Arg     CExp
	Cases   []CSwitchCase
	Default []CStmt
}

// CStmtBreak is break.
type CStmtBreak struct{}

// CStmtContinue is continue.
type CStmtContinue struct{}

// CStmtReturn is return; Value may be nil.
type CStmtReturn struct {
	Value CExp
}

// CStmtGoto is goto label.
type CStmtGoto struct {
	Label ids.Id
}

// CStmtLabel is label:.
type CStmtLabel struct {
	Label ids.Id
}

// CDefVal is a value declaration with an optional initializer.
type CDefVal struct {
	Name ids.Id
	Typ  CTyp
	Init CExp
	Loc  diag.Loc
}

// CDefFun is a function definition.
type CDefFun struct {
	Name   ids.Id
	Params []CField
	RetTyp CTyp
	Body   []CStmt
	Static bool
	Loc    diag.Loc
}

// CDefTyp is a named type declaration with its properties.
type CDefTyp struct {
	Name  ids.Id
	Typ   CTyp
	Props TypProps
	Loc   diag.Loc
}

// CEnumMember is one member of an enum with an explicit value.
type CEnumMember struct {
	Name  ids.Id
	Value int64
}

// CDefEnum is an enum declaration.
type CDefEnum struct {
	Name    ids.Id
	Members []CEnumMember
	Loc     diag.Loc
}

// CMacroDef is a #define.
type CMacroDef struct {
	Name   ids.Id
	Params []ids.Id
	Body   string
	Loc    diag.Loc
}

// CDefForward is a forward declaration of a struct tag or a function.
type CDefForward struct {
	Of  ids.Id
	Txt string
	Loc diag.Loc
}

// CInclude is an #include directive.
type CInclude struct {
	Header string
	System bool
}

// CPragma is a #pragma directive.
type CPragma struct {
	Text string
}

func (CStmtExp) implCStmt()      {}
func (CStmtBlock) implCStmt()    {}
func (CStmtIf) implCStmt()       {}
func (CStmtFor) implCStmt()      {}
func (CStmtWhile) implCStmt()    {}
func (CStmtDoWhile) implCStmt()  {}
func (CStmtSwitch) implCStmt()   {}
func (CStmtBreak) implCStmt()    {}
func (CStmtContinue) implCStmt() {}
func (CStmtReturn) implCStmt()   {}
func (CStmtGoto) implCStmt()     {}
func (CStmtLabel) implCStmt()    {}
func (*CDefVal) implCStmt()      {}
func (*CDefFun) implCStmt()      {}
func (*CDefTyp) implCStmt()      {}
func (*CDefEnum) implCStmt()     {}
func (*CMacroDef) implCStmt()    {}
func (*CDefForward) implCStmt()  {}
func (CInclude) implCStmt()      {}
func (CPragma) implCStmt()       {}

// Def is an entry of the C-form symbol table.
type Def interface {
	implCDef()
	DefName() ids.Id
}

func (*CDefVal) implCDef()     {}
func (*CDefFun) implCDef()     {}
func (*CDefTyp) implCDef()     {}
func (*CDefEnum) implCDef()    {}
func (*CMacroDef) implCDef()   {}
func (*CDefForward) implCDef() {}

func (d *CDefVal) DefName() ids.Id     { return d.Name }
func (d *CDefFun) DefName() ids.Id     { return d.Name }
func (d *CDefTyp) DefName() ids.Id     { return d.Name }
func (d *CDefEnum) DefName() ids.Id    { return d.Name }
func (d *CMacroDef) DefName() ids.Id   { return d.Name }
func (d *CDefForward) DefName() ids.Id { return d.Of }

// Pragmas is the per-unit build options record handed to the driver.
type Pragmas struct {
	Cpp   bool     // force C++ compilation
	Clibs []string // required -l names
}

// Unit is the generated C-form for one module: forward declarations first,
// then type declarations, then type utility functions, then values and
// functions.
type Unit struct {
	Name    ids.Id
	Stmts   []CStmt
	Pragmas Pragmas
	Main    bool
}

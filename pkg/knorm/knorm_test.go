package knorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

func testNorm() (*symtab.Compilation, *Normalizer) {
	c := symtab.New()
	mod := c.NewVal("Main")
	return c, New(c, mod)
}

func intLit(v int64) ast.Exp {
	return ast.ExpLit{Lit: ast.LitInt{Value: v}, Ctx: ast.Ctx{Typ: ast.TypInt{}}}
}

func intIdent(id ids.Id) ast.Exp {
	return ast.ExpIdent{Id: id, Ctx: ast.Ctx{Typ: ast.TypInt{}}}
}

func strIdent(id ids.Id) ast.Exp {
	return ast.ExpIdent{Id: id, Ctx: ast.Ctx{Typ: ast.TypString{}}}
}

func boolCtx() ast.Ctx { return ast.Ctx{Typ: ast.TypBool{}} }

func TestLogicalAndBecomesIf(t *testing.T) {
	c, n := testNorm()
	a, b := c.NewVal("a"), c.NewVal("b")
	e := ast.ExpBinary{
		Op:    ast.OpLogicAnd,
		Left:  ast.ExpIdent{Id: a, Ctx: boolCtx()},
		Right: ast.ExpIdent{Id: b, Ctx: boolCtx()},
		Ctx:   boolCtx(),
	}

	ke, code, err := n.exp(e, nil)
	require.NoError(t, err)
	assert.Empty(t, code)

	ifE, ok := ke.(kform.KExpIf)
	require.True(t, ok, "&& must lower to a conditional, got %T", ke)
	els, ok := ifE.Else.(kform.KExpAtom)
	require.True(t, ok)
	assert.Equal(t, kform.AtomLit{Lit: ast.LitBool{Value: false}}, els.Atom)
}

func TestLogicalOrBecomesIf(t *testing.T) {
	c, n := testNorm()
	a, b := c.NewVal("a"), c.NewVal("b")
	e := ast.ExpBinary{
		Op:    ast.OpLogicOr,
		Left:  ast.ExpIdent{Id: a, Ctx: boolCtx()},
		Right: ast.ExpIdent{Id: b, Ctx: boolCtx()},
		Ctx:   boolCtx(),
	}

	ke, _, err := n.exp(e, nil)
	require.NoError(t, err)
	ifE := ke.(kform.KExpIf)
	then, ok := ifE.Then.(kform.KExpAtom)
	require.True(t, ok)
	assert.Equal(t, kform.AtomLit{Lit: ast.LitBool{Value: true}}, then.Atom)
}

func TestStringConcatIntrinsic(t *testing.T) {
	tests := []struct {
		name  string
		left  ast.Typ
		right ast.Typ
		want  bool
	}{
		{"string+string", ast.TypString{}, ast.TypString{}, true},
		{"string+char", ast.TypString{}, ast.TypChar{}, true},
		{"char+string", ast.TypChar{}, ast.TypString{}, true},
		{"int+int", ast.TypInt{}, ast.TypInt{}, false},
		{"char+char", ast.TypChar{}, ast.TypChar{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, n := testNorm()
			a, b := c.NewVal("a"), c.NewVal("b")
			e := ast.ExpBinary{
				Op:    ast.OpAdd,
				Left:  ast.ExpIdent{Id: a, Ctx: ast.Ctx{Typ: tt.left}},
				Right: ast.ExpIdent{Id: b, Ctx: ast.Ctx{Typ: tt.right}},
				Ctx:   ast.Ctx{Typ: ast.TypString{}},
			}
			ke, _, err := n.exp(e, nil)
			require.NoError(t, err)
			in, isIntrin := ke.(kform.KExpIntrin)
			if tt.want {
				require.True(t, isIntrin)
				assert.Equal(t, kform.IntrinStrConcat, in.Op)
			} else {
				assert.False(t, isIntrin)
			}
		})
	}
}

func TestOperandsAreAtomized(t *testing.T) {
	_, n := testNorm()
	// (1 + 2) * 3
	inner := ast.ExpBinary{Op: ast.OpAdd, Left: intLit(1), Right: intLit(2), Ctx: ast.Ctx{Typ: ast.TypInt{}}}
	outer := ast.ExpBinary{Op: ast.OpMul, Left: inner, Right: intLit(3), Ctx: ast.Ctx{Typ: ast.TypInt{}}}

	ke, code, err := n.exp(outer, nil)
	require.NoError(t, err)
	require.Len(t, code, 1)

	dv, ok := code[0].(*kform.KDefVal)
	require.True(t, ok)
	assert.True(t, dv.Name.IsTemp())

	bin := ke.(kform.KExpBinary)
	left, ok := bin.Left.(kform.AtomId)
	require.True(t, ok, "the inner expression must be bound to a temporary")
	assert.Equal(t, dv.Name.Key(), left.Id.Key())
}

func TestValTupleUnpack(t *testing.T) {
	c, n := testNorm()
	p := c.NewVal("p")
	x, y := c.NewVal("x"), c.NewVal("y")
	pairTyp := ast.TypTuple{Elems: []ast.Typ{ast.TypInt{}, ast.TypInt{}}}

	dv := ast.DefVal{
		Pat: ast.PatTuple{Elems: []ast.Pat{ast.PatIdent{Id: x}, ast.PatIdent{Id: y}}},
		Init: ast.ExpIdent{Id: p, Ctx: ast.Ctx{Typ: pairTyp}},
	}
	code, err := n.stmt(dv, nil)
	require.NoError(t, err)
	require.Len(t, code, 2)

	dx := code[0].(*kform.KDefVal)
	dy := code[1].(*kform.KDefVal)
	assert.Equal(t, x.Key(), dx.Name.Key())
	assert.Equal(t, y.Key(), dy.Name.Key())
	mem := dx.Rhs.(kform.KExpMem)
	assert.Equal(t, 0, mem.Idx)
}

func TestValRefutablePatternRejected(t *testing.T) {
	c, n := testNorm()
	dv := ast.DefVal{
		Pat:  ast.PatLit{Lit: ast.LitInt{Value: 1}},
		Init: intLit(1),
	}
	_, err := n.stmt(dv, nil)
	require.Error(t, err)
	assert.Equal(t, 1, c.Errs.Len())
}

func TestValWildcardKeepsSideEffects(t *testing.T) {
	c, n := testNorm()
	f := c.NewVal("f")
	require.NoError(t, c.SetAstInfo(f, ast.FunInfo{
		Name: f,
		Typ:  ast.TypFun{Ret: ast.TypVoid{}},
	}))
	call := ast.ExpCall{
		Fun:  ast.ExpIdent{Id: f, Ctx: ast.Ctx{Typ: ast.TypFun{Ret: ast.TypVoid{}}}},
		Ctx:  ast.Ctx{Typ: ast.TypVoid{}},
	}
	dv := ast.DefVal{Pat: ast.PatAny{}, Init: call}
	code, err := n.stmt(dv, nil)
	require.NoError(t, err)
	require.Len(t, code, 1)
	_, isCall := code[0].(kform.KExpCall)
	assert.True(t, isCall, "the initializer is retained for its side effects")
}

func TestAssignMarksMutable(t *testing.T) {
	c, n := testNorm()
	x := c.NewVal("x")
	dv := &kform.KDefVal{Name: x, Rhs: kform.KExpNop{}, Typ: kform.KTypInt{}}
	require.NoError(t, c.SetKInfo(x, dv))

	e := ast.ExpAssign{
		LHS: intIdent(x),
		RHS: intLit(5),
		Ctx: ast.Ctx{Typ: ast.TypVoid{}},
	}
	ke, _, err := n.exp(e, nil)
	require.NoError(t, err)
	as := ke.(kform.KExpAssign)
	assert.Equal(t, x.Key(), as.LHS.Key())
	assert.True(t, dv.Flags.Mutable)
}

func TestAssignToArrayElementMarksSubarray(t *testing.T) {
	c, n := testNorm()
	a := c.NewVal("a")
	da := &kform.KDefVal{Name: a, Rhs: kform.KExpNop{}, Typ: kform.KTypArray{Dims: 1, Elem: kform.KTypInt{}}}
	require.NoError(t, c.SetKInfo(a, da))

	arrTyp := ast.TypArray{Dims: 1, Elem: ast.TypInt{}}
	e := ast.ExpAssign{
		LHS: ast.ExpAt{
			Arr:  ast.ExpIdent{Id: a, Ctx: ast.Ctx{Typ: arrTyp}},
			Idxs: []ast.Exp{intLit(0)},
			Ctx:  ast.Ctx{Typ: ast.TypInt{}},
		},
		RHS: intLit(7),
		Ctx: ast.Ctx{Typ: ast.TypVoid{}},
	}
	ke, code, err := n.exp(e, nil)
	require.NoError(t, err)
	assert.True(t, da.Flags.Mutable)
	assert.True(t, da.Flags.SubArray)

	as := ke.(kform.KExpAssign)
	var target *kform.KDefVal
	for _, s := range code {
		if d, ok := s.(*kform.KDefVal); ok && d.Name.Key() == as.LHS.Key() {
			target = d
		}
	}
	require.NotNil(t, target)
	assert.True(t, target.Flags.SubArray)
	assert.True(t, target.Flags.TempRef)
}

func TestMatchOnMutableCopiesScrutinee(t *testing.T) {
	c, n := testNorm()
	x := c.NewVal("x")
	require.NoError(t, c.SetAstInfo(x, ast.ValInfo{
		Name: x, Typ: ast.TypInt{}, Flags: ast.ValFlags{Mutable: true},
	}))

	e := ast.ExpMatch{
		Arg: intIdent(x),
		Cases: []ast.MatchCase{
			{Pats: []ast.Pat{ast.PatLit{Lit: ast.LitInt{Value: 1}}}, Body: intLit(2)},
			{Pats: []ast.Pat{ast.PatAny{}}, Body: intLit(3)},
		},
		Ctx: ast.Ctx{Typ: ast.TypInt{}},
	}
	ke, code, err := n.exp(e, nil)
	require.NoError(t, err)
	require.Len(t, code, 1, "the mutable scrutinee is copied into a fresh temporary first")
	cp := code[0].(*kform.KDefVal)
	assert.True(t, cp.Name.IsTemp())
	assert.False(t, cp.Flags.Mutable)

	m := ke.(kform.KExpMatch)
	require.Len(t, m.Cases, 2)
	assert.Len(t, m.Cases[0].Checks, 1)
	assert.Empty(t, m.Cases[1].Checks)
}

func TestUnreachableCaseIsError(t *testing.T) {
	c, n := testNorm()
	e := ast.ExpMatch{
		Arg: intLit(1),
		Cases: []ast.MatchCase{
			{Pats: []ast.Pat{ast.PatAny{}}, Body: intLit(1)},
			{Pats: []ast.Pat{ast.PatLit{Lit: ast.LitInt{Value: 2}}}, Body: intLit(2)},
		},
		Ctx: ast.Ctx{Typ: ast.TypInt{}},
	}
	_, _, err := n.exp(e, nil)
	require.Error(t, err)
	assert.Equal(t, 1, c.Errs.Len())
}

func TestNonExhaustiveMatchThrowsNoMatchError(t *testing.T) {
	c, n := testNorm()
	e := ast.ExpMatch{
		Arg: intLit(1),
		Cases: []ast.MatchCase{
			{Pats: []ast.Pat{ast.PatLit{Lit: ast.LitInt{Value: 1}}}, Body: intLit(2)},
		},
		Ctx: ast.Ctx{Typ: ast.TypInt{}},
	}
	ke, _, err := n.exp(e, nil)
	require.NoError(t, err)
	m := ke.(kform.KExpMatch)
	require.Len(t, m.Cases, 2)
	thr, ok := m.Cases[1].Body.(kform.KExpThrow)
	require.True(t, ok)
	assert.False(t, thr.Rethrow)
	assert.Equal(t, c.NoMatchError.Key(), thr.Exn.Key())
}

func TestRecordDefaults(t *testing.T) {
	recTyp := ast.TypRecord{Fields: []ast.RecField{
		{Name: ids.Val("a", 100), Typ: ast.TypInt{}},
		{Name: ids.Val("b", 101), Typ: ast.TypInt{}, Default: intLit(0)},
	}}

	t.Run("missing field with default is filled", func(t *testing.T) {
		_, n := testNorm()
		e := ast.ExpMkRecord{
			Fields: []ast.FieldInit{{Name: ids.Val("a", 100), Exp: intLit(1)}},
			Ctx:    ast.Ctx{Typ: recTyp},
		}
		ke, _, err := n.exp(e, nil)
		require.NoError(t, err)
		mk := ke.(kform.KExpMkRecord)
		assert.Len(t, mk.Fields, 2)
	})

	t.Run("missing field without default is an error", func(t *testing.T) {
		c, n := testNorm()
		e := ast.ExpMkRecord{
			Fields: []ast.FieldInit{{Name: ids.Val("b", 101), Exp: intLit(1)}},
			Ctx:    ast.Ctx{Typ: recTyp},
		}
		_, _, err := n.exp(e, nil)
		require.Error(t, err)
		assert.Equal(t, 1, c.Errs.Len())
	})
}

func TestKeywordCallExpansion(t *testing.T) {
	c, n := testNorm()
	f := c.NewVal("draw")
	require.NoError(t, c.SetAstInfo(f, ast.FunInfo{
		Name:  f,
		Typ:   ast.TypFun{Args: []ast.Typ{ast.TypInt{}, ast.TypInt{}}, Ret: ast.TypVoid{}},
		Flags: ast.FunFlags{HasKeywords: true},
	}))

	kwRec := ast.ExpMkRecord{
		Fields: []ast.FieldInit{
			{Name: ids.Val("w", 200), Exp: intLit(10)},
			{Name: ids.Val("h", 201), Exp: intLit(20)},
		},
		Ctx: ast.Ctx{Typ: ast.TypRecord{}},
	}
	e := ast.ExpCall{
		Fun:  ast.ExpIdent{Id: f, Ctx: ast.Ctx{Typ: ast.TypFun{Ret: ast.TypVoid{}}}},
		Args: []ast.Exp{intLit(1), kwRec},
		Ctx:  ast.Ctx{Typ: ast.TypVoid{}},
	}
	ke, _, err := n.exp(e, nil)
	require.NoError(t, err)
	call := ke.(kform.KExpCall)
	assert.Len(t, call.Args, 3, "the trailing record fields become positional arguments")
}

func TestTryCatchPopsException(t *testing.T) {
	c, n := testNorm()
	fail := c.NewVal("Fail")
	require.NoError(t, n.declareTypeDef(ast.DefExn{Name: fail, Typ: ast.TypString{}}))
	de := c.KInfoOrNil(fail).(*kform.KDefExn)
	msg := c.NewVal("msg")

	e := ast.ExpTry{
		Body: intLit(1),
		Cases: []ast.MatchCase{
			{
				Pats: []ast.Pat{ast.PatVariant{Ctor: fail, Args: []ast.Pat{ast.PatIdent{Id: msg}}}},
				Body: intLit(0),
			},
		},
		Ctx: ast.Ctx{Typ: ast.TypInt{}},
	}
	require.False(t, de.Ctor.IsNone())

	ke, _, err := n.exp(e, nil)
	require.NoError(t, err)
	tc := ke.(kform.KExpTryCatch)

	seq := tc.Handler.(kform.KExpSeq)
	pop := seq.Exps[0].(*kform.KDefVal)
	intr := pop.Rhs.(kform.KExpIntrin)
	assert.Equal(t, kform.IntrinPopExn, intr.Op)

	m := seq.Exps[1].(kform.KExpMatch)
	require.Len(t, m.Cases, 2)
	thr := m.Cases[1].Body.(kform.KExpThrow)
	assert.True(t, thr.Rethrow, "catch-mode fallthrough rethrows")
	assert.Equal(t, pop.Name.Key(), thr.Exn.Key())
}

func TestComprehensionStages(t *testing.T) {
	c, n := testNorm()
	i, j := c.NewVal("i"), c.NewVal("j")
	rng := func(begin, end ast.Exp) ast.Exp {
		return ast.ExpRange{Begin: begin, End: end, Ctx: ast.Ctx{Typ: ast.TypInt{}}}
	}
	tupTyp := ast.TypTuple{Elems: []ast.Typ{ast.TypInt{}, ast.TypInt{}}}

	// [for i <- 0:10 for j <- i:10 when i != j {(i, j)}]
	e := ast.ExpMap{
		Stages: []ast.ForStage{
			{Clauses: []ast.ForClause{{Pat: ast.PatIdent{Id: i}, Domain: rng(intLit(0), intLit(10))}}},
			{Clauses: []ast.ForClause{{
				Pat: ast.PatWhen{
					Pat: ast.PatIdent{Id: j},
					Guard: ast.ExpBinary{Op: ast.OpCmpNE, Left: intIdent(i), Right: intIdent(j), Ctx: boolCtx()},
				},
				Domain: rng(intIdent(i), intLit(10)),
			}}},
		},
		Body:     ast.ExpMkTuple{Elems: []ast.Exp{intIdent(i), intIdent(j)}, Ctx: ast.Ctx{Typ: tupTyp}},
		MakeList: true,
		Ctx:      ast.Ctx{Typ: ast.TypList{Elem: tupTyp}},
	}

	ke, _, err := n.exp(e, nil)
	require.NoError(t, err)
	m := ke.(kform.KExpMap)
	assert.True(t, m.MakeList)
	require.Len(t, m.Stages, 2, "the source nesting is preserved as clause stages")
	assert.Equal(t, i.Key(), m.Stages[0].Clauses[0].Var.Key())
	assert.Equal(t, j.Key(), m.Stages[1].Clauses[0].Var.Key())

	// the when-guard becomes an if/continue at the top of the body
	seq, ok := m.Body.(kform.KExpSeq)
	require.True(t, ok)
	guard, ok := seq.Exps[0].(kform.KExpIf)
	require.True(t, ok)
	_, isCont := guard.Else.(kform.KExpContinue)
	assert.True(t, isCont)
}

func TestReverseIndexUsesSizeIntrinsic(t *testing.T) {
	c, n := testNorm()
	a := c.NewVal("a")
	arrTyp := ast.TypArray{Dims: 1, Elem: ast.TypInt{}}

	e := ast.ExpAt{
		Arr: ast.ExpIdent{Id: a, Ctx: ast.Ctx{Typ: arrTyp}},
		Idxs: []ast.Exp{
			ast.ExpRevIndex{Arg: intLit(1), Ctx: ast.Ctx{Typ: ast.TypInt{}}},
		},
		Ctx: ast.Ctx{Typ: ast.TypInt{}},
	}
	ke, code, err := n.exp(e, nil)
	require.NoError(t, err)

	// size(a, 0) is computed into a temporary, then size - 1 is the index
	var sizeDef *kform.KDefVal
	for _, s := range code {
		if d, ok := s.(*kform.KDefVal); ok {
			if in, ok := d.Rhs.(kform.KExpIntrin); ok && in.Op == kform.IntrinGetSize {
				sizeDef = d
			}
		}
	}
	require.NotNil(t, sizeDef, "GET_SIZE must be emitted for the reverse index")

	at := ke.(kform.KExpAt)
	require.Len(t, at.Idxs, 1)
}

func TestReverseIndexOutsideIndexIsError(t *testing.T) {
	c, n := testNorm()
	e := ast.ExpRevIndex{Arg: intLit(1), Ctx: ast.Ctx{Typ: ast.TypInt{}}}
	_, _, err := n.exp(e, nil)
	require.Error(t, err)
	assert.Equal(t, 1, c.Errs.Len())
}

func TestSingleCaseRecordVariantBecomesTyp(t *testing.T) {
	c, n := testNorm()
	pt := c.NewVal("point")
	def := ast.DefVariant{
		Name: pt,
		Cases: []ast.VariantCase{{
			Name: ids.Val("point", pt.Num),
			Typ: ast.TypRecord{Fields: []ast.RecField{
				{Name: ids.Val("x", 300), Typ: ast.TypInt{}},
				{Name: ids.Val("y", 301), Typ: ast.TypInt{}},
			}},
		}},
	}
	require.NoError(t, n.declareTypeDef(def))

	dt, ok := c.KInfoOrNil(pt).(*kform.KDefTyp)
	require.True(t, ok, "a single-case record variant lowers to a named record type")
	rec, ok := dt.Typ.(kform.KTypRecord)
	require.True(t, ok)
	assert.Len(t, rec.Fields, 2)
	assert.Equal(t, pt.Key(), rec.Name.Key())
}

func TestVariantCaseRecordsAreLifted(t *testing.T) {
	c, n := testNorm()
	v := c.NewVal("shape")
	def := ast.DefVariant{
		Name: v,
		Cases: []ast.VariantCase{
			{Name: ids.Name("Circle"), Typ: ast.TypRecord{Fields: []ast.RecField{
				{Name: ids.Val("r", 400), Typ: ast.TypInt{}},
			}}},
			{Name: ids.Name("Empty"), Typ: ast.TypVoid{}},
		},
	}
	require.NoError(t, n.declareTypeDef(def))

	dv := c.KInfoOrNil(v).(*kform.KDefVariant)
	name, ok := dv.Cases[0].Typ.(kform.KTypName)
	require.True(t, ok, "the embedded record is lifted to a named record")
	_, isRec := c.KInfoOrNil(name.Id).(*kform.KDefTyp)
	assert.True(t, isRec)
}

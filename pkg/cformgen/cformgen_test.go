package cformgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

func testGen() (*symtab.Compilation, *Generator) {
	c := symtab.New()
	return c, New(c)
}

func findTyp(decls *Declarations, key int) *cform.CDefTyp {
	for _, s := range decls.Types {
		if d, ok := s.(*cform.CDefTyp); ok && d.Name.Key() == key {
			return d
		}
	}
	return nil
}

func findFn(decls *Declarations, key int) *cform.CDefFun {
	for _, s := range decls.Utils {
		if d, ok := s.(*cform.CDefFun); ok && d.Name.Key() == key {
			return d
		}
	}
	return nil
}

// scenario: val x = (1, 2.0, "hi") -- a single named tuple struct
// {int_ t0; double t1; fx_str_t t2;} whose destructor frees t2 only.
func TestTupleStructAndDestructor(t *testing.T) {
	c, g := testGen()
	tid := c.NewVal("T3idS")
	dt := &kform.KDefTyp{
		Name: tid,
		Typ: kform.KTypTuple{Elems: []kform.KTyp{
			kform.KTypInt{}, kform.KTypFloat{Bits: 64}, kform.KTypString{},
		}},
		CName: "_fx_T3idS",
	}
	require.NoError(t, c.SetKInfo(tid, dt))

	mod := &kform.Module{Name: c.NewVal("Main"), Stmts: []kform.KExp{dt}}
	decls, err := g.GenerateTypes(mod)
	require.NoError(t, err)

	cd := findTyp(decls, tid.Key())
	require.NotNil(t, cd)
	st, ok := cd.Typ.(cform.CTypStruct)
	require.True(t, ok)
	require.Len(t, st.Fields, 3)
	assert.Equal(t, "int_", st.Fields[0].Typ.String())
	assert.Equal(t, "double", st.Fields[1].Typ.String())
	assert.Equal(t, "fx_str_t", st.Fields[2].Typ.String())

	assert.True(t, cd.Props.Complex)
	assert.False(t, cd.Props.Ptr)

	free := findFn(decls, cd.Props.FreeFn.Key())
	require.NotNil(t, free)
	require.Len(t, free.Body, 1, "only the string field needs destruction")
	callStmt := free.Body[0].(cform.CStmtExp)
	callE := callStmt.Exp.(cform.CExpCall)
	assert.Equal(t, "FX_FREE_STR", callE.Fun.(cform.CExpIdent).Id.Prefix)
}

// scenario: type tree = Leaf | Node: (int, tree, tree) -- recursive
// variant: forward declaration first, pointer struct with rc first,
// companion enum Leaf=1 Node=2, decref-then-free destructor.
func TestRecursiveVariant(t *testing.T) {
	c, g := testGen()
	tree := c.NewVal("tree")
	leaf, node := c.NewVal("Leaf"), c.NewVal("Node")
	dv := &kform.KDefVariant{
		Name: tree,
		Cases: []kform.KVariantCase{
			{Name: leaf, Typ: kform.KTypVoid{}},
			{Name: node, Typ: kform.KTypTuple{Elems: []kform.KTyp{
				kform.KTypInt{}, kform.KTypName{Id: tree}, kform.KTypName{Id: tree},
			}}},
		},
		Ctors:     []ids.Id{leaf, node},
		Recursive: true,
		CName:     "_fx_N4tree",
	}
	require.NoError(t, c.SetKInfo(tree, dv))

	// the Node payload tuple is materialized before C-form generation
	ptid := c.NewVal("payload")
	pt := &kform.KDefTyp{
		Name: ptid,
		Typ: kform.KTypTuple{Elems: []kform.KTyp{
			kform.KTypInt{}, kform.KTypName{Id: tree}, kform.KTypName{Id: tree},
		}},
		CName: "_fx_T3iN4treeN4tree",
	}
	require.NoError(t, c.SetKInfo(ptid, pt))
	dv.Cases[1].Typ = kform.KTypName{Id: ptid}

	mod := &kform.Module{Name: c.NewVal("Main"), Stmts: []kform.KExp{dv, pt}}
	decls, err := g.GenerateTypes(mod)
	require.NoError(t, err)

	// forward declarations exist for the struct tag and the destructor
	require.NotEmpty(t, decls.Fwd)
	fwd := decls.Fwd[0].(*cform.CDefForward)
	assert.Equal(t, tree.Key(), fwd.Of.Key())
	assert.Contains(t, fwd.Txt, "_fx_N4tree_data_t")

	cd := findTyp(decls, tree.Key())
	require.NotNil(t, cd)
	assert.True(t, cd.Props.Ptr)
	assert.True(t, cd.Props.Complex)

	ptr, ok := cd.Typ.(cform.CTypRawPtr)
	require.True(t, ok, "a recursive variant is reached via a pointer")
	st := ptr.Elem.(cform.CTypStruct)
	assert.Equal(t, "rc", st.Fields[0].Name.Prefix, "rc is the first field")

	// companion enum Leaf=1, Node=2
	var enum *cform.CDefEnum
	for _, s := range decls.Types {
		if e, ok := s.(*cform.CDefEnum); ok {
			enum = e
		}
	}
	require.NotNil(t, enum)
	require.Len(t, enum.Members, 2)
	assert.Equal(t, int64(1), enum.Members[0].Value)
	assert.Equal(t, int64(2), enum.Members[1].Value)

	// destructor uses the decref-then-free pattern
	free := findFn(decls, cd.Props.FreeFn.Key())
	require.NotNil(t, free)
	hasIf := false
	for _, s := range free.Body {
		if _, ok := s.(cform.CStmtIf); ok {
			hasIf = true
		}
	}
	assert.True(t, hasIf, "the destructor checks the refcount before freeing")
}

// scenario: type intopt = Some:int | None -- two-case recursive variant
// with a nil case: no tag field, the payload is stored directly.
func TestNullableCaseVariant(t *testing.T) {
	c, g := testGen()
	opt := c.NewVal("intopt")
	some, none := c.NewVal("Some"), c.NewVal("None")
	dv := &kform.KDefVariant{
		Name: opt,
		Cases: []kform.KVariantCase{
			{Name: some, Typ: kform.KTypInt{}},
			{Name: none, Typ: kform.KTypVoid{}},
		},
		Ctors:     []ids.Id{some, none},
		Recursive: true,
		Option:    true,
		CName:     "_fx_N6intopt",
	}
	require.NoError(t, c.SetKInfo(opt, dv))

	mod := &kform.Module{Name: c.NewVal("Main"), Stmts: []kform.KExp{dv}}
	decls, err := g.GenerateTypes(mod)
	require.NoError(t, err)

	cd := findTyp(decls, opt.Key())
	require.NotNil(t, cd)
	ptr := cd.Typ.(cform.CTypRawPtr)
	st := ptr.Elem.(cform.CTypStruct)
	require.Len(t, st.Fields, 2, "rc and the direct payload; no tag")
	assert.Equal(t, "rc", st.Fields[0].Name.Prefix)
	assert.Equal(t, "data", st.Fields[1].Name.Prefix)
}

// boundary: a variant with exactly one case and void payload produces a
// struct with no tag, no union and no destructor.
func TestSingleVoidCaseVariant(t *testing.T) {
	c, g := testGen()
	u := c.NewVal("unitlike")
	dv := &kform.KDefVariant{
		Name:  u,
		Cases: []kform.KVariantCase{{Name: ids.Name("U"), Typ: kform.KTypVoid{}}},
		Ctors: []ids.Id{c.NewVal("U")},
		CName: "_fx_N8unitlike",
	}
	require.NoError(t, c.SetKInfo(u, dv))

	mod := &kform.Module{Name: c.NewVal("Main"), Stmts: []kform.KExp{dv}}
	decls, err := g.GenerateTypes(mod)
	require.NoError(t, err)

	cd := findTyp(decls, u.Key())
	require.NotNil(t, cd)
	st := cd.Typ.(cform.CTypStruct)
	assert.Empty(t, st.Fields)
	assert.False(t, cd.Props.Complex)
	assert.True(t, cd.Props.FreeFn.IsNone())
	assert.Empty(t, decls.Utils)
}

func TestListCellLayout(t *testing.T) {
	c, g := testGen()
	li := c.NewVal("Li")
	dt := &kform.KDefTyp{Name: li, Typ: kform.KTypList{Elem: kform.KTypInt{}}, CName: "_fx_Li"}
	require.NoError(t, c.SetKInfo(li, dt))

	mod := &kform.Module{Name: c.NewVal("Main"), Stmts: []kform.KExp{dt}}
	decls, err := g.GenerateTypes(mod)
	require.NoError(t, err)

	cd := findTyp(decls, li.Key())
	require.NotNil(t, cd)
	assert.True(t, cd.Props.Ptr)
	ptr := cd.Typ.(cform.CTypRawPtr)
	st := ptr.Elem.(cform.CTypStruct)
	require.Len(t, st.Fields, 3)
	assert.Equal(t, "rc", st.Fields[0].Name.Prefix)
	assert.Equal(t, "tl", st.Fields[1].Name.Prefix)
	assert.Equal(t, "hd", st.Fields[2].Name.Prefix)
}

func TestExceptionTagsDecrement(t *testing.T) {
	c, g := testGen()
	e1, e2 := c.NewVal("AError"), c.NewVal("BError")
	d1 := &kform.KDefExn{Name: e1, Typ: kform.KTypVoid{}, CName: "FX_EXN_AError"}
	d2 := &kform.KDefExn{Name: e2, Typ: kform.KTypVoid{}, CName: "FX_EXN_BError"}
	require.NoError(t, c.SetKInfo(e1, d1))
	require.NoError(t, c.SetKInfo(e2, d2))

	mod := &kform.Module{Name: c.NewVal("Main"), Stmts: []kform.KExp{d1, d2}}
	decls, err := g.GenerateTypes(mod)
	require.NoError(t, err)

	var macros []*cform.CMacroDef
	for _, s := range decls.Types {
		if md, ok := s.(*cform.CMacroDef); ok {
			macros = append(macros, md)
		}
	}
	require.Len(t, macros, 2)
	assert.Equal(t, "-1024", macros[0].Body)
	assert.Equal(t, "-1025", macros[1].Body)
}

func TestStructuralTypeInCgenIsInternalError(t *testing.T) {
	c, g := testGen()
	_, _, err := g.Ktyp2Ctyp(kform.KTypTuple{Elems: []kform.KTyp{kform.KTypInt{}}}, diag.NoLoc)
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))

	_, _, err = g.Ktyp2Ctyp(kform.KTypErr{}, diag.NoLoc)
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))
	_ = c
}

func TestDeadTypeElimination(t *testing.T) {
	c, g := testGen()

	used := c.NewVal("used_t")
	du := &kform.KDefTyp{Name: used, Typ: kform.KTypTuple{Elems: []kform.KTyp{
		kform.KTypInt{}, kform.KTypString{},
	}}, CName: "_fx_T2iS"}
	require.NoError(t, c.SetKInfo(used, du))

	dead := c.NewVal("dead_t")
	dd := &kform.KDefTyp{Name: dead, Typ: kform.KTypTuple{Elems: []kform.KTyp{
		kform.KTypString{}, kform.KTypString{},
	}}, CName: "_fx_Ta2S"}
	require.NoError(t, c.SetKInfo(dead, dd))

	mod := &kform.Module{Name: c.NewVal("Main"), Stmts: []kform.KExp{du, dd}}
	decls, err := g.GenerateTypes(mod)
	require.NoError(t, err)

	// a user function references only used_t
	usedName := cid(used, du.CName)
	userFn := &cform.CDefFun{
		Name:   c.NewVal("main"),
		RetTyp: cform.CTypInt{Bits: 32},
		Body: []cform.CStmt{
			&cform.CDefVal{Name: ids.Name("v"), Typ: cform.CTypName{Id: usedName}},
			cform.CStmtReturn{Value: cform.CExpLit{Kind: cform.CLitInt, Typ: cform.CTypInt{}}},
		},
	}

	all := append(append(append([]cform.CStmt{}, decls.Fwd...), decls.Types...), decls.Utils...)
	all = append(all, userFn)

	kept, err := g.ElimDeadTypes(all)
	require.NoError(t, err)

	keptUsed, keptDead := false, false
	for _, s := range kept {
		if d, ok := s.(*cform.CDefTyp); ok {
			switch d.Name.Key() {
			case used.Key():
				keptUsed = true
			case dead.Key():
				keptDead = true
			}
		}
	}
	assert.True(t, keptUsed)
	assert.False(t, keptDead, "unreferenced types are dropped")
}

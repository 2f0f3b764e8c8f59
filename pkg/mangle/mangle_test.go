package mangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

func testMangler() (*symtab.Compilation, *Mangler) {
	c := symtab.New()
	mod := c.NewVal("Main")
	return c, New(c, mod)
}

func TestSignatureEncoding(t *testing.T) {
	tests := []struct {
		name string
		typ  kform.KTyp
		want string
	}{
		{"int", kform.KTypInt{}, "i"},
		{"int8", kform.KTypSInt{Bits: 8}, "c"},
		{"int16", kform.KTypSInt{Bits: 16}, "s"},
		{"int32", kform.KTypSInt{Bits: 32}, "n"},
		{"int64", kform.KTypSInt{Bits: 64}, "l"},
		{"uint8", kform.KTypUInt{Bits: 8}, "b"},
		{"uint16", kform.KTypUInt{Bits: 16}, "w"},
		{"uint32", kform.KTypUInt{Bits: 32}, "u"},
		{"uint64", kform.KTypUInt{Bits: 64}, "q"},
		{"float16", kform.KTypFloat{Bits: 16}, "h"},
		{"float32", kform.KTypFloat{Bits: 32}, "f"},
		{"float64", kform.KTypFloat{Bits: 64}, "d"},
		{"void", kform.KTypVoid{}, "v"},
		{"bool", kform.KTypBool{}, "B"},
		{"char", kform.KTypChar{}, "C"},
		{"string", kform.KTypString{}, "S"},
		{"cptr", kform.KTypCPtr{}, "p"},
		{"exn", kform.KTypExn{}, "E"},
		{"mixed tuple", kform.KTypTuple{Elems: []kform.KTyp{
			kform.KTypInt{}, kform.KTypFloat{Bits: 64}, kform.KTypString{},
		}}, "T3idS"},
		{"uniform tuple", kform.KTypTuple{Elems: []kform.KTyp{
			kform.KTypInt{}, kform.KTypInt{}, kform.KTypInt{},
		}}, "Ta3i"},
		{"list", kform.KTypList{Elem: kform.KTypInt{}}, "Li"},
		{"ref", kform.KTypRef{Elem: kform.KTypString{}}, "rS"},
		{"array", kform.KTypArray{Dims: 2, Elem: kform.KTypFloat{Bits: 32}}, "A2f"},
		{"fun", kform.KTypFun{
			Args: []kform.KTyp{kform.KTypInt{}, kform.KTypBool{}},
			Ret:  kform.KTypString{},
		}, "FPS2iB"},
		{"nested list of tuples", kform.KTypList{Elem: kform.KTypTuple{Elems: []kform.KTyp{
			kform.KTypInt{}, kform.KTypInt{},
		}}}, "LTa2i"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, m := testMangler()
			got, err := m.Signature(tt.typ, diag.NoLoc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignatureIsPure(t *testing.T) {
	_, m := testMangler()
	typ := kform.KTypTuple{Elems: []kform.KTyp{kform.KTypInt{}, kform.KTypString{}}}
	a, err := m.Signature(typ, diag.NoLoc)
	require.NoError(t, err)
	b, err := m.Signature(typ, diag.NoLoc)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestZeroTupleIsInternalError(t *testing.T) {
	_, m := testMangler()
	_, err := m.Signature(kform.KTypTuple{}, diag.NoLoc)
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))
}

func TestKTypErrIsInternalError(t *testing.T) {
	_, m := testMangler()
	_, err := m.Signature(kform.KTypErr{}, diag.NoLoc)
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))
}

func TestVariantSignatureUsesQualifiedName(t *testing.T) {
	c, m := testMangler()
	v := c.NewVal("tree")
	dv := &kform.KDefVariant{Name: v, Scope: ast.ScopePath{ids.Val("MyMod", 0)}}
	require.NoError(t, c.SetKInfo(v, dv))

	got, err := m.Signature(kform.KTypName{Id: v}, diag.NoLoc)
	require.NoError(t, err)
	assert.Equal(t, "V11MyMod__tree", got)
}

func TestMaterializeTupleOnce(t *testing.T) {
	c, m := testMangler()
	mod := &kform.Module{Name: ids.Val("Main", 0)}

	tupTyp := kform.KTypTuple{Elems: []kform.KTyp{
		kform.KTypInt{}, kform.KTypFloat{Bits: 64}, kform.KTypString{},
	}}
	x := c.NewVal("x")
	y := c.NewVal("y")
	mod.Stmts = []kform.KExp{
		&kform.KDefVal{Name: x, Rhs: kform.KExpNop{}, Typ: tupTyp, Flags: ast.ValFlags{Global: true}},
		&kform.KDefVal{Name: y, Rhs: kform.KExpNop{}, Typ: tupTyp, Flags: ast.ValFlags{Global: true}},
	}
	require.NoError(t, c.SetKInfo(x, mod.Stmts[0].(kform.Def)))
	require.NoError(t, c.SetKInfo(y, mod.Stmts[1].(kform.Def)))

	require.NoError(t, m.MangleModule(mod))

	// exactly one KDefTyp named _fx_T3idS is created and both vals use it
	var typs []*kform.KDefTyp
	for _, s := range mod.Stmts {
		if dt, ok := s.(*kform.KDefTyp); ok {
			typs = append(typs, dt)
		}
	}
	require.Len(t, typs, 1)
	assert.Equal(t, "_fx_T3idS", typs[0].CName)

	for _, s := range mod.Stmts {
		if dv, ok := s.(*kform.KDefVal); ok {
			name, ok := dv.Typ.(kform.KTypName)
			require.True(t, ok, "the structural tuple is rewritten to a nominal type")
			assert.Equal(t, typs[0].Name.Key(), name.Id.Key())
		}
	}

	// the mangle map points back to exactly one id
	owner, ok := c.MangledNames["_fx_T3idS"]
	require.True(t, ok)
	assert.Equal(t, typs[0].Name.Key(), owner.Key())
}

func TestRecordsAndArraysStayStructural(t *testing.T) {
	c, m := testMangler()
	mod := &kform.Module{Name: ids.Val("Main", 0)}
	rec := kform.KTypRecord{Fields: []kform.KField{{Name: ids.Val("a", 50), Typ: kform.KTypInt{}}}}
	arr := kform.KTypArray{Dims: 1, Elem: kform.KTypInt{}}

	x := c.NewVal("x")
	y := c.NewVal("y")
	mod.Stmts = []kform.KExp{
		&kform.KDefVal{Name: x, Rhs: kform.KExpNop{}, Typ: rec},
		&kform.KDefVal{Name: y, Rhs: kform.KExpNop{}, Typ: arr},
	}
	require.NoError(t, m.MangleModule(mod))

	_, isRec := mod.Stmts[0].(*kform.KDefVal).Typ.(kform.KTypRecord)
	_, isArr := mod.Stmts[1].(*kform.KDefVal).Typ.(kform.KTypArray)
	assert.True(t, isRec)
	assert.True(t, isArr)
}

func TestFunctionNameIncludesSignature(t *testing.T) {
	c, m := testMangler()
	f := c.NewVal("foo")
	df := &kform.KDefFun{
		Name:   f,
		Params: []kform.KParam{{Name: c.NewTemp("x"), Typ: kform.KTypInt{}}},
		RetTyp: kform.KTypInt{},
		Body:   kform.KExpNop{},
		Scope:  ast.ScopePath{ids.Val("MyMod", 0)},
	}
	require.NoError(t, c.SetKInfo(f, df))
	mod := &kform.Module{Name: ids.Val("MyMod", 0), Stmts: []kform.KExp{df}}
	require.NoError(t, m.MangleModule(mod))

	assert.Equal(t, "_fx_F10MyMod__fooFPi1i", df.CName)
	owner := c.MangledNames[df.CName]
	assert.Equal(t, f.Key(), owner.Key())
}

func TestUniquenessSuffix(t *testing.T) {
	c, m := testMangler()
	a := c.NewVal("v")
	b := c.NewVal("v")
	da := &kform.KDefTyp{Name: a, Typ: kform.KTypInt{}}
	db := &kform.KDefTyp{Name: b, Typ: kform.KTypBool{}}
	require.NoError(t, c.SetKInfo(a, da))
	require.NoError(t, c.SetKInfo(b, db))

	mod := &kform.Module{Name: ids.Val("Main", 0), Stmts: []kform.KExp{da, db}}
	require.NoError(t, m.MangleModule(mod))

	assert.Equal(t, "_fx_N1v", da.CName)
	assert.Equal(t, "_fx_N3v1_", db.CName)
	assert.NotEqual(t, da.CName, db.CName)
}

func TestBuiltinExceptionName(t *testing.T) {
	c, m := testMangler()
	exn := c.NewVal("NoMatchError")
	de := &kform.KDefExn{Name: exn, Typ: kform.KTypVoid{}, Scope: ast.ScopePath{ids.Val("Builtins", 0)}}
	require.NoError(t, c.SetKInfo(exn, de))

	mod := &kform.Module{Name: ids.Val("Builtins", 0), Stmts: []kform.KExp{de}}
	require.NoError(t, m.MangleModule(mod))
	assert.Equal(t, "FX_EXN_NoMatchError", de.CName)
}

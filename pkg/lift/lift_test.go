package lift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

func intCtx() kform.Ctx { return kform.Ctx{Typ: kform.KTypInt{}} }

// outer returns a top-level function whose body contains the nested
// definition followed by a use of it.
func outer(c *symtab.Compilation, nested kform.KExp, use kform.KExp) *kform.KDefFun {
	f := c.NewVal("outer")
	df := &kform.KDefFun{
		Name:   f,
		RetTyp: kform.KTypInt{},
		Body:   kform.Seq(nested, use),
	}
	_ = c.SetKInfo(f, df)
	return df
}

func TestNoCaptureNestedFunIsHoisted(t *testing.T) {
	c := symtab.New()
	mod := c.NewVal("Main")

	helper := c.NewVal("helper")
	hx := c.NewTemp("x")
	dh := &kform.KDefFun{
		Name:   helper,
		Params: []kform.KParam{{Name: hx, Typ: kform.KTypInt{}}},
		RetTyp: kform.KTypInt{},
		Body: kform.KExpBinary{Op: ast.OpAdd,
			Left: kform.AtomId{Id: hx}, Right: kform.AtomLit{Lit: ast.LitInt{Value: 1}}, Ctx: intCtx()},
	}
	require.NoError(t, c.SetKInfo(helper, dh))

	use := kform.KExpCall{Fun: helper, Args: []kform.Atom{kform.AtomLit{Lit: ast.LitInt{Value: 2}}}, Ctx: intCtx()}
	df := outer(c, dh, use)

	m := &kform.Module{Name: mod, Stmts: []kform.KExp{df}}
	New(c).TransformModule(m)

	require.Len(t, m.Stmts, 2, "the helper is appended to the module top level")
	hoisted, ok := m.Stmts[1].(*kform.KDefFun)
	require.True(t, ok)
	assert.Equal(t, helper.Key(), hoisted.Name.Key())

	// the nested definition is replaced in place by a no-op
	top := m.Stmts[0].(*kform.KDefFun)
	seq := top.Body.(kform.KExpSeq)
	_, isNop := seq.Exps[0].(kform.KExpNop)
	assert.True(t, isNop)
}

func TestCapturingNestedFunStays(t *testing.T) {
	c := symtab.New()
	mod := c.NewVal("Main")

	// fun foo(x) { fun helper() = x + 1; helper() } -- helper captures x
	foo := c.NewVal("foo")
	x := c.NewVal("x")
	dx := &kform.KDefVal{Name: x, Rhs: kform.KExpNop{}, Flags: ast.ValFlags{Arg: true}, Typ: kform.KTypInt{}}
	require.NoError(t, c.SetKInfo(x, dx))

	helper := c.NewVal("helper")
	dh := &kform.KDefFun{
		Name:   helper,
		RetTyp: kform.KTypInt{},
		Body: kform.KExpBinary{Op: ast.OpAdd,
			Left: kform.AtomId{Id: x}, Right: kform.AtomLit{Lit: ast.LitInt{Value: 1}}, Ctx: intCtx()},
	}
	require.NoError(t, c.SetKInfo(helper, dh))

	df := &kform.KDefFun{
		Name:   foo,
		Params: []kform.KParam{{Name: x, Typ: kform.KTypInt{}}},
		RetTyp: kform.KTypInt{},
		Body:   kform.Seq(dh, kform.KExpCall{Fun: helper, Ctx: intCtx()}),
	}
	require.NoError(t, c.SetKInfo(foo, df))

	m := &kform.Module{Name: mod, Stmts: []kform.KExp{df}}
	New(c).TransformModule(m)

	require.Len(t, m.Stmts, 1, "a capturing helper is left for closure conversion")
	top := m.Stmts[0].(*kform.KDefFun)
	seq := top.Body.(kform.KExpSeq)
	_, stillThere := seq.Exps[0].(*kform.KDefFun)
	assert.True(t, stillThere)
}

func TestNestedTypeDefsAlwaysHoisted(t *testing.T) {
	c := symtab.New()
	mod := c.NewVal("Main")

	v := c.NewVal("opt")
	dv := &kform.KDefVariant{
		Name:  v,
		Cases: []kform.KVariantCase{{Name: ids.Name("None"), Typ: kform.KTypVoid{}}},
	}
	require.NoError(t, c.SetKInfo(v, dv))

	df := outer(c, dv, kform.KExpNop{})
	m := &kform.Module{Name: mod, Stmts: []kform.KExp{df}}
	New(c).TransformModule(m)

	require.Len(t, m.Stmts, 2)
	_, ok := m.Stmts[1].(*kform.KDefVariant)
	assert.True(t, ok)
}

func TestHelperChainHoistsOnSecondPass(t *testing.T) {
	c := symtab.New()
	mod := c.NewVal("Main")

	// two nested helpers: second calls the first, so it only becomes
	// hoistable once the first has been lifted to module scope
	one := c.NewVal("one")
	two := c.NewVal("two")
	d1 := &kform.KDefFun{Name: one, RetTyp: kform.KTypInt{},
		Body: kform.KExpAtom{Atom: kform.AtomLit{Lit: ast.LitInt{Value: 1}}, Ctx: intCtx()}}
	d2 := &kform.KDefFun{Name: two, RetTyp: kform.KTypInt{},
		Body: kform.KExpCall{Fun: one, Ctx: intCtx()}}
	require.NoError(t, c.SetKInfo(one, d1))
	require.NoError(t, c.SetKInfo(two, d2))

	df := outer(c, kform.Seq(d1, d2), kform.KExpNop{})
	m := &kform.Module{Name: mod, Stmts: []kform.KExp{df}}
	New(c).TransformModule(m)

	var hoisted []string
	for _, s := range m.Stmts[1:] {
		if d, ok := s.(*kform.KDefFun); ok {
			hoisted = append(hoisted, d.Name.Prefix)
		}
	}
	assert.ElementsMatch(t, []string{"one", "two"}, hoisted,
		"the second fixed-point pass hoists the dependent helper")
}

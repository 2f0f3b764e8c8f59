package kform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
)

func intAtom(v int64) Atom { return AtomLit{Lit: ast.LitInt{Value: v}} }

func idAtom(name string, k int) Atom { return AtomId{Id: ids.Val(name, k)} }

func intCtx() Ctx { return Ctx{Typ: KTypInt{}} }

func TestSeqFlattens(t *testing.T) {
	a := KExpAtom{Atom: intAtom(1), Ctx: intCtx()}
	b := KExpAtom{Atom: intAtom(2), Ctx: intCtx()}
	inner := Seq(a, b)
	outer := Seq(KExpNop{}, inner, KExpNop{}, b)

	seq, ok := outer.(KExpSeq)
	require.True(t, ok)
	// interior nops are dropped, nested sequences are spliced
	assert.Len(t, seq.Exps, 3)
	assert.Equal(t, intCtx(), seq.Ctx)
}

func TestSeqSingleAndEmpty(t *testing.T) {
	a := KExpAtom{Atom: intAtom(1), Ctx: intCtx()}
	assert.Equal(t, KExp(a), Seq(a))
	_, isNop := Seq().(KExpNop)
	assert.True(t, isNop)
}

func TestFreeVars(t *testing.T) {
	x := ids.Val("x", 1)
	y := ids.Val("y", 2)
	z := ids.Val("z", 3)

	// val x = y + z  -- x declared, y and z free
	body := Seq(
		&KDefVal{Name: x, Rhs: KExpBinary{Op: ast.OpAdd, Left: AtomId{Id: y}, Right: AtomId{Id: z}, Ctx: intCtx()}, Typ: KTypInt{}},
		KExpAtom{Atom: AtomId{Id: x}, Ctx: intCtx()},
	)

	free := FreeVars(body)
	assert.False(t, free.Has(x))
	assert.True(t, free.Has(y))
	assert.True(t, free.Has(z))
}

func TestFreeVarsLoopBinders(t *testing.T) {
	i := ids.Val("i", 1)
	n := ids.Val("n", 2)
	loop := KExpFor{
		Clauses: []LoopClause{{Var: i, Dom: DomRange{Begin: intAtom(0), End: AtomId{Id: n}}}},
		Body:    KExpAtom{Atom: AtomId{Id: i}, Ctx: intCtx()},
	}
	free := FreeVars(loop)
	assert.False(t, free.Has(i), "loop variable is a binder")
	assert.True(t, free.Has(n))
}

func TestFreeVarsFunParams(t *testing.T) {
	f := ids.Val("f", 1)
	x := ids.Val("x", 2)
	g := ids.Val("g", 3)
	fun := &KDefFun{
		Name:   f,
		Params: []KParam{{Name: x, Typ: KTypInt{}}},
		RetTyp: KTypInt{},
		Body:   KExpCall{Fun: g, Args: []Atom{AtomId{Id: x}}, Ctx: intCtx()},
	}
	free := FreeVars(fun)
	assert.False(t, free.Has(x))
	assert.False(t, free.Has(f))
	assert.True(t, free.Has(g))
}

func TestWalkRewritesAtoms(t *testing.T) {
	x := ids.Val("x", 1)
	y := ids.Val("y", 2)
	e := KExpBinary{Op: ast.OpAdd, Left: AtomId{Id: x}, Right: intAtom(1), Ctx: intCtx()}

	// rename x to y through the walker
	walked := WalkExp(e, &Callbacks{
		Atom: func(a Atom, _ diag.Loc, cb *Callbacks) Atom {
			if id, ok := a.(AtomId); ok && ids.Equal(id.Id, x) {
				return AtomId{Id: y}
			}
			return a
		},
	})
	bin := walked.(KExpBinary)
	assert.Equal(t, AtomId{Id: y}, bin.Left)
	assert.Equal(t, intAtom(1), bin.Right)
}

func TestPrinterSmoke(t *testing.T) {
	x := ids.Val("x", 1)
	m := &Module{
		Name: ids.Val("Main", 0),
		Stmts: []KExp{
			&KDefVal{Name: x, Rhs: KExpAtom{Atom: intAtom(5), Ctx: intCtx()}, Typ: KTypInt{}},
		},
	}
	var sb strings.Builder
	NewPrinter(&sb).PrintModule(m)
	out := sb.String()
	assert.Contains(t, out, "module Main")
	assert.Contains(t, out, "val x: int")
}

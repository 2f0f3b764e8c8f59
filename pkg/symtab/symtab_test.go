package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

func TestTablesStayLengthSynchronized(t *testing.T) {
	c := New()
	a := c.NewVal("a")
	b := c.NewTemp("t")
	assert.Equal(t, 0, a.Key())
	assert.Equal(t, 1, b.Key())
	assert.Equal(t, 2, c.Len())

	// K-side and C-side entries exist for both ids even before any pass
	// writes them.
	assert.Nil(t, c.KInfoOrNil(a))
	assert.Nil(t, c.CInfoOrNil(b))
}

func TestEmptyEntryReadIsInternalError(t *testing.T) {
	c := New()
	id := c.NewVal("x")
	loc := diag.Loc{File: "m.fx", Begin: diag.Pos{Line: 3}}

	_, err := c.AstInfo(id, loc)
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))
	assert.Contains(t, err.Error(), "m.fx")

	_, err = c.KInfo(ids.Val("ghost", 999), loc)
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))
}

func TestFreezeRejectsWrites(t *testing.T) {
	c := New()
	id := c.NewVal("x")
	require.NoError(t, c.SetAstInfo(id, ast.ValInfo{Name: id, Typ: ast.TypInt{}}))

	c.Freeze(StageAST)
	err := c.SetAstInfo(id, ast.ValInfo{Name: id, Typ: ast.TypBool{}})
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))

	// Id allocation still grows all tables after a freeze.
	id2 := c.NewTemp("t")
	assert.Equal(t, 1, id2.Key())
	require.NoError(t, c.SetKInfo(id2, &kform.KDefVal{Name: id2, Typ: kform.KTypInt{}}))
}

func TestExnTagsDecrementFromBase(t *testing.T) {
	c := New()
	e1 := c.NewVal("Fail")
	e2 := c.NewVal("Break")
	assert.Equal(t, int64(ExnTagBase), c.NewExnTag(e1))
	assert.Equal(t, int64(ExnTagBase-1), c.NewExnTag(e2))
	// Re-asking for a tag is idempotent.
	assert.Equal(t, int64(ExnTagBase), c.NewExnTag(e1))
}

func TestInitAllResets(t *testing.T) {
	c := New()
	id := c.NewVal("x")
	c.MangledNames["_fx_x"] = id
	c.Errs.Addf(diag.Type, diag.NoLoc, "boom")
	c.InitAll()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.MangledNames)
	assert.True(t, c.Errs.Empty())
}

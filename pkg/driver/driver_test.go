package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

func mod(c *symtab.Compilation, name string, imports ...ids.Id) *ast.Module {
	return &ast.Module{Name: c.NewVal(name), Imports: imports}
}

func TestTopoSortOrdersImportsFirst(t *testing.T) {
	c := symtab.New()
	a := mod(c, "A")
	b := mod(c, "B", a.Name)
	d := mod(c, "D", b.Name, a.Name)

	order, err := TopoSort([]*ast.Module{d, b, a})
	require.NoError(t, err)

	pos := map[string]int{}
	for i, m := range order {
		pos[m.Name.Prefix] = i
	}
	assert.Less(t, pos["A"], pos["B"])
	assert.Less(t, pos["B"], pos["D"])
}

func TestTopoSortCycleError(t *testing.T) {
	c := symtab.New()
	a := &ast.Module{Name: c.NewVal("A")}
	b := &ast.Module{Name: c.NewVal("B")}
	a.Imports = []ids.Id{b.Name}
	b.Imports = []ids.Id{a.Name}

	_, err := TopoSort([]*ast.Module{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic module dependency")
	assert.Contains(t, err.Error(), "A")
	assert.Contains(t, err.Error(), "B")
}

func TestCompileCapturesBuiltinExceptions(t *testing.T) {
	c := symtab.New()
	builtins := BuiltinsModule(c)

	res, err := Compile(c, []*ast.Module{builtins}, Options{})
	require.NoError(t, err)
	require.Len(t, res.KModules, 1)

	assert.False(t, c.NoMatchError.IsNone())
	assert.False(t, c.OutOfRangeError.IsNone())
	assert.Equal(t, "NoMatchError", c.NoMatchError.Prefix)

	// the standard exception tags start at the exception tag base
	tag, ok := c.ExnTags[c.NoMatchError.Key()]
	require.True(t, ok)
	assert.LessOrEqual(t, tag, int64(symtab.ExnTagBase))
}

func TestCompileEmitsUnitsWithPragmas(t *testing.T) {
	c := symtab.New()
	m := &ast.Module{
		Name:   c.NewVal("Main"),
		IsMain: true,
		Stmts: []ast.Exp{
			ast.DirPragma{Pragmas: []string{"cpp", "clib:mylib"}},
		},
	}

	res, err := Compile(c, []*ast.Module{m}, Options{Clibs: []string{"m"}})
	require.NoError(t, err)
	require.Len(t, res.Units, 1)

	u := res.Units[0]
	assert.True(t, u.Main)
	assert.True(t, u.Pragmas.Cpp)
	assert.ElementsMatch(t, []string{"m", "mylib"}, u.Pragmas.Clibs)
}

func TestCompileStopAfterKForm(t *testing.T) {
	c := symtab.New()
	m := &ast.Module{Name: c.NewVal("Main")}
	res, err := Compile(c, []*ast.Module{m}, Options{StopAfter: StageKForm})
	require.NoError(t, err)
	assert.Len(t, res.KModules, 1)
	assert.Empty(t, res.Units)
}

func TestCompileAccumulatesErrors(t *testing.T) {
	c := symtab.New()
	// two value definitions with refutable patterns: both errors surface
	m := &ast.Module{
		Name: c.NewVal("Main"),
		Stmts: []ast.Exp{
			ast.DefVal{
				Pat:  ast.PatLit{Lit: ast.LitInt{Value: 1}},
				Init: ast.ExpLit{Lit: ast.LitInt{Value: 1}, Ctx: ast.Ctx{Typ: ast.TypInt{}}},
			},
			ast.DefVal{
				Pat:  ast.PatLit{Lit: ast.LitInt{Value: 2}},
				Init: ast.ExpLit{Lit: ast.LitInt{Value: 2}, Ctx: ast.Ctx{Typ: ast.TypInt{}}},
			},
		},
	}
	_, err := Compile(c, []*ast.Module{m}, Options{})
	require.ErrorIs(t, err, ErrCompileFailed)
	assert.Equal(t, 2, c.Errs.Len(), "errors accumulate instead of failing fast")
}

package astio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

const sampleDoc = `
module: Main
main: true
imports: [Utils]
pragmas: ["clib:m"]
defs:
  - fun:
      name: add
      params: [{name: x, typ: int}, {name: y, typ: int}]
      ret: int
      body:
        bin: {op: "+", left: {id: x, typ: int}, right: {id: y, typ: int}}
        typ: int
  - val:
      name: z
      typ: int
      init:
        call: {fun: add, args: [{int: 1}, {int: 2}]}
        typ: int
  - variant:
      name: intopt
      recursive: true
      option: true
      cases: [{name: Some, typ: int}, {name: None}]
  - exn: {name: Fail, typ: string}
`

func TestDecodeAndBuild(t *testing.T) {
	doc, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, "Main", doc.Module)
	assert.True(t, doc.Main)
	require.Len(t, doc.Defs, 4)

	c := symtab.New()
	b := NewBuilder(c)
	m, err := b.Build(doc, "main.fx.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Main", m.Name.Prefix)
	assert.True(t, m.IsMain)
	require.Len(t, m.Imports, 1)
	assert.Equal(t, "Utils", m.Imports[0].Prefix)

	// pragma directive first, then the four definitions
	require.Len(t, m.Stmts, 5)
	_, isPragma := m.Stmts[0].(ast.DirPragma)
	assert.True(t, isPragma)

	fn, ok := m.Stmts[1].(ast.DefFun)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name.Prefix)
	require.Len(t, fn.Params, 2)

	// the function's AST info was registered for keyword/type lookups
	info, err := c.AstInfo(fn.Name, m.Stmts[1].Context().Loc)
	require.NoError(t, err)
	fi, ok := info.(ast.FunInfo)
	require.True(t, ok)
	ft := fi.Typ.(ast.TypFun)
	assert.Len(t, ft.Args, 2)

	dv, ok := m.Stmts[4].(ast.DefExn)
	require.True(t, ok)
	_, isStr := dv.Typ.(ast.TypString)
	assert.True(t, isStr)
}

func TestDecodeRejectsMissingModule(t *testing.T) {
	_, err := Decode([]byte("defs: []"))
	require.Error(t, err)
}

func TestNameResolutionIsStable(t *testing.T) {
	c := symtab.New()
	b := NewBuilder(c)
	a1 := b.resolve("alpha")
	a2 := b.resolve("alpha")
	assert.Equal(t, a1.Key(), a2.Key(), "the same name resolves to the same id")
	b2 := b.resolve("beta")
	assert.NotEqual(t, a1.Key(), b2.Key())
}

func TestTypParser(t *testing.T) {
	c := symtab.New()
	b := NewBuilder(c)

	tests := []struct {
		src  string
		want func(ast.Typ) bool
	}{
		{"int", func(t ast.Typ) bool { _, ok := t.(ast.TypInt); return ok }},
		{"string", func(t ast.Typ) bool { _, ok := t.(ast.TypString); return ok }},
		{"double", func(t ast.Typ) bool { f, ok := t.(ast.TypFloat); return ok && f.Bits == 64 }},
		{"int list", func(t ast.Typ) bool { _, ok := t.(ast.TypList); return ok }},
		{"string ref", func(t ast.Typ) bool { _, ok := t.(ast.TypRef); return ok }},
		{"int [,]", func(t ast.Typ) bool { a, ok := t.(ast.TypArray); return ok && a.Dims == 2 }},
		{"(int, double)", func(t ast.Typ) bool { tp, ok := t.(ast.TypTuple); return ok && len(tp.Elems) == 2 }},
		{"(int) -> bool", func(t ast.Typ) bool {
			f, ok := t.(ast.TypFun)
			if !ok || len(f.Args) != 1 {
				return false
			}
			_, ok = f.Ret.(ast.TypBool)
			return ok
		}},
		{"tree", func(t ast.Typ) bool { _, ok := t.(ast.TypName); return ok }},
		{"(int, int) list", func(t ast.Typ) bool {
			l, ok := t.(ast.TypList)
			if !ok {
				return false
			}
			_, ok = l.Elem.(ast.TypTuple)
			return ok
		}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			typ, err := b.typ(tt.src)
			require.NoError(t, err)
			assert.True(t, tt.want(typ), "parsed %q as %T", tt.src, typ)
		})
	}
}

func TestTypParserErrors(t *testing.T) {
	c := symtab.New()
	b := NewBuilder(c)
	_, err := b.typ("")
	require.Error(t, err)
	_, err = b.typ("(int, bool")
	require.Error(t, err)
}

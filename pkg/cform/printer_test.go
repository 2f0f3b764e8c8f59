package cform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andrey-golubev/ficus/pkg/ids"
)

func TestExpString(t *testing.T) {
	tests := []struct {
		name string
		exp  CExp
		want string
	}{
		{"ident", CExpIdent{Id: ids.Name("x")}, "x"},
		{"int literal", CExpLit{Kind: CLitInt, IVal: 42}, "42"},
		{"null", CExpLit{Kind: CLitNull}, "0"},
		{"binary", CExpBinary{Op: COpAdd,
			Left:  CExpIdent{Id: ids.Name("a")},
			Right: CExpLit{Kind: CLitInt, IVal: 1}}, "(a + 1)"},
		{"arrow", CExpArrow{Rec: CExpIdent{Id: ids.Name("p")}, Field: ids.Name("rc")}, "p->rc"},
		{"ternary", CExpTernary{
			Cond: CExpIdent{Id: ids.Name("x")},
			Then: CExpArrow{Rec: CExpIdent{Id: ids.Name("x")}, Field: ids.Name("data")},
			Else: CExpLit{Kind: CLitInt, IVal: 0}}, "(x ? x->data : 0)"},
		{"call", CExpCall{
			Fun:  CExpIdent{Id: ids.Name("FX_DECREF")},
			Args: []CExp{CExpIdent{Id: ids.Name("rc")}}}, "FX_DECREF(rc)"},
		{"cast", CExpCast{Arg: CExpIdent{Id: ids.Name("v")}, Typ: CTypInt{Bits: 32}}, "(int32_t)v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpString(tt.exp))
		})
	}
}

func TestPrintUnit(t *testing.T) {
	name := ids.Name("_fx_T2iS")
	u := &Unit{
		Name:    ids.Val("Main", 0),
		Pragmas: Pragmas{Cpp: true, Clibs: []string{"m"}},
		Stmts: []CStmt{
			&CDefTyp{
				Name: name,
				Typ: CTypStruct{Name: name, Fields: []CField{
					{Name: ids.Name("t0"), Typ: CTypInt{}},
					{Name: ids.Name("t1"), Typ: CTypString{}},
				}},
			},
		},
	}
	var sb strings.Builder
	NewPrinter(&sb).PrintUnit(u)
	out := sb.String()
	assert.Contains(t, out, "/* unit Main */")
	assert.Contains(t, out, "/* pragma: cpp */")
	assert.Contains(t, out, "typedef struct _fx_T2iS {")
	assert.Contains(t, out, "int_ t0;")
	assert.Contains(t, out, "fx_str_t t1;")
}

func TestTypStrings(t *testing.T) {
	assert.Equal(t, "int_", CTypInt{}.String())
	assert.Equal(t, "uint8_t", CTypInt{Bits: 8, Unsigned: true}.String())
	assert.Equal(t, "double", CTypFloat{Bits: 64}.String())
	assert.Equal(t, "fx_arr_t", CTypArr{}.String())
	assert.Equal(t, "fx_str_t*", CTypRawPtr{Elem: CTypString{}}.String())
}

// Package astio decodes typed-AST documents shipped by the front-end. The
// type checker runs as a separate process and serializes each module as a
// YAML document; this package rebuilds the ast.Module and registers the
// resolved symbols in the compilation's AST table.
//
// The format covers the constructs a type-checked module can contain;
// identifiers are referenced by name and resolved to fresh unique ids on
// first definition.
package astio

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

// ModuleDoc is the YAML document root for one module.
type ModuleDoc struct {
	Module  string    `yaml:"module"`
	Main    bool      `yaml:"main,omitempty"`
	Imports []string  `yaml:"imports,omitempty"`
	Pragmas []string  `yaml:"pragmas,omitempty"`
	Defs    []ExpNode `yaml:"defs"`
}

// ExpNode is one expression or definition; exactly one of the fields is
// set.
type ExpNode struct {
	Typ string `yaml:"typ,omitempty"`

	Int   *int64   `yaml:"int,omitempty"`
	Float *float64 `yaml:"float,omitempty"`
	Bool  *bool    `yaml:"bool,omitempty"`
	Str   *string  `yaml:"str,omitempty"`
	Char  *string  `yaml:"char,omitempty"`
	Nil   bool     `yaml:"nil,omitempty"`
	Unit  bool     `yaml:"unit,omitempty"`

	Id     string      `yaml:"id,omitempty"`
	Bin    *BinNode    `yaml:"bin,omitempty"`
	Un     *UnNode     `yaml:"un,omitempty"`
	Seq    []ExpNode   `yaml:"seq,omitempty"`
	If     *IfNode     `yaml:"if,omitempty"`
	Call   *CallNode   `yaml:"call,omitempty"`
	Tuple  []ExpNode   `yaml:"tuple,omitempty"`
	Record *RecordNode `yaml:"record,omitempty"`
	Mem    *MemNode    `yaml:"mem,omitempty"`
	At     *AtNode     `yaml:"at,omitempty"`
	Assign *AssignNode `yaml:"assign,omitempty"`
	While  *WhileNode  `yaml:"while,omitempty"`
	For    *ForNode    `yaml:"for,omitempty"`
	Map    *ForNode    `yaml:"map,omitempty"`
	Match  *MatchNode  `yaml:"match,omitempty"`
	Try    *MatchNode  `yaml:"try,omitempty"`
	Throw  *ExpNode    `yaml:"throw,omitempty"`
	CCode  *string     `yaml:"ccode,omitempty"`
	Range  *RangeNode  `yaml:"range,omitempty"`

	Val     *ValNode     `yaml:"val,omitempty"`
	Fun     *FunNode     `yaml:"fun,omitempty"`
	Variant *VariantNode `yaml:"variant,omitempty"`
	Exn     *ExnNode     `yaml:"exn,omitempty"`
	Alias   *AliasNode   `yaml:"type,omitempty"`
}

type BinNode struct {
	Op    string  `yaml:"op"`
	Left  ExpNode `yaml:"left"`
	Right ExpNode `yaml:"right"`
}

type UnNode struct {
	Op  string  `yaml:"op"`
	Arg ExpNode `yaml:"arg"`
}

type IfNode struct {
	Cond ExpNode `yaml:"cond"`
	Then ExpNode `yaml:"then"`
	Else ExpNode `yaml:"else"`
}

type CallNode struct {
	Fun  string    `yaml:"fun"`
	Args []ExpNode `yaml:"args"`
}

// RecordNode is a record or variant-case construction. Fields is a YAML
// mapping, whose order the decoder does not keep; the builder emits the
// field initializers sorted by field name.
type RecordNode struct {
	Ctor   string            `yaml:"ctor,omitempty"`
	Fields map[string]ExpNode `yaml:"fields"`
}

type MemNode struct {
	Rec   ExpNode `yaml:"rec"`
	Field string  `yaml:"field,omitempty"`
	Idx   int     `yaml:"idx,omitempty"`
}

type AtNode struct {
	Arr  ExpNode   `yaml:"arr"`
	Idxs []ExpNode `yaml:"idxs"`
}

type AssignNode struct {
	LHS ExpNode `yaml:"lhs"`
	RHS ExpNode `yaml:"rhs"`
}

type WhileNode struct {
	Cond ExpNode `yaml:"cond"`
	Body ExpNode `yaml:"body"`
}

type RangeNode struct {
	Begin *ExpNode `yaml:"begin,omitempty"`
	End   *ExpNode `yaml:"end,omitempty"`
	Delta *ExpNode `yaml:"delta,omitempty"`
}

type ClauseNode struct {
	Pat    PatNode  `yaml:"pat"`
	Idx    *PatNode `yaml:"idx,omitempty"`
	Domain ExpNode  `yaml:"in"`
}

type StageNode struct {
	Clauses []ClauseNode `yaml:"clauses"`
}

type ForNode struct {
	Stages []StageNode `yaml:"stages"`
	Body   ExpNode     `yaml:"body"`
	List   bool        `yaml:"list,omitempty"`
}

type CaseNode struct {
	Pats []PatNode `yaml:"pats"`
	Body ExpNode   `yaml:"body"`
}

type MatchNode struct {
	Arg   *ExpNode   `yaml:"arg,omitempty"` // absent for try bodies
	Body  *ExpNode   `yaml:"body,omitempty"`
	Cases []CaseNode `yaml:"cases"`
}

type PatNode struct {
	Any     bool                `yaml:"any,omitempty"`
	Ident   string              `yaml:"ident,omitempty"`
	Typ     string              `yaml:"typ,omitempty"`
	Lit     *ExpNode            `yaml:"lit,omitempty"`
	Tuple   []PatNode           `yaml:"tuple,omitempty"`
	Variant *VariantPatNode     `yaml:"variant,omitempty"`
	Record  map[string]PatNode  `yaml:"record,omitempty"`
	Ctor    string              `yaml:"ctor,omitempty"`
	Cons    *ConsPatNode        `yaml:"cons,omitempty"`
	As      *AsPatNode          `yaml:"as,omitempty"`
	When    *WhenPatNode        `yaml:"when,omitempty"`
}

type VariantPatNode struct {
	Ctor string    `yaml:"ctor"`
	Args []PatNode `yaml:"args,omitempty"`
}

type ConsPatNode struct {
	Head PatNode `yaml:"head"`
	Tail PatNode `yaml:"tail"`
}

type AsPatNode struct {
	Pat  PatNode `yaml:"pat"`
	Name string  `yaml:"name"`
}

type WhenPatNode struct {
	Pat   PatNode `yaml:"pat"`
	Guard ExpNode `yaml:"guard"`
}

type ValNode struct {
	Name    string  `yaml:"name"`
	Typ     string  `yaml:"typ"`
	Init    ExpNode `yaml:"init"`
	Mutable bool    `yaml:"mutable,omitempty"`
}

type ParamNode struct {
	Name string `yaml:"name"`
	Typ  string `yaml:"typ"`
}

type FunNode struct {
	Name     string      `yaml:"name"`
	Params   []ParamNode `yaml:"params"`
	Ret      string      `yaml:"ret"`
	Body     ExpNode     `yaml:"body"`
	Keywords bool        `yaml:"keywords,omitempty"`
	Pure     bool        `yaml:"pure,omitempty"`
	NoThrow  bool        `yaml:"nothrow,omitempty"`
}

type VariantCaseNode struct {
	Name string `yaml:"name"`
	Typ  string `yaml:"typ,omitempty"`
}

type VariantNode struct {
	Name      string            `yaml:"name"`
	Cases     []VariantCaseNode `yaml:"cases"`
	Recursive bool              `yaml:"recursive,omitempty"`
	Option    bool              `yaml:"option,omitempty"`
}

type ExnNode struct {
	Name string `yaml:"name"`
	Typ  string `yaml:"typ,omitempty"`
}

type AliasNode struct {
	Name string `yaml:"name"`
	Typ  string `yaml:"typ"`
}

// Decode parses one module document.
func Decode(data []byte) (*ModuleDoc, error) {
	var doc ModuleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode typed-ast document: %w", err)
	}
	if doc.Module == "" {
		return nil, fmt.Errorf("typed-ast document has no module name")
	}
	return &doc, nil
}

// Builder resolves the names of one or more documents against a shared
// compilation.
type Builder struct {
	C     *symtab.Compilation
	names map[string]ids.Id
	file  string
}

// NewBuilder creates a builder over the compilation.
func NewBuilder(c *symtab.Compilation) *Builder {
	return &Builder{C: c, names: map[string]ids.Id{}}
}

func (b *Builder) resolve(name string) ids.Id {
	if id, ok := b.names[name]; ok {
		return id
	}
	id := b.C.NewVal(name)
	b.names[name] = id
	return id
}

// Build converts a decoded document into an ast.Module, registering every
// definition in the compilation's AST table.
func (b *Builder) Build(doc *ModuleDoc, file string) (*ast.Module, error) {
	b.file = file
	modId := b.resolve(doc.Module)
	scope := ast.ScopePath{modId}

	m := &ast.Module{Name: modId, IsMain: doc.Main}
	for _, imp := range doc.Imports {
		m.Imports = append(m.Imports, b.resolve(imp))
	}
	if len(doc.Pragmas) > 0 {
		m.Stmts = append(m.Stmts, ast.DirPragma{Pragmas: doc.Pragmas})
	}

	// declare types and functions first so bodies can reference them
	for _, d := range doc.Defs {
		if err := b.declare(d, scope); err != nil {
			return nil, err
		}
	}
	for _, d := range doc.Defs {
		e, err := b.exp(d)
		if err != nil {
			return nil, err
		}
		m.Stmts = append(m.Stmts, e)
	}
	return m, nil
}

// declare registers the AST-level info of a top-level definition.
func (b *Builder) declare(d ExpNode, scope ast.ScopePath) error {
	loc := diag.Loc{File: b.file}
	switch {
	case d.Fun != nil:
		id := b.resolve(d.Fun.Name)
		args := make([]ast.Typ, len(d.Fun.Params))
		for i, p := range d.Fun.Params {
			t, err := b.typ(p.Typ)
			if err != nil {
				return err
			}
			args[i] = t
		}
		ret, err := b.typ(d.Fun.Ret)
		if err != nil {
			return err
		}
		return b.C.SetAstInfo(id, ast.FunInfo{
			Name: id,
			Typ:  ast.TypFun{Args: args, Ret: ret},
			Flags: ast.FunFlags{
				HasKeywords: d.Fun.Keywords,
				Pure:        d.Fun.Pure,
				NoThrow:     d.Fun.NoThrow,
			},
			Scope: scope,
			Loc:   loc,
		})
	case d.Variant != nil:
		id := b.resolve(d.Variant.Name)
		cases := make([]ast.VariantCase, len(d.Variant.Cases))
		ctors := make([]ids.Id, len(d.Variant.Cases))
		for i, c := range d.Variant.Cases {
			ct := ast.Typ(ast.TypVoid{})
			if c.Typ != "" {
				t, err := b.typ(c.Typ)
				if err != nil {
					return err
				}
				ct = t
			}
			cases[i] = ast.VariantCase{Name: b.resolve(c.Name), Typ: ct}
			ctors[i] = cases[i].Name
		}
		return b.C.SetAstInfo(id, ast.VariantInfo{
			Name:      id,
			Cases:     cases,
			Ctors:     ctors,
			Recursive: d.Variant.Recursive,
			Option:    d.Variant.Option,
			Scope:     scope,
			Loc:       loc,
		})
	case d.Exn != nil:
		id := b.resolve(d.Exn.Name)
		t := ast.Typ(ast.TypVoid{})
		if d.Exn.Typ != "" {
			pt, err := b.typ(d.Exn.Typ)
			if err != nil {
				return err
			}
			t = pt
		}
		info := ast.ExnInfo{Name: id, Typ: t, Scope: scope, Loc: loc}
		if _, void := t.(ast.TypVoid); !void {
			info.Ctor = b.resolve(d.Exn.Name + "_ctor")
		}
		return b.C.SetAstInfo(id, info)
	case d.Alias != nil:
		id := b.resolve(d.Alias.Name)
		t, err := b.typ(d.Alias.Typ)
		if err != nil {
			return err
		}
		return b.C.SetAstInfo(id, ast.TypInfo{Name: id, Typ: t, Scope: scope, Loc: loc})
	case d.Val != nil:
		id := b.resolve(d.Val.Name)
		t, err := b.typ(d.Val.Typ)
		if err != nil {
			return err
		}
		return b.C.SetAstInfo(id, ast.ValInfo{
			Name:  id,
			Typ:   t,
			Flags: ast.ValFlags{Mutable: d.Val.Mutable, Global: true},
			Scope: scope,
			Loc:   loc,
		})
	}
	return nil
}

// Package knorm implements K-normalization: the translation of the typed
// AST into K-form. Every non-atomic operand is bound to a fresh temporary,
// pattern matching is compiled into tag tests and field extractions, and
// comprehensions are lowered into staged loops.
package knorm

import (
	"fmt"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

// Normalizer lowers one module from AST to K-form.
type Normalizer struct {
	C      *symtab.Compilation
	module ids.Id
	scope  ast.ScopePath

	// stack of (array, axis) pairs maintained while entering ExpAt, used to
	// lower the reverse index ".-".
	idxStack []idxEntry

	// typeDefs holds the K-form definitions created by the batch type
	// pre-pass, keyed by the source definition's name; stmt() emits them at
	// the definition's position in the module.
	typeDefs map[int][]kform.KExp

	pragmas []string
}

type idxEntry struct {
	arr  kform.Atom
	axis int
}

// New creates a normalizer for the given module.
func New(c *symtab.Compilation, module ids.Id) *Normalizer {
	return &Normalizer{
		C:        c,
		module:   module,
		scope:    ast.ScopePath{module},
		typeDefs: map[int][]kform.KExp{},
	}
}

// errf records a user-level diagnostic in the shared error list and returns
// it so the caller can cut the current lowering short. Callers at statement
// granularity swallow non-internal errors and continue with the next
// statement.
func (n *Normalizer) errf(kind diag.Kind, loc diag.Loc, format string, args ...any) error {
	err := &diag.Error{Kind: kind, Loc: loc, Msg: fmt.Sprintf(format, args...)}
	n.C.Errs.Add(err)
	return err
}

// NormalizeModule lowers a whole module. Variant, exception and type
// definitions are processed in batch first so that expressions can refer to
// them regardless of the source order.
func (n *Normalizer) NormalizeModule(m *ast.Module) (*kform.Module, error) {
	for _, s := range m.Stmts {
		if err := n.declareTypeDef(s); err != nil {
			if diag.IsInternal(err) {
				return nil, err
			}
		}
	}

	var code []kform.KExp
	for _, s := range m.Stmts {
		var err error
		code, err = n.stmt(s, code)
		if err != nil {
			if diag.IsInternal(err) {
				return nil, err
			}
			// already recorded in the error list; keep going to surface
			// more diagnostics from this module
		}
	}

	return &kform.Module{
		Name:    m.Name,
		Imports: m.Imports,
		Stmts:   code,
		IsMain:  m.IsMain,
		Pragmas: n.pragmas,
	}, nil
}

// stmt lowers one top-level or sequence statement, appending to code.
func (n *Normalizer) stmt(s ast.Exp, code []kform.KExp) ([]kform.KExp, error) {
	switch s := s.(type) {
	case ast.DirImport:
		return code, nil
	case ast.DirPragma:
		n.pragmas = append(n.pragmas, s.Pragmas...)
		return code, nil
	case ast.DefTyp:
		return append(code, n.typeDefs[s.Name.Key()]...), nil
	case ast.DefVariant:
		return append(code, n.typeDefs[s.Name.Key()]...), nil
	case ast.DefExn:
		return append(code, n.typeDefs[s.Name.Key()]...), nil
	case ast.DefVal:
		return n.lowerDefVal(s, code)
	case ast.DefFun:
		return n.lowerDefFun(s, code)
	default:
		ke, code, err := n.exp(s, code)
		if err != nil {
			return code, err
		}
		if _, nop := ke.(kform.KExpNop); !nop {
			code = append(code, ke)
		}
		return code, nil
	}
}

// code2kexp folds a code prefix and a value expression into one K-expression.
func code2kexp(code []kform.KExp, val kform.KExp) kform.KExp {
	if len(code) == 0 {
		return val
	}
	all := make([]kform.KExp, 0, len(code)+1)
	all = append(all, code...)
	all = append(all, val)
	return kform.Seq(all...)
}

// expFold normalizes e into a single self-contained K-expression.
func (n *Normalizer) expFold(e ast.Exp) (kform.KExp, error) {
	ke, code, err := n.exp(e, nil)
	if err != nil {
		return kform.KExpNop{Loc: e.Context().Loc}, err
	}
	return code2kexp(code, ke), nil
}

// kexp2atom turns a K-expression into an atom, binding non-atomic values to
// a fresh temporary appended to code.
func (n *Normalizer) kexp2atom(prefix string, ke kform.KExp, tempref bool, code []kform.KExp) (kform.Atom, []kform.KExp, error) {
	if a, ok := ke.(kform.KExpAtom); ok {
		return a.Atom, code, nil
	}
	ctx := ke.KCtx()
	if kform.IsVoid(ctx.Typ) {
		code = append(code, ke)
		return kform.AtomLit{Lit: ast.LitUnit{}}, code, nil
	}
	t := n.C.NewTemp(prefix)
	dv := &kform.KDefVal{
		Name:  t,
		Rhs:   ke,
		Flags: ast.ValFlags{TempRef: tempref},
		Typ:   ctx.Typ,
		Loc:   ctx.Loc,
	}
	if err := n.C.SetKInfo(t, dv); err != nil {
		return nil, code, err
	}
	code = append(code, dv)
	return kform.AtomId{Id: t}, code, nil
}

// atomize normalizes e and then binds it to an atom.
func (n *Normalizer) atomize(prefix string, e ast.Exp, code []kform.KExp) (kform.Atom, []kform.KExp, error) {
	ke, code, err := n.exp(e, code)
	if err != nil {
		return nil, code, err
	}
	return n.kexp2atom(prefix, ke, false, code)
}

// kexp2id is like kexp2atom but always yields an identifier; literals are
// bound to temporaries too.
func (n *Normalizer) kexp2id(prefix string, ke kform.KExp, code []kform.KExp) (ids.Id, []kform.KExp, error) {
	a, code, err := n.kexp2atom(prefix, ke, false, code)
	if err != nil {
		return ids.None, code, err
	}
	if id, ok := a.(kform.AtomId); ok {
		return id.Id, code, nil
	}
	ctx := ke.KCtx()
	t := n.C.NewTemp(prefix)
	dv := &kform.KDefVal{Name: t, Rhs: kform.KExpAtom{Atom: a, Ctx: ctx}, Typ: ctx.Typ, Loc: ctx.Loc}
	if err := n.C.SetKInfo(t, dv); err != nil {
		return ids.None, code, err
	}
	code = append(code, dv)
	return t, code, nil
}

func (n *Normalizer) kctx(e ast.Exp) (kform.Ctx, error) {
	c := e.Context()
	kt, err := n.Typ2KTyp(c.Typ, c.Loc)
	if err != nil {
		return kform.Ctx{Typ: kform.KTypErr{}, Loc: c.Loc}, err
	}
	return kform.Ctx{Typ: kt, Loc: c.Loc}, nil
}

// exp normalizes one expression, growing the code prefix with the bindings
// and statements its evaluation requires.
func (n *Normalizer) exp(e ast.Exp, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Context().Loc
	switch e := e.(type) {
	case ast.ExpLit:
		ctx, err := n.kctx(e)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpAtom{Atom: kform.AtomLit{Lit: e.Lit}, Ctx: ctx}, code, nil

	case ast.ExpIdent:
		ctx, err := n.kctx(e)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpAtom{Atom: kform.AtomId{Id: e.Id}, Ctx: ctx}, code, nil

	case ast.ExpBinary:
		return n.lowerBinary(e, code)

	case ast.ExpUnary:
		ctx, err := n.kctx(e)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		a, code, err := n.atomize("t", e.Arg, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpUnary{Op: e.Op, Arg: a, Ctx: ctx}, code, nil

	case ast.ExpSeq:
		if len(e.Exps) == 0 {
			return kform.KExpNop{Loc: loc}, code, nil
		}
		for _, sub := range e.Exps[:len(e.Exps)-1] {
			var err error
			code, err = n.stmt(sub, code)
			if err != nil {
				return kform.KExpNop{Loc: loc}, code, err
			}
		}
		return n.exp(e.Exps[len(e.Exps)-1], code)

	case ast.ExpIf:
		ctx, err := n.kctx(e)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		cond, code, err := n.exp(e.Cond, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		then, err := n.expFold(e.Then)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		els, err := n.expFold(e.Else)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpIf{Cond: cond, Then: then, Else: els, Ctx: ctx}, code, nil

	case ast.ExpCall:
		return n.lowerCall(e, code)

	case ast.ExpMkTuple:
		ctx, err := n.kctx(e)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		elems := make([]kform.Atom, len(e.Elems))
		for i, el := range e.Elems {
			var a kform.Atom
			a, code, err = n.atomize("t", el, code)
			if err != nil {
				return kform.KExpNop{Loc: loc}, code, err
			}
			elems[i] = a
		}
		return kform.KExpMkTuple{Elems: elems, Ctx: ctx}, code, nil

	case ast.ExpMkRecord:
		return n.lowerMkRecord(e, code)

	case ast.ExpUpdateRecord:
		return n.lowerUpdateRecord(e, code)

	case ast.ExpMkArray:
		ctx, err := n.kctx(e)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		rows := make([][]kform.Atom, len(e.Rows))
		for i, row := range e.Rows {
			rows[i] = make([]kform.Atom, len(row))
			for j, el := range row {
				var a kform.Atom
				a, code, err = n.atomize("t", el, code)
				if err != nil {
					return kform.KExpNop{Loc: loc}, code, err
				}
				rows[i][j] = a
			}
		}
		return kform.KExpMkArray{Rows: rows, Ctx: ctx}, code, nil

	case ast.ExpRange:
		return kform.KExpNop{Loc: loc}, code,
			n.errf(diag.Type, loc, "a range can only be used as a loop domain or an index")

	case ast.ExpFor:
		ke, code, err := n.lowerFor(e, code)
		return ke, code, err

	case ast.ExpMap:
		return n.lowerMap(e, code)

	case ast.ExpWhile:
		cond, err := n.expFold(e.Cond)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		body, err := n.expFold(e.Body)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpWhile{Cond: cond, Body: body, Loc: loc}, code, nil

	case ast.ExpDoWhile:
		body, err := n.expFold(e.Body)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		cond, err := n.expFold(e.Cond)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpDoWhile{Body: body, Cond: cond, Loc: loc}, code, nil

	case ast.ExpMatch:
		return n.lowerMatch(e, code)

	case ast.ExpTry:
		return n.lowerTry(e, code)

	case ast.ExpThrow:
		ke, code, err := n.exp(e.Exn, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		exn, code, err := n.kexp2id("exn", ke, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpThrow{Exn: exn, Loc: loc}, code, nil

	case ast.ExpMem:
		return n.lowerMem(e, code)

	case ast.ExpAt:
		return n.lowerAt(e, code)

	case ast.ExpRevIndex:
		return n.lowerRevIndex(e, code)

	case ast.ExpAssign:
		return n.lowerAssign(e, code)

	case ast.ExpCast:
		ctx, err := n.kctx(e)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		a, code, err := n.atomize("t", e.Arg, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpCast{Arg: a, Ctx: ctx}, code, nil

	case ast.ExpTyped:
		return n.exp(e.Arg, code)

	case ast.ExpCCode:
		ctx, err := n.kctx(e)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		return kform.KExpCCode{Code: e.Code, Ctx: ctx}, code, nil

	case ast.DefVal, ast.DefFun, ast.DefVariant, ast.DefExn, ast.DefTyp, ast.DirImport, ast.DirPragma:
		var err error
		code, err = n.stmt(e, code)
		return kform.KExpNop{Loc: loc}, code, err
	}
	return kform.KExpNop{Loc: loc}, code, diag.Internalf(loc, "unsupported expression %T in K-normalization", e)
}

// lowerBinary handles short-circuit lowering, string concatenation and the
// list cons; everything else becomes a binary primitive over atoms.
func (n *Normalizer) lowerBinary(e ast.ExpBinary, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	switch e.Op {
	case ast.OpLogicAnd:
		// a && b  =>  if a then b else false
		cond, code, err := n.exp(e.Left, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		then, err := n.expFold(e.Right)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		els := kform.KExpAtom{Atom: kform.AtomLit{Lit: ast.LitBool{Value: false}}, Ctx: ctx}
		return kform.KExpIf{Cond: cond, Then: then, Else: els, Ctx: ctx}, code, nil
	case ast.OpLogicOr:
		// a || b  =>  if a then true else b
		cond, code, err := n.exp(e.Left, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		els, err := n.expFold(e.Right)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		then := kform.KExpAtom{Atom: kform.AtomLit{Lit: ast.LitBool{Value: true}}, Ctx: ctx}
		return kform.KExpIf{Cond: cond, Then: then, Else: els, Ctx: ctx}, code, nil
	}

	left, code, err := n.atomize("t", e.Left, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	right, code, err := n.atomize("t", e.Right, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	if e.Op == ast.OpAdd && isStrConcat(e.Left.Context().Typ, e.Right.Context().Typ) {
		return kform.KExpIntrin{Op: kform.IntrinStrConcat, Args: []kform.Atom{left, right}, Ctx: ctx}, code, nil
	}
	return kform.KExpBinary{Op: e.Op, Left: left, Right: right, Ctx: ctx}, code, nil
}

// isStrConcat reports whether + over these operand types means string
// concatenation: string+string, string+char or char+string.
func isStrConcat(a, b ast.Typ) bool {
	_, sa := a.(ast.TypString)
	_, sb := b.(ast.TypString)
	_, ca := a.(ast.TypChar)
	_, cb := b.(ast.TypChar)
	return (sa && sb) || (sa && cb) || (ca && sb)
}

// lowerCall normalizes a call, expanding trailing keyword arguments for
// functions flagged has_keywords.
func (n *Normalizer) lowerCall(e ast.ExpCall, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	args := e.Args
	if fid, ok := e.Fun.(ast.ExpIdent); ok && len(args) > 0 {
		if info, err := n.C.AstInfo(fid.Id, loc); err == nil {
			if fi, ok := info.(ast.FunInfo); ok && fi.Flags.HasKeywords {
				if rec, ok := args[len(args)-1].(ast.ExpMkRecord); ok && rec.Ctor.IsNone() {
					expanded := make([]ast.Exp, 0, len(args)-1+len(rec.Fields))
					expanded = append(expanded, args[:len(args)-1]...)
					for _, f := range rec.Fields {
						expanded = append(expanded, f.Exp)
					}
					args = expanded
				}
			}
		}
	}

	fke, code, err := n.exp(e.Fun, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	fid, code, err := n.kexp2id("f", fke, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	atoms := make([]kform.Atom, len(args))
	for i, a := range args {
		var at kform.Atom
		at, code, err = n.atomize("t", a, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		atoms[i] = at
	}
	return kform.KExpCall{Fun: fid, Args: atoms, Ctx: ctx}, code, nil
}

// lowerMkRecord builds a record or a variant-case value. Variant cases go
// through their constructor function; plain records become KExpMkRecord.
// Missing fields fall back to the field's declared default.
func (n *Normalizer) lowerMkRecord(e ast.ExpMkRecord, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	var caseTyp ast.Typ = e.Ctx.Typ
	if !e.Ctor.IsNone() {
		// the constructor's AST info names the payload record type
		info, err := n.C.AstInfo(e.Ctor, loc)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		if fi, ok := info.(ast.FunInfo); ok {
			if ft, ok := fi.Typ.(ast.TypFun); ok && len(ft.Args) == 1 {
				caseTyp = ft.Args[0]
			}
		}
	}

	declared, err := n.astRecordFields(caseTyp, loc)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	atoms := make([]kform.Atom, 0, len(declared))
	for _, df := range declared {
		var init ast.Exp
		for _, f := range e.Fields {
			if ids.Equal(f.Name, df.Name) {
				init = f.Exp
				break
			}
		}
		if init == nil {
			init = df.Default
		}
		if init == nil {
			return kform.KExpNop{Loc: loc}, code,
				n.errf(diag.NameResolution, loc, "field %s is not provided and has no default", df.Name)
		}
		a, code2, err := n.atomize("t", init, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code2, err
		}
		code = code2
		atoms = append(atoms, a)
	}

	if !e.Ctor.IsNone() {
		return kform.KExpCall{Fun: e.Ctor, Args: atoms, Ctx: ctx}, code, nil
	}
	return kform.KExpMkRecord{Fields: atoms, Ctx: ctx}, code, nil
}

// lowerUpdateRecord reads each field either from the update list or from
// the source record and reassembles a fresh record.
func (n *Normalizer) lowerUpdateRecord(e ast.ExpUpdateRecord, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	declared, err := n.astRecordFields(e.Ctx.Typ, loc)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	src, code, err := n.atomize("r", e.Rec, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	atoms := make([]kform.Atom, 0, len(declared))
	for i, df := range declared {
		var upd ast.Exp
		for _, f := range e.Fields {
			if ids.Equal(f.Name, df.Name) {
				upd = f.Exp
				break
			}
		}
		var a kform.Atom
		if upd != nil {
			a, code, err = n.atomize("t", upd, code)
		} else {
			ft, terr := n.Typ2KTyp(df.Typ, loc)
			if terr != nil {
				return kform.KExpNop{Loc: loc}, code, terr
			}
			mem := kform.KExpMem{Rec: src, Idx: i, Ctx: kform.Ctx{Typ: ft, Loc: loc}}
			a, code, err = n.kexp2atom("t", mem, false, code)
		}
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		atoms = append(atoms, a)
	}
	return kform.KExpMkRecord{Fields: atoms, Ctx: ctx}, code, nil
}

// lowerMem resolves record field names to positional indices.
func (n *Normalizer) lowerMem(e ast.ExpMem, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	rec, code, err := n.atomize("r", e.Rec, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	idx := e.Idx
	if !e.Field.IsNone() {
		rt, terr := n.Typ2KTyp(e.Rec.Context().Typ, loc)
		if terr != nil {
			return kform.KExpNop{Loc: loc}, code, terr
		}
		fields, ferr := n.recordFields(rt, loc)
		if ferr != nil {
			return kform.KExpNop{Loc: loc}, code, ferr
		}
		idx = -1
		for i, f := range fields {
			if ids.Equal(f.Name, e.Field) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return kform.KExpNop{Loc: loc}, code,
				n.errf(diag.NameResolution, loc, "the record has no field %s", e.Field)
		}
	}
	return kform.KExpMem{Rec: rec, Idx: idx, Ctx: ctx}, code, nil
}

// lowerAt lowers indexing, maintaining the (array, axis) stack consumed by
// reverse indices.
func (n *Normalizer) lowerAt(e ast.ExpAt, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	arr, code, err := n.atomize("a", e.Arr, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	doms := make([]kform.Dom, len(e.Idxs))
	for axis, idx := range e.Idxs {
		n.idxStack = append(n.idxStack, idxEntry{arr: arr, axis: axis})
		var d kform.Dom
		d, code, err = n.lowerDom(idx, code)
		n.idxStack = n.idxStack[:len(n.idxStack)-1]
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		doms[axis] = d
	}
	return kform.KExpAt{Arr: arr, Idxs: doms, Ctx: ctx}, code, nil
}

// lowerDom lowers an index or loop domain expression: a range becomes
// DomRange, anything else a point/collection domain.
func (n *Normalizer) lowerDom(e ast.Exp, code []kform.KExp) (kform.Dom, []kform.KExp, error) {
	if r, ok := e.(ast.ExpRange); ok {
		var d kform.DomRange
		var err error
		if r.Begin != nil {
			d.Begin, code, err = n.atomize("t", r.Begin, code)
			if err != nil {
				return nil, code, err
			}
		}
		if r.End != nil {
			d.End, code, err = n.atomize("t", r.End, code)
			if err != nil {
				return nil, code, err
			}
		}
		if r.Delta != nil {
			d.Delta, code, err = n.atomize("t", r.Delta, code)
			if err != nil {
				return nil, code, err
			}
		}
		return d, code, nil
	}
	a, code, err := n.atomize("t", e, code)
	if err != nil {
		return nil, code, err
	}
	return kform.DomElem{Atom: a}, code, nil
}

// lowerRevIndex lowers ".- e" into size(arr, axis) - e using the innermost
// entry of the index stack.
func (n *Normalizer) lowerRevIndex(e ast.ExpRevIndex, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	if len(n.idxStack) == 0 {
		return kform.KExpNop{Loc: loc}, code,
			n.errf(diag.Syntax, loc, "the reverse index .- can only be used inside an index expression")
	}
	top := n.idxStack[len(n.idxStack)-1]

	size := kform.KExpIntrin{
		Op:   kform.IntrinGetSize,
		Args: []kform.Atom{top.arr, kform.AtomLit{Lit: ast.LitInt{Value: int64(top.axis)}}},
		Ctx:  kform.Ctx{Typ: kform.KTypInt{}, Loc: loc},
	}
	szAtom, code, err := n.kexp2atom("sz", size, false, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	arg, code, err := n.atomize("t", e.Arg, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	return kform.KExpBinary{Op: ast.OpSub, Left: szAtom, Right: arg, Ctx: ctx}, code, nil
}

// lowerAssign lowers an assignment. The LHS must reduce to an identifier;
// array element targets go through a subarray-flagged temporary.
func (n *Normalizer) lowerAssign(e ast.ExpAssign, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	rhs, code, err := n.exp(e.RHS, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	switch lhs := e.LHS.(type) {
	case ast.ExpIdent:
		n.markMutable(lhs.Id, false)
		return kform.KExpAssign{LHS: lhs.Id, RHS: rhs, Loc: loc}, code, nil
	case ast.ExpAt:
		at, code, err := n.lowerAt(lhs, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		t := n.C.NewTemp("sub")
		dv := &kform.KDefVal{
			Name:  t,
			Rhs:   at,
			Flags: ast.ValFlags{Mutable: true, TempRef: true, SubArray: true},
			Typ:   at.KCtx().Typ,
			Loc:   loc,
		}
		if err := n.C.SetKInfo(t, dv); err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		code = append(code, dv)
		if arrId, ok := at.(kform.KExpAt); ok {
			if a, ok := arrId.Arr.(kform.AtomId); ok {
				n.markMutable(a.Id, true)
			}
		}
		return kform.KExpAssign{LHS: t, RHS: rhs, Loc: loc}, code, nil
	case ast.ExpMem:
		mem, code, err := n.lowerMem(lhs, code)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		km, ok := mem.(kform.KExpMem)
		if !ok {
			return kform.KExpNop{Loc: loc}, code,
				n.errf(diag.Type, loc, "invalid assignment target")
		}
		t := n.C.NewTemp("fld")
		dv := &kform.KDefVal{
			Name:  t,
			Rhs:   km,
			Flags: ast.ValFlags{Mutable: true, TempRef: true},
			Typ:   km.Ctx.Typ,
			Loc:   loc,
		}
		if err := n.C.SetKInfo(t, dv); err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		code = append(code, dv)
		if a, ok := km.Rec.(kform.AtomId); ok {
			n.markMutable(a.Id, false)
		}
		return kform.KExpAssign{LHS: t, RHS: rhs, Loc: loc}, code, nil
	case ast.ExpUnary:
		if lhs.Op == ast.OpDeref {
			ke, code, err := n.exp(lhs, code)
			if err != nil {
				return kform.KExpNop{Loc: loc}, code, err
			}
			id, code, err := n.kexp2id("ref", ke, code)
			if err != nil {
				return kform.KExpNop{Loc: loc}, code, err
			}
			return kform.KExpAssign{LHS: id, RHS: rhs, Loc: loc}, code, nil
		}
	}
	return kform.KExpNop{Loc: loc}, code,
		n.errf(diag.Type, loc, "the left-hand side of an assignment must be a value, an element or a field")
}

// markMutable flags the K-form definition of id as mutable (and optionally
// as a subarray holder).
func (n *Normalizer) markMutable(id ids.Id, subarray bool) {
	if dv, ok := n.C.KInfoOrNil(id).(*kform.KDefVal); ok {
		dv.Flags.Mutable = true
		if subarray {
			dv.Flags.SubArray = true
		}
	}
}

// lowerTry wraps the body in a try region; the handler pops the current
// exception and pattern-matches it in catch mode.
func (n *Normalizer) lowerTry(e ast.ExpTry, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	body, err := n.expFold(e.Body)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	exn := n.C.NewTemp("exn")
	pop := &kform.KDefVal{
		Name: exn,
		Rhs: kform.KExpIntrin{
			Op:  kform.IntrinPopExn,
			Ctx: kform.Ctx{Typ: kform.KTypExn{}, Loc: loc},
		},
		Typ: kform.KTypExn{},
		Loc: loc,
	}
	if err := n.C.SetKInfo(exn, pop); err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	match, err := n.compileMatch(kform.AtomId{Id: exn}, kform.KTypExn{}, loc, e.Cases, ctx, true)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	handler := kform.Seq(pop, match)
	return kform.KExpTryCatch{Body: body, Handler: handler, Ctx: ctx}, code, nil
}

// lowerMatch compiles a match expression. A mutable scrutinee is first
// copied into a fresh immutable temporary so it cannot change between tests.
func (n *Normalizer) lowerMatch(e ast.ExpMatch, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	ke, code, err := n.exp(e.Arg, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	a, code, err := n.kexp2atom("m", ke, false, code)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	atyp := ke.KCtx().Typ

	if id, ok := a.(kform.AtomId); ok && n.isMutable(id.Id) {
		t := n.C.NewTemp("m")
		dv := &kform.KDefVal{
			Name: t,
			Rhs:  kform.KExpAtom{Atom: a, Ctx: kform.Ctx{Typ: atyp, Loc: loc}},
			Typ:  atyp,
			Loc:  loc,
		}
		if err := n.C.SetKInfo(t, dv); err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		code = append(code, dv)
		a = kform.AtomId{Id: t}
	}

	match, err := n.compileMatch(a, atyp, loc, e.Cases, ctx, false)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	return match, code, nil
}

func (n *Normalizer) isMutable(id ids.Id) bool {
	if dv, ok := n.C.KInfoOrNil(id).(*kform.KDefVal); ok {
		return dv.Flags.Mutable
	}
	if info, err := n.C.AstInfo(id, diag.NoLoc); err == nil {
		if vi, ok := info.(ast.ValInfo); ok {
			return vi.Flags.Mutable
		}
	}
	return false
}

package kform

import (
	"github.com/andrey-golubev/ficus/pkg/diag"
)

// Callbacks is the uniform traversal hook structure. Each hook is optional;
// a nil hook means default structural recursion for that node class. A hook
// that does not call the corresponding Walk* function prunes recursion
// below its node.
type Callbacks struct {
	Typ  func(t KTyp, loc diag.Loc, cb *Callbacks) KTyp
	Exp  func(e KExp, cb *Callbacks) KExp
	Atom func(a Atom, loc diag.Loc, cb *Callbacks) Atom
}

func (cb *Callbacks) typ(t KTyp, loc diag.Loc) KTyp {
	if t == nil {
		return nil
	}
	if cb.Typ != nil {
		return cb.Typ(t, loc, cb)
	}
	return WalkTyp(t, loc, cb)
}

func (cb *Callbacks) exp(e KExp) KExp {
	if e == nil {
		return nil
	}
	if cb.Exp != nil {
		return cb.Exp(e, cb)
	}
	return WalkExp(e, cb)
}

func (cb *Callbacks) atom(a Atom, loc diag.Loc) Atom {
	if a == nil {
		return nil
	}
	if cb.Atom != nil {
		return cb.Atom(a, loc, cb)
	}
	return a
}

func (cb *Callbacks) atoms(as []Atom, loc diag.Loc) []Atom {
	out := make([]Atom, len(as))
	for i, a := range as {
		out[i] = cb.atom(a, loc)
	}
	return out
}

func (cb *Callbacks) dom(d Dom, loc diag.Loc) Dom {
	switch d := d.(type) {
	case DomElem:
		return DomElem{Atom: cb.atom(d.Atom, loc)}
	case DomRange:
		r := DomRange{}
		if d.Begin != nil {
			r.Begin = cb.atom(d.Begin, loc)
		}
		if d.End != nil {
			r.End = cb.atom(d.End, loc)
		}
		if d.Delta != nil {
			r.Delta = cb.atom(d.Delta, loc)
		}
		return r
	}
	return d
}

// WalkTyp performs default structural recursion over a type.
func WalkTyp(t KTyp, loc diag.Loc, cb *Callbacks) KTyp {
	switch t := t.(type) {
	case KTypFun:
		args := make([]KTyp, len(t.Args))
		for i, a := range t.Args {
			args[i] = cb.typ(a, loc)
		}
		return KTypFun{Args: args, Ret: cb.typ(t.Ret, loc)}
	case KTypTuple:
		elems := make([]KTyp, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = cb.typ(e, loc)
		}
		return KTypTuple{Elems: elems}
	case KTypList:
		return KTypList{Elem: cb.typ(t.Elem, loc)}
	case KTypRef:
		return KTypRef{Elem: cb.typ(t.Elem, loc)}
	case KTypArray:
		return KTypArray{Dims: t.Dims, Elem: cb.typ(t.Elem, loc)}
	case KTypRecord:
		fields := make([]KField, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = KField{Name: f.Name, Typ: cb.typ(f.Typ, loc)}
		}
		return KTypRecord{Name: t.Name, Fields: fields}
	default:
		return t
	}
}

func (cb *Callbacks) ctx(c Ctx) Ctx {
	return Ctx{Typ: cb.typ(c.Typ, c.Loc), Loc: c.Loc}
}

// WalkExp performs default structural recursion over an expression.
func WalkExp(e KExp, cb *Callbacks) KExp {
	loc := e.KCtx().Loc
	switch e := e.(type) {
	case KExpAtom:
		return KExpAtom{Atom: cb.atom(e.Atom, loc), Ctx: cb.ctx(e.Ctx)}
	case KExpBinary:
		return KExpBinary{Op: e.Op, Left: cb.atom(e.Left, loc), Right: cb.atom(e.Right, loc), Ctx: cb.ctx(e.Ctx)}
	case KExpUnary:
		return KExpUnary{Op: e.Op, Arg: cb.atom(e.Arg, loc), Ctx: cb.ctx(e.Ctx)}
	case KExpIntrin:
		return KExpIntrin{Op: e.Op, Args: cb.atoms(e.Args, loc), Ctx: cb.ctx(e.Ctx)}
	case KExpSeq:
		exps := make([]KExp, len(e.Exps))
		for i, sub := range e.Exps {
			exps[i] = cb.exp(sub)
		}
		return KExpSeq{Exps: exps, Ctx: cb.ctx(e.Ctx)}
	case KExpIf:
		return KExpIf{Cond: cb.exp(e.Cond), Then: cb.exp(e.Then), Else: cb.exp(e.Else), Ctx: cb.ctx(e.Ctx)}
	case KExpCall:
		return KExpCall{Fun: e.Fun, Args: cb.atoms(e.Args, loc), Ctx: cb.ctx(e.Ctx)}
	case KExpMkTuple:
		return KExpMkTuple{Elems: cb.atoms(e.Elems, loc), Ctx: cb.ctx(e.Ctx)}
	case KExpMkRecord:
		return KExpMkRecord{Fields: cb.atoms(e.Fields, loc), Ctx: cb.ctx(e.Ctx)}
	case KExpMkArray:
		rows := make([][]Atom, len(e.Rows))
		for i, r := range e.Rows {
			rows[i] = cb.atoms(r, loc)
		}
		return KExpMkArray{Rows: rows, Ctx: cb.ctx(e.Ctx)}
	case KExpMkClosure:
		return KExpMkClosure{Fun: e.Fun, FreeVars: cb.atoms(e.FreeVars, loc), Ctx: cb.ctx(e.Ctx)}
	case KExpAt:
		idxs := make([]Dom, len(e.Idxs))
		for i, d := range e.Idxs {
			idxs[i] = cb.dom(d, loc)
		}
		return KExpAt{Arr: cb.atom(e.Arr, loc), Idxs: idxs, Ctx: cb.ctx(e.Ctx)}
	case KExpMem:
		return KExpMem{Rec: cb.atom(e.Rec, loc), Idx: e.Idx, Ctx: cb.ctx(e.Ctx)}
	case KExpAssign:
		return KExpAssign{LHS: e.LHS, RHS: cb.exp(e.RHS), Loc: e.Loc}
	case KExpMatch:
		cases := make([]MatchCase, len(e.Cases))
		for i, c := range e.Cases {
			checks := make([]KExp, len(c.Checks))
			for j, chk := range c.Checks {
				checks[j] = cb.exp(chk)
			}
			cases[i] = MatchCase{Checks: checks, Body: cb.exp(c.Body)}
		}
		return KExpMatch{Cases: cases, Ctx: cb.ctx(e.Ctx)}
	case KExpMap:
		stages := make([]MapStage, len(e.Stages))
		for i, st := range e.Stages {
			clauses := make([]LoopClause, len(st.Clauses))
			for j, c := range st.Clauses {
				clauses[j] = LoopClause{Var: c.Var, Dom: cb.dom(c.Dom, loc)}
			}
			var pre KExp
			if st.Pre != nil {
				pre = cb.exp(st.Pre)
			}
			stages[i] = MapStage{Pre: pre, Clauses: clauses, AtIds: st.AtIds}
		}
		return KExpMap{Stages: stages, Body: cb.exp(e.Body), MakeList: e.MakeList, Ctx: cb.ctx(e.Ctx)}
	case KExpFor:
		clauses := make([]LoopClause, len(e.Clauses))
		for i, c := range e.Clauses {
			clauses[i] = LoopClause{Var: c.Var, Dom: cb.dom(c.Dom, loc)}
		}
		return KExpFor{Clauses: clauses, AtIds: e.AtIds, Body: cb.exp(e.Body), Loc: e.Loc}
	case KExpWhile:
		return KExpWhile{Cond: cb.exp(e.Cond), Body: cb.exp(e.Body), Loc: e.Loc}
	case KExpDoWhile:
		return KExpDoWhile{Body: cb.exp(e.Body), Cond: cb.exp(e.Cond), Loc: e.Loc}
	case KExpTryCatch:
		return KExpTryCatch{Body: cb.exp(e.Body), Handler: cb.exp(e.Handler), Ctx: cb.ctx(e.Ctx)}
	case KExpCast:
		return KExpCast{Arg: cb.atom(e.Arg, loc), Ctx: cb.ctx(e.Ctx)}
	case *KDefVal:
		d := *e
		d.Rhs = cb.exp(e.Rhs)
		d.Typ = cb.typ(e.Typ, e.Loc)
		return &d
	case *KDefFun:
		d := *e
		params := make([]KParam, len(e.Params))
		for i, p := range e.Params {
			params[i] = KParam{Name: p.Name, Typ: cb.typ(p.Typ, e.Loc)}
		}
		d.Params = params
		d.RetTyp = cb.typ(e.RetTyp, e.Loc)
		d.Body = cb.exp(e.Body)
		return &d
	case *KDefVariant:
		d := *e
		cases := make([]KVariantCase, len(e.Cases))
		for i, c := range e.Cases {
			cases[i] = KVariantCase{Name: c.Name, Typ: cb.typ(c.Typ, e.Loc)}
		}
		d.Cases = cases
		return &d
	case *KDefExn:
		d := *e
		d.Typ = cb.typ(e.Typ, e.Loc)
		return &d
	case *KDefTyp:
		d := *e
		d.Typ = cb.typ(e.Typ, e.Loc)
		return &d
	default:
		// KExpNop, KExpBreak, KExpContinue, KExpThrow, KExpCCode carry no
		// traversable children.
		return e
	}
}

// Fold is the result-threading variant of Callbacks. Hooks are optional; a
// nil hook means default recursion via FoldTyp/FoldExp.
type Fold struct {
	Typ  func(t KTyp, loc diag.Loc, f *Fold)
	Exp  func(e KExp, f *Fold)
	Atom func(a Atom, loc diag.Loc, f *Fold)
}

func (f *Fold) typ(t KTyp, loc diag.Loc) {
	if t == nil {
		return
	}
	if f.Typ != nil {
		f.Typ(t, loc, f)
		return
	}
	FoldTyp(t, loc, f)
}

func (f *Fold) exp(e KExp) {
	if e == nil {
		return
	}
	if f.Exp != nil {
		f.Exp(e, f)
		return
	}
	FoldExp(e, f)
}

func (f *Fold) atom(a Atom, loc diag.Loc) {
	if a == nil {
		return
	}
	if f.Atom != nil {
		f.Atom(a, loc, f)
	}
}

func (f *Fold) atoms(as []Atom, loc diag.Loc) {
	for _, a := range as {
		f.atom(a, loc)
	}
}

func (f *Fold) dom(d Dom, loc diag.Loc) {
	switch d := d.(type) {
	case DomElem:
		f.atom(d.Atom, loc)
	case DomRange:
		f.atom(d.Begin, loc)
		f.atom(d.End, loc)
		f.atom(d.Delta, loc)
	}
}

// FoldTyp performs default structural recursion over a type.
func FoldTyp(t KTyp, loc diag.Loc, f *Fold) {
	switch t := t.(type) {
	case KTypFun:
		for _, a := range t.Args {
			f.typ(a, loc)
		}
		f.typ(t.Ret, loc)
	case KTypTuple:
		for _, e := range t.Elems {
			f.typ(e, loc)
		}
	case KTypList:
		f.typ(t.Elem, loc)
	case KTypRef:
		f.typ(t.Elem, loc)
	case KTypArray:
		f.typ(t.Elem, loc)
	case KTypRecord:
		for _, fld := range t.Fields {
			f.typ(fld.Typ, loc)
		}
	}
}

// FoldExp performs default structural recursion over an expression.
func FoldExp(e KExp, f *Fold) {
	loc := e.KCtx().Loc
	switch e := e.(type) {
	case KExpAtom:
		f.atom(e.Atom, loc)
		f.typ(e.Ctx.Typ, loc)
	case KExpBinary:
		f.atom(e.Left, loc)
		f.atom(e.Right, loc)
		f.typ(e.Ctx.Typ, loc)
	case KExpUnary:
		f.atom(e.Arg, loc)
		f.typ(e.Ctx.Typ, loc)
	case KExpIntrin:
		f.atoms(e.Args, loc)
		f.typ(e.Ctx.Typ, loc)
	case KExpSeq:
		for _, sub := range e.Exps {
			f.exp(sub)
		}
	case KExpIf:
		f.exp(e.Cond)
		f.exp(e.Then)
		f.exp(e.Else)
	case KExpCall:
		f.atom(AtomId{Id: e.Fun}, loc)
		f.atoms(e.Args, loc)
		f.typ(e.Ctx.Typ, loc)
	case KExpMkTuple:
		f.atoms(e.Elems, loc)
		f.typ(e.Ctx.Typ, loc)
	case KExpMkRecord:
		f.atoms(e.Fields, loc)
		f.typ(e.Ctx.Typ, loc)
	case KExpMkArray:
		for _, r := range e.Rows {
			f.atoms(r, loc)
		}
		f.typ(e.Ctx.Typ, loc)
	case KExpMkClosure:
		f.atom(AtomId{Id: e.Fun}, loc)
		f.atoms(e.FreeVars, loc)
		f.typ(e.Ctx.Typ, loc)
	case KExpAt:
		f.atom(e.Arr, loc)
		for _, d := range e.Idxs {
			f.dom(d, loc)
		}
	case KExpMem:
		f.atom(e.Rec, loc)
	case KExpAssign:
		f.atom(AtomId{Id: e.LHS}, loc)
		f.exp(e.RHS)
	case KExpMatch:
		for _, c := range e.Cases {
			for _, chk := range c.Checks {
				f.exp(chk)
			}
			f.exp(c.Body)
		}
	case KExpMap:
		for _, st := range e.Stages {
			if st.Pre != nil {
				f.exp(st.Pre)
			}
			for _, c := range st.Clauses {
				f.dom(c.Dom, loc)
			}
		}
		f.exp(e.Body)
	case KExpFor:
		for _, c := range e.Clauses {
			f.dom(c.Dom, loc)
		}
		f.exp(e.Body)
	case KExpWhile:
		f.exp(e.Cond)
		f.exp(e.Body)
	case KExpDoWhile:
		f.exp(e.Body)
		f.exp(e.Cond)
	case KExpTryCatch:
		f.exp(e.Body)
		f.exp(e.Handler)
	case KExpThrow:
		f.atom(AtomId{Id: e.Exn}, loc)
	case KExpCast:
		f.atom(e.Arg, loc)
		f.typ(e.Ctx.Typ, loc)
	case *KDefVal:
		f.exp(e.Rhs)
		f.typ(e.Typ, e.Loc)
	case *KDefFun:
		for _, p := range e.Params {
			f.typ(p.Typ, e.Loc)
		}
		f.typ(e.RetTyp, e.Loc)
		f.exp(e.Body)
	case *KDefVariant:
		for _, c := range e.Cases {
			f.typ(c.Typ, e.Loc)
		}
	case *KDefExn:
		f.typ(e.Typ, e.Loc)
	case *KDefTyp:
		f.typ(e.Typ, e.Loc)
	}
}

package knorm

import (
	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// loweredStage is one iteration level after lowering: the domain setup
// code, the loop clauses over fresh proxies, the @-index ids, and the
// pattern-unpacking code that must run at the top of each iteration.
type loweredStage struct {
	code    []kform.KExp
	clauses []kform.LoopClause
	atIds   []ids.Id
	prefix  []kform.KExp
}

// lowerStage lowers the clauses of one for/comprehension nesting level.
// Each "pattern <- domain" clause binds a fresh proxy over the domain and
// unpacks the pattern inside the loop body; a when-guard becomes an
// if-continue at the top of the body.
func (n *Normalizer) lowerStage(st ast.ForStage, loc diag.Loc) (loweredStage, error) {
	var out loweredStage
	for _, cl := range st.Clauses {
		pat := cl.Pat
		var guard ast.Exp
		if w, ok := pat.(ast.PatWhen); ok {
			pat, guard = w.Pat, w.Guard
		}

		dom, code, err := n.lowerDom(cl.Domain, out.code)
		out.code = code
		if err != nil {
			return out, err
		}

		elemTyp, err := n.domainElemTyp(cl.Domain, loc)
		if err != nil {
			return out, err
		}

		var loopVar ids.Id
		if id, ok := identOf(pat); ok {
			loopVar = id
		} else {
			loopVar = n.C.NewTemp("i")
		}
		dv := &kform.KDefVal{Name: loopVar, Rhs: kform.KExpNop{Loc: loc},
			Flags: ast.ValFlags{TempRef: true}, Typ: elemTyp, Loc: loc}
		if err := n.C.SetKInfo(loopVar, dv); err != nil {
			return out, err
		}
		out.clauses = append(out.clauses, kform.LoopClause{Var: loopVar, Dom: dom})

		if _, ok := identOf(pat); !ok {
			proxy := kform.KExpAtom{
				Atom: kform.AtomId{Id: loopVar},
				Ctx:  kform.Ctx{Typ: elemTyp, Loc: loc},
			}
			out.prefix, err = n.patSimpleUnpack(pat, proxy, ast.ValFlags{}, out.prefix)
			if err != nil {
				return out, err
			}
		}

		if cl.IdxPat != nil {
			dims := domainDims(cl.Domain)
			atIds, prefix, err := n.lowerIdxPat(cl.IdxPat, dims, loc)
			if err != nil {
				return out, err
			}
			out.atIds = append(out.atIds, atIds...)
			out.prefix = append(out.prefix, prefix...)
		}

		if guard != nil {
			g, err := n.expFold(guard)
			if err != nil {
				return out, err
			}
			skip := kform.KExpIf{
				Cond: g,
				Then: kform.KExpNop{Loc: loc},
				Else: kform.KExpContinue{Loc: loc},
				Ctx:  kform.Ctx{Typ: kform.KTypVoid{}, Loc: loc},
			}
			out.prefix = append(out.prefix, skip)
		}
	}
	return out, nil
}

// domainElemTyp computes the type of the loop proxy bound over a domain.
func (n *Normalizer) domainElemTyp(domain ast.Exp, loc diag.Loc) (kform.KTyp, error) {
	if _, ok := domain.(ast.ExpRange); ok {
		return kform.KTypInt{}, nil
	}
	dt, err := n.Typ2KTyp(domain.Context().Typ, loc)
	if err != nil {
		return nil, err
	}
	switch dt := dt.(type) {
	case kform.KTypArray:
		return dt.Elem, nil
	case kform.KTypList:
		return dt.Elem, nil
	case kform.KTypString:
		return kform.KTypChar{}, nil
	default:
		return nil, n.errf(diag.Type, loc, "cannot iterate over a value of type %s", kform.TypString(dt))
	}
}

// domainDims is the number of @-index axes a domain provides.
func domainDims(domain ast.Exp) int {
	if t, ok := domain.Context().Typ.(ast.TypArray); ok {
		return t.Dims
	}
	return 1
}

// lowerIdxPat lowers an @-index pattern: nothing for PatAny, a single
// bound index for an int ident, one fresh index per axis bundled into the
// named tuple for a tuple-typed ident.
func (n *Normalizer) lowerIdxPat(p ast.Pat, dims int, loc diag.Loc) ([]ids.Id, []kform.KExp, error) {
	switch p := p.(type) {
	case ast.PatAny:
		return nil, nil, nil
	case ast.PatTyped:
		return n.lowerIdxPat(p.Pat, dims, loc)
	case ast.PatIdent:
		if dims <= 1 {
			dv := &kform.KDefVal{Name: p.Id, Rhs: kform.KExpNop{Loc: loc},
				Flags: ast.ValFlags{TempRef: true}, Typ: kform.KTypInt{}, Loc: loc}
			if err := n.C.SetKInfo(p.Id, dv); err != nil {
				return nil, nil, err
			}
			return []ids.Id{p.Id}, nil, nil
		}
		// a tuple-typed index: fresh per-axis ids, then the named tuple
		atIds := make([]ids.Id, dims)
		atoms := make([]kform.Atom, dims)
		elems := make([]kform.KTyp, dims)
		for i := range atIds {
			idx := n.C.NewTemp("idx")
			dv := &kform.KDefVal{Name: idx, Rhs: kform.KExpNop{Loc: loc},
				Flags: ast.ValFlags{TempRef: true}, Typ: kform.KTypInt{}, Loc: loc}
			if err := n.C.SetKInfo(idx, dv); err != nil {
				return nil, nil, err
			}
			atIds[i] = idx
			atoms[i] = kform.AtomId{Id: idx}
			elems[i] = kform.KTypInt{}
		}
		tupTyp := kform.KTypTuple{Elems: elems}
		bundle := &kform.KDefVal{
			Name: p.Id,
			Rhs:  kform.KExpMkTuple{Elems: atoms, Ctx: kform.Ctx{Typ: tupTyp, Loc: loc}},
			Typ:  tupTyp,
			Loc:  loc,
		}
		if err := n.C.SetKInfo(p.Id, bundle); err != nil {
			return nil, nil, err
		}
		return atIds, []kform.KExp{bundle}, nil
	case ast.PatTuple:
		var atIds []ids.Id
		var prefix []kform.KExp
		for _, ep := range p.Elems {
			ids2, pfx, err := n.lowerIdxPat(ep, 1, loc)
			if err != nil {
				return nil, nil, err
			}
			atIds = append(atIds, ids2...)
			prefix = append(prefix, pfx...)
		}
		return atIds, prefix, nil
	}
	return nil, nil, n.errf(diag.PatternMatch, p.PatLoc(), "invalid @-index pattern")
}

// lowerFor lowers an imperative for loop; nested stages nest in the body.
func (n *Normalizer) lowerFor(e ast.ExpFor, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	loop, err := n.lowerForStages(e.Stages, e.Body, loc)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	return loop, code, nil
}

func (n *Normalizer) lowerForStages(stages []ast.ForStage, body ast.Exp, loc diag.Loc) (kform.KExp, error) {
	if len(stages) == 0 {
		b, err := n.expFold(body)
		if err != nil {
			return kform.KExpNop{Loc: loc}, err
		}
		return b, nil
	}
	st, err := n.lowerStage(stages[0], loc)
	if err != nil {
		return kform.KExpNop{Loc: loc}, err
	}
	inner, err := n.lowerForStages(stages[1:], body, loc)
	if err != nil {
		return kform.KExpNop{Loc: loc}, err
	}
	all := make([]kform.KExp, 0, len(st.prefix)+1)
	all = append(all, st.prefix...)
	all = append(all, inner)
	loop := kform.KExpFor{Clauses: st.clauses, AtIds: st.atIds, Body: kform.Seq(all...), Loc: loc}
	return code2kexp(st.code, loop), nil
}

// lowerMap lowers an array/list comprehension, preserving the list of
// nested clause stages so later passes can optimize each independently.
// The pattern-unpacking code of a stage runs once per iteration of that
// stage, so it lands in the next stage's pre-code (or at the top of the
// body for the innermost stage).
func (n *Normalizer) lowerMap(e ast.ExpMap, code []kform.KExp) (kform.KExp, []kform.KExp, error) {
	loc := e.Ctx.Loc
	ctx, err := n.kctx(e)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}

	kstages := make([]kform.MapStage, len(e.Stages))
	var carried []kform.KExp
	for i, st := range e.Stages {
		lowered, err := n.lowerStage(st, loc)
		if err != nil {
			return kform.KExpNop{Loc: loc}, code, err
		}
		pre := make([]kform.KExp, 0, len(carried)+len(lowered.code))
		pre = append(pre, carried...)
		pre = append(pre, lowered.code...)
		kstages[i] = kform.MapStage{
			Pre:     kform.Seq(pre...),
			Clauses: lowered.clauses,
			AtIds:   lowered.atIds,
		}
		carried = lowered.prefix
	}

	body, err := n.expFold(e.Body)
	if err != nil {
		return kform.KExpNop{Loc: loc}, code, err
	}
	all := make([]kform.KExp, 0, len(carried)+1)
	all = append(all, carried...)
	all = append(all, body)

	return kform.KExpMap{
		Stages:   kstages,
		Body:     kform.Seq(all...),
		MakeList: e.MakeList,
		Ctx:      ctx,
	}, code, nil
}

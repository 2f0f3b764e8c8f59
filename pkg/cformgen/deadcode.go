package cformgen

import (
	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
)

// elimIterBound caps the dead-type elimination loop; exceeding it means
// the dependency scan stopped converging, which is a compiler bug.
const elimIterBound = 100

// ElimDeadTypes drops every type declaration, forward declaration and
// free/copy/make utility whose type is not transitively referenced from the
// unit's value and function definitions. The scan iterates to a fixpoint:
// dropping one type can orphan the types only it referenced.
func (g *Generator) ElimDeadTypes(stmts []cform.CStmt) ([]cform.CStmt, error) {
	owner := func(s cform.CStmt) (int, bool) {
		switch d := s.(type) {
		case *cform.CDefTyp:
			return d.Name.Key(), true
		case *cform.CDefEnum:
			if o, ok := g.utilOwner[d.Name.Key()]; ok {
				return o, true
			}
			return d.Name.Key(), true
		case *cform.CDefFun:
			if o, ok := g.utilOwner[d.Name.Key()]; ok {
				return o, true
			}
		case *cform.CDefForward:
			if o, ok := g.utilOwner[d.Of.Key()]; ok {
				return o, true
			}
			return d.Of.Key(), true
		}
		return 0, false
	}

	live := map[int]bool{}
	// roots: every id referenced from statements that do not belong to a
	// generated type (user functions, values, macros)
	for _, s := range stmts {
		if _, owned := owner(s); owned {
			continue
		}
		collectRefs(s, live)
	}

	for iter := 0; ; iter++ {
		if iter >= elimIterBound {
			return nil, diag.Internalf(diag.NoLoc, "dead-type elimination did not converge in %d iterations", elimIterBound)
		}
		grew := false
		// a live utility keeps its owning type alive
		for k := range live {
			if o, ok := g.utilOwner[k]; ok && !live[o] {
				live[o] = true
				grew = true
			}
		}
		for _, s := range stmts {
			o, owned := owner(s)
			if !owned || !live[o] {
				continue
			}
			before := len(live)
			collectRefs(s, live)
			live[o] = true
			if len(live) != before {
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	out := make([]cform.CStmt, 0, len(stmts))
	for _, s := range stmts {
		if o, owned := owner(s); owned && !live[o] {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// collectRefs records every type and function id a statement mentions.
func collectRefs(s cform.CStmt, into map[int]bool) {
	switch s := s.(type) {
	case cform.CStmtExp:
		collectExpRefs(s.Exp, into)
	case cform.CStmtBlock:
		for _, sub := range s.Stmts {
			collectRefs(sub, into)
		}
	case cform.CStmtIf:
		collectExpRefs(s.Cond, into)
		collectRefs(s.Then, into)
		if s.Else != nil {
			collectRefs(s.Else, into)
		}
	case cform.CStmtFor:
		if s.Init != nil {
			collectRefs(s.Init, into)
		}
		collectExpRefs(s.Cond, into)
		collectExpRefs(s.Step, into)
		collectRefs(s.Body, into)
	case cform.CStmtWhile:
		collectExpRefs(s.Cond, into)
		collectRefs(s.Body, into)
	case cform.CStmtDoWhile:
		collectRefs(s.Body, into)
		collectExpRefs(s.Cond, into)
	case cform.CStmtSwitch:
		collectExpRefs(s.Arg, into)
		for _, c := range s.Cases {
			for _, sub := range c.Body {
				collectRefs(sub, into)
			}
		}
		for _, sub := range s.Default {
			collectRefs(sub, into)
		}
	case cform.CStmtReturn:
		collectExpRefs(s.Value, into)
	case *cform.CDefVal:
		collectTypRefs(s.Typ, into)
		collectExpRefs(s.Init, into)
	case *cform.CDefFun:
		collectTypRefs(s.RetTyp, into)
		for _, p := range s.Params {
			collectTypRefs(p.Typ, into)
		}
		for _, sub := range s.Body {
			collectRefs(sub, into)
		}
	case *cform.CDefTyp:
		collectTypRefs(s.Typ, into)
		markId(s.Props.FreeFn, into)
		markId(s.Props.CopyFn, into)
		for _, ctor := range s.Props.Ctors {
			markId(ctor, into)
		}
	}
}

func collectExpRefs(e cform.CExp, into map[int]bool) {
	switch e := e.(type) {
	case nil:
	case cform.CExpIdent:
		markId(e.Id, into)
		collectTypRefs(e.Typ, into)
	case cform.CExpLit:
		collectTypRefs(e.Typ, into)
	case cform.CExpBinary:
		collectExpRefs(e.Left, into)
		collectExpRefs(e.Right, into)
	case cform.CExpUnary:
		collectExpRefs(e.Arg, into)
	case cform.CExpMem:
		collectExpRefs(e.Rec, into)
		collectTypRefs(e.Typ, into)
	case cform.CExpArrow:
		collectExpRefs(e.Rec, into)
		collectTypRefs(e.Typ, into)
	case cform.CExpCast:
		collectExpRefs(e.Arg, into)
		collectTypRefs(e.Typ, into)
	case cform.CExpTernary:
		collectExpRefs(e.Cond, into)
		collectExpRefs(e.Then, into)
		collectExpRefs(e.Else, into)
	case cform.CExpCall:
		collectExpRefs(e.Fun, into)
		for _, a := range e.Args {
			collectExpRefs(a, into)
		}
	case cform.CExpInit:
		for _, el := range e.Elems {
			collectExpRefs(el, into)
		}
		collectTypRefs(e.Typ, into)
	}
}

func collectTypRefs(t cform.CTyp, into map[int]bool) {
	switch t := t.(type) {
	case nil:
	case cform.CTypName:
		markId(t.Id, into)
	case cform.CTypStruct:
		for _, f := range t.Fields {
			collectTypRefs(f.Typ, into)
		}
	case cform.CTypUnion:
		for _, f := range t.Fields {
			collectTypRefs(f.Typ, into)
		}
	case cform.CTypRawPtr:
		collectTypRefs(t.Elem, into)
	case cform.CTypRawArray:
		collectTypRefs(t.Elem, into)
	case cform.CTypFunRawPtr:
		for _, a := range t.Args {
			collectTypRefs(a, into)
		}
		collectTypRefs(t.Ret, into)
	}
}

func markId(id ids.Id, into map[int]bool) {
	if !id.IsNone() && id.Num >= 0 {
		into[id.Key()] = true
	}
}

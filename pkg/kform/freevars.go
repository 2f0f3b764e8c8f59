package kform

import (
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
)

// IdSet is a set of identifiers keyed by their unique index.
type IdSet map[int]ids.Id

// Add inserts a resolved id; temporaries and values alike.
func (s IdSet) Add(id ids.Id) {
	if !id.IsNone() {
		s[id.Key()] = id
	}
}

// Has reports membership.
func (s IdSet) Has(id ids.Id) bool {
	_, ok := s[id.Key()]
	return ok
}

// Minus returns s \ other.
func (s IdSet) Minus(other IdSet) IdSet {
	out := IdSet{}
	for k, id := range s {
		if _, ok := other[k]; !ok {
			out[k] = id
		}
	}
	return out
}

// UsedDeclared folds over e and returns the identifiers it uses and the
// identifiers it declares. Binders are KDefVal names, function parameters,
// for/comprehension loop variables and @-indices.
func UsedDeclared(e KExp) (used, declared IdSet) {
	used, declared = IdSet{}, IdSet{}
	f := &Fold{}
	f.Atom = func(a Atom, _ diag.Loc, _ *Fold) {
		if id, ok := a.(AtomId); ok {
			used.Add(id.Id)
		}
	}
	f.Exp = func(e KExp, f *Fold) {
		switch e := e.(type) {
		case *KDefVal:
			declared.Add(e.Name)
		case *KDefFun:
			declared.Add(e.Name)
			for _, p := range e.Params {
				declared.Add(p.Name)
			}
		case *KDefVariant:
			declared.Add(e.Name)
			for _, c := range e.Ctors {
				declared.Add(c)
			}
		case *KDefExn:
			declared.Add(e.Name)
			declared.Add(e.Ctor)
		case *KDefTyp:
			declared.Add(e.Name)
		case KExpFor:
			for _, c := range e.Clauses {
				declared.Add(c.Var)
			}
			for _, a := range e.AtIds {
				declared.Add(a)
			}
		case KExpMap:
			for _, st := range e.Stages {
				for _, c := range st.Clauses {
					declared.Add(c.Var)
				}
				for _, a := range st.AtIds {
					declared.Add(a)
				}
			}
		}
		FoldExp(e, f)
	}
	f.exp(e)
	return used, declared
}

// FreeVars returns used(e) \ declared(e).
func FreeVars(e KExp) IdSet {
	used, declared := UsedDeclared(e)
	return used.Minus(declared)
}

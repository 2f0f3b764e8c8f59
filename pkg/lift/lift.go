// Package lift implements the simple lambda lift: nested functions that
// capture nothing are hoisted to module scope, and type, variant and
// exception definitions are hoisted unconditionally. Functions with real
// captures are left in place for the full closure-conversion pass.
package lift

import (
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

// Lifter hoists no-capture definitions within one module.
type Lifter struct {
	C        *symtab.Compilation
	topLevel kform.IdSet
	hoisted  []kform.KExp
	changed  bool
}

// New creates a lifter.
func New(c *symtab.Compilation) *Lifter {
	return &Lifter{C: c}
}

// TransformModule runs two fixed-point passes over the module so that
// mutually-recursive sets of no-capture functions are hoisted together.
func (l *Lifter) TransformModule(m *kform.Module) *kform.Module {
	l.topLevel = kform.IdSet{}
	for _, s := range m.Stmts {
		l.noteTopLevel(s)
	}

	for pass := 0; pass < 2; pass++ {
		l.changed = false
		stmts := make([]kform.KExp, 0, len(m.Stmts))
		for _, s := range m.Stmts {
			stmts = append(stmts, l.transformTop(s))
			if len(l.hoisted) > 0 {
				stmts = append(stmts, l.hoisted...)
				for _, h := range l.hoisted {
					l.noteTopLevel(h)
				}
				l.hoisted = nil
			}
		}
		m.Stmts = stmts
		if !l.changed {
			break
		}
	}
	return m
}

func (l *Lifter) noteTopLevel(s kform.KExp) {
	switch d := s.(type) {
	case *kform.KDefVal:
		d.Flags.Global = true
		l.topLevel.Add(d.Name)
	case *kform.KDefFun:
		l.topLevel.Add(d.Name)
	case *kform.KDefVariant:
		l.topLevel.Add(d.Name)
		for _, c := range d.Ctors {
			l.topLevel.Add(c)
		}
	case *kform.KDefExn:
		l.topLevel.Add(d.Name)
		l.topLevel.Add(d.Ctor)
	case *kform.KDefTyp:
		l.topLevel.Add(d.Name)
	}
}

// transformTop rewrites the bodies of top-level statements, extracting
// hoistable nested definitions.
func (l *Lifter) transformTop(s kform.KExp) kform.KExp {
	cb := &kform.Callbacks{}
	cb.Exp = func(e kform.KExp, cb *kform.Callbacks) kform.KExp {
		switch d := e.(type) {
		case *kform.KDefFun:
			if l.topLevel.Has(d.Name) {
				return kform.WalkExp(e, cb)
			}
			// rewrite the nested body first so inner hoists happen before
			// the capture analysis of the outer function
			rewritten := kform.WalkExp(e, cb).(*kform.KDefFun)
			if l.hoistable(rewritten) {
				l.hoisted = append(l.hoisted, rewritten)
				l.changed = true
				return kform.KExpNop{Loc: d.Loc}
			}
			return rewritten
		case *kform.KDefVariant, *kform.KDefExn, *kform.KDefTyp:
			if l.topLevel.Has(defName(d)) {
				return e
			}
			l.hoisted = append(l.hoisted, e)
			l.changed = true
			return kform.KExpNop{Loc: e.KCtx().Loc}
		case *kform.KDefVal:
			if !d.Flags.CtorOf.IsNone() && !l.topLevel.Has(d.Name) {
				l.hoisted = append(l.hoisted, d)
				l.changed = true
				return kform.KExpNop{Loc: d.Loc}
			}
			return kform.WalkExp(e, cb)
		}
		return kform.WalkExp(e, cb)
	}
	return cb.Exp(s, cb)
}

func defName(e kform.KExp) ids.Id {
	if d, ok := e.(kform.Def); ok {
		return d.DefName()
	}
	return ids.None
}

// hoistable reports whether every free variable of the function is a
// module-scope entity: a global value, a type, a variant, an exception, a
// constructor or a C-code function.
func (l *Lifter) hoistable(d *kform.KDefFun) bool {
	free := kform.FreeVars(d.Body)
	for _, p := range d.Params {
		delete(free, p.Name.Key())
	}
	delete(free, d.Name.Key())
	for _, id := range free {
		if !l.globalRef(id) {
			return false
		}
	}
	return true
}

func (l *Lifter) globalRef(id ids.Id) bool {
	if l.topLevel.Has(id) {
		return true
	}
	switch def := l.C.KInfoOrNil(id).(type) {
	case *kform.KDefVariant, *kform.KDefExn, *kform.KDefTyp:
		return true
	case *kform.KDefVal:
		return def.Flags.Global || !def.Flags.CtorOf.IsNone()
	case *kform.KDefFun:
		return def.Flags.CCode || !def.Flags.Ctor.IsNone()
	}
	return false
}

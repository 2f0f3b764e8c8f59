package mangle

import (
	"fmt"
	"strings"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

// Mangler assigns C names to the global entities of one module and
// materializes anonymous structural types into named type definitions.
type Mangler struct {
	C      *symtab.Compilation
	module ids.Id

	// fresh KDefTyps created by type materialization, prepended to the
	// module statements when the pass finishes
	created []kform.KExp
}

// New creates a mangler for the given module.
func New(c *symtab.Compilation, module ids.Id) *Mangler {
	return &Mangler{C: c, module: module}
}

// MangleModule assigns names to every top-level definition of the module
// and rewrites every anonymous tuple/list/ref/function type into a
// reference to a materialized named type. After the pass the only
// structural types left in the module are records and arrays.
func (m *Mangler) MangleModule(mod *kform.Module) error {
	// name the nominal types first so signatures of dependent entities can
	// reference them
	for _, s := range mod.Stmts {
		if err := m.mangleDef(s); err != nil {
			if diag.IsInternal(err) {
				return err
			}
		}
	}

	var walkErr error
	cb := &kform.Callbacks{}
	cb.Typ = func(t kform.KTyp, loc diag.Loc, cb *kform.Callbacks) kform.KTyp {
		walked := kform.WalkTyp(t, loc, cb)
		nt, err := m.materialize(walked, loc)
		if err != nil {
			if walkErr == nil {
				walkErr = err
			}
			return walked
		}
		return nt
	}
	stmts := make([]kform.KExp, len(mod.Stmts))
	for i, s := range mod.Stmts {
		stmts[i] = kform.WalkExp(s, cb)
		if walkErr != nil {
			return walkErr
		}
		if def, ok := stmts[i].(kform.Def); ok {
			if err := m.C.SetKInfo(def.DefName(), def); err != nil {
				return err
			}
		}
	}

	if len(m.created) > 0 {
		all := make([]kform.KExp, 0, len(m.created)+len(stmts))
		all = append(all, m.created...)
		all = append(all, stmts...)
		stmts = all
		m.created = nil
	}
	mod.Stmts = stmts
	return nil
}

// mangleDef assigns the C name for one top-level definition.
func (m *Mangler) mangleDef(s kform.KExp) error {
	switch d := s.(type) {
	case *kform.KDefFun:
		if d.CName != "" {
			return nil
		}
		ftyp := kform.KTypFun{Args: paramTyps(d.Params), Ret: d.RetTyp}
		sig, err := m.Signature(ftyp, d.Loc)
		if err != nil {
			return err
		}
		qn := m.qualifiedWith(d.Scope, d.Name)
		d.CName = m.unique("_fx_F", qn, m.compress(sig, d.Scope), d.Name)
		return nil
	case *kform.KDefVal:
		if d.CName != "" || !(d.Flags.Global || !d.Flags.CtorOf.IsNone()) {
			return nil
		}
		qn := m.qualifiedWith(ast.ScopePath{m.module}, d.Name)
		d.CName = m.unique("_fx_g", qn, "", d.Name)
		return nil
	case *kform.KDefVariant:
		if d.CName != "" {
			return nil
		}
		qn := m.qualifiedWith(d.Scope, d.Name)
		d.CName = m.unique("_fx_N", qn, "", d.Name)
		return nil
	case *kform.KDefTyp:
		if d.CName != "" {
			return nil
		}
		qn := m.qualifiedWith(d.Scope, d.Name)
		d.CName = m.unique("_fx_N", qn, "", d.Name)
		return nil
	case *kform.KDefExn:
		if d.CName != "" {
			return nil
		}
		if isBuiltinScope(d.Scope) {
			d.CName = "FX_EXN_" + d.Name.Prefix
			m.C.MangledNames[d.CName] = d.Name
			return nil
		}
		qn := m.qualifiedWith(d.Scope, d.Name)
		d.CName = m.unique("_fx_E", qn, "", d.Name)
		return nil
	}
	return nil
}

// materialize rewrites an anonymous structural type into a reference to a
// named type definition, creating the definition on first encounter. The
// mangle map doubles as the memo, so the same structure is materialized
// exactly once per compilation. Arrays and records pass through unchanged.
func (m *Mangler) materialize(t kform.KTyp, loc diag.Loc) (kform.KTyp, error) {
	switch t.(type) {
	case kform.KTypTuple, kform.KTypList, kform.KTypRef, kform.KTypFun:
	default:
		return t, nil
	}

	sig, err := m.Signature(t, loc)
	if err != nil {
		return nil, err
	}
	if id, ok := m.C.TypeInstances[sig]; ok {
		return kform.KTypName{Id: id}, nil
	}

	id := m.C.NewVal(sig)
	cname := "_fx_" + sig
	if _, taken := m.C.MangledNames[cname]; taken {
		return nil, diag.Internalf(loc, "materialized type name %s clashes with an existing symbol", cname)
	}
	dt := &kform.KDefTyp{Name: id, Typ: t, CName: cname, Loc: loc}
	if err := m.C.SetKInfo(id, dt); err != nil {
		return nil, err
	}
	m.C.TypeInstances[sig] = id
	m.C.MangledNames[cname] = id
	m.created = append(m.created, dt)
	return kform.KTypName{Id: id}, nil
}

// unique builds "<prefix><len><qualified><suffix>" and resolves collisions
// by retrying with "1_", "2_", ... appended to the qualified name.
func (m *Mangler) unique(prefix, qualified, suffix string, id ids.Id) string {
	for try := 0; ; try++ {
		qn := qualified
		if try > 0 {
			qn = fmt.Sprintf("%s%d_", qualified, try)
		}
		candidate := fmt.Sprintf("%s%d%s%s", prefix, len(qn), qn, suffix)
		owner, taken := m.C.MangledNames[candidate]
		if !taken {
			m.C.MangledNames[candidate] = id
			return candidate
		}
		if ids.Equal(owner, id) {
			return candidate
		}
	}
}

// compress shortens a function signature by replacing occurrences of the
// enclosing module prefix with the single-letter marker "M": the prefix is
// already spelled out once in the function's qualified name, so repeats in
// the signature carry no information.
func (m *Mangler) compress(sig string, scope ast.ScopePath) string {
	p := scopeJoin(scope)
	if p == "" {
		return sig
	}
	return strings.ReplaceAll(sig, p+"__", "M")
}

func scopeJoin(scope ast.ScopePath) string {
	parts := make([]string, 0, len(scope))
	for _, s := range scope {
		if s.Prefix == builtinsModule {
			continue
		}
		parts = append(parts, s.Prefix)
	}
	return strings.Join(parts, "__")
}

func (m *Mangler) qualifiedWith(scope ast.ScopePath, id ids.Id) string {
	if p := scopeJoin(scope); p != "" {
		return p + "__" + id.Prefix
	}
	return id.Prefix
}

func isBuiltinScope(scope ast.ScopePath) bool {
	for _, s := range scope {
		if s.Prefix == builtinsModule {
			return true
		}
	}
	return false
}

func paramTyps(params []kform.KParam) []kform.KTyp {
	out := make([]kform.KTyp, len(params))
	for i, p := range params {
		out[i] = p.Typ
	}
	return out
}

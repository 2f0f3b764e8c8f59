// Package mangle assigns globally unique, deterministic C-compatible names
// to every value, function, type, variant case and exception, and collapses
// anonymous structural types (tuples, lists, refs, function types) into
// named nominal types. Mangled names are a pure function of the input tree,
// so repeated compilations produce byte-identical output.
package mangle

import (
	"fmt"
	"strings"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// builtinsModule is the distinguished module skipped in scope prefixes.
const builtinsModule = "Builtins"

// Signature encodes a K-form type as a compact string: a single letter per
// scalar, composed recursively for structural types. The encoding is the
// memoization key for type materialization, so equal structures always
// yield equal strings.
func (m *Mangler) Signature(t kform.KTyp, loc diag.Loc) (string, error) {
	switch t := t.(type) {
	case kform.KTypInt:
		return "i", nil
	case kform.KTypSInt:
		switch t.Bits {
		case 8:
			return "c", nil
		case 16:
			return "s", nil
		case 32:
			return "n", nil
		default:
			return "l", nil
		}
	case kform.KTypUInt:
		switch t.Bits {
		case 8:
			return "b", nil
		case 16:
			return "w", nil
		case 32:
			return "u", nil
		default:
			return "q", nil
		}
	case kform.KTypFloat:
		switch t.Bits {
		case 16:
			return "h", nil
		case 32:
			return "f", nil
		default:
			return "d", nil
		}
	case kform.KTypVoid:
		return "v", nil
	case kform.KTypBool:
		return "B", nil
	case kform.KTypChar:
		return "C", nil
	case kform.KTypString:
		return "S", nil
	case kform.KTypCPtr:
		return "p", nil
	case kform.KTypExn:
		return "E", nil
	case kform.KTypErr:
		return "", diag.Internalf(loc, "KTypErr in the name mangler")
	case kform.KTypFun:
		ret, err := m.Signature(t.Ret, loc)
		if err != nil {
			return "", err
		}
		sb := strings.Builder{}
		fmt.Fprintf(&sb, "FP%s%d", ret, len(t.Args))
		for _, a := range t.Args {
			s, err := m.Signature(a, loc)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		}
		return sb.String(), nil
	case kform.KTypTuple:
		if len(t.Elems) == 0 {
			return "", diag.Internalf(loc, "tuple of zero elements")
		}
		allEqual := true
		for _, e := range t.Elems[1:] {
			if !kform.TypEqual(e, t.Elems[0]) {
				allEqual = false
				break
			}
		}
		if allEqual && len(t.Elems) > 1 {
			s, err := m.Signature(t.Elems[0], loc)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Ta%d%s", len(t.Elems), s), nil
		}
		sb := strings.Builder{}
		fmt.Fprintf(&sb, "T%d", len(t.Elems))
		for _, e := range t.Elems {
			s, err := m.Signature(e, loc)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		}
		return sb.String(), nil
	case kform.KTypArray:
		elem, err := m.Signature(t.Elem, loc)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("A%d%s", t.Dims, elem), nil
	case kform.KTypList:
		elem, err := m.Signature(t.Elem, loc)
		if err != nil {
			return "", err
		}
		return "L" + elem, nil
	case kform.KTypRef:
		elem, err := m.Signature(t.Elem, loc)
		if err != nil {
			return "", err
		}
		return "r" + elem, nil
	case kform.KTypRecord:
		name := t.Name
		if name.IsNone() {
			// anonymous record: encode structurally like a tuple of fields
			sb := strings.Builder{}
			fmt.Fprintf(&sb, "R%d", len(t.Fields))
			for _, f := range t.Fields {
				s, err := m.Signature(f.Typ, loc)
				if err != nil {
					return "", err
				}
				sb.WriteString(s)
			}
			return sb.String(), nil
		}
		qn := m.qualifiedName(name)
		return fmt.Sprintf("R%d%s", len(qn), qn), nil
	case kform.KTypName:
		def := m.C.KInfoOrNil(t.Id)
		qn := m.qualifiedName(t.Id)
		if _, isVariant := def.(*kform.KDefVariant); isVariant {
			return fmt.Sprintf("V%d%s", len(qn), qn), nil
		}
		return fmt.Sprintf("R%d%s", len(qn), qn), nil
	}
	return "", diag.Internalf(loc, "unsupported ktyp %T in the name mangler", t)
}

// qualifiedName joins the enclosing module scopes with "__", skipping the
// Builtins module, and appends the entity's own prefix.
func (m *Mangler) qualifiedName(id ids.Id) string {
	return m.qualifiedWith(m.scopeOf(id), id)
}

func (m *Mangler) scopeOf(id ids.Id) ast.ScopePath {
	switch def := m.C.KInfoOrNil(id).(type) {
	case *kform.KDefFun:
		return def.Scope
	case *kform.KDefVariant:
		return def.Scope
	case *kform.KDefExn:
		return def.Scope
	case *kform.KDefTyp:
		return def.Scope
	}
	return nil
}

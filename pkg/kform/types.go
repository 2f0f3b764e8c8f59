package kform

import "github.com/andrey-golubev/ficus/pkg/ids"

// TypEqual compares two K-form types structurally. Nominal types compare by
// id index.
func TypEqual(a, b KTyp) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case KTypInt, KTypVoid, KTypBool, KTypChar, KTypString, KTypCPtr, KTypExn, KTypErr:
		return a == b
	case KTypSInt:
		tb, ok := b.(KTypSInt)
		return ok && ta.Bits == tb.Bits
	case KTypUInt:
		tb, ok := b.(KTypUInt)
		return ok && ta.Bits == tb.Bits
	case KTypFloat:
		tb, ok := b.(KTypFloat)
		return ok && ta.Bits == tb.Bits
	case KTypFun:
		tb, ok := b.(KTypFun)
		if !ok || len(ta.Args) != len(tb.Args) || !TypEqual(ta.Ret, tb.Ret) {
			return false
		}
		for i, arg := range ta.Args {
			if !TypEqual(arg, tb.Args[i]) {
				return false
			}
		}
		return true
	case KTypTuple:
		tb, ok := b.(KTypTuple)
		if !ok || len(ta.Elems) != len(tb.Elems) {
			return false
		}
		for i, e := range ta.Elems {
			if !TypEqual(e, tb.Elems[i]) {
				return false
			}
		}
		return true
	case KTypList:
		tb, ok := b.(KTypList)
		return ok && TypEqual(ta.Elem, tb.Elem)
	case KTypRef:
		tb, ok := b.(KTypRef)
		return ok && TypEqual(ta.Elem, tb.Elem)
	case KTypArray:
		tb, ok := b.(KTypArray)
		return ok && ta.Dims == tb.Dims && TypEqual(ta.Elem, tb.Elem)
	case KTypRecord:
		tb, ok := b.(KTypRecord)
		if !ok || len(ta.Fields) != len(tb.Fields) {
			return false
		}
		if !ta.Name.IsNone() || !tb.Name.IsNone() {
			return ids.Equal(ta.Name, tb.Name)
		}
		for i, f := range ta.Fields {
			if !ids.Equal(f.Name, tb.Fields[i].Name) || !TypEqual(f.Typ, tb.Fields[i].Typ) {
				return false
			}
		}
		return true
	case KTypName:
		tb, ok := b.(KTypName)
		return ok && ids.Equal(ta.Id, tb.Id)
	}
	return false
}

// IsVoid reports whether t is the unit/void type.
func IsVoid(t KTyp) bool {
	_, ok := t.(KTypVoid)
	return ok
}

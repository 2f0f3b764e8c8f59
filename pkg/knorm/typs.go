package knorm

import (
	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// Typ2KTyp converts a source type to its K-form counterpart.
func (n *Normalizer) Typ2KTyp(t ast.Typ, loc diag.Loc) (kform.KTyp, error) {
	switch t := t.(type) {
	case nil:
		return nil, diag.Internalf(loc, "missing type annotation in a type-checked tree")
	case ast.TypInt:
		return kform.KTypInt{}, nil
	case ast.TypSInt:
		return kform.KTypSInt{Bits: t.Bits}, nil
	case ast.TypUInt:
		return kform.KTypUInt{Bits: t.Bits}, nil
	case ast.TypFloat:
		return kform.KTypFloat{Bits: t.Bits}, nil
	case ast.TypBool:
		return kform.KTypBool{}, nil
	case ast.TypChar:
		return kform.KTypChar{}, nil
	case ast.TypString:
		return kform.KTypString{}, nil
	case ast.TypVoid:
		return kform.KTypVoid{}, nil
	case ast.TypExn:
		return kform.KTypExn{}, nil
	case ast.TypCPtr:
		return kform.KTypCPtr{}, nil
	case ast.TypFun:
		args := make([]kform.KTyp, len(t.Args))
		for i, a := range t.Args {
			ka, err := n.Typ2KTyp(a, loc)
			if err != nil {
				return nil, err
			}
			args[i] = ka
		}
		ret, err := n.Typ2KTyp(t.Ret, loc)
		if err != nil {
			return nil, err
		}
		return kform.KTypFun{Args: args, Ret: ret}, nil
	case ast.TypTuple:
		elems := make([]kform.KTyp, len(t.Elems))
		for i, e := range t.Elems {
			ke, err := n.Typ2KTyp(e, loc)
			if err != nil {
				return nil, err
			}
			elems[i] = ke
		}
		return kform.KTypTuple{Elems: elems}, nil
	case ast.TypList:
		elem, err := n.Typ2KTyp(t.Elem, loc)
		if err != nil {
			return nil, err
		}
		return kform.KTypList{Elem: elem}, nil
	case ast.TypRef:
		elem, err := n.Typ2KTyp(t.Elem, loc)
		if err != nil {
			return nil, err
		}
		return kform.KTypRef{Elem: elem}, nil
	case ast.TypArray:
		elem, err := n.Typ2KTyp(t.Elem, loc)
		if err != nil {
			return nil, err
		}
		return kform.KTypArray{Dims: t.Dims, Elem: elem}, nil
	case ast.TypRecord:
		fields := make([]kform.KField, len(t.Fields))
		for i, f := range t.Fields {
			ft, err := n.Typ2KTyp(f.Typ, loc)
			if err != nil {
				return nil, err
			}
			fields[i] = kform.KField{Name: f.Name, Typ: ft}
		}
		return kform.KTypRecord{Fields: fields}, nil
	case ast.TypName:
		return kform.KTypName{Id: t.Id}, nil
	}
	return nil, diag.Internalf(loc, "unsupported source type %T", t)
}

// recordFields resolves a K-form type to its record field list, looking
// through nominal names.
func (n *Normalizer) recordFields(t kform.KTyp, loc diag.Loc) ([]kform.KField, error) {
	switch t := t.(type) {
	case kform.KTypRecord:
		return t.Fields, nil
	case kform.KTypName:
		def, err := n.C.KInfo(t.Id, loc)
		if err != nil {
			return nil, err
		}
		switch def := def.(type) {
		case *kform.KDefTyp:
			return n.recordFields(def.Typ, loc)
		case *kform.KDefVariant:
			if len(def.Cases) == 1 {
				return n.recordFields(def.Cases[0].Typ, loc)
			}
		}
		return nil, diag.Internalf(loc, "%s does not name a record type", t.Id)
	}
	return nil, diag.Internalf(loc, "expected a record type, found %s", kform.TypString(t))
}

// variantOf resolves a K-form type to its variant definition.
func (n *Normalizer) variantOf(t kform.KTyp, loc diag.Loc) (*kform.KDefVariant, error) {
	name, ok := t.(kform.KTypName)
	if !ok {
		return nil, diag.Internalf(loc, "expected a variant type, found %s", kform.TypString(t))
	}
	def, err := n.C.KInfo(name.Id, loc)
	if err != nil {
		return nil, err
	}
	dv, ok := def.(*kform.KDefVariant)
	if !ok {
		return nil, diag.Internalf(loc, "%s does not name a variant type", name.Id)
	}
	return dv, nil
}

// astRecordFields resolves a source type to its declared record fields,
// preserving field defaults.
func (n *Normalizer) astRecordFields(t ast.Typ, loc diag.Loc) ([]ast.RecField, error) {
	switch t := t.(type) {
	case ast.TypRecord:
		return t.Fields, nil
	case ast.TypName:
		info, err := n.C.AstInfo(t.Id, loc)
		if err != nil {
			return nil, err
		}
		switch info := info.(type) {
		case ast.TypInfo:
			return n.astRecordFields(info.Typ, loc)
		case ast.VariantInfo:
			if len(info.Cases) == 1 {
				return n.astRecordFields(info.Cases[0].Typ, loc)
			}
		}
		return nil, n.errf(diag.NameResolution, loc, "%s does not name a record type", t.Id)
	}
	return nil, n.errf(diag.NameResolution, loc, "the expression type is not a record")
}

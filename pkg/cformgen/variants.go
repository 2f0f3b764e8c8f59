package cformgen

import (
	"fmt"

	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// genVariant declares a variant type. Non-recursive variants are inline
// {tag, union} structs; recursive variants are heap-allocated
// {rc, tag, union} structs reached via a pointer, forward-declared before
// their dependents to break the type cycle.
func (g *Generator) genVariant(d *kform.KDefVariant) (cform.TypProps, error) {
	name := cid(d.Name, d.CName)

	// nilCase is the index of the payload-free case of a two-case recursive
	// variant, represented as the null pointer with no allocation.
	nilCase := -1
	if d.Recursive && len(d.Cases) == 2 {
		for i, c := range d.Cases {
			if kform.IsVoid(c.Typ) {
				nilCase = i
				break
			}
		}
	}

	if d.Recursive {
		return g.genRecursiveVariant(d, name, nilCase)
	}
	return g.genInlineVariant(d, name)
}

// tagEnum emits (once per variant) the companion enum <name>_tag_t whose
// members are the case tags. Option-flagged variants start at 0, reserving
// 0 for the nil case; others start at 1.
func (g *Generator) tagEnum(d *kform.KDefVariant, name ids.Id) ids.Id {
	if enum, ok := g.C.EnumOfVariant[d.Name.Key()]; ok {
		return enum
	}
	base := int64(1)
	if d.Option {
		base = 0
	}
	enumId := g.C.NewVal(name.Prefix + "_tag_t")
	members := make([]cform.CEnumMember, len(d.Cases))
	for i, c := range d.Cases {
		members[i] = cform.CEnumMember{
			Name:  ids.Name(fmt.Sprintf("%s_%s", baseName(name), c.Name.Prefix)),
			Value: base + int64(i),
		}
	}
	ed := &cform.CDefEnum{Name: ids.Val(enumId.Prefix, enumId.Num), Members: members, Loc: d.Loc}
	if err := g.C.SetCInfo(enumId, ed); err == nil {
		g.types = append(g.types, ed)
	}
	g.C.EnumOfVariant[d.Name.Key()] = enumId
	g.utilOwner[enumId.Key()] = d.Name.Key()
	return enumId
}

// genInlineVariant declares a non-recursive variant as an inline struct:
// the tag (when there is more than one case) and the union of the non-void
// payloads. A single-case variant with a void payload collapses to a
// struct with no tag, no union and no destructor.
func (g *Generator) genInlineVariant(d *kform.KDefVariant, name ids.Id) (cform.TypProps, error) {
	var fields []cform.CField
	if len(d.Cases) > 1 {
		enum := g.tagEnum(d, name)
		fields = append(fields, cform.CField{Name: ids.Name("tag"), Typ: cform.CTypName{Id: enum}})
	}

	union, caseProps, err := g.payloadUnion(d)
	if err != nil {
		return cform.TypProps{}, err
	}
	anyComplex := false
	for _, cp := range caseProps {
		if cp.Complex {
			anyComplex = true
		}
	}
	if union != nil {
		fields = append(fields, cform.CField{Name: ids.Name("u"), Typ: *union})
	}

	props := cform.TypProps{
		Complex:    anyComplex,
		Scalar:     !anyComplex,
		PassByRef:  anyComplex || len(fields) > 1,
		CustomCopy: anyComplex,
	}
	if anyComplex {
		props.FreeFn = g.newUtil("_fx_free_", name, d.Name)
		props.CopyFn = g.newUtil("_fx_copy_", name, d.Name)
	}

	cd := &cform.CDefTyp{
		Name:  name,
		Typ:   cform.CTypStruct{Name: name, Fields: fields},
		Props: props,
		Loc:   d.Loc,
	}
	if err := g.C.SetCInfo(d.Name, cd); err != nil {
		return cform.TypProps{}, err
	}
	g.types = append(g.types, cd)

	if anyComplex {
		g.utils = append(g.utils,
			g.variantFreeFn(props.FreeFn, name, d, caseProps, false, -1),
			g.variantCopyFn(props.CopyFn, name, d, caseProps))
	}
	return props, nil
}

// genRecursiveVariant declares a recursive variant: forward-declare the
// struct tag and the destructor before visiting the cases, then fill in
// the {rc, tag, union} cell.
func (g *Generator) genRecursiveVariant(d *kform.KDefVariant, name ids.Id, nilCase int) (cform.TypProps, error) {
	props := cform.TypProps{
		Complex:   true,
		Ptr:       true,
		CopyMacro: ids.Name("FX_COPY_PTR"),
	}
	props.FreeFn = g.newUtil("_fx_free_", name, d.Name)

	dataName := ids.Name(name.Prefix + "_data_t")
	cd := &cform.CDefTyp{Name: name, Props: props, Loc: d.Loc}
	if err := g.C.SetCInfo(d.Name, cd); err != nil {
		return cform.TypProps{}, err
	}

	// break the cycle: forward declarations keyed on the nominal id, not
	// the structural signature
	if !g.C.ForwardDeclared[d.Name.Key()] {
		g.C.ForwardDeclared[d.Name.Key()] = true
		g.fwd = append(g.fwd,
			&cform.CDefForward{Of: d.Name,
				Txt: fmt.Sprintf("struct %s; typedef struct %s* %s", dataName, dataName, name)},
			&cform.CDefForward{Of: props.FreeFn,
				Txt: fmt.Sprintf("void %s(%s* dst)", props.FreeFn, name)})
	}

	var fields []cform.CField
	fields = append(fields, cform.CField{Name: ids.Name("rc"), Typ: cform.CTypInt{Bits: 32}})
	needTag := !(nilCase >= 0 && len(d.Cases) == 2)
	var enum ids.Id
	if needTag && len(d.Cases) > 1 {
		enum = g.tagEnum(d, name)
		fields = append(fields, cform.CField{Name: ids.Name("tag"), Typ: cform.CTypName{Id: enum}})
	} else if d.Option || nilCase >= 0 {
		// the tag is derived from pointer nullness; still emit the enum for
		// the pattern compiler's tag constants
		g.tagEnum(d, name)
	}

	union, caseProps, err := g.payloadUnion(d)
	if err != nil {
		return cform.TypProps{}, err
	}
	if union != nil {
		if nilCase >= 0 {
			// two-case nullable variant: the payload is stored directly
			fields = append(fields, cform.CField{Name: ids.Name("data"), Typ: union.Fields[0].Typ})
		} else {
			fields = append(fields, cform.CField{Name: ids.Name("u"), Typ: *union})
		}
	}

	cd.Typ = cform.CTypRawPtr{Elem: cform.CTypStruct{Name: dataName, Fields: fields}}
	g.types = append(g.types, cd)

	g.utils = append(g.utils, g.variantFreeFn(props.FreeFn, name, d, caseProps, true, nilCase))

	for i, c := range d.Cases {
		if kform.IsVoid(c.Typ) {
			continue
		}
		mk := g.newUtil(fmt.Sprintf("_fx_make_%s_", baseName(name)), ids.Name(c.Name.Prefix), d.Name)
		props.Ctors = append(props.Ctors, mk)
		g.utils = append(g.utils, g.variantMakeFn(mk, name, d, i, nilCase))
	}
	cd.Props = props
	return props, nil
}

// payloadUnion builds the union of the non-void case payloads, or nil when
// every case is payload-free.
func (g *Generator) payloadUnion(d *kform.KDefVariant) (*cform.CTypUnion, []cform.TypProps, error) {
	caseProps := make([]cform.TypProps, len(d.Cases))
	var fields []cform.CField
	for i, c := range d.Cases {
		if kform.IsVoid(c.Typ) {
			caseProps[i] = scalarProps
			continue
		}
		ct, cp, err := g.Ktyp2Ctyp(c.Typ, d.Loc)
		if err != nil {
			return nil, nil, err
		}
		caseProps[i] = cp
		fields = append(fields, cform.CField{Name: ids.Name(c.Name.Prefix), Typ: ct})
	}
	if len(fields) == 0 {
		return nil, caseProps, nil
	}
	return &cform.CTypUnion{Fields: fields}, caseProps, nil
}

// genExnTag emits the #define binding an exception to its runtime tag.
// Tags start at -1024 and decrement; the standard exception tags are
// captured by the driver while processing Builtins.
func (g *Generator) genExnTag(d *kform.KDefExn) error {
	tag := g.C.NewExnTag(d.Name)
	name := d.CName
	if name == "" {
		name = "FX_EXN_" + d.Name.Prefix
	}
	md := &cform.CMacroDef{
		Name: ids.Val(name, d.Name.Num),
		Body: fmt.Sprintf("%d", tag),
		Loc:  d.Loc,
	}
	if err := g.C.SetCInfo(d.Name, md); err != nil {
		return err
	}
	g.types = append(g.types, md)
	return nil
}

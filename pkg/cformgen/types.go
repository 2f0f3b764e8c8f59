// Package cformgen implements the C-form type generator: for every nominal
// K-form type it creates the C struct/enum layout, computes the type
// properties that drive destructor/copy placement, and synthesizes the
// free/copy/make utility functions. It also fixes the interface consumed by
// the C-form code generator.
package cformgen

import (
	"fmt"

	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

// Generator builds C type declarations for one or more modules. The
// already-declared set, the per-variant enum cache and the forward-declared
// set live on the Compilation and persist across modules of one run.
type Generator struct {
	C *symtab.Compilation

	fwd   []cform.CStmt
	types []cform.CStmt
	utils []cform.CStmt

	// utilOwner maps a generated free/copy/make function id to the type id
	// it belongs to, for dead-type elimination.
	utilOwner map[int]int
}

// New creates a type generator.
func New(c *symtab.Compilation) *Generator {
	return &Generator{C: c, utilOwner: map[int]int{}}
}

// Declarations is the ordered output of the type generator: forward
// declarations first, then type declarations, then type utility functions.
type Declarations struct {
	Fwd   []cform.CStmt
	Types []cform.CStmt
	Utils []cform.CStmt
}

// GenerateTypes visits every nominal type defined by the module and emits
// its C layout and utilities.
func (g *Generator) GenerateTypes(mod *kform.Module) (*Declarations, error) {
	for _, s := range mod.Stmts {
		switch d := s.(type) {
		case *kform.KDefTyp:
			if _, err := g.genType(d.Name, d.Loc); err != nil {
				if diag.IsInternal(err) {
					return nil, err
				}
			}
		case *kform.KDefVariant:
			if _, err := g.genType(d.Name, d.Loc); err != nil {
				if diag.IsInternal(err) {
					return nil, err
				}
			}
		case *kform.KDefExn:
			if err := g.genExnTag(d); err != nil {
				return nil, err
			}
		}
	}
	out := &Declarations{Fwd: g.fwd, Types: g.types, Utils: g.utils}
	g.fwd, g.types, g.utils = nil, nil, nil
	return out, nil
}

// cid rebinds an id to its mangled C name for display while keeping the
// unique index for table lookups.
func cid(id ids.Id, cname string) ids.Id {
	if cname == "" {
		return id
	}
	return ids.Val(cname, id.Num)
}

func nameOf(def kform.Def) string {
	switch d := def.(type) {
	case *kform.KDefTyp:
		return d.CName
	case *kform.KDefVariant:
		return d.CName
	}
	return ""
}

// scalarProps are the properties of plain value types.
var scalarProps = cform.TypProps{Scalar: true}

// runtimeProps builds the properties of a runtime-header type with
// well-known free/copy macros.
func runtimeProps(freeMacro, copyMacro string) cform.TypProps {
	return cform.TypProps{
		Complex:   true,
		PassByRef: true,
		FreeMacro: ids.Name(freeMacro),
		CopyMacro: ids.Name(copyMacro),
	}
}

// Ktyp2Ctyp converts a K-form type to its C representation together with
// the type properties of the result. Anonymous tuples, lists, refs and
// function types must have been materialized by the mangler before code
// generation; meeting one here is an internal error.
func (g *Generator) Ktyp2Ctyp(t kform.KTyp, loc diag.Loc) (cform.CTyp, cform.TypProps, error) {
	switch t := t.(type) {
	case kform.KTypInt:
		return cform.CTypInt{}, scalarProps, nil
	case kform.KTypSInt:
		return cform.CTypInt{Bits: t.Bits}, scalarProps, nil
	case kform.KTypUInt:
		return cform.CTypInt{Bits: t.Bits, Unsigned: true}, scalarProps, nil
	case kform.KTypFloat:
		return cform.CTypFloat{Bits: t.Bits}, scalarProps, nil
	case kform.KTypBool:
		return cform.CTypBool{}, scalarProps, nil
	case kform.KTypChar:
		return cform.CTypChar{}, scalarProps, nil
	case kform.KTypVoid:
		return cform.CTypVoid{}, scalarProps, nil
	case kform.KTypString:
		return cform.CTypString{}, runtimeProps("FX_FREE_STR", "FX_COPY_STR"), nil
	case kform.KTypExn:
		return cform.CTypExn{}, runtimeProps("FX_FREE_EXN", "FX_COPY_EXN"), nil
	case kform.KTypCPtr:
		return cform.CTypCPtr{}, runtimeProps("FX_FREE_CPTR", "FX_COPY_CPTR"), nil
	case kform.KTypArray:
		return cform.CTypArr{}, runtimeProps("FX_FREE_ARR", "FX_COPY_ARR"), nil
	case kform.KTypName:
		props, err := g.genType(t.Id, loc)
		if err != nil {
			return nil, cform.TypProps{}, err
		}
		cname := nameOf(g.kdefOf(t.Id))
		return cform.CTypName{Id: cid(t.Id, cname)}, props, nil
	case kform.KTypRecord:
		if !t.Name.IsNone() {
			props, err := g.genType(t.Name, loc)
			if err != nil {
				return nil, cform.TypProps{}, err
			}
			cname := nameOf(g.kdefOf(t.Name))
			return cform.CTypName{Id: cid(t.Name, cname)}, props, nil
		}
		return nil, cform.TypProps{}, diag.Internalf(loc, "anonymous record type in the C-form generator")
	case kform.KTypErr:
		return nil, cform.TypProps{}, diag.Internalf(loc, "KTypErr in the C-form generator")
	case kform.KTypTuple, kform.KTypList, kform.KTypRef, kform.KTypFun:
		return nil, cform.TypProps{}, diag.Internalf(loc,
			"structural type %s was not materialized before C-form generation", kform.TypString(t))
	}
	return nil, cform.TypProps{}, diag.Internalf(loc, "unsupported ktyp %T in the C-form generator", t)
}

func (g *Generator) kdefOf(id ids.Id) kform.Def {
	return g.C.KInfoOrNil(id)
}

// genType ensures the C declaration of a nominal type exists and returns
// its properties. Generation is idempotent: a second visit returns the
// cached declaration.
func (g *Generator) genType(id ids.Id, loc diag.Loc) (cform.TypProps, error) {
	if def, ok := g.C.CInfoOrNil(id).(*cform.CDefTyp); ok {
		return def.Props, nil
	}

	kdef, err := g.C.KInfo(id, loc)
	if err != nil {
		return cform.TypProps{}, err
	}
	switch d := kdef.(type) {
	case *kform.KDefVariant:
		return g.genVariant(d)
	case *kform.KDefTyp:
		return g.genNamedTyp(d)
	}
	return cform.TypProps{}, diag.Internalf(loc, "%s does not name a type", id)
}

// genNamedTyp generates the layout of a materialized or user-declared named
// type.
func (g *Generator) genNamedTyp(d *kform.KDefTyp) (cform.TypProps, error) {
	name := cid(d.Name, d.CName)
	switch t := d.Typ.(type) {
	case kform.KTypTuple:
		fields := make([]cform.CField, len(t.Elems))
		elemProps := make([]cform.TypProps, len(t.Elems))
		for i, et := range t.Elems {
			ct, ep, err := g.Ktyp2Ctyp(et, d.Loc)
			if err != nil {
				return cform.TypProps{}, err
			}
			fields[i] = cform.CField{Name: ids.Name(fmt.Sprintf("t%d", i)), Typ: ct}
			elemProps[i] = ep
		}
		return g.genStruct(d, name, fields, elemProps, true)

	case kform.KTypRecord:
		fields := make([]cform.CField, len(t.Fields))
		elemProps := make([]cform.TypProps, len(t.Fields))
		for i, f := range t.Fields {
			ct, ep, err := g.Ktyp2Ctyp(f.Typ, d.Loc)
			if err != nil {
				return cform.TypProps{}, err
			}
			fields[i] = cform.CField{Name: f.Name, Typ: ct}
			elemProps[i] = ep
		}
		return g.genStruct(d, name, fields, elemProps, true)

	case kform.KTypList:
		return g.genListCell(d, name, t)

	case kform.KTypRef:
		return g.genRefCell(d, name, t)

	case kform.KTypFun:
		return g.genClosure(d, name)

	default:
		// alias of a simple type
		ct, props, err := g.Ktyp2Ctyp(t, d.Loc)
		if err != nil {
			return cform.TypProps{}, err
		}
		cd := &cform.CDefTyp{Name: name, Typ: ct, Props: props, Loc: d.Loc}
		if err := g.C.SetCInfo(d.Name, cd); err != nil {
			return cform.TypProps{}, err
		}
		g.types = append(g.types, cd)
		return props, nil
	}
}

// genStruct declares an inline struct type; complex iff any field is
// complex. When withMake is set a make-constructor is also produced.
func (g *Generator) genStruct(d *kform.KDefTyp, name ids.Id, fields []cform.CField,
	elemProps []cform.TypProps, withMake bool) (cform.TypProps, error) {

	props := cform.TypProps{}
	for _, ep := range elemProps {
		if ep.Complex {
			props.Complex = true
		}
	}
	props.Scalar = !props.Complex
	props.PassByRef = props.Complex || len(fields) > 1
	props.CustomCopy = props.Complex

	if props.Complex {
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

	if props.Complex {
		g.utils = append(g.utils, g.structFreeFn(props.FreeFn, name, fields, elemProps, d.Loc))
		g.utils = append(g.utils, g.structCopyFn(props.CopyFn, name, fields, elemProps, d.Loc))
	}
	if withMake {
		mk := g.newUtil("_fx_make_", name, d.Name)
		props.Ctors = append(props.Ctors, mk)
		cd.Props = props
		g.utils = append(g.utils, g.structMakeFn(mk, name, fields, elemProps, d.Loc))
	}
	return props, nil
}

// genListCell declares a list cell: a heap-allocated {rc, tl, hd} struct
// reached via a pointer.
func (g *Generator) genListCell(d *kform.KDefTyp, name ids.Id, t kform.KTypList) (cform.TypProps, error) {
	props := cform.TypProps{
		Complex:   true,
		Ptr:       true,
		PassByRef: false,
	}
	props.FreeFn = g.newUtil("_fx_free_", name, d.Name)
	props.CopyMacro = ids.Name("FX_COPY_PTR")
	mk := g.newUtil("_fx_cons_", name, d.Name)
	props.Ctors = []ids.Id{mk}

	// register before visiting the element type: the element may be a
	// recursive variant that mentions this list
	cellName := ids.Name(name.Prefix + "_cell_t")
	cd := &cform.CDefTyp{Name: name, Props: props, Loc: d.Loc}
	if err := g.C.SetCInfo(d.Name, cd); err != nil {
		return cform.TypProps{}, err
	}

	hd, hdProps, err := g.Ktyp2Ctyp(t.Elem, d.Loc)
	if err != nil {
		return cform.TypProps{}, err
	}
	cell := cform.CTypStruct{Name: cellName, Fields: []cform.CField{
		{Name: ids.Name("rc"), Typ: cform.CTypInt{Bits: 32}},
		{Name: ids.Name("tl"), Typ: cform.CTypName{Id: name}},
		{Name: ids.Name("hd"), Typ: hd},
	}}
	cd.Typ = cform.CTypRawPtr{Elem: cell}
	g.types = append(g.types, cd)

	g.utils = append(g.utils, g.listFreeFn(props.FreeFn, name, hd, hdProps, d.Loc))
	g.utils = append(g.utils, g.listConsFn(mk, name, hd, hdProps, d.Loc))
	return props, nil
}

// genRefCell declares a reference cell: a heap-allocated {rc, data} struct
// reached via a pointer.
func (g *Generator) genRefCell(d *kform.KDefTyp, name ids.Id, t kform.KTypRef) (cform.TypProps, error) {
	props := cform.TypProps{Complex: true, Ptr: true}
	props.FreeFn = g.newUtil("_fx_free_", name, d.Name)
	props.CopyMacro = ids.Name("FX_COPY_PTR")
	mk := g.newUtil("_fx_make_", name, d.Name)
	props.Ctors = []ids.Id{mk}

	cellName := ids.Name(name.Prefix + "_cell_t")
	cd := &cform.CDefTyp{Name: name, Props: props, Loc: d.Loc}
	if err := g.C.SetCInfo(d.Name, cd); err != nil {
		return cform.TypProps{}, err
	}

	data, dataProps, err := g.Ktyp2Ctyp(t.Elem, d.Loc)
	if err != nil {
		return cform.TypProps{}, err
	}
	cell := cform.CTypStruct{Name: cellName, Fields: []cform.CField{
		{Name: ids.Name("rc"), Typ: cform.CTypInt{Bits: 32}},
		{Name: ids.Name("data"), Typ: data},
	}}
	cd.Typ = cform.CTypRawPtr{Elem: cell}
	g.types = append(g.types, cd)

	g.utils = append(g.utils, g.refFreeFn(props.FreeFn, name, data, dataProps, d.Loc))
	g.utils = append(g.utils, g.refMakeFn(mk, name, data, dataProps, d.Loc))
	return props, nil
}

// genClosure declares a closure type: an inline {fp, fcv} pair. The fcv
// block is reference-counted, so closures are complex.
func (g *Generator) genClosure(d *kform.KDefTyp, name ids.Id) (cform.TypProps, error) {
	t := d.Typ.(kform.KTypFun)
	args := make([]cform.CTyp, 0, len(t.Args)+1)
	for _, at := range t.Args {
		ct, _, err := g.Ktyp2Ctyp(at, d.Loc)
		if err != nil {
			return cform.TypProps{}, err
		}
		args = append(args, ct)
	}
	args = append(args, cform.CTypRawPtr{Elem: cform.CTypVoid{}}) // fcv
	ret, _, err := g.Ktyp2Ctyp(t.Ret, d.Loc)
	if err != nil {
		return cform.TypProps{}, err
	}

	props := cform.TypProps{
		Complex:   true,
		PassByRef: true,
		FreeMacro: ids.Name("FX_FREE_FP"),
		CopyMacro: ids.Name("FX_COPY_FP"),
	}
	fields := []cform.CField{
		{Name: ids.Name("fp"), Typ: cform.CTypFunRawPtr{Args: args, Ret: ret}},
		{Name: ids.Name("fcv"), Typ: cform.CTypRawPtr{Elem: cform.CTypVoid{}}},
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
	return props, nil
}

// newUtil allocates the id of a generated utility function and records its
// owning type for dead-type elimination.
func (g *Generator) newUtil(prefix string, typName ids.Id, owner ids.Id) ids.Id {
	fn := g.C.NewVal(prefix + baseName(typName))
	g.utilOwner[fn.Key()] = owner.Key()
	return fn
}

// baseName strips the _fx_ prefix from a mangled type name so utility names
// read _fx_free_T3idS rather than _fx_free__fx_T3idS.
func baseName(name ids.Id) string {
	const p = "_fx_"
	if len(name.Prefix) > len(p) && name.Prefix[:len(p)] == p {
		return name.Prefix[len(p):]
	}
	return name.Prefix
}

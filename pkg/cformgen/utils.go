package cformgen

import (
	"fmt"

	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// expression shorthands used by the generated utility bodies

func ident(id ids.Id, t cform.CTyp) cform.CExp {
	return cform.CExpIdent{Id: id, Typ: t}
}

func namedIdent(name string, t cform.CTyp) cform.CExp {
	return cform.CExpIdent{Id: ids.Name(name), Typ: t}
}

func intLit(v int64) cform.CExp {
	return cform.CExpLit{Kind: cform.CLitInt, IVal: v, Typ: cform.CTypInt{}}
}

func call(fn cform.CExp, args ...cform.CExp) cform.CExp {
	return cform.CExpCall{Fun: fn, Args: args, Typ: cform.CTypVoid{}}
}

func addrOf(e cform.CExp) cform.CExp {
	return cform.CExpUnary{Op: cform.COpAddrOf, Arg: e, Typ: cform.CTypRawPtr{Elem: e.ExpTyp()}}
}

func deref(e cform.CExp) cform.CExp {
	t := cform.CTyp(cform.CTypVoid{})
	if p, ok := e.ExpTyp().(cform.CTypRawPtr); ok {
		t = p.Elem
	}
	return cform.CExpUnary{Op: cform.COpDeref, Arg: e, Typ: t}
}

func arrow(rec cform.CExp, field ids.Id, t cform.CTyp) cform.CExp {
	return cform.CExpArrow{Rec: rec, Field: field, Typ: t}
}

func assign(lhs, rhs cform.CExp) cform.CStmt {
	return cform.CStmtExp{Exp: cform.CExpBinary{Op: cform.COpAssign, Left: lhs, Right: rhs, Typ: lhs.ExpTyp()}}
}

func retOk() cform.CStmt {
	return cform.CStmtReturn{Value: namedIdent("FX_OK", cform.CTypInt{Bits: 32})}
}

// freeStmt builds the destruction of one value slot, preferring the free
// macro for pointer-sized and primitive elements and the free function for
// complex inline elements. Returns nil when the slot needs no destruction.
func freeStmt(ep cform.TypProps, slot cform.CExp) cform.CStmt {
	if !ep.Complex {
		return nil
	}
	if !ep.FreeMacro.IsNone() && (ep.Ptr || ep.FreeFn.IsNone()) {
		return cform.CStmtExp{Exp: call(ident(ep.FreeMacro, cform.CTypVoid{}), addrOf(slot))}
	}
	if !ep.FreeFn.IsNone() {
		return cform.CStmtExp{Exp: call(ident(ep.FreeFn, cform.CTypVoid{}), addrOf(slot))}
	}
	return cform.CStmtExp{Exp: call(namedIdent("FX_FREE", cform.CTypVoid{}), addrOf(slot))}
}

// copyStmt builds the copy of one slot: an increment for pointer elements,
// the copy function for complex inline elements, plain assignment for
// scalars.
func copyStmt(ep cform.TypProps, src, dst cform.CExp) cform.CStmt {
	if !ep.Complex {
		return assign(dst, src)
	}
	if !ep.CopyMacro.IsNone() && (ep.Ptr || ep.CopyFn.IsNone()) {
		return cform.CStmtExp{Exp: call(ident(ep.CopyMacro, cform.CTypVoid{}), addrOf(src), addrOf(dst))}
	}
	if !ep.CopyFn.IsNone() {
		return cform.CStmtExp{Exp: call(ident(ep.CopyFn, cform.CTypVoid{}), addrOf(src), addrOf(dst))}
	}
	return assign(dst, src)
}

var dstId = ids.Name("dst")
var srcId = ids.Name("src")
var resultId = ids.Name("fx_result")

// structFreeFn emits: void _fx_free_X(X* dst) { free complex fields }.
func (g *Generator) structFreeFn(fn, name ids.Id, fields []cform.CField,
	elemProps []cform.TypProps, loc diag.Loc) cform.CStmt {

	self := cform.CTypName{Id: name}
	dst := ident(dstId, cform.CTypRawPtr{Elem: self})
	var body []cform.CStmt
	for i, f := range fields {
		if s := freeStmt(elemProps[i], arrow(dst, f.Name, f.Typ)); s != nil {
			body = append(body, s)
		}
	}
	return &cform.CDefFun{
		Name:   fn,
		Params: []cform.CField{{Name: dstId, Typ: cform.CTypRawPtr{Elem: self}}},
		RetTyp: cform.CTypVoid{},
		Body:   body,
		Static: true,
		Loc:    loc,
	}
}

// structCopyFn emits: void _fx_copy_X(X* src, X* dst) { per-field copy }.
func (g *Generator) structCopyFn(fn, name ids.Id, fields []cform.CField,
	elemProps []cform.TypProps, loc diag.Loc) cform.CStmt {

	self := cform.CTypName{Id: name}
	src := ident(srcId, cform.CTypRawPtr{Elem: self})
	dst := ident(dstId, cform.CTypRawPtr{Elem: self})
	var body []cform.CStmt
	for i, f := range fields {
		body = append(body, copyStmt(elemProps[i], arrow(src, f.Name, f.Typ), arrow(dst, f.Name, f.Typ)))
	}
	return &cform.CDefFun{
		Name: fn,
		Params: []cform.CField{
			{Name: srcId, Typ: cform.CTypRawPtr{Elem: self}},
			{Name: dstId, Typ: cform.CTypRawPtr{Elem: self}},
		},
		RetTyp: cform.CTypVoid{},
		Body:   body,
		Static: true,
		Loc:    loc,
	}
}

// structMakeFn emits: int _fx_make_X(f0, ..., X* fx_result), copying each
// argument into the result and returning a status code.
func (g *Generator) structMakeFn(fn, name ids.Id, fields []cform.CField,
	elemProps []cform.TypProps, loc diag.Loc) cform.CStmt {

	self := cform.CTypName{Id: name}
	res := ident(resultId, cform.CTypRawPtr{Elem: self})
	params := make([]cform.CField, 0, len(fields)+1)
	var body []cform.CStmt
	for i, f := range fields {
		arg := cform.CField{Name: f.Name, Typ: f.Typ}
		if elemProps[i].Complex && !elemProps[i].Ptr {
			arg.Typ = cform.CTypRawPtr{Elem: f.Typ}
		}
		params = append(params, arg)
		srcE := ident(arg.Name, arg.Typ)
		if elemProps[i].Complex && !elemProps[i].Ptr {
			srcE = deref(srcE)
		}
		body = append(body, copyStmt(elemProps[i], srcE, arrow(res, f.Name, f.Typ)))
	}
	params = append(params, cform.CField{Name: resultId, Typ: cform.CTypRawPtr{Elem: self}})
	body = append(body, retOk())
	return &cform.CDefFun{
		Name:   fn,
		Params: params,
		RetTyp: cform.CTypInt{Bits: 32},
		Body:   body,
		Static: true,
		Loc:    loc,
	}
}

// listFreeFn emits the iterative list destructor: decrement the cell's rc;
// while this was the last reference, free the head payload, release the
// cell and move to the tail.
func (g *Generator) listFreeFn(fn, name ids.Id, hd cform.CTyp, hdProps cform.TypProps, loc diag.Loc) cform.CStmt {
	self := cform.CTypName{Id: name}
	dst := ident(dstId, cform.CTypRawPtr{Elem: self})
	l := ident(ids.Name("l"), self)
	tl := ident(ids.Name("tl"), self)

	loopBody := []cform.CStmt{
		&cform.CDefVal{Name: ids.Name("tl"), Typ: self, Init: arrow(l, ids.Name("tl"), self), Loc: loc},
	}
	if s := freeStmt(hdProps, arrow(l, ids.Name("hd"), hd)); s != nil {
		loopBody = append(loopBody, s)
	}
	loopBody = append(loopBody,
		cform.CStmtExp{Exp: call(namedIdent("fx_free", cform.CTypVoid{}), l)},
		assign(l, tl))

	body := []cform.CStmt{
		&cform.CDefVal{Name: ids.Name("l"), Typ: self, Init: deref(dst), Loc: loc},
		assign(deref(dst), cform.CExpLit{Kind: cform.CLitNull, Typ: self}),
		cform.CStmtWhile{
			Cond: cform.CExpBinary{
				Op:   cform.COpLogicAnd,
				Left: l,
				Right: cform.CExpBinary{
					Op:    cform.COpEQ,
					Left:  call(namedIdent("FX_DECREF", cform.CTypInt{Bits: 32}), arrow(l, ids.Name("rc"), cform.CTypInt{Bits: 32})),
					Right: intLit(1),
					Typ:   cform.CTypBool{},
				},
				Typ: cform.CTypBool{},
			},
			Body: cform.CStmtBlock{Stmts: loopBody},
		},
	}
	return &cform.CDefFun{
		Name:   fn,
		Params: []cform.CField{{Name: dstId, Typ: cform.CTypRawPtr{Elem: self}}},
		RetTyp: cform.CTypVoid{},
		Body:   body,
		Static: true,
		Loc:    loc,
	}
}

// listConsFn emits the list constructor: allocate a cell, take a reference
// to the tail, copy the head payload in.
func (g *Generator) listConsFn(fn, name ids.Id, hd cform.CTyp, hdProps cform.TypProps, loc diag.Loc) cform.CStmt {
	self := cform.CTypName{Id: name}
	l := ident(ids.Name("l"), self)
	hdArg := cform.CField{Name: ids.Name("hd"), Typ: hd}
	if hdProps.Complex && !hdProps.Ptr {
		hdArg.Typ = cform.CTypRawPtr{Elem: hd}
	}
	hdSrc := ident(hdArg.Name, hdArg.Typ)
	if hdProps.Complex && !hdProps.Ptr {
		hdSrc = deref(hdSrc)
	}

	body := []cform.CStmt{
		&cform.CDefVal{Name: ids.Name("l"), Typ: self,
			Init: cform.CExpCast{
				Arg: call(namedIdent("fx_malloc", cform.CTypRawPtr{Elem: cform.CTypVoid{}}),
					namedIdent(fmt.Sprintf("sizeof(*%s)", "l"), cform.CTypInt{})),
				Typ: self,
			},
			Loc: loc},
		cform.CStmtIf{
			Cond: cform.CExpUnary{Op: cform.COpLogicNot, Arg: l, Typ: cform.CTypBool{}},
			Then: cform.CStmtReturn{Value: namedIdent("FX_EXN_OutOfMemError", cform.CTypInt{Bits: 32})},
		},
		assign(arrow(l, ids.Name("rc"), cform.CTypInt{Bits: 32}), intLit(1)),
		assign(arrow(l, ids.Name("tl"), self), ident(ids.Name("tl"), self)),
		cform.CStmtExp{Exp: call(namedIdent("FX_INCREF", cform.CTypVoid{}), ident(ids.Name("tl"), self))},
		copyStmt(hdProps, hdSrc, arrow(l, ids.Name("hd"), hd)),
		assign(deref(ident(resultId, cform.CTypRawPtr{Elem: self})), l),
		retOk(),
	}
	return &cform.CDefFun{
		Name: fn,
		Params: []cform.CField{
			hdArg,
			{Name: ids.Name("tl"), Typ: self},
			{Name: resultId, Typ: cform.CTypRawPtr{Elem: self}},
		},
		RetTyp: cform.CTypInt{Bits: 32},
		Body:   body,
		Static: true,
		Loc:    loc,
	}
}

// refFreeFn emits the ref-cell destructor: decref, free the payload and
// the cell when this was the last reference.
func (g *Generator) refFreeFn(fn, name ids.Id, data cform.CTyp, dataProps cform.TypProps, loc diag.Loc) cform.CStmt {
	self := cform.CTypName{Id: name}
	dst := ident(dstId, cform.CTypRawPtr{Elem: self})
	r := ident(ids.Name("r"), self)

	inner := []cform.CStmt{}
	if s := freeStmt(dataProps, arrow(r, ids.Name("data"), data)); s != nil {
		inner = append(inner, s)
	}
	inner = append(inner, cform.CStmtExp{Exp: call(namedIdent("fx_free", cform.CTypVoid{}), r)})

	body := []cform.CStmt{
		&cform.CDefVal{Name: ids.Name("r"), Typ: self, Init: deref(dst), Loc: loc},
		assign(deref(dst), cform.CExpLit{Kind: cform.CLitNull, Typ: self}),
		cform.CStmtIf{
			Cond: cform.CExpBinary{
				Op:   cform.COpLogicAnd,
				Left: r,
				Right: cform.CExpBinary{
					Op:    cform.COpEQ,
					Left:  call(namedIdent("FX_DECREF", cform.CTypInt{Bits: 32}), arrow(r, ids.Name("rc"), cform.CTypInt{Bits: 32})),
					Right: intLit(1),
					Typ:   cform.CTypBool{},
				},
				Typ: cform.CTypBool{},
			},
			Then: cform.CStmtBlock{Stmts: inner},
		},
	}
	return &cform.CDefFun{
		Name:   fn,
		Params: []cform.CField{{Name: dstId, Typ: cform.CTypRawPtr{Elem: self}}},
		RetTyp: cform.CTypVoid{},
		Body:   body,
		Static: true,
		Loc:    loc,
	}
}

// refMakeFn emits the ref-cell constructor.
func (g *Generator) refMakeFn(fn, name ids.Id, data cform.CTyp, dataProps cform.TypProps, loc diag.Loc) cform.CStmt {
	self := cform.CTypName{Id: name}
	r := ident(ids.Name("r"), self)
	arg := cform.CField{Name: ids.Name("arg"), Typ: data}
	if dataProps.Complex && !dataProps.Ptr {
		arg.Typ = cform.CTypRawPtr{Elem: data}
	}
	src := ident(arg.Name, arg.Typ)
	if dataProps.Complex && !dataProps.Ptr {
		src = deref(src)
	}

	body := []cform.CStmt{
		&cform.CDefVal{Name: ids.Name("r"), Typ: self,
			Init: cform.CExpCast{
				Arg: call(namedIdent("fx_malloc", cform.CTypRawPtr{Elem: cform.CTypVoid{}}),
					namedIdent("sizeof(*r)", cform.CTypInt{})),
				Typ: self,
			},
			Loc: loc},
		cform.CStmtIf{
			Cond: cform.CExpUnary{Op: cform.COpLogicNot, Arg: r, Typ: cform.CTypBool{}},
			Then: cform.CStmtReturn{Value: namedIdent("FX_EXN_OutOfMemError", cform.CTypInt{Bits: 32})},
		},
		assign(arrow(r, ids.Name("rc"), cform.CTypInt{Bits: 32}), intLit(1)),
		copyStmt(dataProps, src, arrow(r, ids.Name("data"), data)),
		assign(deref(ident(resultId, cform.CTypRawPtr{Elem: self})), r),
		retOk(),
	}
	return &cform.CDefFun{
		Name: fn,
		Params: []cform.CField{
			arg,
			{Name: resultId, Typ: cform.CTypRawPtr{Elem: self}},
		},
		RetTyp: cform.CTypInt{Bits: 32},
		Body:   body,
		Static: true,
		Loc:    loc,
	}
}

// variantFreeFn emits the variant destructor. For recursive variants the
// cell is released via decref-then-free-payload; a two-case nullable
// variant skips the tag switch entirely. Inline variants free the active
// union member in place.
func (g *Generator) variantFreeFn(fn, name ids.Id, d *kform.KDefVariant,
	caseProps []cform.TypProps, recursive bool, nilCase int) cform.CStmt {

	self := cform.CTypName{Id: name}
	dst := ident(dstId, cform.CTypRawPtr{Elem: self})
	base := int64(1)
	if d.Option {
		base = 0
	}

	if !recursive {
		// switch (dst->tag) { ... free the active member ... }
		var cases []cform.CSwitchCase
		for i, c := range d.Cases {
			if !caseProps[i].Complex {
				continue
			}
			u := arrow(dst, ids.Name("u"), cform.CTypVoid{})
			slot := cform.CExpMem{Rec: u, Field: ids.Name(c.Name.Prefix), Typ: cform.CTypVoid{}}
			cases = append(cases, cform.CSwitchCase{
				Value: base + int64(i),
				Body:  []cform.CStmt{freeStmt(caseProps[i], slot), cform.CStmtBreak{}},
			})
		}
		var body []cform.CStmt
		if len(d.Cases) > 1 {
			body = []cform.CStmt{cform.CStmtSwitch{
				Arg:   arrow(dst, ids.Name("tag"), cform.CTypInt{Bits: 32}),
				Cases: cases,
			}}
		} else if len(cases) == 1 {
			body = cases[0].Body[:1]
		}
		return &cform.CDefFun{
			Name:   fn,
			Params: []cform.CField{{Name: dstId, Typ: cform.CTypRawPtr{Elem: self}}},
			RetTyp: cform.CTypVoid{},
			Body:   body,
			Static: true,
			Loc:    d.Loc,
		}
	}

	p := ident(ids.Name("p"), self)
	var payloadFree []cform.CStmt
	if nilCase >= 0 {
		other := 1 - nilCase
		if caseProps[other].Complex {
			slot := arrow(p, ids.Name("data"), cform.CTypVoid{})
			payloadFree = append(payloadFree, freeStmt(caseProps[other], slot))
		}
	} else {
		var cases []cform.CSwitchCase
		for i, c := range d.Cases {
			if !caseProps[i].Complex {
				continue
			}
			u := arrow(p, ids.Name("u"), cform.CTypVoid{})
			slot := cform.CExpMem{Rec: u, Field: ids.Name(c.Name.Prefix), Typ: cform.CTypVoid{}}
			cases = append(cases, cform.CSwitchCase{
				Value: base + int64(i),
				Body:  []cform.CStmt{freeStmt(caseProps[i], slot), cform.CStmtBreak{}},
			})
		}
		if len(cases) > 0 {
			payloadFree = append(payloadFree, cform.CStmtSwitch{
				Arg:   arrow(p, ids.Name("tag"), cform.CTypInt{Bits: 32}),
				Cases: cases,
			})
		}
	}
	payloadFree = append(payloadFree, cform.CStmtExp{Exp: call(namedIdent("fx_free", cform.CTypVoid{}), p)})

	body := []cform.CStmt{
		&cform.CDefVal{Name: ids.Name("p"), Typ: self, Init: deref(dst), Loc: d.Loc},
		// the rc check: if the caller held the only reference, release the
		// payload and the cell; otherwise other holders keep it alive
		cform.CStmtIf{
			Cond: cform.CExpBinary{
				Op:   cform.COpLogicAnd,
				Left: p,
				Right: cform.CExpBinary{
					Op:    cform.COpEQ,
					Left:  call(namedIdent("FX_DECREF", cform.CTypInt{Bits: 32}), arrow(p, ids.Name("rc"), cform.CTypInt{Bits: 32})),
					Right: intLit(1),
					Typ:   cform.CTypBool{},
				},
				Typ: cform.CTypBool{},
			},
			Then: cform.CStmtBlock{Stmts: payloadFree},
		},
		assign(deref(dst), cform.CExpLit{Kind: cform.CLitNull, Typ: self}),
	}
	return &cform.CDefFun{
		Name:   fn,
		Params: []cform.CField{{Name: dstId, Typ: cform.CTypRawPtr{Elem: self}}},
		RetTyp: cform.CTypVoid{},
		Body:   body,
		Static: true,
		Loc:    d.Loc,
	}
}

// variantCopyFn emits the inline-variant copy: copy the tag, then the
// active union member.
func (g *Generator) variantCopyFn(fn, name ids.Id, d *kform.KDefVariant,
	caseProps []cform.TypProps) cform.CStmt {

	self := cform.CTypName{Id: name}
	src := ident(srcId, cform.CTypRawPtr{Elem: self})
	dst := ident(dstId, cform.CTypRawPtr{Elem: self})
	base := int64(1)
	if d.Option {
		base = 0
	}

	var body []cform.CStmt
	if len(d.Cases) > 1 {
		body = append(body, assign(
			arrow(dst, ids.Name("tag"), cform.CTypInt{Bits: 32}),
			arrow(src, ids.Name("tag"), cform.CTypInt{Bits: 32})))
	}
	var cases []cform.CSwitchCase
	for i, c := range d.Cases {
		if kform.IsVoid(d.Cases[i].Typ) {
			continue
		}
		sslot := cform.CExpMem{Rec: arrow(src, ids.Name("u"), cform.CTypVoid{}), Field: ids.Name(c.Name.Prefix), Typ: cform.CTypVoid{}}
		dslot := cform.CExpMem{Rec: arrow(dst, ids.Name("u"), cform.CTypVoid{}), Field: ids.Name(c.Name.Prefix), Typ: cform.CTypVoid{}}
		cases = append(cases, cform.CSwitchCase{
			Value: base + int64(i),
			Body:  []cform.CStmt{copyStmt(caseProps[i], sslot, dslot), cform.CStmtBreak{}},
		})
	}
	if len(cases) > 0 {
		body = append(body, cform.CStmtSwitch{
			Arg:   arrow(src, ids.Name("tag"), cform.CTypInt{Bits: 32}),
			Cases: cases,
		})
	}
	return &cform.CDefFun{
		Name: fn,
		Params: []cform.CField{
			{Name: srcId, Typ: cform.CTypRawPtr{Elem: self}},
			{Name: dstId, Typ: cform.CTypRawPtr{Elem: self}},
		},
		RetTyp: cform.CTypVoid{},
		Body:   body,
		Static: true,
		Loc:    d.Loc,
	}
}

// variantMakeFn emits the constructor of one recursive-variant case:
// allocate the cell, set rc and tag, move the payload in.
func (g *Generator) variantMakeFn(fn, name ids.Id, d *kform.KDefVariant, caseIdx, nilCase int) cform.CStmt {
	self := cform.CTypName{Id: name}
	p := ident(ids.Name("p"), self)
	c := d.Cases[caseIdx]
	base := int64(1)
	if d.Option {
		base = 0
	}

	ct, cp, err := g.Ktyp2Ctyp(c.Typ, d.Loc)
	if err != nil {
		ct, cp = cform.CTypVoid{}, scalarProps
	}
	arg := cform.CField{Name: ids.Name("arg"), Typ: ct}
	if cp.Complex && !cp.Ptr {
		arg.Typ = cform.CTypRawPtr{Elem: ct}
	}
	src := ident(arg.Name, arg.Typ)
	if cp.Complex && !cp.Ptr {
		src = deref(src)
	}

	var slot cform.CExp
	if nilCase >= 0 {
		slot = arrow(p, ids.Name("data"), ct)
	} else {
		slot = cform.CExpMem{Rec: arrow(p, ids.Name("u"), cform.CTypVoid{}), Field: ids.Name(c.Name.Prefix), Typ: ct}
	}

	body := []cform.CStmt{
		&cform.CDefVal{Name: ids.Name("p"), Typ: self,
			Init: cform.CExpCast{
				Arg: call(namedIdent("fx_malloc", cform.CTypRawPtr{Elem: cform.CTypVoid{}}),
					namedIdent("sizeof(*p)", cform.CTypInt{})),
				Typ: self,
			},
			Loc: d.Loc},
		cform.CStmtIf{
			Cond: cform.CExpUnary{Op: cform.COpLogicNot, Arg: p, Typ: cform.CTypBool{}},
			Then: cform.CStmtReturn{Value: namedIdent("FX_EXN_OutOfMemError", cform.CTypInt{Bits: 32})},
		},
		assign(arrow(p, ids.Name("rc"), cform.CTypInt{Bits: 32}), intLit(1)),
	}
	if nilCase < 0 && len(d.Cases) > 1 {
		body = append(body, assign(arrow(p, ids.Name("tag"), cform.CTypInt{Bits: 32}), intLit(base+int64(caseIdx))))
	}
	body = append(body,
		copyStmt(cp, src, slot),
		assign(deref(ident(resultId, cform.CTypRawPtr{Elem: self})), p),
		retOk())

	return &cform.CDefFun{
		Name: fn,
		Params: []cform.CField{
			arg,
			{Name: resultId, Typ: cform.CTypRawPtr{Elem: self}},
		},
		RetTyp: cform.CTypInt{Bits: 32},
		Body:   body,
		Static: true,
		Loc:    d.Loc,
	}
}

package knorm

import (
	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// declareTypeDef registers variant, exception and type-alias definitions in
// the K-form symbol table before any expression of the module is lowered,
// so uses may precede definitions textually.
func (n *Normalizer) declareTypeDef(s ast.Exp) error {
	switch s := s.(type) {
	case ast.DefTyp:
		kt, err := n.Typ2KTyp(s.Typ, s.Ctx.Loc)
		if err != nil {
			return err
		}
		dt := &kform.KDefTyp{Name: s.Name, Typ: kt, Scope: n.scope, Loc: s.Ctx.Loc}
		if err := n.C.SetKInfo(s.Name, dt); err != nil {
			return err
		}
		n.typeDefs[s.Name.Key()] = []kform.KExp{dt}
		return nil
	case ast.DefVariant:
		return n.declareVariant(s)
	case ast.DefExn:
		return n.declareExn(s)
	}
	return nil
}

// declareVariant lowers a variant definition. A single-case variant whose
// payload is a record becomes a plain named record type; record payloads of
// multi-case variants are lifted into named record types of their own.
func (n *Normalizer) declareVariant(s ast.DefVariant) error {
	loc := s.Ctx.Loc

	if len(s.Cases) == 1 {
		if rec, ok := s.Cases[0].Typ.(ast.TypRecord); ok {
			kt, err := n.Typ2KTyp(rec, loc)
			if err != nil {
				return err
			}
			krec := kt.(kform.KTypRecord)
			krec.Name = s.Name
			dt := &kform.KDefTyp{Name: s.Name, Typ: krec, Scope: n.scope, Loc: loc}
			if err := n.C.SetKInfo(s.Name, dt); err != nil {
				return err
			}
			n.typeDefs[s.Name.Key()] = []kform.KExp{dt}
			return nil
		}
	}

	var emitted []kform.KExp

	ctors := n.ctorIds(s.Name, s.Cases)
	cases := make([]kform.KVariantCase, len(s.Cases))
	for i, c := range s.Cases {
		kt, err := n.Typ2KTyp(c.Typ, loc)
		if err != nil {
			return err
		}
		if rec, ok := kt.(kform.KTypRecord); ok {
			// lift the embedded record to a named record and rewrite the
			// case to carry the name
			recName := n.C.NewVal(c.Name.Prefix + "_data")
			rec.Name = recName
			dt := &kform.KDefTyp{Name: recName, Typ: rec, Scope: n.scope, Loc: loc}
			if err := n.C.SetKInfo(recName, dt); err != nil {
				return err
			}
			emitted = append(emitted, dt)
			kt = kform.KTypName{Id: recName}
		}
		cases[i] = kform.KVariantCase{Name: c.Name, Typ: kt}
	}

	dv := &kform.KDefVariant{
		Name:      s.Name,
		Cases:     cases,
		Ctors:     ctors,
		Recursive: s.Recursive,
		Option:    s.Option,
		Scope:     n.scope,
		Loc:       loc,
	}
	if err := n.C.SetKInfo(s.Name, dv); err != nil {
		return err
	}
	emitted = append(emitted, dv)

	vtyp := kform.KTypName{Id: s.Name}
	for i, c := range cases {
		if err := n.declareCtor(ctors[i], s.Name, c, i, vtyp, loc); err != nil {
			return err
		}
		if def, ok := n.C.KInfoOrNil(ctors[i]).(kform.KExp); ok {
			emitted = append(emitted, def)
		}
	}
	n.typeDefs[s.Name.Key()] = emitted
	return nil
}

// ctorIds returns the constructor ids for a variant's cases: the ones the
// type checker resolved when available, fresh ids otherwise.
func (n *Normalizer) ctorIds(name ids.Id, cases []ast.VariantCase) []ids.Id {
	if info, err := n.C.AstInfo(name, diag.NoLoc); err == nil {
		if vi, ok := info.(ast.VariantInfo); ok && len(vi.Ctors) == len(cases) {
			return vi.Ctors
		}
	}
	ctors := make([]ids.Id, len(cases))
	for i, c := range cases {
		ctors[i] = n.C.NewVal(c.Name.Prefix)
	}
	return ctors
}

// declareCtor registers the constructor for one variant case: a constant
// tag value for payload-free cases, a constructor function otherwise. The
// constructor bodies are synthesized by the C-form generator.
func (n *Normalizer) declareCtor(ctor, variant ids.Id, c kform.KVariantCase, tagIdx int, vtyp kform.KTyp, loc diag.Loc) error {
	if kform.IsVoid(c.Typ) {
		tag := int64(tagIdx)
		if def, ok := n.C.KInfoOrNil(variant).(*kform.KDefVariant); ok {
			tag += tagBase(def)
		}
		dv := &kform.KDefVal{
			Name: ctor,
			Rhs: kform.KExpAtom{
				Atom: kform.AtomLit{Lit: ast.LitInt{Value: tag}},
				Ctx:  kform.Ctx{Typ: vtyp, Loc: loc},
			},
			Flags: ast.ValFlags{Global: true, CtorOf: variant},
			Typ:   vtyp,
			Loc:   loc,
		}
		return n.C.SetKInfo(ctor, dv)
	}

	var params []kform.KParam
	if tup, ok := c.Typ.(kform.KTypTuple); ok {
		for i, et := range tup.Elems {
			params = append(params, kform.KParam{Name: n.C.NewTemp(argName(i)), Typ: et})
		}
	} else {
		params = []kform.KParam{{Name: n.C.NewTemp("arg0"), Typ: c.Typ}}
	}
	df := &kform.KDefFun{
		Name:   ctor,
		Params: params,
		RetTyp: vtyp,
		Body:   kform.KExpNop{Loc: loc},
		Flags:  ast.FunFlags{Ctor: variant, NoThrow: false},
		Scope:  n.scope,
		Loc:    loc,
	}
	return n.C.SetKInfo(ctor, df)
}

func argName(i int) string {
	return "arg" + string(rune('0'+i%10))
}

// declareExn registers an exception definition, allocates its runtime tag
// and the constructor for payload-carrying exceptions.
func (n *Normalizer) declareExn(s ast.DefExn) error {
	loc := s.Ctx.Loc
	kt, err := n.Typ2KTyp(s.Typ, loc)
	if err != nil {
		return err
	}

	ctor := ids.None
	if info, ierr := n.C.AstInfo(s.Name, diag.NoLoc); ierr == nil {
		if ei, ok := info.(ast.ExnInfo); ok {
			ctor = ei.Ctor
		}
	}
	if !kform.IsVoid(kt) && ctor.IsNone() {
		ctor = n.C.NewVal(s.Name.Prefix)
	}

	de := &kform.KDefExn{Name: s.Name, Typ: kt, Ctor: ctor, Scope: n.scope, Loc: loc}
	if err := n.C.SetKInfo(s.Name, de); err != nil {
		return err
	}
	n.C.NewExnTag(s.Name)
	n.typeDefs[s.Name.Key()] = []kform.KExp{de}

	if !ctor.IsNone() {
		var params []kform.KParam
		if tup, ok := kt.(kform.KTypTuple); ok {
			for i, et := range tup.Elems {
				params = append(params, kform.KParam{Name: n.C.NewTemp(argName(i)), Typ: et})
			}
		} else {
			params = []kform.KParam{{Name: n.C.NewTemp("arg0"), Typ: kt}}
		}
		df := &kform.KDefFun{
			Name:   ctor,
			Params: params,
			RetTyp: kform.KTypExn{},
			Body:   kform.KExpNop{Loc: loc},
			Flags:  ast.FunFlags{Ctor: s.Name},
			Scope:  n.scope,
			Loc:    loc,
		}
		if err := n.C.SetKInfo(ctor, df); err != nil {
			return err
		}
		n.typeDefs[s.Name.Key()] = append(n.typeDefs[s.Name.Key()], df)
	}
	return nil
}

// lowerDefVal lowers "val p = e" through simple pattern unpacking. When the
// pattern binds nothing the initializer is retained for its side effects.
func (n *Normalizer) lowerDefVal(s ast.DefVal, code []kform.KExp) ([]kform.KExp, error) {
	rhs, code, err := n.exp(s.Init, code)
	if err != nil {
		return code, err
	}
	return n.patSimpleUnpack(s.Pat, rhs, s.Flags, code)
}

// patSimpleUnpack emits one KDefVal per captured variable of an
// irrefutable pattern. Refutable patterns are rejected: value definitions
// cannot fail at runtime.
func (n *Normalizer) patSimpleUnpack(p ast.Pat, rhs kform.KExp, flags ast.ValFlags, code []kform.KExp) ([]kform.KExp, error) {
	ctx := rhs.KCtx()
	switch p := p.(type) {
	case ast.PatAny:
		if _, atom := rhs.(kform.KExpAtom); !atom {
			code = append(code, rhs)
		}
		return code, nil
	case ast.PatIdent:
		dv := &kform.KDefVal{Name: p.Id, Rhs: rhs, Flags: flags, Typ: ctx.Typ, Loc: p.Loc}
		if err := n.C.SetKInfo(p.Id, dv); err != nil {
			return code, err
		}
		return append(code, dv), nil
	case ast.PatTyped:
		return n.patSimpleUnpack(p.Pat, rhs, flags, code)
	case ast.PatAs:
		dv := &kform.KDefVal{Name: p.Id, Rhs: rhs, Flags: flags, Typ: ctx.Typ, Loc: p.Loc}
		if err := n.C.SetKInfo(p.Id, dv); err != nil {
			return code, err
		}
		code = append(code, dv)
		inner := kform.KExpAtom{Atom: kform.AtomId{Id: p.Id}, Ctx: ctx}
		return n.patSimpleUnpack(p.Pat, inner, flags, code)
	case ast.PatTuple:
		a, code, err := n.kexp2atom("tup", rhs, false, code)
		if err != nil {
			return code, err
		}
		tup, ok := ctx.Typ.(kform.KTypTuple)
		if !ok || len(tup.Elems) != len(p.Elems) {
			return code, n.errf(diag.Type, p.Loc, "tuple pattern does not match the value type %s",
				kform.TypString(ctx.Typ))
		}
		for i, ep := range p.Elems {
			mem := kform.KExpMem{Rec: a, Idx: i, Ctx: kform.Ctx{Typ: tup.Elems[i], Loc: p.Loc}}
			code, err = n.patSimpleUnpack(ep, mem, flags, code)
			if err != nil {
				return code, err
			}
		}
		return code, nil
	case ast.PatRecord:
		if !p.Ctor.IsNone() {
			return code, n.errf(diag.PatternMatch, p.Loc,
				"a variant-case pattern cannot be used in a value definition; use match")
		}
		a, code, err := n.kexp2atom("rec", rhs, false, code)
		if err != nil {
			return code, err
		}
		fields, err := n.recordFields(ctx.Typ, p.Loc)
		if err != nil {
			return code, err
		}
		for _, fp := range p.Fields {
			idx := -1
			for i, f := range fields {
				if ids.Equal(f.Name, fp.Name) {
					idx = i
					break
				}
			}
			if idx < 0 {
				return code, n.errf(diag.NameResolution, p.Loc, "the record has no field %s", fp.Name)
			}
			mem := kform.KExpMem{Rec: a, Idx: idx, Ctx: kform.Ctx{Typ: fields[idx].Typ, Loc: p.Loc}}
			code, err = n.patSimpleUnpack(fp.Pat, mem, flags, code)
			if err != nil {
				return code, err
			}
		}
		return code, nil
	case ast.PatRef:
		a, code, err := n.kexp2atom("ref", rhs, false, code)
		if err != nil {
			return code, err
		}
		rt, ok := ctx.Typ.(kform.KTypRef)
		if !ok {
			return code, n.errf(diag.Type, p.Loc, "ref pattern over a non-ref value")
		}
		deref := kform.KExpUnary{Op: ast.OpDeref, Arg: a, Ctx: kform.Ctx{Typ: rt.Elem, Loc: p.Loc}}
		return n.patSimpleUnpack(p.Pat, deref, flags, code)
	default:
		return code, n.errf(diag.PatternMatch, p.PatLoc(),
			"this pattern can fail at runtime and cannot be used in a value definition; use match")
	}
}

// lowerDefFun lowers a function definition: parameters with non-trivial
// patterns are bound to fresh argument ids and unpacked in a prologue.
func (n *Normalizer) lowerDefFun(s ast.DefFun, code []kform.KExp) ([]kform.KExp, error) {
	loc := s.Ctx.Loc

	params := make([]kform.KParam, len(s.Params))
	var prologue []kform.KExp
	for i, p := range s.Params {
		pt, err := n.Typ2KTyp(s.ParamTyps[i], loc)
		if err != nil {
			return code, err
		}
		if id, ok := identOf(p); ok {
			params[i] = kform.KParam{Name: id, Typ: pt}
			dv := &kform.KDefVal{Name: id, Rhs: kform.KExpNop{Loc: loc},
				Flags: ast.ValFlags{Arg: true}, Typ: pt, Loc: loc}
			if err := n.C.SetKInfo(id, dv); err != nil {
				return code, err
			}
			continue
		}
		arg := n.C.NewTemp(argName(i))
		params[i] = kform.KParam{Name: arg, Typ: pt}
		adv := &kform.KDefVal{Name: arg, Rhs: kform.KExpNop{Loc: loc},
			Flags: ast.ValFlags{Arg: true}, Typ: pt, Loc: loc}
		if err := n.C.SetKInfo(arg, adv); err != nil {
			return code, err
		}
		argExp := kform.KExpAtom{Atom: kform.AtomId{Id: arg}, Ctx: kform.Ctx{Typ: pt, Loc: loc}}
		var perr error
		prologue, perr = n.patSimpleUnpack(p, argExp, ast.ValFlags{}, prologue)
		if perr != nil {
			return code, perr
		}
	}

	ret, err := n.Typ2KTyp(s.RetTyp, loc)
	if err != nil {
		return code, err
	}

	df := &kform.KDefFun{
		Name:   s.Name,
		Params: params,
		RetTyp: ret,
		Body:   kform.KExpNop{Loc: loc},
		Flags:  s.Flags,
		Scope:  n.scope,
		Loc:    loc,
	}
	// register before lowering the body so recursive calls resolve
	if err := n.C.SetKInfo(s.Name, df); err != nil {
		return code, err
	}

	body, err := n.expFold(s.Body)
	if err != nil && diag.IsInternal(err) {
		return code, err
	}
	all := make([]kform.KExp, 0, len(prologue)+1)
	all = append(all, prologue...)
	all = append(all, body)
	df.Body = kform.Seq(all...)

	return append(code, df), nil
}

// identOf strips type ascriptions and returns the bound id of a plain
// identifier pattern.
func identOf(p ast.Pat) (ids.Id, bool) {
	switch p := p.(type) {
	case ast.PatIdent:
		return p.Id, true
	case ast.PatTyped:
		return identOf(p.Pat)
	}
	return ids.None, false
}

package knorm

import (
	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// subPat is one pending sub-pattern: the pattern, the type of the value it
// matches and the K-expression that extracts that value.
type subPat struct {
	pat ast.Pat
	typ kform.KTyp
	exp kform.KExp
}

// matchCtx is the per-case state of the pattern compiler: the three
// worklists, the accumulated checks, the extraction/binding code pending
// attachment, the memoized tag temporaries and the deferred guards.
type matchCtx struct {
	n *Normalizer

	// worklists: checks without captures (literals at the front), checks
	// with captures, captures without checks
	needCheckNoVars   []subPat
	needCheckWithVars []subPat
	noCheckWithVars   []subPat

	checks  []kform.KExp
	pending []kform.KExp
	guards  []ast.Exp
	tags    map[int]ids.Id // scrutinee id -> memoized tag temp
	loc     diag.Loc
}

// compileMatch compiles a list of match cases over the atom a of type atyp
// into a K-form match. In catch mode the fallthrough rethrows the caught
// exception instead of throwing NoMatchError.
func (n *Normalizer) compileMatch(a kform.Atom, atyp kform.KTyp, loc diag.Loc,
	cases []ast.MatchCase, ctx kform.Ctx, catchMode bool) (kform.KExp, error) {

	var out []kform.MatchCase
	sawCheckFree := false
	for _, c := range cases {
		if sawCheckFree {
			return kform.KExpNop{Loc: loc},
				n.errf(diag.PatternMatch, c.Pats[0].PatLoc(), "unreachable match case")
		}
		body, err := n.expFold(c.Body)
		if err != nil && diag.IsInternal(err) {
			return kform.KExpNop{Loc: loc}, err
		}
		for _, p := range c.Pats {
			mc := &matchCtx{n: n, tags: map[int]ids.Id{}, loc: p.PatLoc()}
			mc.push(p, atyp, kform.KExpAtom{Atom: a, Ctx: kform.Ctx{Typ: atyp, Loc: loc}})
			if err := mc.run(); err != nil {
				if diag.IsInternal(err) {
					return kform.KExpNop{Loc: loc}, err
				}
				continue
			}
			caseBody := body
			if len(mc.pending) > 0 {
				all := make([]kform.KExp, 0, len(mc.pending)+1)
				all = append(all, mc.pending...)
				all = append(all, body)
				caseBody = kform.Seq(all...)
			}
			out = append(out, kform.MatchCase{Checks: mc.checks, Body: caseBody})
			if len(mc.checks) == 0 {
				sawCheckFree = true
			}
		}
	}

	if !sawCheckFree {
		thr, err := n.fallthroughThrow(a, loc, catchMode)
		if err != nil {
			return kform.KExpNop{Loc: loc}, err
		}
		out = append(out, kform.MatchCase{Body: thr})
	}
	return kform.KExpMatch{Cases: out, Ctx: ctx}, nil
}

// fallthroughThrow builds the no-match fallthrough: a rethrow of the caught
// exception in catch mode, a NoMatchError throw otherwise.
func (n *Normalizer) fallthroughThrow(a kform.Atom, loc diag.Loc, catchMode bool) (kform.KExp, error) {
	if catchMode {
		id, ok := a.(kform.AtomId)
		if !ok {
			return nil, diag.Internalf(loc, "catch-mode match over a non-identifier scrutinee")
		}
		return kform.KExpThrow{Exn: id.Id, Rethrow: true, Loc: loc}, nil
	}
	if n.C.NoMatchError.IsNone() {
		// Builtins was not processed (isolated compilation); synthesize the
		// standard exception so the match can still be compiled.
		exn := n.C.NewVal("NoMatchError")
		de := &kform.KDefExn{Name: exn, Typ: kform.KTypVoid{}, Scope: n.scope, Loc: loc}
		if err := n.C.SetKInfo(exn, de); err != nil {
			return nil, err
		}
		n.C.NewExnTag(exn)
		n.C.NoMatchError = exn
	}
	return kform.KExpThrow{Exn: n.C.NoMatchError, Loc: loc}, nil
}

// push classifies a sub-pattern into the worklists. Literal checks go to
// the front of the no-captures list (cheapest first), other checks to the
// back; capture-only patterns go to the third list.
func (mc *matchCtx) push(p ast.Pat, typ kform.KTyp, exp kform.KExp) {
	sp := subPat{pat: p, typ: typ, exp: exp}
	hasVars := patHasVars(p)
	needsCheck := mc.patNeedsCheck(p, typ)
	switch {
	case !hasVars && !needsCheck:
		// wildcard; nothing to do
	case !hasVars:
		if _, lit := p.(ast.PatLit); lit {
			mc.needCheckNoVars = append([]subPat{sp}, mc.needCheckNoVars...)
		} else {
			mc.needCheckNoVars = append(mc.needCheckNoVars, sp)
		}
	case needsCheck:
		mc.needCheckWithVars = append(mc.needCheckWithVars, sp)
	default:
		mc.noCheckWithVars = append(mc.noCheckWithVars, sp)
	}
}

// run drains the worklists in priority order, then appends the deferred
// guards as final checks.
func (mc *matchCtx) run() error {
	for {
		var sp subPat
		switch {
		case len(mc.needCheckNoVars) > 0:
			sp, mc.needCheckNoVars = mc.needCheckNoVars[0], mc.needCheckNoVars[1:]
		case len(mc.needCheckWithVars) > 0:
			sp, mc.needCheckWithVars = mc.needCheckWithVars[0], mc.needCheckWithVars[1:]
		case len(mc.noCheckWithVars) > 0:
			sp, mc.noCheckWithVars = mc.noCheckWithVars[0], mc.noCheckWithVars[1:]
		default:
			for _, g := range mc.guards {
				ge, err := mc.n.expFold(g)
				if err != nil {
					return err
				}
				mc.emitCheck(ge)
			}
			mc.guards = nil
			return nil
		}
		if err := mc.dispatch(sp); err != nil {
			return err
		}
	}
}

// emitCheck appends a boolean check, folding any pending extraction code
// into it.
func (mc *matchCtx) emitCheck(test kform.KExp) {
	if len(mc.pending) > 0 {
		all := make([]kform.KExp, 0, len(mc.pending)+1)
		all = append(all, mc.pending...)
		all = append(all, test)
		test = kform.Seq(all...)
		mc.pending = nil
	}
	mc.checks = append(mc.checks, test)
}

// atomizeExp binds a sub-pattern's value expression to an atom; the
// extraction lands in the pending code.
func (mc *matchCtx) atomizeExp(e kform.KExp) (kform.Atom, error) {
	a, code, err := mc.n.kexp2atom("p", e, true, mc.pending)
	mc.pending = code
	return a, err
}

func (mc *matchCtx) atomizeToId(e kform.KExp) (ids.Id, error) {
	id, code, err := mc.n.kexp2id("p", e, mc.pending)
	mc.pending = code
	return id, err
}

func (mc *matchCtx) dispatch(sp subPat) error {
	n := mc.n
	loc := sp.pat.PatLoc()
	boolCtx := kform.Ctx{Typ: kform.KTypBool{}, Loc: loc}

	switch p := sp.pat.(type) {
	case ast.PatAny:
		return nil

	case ast.PatLit:
		a, err := mc.atomizeExp(sp.exp)
		if err != nil {
			return err
		}
		mc.emitCheck(kform.KExpBinary{
			Op: ast.OpCmpEQ, Left: a, Right: kform.AtomLit{Lit: p.Lit}, Ctx: boolCtx,
		})
		return nil

	case ast.PatIdent:
		dv := &kform.KDefVal{Name: p.Id, Rhs: sp.exp, Typ: sp.typ, Loc: loc}
		if err := n.C.SetKInfo(p.Id, dv); err != nil {
			return err
		}
		mc.pending = append(mc.pending, dv)
		return nil

	case ast.PatTyped:
		mc.push(p.Pat, sp.typ, sp.exp)
		return nil

	case ast.PatAs:
		dv := &kform.KDefVal{Name: p.Id, Rhs: sp.exp, Typ: sp.typ, Loc: loc}
		if err := n.C.SetKInfo(p.Id, dv); err != nil {
			return err
		}
		mc.pending = append(mc.pending, dv)
		mc.push(p.Pat, sp.typ, kform.KExpAtom{Atom: kform.AtomId{Id: p.Id}, Ctx: kform.Ctx{Typ: sp.typ, Loc: loc}})
		return nil

	case ast.PatWhen:
		mc.push(p.Pat, sp.typ, sp.exp)
		mc.guards = append(mc.guards, p.Guard)
		return nil

	case ast.PatCons:
		lt, ok := sp.typ.(kform.KTypList)
		if !ok {
			return n.errf(diag.Type, loc, ":: pattern over a non-list value")
		}
		a, err := mc.atomizeExp(sp.exp)
		if err != nil {
			return err
		}
		mc.emitCheck(kform.KExpBinary{
			Op: ast.OpCmpNE, Left: a, Right: kform.AtomLit{Lit: ast.LitNil{}}, Ctx: boolCtx,
		})
		head := kform.KExpIntrin{Op: kform.IntrinListHead, Args: []kform.Atom{a},
			Ctx: kform.Ctx{Typ: lt.Elem, Loc: loc}}
		tail := kform.KExpIntrin{Op: kform.IntrinListTail, Args: []kform.Atom{a},
			Ctx: kform.Ctx{Typ: lt, Loc: loc}}
		mc.push(p.Head, lt.Elem, head)
		mc.push(p.Tail, lt, tail)
		return nil

	case ast.PatTuple:
		tup, ok := sp.typ.(kform.KTypTuple)
		if !ok {
			return n.errf(diag.Type, loc, "tuple pattern over a non-tuple value")
		}
		if len(tup.Elems) != len(p.Elems) {
			return n.errf(diag.PatternMatch, loc, "tuple pattern arity mismatch")
		}
		a, err := mc.atomizeExp(sp.exp)
		if err != nil {
			return err
		}
		for i, ep := range p.Elems {
			mem := kform.KExpMem{Rec: a, Idx: i, Ctx: kform.Ctx{Typ: tup.Elems[i], Loc: loc}}
			mc.push(ep, tup.Elems[i], mem)
		}
		return nil

	case ast.PatRef:
		rt, ok := sp.typ.(kform.KTypRef)
		if !ok {
			return n.errf(diag.Type, loc, "ref pattern over a non-ref value")
		}
		a, err := mc.atomizeExp(sp.exp)
		if err != nil {
			return err
		}
		deref := kform.KExpUnary{Op: ast.OpDeref, Arg: a, Ctx: kform.Ctx{Typ: rt.Elem, Loc: loc}}
		mc.push(p.Pat, rt.Elem, deref)
		return nil

	case ast.PatVariant:
		return mc.matchVariant(sp, p.Ctor, p.Args, nil)

	case ast.PatRecord:
		if !p.Ctor.IsNone() {
			return mc.matchVariant(sp, p.Ctor, nil, p.Fields)
		}
		fields, err := n.recordFields(sp.typ, loc)
		if err != nil {
			return err
		}
		a, err := mc.atomizeExp(sp.exp)
		if err != nil {
			return err
		}
		for _, fp := range p.Fields {
			idx := fieldIndex(fields, fp.Name)
			if idx < 0 {
				return n.errf(diag.NameResolution, loc, "the record has no field %s", fp.Name)
			}
			mem := kform.KExpMem{Rec: a, Idx: idx, Ctx: kform.Ctx{Typ: fields[idx].Typ, Loc: loc}}
			mc.push(fp.Pat, fields[idx].Typ, mem)
		}
		return nil
	}
	return diag.Internalf(loc, "unsupported pattern %T", sp.pat)
}

// matchVariant handles variant-case and variant-record-case patterns for
// both ordinary variants and exceptions: the tag is extracted once per
// scrutinee (memoized), compared when the variant has more than one case,
// and the payload is reached through the VARIANT_CASE intrinsic.
func (mc *matchCtx) matchVariant(sp subPat, ctor ids.Id, args []ast.Pat, fields []ast.FieldPat) error {
	n := mc.n
	loc := sp.pat.PatLoc()
	boolCtx := kform.Ctx{Typ: kform.KTypBool{}, Loc: loc}

	id, err := mc.atomizeToId(sp.exp)
	if err != nil {
		return err
	}
	a := kform.AtomId{Id: id}

	if _, exn := sp.typ.(kform.KTypExn); exn {
		return mc.matchExnCase(a, sp.typ, ctor, args, fields, loc)
	}

	def, err := n.variantOf(sp.typ, loc)
	if err != nil {
		return err
	}
	caseIdx := -1
	for i, c := range def.Ctors {
		if ids.Equal(c, ctor) {
			caseIdx = i
			break
		}
	}
	if caseIdx < 0 {
		// the pattern may name the case rather than the constructor
		for i, c := range def.Cases {
			if ids.Equal(c.Name, ctor) {
				caseIdx = i
				break
			}
		}
	}
	if caseIdx < 0 {
		return n.errf(diag.NameResolution, loc, "%s is not a case of variant %s", ctor, def.Name)
	}

	if len(def.Cases) > 1 {
		tag, err := mc.tagOf(a, def, loc)
		if err != nil {
			return err
		}
		tagVal := int64(caseIdx) + tagBase(def)
		mc.emitCheck(kform.KExpBinary{
			Op:   ast.OpCmpEQ,
			Left: kform.AtomId{Id: tag},
			Right: kform.AtomLit{Lit: ast.LitInt{Value: tagVal}},
			Ctx:  boolCtx,
		})
	}

	caseTyp := def.Cases[caseIdx].Typ
	if kform.IsVoid(caseTyp) {
		return nil
	}
	payload := kform.KExpIntrin{
		Op:   kform.IntrinVariantCase,
		Args: []kform.Atom{a, kform.AtomLit{Lit: ast.LitInt{Value: int64(caseIdx)}}},
		Ctx:  kform.Ctx{Typ: caseTyp, Loc: loc},
	}
	return mc.pushPayload(payload, caseTyp, args, fields, loc)
}

// matchExnCase matches an exception pattern: the tag is compared against
// the exception's id (resolved to its runtime tag by the C-form generator).
func (mc *matchCtx) matchExnCase(a kform.AtomId, typ kform.KTyp, ctor ids.Id,
	args []ast.Pat, fields []ast.FieldPat, loc diag.Loc) error {

	n := mc.n
	exnName := ctor
	var payloadTyp kform.KTyp = kform.KTypVoid{}
	switch def := n.C.KInfoOrNil(ctor).(type) {
	case *kform.KDefExn:
		payloadTyp = def.Typ
	case *kform.KDefFun:
		// the pattern names the constructor function of the exception
		exnName = def.Flags.Ctor
		if ed, ok := n.C.KInfoOrNil(exnName).(*kform.KDefExn); ok {
			payloadTyp = ed.Typ
		}
	}

	tag, err := mc.tagOf(a, nil, loc)
	if err != nil {
		return err
	}
	mc.emitCheck(kform.KExpBinary{
		Op:    ast.OpCmpEQ,
		Left:  kform.AtomId{Id: tag},
		Right: kform.AtomId{Id: exnName},
		Ctx:   kform.Ctx{Typ: kform.KTypBool{}, Loc: loc},
	})

	if kform.IsVoid(payloadTyp) {
		return nil
	}
	payload := kform.KExpIntrin{
		Op:   kform.IntrinVariantCase,
		Args: []kform.Atom{a, kform.AtomId{Id: exnName}},
		Ctx:  kform.Ctx{Typ: payloadTyp, Loc: loc},
	}
	return mc.pushPayload(payload, payloadTyp, args, fields, loc)
}

// pushPayload distributes a case payload over positional or named
// sub-patterns.
func (mc *matchCtx) pushPayload(payload kform.KExp, caseTyp kform.KTyp,
	args []ast.Pat, fields []ast.FieldPat, loc diag.Loc) error {

	n := mc.n
	if fields != nil {
		recFields, err := n.recordFields(caseTyp, loc)
		if err != nil {
			return err
		}
		a, err := mc.atomizeExp(payload)
		if err != nil {
			return err
		}
		for _, fp := range fields {
			idx := fieldIndex(recFields, fp.Name)
			if idx < 0 {
				return n.errf(diag.NameResolution, loc, "the record has no field %s", fp.Name)
			}
			mem := kform.KExpMem{Rec: a, Idx: idx, Ctx: kform.Ctx{Typ: recFields[idx].Typ, Loc: loc}}
			mc.push(fp.Pat, recFields[idx].Typ, mem)
		}
		return nil
	}

	switch len(args) {
	case 0:
		return nil
	case 1:
		mc.push(args[0], caseTyp, payload)
		return nil
	default:
		tup, ok := caseTyp.(kform.KTypTuple)
		if !ok || len(tup.Elems) != len(args) {
			return n.errf(diag.PatternMatch, loc, "variant pattern arity mismatch")
		}
		a, err := mc.atomizeExp(payload)
		if err != nil {
			return err
		}
		for i, ap := range args {
			mem := kform.KExpMem{Rec: a, Idx: i, Ctx: kform.Ctx{Typ: tup.Elems[i], Loc: loc}}
			mc.push(ap, tup.Elems[i], mem)
		}
		return nil
	}
}

// tagOf extracts the scrutinee's tag once per outer pattern, memoized by
// the scrutinee id. Single-case variants use the constant 0 tag; multi-case
// variants and exceptions use the VARIANT_TAG intrinsic.
func (mc *matchCtx) tagOf(a kform.AtomId, def *kform.KDefVariant, loc diag.Loc) (ids.Id, error) {
	if tag, ok := mc.tags[a.Id.Key()]; ok {
		return tag, nil
	}
	n := mc.n
	tag := n.C.NewTemp("tag")
	var rhs kform.KExp
	if def != nil && len(def.Cases) == 1 {
		rhs = kform.KExpAtom{
			Atom: kform.AtomLit{Lit: ast.LitInt{Value: 0}},
			Ctx:  kform.Ctx{Typ: kform.KTypInt{}, Loc: loc},
		}
	} else {
		rhs = kform.KExpIntrin{
			Op:   kform.IntrinVariantTag,
			Args: []kform.Atom{a},
			Ctx:  kform.Ctx{Typ: kform.KTypInt{}, Loc: loc},
		}
	}
	dv := &kform.KDefVal{Name: tag, Rhs: rhs, Flags: ast.ValFlags{TempRef: true},
		Typ: kform.KTypInt{}, Loc: loc}
	if err := n.C.SetKInfo(tag, dv); err != nil {
		return ids.None, err
	}
	mc.pending = append(mc.pending, dv)
	mc.tags[a.Id.Key()] = tag
	return tag, nil
}

// tagBase is the value of the first case tag: 0 for option-flagged
// variants (reserving 0 for the nil case), 1 otherwise.
func tagBase(def *kform.KDefVariant) int64 {
	if def.Option {
		return 0
	}
	return 1
}

func fieldIndex(fields []kform.KField, name ids.Id) int {
	for i, f := range fields {
		if ids.Equal(f.Name, name) {
			return i
		}
	}
	return -1
}

// patHasVars reports whether the pattern binds any variable.
func patHasVars(p ast.Pat) bool {
	switch p := p.(type) {
	case ast.PatIdent, ast.PatAs:
		return true
	case ast.PatTyped:
		return patHasVars(p.Pat)
	case ast.PatWhen:
		return patHasVars(p.Pat)
	case ast.PatRef:
		return patHasVars(p.Pat)
	case ast.PatTuple:
		for _, e := range p.Elems {
			if patHasVars(e) {
				return true
			}
		}
	case ast.PatVariant:
		for _, e := range p.Args {
			if patHasVars(e) {
				return true
			}
		}
	case ast.PatRecord:
		for _, f := range p.Fields {
			if patHasVars(f.Pat) {
				return true
			}
		}
	case ast.PatCons:
		return patHasVars(p.Head) || patHasVars(p.Tail)
	}
	return false
}

// patNeedsCheck reports whether matching the pattern can fail.
func (mc *matchCtx) patNeedsCheck(p ast.Pat, typ kform.KTyp) bool {
	switch p := p.(type) {
	case ast.PatAny, ast.PatIdent:
		return false
	case ast.PatLit, ast.PatCons:
		return true
	case ast.PatWhen:
		return true
	case ast.PatTyped:
		return mc.patNeedsCheck(p.Pat, typ)
	case ast.PatAs:
		return mc.patNeedsCheck(p.Pat, typ)
	case ast.PatRef:
		if rt, ok := typ.(kform.KTypRef); ok {
			return mc.patNeedsCheck(p.Pat, rt.Elem)
		}
		return true
	case ast.PatTuple:
		tup, ok := typ.(kform.KTypTuple)
		if !ok {
			return true
		}
		for i, e := range p.Elems {
			if i < len(tup.Elems) && mc.patNeedsCheck(e, tup.Elems[i]) {
				return true
			}
		}
		return false
	case ast.PatVariant:
		return mc.variantNeedsCheck(typ)
	case ast.PatRecord:
		if !p.Ctor.IsNone() {
			return mc.variantNeedsCheck(typ)
		}
		fields, err := mc.n.recordFields(typ, p.Loc)
		if err != nil {
			return true
		}
		for _, fp := range p.Fields {
			idx := fieldIndex(fields, fp.Name)
			if idx < 0 || mc.patNeedsCheck(fp.Pat, fields[idx].Typ) {
				return true
			}
		}
		return false
	}
	return true
}

// variantNeedsCheck: exceptions always need a tag check; variants need one
// iff they have more than one case.
func (mc *matchCtx) variantNeedsCheck(typ kform.KTyp) bool {
	if _, exn := typ.(kform.KTypExn); exn {
		return true
	}
	def, err := mc.n.variantOf(typ, diag.NoLoc)
	if err != nil {
		return true
	}
	return len(def.Cases) > 1
}

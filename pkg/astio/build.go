package astio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/diag"
)

func (b *Builder) loc() diag.Loc {
	return diag.Loc{File: b.file}
}

func (b *Builder) ctx(typ string) (ast.Ctx, error) {
	t, err := b.typ(typ)
	if err != nil {
		return ast.Ctx{}, err
	}
	return ast.Ctx{Typ: t, Loc: b.loc()}, nil
}

// exp converts one expression node.
func (b *Builder) exp(d ExpNode) (ast.Exp, error) {
	loc := b.loc()
	switch {
	case d.Int != nil:
		return ast.ExpLit{Lit: ast.LitInt{Value: *d.Int}, Ctx: ast.Ctx{Typ: ast.TypInt{}, Loc: loc}}, nil
	case d.Float != nil:
		return ast.ExpLit{Lit: ast.LitFloat{Bits: 64, Value: *d.Float}, Ctx: ast.Ctx{Typ: ast.TypFloat{Bits: 64}, Loc: loc}}, nil
	case d.Bool != nil:
		return ast.ExpLit{Lit: ast.LitBool{Value: *d.Bool}, Ctx: ast.Ctx{Typ: ast.TypBool{}, Loc: loc}}, nil
	case d.Str != nil:
		return ast.ExpLit{Lit: ast.LitString{Value: *d.Str}, Ctx: ast.Ctx{Typ: ast.TypString{}, Loc: loc}}, nil
	case d.Char != nil:
		r := []rune(*d.Char)
		if len(r) != 1 {
			return nil, fmt.Errorf("char literal %q must be a single rune", *d.Char)
		}
		return ast.ExpLit{Lit: ast.LitChar{Value: r[0]}, Ctx: ast.Ctx{Typ: ast.TypChar{}, Loc: loc}}, nil
	case d.Nil:
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		return ast.ExpLit{Lit: ast.LitNil{}, Ctx: ctx}, nil
	case d.Unit:
		return ast.ExpLit{Lit: ast.LitUnit{}, Ctx: ast.Ctx{Typ: ast.TypVoid{}, Loc: loc}}, nil

	case d.Id != "":
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		return ast.ExpIdent{Id: b.resolve(d.Id), Ctx: ctx}, nil

	case d.Bin != nil:
		op, ok := binOps[d.Bin.Op]
		if !ok {
			return nil, fmt.Errorf("unknown binary operator %q", d.Bin.Op)
		}
		left, err := b.exp(d.Bin.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.exp(d.Bin.Right)
		if err != nil {
			return nil, err
		}
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		return ast.ExpBinary{Op: op, Left: left, Right: right, Ctx: ctx}, nil

	case d.Un != nil:
		op, ok := unOps[d.Un.Op]
		if !ok {
			return nil, fmt.Errorf("unknown unary operator %q", d.Un.Op)
		}
		arg, err := b.exp(d.Un.Arg)
		if err != nil {
			return nil, err
		}
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		return ast.ExpUnary{Op: op, Arg: arg, Ctx: ctx}, nil

	case d.Seq != nil:
		exps := make([]ast.Exp, len(d.Seq))
		var last ast.Ctx
		for i, s := range d.Seq {
			e, err := b.exp(s)
			if err != nil {
				return nil, err
			}
			exps[i] = e
			last = e.Context()
		}
		return ast.ExpSeq{Exps: exps, Ctx: last}, nil

	case d.If != nil:
		cond, err := b.exp(d.If.Cond)
		if err != nil {
			return nil, err
		}
		then, err := b.exp(d.If.Then)
		if err != nil {
			return nil, err
		}
		els, err := b.exp(d.If.Else)
		if err != nil {
			return nil, err
		}
		return ast.ExpIf{Cond: cond, Then: then, Else: els, Ctx: then.Context()}, nil

	case d.Call != nil:
		args := make([]ast.Exp, len(d.Call.Args))
		for i, a := range d.Call.Args {
			e, err := b.exp(a)
			if err != nil {
				return nil, err
			}
			args[i] = e
		}
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		fid := b.resolve(d.Call.Fun)
		fctx := ast.Ctx{Typ: ast.TypVoid{}, Loc: b.loc()}
		if info, ierr := b.C.AstInfo(fid, b.loc()); ierr == nil {
			if fi, ok := info.(ast.FunInfo); ok {
				fctx.Typ = fi.Typ
			}
		}
		return ast.ExpCall{Fun: ast.ExpIdent{Id: fid, Ctx: fctx}, Args: args, Ctx: ctx}, nil

	case d.Tuple != nil:
		elems := make([]ast.Exp, len(d.Tuple))
		typs := make([]ast.Typ, len(d.Tuple))
		for i, t := range d.Tuple {
			e, err := b.exp(t)
			if err != nil {
				return nil, err
			}
			elems[i] = e
			typs[i] = e.Context().Typ
		}
		return ast.ExpMkTuple{Elems: elems, Ctx: ast.Ctx{Typ: ast.TypTuple{Elems: typs}, Loc: loc}}, nil

	case d.Record != nil:
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		rec := ast.ExpMkRecord{Ctx: ctx}
		if d.Record.Ctor != "" {
			rec.Ctor = b.resolve(d.Record.Ctor)
		}
		for _, name := range sortedKeys(d.Record.Fields) {
			e, err := b.exp(d.Record.Fields[name])
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, ast.FieldInit{Name: b.resolve(name), Exp: e})
		}
		return rec, nil

	case d.Mem != nil:
		recE, err := b.exp(d.Mem.Rec)
		if err != nil {
			return nil, err
		}
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		mem := ast.ExpMem{Rec: recE, Idx: d.Mem.Idx, Ctx: ctx}
		if d.Mem.Field != "" {
			mem.Field = b.resolve(d.Mem.Field)
		}
		return mem, nil

	case d.At != nil:
		arr, err := b.exp(d.At.Arr)
		if err != nil {
			return nil, err
		}
		idxs := make([]ast.Exp, len(d.At.Idxs))
		for i, ix := range d.At.Idxs {
			e, err := b.exp(ix)
			if err != nil {
				return nil, err
			}
			idxs[i] = e
		}
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		return ast.ExpAt{Arr: arr, Idxs: idxs, Ctx: ctx}, nil

	case d.Assign != nil:
		lhs, err := b.exp(d.Assign.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := b.exp(d.Assign.RHS)
		if err != nil {
			return nil, err
		}
		return ast.ExpAssign{LHS: lhs, RHS: rhs, Ctx: ast.Ctx{Typ: ast.TypVoid{}, Loc: loc}}, nil

	case d.While != nil:
		cond, err := b.exp(d.While.Cond)
		if err != nil {
			return nil, err
		}
		body, err := b.exp(d.While.Body)
		if err != nil {
			return nil, err
		}
		return ast.ExpWhile{Cond: cond, Body: body, Ctx: ast.Ctx{Typ: ast.TypVoid{}, Loc: loc}}, nil

	case d.For != nil:
		stages, err := b.stages(d.For.Stages)
		if err != nil {
			return nil, err
		}
		body, err := b.exp(d.For.Body)
		if err != nil {
			return nil, err
		}
		return ast.ExpFor{Stages: stages, Body: body, Ctx: ast.Ctx{Typ: ast.TypVoid{}, Loc: loc}}, nil

	case d.Map != nil:
		stages, err := b.stages(d.Map.Stages)
		if err != nil {
			return nil, err
		}
		body, err := b.exp(d.Map.Body)
		if err != nil {
			return nil, err
		}
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		return ast.ExpMap{Stages: stages, Body: body, MakeList: d.Map.List, Ctx: ctx}, nil

	case d.Match != nil:
		if d.Match.Arg == nil {
			return nil, fmt.Errorf("match without a scrutinee")
		}
		arg, err := b.exp(*d.Match.Arg)
		if err != nil {
			return nil, err
		}
		cases, err := b.cases(d.Match.Cases)
		if err != nil {
			return nil, err
		}
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		return ast.ExpMatch{Arg: arg, Cases: cases, Ctx: ctx}, nil

	case d.Try != nil:
		if d.Try.Body == nil {
			return nil, fmt.Errorf("try without a body")
		}
		body, err := b.exp(*d.Try.Body)
		if err != nil {
			return nil, err
		}
		cases, err := b.cases(d.Try.Cases)
		if err != nil {
			return nil, err
		}
		return ast.ExpTry{Body: body, Cases: cases, Ctx: body.Context()}, nil

	case d.Throw != nil:
		exn, err := b.exp(*d.Throw)
		if err != nil {
			return nil, err
		}
		return ast.ExpThrow{Exn: exn, Ctx: ast.Ctx{Typ: ast.TypVoid{}, Loc: loc}}, nil

	case d.CCode != nil:
		ctx, err := b.ctx(d.Typ)
		if err != nil {
			return nil, err
		}
		return ast.ExpCCode{Code: *d.CCode, Ctx: ctx}, nil

	case d.Range != nil:
		r := ast.ExpRange{Ctx: ast.Ctx{Typ: ast.TypInt{}, Loc: loc}}
		var err error
		if d.Range.Begin != nil {
			if r.Begin, err = b.exp(*d.Range.Begin); err != nil {
				return nil, err
			}
		}
		if d.Range.End != nil {
			if r.End, err = b.exp(*d.Range.End); err != nil {
				return nil, err
			}
		}
		if d.Range.Delta != nil {
			if r.Delta, err = b.exp(*d.Range.Delta); err != nil {
				return nil, err
			}
		}
		return r, nil

	case d.Val != nil:
		init, err := b.exp(d.Val.Init)
		if err != nil {
			return nil, err
		}
		return ast.DefVal{
			Pat:   ast.PatIdent{Id: b.resolve(d.Val.Name), Loc: loc},
			Init:  init,
			Flags: ast.ValFlags{Mutable: d.Val.Mutable, Global: true},
			Ctx:   ast.Ctx{Typ: ast.TypVoid{}, Loc: loc},
		}, nil

	case d.Fun != nil:
		params := make([]ast.Pat, len(d.Fun.Params))
		typs := make([]ast.Typ, len(d.Fun.Params))
		for i, p := range d.Fun.Params {
			t, err := b.typ(p.Typ)
			if err != nil {
				return nil, err
			}
			pid := b.resolve(p.Name)
			if err := b.C.SetAstInfo(pid, ast.ValInfo{Name: pid, Typ: t, Flags: ast.ValFlags{Arg: true}, Loc: loc}); err != nil {
				return nil, err
			}
			params[i] = ast.PatIdent{Id: pid, Loc: loc}
			typs[i] = t
		}
		ret, err := b.typ(d.Fun.Ret)
		if err != nil {
			return nil, err
		}
		body, err := b.exp(d.Fun.Body)
		if err != nil {
			return nil, err
		}
		return ast.DefFun{
			Name:      b.resolve(d.Fun.Name),
			Params:    params,
			ParamTyps: typs,
			RetTyp:    ret,
			Body:      body,
			Flags: ast.FunFlags{
				HasKeywords: d.Fun.Keywords,
				Pure:        d.Fun.Pure,
				NoThrow:     d.Fun.NoThrow,
			},
			Ctx: ast.Ctx{Typ: ast.TypVoid{}, Loc: loc},
		}, nil

	case d.Variant != nil:
		cases := make([]ast.VariantCase, len(d.Variant.Cases))
		for i, c := range d.Variant.Cases {
			ct := ast.Typ(ast.TypVoid{})
			if c.Typ != "" {
				t, err := b.typ(c.Typ)
				if err != nil {
					return nil, err
				}
				ct = t
			}
			cases[i] = ast.VariantCase{Name: b.resolve(c.Name), Typ: ct}
		}
		return ast.DefVariant{
			Name:      b.resolve(d.Variant.Name),
			Cases:     cases,
			Recursive: d.Variant.Recursive,
			Option:    d.Variant.Option,
			Ctx:       ast.Ctx{Typ: ast.TypVoid{}, Loc: loc},
		}, nil

	case d.Exn != nil:
		t := ast.Typ(ast.TypVoid{})
		if d.Exn.Typ != "" {
			pt, err := b.typ(d.Exn.Typ)
			if err != nil {
				return nil, err
			}
			t = pt
		}
		return ast.DefExn{Name: b.resolve(d.Exn.Name), Typ: t, Ctx: ast.Ctx{Typ: ast.TypVoid{}, Loc: loc}}, nil

	case d.Alias != nil:
		t, err := b.typ(d.Alias.Typ)
		if err != nil {
			return nil, err
		}
		return ast.DefTyp{Name: b.resolve(d.Alias.Name), Typ: t, Ctx: ast.Ctx{Typ: ast.TypVoid{}, Loc: loc}}, nil
	}
	return nil, fmt.Errorf("empty expression node")
}

func (b *Builder) stages(nodes []StageNode) ([]ast.ForStage, error) {
	stages := make([]ast.ForStage, len(nodes))
	for i, sn := range nodes {
		clauses := make([]ast.ForClause, len(sn.Clauses))
		for j, cn := range sn.Clauses {
			p, err := b.pat(cn.Pat)
			if err != nil {
				return nil, err
			}
			dom, err := b.exp(cn.Domain)
			if err != nil {
				return nil, err
			}
			cl := ast.ForClause{Pat: p, Domain: dom}
			if cn.Idx != nil {
				ip, err := b.pat(*cn.Idx)
				if err != nil {
					return nil, err
				}
				cl.IdxPat = ip
			}
			clauses[j] = cl
		}
		stages[i] = ast.ForStage{Clauses: clauses}
	}
	return stages, nil
}

func (b *Builder) cases(nodes []CaseNode) ([]ast.MatchCase, error) {
	cases := make([]ast.MatchCase, len(nodes))
	for i, cn := range nodes {
		pats := make([]ast.Pat, len(cn.Pats))
		for j, pn := range cn.Pats {
			p, err := b.pat(pn)
			if err != nil {
				return nil, err
			}
			pats[j] = p
		}
		body, err := b.exp(cn.Body)
		if err != nil {
			return nil, err
		}
		cases[i] = ast.MatchCase{Pats: pats, Body: body}
	}
	return cases, nil
}

func (b *Builder) pat(pn PatNode) (ast.Pat, error) {
	loc := b.loc()
	switch {
	case pn.Any:
		return ast.PatAny{Loc: loc}, nil
	case pn.When != nil:
		inner, err := b.pat(pn.When.Pat)
		if err != nil {
			return nil, err
		}
		guard, err := b.exp(pn.When.Guard)
		if err != nil {
			return nil, err
		}
		return ast.PatWhen{Pat: inner, Guard: guard, Loc: loc}, nil
	case pn.As != nil:
		inner, err := b.pat(pn.As.Pat)
		if err != nil {
			return nil, err
		}
		return ast.PatAs{Pat: inner, Id: b.resolve(pn.As.Name), Loc: loc}, nil
	case pn.Lit != nil:
		e, err := b.exp(*pn.Lit)
		if err != nil {
			return nil, err
		}
		le, ok := e.(ast.ExpLit)
		if !ok {
			return nil, fmt.Errorf("pattern literal must be a literal")
		}
		return ast.PatLit{Lit: le.Lit, Loc: loc}, nil
	case pn.Tuple != nil:
		elems := make([]ast.Pat, len(pn.Tuple))
		for i, ep := range pn.Tuple {
			p, err := b.pat(ep)
			if err != nil {
				return nil, err
			}
			elems[i] = p
		}
		return ast.PatTuple{Elems: elems, Loc: loc}, nil
	case pn.Variant != nil:
		args := make([]ast.Pat, len(pn.Variant.Args))
		for i, ap := range pn.Variant.Args {
			p, err := b.pat(ap)
			if err != nil {
				return nil, err
			}
			args[i] = p
		}
		return ast.PatVariant{Ctor: b.resolve(pn.Variant.Ctor), Args: args, Loc: loc}, nil
	case pn.Record != nil:
		rec := ast.PatRecord{Loc: loc}
		if pn.Ctor != "" {
			rec.Ctor = b.resolve(pn.Ctor)
		}
		for _, name := range sortedKeys(pn.Record) {
			p, err := b.pat(pn.Record[name])
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, ast.FieldPat{Name: b.resolve(name), Pat: p})
		}
		return rec, nil
	case pn.Cons != nil:
		head, err := b.pat(pn.Cons.Head)
		if err != nil {
			return nil, err
		}
		tail, err := b.pat(pn.Cons.Tail)
		if err != nil {
			return nil, err
		}
		return ast.PatCons{Head: head, Tail: tail, Loc: loc}, nil
	case pn.Ident != "":
		p := ast.Pat(ast.PatIdent{Id: b.resolve(pn.Ident), Loc: loc})
		if pn.Typ != "" {
			t, err := b.typ(pn.Typ)
			if err != nil {
				return nil, err
			}
			p = ast.PatTyped{Pat: p, Typ: t, Loc: loc}
		}
		return p, nil
	}
	return nil, fmt.Errorf("empty pattern node")
}

var binOps = map[string]ast.BinOp{
	"+": ast.OpAdd, "-": ast.OpSub, "*": ast.OpMul, "/": ast.OpDiv,
	"%": ast.OpMod, "**": ast.OpPow, "<<": ast.OpShiftLeft, ">>": ast.OpShiftRight,
	"&": ast.OpBitAnd, "|": ast.OpBitOr, "^": ast.OpBitXor,
	"&&": ast.OpLogicAnd, "||": ast.OpLogicOr,
	"==": ast.OpCmpEQ, "!=": ast.OpCmpNE, "<": ast.OpCmpLT,
	"<=": ast.OpCmpLE, ">": ast.OpCmpGT, ">=": ast.OpCmpGE,
	"::": ast.OpCons,
}

var unOps = map[string]ast.UnOp{
	"-": ast.OpNeg, "~": ast.OpBitNot, "!": ast.OpLogicNot,
	"*": ast.OpDeref, "ref": ast.OpMkRef, "\\": ast.OpExpand,
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// typ parses a type expression: scalars by name, "T list", "T ref",
// "T [,,]" arrays, "(a, b)" tuples, "(a) -> r" functions, anything else a
// named type.
func (b *Builder) typ(s string) (ast.Typ, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("missing type annotation")
	}
	switch s {
	case "int":
		return ast.TypInt{}, nil
	case "int8":
		return ast.TypSInt{Bits: 8}, nil
	case "int16":
		return ast.TypSInt{Bits: 16}, nil
	case "int32":
		return ast.TypSInt{Bits: 32}, nil
	case "int64":
		return ast.TypSInt{Bits: 64}, nil
	case "uint8":
		return ast.TypUInt{Bits: 8}, nil
	case "uint16":
		return ast.TypUInt{Bits: 16}, nil
	case "uint32":
		return ast.TypUInt{Bits: 32}, nil
	case "uint64":
		return ast.TypUInt{Bits: 64}, nil
	case "half":
		return ast.TypFloat{Bits: 16}, nil
	case "float":
		return ast.TypFloat{Bits: 32}, nil
	case "double":
		return ast.TypFloat{Bits: 64}, nil
	case "bool":
		return ast.TypBool{}, nil
	case "char":
		return ast.TypChar{}, nil
	case "string":
		return ast.TypString{}, nil
	case "void":
		return ast.TypVoid{}, nil
	case "exn":
		return ast.TypExn{}, nil
	case "cptr":
		return ast.TypCPtr{}, nil
	}

	if strings.HasSuffix(s, " list") {
		elem, err := b.typ(strings.TrimSuffix(s, " list"))
		if err != nil {
			return nil, err
		}
		return ast.TypList{Elem: elem}, nil
	}
	if strings.HasSuffix(s, " ref") {
		elem, err := b.typ(strings.TrimSuffix(s, " ref"))
		if err != nil {
			return nil, err
		}
		return ast.TypRef{Elem: elem}, nil
	}
	if strings.HasSuffix(s, "]") {
		if open := strings.LastIndex(s, "["); open > 0 {
			dims := strings.Count(s[open:], ",") + 1
			elem, err := b.typ(s[:open])
			if err != nil {
				return nil, err
			}
			return ast.TypArray{Dims: dims, Elem: elem}, nil
		}
	}
	if strings.HasPrefix(s, "(") {
		close := matchParen(s)
		if close < 0 {
			return nil, fmt.Errorf("unbalanced parentheses in type %q", s)
		}
		inner := s[1:close]
		rest := strings.TrimSpace(s[close+1:])
		parts, err := b.typList(inner)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(rest, "->") {
			ret, err := b.typ(strings.TrimPrefix(rest, "->"))
			if err != nil {
				return nil, err
			}
			return ast.TypFun{Args: parts, Ret: ret}, nil
		}
		if rest != "" {
			return nil, fmt.Errorf("trailing %q in type %q", rest, s)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		return ast.TypTuple{Elems: parts}, nil
	}
	return ast.TypName{Id: b.resolve(s)}, nil
}

func (b *Builder) typList(s string) ([]ast.Typ, error) {
	var out []ast.Typ
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				t, err := b.typ(s[start:i])
				if err != nil {
					return nil, err
				}
				out = append(out, t)
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		t, err := b.typ(s[start:])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func matchParen(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

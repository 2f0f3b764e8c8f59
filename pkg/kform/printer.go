// Package kform printing: a compact, indented dump of K-form used by the
// -dkform flag and in tests.
package kform

import (
	"fmt"
	"io"
	"strings"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/ids"
)

// Printer outputs K-form in a human-readable format.
type Printer struct {
	w      io.Writer
	indent int
}

// NewPrinter creates a new K-form printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintModule prints a complete module.
func (p *Printer) PrintModule(m *Module) {
	fmt.Fprintf(p.w, "module %s\n", m.Name)
	for _, imp := range m.Imports {
		fmt.Fprintf(p.w, "import %s\n", imp)
	}
	for _, s := range m.Stmts {
		p.PrintExp(s)
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) line(format string, args ...any) {
	fmt.Fprint(p.w, strings.Repeat("  ", p.indent))
	fmt.Fprintf(p.w, format, args...)
	fmt.Fprintln(p.w)
}

// TypString renders a K-form type.
func TypString(t KTyp) string {
	switch t := t.(type) {
	case nil:
		return "<nil>"
	case KTypInt:
		return "int"
	case KTypSInt:
		return fmt.Sprintf("int%d", t.Bits)
	case KTypUInt:
		return fmt.Sprintf("uint%d", t.Bits)
	case KTypFloat:
		return fmt.Sprintf("float%d", t.Bits)
	case KTypVoid:
		return "void"
	case KTypBool:
		return "bool"
	case KTypChar:
		return "char"
	case KTypString:
		return "string"
	case KTypCPtr:
		return "cptr"
	case KTypExn:
		return "exn"
	case KTypErr:
		return "<err>"
	case KTypFun:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = TypString(a)
		}
		return fmt.Sprintf("(%s) -> %s", strings.Join(args, ", "), TypString(t.Ret))
	case KTypTuple:
		elems := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = TypString(e)
		}
		return "(" + strings.Join(elems, ", ") + ")"
	case KTypList:
		return TypString(t.Elem) + " list"
	case KTypRef:
		return TypString(t.Elem) + " ref"
	case KTypArray:
		return fmt.Sprintf("%s [%s]", TypString(t.Elem), strings.Repeat(",", t.Dims-1))
	case KTypRecord:
		if !t.Name.IsNone() {
			return "record " + t.Name.String()
		}
		fields := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = fmt.Sprintf("%s: %s", f.Name, TypString(f.Typ))
		}
		return "{" + strings.Join(fields, "; ") + "}"
	case KTypName:
		return t.Id.String()
	}
	return "?"
}

// AtomString renders an atom.
func AtomString(a Atom) string {
	switch a := a.(type) {
	case AtomId:
		return a.Id.String()
	case AtomLit:
		return litString(a.Lit)
	}
	return "?"
}

func litString(l Lit) string {
	switch l := l.(type) {
	case ast.LitInt:
		return fmt.Sprintf("%d", l.Value)
	case ast.LitFloat:
		return fmt.Sprintf("%g", l.Value)
	case ast.LitBool:
		return fmt.Sprintf("%v", l.Value)
	case ast.LitChar:
		return fmt.Sprintf("%q", l.Value)
	case ast.LitString:
		return fmt.Sprintf("%q", l.Value)
	case ast.LitNil:
		return "[]"
	case ast.LitUnit:
		return "()"
	}
	return "?"
}

func atomsString(as []Atom) string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = AtomString(a)
	}
	return strings.Join(out, ", ")
}

func domString(d Dom) string {
	switch d := d.(type) {
	case DomElem:
		return AtomString(d.Atom)
	case DomRange:
		s := ""
		if d.Begin != nil {
			s += AtomString(d.Begin)
		}
		s += ":"
		if d.End != nil {
			s += AtomString(d.End)
		}
		if d.Delta != nil {
			s += ":" + AtomString(d.Delta)
		}
		return s
	}
	return "?"
}

// PrintExp prints one expression at the current indent level.
func (p *Printer) PrintExp(e KExp) {
	switch e := e.(type) {
	case KExpNop:
		p.line("nop")
	case KExpAtom:
		p.line("%s", AtomString(e.Atom))
	case KExpBinary:
		p.line("%s %s %s", AtomString(e.Left), e.Op, AtomString(e.Right))
	case KExpUnary:
		p.line("%s %s", e.Op, AtomString(e.Arg))
	case KExpIntrin:
		p.line("%s(%s)", e.Op, atomsString(e.Args))
	case KExpSeq:
		p.line("{")
		p.indent++
		for _, sub := range e.Exps {
			p.PrintExp(sub)
		}
		p.indent--
		p.line("}")
	case KExpIf:
		p.line("if")
		p.indent++
		p.PrintExp(e.Cond)
		p.indent--
		p.line("then")
		p.indent++
		p.PrintExp(e.Then)
		p.indent--
		p.line("else")
		p.indent++
		p.PrintExp(e.Else)
		p.indent--
	case KExpCall:
		p.line("%s(%s)", e.Fun, atomsString(e.Args))
	case KExpMkTuple:
		p.line("mktuple(%s)", atomsString(e.Elems))
	case KExpMkRecord:
		p.line("mkrecord(%s): %s", atomsString(e.Fields), TypString(e.Ctx.Typ))
	case KExpMkArray:
		p.line("mkarray: %s", TypString(e.Ctx.Typ))
	case KExpMkClosure:
		p.line("mkclosure(%s; %s)", e.Fun, atomsString(e.FreeVars))
	case KExpAt:
		idxs := make([]string, len(e.Idxs))
		for i, d := range e.Idxs {
			idxs[i] = domString(d)
		}
		p.line("%s[%s]", AtomString(e.Arr), strings.Join(idxs, ", "))
	case KExpMem:
		p.line("%s.%d", AtomString(e.Rec), e.Idx)
	case KExpAssign:
		p.line("%s =", e.LHS)
		p.indent++
		p.PrintExp(e.RHS)
		p.indent--
	case KExpMatch:
		p.line("match")
		p.indent++
		for _, c := range e.Cases {
			p.line("case")
			p.indent++
			for _, chk := range c.Checks {
				p.PrintExp(chk)
			}
			p.line("=>")
			p.PrintExp(c.Body)
			p.indent--
		}
		p.indent--
	case KExpMap:
		kind := "array"
		if e.MakeList {
			kind = "list"
		}
		p.line("map[%s]", kind)
		p.indent++
		for _, st := range e.Stages {
			p.printStage(st)
		}
		p.line("yield")
		p.indent++
		p.PrintExp(e.Body)
		p.indent--
		p.indent--
	case KExpFor:
		p.printLoopHead("for", e.Clauses, e.AtIds)
		p.indent++
		p.PrintExp(e.Body)
		p.indent--
	case KExpWhile:
		p.line("while")
		p.indent++
		p.PrintExp(e.Cond)
		p.PrintExp(e.Body)
		p.indent--
	case KExpDoWhile:
		p.line("do")
		p.indent++
		p.PrintExp(e.Body)
		p.PrintExp(e.Cond)
		p.indent--
	case KExpBreak:
		p.line("break")
	case KExpContinue:
		p.line("continue")
	case KExpTryCatch:
		p.line("try")
		p.indent++
		p.PrintExp(e.Body)
		p.indent--
		p.line("catch")
		p.indent++
		p.PrintExp(e.Handler)
		p.indent--
	case KExpThrow:
		if e.Rethrow {
			p.line("rethrow %s", e.Exn)
		} else {
			p.line("throw %s", e.Exn)
		}
	case KExpCast:
		p.line("(%s)%s", TypString(e.Ctx.Typ), AtomString(e.Arg))
	case KExpCCode:
		p.line("ccode {%s}", e.Code)
	case *KDefVal:
		p.line("val %s: %s =", e.Name, TypString(e.Typ))
		p.indent++
		p.PrintExp(e.Rhs)
		p.indent--
	case *KDefFun:
		params := make([]string, len(e.Params))
		for i, prm := range e.Params {
			params[i] = fmt.Sprintf("%s: %s", prm.Name, TypString(prm.Typ))
		}
		p.line("fun %s(%s): %s", e.Name, strings.Join(params, ", "), TypString(e.RetTyp))
		p.indent++
		p.PrintExp(e.Body)
		p.indent--
	case *KDefVariant:
		p.line("variant %s", e.Name)
		p.indent++
		for _, c := range e.Cases {
			p.line("| %s: %s", c.Name, TypString(c.Typ))
		}
		p.indent--
	case *KDefExn:
		p.line("exception %s: %s", e.Name, TypString(e.Typ))
	case *KDefTyp:
		p.line("type %s = %s", e.Name, TypString(e.Typ))
	default:
		p.line("<%T>", e)
	}
}

func (p *Printer) printStage(st MapStage) {
	if st.Pre != nil {
		if _, nop := st.Pre.(KExpNop); !nop {
			p.line("pre")
			p.indent++
			p.PrintExp(st.Pre)
			p.indent--
		}
	}
	p.printLoopHead("for", st.Clauses, st.AtIds)
}

func (p *Printer) printLoopHead(kw string, clauses []LoopClause, atIds []ids.Id) {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = fmt.Sprintf("%s <- %s", c.Var, domString(c.Dom))
	}
	at := ""
	if len(atIds) > 0 {
		names := make([]string, len(atIds))
		for i, a := range atIds {
			names[i] = a.String()
		}
		at = " @(" + strings.Join(names, ", ") + ")"
	}
	p.line("%s %s%s", kw, strings.Join(parts, ", "), at)
}

// Package driver sequences the middle-end pipeline: modules are ordered
// topologically by their imports, each pass runs to completion over every
// module before the next pass starts, and the shared error list is checked
// between passes.
package driver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/cformgen"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/knorm"
	"github.com/andrey-golubev/ficus/pkg/lift"
	"github.com/andrey-golubev/ficus/pkg/mangle"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

// ErrCompileFailed is returned when a pass left diagnostics in the shared
// error list; the caller prints Compilation.Errs.
var ErrCompileFailed = errors.New("compilation failed")

// Stage names a point where the pipeline can be stopped for IR dumps.
type Stage int

const (
	StageFull   Stage = iota
	StageKForm        // after K-normalization and the lift
	StageMangle       // after name mangling
)

// Options are the build options merged from the project file, environment
// and flags.
type Options struct {
	ForceCpp  bool
	Clibs     []string
	StopAfter Stage
}

// Result is the output of a middle-end run.
type Result struct {
	KModules []*kform.Module
	Units    []*cform.Unit
}

// Compile runs the pipeline over a batch of modules: K-normalization, the
// simple lambda lift, name mangling and C-form type generation. External
// K-form optimization passes slot in between the lift and the mangler.
func Compile(c *symtab.Compilation, modules []*ast.Module, opts Options) (*Result, error) {
	order, err := TopoSort(modules)
	if err != nil {
		c.Errs.Add(err)
		return nil, ErrCompileFailed
	}

	res := &Result{}
	for _, m := range order {
		n := knorm.New(c, m.Name)
		kmod, err := n.NormalizeModule(m)
		if err != nil && diag.IsInternal(err) {
			return nil, err
		}
		if kmod != nil {
			res.KModules = append(res.KModules, kmod)
			if m.Name.Prefix == "Builtins" {
				captureStdExns(c, kmod)
			}
		}
	}
	if !c.Errs.Empty() {
		return res, ErrCompileFailed
	}

	for _, kmod := range res.KModules {
		lift.New(c).TransformModule(kmod)
	}
	if !c.Errs.Empty() {
		return res, ErrCompileFailed
	}
	if opts.StopAfter == StageKForm {
		return res, nil
	}

	for _, kmod := range res.KModules {
		if err := mangle.New(c, kmod.Name).MangleModule(kmod); err != nil {
			return res, err
		}
	}
	if !c.Errs.Empty() {
		return res, ErrCompileFailed
	}
	if opts.StopAfter == StageMangle {
		return res, nil
	}

	g := cformgen.New(c)
	for _, kmod := range res.KModules {
		decls, err := g.GenerateTypes(kmod)
		if err != nil {
			return res, err
		}
		unit := &cform.Unit{
			Name:    kmod.Name,
			Stmts:   assembleUnit(decls),
			Pragmas: unitPragmas(kmod, opts),
			Main:    kmod.IsMain,
		}
		res.Units = append(res.Units, unit)
	}
	if !c.Errs.Empty() {
		return res, ErrCompileFailed
	}
	c.Freeze(symtab.StageK)
	return res, nil
}

// assembleUnit orders a unit's statements: forward declarations, then type
// declarations, then type utility functions.
func assembleUnit(decls *cformgen.Declarations) []cform.CStmt {
	out := make([]cform.CStmt, 0, len(decls.Fwd)+len(decls.Types)+len(decls.Utils))
	out = append(out, decls.Fwd...)
	out = append(out, decls.Types...)
	out = append(out, decls.Utils...)
	return out
}

// unitPragmas merges module pragmas with the build options.
func unitPragmas(kmod *kform.Module, opts Options) cform.Pragmas {
	p := cform.Pragmas{Cpp: opts.ForceCpp, Clibs: append([]string(nil), opts.Clibs...)}
	for _, pr := range kmod.Pragmas {
		switch {
		case pr == "cpp":
			p.Cpp = true
		case strings.HasPrefix(pr, "clib:"):
			p.Clibs = append(p.Clibs, strings.TrimPrefix(pr, "clib:"))
		}
	}
	return p
}

// captureStdExns records the ids of the standard exceptions while the
// Builtins module is processed.
func captureStdExns(c *symtab.Compilation, kmod *kform.Module) {
	for _, s := range kmod.Stmts {
		if de, ok := s.(*kform.KDefExn); ok {
			switch de.Name.Prefix {
			case "NoMatchError":
				c.NoMatchError = de.Name
			case "OutOfRangeError":
				c.OutOfRangeError = de.Name
			}
		}
	}
}

// TopoSort orders modules topologically by their declared imports. A cycle
// produces exactly one error naming all cycle members.
func TopoSort(modules []*ast.Module) ([]*ast.Module, error) {
	byId := make(map[int]*ast.Module, len(modules))
	for _, m := range modules {
		byId[m.Name.Key()] = m
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[int]int{}
	var order []*ast.Module
	var stack []*ast.Module

	var visit func(m *ast.Module) error
	visit = func(m *ast.Module) error {
		switch color[m.Name.Key()] {
		case black:
			return nil
		case grey:
			// found a back edge: the cycle is the stack suffix from m
			start := 0
			for i, s := range stack {
				if s == m {
					start = i
					break
				}
			}
			names := make([]string, 0, len(stack)-start)
			for _, s := range stack[start:] {
				names = append(names, s.Name.Prefix)
			}
			return &diag.Error{
				Kind: diag.NameResolution,
				Msg:  fmt.Sprintf("cyclic module dependency: %s", strings.Join(names, " -> ")),
			}
		}
		color[m.Name.Key()] = grey
		stack = append(stack, m)
		for _, dep := range m.Imports {
			if dm, ok := byId[dep.Key()]; ok {
				if err := visit(dm); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[m.Name.Key()] = black
		order = append(order, m)
		return nil
	}

	for _, m := range modules {
		if err := visit(m); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// BuiltinsModule constructs the minimal Builtins module carrying the
// standard exceptions. Front-ends normally ship their own Builtins; this
// one serves isolated middle-end runs and tests.
func BuiltinsModule(c *symtab.Compilation) *ast.Module {
	name := c.NewVal("Builtins")
	stdExns := []string{"NoMatchError", "OutOfRangeError", "OutOfMemError", "Fail"}
	stmts := make([]ast.Exp, 0, len(stdExns))
	for _, en := range stdExns {
		exn := c.NewVal(en)
		typ := ast.Typ(ast.TypVoid{})
		if en == "Fail" {
			typ = ast.TypString{}
		}
		info := ast.ExnInfo{Name: exn, Typ: typ, Scope: ast.ScopePath{name}}
		if err := c.SetAstInfo(exn, info); err == nil {
			stmts = append(stmts, ast.DefExn{Name: exn, Typ: typ})
		}
	}
	return &ast.Module{Name: name, Stmts: stmts}
}

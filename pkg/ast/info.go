package ast

import (
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
)

// IdInfo is an entry of the AST-side symbol table: what the type checker
// recorded about a resolved identifier.
type IdInfo interface {
	implIdInfo()
	InfoLoc() diag.Loc
}

// ValInfo describes a value binding.
type ValInfo struct {
	Name  ids.Id
	Typ   Typ
	Flags ValFlags
	Scope ScopePath
	Loc   diag.Loc
}

// FunInfo describes a function.
type FunInfo struct {
	Name   ids.Id
	Typ    Typ
	Flags  FunFlags
	Scope  ScopePath
	Loc    diag.Loc
}

// TypInfo describes a type alias.
type TypInfo struct {
	Name  ids.Id
	Typ   Typ
	Scope ScopePath
	Loc   diag.Loc
}

// VariantInfo describes a variant type and its constructors.
type VariantInfo struct {
	Name      ids.Id
	Cases     []VariantCase
	Ctors     []ids.Id
	Recursive bool
	Option    bool
	Scope     ScopePath
	Loc       diag.Loc
}

// ExnInfo describes an exception and its payload type.
type ExnInfo struct {
	Name  ids.Id
	Typ   Typ
	Ctor  ids.Id // constructor function for payload-carrying exceptions
	Scope ScopePath
	Loc   diag.Loc
}

// ModuleInfo describes a module id.
type ModuleInfo struct {
	Name ids.Id
	Loc  diag.Loc
}

func (ValInfo) implIdInfo()     {}
func (FunInfo) implIdInfo()     {}
func (TypInfo) implIdInfo()     {}
func (VariantInfo) implIdInfo() {}
func (ExnInfo) implIdInfo()     {}
func (ModuleInfo) implIdInfo()  {}

func (i ValInfo) InfoLoc() diag.Loc     { return i.Loc }
func (i FunInfo) InfoLoc() diag.Loc     { return i.Loc }
func (i TypInfo) InfoLoc() diag.Loc     { return i.Loc }
func (i VariantInfo) InfoLoc() diag.Loc { return i.Loc }
func (i ExnInfo) InfoLoc() diag.Loc     { return i.Loc }
func (i ModuleInfo) InfoLoc() diag.Loc  { return i.Loc }

// ScopePath is the chain of enclosing modules for a definition, outermost
// first. The mangler joins it with "__", skipping the Builtins module.
type ScopePath []ids.Id

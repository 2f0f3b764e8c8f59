// Package symtab implements the three parallel, append-only symbol tables
// shared by every pass of the middle-end, bundled into a Compilation value
// that threads through the pipeline. The tables are indexed by the unique
// integer of a Val/Temp id and stay length-synchronized: assigning a new id
// appends an empty entry to all three.
package symtab

import (
	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/diag"
	"github.com/andrey-golubev/ficus/pkg/ids"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// Stage names one of the three parallel tables.
type Stage int

const (
	StageAST Stage = iota
	StageK
	StageC
)

func (s Stage) String() string {
	names := []string{"ast", "kform", "cform"}
	if int(s) < len(names) {
		return names[s]
	}
	return "?"
}

// ExnTagBase is the first (most positive) tag allocated to exceptions; tags
// decrement from here.
const ExnTagBase = -1024

// Compilation owns all process-wide mutable state of one compiler run.
type Compilation struct {
	astInfo []ast.IdInfo
	kInfo   []kform.Def
	cInfo   []cform.Def
	frozen  [3]bool

	// Errs accumulates non-fatal compile errors; the driver checks it
	// between passes.
	Errs diag.Bag

	// MangledNames maps every assigned C name to the id it belongs to,
	// guaranteeing global uniqueness.
	MangledNames map[string]ids.Id

	// TypeInstances memoizes materialized structural types: signature
	// string -> the KDefTyp id created for it.
	TypeInstances map[string]ids.Id

	// ForwardDeclared records the nominal variant ids whose struct tag and
	// destructor have already been forward-declared.
	ForwardDeclared map[int]bool

	// EnumOfVariant caches the companion tag-enum id per variant id.
	EnumOfVariant map[int]ids.Id

	// ExnTags assigns runtime tags to exception ids, starting at ExnTagBase
	// and decrementing.
	ExnTags    map[int]int64
	nextExnTag int64

	// Ids of the standard exceptions, captured while processing Builtins;
	// their runtime tags are in ExnTags.
	NoMatchError    ids.Id
	OutOfRangeError ids.Id
}

// New creates an empty Compilation.
func New() *Compilation {
	c := &Compilation{}
	c.InitAll()
	return c
}

// InitAll resets every table and cache for a fresh compilation.
func (c *Compilation) InitAll() {
	c.astInfo = nil
	c.kInfo = nil
	c.cInfo = nil
	c.frozen = [3]bool{}
	c.Errs.Reset()
	c.MangledNames = make(map[string]ids.Id)
	c.TypeInstances = make(map[string]ids.Id)
	c.ForwardDeclared = make(map[int]bool)
	c.EnumOfVariant = make(map[int]ids.Id)
	c.ExnTags = make(map[int]int64)
	c.nextExnTag = ExnTagBase
	c.NoMatchError = ids.None
	c.OutOfRangeError = ids.None
}

// Len returns the common length of the three tables.
func (c *Compilation) Len() int { return len(c.astInfo) }

func (c *Compilation) grow() int {
	k := len(c.astInfo)
	c.astInfo = append(c.astInfo, nil)
	c.kInfo = append(c.kInfo, nil)
	c.cInfo = append(c.cInfo, nil)
	return k
}

// NewVal allocates a fresh user-visible id with the given textual prefix.
func (c *Compilation) NewVal(prefix string) ids.Id {
	return ids.Val(prefix, c.grow())
}

// NewTemp allocates a fresh compiler temporary with the given prefix.
func (c *Compilation) NewTemp(prefix string) ids.Id {
	return ids.Temp(prefix, c.grow())
}

// DupId allocates a fresh id with the same kind and prefix as the original.
func (c *Compilation) DupId(id ids.Id) ids.Id {
	if id.IsTemp() {
		return c.NewTemp(id.Prefix)
	}
	return c.NewVal(id.Prefix)
}

// Freeze marks a stage's table as no longer growable for info writes.
// Id allocation continues to extend all three tables so they stay
// length-synchronized.
func (c *Compilation) Freeze(s Stage) { c.frozen[s] = true }

// Frozen reports whether the stage's table is frozen.
func (c *Compilation) Frozen(s Stage) bool { return c.frozen[s] }

func (c *Compilation) checkId(id ids.Id, s Stage, loc diag.Loc) error {
	k := id.Key()
	if k < 0 || k >= len(c.astInfo) {
		return diag.Internalf(loc, "id %s (index %d) is outside the %s symbol table (size %d)",
			id, k, s, len(c.astInfo))
	}
	return nil
}

// SetAstInfo records the AST-level info for id.
func (c *Compilation) SetAstInfo(id ids.Id, info ast.IdInfo) error {
	if c.frozen[StageAST] {
		return diag.Internalf(info.InfoLoc(), "write to frozen ast symbol table (id %s)", id)
	}
	if err := c.checkId(id, StageAST, info.InfoLoc()); err != nil {
		return err
	}
	c.astInfo[id.Key()] = info
	return nil
}

// AstInfo reads the AST-level info for id; loc names the requesting source
// location for the empty-entry diagnostic.
func (c *Compilation) AstInfo(id ids.Id, loc diag.Loc) (ast.IdInfo, error) {
	if err := c.checkId(id, StageAST, loc); err != nil {
		return nil, err
	}
	info := c.astInfo[id.Key()]
	if info == nil {
		return nil, diag.Internalf(loc, "ast symbol table entry for %s is empty", id)
	}
	return info, nil
}

// SetKInfo records the K-form definition for id.
func (c *Compilation) SetKInfo(id ids.Id, def kform.Def) error {
	if c.frozen[StageK] {
		return diag.Internalf(diag.NoLoc, "write to frozen kform symbol table (id %s)", id)
	}
	if err := c.checkId(id, StageK, diag.NoLoc); err != nil {
		return err
	}
	c.kInfo[id.Key()] = def
	return nil
}

// KInfo reads the K-form definition for id.
func (c *Compilation) KInfo(id ids.Id, loc diag.Loc) (kform.Def, error) {
	if err := c.checkId(id, StageK, loc); err != nil {
		return nil, err
	}
	def := c.kInfo[id.Key()]
	if def == nil {
		return nil, diag.Internalf(loc, "kform symbol table entry for %s is empty", id)
	}
	return def, nil
}

// KInfoOrNil reads the K-form definition for id, returning nil for out-of-
// range or empty entries. Used by analyses that probe optional entries.
func (c *Compilation) KInfoOrNil(id ids.Id) kform.Def {
	k := id.Key()
	if k < 0 || k >= len(c.kInfo) {
		return nil
	}
	return c.kInfo[k]
}

// SetCInfo records the C-form definition for id.
func (c *Compilation) SetCInfo(id ids.Id, def cform.Def) error {
	if c.frozen[StageC] {
		return diag.Internalf(diag.NoLoc, "write to frozen cform symbol table (id %s)", id)
	}
	if err := c.checkId(id, StageC, diag.NoLoc); err != nil {
		return err
	}
	c.cInfo[id.Key()] = def
	return nil
}

// CInfo reads the C-form definition for id.
func (c *Compilation) CInfo(id ids.Id, loc diag.Loc) (cform.Def, error) {
	if err := c.checkId(id, StageC, loc); err != nil {
		return nil, err
	}
	def := c.cInfo[id.Key()]
	if def == nil {
		return nil, diag.Internalf(loc, "cform symbol table entry for %s is empty", id)
	}
	return def, nil
}

// CInfoOrNil reads the C-form definition for id, nil when absent.
func (c *Compilation) CInfoOrNil(id ids.Id) cform.Def {
	k := id.Key()
	if k < 0 || k >= len(c.cInfo) {
		return nil
	}
	return c.cInfo[k]
}

// NewExnTag allocates the next runtime exception tag for the exception id.
func (c *Compilation) NewExnTag(exn ids.Id) int64 {
	if tag, ok := c.ExnTags[exn.Key()]; ok {
		return tag
	}
	tag := c.nextExnTag
	c.nextExnTag--
	c.ExnTags[exn.Key()] = tag
	return tag
}

// IsGlobal reports whether id denotes a module-scope entity: a global
// value, a function, a type, a variant, a constructor or an exception.
func (c *Compilation) IsGlobal(id ids.Id) bool {
	switch def := c.KInfoOrNil(id).(type) {
	case *kform.KDefVal:
		return def.Flags.Global || !def.Flags.CtorOf.IsNone()
	case *kform.KDefFun, *kform.KDefVariant, *kform.KDefExn, *kform.KDefTyp:
		return true
	}
	return false
}

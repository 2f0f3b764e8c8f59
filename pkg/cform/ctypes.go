// Package cform defines the C-form intermediate representation: a
// statement-oriented IR corresponding one-to-one with the emitted C-like
// output, plus the C type system and per-type properties used to place
// destructor/copy/constructor calls.
package cform

import (
	"strings"

	"github.com/andrey-golubev/ficus/pkg/ids"
)

// CTyp is the interface for C types.
type CTyp interface {
	implCTyp()
	String() string
}

// CTypInt is an integer scalar; Bits 0 means the default int_ (ptrdiff-wide).
type CTypInt struct {
	Bits     int
	Unsigned bool
}

// CTypFloat is a floating-point scalar.
type CTypFloat struct {
	Bits int
}

// CTypBool is the boolean scalar.
type CTypBool struct{}

// CTypChar is the unicode character scalar (char_t in the runtime).
type CTypChar struct{}

// CTypVoid is void.
type CTypVoid struct{}

// CTypString is the runtime string header fx_str_t.
type CTypString struct{}

// CTypExn is the runtime exception header fx_exn_t.
type CTypExn struct{}

// CTypCPtr is the runtime smart pointer fx_cptr_t.
type CTypCPtr struct{}

// CTypArr is the runtime array header fx_arr_t.
type CTypArr struct{}

// CField is a struct/union member.
type CField struct {
	Name ids.Id
	Typ  CTyp
}

// CTypStruct is a struct layout; Name may be None for anonymous structs.
type CTypStruct struct {
	Name   ids.Id
	Fields []CField
}

// CTypUnion is a union layout.
type CTypUnion struct {
	Name   ids.Id
	Fields []CField
}

// CTypRawPtr is a plain C pointer.
type CTypRawPtr struct {
	Elem CTyp
}

// CTypRawArray is a plain C array.
type CTypRawArray struct {
	Elem CTyp
	Size int
}

// CTypFunRawPtr is a C function-pointer type.
type CTypFunRawPtr struct {
	Args []CTyp
	Ret  CTyp
}

// CTypName is an opaque reference to a named type.
type CTypName struct {
	Id ids.Id
}

func (CTypInt) implCTyp()       {}
func (CTypFloat) implCTyp()     {}
func (CTypBool) implCTyp()      {}
func (CTypChar) implCTyp()      {}
func (CTypVoid) implCTyp()      {}
func (CTypString) implCTyp()    {}
func (CTypExn) implCTyp()       {}
func (CTypCPtr) implCTyp()      {}
func (CTypArr) implCTyp()       {}
func (CTypStruct) implCTyp()    {}
func (CTypUnion) implCTyp()     {}
func (CTypRawPtr) implCTyp()    {}
func (CTypRawArray) implCTyp()  {}
func (CTypFunRawPtr) implCTyp() {}
func (CTypName) implCTyp()      {}

func (t CTypInt) String() string {
	if t.Bits == 0 {
		return "int_"
	}
	prefix := "int"
	if t.Unsigned {
		prefix = "uint"
	}
	return prefix + itoa(t.Bits) + "_t"
}

func (t CTypFloat) String() string {
	switch t.Bits {
	case 16:
		return "fx_f16_t"
	case 32:
		return "float"
	default:
		return "double"
	}
}

func (CTypBool) String() string   { return "bool" }
func (CTypChar) String() string   { return "char_" }
func (CTypVoid) String() string   { return "void" }
func (CTypString) String() string { return "fx_str_t" }
func (CTypExn) String() string    { return "fx_exn_t" }
func (CTypCPtr) String() string   { return "fx_cptr_t" }
func (CTypArr) String() string    { return "fx_arr_t" }

func (t CTypStruct) String() string {
	if t.Name.IsNone() {
		return "struct {...}"
	}
	return "struct " + t.Name.String()
}

func (t CTypUnion) String() string {
	if t.Name.IsNone() {
		return "union {...}"
	}
	return "union " + t.Name.String()
}

func (t CTypRawPtr) String() string {
	if t.Elem == nil {
		return "void*"
	}
	return t.Elem.String() + "*"
}

func (t CTypRawArray) String() string {
	return t.Elem.String() + "[]"
}

func (t CTypFunRawPtr) String() string {
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	return t.Ret.String() + " (*)(" + strings.Join(args, ", ") + ")"
}

func (t CTypName) String() string { return t.Id.String() }

func itoa(n int) string {
	digits := [...]string{"8", "16", "32", "64"}
	switch n {
	case 8:
		return digits[0]
	case 16:
		return digits[1]
	case 32:
		return digits[2]
	default:
		return digits[3]
	}
}

// TypProps are the properties of a named C type that drive code generation.
type TypProps struct {
	Scalar     bool
	Complex    bool // needs a destructor
	Ptr        bool // pointer-sized heap reference
	PassByRef  bool
	CustomCopy bool
	FreeMacro  ids.Id
	FreeFn     ids.Id
	CopyMacro  ids.Id
	CopyFn     ids.Id
	Ctors      []ids.Id
}

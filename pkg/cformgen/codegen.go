package cformgen

import (
	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/kform"
)

// Runtime ABI names the emitted code depends on. The type generator and the
// code generator agree on these call shapes; the runtime's implementation
// is outside the compiler.
const (
	RtMalloc   = "fx_malloc"
	RtFree     = "fx_free"
	RtIncRef   = "FX_INCREF"
	RtDecRef   = "FX_DECREF"
	RtCall     = "FX_CALL"
	RtCheckExn = "FX_CHECK_EXN"
	RtCheckIdx = "FX_CHKIDX"
	RtArrSize  = "FX_ARR_SIZE"
	RtThrow    = "FX_THROW"
	RtRethrow  = "FX_RETHROW"
	RtOk       = "FX_OK"
)

// RtPtrND returns the FX_PTR_<N>D element-access macro name for an array
// of the given dimensionality (1..5).
func RtPtrND(dims int) string {
	names := []string{"FX_PTR_1D", "FX_PTR_2D", "FX_PTR_3D", "FX_PTR_4D", "FX_PTR_5D"}
	if dims >= 1 && dims <= len(names) {
		return names[dims-1]
	}
	return names[0]
}

// CodeGenerator is the consumer of typed K-form and the declarations this
// package emits. An implementation must produce, for every function, a C
// body in which every fallible call is wrapped in an error-check macro
// jumping to a cleanup label, every complex local has a matching cleanup on
// every exit path, reference-counted arguments are treated as borrowed and
// results are produced through output pointers.
type CodeGenerator interface {
	// GenerateFunction produces the C definition of one K-form function.
	GenerateFunction(fn *kform.KDefFun, decls *Declarations) ([]cform.CStmt, error)

	// GenerateValue produces the C definition and the module-init code of
	// one top-level value.
	GenerateValue(v *kform.KDefVal, decls *Declarations) ([]cform.CStmt, error)
}

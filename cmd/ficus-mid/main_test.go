package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModule = `
module: Main
main: true
defs:
  - fun:
      name: add
      params: [{name: x, typ: int}, {name: y, typ: int}]
      ret: int
      body:
        bin: {op: "+", left: {id: x, typ: int}, right: {id: y, typ: int}}
        typ: int
  - val:
      name: z
      typ: int
      init:
        call: {fun: add, args: [{int: 1}, {int: 2}]}
        typ: int
  - variant:
      name: intopt
      recursive: true
      option: true
      cases: [{name: Some, typ: int}, {name: None}]
  - exn: {name: Fail, typ: string}
`

func resetFlags() {
	dKform, dMangle, dCform = false, false, false
	configPath, outputDir = "", ""
	forceCpp, skipStdlib = false, false
	clibFlags = nil
}

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.fx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleModule), 0o644))
	return path
}

func TestNormalizeFlags(t *testing.T) {
	got := normalizeFlags([]string{"-dkform", "main.fx.yaml", "-dcform"})
	assert.Equal(t, []string{"--dkform", "main.fx.yaml", "--dcform"}, got)
}

func TestDumpKForm(t *testing.T) {
	resetFlags()
	path := writeSample(t)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--dkform", path})
	require.NoError(t, cmd.Execute(), "stderr: %s", errOut.String())

	dump := out.String()
	assert.Contains(t, dump, "module Main")
	assert.Contains(t, dump, "fun add")
	assert.Contains(t, dump, "variant intopt")
}

func TestDumpCForm(t *testing.T) {
	resetFlags()
	path := writeSample(t)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--dcform", path})
	require.NoError(t, cmd.Execute(), "stderr: %s", errOut.String())

	dump := out.String()
	assert.Contains(t, dump, "/* unit Builtins */")
	assert.Contains(t, dump, "/* unit Main */")
	assert.Contains(t, dump, "FX_EXN_NoMatchError")
	assert.Contains(t, dump, "-1024")
}

func TestWriteUnitsToOutputDir(t *testing.T) {
	resetFlags()
	path := writeSample(t)
	outDir := filepath.Join(t.TempDir(), "out")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"-o", outDir, path})
	require.NoError(t, cmd.Execute(), "stderr: %s", errOut.String())

	data, err := os.ReadFile(filepath.Join(outDir, "Main.cform"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/* unit Main */")
}

func TestConfigFileMergesOptions(t *testing.T) {
	resetFlags()
	path := writeSample(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ficus.yaml")
	outDir := filepath.Join(dir, "gen")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("output: "+outDir+"\ncpp: true\nclibs: [m]\n"), 0o644))

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--config", cfgPath, path})
	require.NoError(t, cmd.Execute(), "stderr: %s", errOut.String())

	data, err := os.ReadFile(filepath.Join(outDir, "Main.cform"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/* pragma: cpp */")
	assert.Contains(t, string(data), "/* clib: m */")
}

func TestCompileErrorsAreReported(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.fx.yaml")
	// a value with a refutable pattern cannot be expressed in the document
	// format, but a reference to an identifier without a type annotation
	// can
	bad := `
module: Main
defs:
  - val:
      name: z
      typ: int
      init: {id: nowhere}
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	require.Error(t, err)
}

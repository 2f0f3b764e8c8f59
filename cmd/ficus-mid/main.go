package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andrey-golubev/ficus/pkg/ast"
	"github.com/andrey-golubev/ficus/pkg/astio"
	"github.com/andrey-golubev/ficus/pkg/cform"
	"github.com/andrey-golubev/ficus/pkg/driver"
	"github.com/andrey-golubev/ficus/pkg/kform"
	"github.com/andrey-golubev/ficus/pkg/symtab"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dKform  bool
	dMangle bool
	dCform  bool
)

// Build options
var (
	configPath string
	outputDir  string
	forceCpp   bool
	clibFlags  []string
	skipStdlib bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Normalize single-dash debug flags to double-dash for pflag compatibility
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the debug flags that accept single-dash style
var debugFlagNames = []string{"dkform", "dmangle", "dcform"}

// normalizeFlags converts single-dash flags like -dkform to --dkform
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

// Config is the optional ficus.yaml project file merged with the flags.
type Config struct {
	Output string   `yaml:"output,omitempty"`
	Cpp    bool     `yaml:"cpp,omitempty"`
	Clibs  []string `yaml:"clibs,omitempty"`
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ficus-mid [modules...]",
		Short: "ficus-mid lowers type-checked ficus modules to a C-ready IR",
		Long: `ficus-mid is the middle-end of the ficus compiler. It accepts
typed-AST module documents produced by the front-end, runs
K-normalization, the simple lambda lift, name mangling and C-form
type generation, and writes one generated unit per module.`,
		Version:       version,
		Args:          cobra.MinimumNArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return compile(args, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dKform, "dkform", false, "Dump K-form after normalization and lift")
	rootCmd.Flags().BoolVar(&dMangle, "dmangle", false, "Dump K-form after name mangling")
	rootCmd.Flags().BoolVar(&dCform, "dcform", false, "Dump the generated C-form unit")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Project options file (ficus.yaml)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for generated units")
	rootCmd.Flags().BoolVar(&forceCpp, "cpp", false, "Force C++ compilation of the generated code")
	rootCmd.Flags().StringArrayVarP(&clibFlags, "clib", "l", nil, "Required C library (-l name)")
	rootCmd.Flags().BoolVar(&skipStdlib, "no-builtins", false, "Do not implicitly process the Builtins module")

	return rootCmd
}

// loadConfig reads the project file when present; flag values win over the
// file.
func loadConfig(errOut io.Writer) (*Config, error) {
	cfg := &Config{}
	path := configPath
	if path == "" {
		if _, err := os.Stat("ficus.yaml"); err == nil {
			path = "ficus.yaml"
		}
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "ficus-mid: error reading %s: %v\n", path, err)
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		fmt.Fprintf(errOut, "ficus-mid: invalid config %s: %v\n", path, err)
		return nil, err
	}
	return cfg, nil
}

func compile(files []string, out, errOut io.Writer) error {
	cfg, err := loadConfig(errOut)
	if err != nil {
		return err
	}
	opts := driver.Options{
		ForceCpp: forceCpp || cfg.Cpp,
		Clibs:    append(append([]string(nil), cfg.Clibs...), clibFlags...),
	}
	switch {
	case dKform:
		opts.StopAfter = driver.StageKForm
	case dMangle:
		opts.StopAfter = driver.StageMangle
	}
	outDir := outputDir
	if outDir == "" {
		outDir = cfg.Output
	}

	c := symtab.New()
	builder := astio.NewBuilder(c)

	var modules []*ast.Module
	if !skipStdlib {
		modules = append(modules, driver.BuiltinsModule(c))
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(errOut, "ficus-mid: error reading %s: %v\n", f, err)
			return err
		}
		doc, err := astio.Decode(data)
		if err != nil {
			fmt.Fprintf(errOut, "ficus-mid: %s: %v\n", f, err)
			return err
		}
		mod, err := builder.Build(doc, f)
		if err != nil {
			fmt.Fprintf(errOut, "ficus-mid: %s: %v\n", f, err)
			return err
		}
		modules = append(modules, mod)
	}

	res, err := driver.Compile(c, modules, opts)
	if err != nil {
		for _, e := range c.Errs.Errors() {
			fmt.Fprintf(errOut, "%v\n", e)
		}
		if res == nil {
			return err
		}
		if !c.Errs.Empty() {
			return fmt.Errorf("compilation failed with %d errors", c.Errs.Len())
		}
		return err
	}

	if dKform || dMangle {
		for _, km := range res.KModules {
			printer := kform.NewPrinter(out)
			printer.PrintModule(km)
		}
		return nil
	}
	if dCform {
		for _, u := range res.Units {
			printer := cform.NewPrinter(out)
			printer.PrintUnit(u)
		}
		return nil
	}

	if outDir != "" {
		if err := writeUnits(res.Units, outDir, errOut); err != nil {
			return err
		}
	}
	return nil
}

// writeUnits writes one .cform file per unit under the output directory.
// The directory is shared between concurrent builds, so it is guarded with
// a file lock (the same discipline as a shared build cache).
func writeUnits(units []*cform.Unit, outDir string, errOut io.Writer) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(errOut, "ficus-mid: error creating %s: %v\n", outDir, err)
		return err
	}
	lock := flock.New(filepath.Join(outDir, ".lock"))
	if err := lock.Lock(); err != nil {
		fmt.Fprintf(errOut, "ficus-mid: acquire output lock: %v\n", err)
		return err
	}
	defer lock.Unlock()

	for _, u := range units {
		name := filepath.Join(outDir, u.Name.Prefix+".cform")
		f, err := os.Create(name)
		if err != nil {
			fmt.Fprintf(errOut, "ficus-mid: error creating %s: %v\n", name, err)
			return err
		}
		printer := cform.NewPrinter(f)
		printer.PrintUnit(u)
		f.Close()
	}
	return nil
}

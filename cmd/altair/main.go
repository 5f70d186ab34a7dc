// Altair CLI - optimizes serialized code objects and inspects the results
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/altair/pkg/bytecode"
	"github.com/chazu/altair/pkg/cfg"
	"github.com/chazu/altair/pkg/pipeline"
	"github.com/chazu/altair/pkg/ssa"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	disasm := flag.Bool("disasm", false, "Print a disassembly of each code object")
	dumpSSA := flag.Bool("dump-ssa", false, "Print the SSA form of each code object")
	outPath := flag.String("o", "", "Write the optimized code object to this file")
	cachePath := flag.String("cache", "", "Cache database path (overrides altair.toml)")
	noOpt := flag.Bool("no-opt", false, "Skip the optimizer passes")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: altair [options] file...\n\n")
		fmt.Fprintf(os.Stderr, "Loads serialized code objects, runs the optimizer passes over them,\n")
		fmt.Fprintf(os.Stderr, "and writes or inspects the results. Options come from altair.toml in\n")
		fmt.Fprintf(os.Stderr, "the current directory when present.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  altair -disasm fib.albc            # Optimize and disassemble\n")
		fmt.Fprintf(os.Stderr, "  altair -o fib.opt.albc fib.albc    # Optimize to a new file\n")
		fmt.Fprintf(os.Stderr, "  altair -dump-ssa -no-opt fib.albc  # SSA of the unoptimized code\n")
		fmt.Fprintf(os.Stderr, "  altair -cache build/cache.db *.albc  # Populate the code cache\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *outPath != "" && len(files) > 1 {
		fmt.Fprintf(os.Stderr, "Error: -o takes exactly one input file\n")
		os.Exit(2)
	}

	opts, err := pipeline.LoadOptions(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *cachePath != "" {
		opts.Cache.Path = *cachePath
		opts.Dir = ""
	}

	var store *pipeline.Store
	if path := opts.CachePath(); path != "" {
		store, err = pipeline.OpenStore(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	for _, file := range files {
		if err := process(file, opts, store, *disasm, *dumpSSA, *outPath, *noOpt, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", file, err)
			os.Exit(1)
		}
	}
}

func process(file string, opts pipeline.Options, store *pipeline.Store, disasm, dumpSSA bool, outPath string, noOpt, verbose bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	code, err := bytecode.Unmarshal(data)
	if err != nil {
		return err
	}

	if !noOpt {
		if opts.Optimize.Stores {
			cfg.OptimizeStores(code)
		}
		if opts.Optimize.Loads {
			cfg.OptimizeLoads(code)
		}
	}

	if verbose {
		fmt.Printf("%s: %q, %d units, %d locals\n",
			filepath.Base(file), code.Name, len(code.Code)/2, code.LocalCount())
	}

	if disasm {
		fmt.Print(code.Disassemble())
	}

	if dumpSSA {
		g, err := ssa.NewBuilder().Build(code)
		if err != nil {
			return err
		}
		fmt.Print(g.String())
	}

	if store != nil {
		hash, err := store.Put(code)
		if err != nil {
			return err
		}
		if verbose {
			fmt.Printf("%s: cached as %x\n", filepath.Base(file), hash[:8])
		}
	}

	if outPath != "" {
		out, err := bytecode.Marshal(code)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return err
		}
	}

	return nil
}

// Package pipeline runs the compiler passes end to end: tree
// optimization, code generation, and the bytecode rewrites, with
// optional caching of the results.
package pipeline

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/altair/pkg/ast"
	"github.com/chazu/altair/pkg/astopt"
	"github.com/chazu/altair/pkg/bytecode"
	"github.com/chazu/altair/pkg/cfg"
	"github.com/chazu/altair/pkg/ssa"
)

var log = commonlog.GetLogger("altair.pipeline")

// Pipeline compiles functions according to a fixed set of Options.
// It is safe for concurrent use.
type Pipeline struct {
	opts Options
}

// Result is the outcome of one compilation.
type Result struct {
	// ID correlates log lines and cache entries for this compilation.
	ID   uuid.UUID
	Code *bytecode.CodeObject
}

func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Compile lowers fn to a code object, running the passes enabled in
// the options. The input function is not modified.
func (p *Pipeline) Compile(fn *ast.Function) (*Result, error) {
	id := uuid.New()
	log.Debugf("compiling %q (%s)", fn.Name, id)

	if p.opts.Optimize.Tree {
		fn = astopt.OptimizeFunction(fn)
	}

	code, err := bytecode.Compile(fn)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", fn.Name, err)
	}

	if p.opts.Optimize.Stores {
		cfg.OptimizeStores(code)
	}
	if p.opts.Optimize.Loads {
		cfg.OptimizeLoads(code)
	}

	log.Infof("compiled %q: %d units, %d constants (%s)",
		fn.Name, len(code.Code)/2, len(code.Constants), id)
	return &Result{ID: id, Code: code}, nil
}

// DumpSSA builds the SSA form of a compiled code object and renders it
// for inspection. The code object is not modified.
func (p *Pipeline) DumpSSA(code *bytecode.CodeObject) (string, error) {
	g, err := ssa.NewBuilder().Build(code)
	if err != nil {
		return "", fmt.Errorf("ssa for %q: %w", code.Name, err)
	}
	return g.String(), nil
}

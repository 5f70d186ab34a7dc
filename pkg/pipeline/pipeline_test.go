package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/altair/pkg/ast"
	"github.com/chazu/altair/pkg/bytecode"
)

func TestLoadOptionsDefaults(t *testing.T) {
	opts, err := LoadOptions(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if !opts.Optimize.Tree || !opts.Optimize.Loads || !opts.Optimize.Stores {
		t.Errorf("expected all passes enabled by default, got %+v", opts.Optimize)
	}
	if opts.CachePath() != "" {
		t.Errorf("expected no cache path by default, got %q", opts.CachePath())
	}
}

func TestLoadOptionsFile(t *testing.T) {
	dir := t.TempDir()
	config := `
[optimize]
tree = false
stores = false

[cache]
path = "build/cache.db"
`
	if err := os.WriteFile(filepath.Join(dir, "altair.toml"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := LoadOptions(dir)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if opts.Optimize.Tree {
		t.Error("tree pass should be disabled")
	}
	if opts.Optimize.Stores {
		t.Error("store pass should be disabled")
	}
	if !opts.Optimize.Loads {
		t.Error("load pass should stay enabled when unmentioned")
	}

	want := filepath.Join(dir, "build", "cache.db")
	got := opts.CachePath()
	// dir may come back through a symlink on some systems
	if !strings.HasSuffix(got, filepath.Join("build", "cache.db")) {
		t.Errorf("CachePath() = %q, want %q", got, want)
	}
}

func TestLoadOptionsBadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "altair.toml"), []byte("[optimize"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOptions(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

// addFn returns a function that conditionally reassigns and returns a sum.
func addFn() *ast.Function {
	return &ast.Function{
		Name:   "add_clamped",
		Params: []string{"a", "b"},
		Body: []ast.Stmt{
			&ast.Assign{Target: "total", Value: &ast.BinOp{
				Op:   ast.OpAdd,
				Left: &ast.Name{Ident: "a"}, Right: &ast.Name{Ident: "b"},
			}},
			&ast.If{
				Cond: &ast.BinOp{
					Op:   ast.OpGt,
					Left: &ast.Name{Ident: "total"}, Right: &ast.Literal{Value: int64(100)},
				},
				Then: []ast.Stmt{
					&ast.Assign{Target: "total", Value: &ast.Literal{Value: int64(100)}},
				},
			},
			&ast.Return{Value: &ast.Name{Ident: "total"}},
		},
	}
}

func TestCompileEndToEnd(t *testing.T) {
	p := New(DefaultOptions())
	res, err := p.Compile(addFn())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected a correlation id")
	}

	code := res.Code
	if code.Flags&bytecode.CodeFlagOptimized == 0 {
		t.Error("optimizer flag not set")
	}
	instrs, err := bytecode.Decode(code.Code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// total is assigned on every path, so all its reads become unchecked
	if bytecode.ContainsOpcode(instrs, bytecode.OpLoadLocal) {
		t.Errorf("checked load survived:\n%s", code.Disassemble())
	}
	if !bytecode.ContainsOpcode(instrs, bytecode.OpLoadLocalUnchecked) {
		t.Errorf("no unchecked loads emitted:\n%s", code.Disassemble())
	}
}

func TestCompileFoldsConstants(t *testing.T) {
	fn := &ast.Function{
		Name: "six",
		Body: []ast.Stmt{
			&ast.Return{Value: &ast.BinOp{
				Op:   ast.OpMul,
				Left: &ast.Literal{Value: int64(2)}, Right: &ast.Literal{Value: int64(3)},
			}},
		},
	}

	res, err := New(DefaultOptions()).Compile(fn)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(res.Code.Constants) != 1 || res.Code.Constants[0] != int64(6) {
		t.Errorf("constants = %v, want [6]", res.Code.Constants)
	}
}

func TestCompileDisabledPasses(t *testing.T) {
	opts := DefaultOptions()
	opts.Optimize = OptimizeOptions{}

	res, err := New(opts).Compile(addFn())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Code.Flags&bytecode.CodeFlagOptimized != 0 {
		t.Error("optimizer flag set with passes disabled")
	}
	instrs, err := bytecode.Decode(res.Code.Code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if bytecode.ContainsOpcode(instrs, bytecode.OpLoadLocalUnchecked) {
		t.Error("unchecked load emitted with passes disabled")
	}
}

func TestCompileDoesNotMutateInput(t *testing.T) {
	fn := addFn()
	if _, err := New(DefaultOptions()).Compile(fn); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if diff := cmp.Diff(addFn(), fn); diff != "" {
		t.Errorf("input function modified (-want +got):\n%s", diff)
	}
}

func TestDumpSSA(t *testing.T) {
	p := New(DefaultOptions())
	res, err := p.Compile(addFn())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	dump, err := p.DumpSSA(res.Code)
	if err != nil {
		t.Fatalf("DumpSSA: %v", err)
	}
	if !strings.Contains(dump, "bb0:") {
		t.Errorf("dump missing entry block:\n%s", dump)
	}
	if !strings.Contains(dump, "Phi") {
		t.Errorf("expected a phi at the join point:\n%s", dump)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	res, err := New(DefaultOptions()).Compile(addFn())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	hash, err := store.Put(res.Code)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := store.Has(hash)
	if err != nil || !ok {
		t.Fatalf("Has = %v, %v; want true", ok, err)
	}

	got, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(res.Code, got); diff != "" {
		t.Errorf("cached code object differs (-want +got):\n%s", diff)
	}

	// storing again lands on the same hash
	again, err := store.Put(res.Code)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if again != hash {
		t.Errorf("hash changed on second Put: %x != %x", again, hash)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	var hash [32]byte
	hash[0] = 0xee
	if _, err := store.Get(hash); !errors.Is(err, ErrNotCached) {
		t.Errorf("Get = %v, want ErrNotCached", err)
	}
}

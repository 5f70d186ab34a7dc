package bytecode

import (
	"testing"

	"github.com/chazu/altair/pkg/ast"
)

type wantInstr struct {
	op  Opcode
	arg int
}

func checkCode(t *testing.T, code *CodeObject, want []wantInstr) {
	t.Helper()
	instrs, err := code.Instructions()
	if err != nil {
		t.Fatalf("Instructions failed: %v", err)
	}
	if len(instrs) != len(want) {
		t.Fatalf("got %d instructions, want %d:\n%s", len(instrs), len(want), code.Disassemble())
	}
	for i, w := range want {
		if instrs[i].Op != w.op || instrs[i].Arg != w.arg {
			t.Errorf("instruction %d = %s %d, want %s %d", i, instrs[i].Op, instrs[i].Arg, w.op, w.arg)
		}
	}
}

func TestCompileAssignAndReturn(t *testing.T) {
	fn := &ast.Function{
		Name: "f",
		Body: []ast.Stmt{
			&ast.Assign{Target: "x", Value: &ast.Literal{Value: int64(1)}},
			&ast.Return{Value: &ast.Name{Ident: "x"}},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadConst, 0},
		{OpStoreLocal, 0},
		{OpLoadLocal, 0},
		{OpReturn, 0},
	})
	if code.VarNames[0] != "x" {
		t.Errorf("slot 0 named %q, want x", code.VarNames[0])
	}
	if code.Constants[0] != int64(1) {
		t.Errorf("constant 0 = %#v", code.Constants[0])
	}
}

func TestCompileArgSlotsFirst(t *testing.T) {
	fn := &ast.Function{
		Name:    "f",
		Params:  []string{"a", "b"},
		KwOnly:  []string{"k"},
		VarArgs: "rest",
		Body: []ast.Stmt{
			&ast.Assign{Target: "x", Value: &ast.Name{Ident: "a"}},
			&ast.Return{Value: nil},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	wantNames := []string{"a", "b", "k", "rest", "x"}
	if len(code.VarNames) != len(wantNames) {
		t.Fatalf("VarNames = %v, want %v", code.VarNames, wantNames)
	}
	for i, name := range wantNames {
		if code.VarNames[i] != name {
			t.Errorf("slot %d = %q, want %q", i, code.VarNames[i], name)
		}
	}
	if code.ArgCount != 2 || code.KwOnlyCount != 1 {
		t.Errorf("arg counts = %d/%d, want 2/1", code.ArgCount, code.KwOnlyCount)
	}
	if code.Flags&CodeFlagVarArgs == 0 {
		t.Error("varargs flag not set")
	}
	if code.ArgSlotCount() != 4 {
		t.Errorf("ArgSlotCount = %d, want 4", code.ArgSlotCount())
	}
}

func TestCompileIf(t *testing.T) {
	fn := &ast.Function{
		Name:   "f",
		Params: []string{"cond"},
		Body: []ast.Stmt{
			&ast.If{
				Cond: &ast.Name{Ident: "cond"},
				Then: []ast.Stmt{&ast.Assign{Target: "x", Value: &ast.Literal{Value: int64(3)}}},
			},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadLocal, 0},
		{OpPopJumpIfFalse, 4},
		{OpLoadConst, 0},
		{OpStoreLocal, 1},
		{OpLoadConst, 1}, // implicit nil return
		{OpReturn, 0},
	})
}

func TestCompileIfElse(t *testing.T) {
	fn := &ast.Function{
		Name:   "f",
		Params: []string{"cond"},
		Body: []ast.Stmt{
			&ast.If{
				Cond: &ast.Name{Ident: "cond"},
				Then: []ast.Stmt{&ast.Assign{Target: "x", Value: &ast.Literal{Value: int64(1)}}},
				Else: []ast.Stmt{&ast.Assign{Target: "x", Value: &ast.Literal{Value: int64(2)}}},
			},
			&ast.Return{Value: &ast.Name{Ident: "x"}},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadLocal, 0},
		{OpPopJumpIfFalse, 5},
		{OpLoadConst, 0},
		{OpStoreLocal, 1},
		{OpJumpForward, 2},
		{OpLoadConst, 1},
		{OpStoreLocal, 1},
		{OpLoadLocal, 1},
		{OpReturn, 0},
	})
}

func TestCompileWhile(t *testing.T) {
	fn := &ast.Function{
		Name:   "f",
		Params: []string{"n"},
		Body: []ast.Stmt{
			&ast.While{
				Cond: &ast.BinOp{Op: ast.OpLt, Left: &ast.Name{Ident: "n"}, Right: &ast.Literal{Value: int64(10)}},
				Body: []ast.Stmt{
					&ast.Assign{Target: "n", Value: &ast.BinOp{
						Op:   ast.OpAdd,
						Left: &ast.Name{Ident: "n"}, Right: &ast.Literal{Value: int64(1)},
					}},
				},
			},
			&ast.Return{Value: &ast.Name{Ident: "n"}},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadLocal, 0},
		{OpLoadConst, 0},
		{OpLt, 0},
		{OpPopJumpIfFalse, 9},
		{OpLoadLocal, 0},
		{OpLoadConst, 1},
		{OpAdd, 0},
		{OpStoreLocal, 0},
		{OpJump, 0}, // back edge to the condition
		{OpLoadLocal, 0},
		{OpReturn, 0},
	})
}

func TestCompileFor(t *testing.T) {
	fn := &ast.Function{
		Name:   "f",
		Params: []string{"items"},
		Body: []ast.Stmt{
			&ast.For{
				Target: "item",
				Iter:   &ast.Name{Ident: "items"},
				Body:   []ast.Stmt{&ast.ExprStmt{X: &ast.Name{Ident: "item"}}},
			},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadLocal, 0},
		{OpGetIter, 0},
		{OpForIter, 4}, // exhaustion exits past the back edge
		{OpStoreLocal, 1},
		{OpLoadLocal, 1},
		{OpPop, 0},
		{OpJump, 2},
		{OpLoadConst, 0},
		{OpReturn, 0},
	})
	// FOR_ITER's relative delta resolves past the loop.
	instrs, _ := code.Instructions()
	if got := JumpTarget(instrs[2]); got != 7 {
		t.Errorf("FOR_ITER target = %d, want 7", got)
	}
}

func TestCompileGlobalLoad(t *testing.T) {
	fn := &ast.Function{
		Name: "f",
		Body: []ast.Stmt{
			&ast.Return{Value: &ast.Call{Fn: &ast.Name{Ident: "println"}, Args: []ast.Expr{
				&ast.Literal{Value: "hi"},
			}}},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadGlobal, 0},
		{OpLoadConst, 1},
		{OpCall, 1},
		{OpReturn, 0},
	})
	if code.Constants[0] != "println" {
		t.Errorf("name constant = %#v", code.Constants[0])
	}
}

func TestCompileJoinedStr(t *testing.T) {
	fn := &ast.Function{
		Name:   "f",
		Params: []string{"x"},
		Body: []ast.Stmt{
			&ast.Return{Value: &ast.JoinedStr{Parts: []ast.Expr{
				&ast.Literal{Value: "v="},
				&ast.FormattedValue{Value: &ast.Name{Ident: "x"}, Conv: ast.ConvStr, Spec: ">7"},
			}}},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadConst, 0}, // "v="
		{OpLoadLocal, 0},
		{OpLoadConst, 1}, // ">7"
		{OpFormatValue, FormatFlagConvStr | FormatFlagHasSpec},
		{OpBuildString, 2},
		{OpReturn, 0},
	})
}

func TestCompileJoinedStrSinglePart(t *testing.T) {
	fn := &ast.Function{
		Name:   "f",
		Params: []string{"x"},
		Body: []ast.Stmt{
			&ast.Return{Value: &ast.JoinedStr{Parts: []ast.Expr{
				&ast.FormattedValue{Value: &ast.Name{Ident: "x"}, Conv: ast.ConvRepr},
			}}},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	// FORMAT_VALUE already yields a string, so no BUILD_STRING.
	checkCode(t, code, []wantInstr{
		{OpLoadLocal, 0},
		{OpFormatValue, FormatFlagConvRepr},
		{OpReturn, 0},
	})
}

func TestCompileIntrinsicAndSubscript(t *testing.T) {
	fn := &ast.Function{
		Name:   "f",
		Params: []string{"x"},
		Body: []ast.Stmt{
			&ast.Return{Value: &ast.Subscript{
				Value: &ast.IntrinsicCall{Which: ast.IntrinsicCheckSingleArg, Arg: &ast.Name{Ident: "x"}},
				Index: &ast.Literal{Value: int64(0)},
			}},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadLocal, 0},
		{OpIntrinsic1, int(ast.IntrinsicCheckSingleArg)},
		{OpLoadConst, 0},
		{OpSubscr, 0},
		{OpReturn, 0},
	})
}

func TestCompileImplicitReturn(t *testing.T) {
	fn := &ast.Function{Name: "f", Body: []ast.Stmt{
		&ast.ExprStmt{X: &ast.Literal{Value: int64(1)}},
	}}
	code, err := Compile(fn)
	if err != nil {
		t.Fatal(err)
	}
	checkCode(t, code, []wantInstr{
		{OpLoadConst, 0},
		{OpPop, 0},
		{OpLoadConst, 1},
		{OpReturn, 0},
	})
	if code.Constants[1] != nil {
		t.Errorf("implicit return constant = %#v, want nil", code.Constants[1])
	}
}

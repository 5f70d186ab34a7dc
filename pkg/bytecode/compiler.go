package bytecode

import (
	"fmt"

	"github.com/chazu/altair/pkg/ast"
)

// Compiler converts an AST function to a code object.
type Compiler struct {
	code  *CodeObject
	slots map[string]int
}

// Compile compiles a function body to bytecode. The AST is expected to have
// already been through the AST optimizer; Compile performs no optimization
// of its own.
func Compile(fn *ast.Function) (*CodeObject, error) {
	c := &Compiler{
		code:  NewCodeObject(fn.Name),
		slots: make(map[string]int),
	}

	// Argument slots occupy the front of the local table in declaration
	// order: positional, keyword-only, then the variadic slots.
	c.code.ArgCount = uint8(len(fn.Params))
	c.code.KwOnlyCount = uint8(len(fn.KwOnly))
	if fn.VarArgs != "" {
		c.code.Flags |= CodeFlagVarArgs
	}
	if fn.VarKwArgs != "" {
		c.code.Flags |= CodeFlagVarKwArgs
	}
	for _, name := range fn.ArgNames() {
		c.addLocal(name)
	}

	// Locals get slots in first-appearance order.
	collectLocals(fn.Body, c)

	for _, stmt := range fn.Body {
		if err := c.compileStatement(stmt); err != nil {
			return nil, err
		}
	}

	// Ensure the function returns something.
	if !c.endsWithReturn() {
		if _, err := c.code.EmitConstant(nil); err != nil {
			return nil, err
		}
		c.code.Emit(OpReturn, 0)
	}
	return c.code, nil
}

// addLocal allocates a slot for name if it does not have one.
func (c *Compiler) addLocal(name string) int {
	if slot, ok := c.slots[name]; ok {
		return slot
	}
	slot := len(c.code.VarNames)
	c.slots[name] = slot
	c.code.VarNames = append(c.code.VarNames, name)
	return slot
}

// collectLocals walks statements allocating slots for every assigned or
// deleted name, so slot numbering is stable regardless of control flow.
func collectLocals(stmts []ast.Stmt, c *Compiler) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.Assign:
			c.addLocal(s.Target)
		case *ast.Delete:
			c.addLocal(s.Target)
		case *ast.If:
			collectLocals(s.Then, c)
			collectLocals(s.Else, c)
		case *ast.While:
			collectLocals(s.Body, c)
		case *ast.For:
			c.addLocal(s.Target)
			collectLocals(s.Body, c)
		}
	}
}

// endsWithReturn checks whether the last emitted instruction terminates.
func (c *Compiler) endsWithReturn() bool {
	if len(c.code.Code) == 0 {
		return false
	}
	lastOp := Opcode(c.code.Code[len(c.code.Code)-CodeUnitSize])
	return lastOp.IsTerminator()
}

func (c *Compiler) compileStatement(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.Assign:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.code.Emit(OpStoreLocal, c.slots[s.Target])
		return nil

	case *ast.Delete:
		c.code.Emit(OpDeleteLocal, c.slots[s.Target])
		return nil

	case *ast.ExprStmt:
		if err := c.compileExpr(s.X); err != nil {
			return err
		}
		c.code.Emit(OpPop, 0)
		return nil

	case *ast.Return:
		if s.Value != nil {
			if err := c.compileExpr(s.Value); err != nil {
				return err
			}
		} else if _, err := c.code.EmitConstant(nil); err != nil {
			return err
		}
		c.code.Emit(OpReturn, 0)
		return nil

	case *ast.Raise:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.code.Emit(OpRaise, 0)
		return nil

	case *ast.If:
		return c.compileIf(s)

	case *ast.While:
		return c.compileWhile(s)

	case *ast.For:
		return c.compileFor(s)

	default:
		return fmt.Errorf("bytecode: cannot compile statement %T", stmt)
	}
}

func (c *Compiler) compileIf(s *ast.If) error {
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	elseJump := c.code.EmitJump(OpPopJumpIfFalse)
	for _, stmt := range s.Then {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	if len(s.Else) == 0 {
		return c.code.PatchJump(elseJump)
	}
	endJump := c.code.EmitJump(OpJumpForward)
	if err := c.code.PatchJump(elseJump); err != nil {
		return err
	}
	for _, stmt := range s.Else {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return c.code.PatchJump(endJump)
}

func (c *Compiler) compileWhile(s *ast.While) error {
	loopStart := c.code.CurrentPosition()
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	exitJump := c.code.EmitJump(OpPopJumpIfFalse)
	for _, stmt := range s.Body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	if loopStart > MaxArg {
		return fmt.Errorf("bytecode: loop start %d overflows a code unit in %s", loopStart, c.code.Name)
	}
	c.code.Emit(OpJump, loopStart)
	return c.code.PatchJump(exitJump)
}

func (c *Compiler) compileFor(s *ast.For) error {
	if err := c.compileExpr(s.Iter); err != nil {
		return err
	}
	c.code.Emit(OpGetIter, 0)
	loopStart := c.code.CurrentPosition()
	exitJump := c.code.EmitJump(OpForIter)
	c.code.Emit(OpStoreLocal, c.slots[s.Target])
	for _, stmt := range s.Body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	if loopStart > MaxArg {
		return fmt.Errorf("bytecode: loop start %d overflows a code unit in %s", loopStart, c.code.Name)
	}
	c.code.Emit(OpJump, loopStart)
	return c.code.PatchJump(exitJump)
}

var binOpOpcodes = map[ast.BinOpKind]Opcode{
	ast.OpAdd: OpAdd,
	ast.OpSub: OpSub,
	ast.OpMul: OpMul,
	ast.OpDiv: OpDiv,
	ast.OpMod: OpMod,
	ast.OpEq:  OpEq,
	ast.OpNe:  OpNe,
	ast.OpLt:  OpLt,
	ast.OpLe:  OpLe,
	ast.OpGt:  OpGt,
	ast.OpGe:  OpGe,
}

func (c *Compiler) compileExpr(expr ast.Expr) error {
	switch e := expr.(type) {
	case *ast.Literal:
		_, err := c.code.EmitConstant(e.Value)
		return err

	case *ast.Name:
		if slot, ok := c.slots[e.Ident]; ok {
			c.code.Emit(OpLoadLocal, slot)
			return nil
		}
		idx := c.code.AddConstant(e.Ident)
		if idx > MaxArg {
			return fmt.Errorf("bytecode: constant pool overflow in %s", c.code.Name)
		}
		c.code.Emit(OpLoadGlobal, idx)
		return nil

	case *ast.TupleExpr:
		for _, elt := range e.Elts {
			if err := c.compileExpr(elt); err != nil {
				return err
			}
		}
		c.code.Emit(OpBuildTuple, len(e.Elts))
		return nil

	case *ast.BinOp:
		if err := c.compileExpr(e.Left); err != nil {
			return err
		}
		if err := c.compileExpr(e.Right); err != nil {
			return err
		}
		op, ok := binOpOpcodes[e.Op]
		if !ok {
			return fmt.Errorf("bytecode: no opcode for operator %s", e.Op)
		}
		c.code.Emit(op, 0)
		return nil

	case *ast.UnaryOp:
		if err := c.compileExpr(e.Operand); err != nil {
			return err
		}
		if e.Op == ast.OpNeg {
			c.code.Emit(OpNeg, 0)
		} else {
			c.code.Emit(OpNot, 0)
		}
		return nil

	case *ast.FormattedValue:
		return c.compileFormattedValue(e)

	case *ast.JoinedStr:
		return c.compileJoinedStr(e)

	case *ast.IntrinsicCall:
		if err := c.compileExpr(e.Arg); err != nil {
			return err
		}
		c.code.Emit(OpIntrinsic1, int(e.Which))
		return nil

	case *ast.Subscript:
		if err := c.compileExpr(e.Value); err != nil {
			return err
		}
		if err := c.compileExpr(e.Index); err != nil {
			return err
		}
		c.code.Emit(OpSubscr, 0)
		return nil

	case *ast.Call:
		if err := c.compileExpr(e.Fn); err != nil {
			return err
		}
		for _, arg := range e.Args {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.code.Emit(OpCall, len(e.Args))
		return nil

	default:
		return fmt.Errorf("bytecode: cannot compile expression %T", expr)
	}
}

// compileFormattedValue emits the value, the optional format spec constant,
// and an OpFormatValue with the conversion packed into the operand.
func (c *Compiler) compileFormattedValue(e *ast.FormattedValue) error {
	if err := c.compileExpr(e.Value); err != nil {
		return err
	}
	flags := 0
	switch e.Conv {
	case ast.ConvStr:
		flags = FormatFlagConvStr
	case ast.ConvRepr:
		flags = FormatFlagConvRepr
	case ast.ConvAscii:
		flags = FormatFlagConvAscii
	}
	if e.Spec != "" {
		if _, err := c.code.EmitConstant(e.Spec); err != nil {
			return err
		}
		flags |= FormatFlagHasSpec
	}
	c.code.Emit(OpFormatValue, flags)
	return nil
}

// compileJoinedStr emits each part then joins them with OpBuildString.
// An empty join compiles to the empty string constant and a single literal
// string part compiles to a plain constant load.
func (c *Compiler) compileJoinedStr(e *ast.JoinedStr) error {
	if len(e.Parts) == 0 {
		_, err := c.code.EmitConstant("")
		return err
	}
	if len(e.Parts) == 1 {
		if lit, ok := e.Parts[0].(*ast.Literal); ok {
			_, err := c.code.EmitConstant(lit.Value)
			return err
		}
	}
	for _, part := range e.Parts {
		if err := c.compileExpr(part); err != nil {
			return err
		}
	}
	if len(e.Parts) > 1 {
		c.code.Emit(OpBuildString, len(e.Parts))
	}
	return nil
}

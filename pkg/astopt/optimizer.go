// Package astopt implements the AST-level peephole optimizer: constant
// folding of operations on literal operands and the rewrite of printf-style
// string interpolation into formatted-value concatenations.
//
// Every transformation is best-effort and backward compatible. A rewrite
// happens only when the result is indistinguishable from the original at
// runtime; on any doubt the original node is kept and the general runtime
// path handles it. Failures to fold are ordinary return values, never
// panics.
package astopt

import (
	"github.com/chazu/altair/pkg/ast"
)

// Optimize rewrites an expression bottom-up and returns the replacement
// node, or the input unchanged. The input tree is not mutated.
func Optimize(expr ast.Expr) ast.Expr {
	switch e := expr.(type) {
	case *ast.BinOp:
		return optimizeBinOp(e)

	case *ast.UnaryOp:
		operand := Optimize(e.Operand)
		if v, ok := ast.ConstValue(operand); ok {
			if folded, ok := foldUnaryOp(e.Op, v); ok {
				return &ast.Literal{Value: folded}
			}
		}
		if operand == e.Operand {
			return e
		}
		return &ast.UnaryOp{Op: e.Op, Operand: operand}

	case *ast.TupleExpr:
		return optimizeTuple(e)

	case *ast.JoinedStr:
		parts := optimizeExprs(e.Parts)
		if parts == nil {
			return e
		}
		return &ast.JoinedStr{Parts: parts}

	case *ast.FormattedValue:
		value := Optimize(e.Value)
		if value == e.Value {
			return e
		}
		return &ast.FormattedValue{Value: value, Conv: e.Conv, Spec: e.Spec}

	case *ast.IntrinsicCall:
		arg := Optimize(e.Arg)
		if arg == e.Arg {
			return e
		}
		return &ast.IntrinsicCall{Which: e.Which, Arg: arg}

	case *ast.Subscript:
		value, index := Optimize(e.Value), Optimize(e.Index)
		if value == e.Value && index == e.Index {
			return e
		}
		return &ast.Subscript{Value: value, Index: index}

	case *ast.Call:
		fn := Optimize(e.Fn)
		args := optimizeExprs(e.Args)
		if fn == e.Fn && args == nil {
			return e
		}
		if args == nil {
			args = e.Args
		}
		return &ast.Call{Fn: fn, Args: args}

	default:
		return expr
	}
}

func optimizeBinOp(e *ast.BinOp) ast.Expr {
	left := Optimize(e.Left)
	right := Optimize(e.Right)

	if lv, lok := ast.ConstValue(left); lok {
		if rv, rok := ast.ConstValue(right); rok {
			if folded, ok := foldBinOp(e.Op, lv, rv); ok {
				return &ast.Literal{Value: folded}
			}
		}
	}

	if shouldRewritePrintf(e.Op, left) {
		format, _ := ast.ConstValue(left)
		if result := rewriteStrMod(format.(string), right); result != nil {
			return Optimize(result)
		}
	}

	if left == e.Left && right == e.Right {
		return e
	}
	return &ast.BinOp{Op: e.Op, Left: left, Right: right}
}

// optimizeTuple folds a tuple display whose elements are all constants into
// a constant tuple; tuples are immutable, so the fold is unobservable.
func optimizeTuple(e *ast.TupleExpr) ast.Expr {
	elts := optimizeExprs(e.Elts)
	changed := elts != nil
	if elts == nil {
		elts = e.Elts
	}

	values := make(ast.Tuple, len(elts))
	allConst := true
	for i, elt := range elts {
		v, ok := ast.ConstValue(elt)
		if !ok {
			allConst = false
			break
		}
		values[i] = v
	}
	if allConst {
		return &ast.Literal{Value: values}
	}
	if !changed {
		return e
	}
	return &ast.TupleExpr{Elts: elts}
}

// optimizeExprs optimizes a slice of expressions, returning nil when
// nothing changed.
func optimizeExprs(exprs []ast.Expr) []ast.Expr {
	var out []ast.Expr
	for i, expr := range exprs {
		opt := Optimize(expr)
		if opt != expr && out == nil {
			out = make([]ast.Expr, i, len(exprs))
			copy(out, exprs[:i])
		}
		if out != nil {
			out = append(out, opt)
		}
	}
	return out
}

// OptimizeFunction returns a copy of fn with every contained expression
// optimized. Statement structure is preserved.
func OptimizeFunction(fn *ast.Function) *ast.Function {
	out := *fn
	out.Body = optimizeStmts(fn.Body)
	return &out
}

func optimizeStmts(stmts []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, len(stmts))
	for i, stmt := range stmts {
		out[i] = optimizeStmt(stmt)
	}
	return out
}

func optimizeStmt(stmt ast.Stmt) ast.Stmt {
	switch s := stmt.(type) {
	case *ast.Assign:
		return &ast.Assign{Target: s.Target, Value: Optimize(s.Value)}
	case *ast.ExprStmt:
		return &ast.ExprStmt{X: Optimize(s.X)}
	case *ast.Return:
		if s.Value == nil {
			return s
		}
		return &ast.Return{Value: Optimize(s.Value)}
	case *ast.Raise:
		return &ast.Raise{Value: Optimize(s.Value)}
	case *ast.If:
		return &ast.If{Cond: Optimize(s.Cond), Then: optimizeStmts(s.Then), Else: optimizeStmts(s.Else)}
	case *ast.While:
		return &ast.While{Cond: Optimize(s.Cond), Body: optimizeStmts(s.Body)}
	case *ast.For:
		return &ast.For{Target: s.Target, Iter: Optimize(s.Iter), Body: optimizeStmts(s.Body)}
	default:
		return stmt
	}
}

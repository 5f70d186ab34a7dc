package astopt

import (
	"github.com/chazu/altair/pkg/ast"
)

// shouldRewritePrintf reports whether a binary operation is a candidate for
// the printf rewrite: string literal on the left, interpolation operator.
func shouldRewritePrintf(op ast.BinOpKind, left ast.Expr) bool {
	if op != ast.OpMod || !ast.IsConst(left) {
		return false
	}
	v, _ := ast.ConstValue(left)
	_, isStr := v.(string)
	return isStr
}

// conversionCall wraps a value in one of the well-known runtime conversion
// helpers.
func conversionCall(which ast.Intrinsic, value ast.Expr) ast.Expr {
	return &ast.IntrinsicCall{Which: which, Arg: value}
}

// rewriteStrMod rewrites a printf-style interpolation into a formatted
// value concatenation when the format string and argument shape are
// statically analyzable. It returns nil when it cannot guarantee an
// indistinguishable evaluation result; the caller then keeps the original
// node and the general runtime path.
func rewriteStrMod(format string, right ast.Expr) ast.Expr {
	// Try to collapse the whole expression into a single string first.
	if rv, ok := ast.ConstValue(right); ok {
		if folded, ok := formatMod(format, rv); ok {
			return &ast.Literal{Value: folded}
		}
	}

	// Count conversion specifiers, rejecting shapes we do not model.
	nSpecifiers := 0
	for i := 0; i < len(format); {
		if format[i] != '%' {
			i++
			continue
		}
		i++
		if i >= len(format) {
			// Invalid format string ending in a single percent.
			return nil
		}
		ch := format[i]
		i++
		if ch == '%' {
			continue
		}
		if ch == '(' {
			// No mapping-key lookups; inner '%' chars would confuse the
			// scan anyway.
			return nil
		}
		nSpecifiers++
	}

	var rhsValues []ast.Expr
	numValues := 1
	switch rhs := right.(type) {
	case *ast.TupleExpr:
		rhsValues = rhs.Elts
		numValues = len(rhs.Elts)
	default:
		if lit, ok := right.(*ast.Literal); ok {
			if t, ok := lit.Value.(ast.Tuple); ok {
				rhsValues = make([]ast.Expr, len(t))
				for i, v := range t {
					rhsValues[i] = &ast.Literal{Value: v}
				}
				numValues = len(t)
				break
			}
		}
		// A bare right-hand side is only supported with exactly one
		// specifier, normalized to a one-element tuple at runtime.
		if nSpecifiers != 1 {
			return nil
		}
	}

	var parts []ast.Expr
	valueIdx := 0
	segmentBegin := 0
	for i := 0; i < len(format); {
		if format[i] != '%' {
			i++
			continue
		}
		segmentEnd := i
		i++
		if segmentEnd > segmentBegin {
			parts = append(parts, &ast.Literal{Value: format[segmentBegin:segmentEnd]})
		}
		if i >= len(format) {
			return nil
		}

		// Parse the zero flag and width.
		specBegin := i
		haveWidth := false
		for i < len(format) && format[i] == '0' {
			i++
		}
		if i < len(format) && format[i] >= '1' && format[i] <= '9' {
			haveWidth = true
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
		}
		if i >= len(format) {
			return nil
		}
		spec := format[specBegin:i]
		ch := format[i]
		i++

		if ch == '%' {
			// '%%': break the string apart at the second '%'.
			segmentBegin = i - 1
			continue
		}

		var value ast.Expr
		if rhsValues != nil {
			if valueIdx >= numValues {
				return nil
			}
			value = rhsValues[valueIdx]
		} else {
			// `"%s" % x` without a tuple on the right: validate and
			// unwrap through the single-argument normalization helper.
			converted := conversionCall(ast.IntrinsicCheckSingleArg, right)
			value = &ast.Subscript{Value: converted, Index: &ast.Literal{Value: int64(0)}}
		}
		valueIdx++

		switch ch {
		case 's', 'r', 'a':
			if haveWidth {
				// The original interpolation right-aligns under a width
				// while a formatted value left-aligns by default, so the
				// alignment must be explicit.
				spec = ">" + spec
			}
			conv := ast.ConvStr
			if ch == 'r' {
				conv = ast.ConvRepr
			} else if ch == 'a' {
				conv = ast.ConvAscii
			}
			parts = append(parts, &ast.FormattedValue{Value: value, Conv: conv, Spec: spec})
		case 'd', 'i', 'u':
			converted := conversionCall(ast.IntrinsicNumberInt, value)
			parts = append(parts, &ast.FormattedValue{Value: converted, Conv: ast.ConvNone, Spec: spec})
		case 'x', 'X', 'o':
			converted := conversionCall(ast.IntrinsicNumberIndex, value)
			parts = append(parts, &ast.FormattedValue{Value: converted, Conv: ast.ConvNone, Spec: spec + string(ch)})
		default:
			return nil
		}
		segmentBegin = i
	}

	if valueIdx != numValues {
		return nil
	}
	if len(format) > segmentBegin {
		parts = append(parts, &ast.Literal{Value: format[segmentBegin:]})
	}
	return &ast.JoinedStr{Parts: parts}
}

package astopt

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/altair/pkg/ast"
)

// maxFoldedStringLen caps the size of strings produced by compile-time
// evaluation so folding cannot balloon the constant pool.
const maxFoldedStringLen = 4096

// foldBinOp evaluates a binary operation over constant operands at compile
// time. The second return is false whenever evaluation would differ from
// runtime semantics or fail there (overflow, division by zero, type error);
// the caller then leaves the original node unchanged.
func foldBinOp(op ast.BinOpKind, left, right any) (any, bool) {
	switch op {
	case ast.OpAdd:
		if ls, ok := left.(string); ok {
			rs, ok := right.(string)
			if !ok || len(ls)+len(rs) > maxFoldedStringLen {
				return nil, false
			}
			return ls + rs, true
		}
		if lt, ok := left.(ast.Tuple); ok {
			rt, ok := right.(ast.Tuple)
			if !ok {
				return nil, false
			}
			out := make(ast.Tuple, 0, len(lt)+len(rt))
			out = append(out, lt...)
			out = append(out, rt...)
			return out, true
		}
		return foldArith(op, left, right)

	case ast.OpSub, ast.OpDiv:
		return foldArith(op, left, right)

	case ast.OpMul:
		if s, n, ok := stringRepeat(left, right); ok {
			if len(s)*int(n) > maxFoldedStringLen || n < 0 {
				return nil, false
			}
			return strings.Repeat(s, int(n)), true
		}
		return foldArith(op, left, right)

	case ast.OpMod:
		if format, ok := left.(string); ok {
			return formatMod(format, right)
		}
		return foldArith(op, left, right)

	case ast.OpEq, ast.OpNe, ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		return foldCompare(op, left, right)

	default:
		return nil, false
	}
}

func stringRepeat(left, right any) (string, int64, bool) {
	if s, ok := left.(string); ok {
		if n, ok := right.(int64); ok {
			return s, n, true
		}
	}
	if s, ok := right.(string); ok {
		if n, ok := left.(int64); ok {
			return s, n, true
		}
	}
	return "", 0, false
}

// foldArith handles the numeric cases, promoting to float when either side
// is a float.
func foldArith(op ast.BinOpKind, left, right any) (any, bool) {
	li, lIsInt := left.(int64)
	ri, rIsInt := right.(int64)
	if lIsInt && rIsInt {
		return foldIntArith(op, li, ri)
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, false
	}
	switch op {
	case ast.OpAdd:
		return lf + rf, true
	case ast.OpSub:
		return lf - rf, true
	case ast.OpMul:
		return lf * rf, true
	case ast.OpDiv:
		if rf == 0 {
			return nil, false
		}
		return lf / rf, true
	case ast.OpMod:
		if rf == 0 {
			return nil, false
		}
		return math.Mod(lf, rf), true
	}
	return nil, false
}

func foldIntArith(op ast.BinOpKind, a, b int64) (any, bool) {
	switch op {
	case ast.OpAdd:
		sum := a + b
		if (sum > a) != (b > 0) {
			return nil, false // overflow
		}
		return sum, true
	case ast.OpSub:
		diff := a - b
		if (diff < a) != (b > 0) {
			return nil, false
		}
		return diff, true
	case ast.OpMul:
		if a != 0 && b != 0 {
			prod := a * b
			if prod/a != b {
				return nil, false
			}
			return prod, true
		}
		return int64(0), true
	case ast.OpDiv:
		if b == 0 {
			return nil, false
		}
		return float64(a) / float64(b), true
	case ast.OpMod:
		if b == 0 {
			return nil, false
		}
		// Remainder takes the divisor's sign, matching runtime semantics.
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func foldCompare(op ast.BinOpKind, left, right any) (any, bool) {
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return foldEqOnly(op, left, right)
		}
		return orderResult(op, strings.Compare(ls, rs)), true
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch {
		case lf < rf:
			return orderResult(op, -1), true
		case lf > rf:
			return orderResult(op, 1), true
		default:
			return orderResult(op, 0), true
		}
	}
	return foldEqOnly(op, left, right)
}

// foldEqOnly folds == and != across types; ordering mixed types is a
// runtime type error, so those are left unfolded.
func foldEqOnly(op ast.BinOpKind, left, right any) (any, bool) {
	switch op {
	case ast.OpEq:
		return ast.EqualValues(left, right), true
	case ast.OpNe:
		return !ast.EqualValues(left, right), true
	}
	return nil, false
}

func orderResult(op ast.BinOpKind, cmp int) bool {
	switch op {
	case ast.OpEq:
		return cmp == 0
	case ast.OpNe:
		return cmp != 0
	case ast.OpLt:
		return cmp < 0
	case ast.OpLe:
		return cmp <= 0
	case ast.OpGt:
		return cmp > 0
	default:
		return cmp >= 0
	}
}

// foldUnaryOp evaluates a unary operation on a constant operand.
func foldUnaryOp(op ast.UnaryOpKind, v any) (any, bool) {
	switch op {
	case ast.OpNeg:
		switch x := v.(type) {
		case int64:
			if x == math.MinInt64 {
				return nil, false
			}
			return -x, true
		case float64:
			return -x, true
		}
	case ast.OpNot:
		switch x := v.(type) {
		case bool:
			return !x, true
		case nil:
			return true, true
		}
	}
	return nil, false
}

// formatMod evaluates printf-style interpolation at compile time for the
// specifier subset the rewriter models. The second return is false for any
// shape the rewriter would have to bail out on, so compile-time and
// runtime results can never diverge.
func formatMod(format string, rhs any) (string, bool) {
	values, isTuple := rhs.(ast.Tuple)
	if !isTuple {
		values = ast.Tuple{rhs}
	}

	var sb strings.Builder
	valueIdx := 0
	for i := 0; i < len(format); {
		ch := format[i]
		if ch != '%' {
			sb.WriteByte(ch)
			i++
			continue
		}
		i++
		if i >= len(format) {
			return "", false // trailing unescaped '%'
		}

		// Zero flag and width.
		spec := ""
		for i < len(format) && format[i] == '0' {
			spec += "0"
			i++
		}
		for i < len(format) && format[i] >= '1' && format[i] <= '9' {
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				spec += string(format[i])
				i++
			}
		}
		if i >= len(format) {
			return "", false
		}
		verb := format[i]
		i++

		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		if verb == '(' {
			return "", false // mapping-key lookups are not modeled
		}
		if valueIdx >= len(values) {
			return "", false
		}
		value := values[valueIdx]
		valueIdx++

		formatted, ok := formatOne(verb, spec, value)
		if !ok {
			return "", false
		}
		sb.WriteString(formatted)
	}
	if valueIdx != len(values) {
		return "", false
	}
	if sb.Len() > maxFoldedStringLen {
		return "", false
	}
	return sb.String(), true
}

// formatOne renders a single conversion. The zero flag applies to numeric
// conversions only; strings are space-padded.
func formatOne(verb byte, spec string, value any) (string, bool) {
	width := strings.TrimLeft(spec, "0")
	zero := strings.HasPrefix(spec, "0")
	switch verb {
	case 's', 'r', 'a':
		rendered := ast.FormatValue(value)
		if verb != 's' {
			rendered = ast.ReprValue(value)
		}
		return fmt.Sprintf("%"+width+"s", rendered), true
	case 'd', 'i', 'u':
		n, ok := value.(int64)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%"+numSpec(zero, width)+"d", n), true
	case 'x':
		n, ok := value.(int64)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%"+numSpec(zero, width)+"x", n), true
	case 'X':
		n, ok := value.(int64)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%"+numSpec(zero, width)+"X", n), true
	case 'o':
		n, ok := value.(int64)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%"+numSpec(zero, width)+"o", n), true
	default:
		return "", false
	}
}

func numSpec(zero bool, width string) string {
	if zero {
		return "0" + width
	}
	return width
}

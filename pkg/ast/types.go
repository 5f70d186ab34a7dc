// Package ast defines the expression and statement tree consumed by the
// Altair compiler core. The tree is produced by an external parser; this
// package only defines the node shapes the optimizer and code generator
// operate on.
package ast

import (
	"fmt"
	"strings"
)

// Tuple is an immutable constant tuple value. Constant values elsewhere in
// the tree are plain Go values: int64, float64, string, bool, nil, or Tuple.
type Tuple []any

// Node is implemented by every AST node.
type Node interface {
	node()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// ============================================================================
// Expressions
// ============================================================================

// Literal is a compile-time constant: int64, float64, string, bool, nil,
// or Tuple.
type Literal struct {
	Value any
}

// Name is a variable reference.
type Name struct {
	Ident string
}

// TupleExpr constructs a tuple from element expressions.
type TupleExpr struct {
	Elts []Expr
}

// BinOpKind enumerates binary operators.
type BinOpKind int

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpMod // also the string-interpolation operator
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binOpNames = [...]string{"+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">="}

// String returns the operator's source spelling.
func (k BinOpKind) String() string {
	if int(k) >= 0 && int(k) < len(binOpNames) {
		return binOpNames[k]
	}
	return fmt.Sprintf("BinOpKind(%d)", int(k))
}

// BinOp is a binary operation.
type BinOp struct {
	Op    BinOpKind
	Left  Expr
	Right Expr
}

// UnaryOpKind enumerates unary operators.
type UnaryOpKind int

const (
	OpNeg UnaryOpKind = iota
	OpNot
)

// UnaryOp is a unary operation.
type UnaryOp struct {
	Op      UnaryOpKind
	Operand Expr
}

// Conversion selects how a FormattedValue stringifies its operand.
type Conversion int

const (
	ConvNone Conversion = iota
	ConvStr
	ConvRepr
	ConvAscii
)

// String returns the conversion's f-string style marker.
func (c Conversion) String() string {
	switch c {
	case ConvStr:
		return "!s"
	case ConvRepr:
		return "!r"
	case ConvAscii:
		return "!a"
	default:
		return ""
	}
}

// FormattedValue is one interpolated component of a JoinedStr: the value
// expression, an optional conversion, and an optional format spec (width,
// alignment, zero padding).
type FormattedValue struct {
	Value Expr
	Conv  Conversion
	Spec  string // empty means no format spec
}

// JoinedStr is a concatenation of literal string segments and formatted
// values, the target shape of the printf rewrite.
type JoinedStr struct {
	Parts []Expr // *Literal (string) or *FormattedValue
}

// Intrinsic identifies a well-known runtime conversion helper reachable
// regardless of the surrounding environment.
type Intrinsic int

const (
	// IntrinsicNumberInt coerces a value to an integer for %d/%i/%u.
	IntrinsicNumberInt Intrinsic = iota

	// IntrinsicNumberIndex coerces a value to an index for %x/%X/%o.
	IntrinsicNumberIndex

	// IntrinsicCheckSingleArg validates a bare (non-tuple) interpolation
	// argument and returns it wrapped in a one-element tuple.
	IntrinsicCheckSingleArg
)

var intrinsicNames = [...]string{"number_int", "number_index", "check_single_arg"}

// String returns the intrinsic's symbolic name.
func (in Intrinsic) String() string {
	if int(in) >= 0 && int(in) < len(intrinsicNames) {
		return intrinsicNames[in]
	}
	return fmt.Sprintf("Intrinsic(%d)", int(in))
}

// IntrinsicCall invokes a runtime conversion helper on a single argument.
type IntrinsicCall struct {
	Which Intrinsic
	Arg   Expr
}

// Subscript is an index expression, value[index].
type Subscript struct {
	Value Expr
	Index Expr
}

// Call is a function call with positional arguments.
type Call struct {
	Fn   Expr
	Args []Expr
}

// ============================================================================
// Statements
// ============================================================================

// Assign stores an expression's value into a local variable.
type Assign struct {
	Target string
	Value  Expr
}

// Delete unbinds a local variable.
type Delete struct {
	Target string
}

// ExprStmt evaluates an expression and discards the result.
type ExprStmt struct {
	X Expr
}

// Return returns a value from the function. A nil Value returns nil.
type Return struct {
	Value Expr
}

// Raise raises the given value as an error.
type Raise struct {
	Value Expr
}

// If is a conditional with an optional else branch.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// While is a pre-test loop.
type While struct {
	Cond Expr
	Body []Stmt
}

// For iterates over the values produced by Iter, binding each to Target.
type For struct {
	Target string
	Iter   Expr
	Body   []Stmt
}

// ============================================================================
// Function
// ============================================================================

// Function is one compilation unit: a name, parameter metadata, and a body.
// Parameter slots are laid out positional, then keyword-only, then the
// variadic-positional slot, then the variadic-keyword slot.
type Function struct {
	Name      string
	Params    []string // positional parameters
	KwOnly    []string // keyword-only parameters
	VarArgs   string   // variadic-positional name, "" if absent
	VarKwArgs string   // variadic-keyword name, "" if absent
	Body      []Stmt
}

// ArgNames returns all argument names in slot order.
func (f *Function) ArgNames() []string {
	names := make([]string, 0, len(f.Params)+len(f.KwOnly)+2)
	names = append(names, f.Params...)
	names = append(names, f.KwOnly...)
	if f.VarArgs != "" {
		names = append(names, f.VarArgs)
	}
	if f.VarKwArgs != "" {
		names = append(names, f.VarKwArgs)
	}
	return names
}

func (*Literal) node()        {}
func (*Name) node()           {}
func (*TupleExpr) node()      {}
func (*BinOp) node()          {}
func (*UnaryOp) node()        {}
func (*FormattedValue) node() {}
func (*JoinedStr) node()      {}
func (*IntrinsicCall) node()  {}
func (*Subscript) node()      {}
func (*Call) node()           {}
func (*Assign) node()         {}
func (*Delete) node()         {}
func (*ExprStmt) node()       {}
func (*Return) node()         {}
func (*Raise) node()          {}
func (*If) node()             {}
func (*While) node()          {}
func (*For) node()            {}
func (*Function) node()       {}

func (*Literal) exprNode()        {}
func (*Name) exprNode()           {}
func (*TupleExpr) exprNode()      {}
func (*BinOp) exprNode()          {}
func (*UnaryOp) exprNode()        {}
func (*FormattedValue) exprNode() {}
func (*JoinedStr) exprNode()      {}
func (*IntrinsicCall) exprNode()  {}
func (*Subscript) exprNode()      {}
func (*Call) exprNode()           {}

func (*Assign) stmtNode()   {}
func (*Delete) stmtNode()   {}
func (*ExprStmt) stmtNode() {}
func (*Return) stmtNode()   {}
func (*Raise) stmtNode()    {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*For) stmtNode()      {}

// IsConst reports whether e is a literal constant.
func IsConst(e Expr) bool {
	_, ok := e.(*Literal)
	return ok
}

// ConstValue returns the constant value of a literal expression.
// The second return is false if e is not a literal.
func ConstValue(e Expr) (any, bool) {
	lit, ok := e.(*Literal)
	if !ok {
		return nil, false
	}
	return lit.Value, true
}

// FormatValue renders a constant value the way the runtime displays it with
// str(): strings pass through unquoted.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case Tuple:
		var sb strings.Builder
		sb.WriteByte('(')
		for i, elt := range x {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(ReprValue(elt))
		}
		if len(x) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
		return sb.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ReprValue renders a constant value the way the runtime displays it with
// repr(): strings are single-quoted.
func ReprValue(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return FormatValue(v)
}

// EqualValues compares two constant values, including tuples element-wise.
func EqualValues(a, b any) bool {
	at, aok := a.(Tuple)
	bt, bok := b.(Tuple)
	if aok || bok {
		if !aok || !bok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !EqualValues(at[i], bt[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

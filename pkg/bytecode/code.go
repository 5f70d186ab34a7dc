package bytecode

import (
	"fmt"

	"github.com/chazu/altair/pkg/ast"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// CodeFlags contains compilation flags for a code object.
type CodeFlags uint16

const (
	// CodeFlagVarArgs indicates the function takes a variadic-positional
	// argument (one extra argument slot after the keyword-only ones).
	CodeFlagVarArgs CodeFlags = 1 << 0

	// CodeFlagVarKwArgs indicates the function takes a variadic-keyword
	// argument (one extra argument slot at the end).
	CodeFlagVarKwArgs CodeFlags = 1 << 1

	// CodeFlagOptimized indicates the optimizer passes ran over the code.
	CodeFlagOptimized CodeFlags = 1 << 2
)

// CodeObject is the compiled form of one function or module body: packed
// code units plus the metadata the optimizer passes need. It is the unit of
// serialization and the input to the CFG, dataflow, and SSA passes.
type CodeObject struct {
	// Header
	Version uint16    // Bytecode format version
	Flags   CodeFlags // Compilation flags

	Name string // Function name, for diagnostics

	// Code section, packed as fixed-width code units.
	Code []byte

	// Constant pool. Values are int64, float64, string, bool, nil, or
	// ast.Tuple.
	Constants []any

	// Argument metadata. Argument slots occupy the front of the local
	// variable table: positional, then keyword-only, then the variadic
	// slots indicated by flags.
	ArgCount    uint8 // Number of positional parameters
	KwOnlyCount uint8 // Number of keyword-only parameters

	// VarNames names every local variable slot, arguments first.
	VarNames []string
}

// NewCodeObject creates an empty code object with the current version.
func NewCodeObject(name string) *CodeObject {
	return &CodeObject{
		Version: BytecodeVersion,
		Name:    name,
		Code:    make([]byte, 0, 64),
	}
}

// ArgSlotCount returns the number of local slots occupied by arguments:
// positional plus keyword-only plus the variadic slots.
func (c *CodeObject) ArgSlotCount() int {
	n := int(c.ArgCount) + int(c.KwOnlyCount)
	if c.Flags&CodeFlagVarArgs != 0 {
		n++
	}
	if c.Flags&CodeFlagVarKwArgs != 0 {
		n++
	}
	return n
}

// LocalCount returns the number of local variable slots, arguments included.
func (c *CodeObject) LocalCount() int {
	return len(c.VarNames)
}

// VarName returns the name of a local slot, or a placeholder if the slot is
// out of range.
func (c *CodeObject) VarName(slot int) string {
	if slot >= 0 && slot < len(c.VarNames) {
		return c.VarNames[slot]
	}
	return fmt.Sprintf("<slot %d>", slot)
}

// SlotOf returns the slot index for a variable name, or -1.
func (c *CodeObject) SlotOf(name string) int {
	for i, n := range c.VarNames {
		if n == name {
			return i
		}
	}
	return -1
}

// AddConstant adds a constant to the pool and returns its index.
// If an equal constant already exists, returns the existing index.
func (c *CodeObject) AddConstant(value any) int {
	for i, v := range c.Constants {
		if ast.EqualValues(v, value) {
			return i
		}
	}
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1
}

// GetConstant returns the constant at the given index.
func (c *CodeObject) GetConstant(index int) any {
	return c.Constants[index]
}

// Instructions decodes the code section into a flat instruction slice.
func (c *CodeObject) Instructions() ([]Instruction, error) {
	return Decode(c.Code)
}

// SetInstructions re-packs the code section from an instruction slice.
func (c *CodeObject) SetInstructions(instrs []Instruction) error {
	code, err := Encode(instrs)
	if err != nil {
		return err
	}
	c.Code = code
	return nil
}

// Emit appends one code unit and returns its position.
func (c *CodeObject) Emit(op Opcode, arg int) int {
	pos := len(c.Code) / CodeUnitSize
	c.Code = append(c.Code, byte(op), byte(arg))
	return pos
}

// EmitConstant emits an OpLoadConst for the given value, adding it to the
// pool if not already present.
func (c *CodeObject) EmitConstant(value any) (int, error) {
	idx := c.AddConstant(value)
	if idx > MaxArg {
		return 0, fmt.Errorf("bytecode: constant pool overflow in %s", c.Name)
	}
	return c.Emit(OpLoadConst, idx), nil
}

// EmitJump emits a jump instruction with a placeholder operand.
// Returns the instruction's position for later patching.
func (c *CodeObject) EmitJump(op Opcode) int {
	return c.Emit(op, 0xFF)
}

// PatchJumpTo patches the jump at pos to transfer control to target,
// encoding the operand per the opcode's absolute or relative convention.
func (c *CodeObject) PatchJumpTo(pos, target int) error {
	op := Opcode(c.Code[pos*CodeUnitSize])
	arg := target
	if op.IsRelativeJump() {
		arg = target - (pos + 1)
		if arg < 0 {
			return fmt.Errorf("bytecode: backward target %d for relative jump at %d in %s", target, pos, c.Name)
		}
	}
	if arg < 0 || arg > MaxArg {
		return fmt.Errorf("bytecode: jump operand %d at %d overflows a code unit in %s", arg, pos, c.Name)
	}
	c.Code[pos*CodeUnitSize+1] = byte(arg)
	return nil
}

// PatchJump patches the jump at pos to the current end of code.
func (c *CodeObject) PatchJump(pos int) error {
	return c.PatchJumpTo(pos, len(c.Code)/CodeUnitSize)
}

// CurrentPosition returns the position the next emitted instruction will
// occupy.
func (c *CodeObject) CurrentPosition() int {
	return len(c.Code) / CodeUnitSize
}

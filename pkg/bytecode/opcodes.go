package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop    Opcode = 0x00 // No operation
	OpPop    Opcode = 0x01 // Pop top of stack
	OpDup    Opcode = 0x02 // Duplicate top of stack
	OpRotTwo Opcode = 0x03 // Swap top two stack elements

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpLoadConst Opcode = 0x10 // Push constant from pool: OpLoadConst <index:u8>

	// ========================================================================
	// Local variables (0x20-0x2F)
	// ========================================================================

	OpLoadLocal            Opcode = 0x20 // Push local, checking it is bound: <slot:u8>
	OpLoadLocalUnchecked   Opcode = 0x21 // Push local, presence check elided: <slot:u8>
	OpStoreLocal           Opcode = 0x22 // Pop and store to local: <slot:u8>
	OpDeleteLocal          Opcode = 0x23 // Unbind local, checking it is bound: <slot:u8>
	OpDeleteLocalUnchecked Opcode = 0x24 // Unbind local without the check: <slot:u8>
	OpLoadBindings         Opcode = 0x25 // Push a mapping of all live local bindings

	// ========================================================================
	// Globals (0x30-0x3F)
	// ========================================================================

	OpLoadGlobal Opcode = 0x30 // Push global by name constant: <index:u8>

	// ========================================================================
	// Arithmetic (0x40-0x4F)
	// ========================================================================

	OpAdd Opcode = 0x40 // Pop two, push sum
	OpSub Opcode = 0x41 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x42 // Pop two, push product
	OpDiv Opcode = 0x43 // Pop two, push quotient
	OpMod Opcode = 0x44 // Pop two, push remainder (strings: interpolate)
	OpNeg Opcode = 0x45 // Negate top of stack
	OpNot Opcode = 0x46 // Logical NOT of top of stack

	// ========================================================================
	// Comparison (0x50-0x5F)
	// ========================================================================

	OpEq Opcode = 0x50 // Pop two, push true if equal
	OpNe Opcode = 0x51 // Pop two, push true if not equal
	OpLt Opcode = 0x52 // Pop two, push true if a < b
	OpLe Opcode = 0x53 // Pop two, push true if a <= b
	OpGt Opcode = 0x54 // Pop two, push true if a > b
	OpGe Opcode = 0x55 // Pop two, push true if a >= b

	// ========================================================================
	// Strings, tuples, formatting (0x60-0x6F)
	// ========================================================================

	OpConcat      Opcode = 0x60 // Concatenate top two strings
	OpBuildTuple  Opcode = 0x61 // Pop n values, push tuple: <n:u8>
	OpBuildString Opcode = 0x62 // Pop n strings, push concatenation: <n:u8>
	OpFormatValue Opcode = 0x63 // Format TOS: <flags:u8>, see FormatFlag*
	OpIntrinsic1  Opcode = 0x64 // Apply a one-argument intrinsic: <id:u8>
	OpSubscr      Opcode = 0x65 // Pop index and container, push element

	// ========================================================================
	// Iteration (0x70-0x7F)
	// ========================================================================

	OpGetIter Opcode = 0x70 // Pop iterable, push iterator

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJump           Opcode = 0x80 // Unconditional jump to absolute position: <target:u8>
	OpJumpForward    Opcode = 0x81 // Unconditional forward jump: <delta:u8>
	OpPopJumpIfFalse Opcode = 0x82 // Pop, jump to absolute position if falsy: <target:u8>
	OpPopJumpIfTrue  Opcode = 0x83 // Pop, jump to absolute position if truthy: <target:u8>
	OpForIter        Opcode = 0x84 // Advance TOS iterator; on exhaustion pop and jump forward: <delta:u8>

	// ========================================================================
	// Calls (0x90-0x9F)
	// ========================================================================

	OpCall Opcode = 0x90 // Call function with argc args: <argc:u8>

	// ========================================================================
	// Termination (0xF0-0xFD)
	// ========================================================================

	OpReturn Opcode = 0xF0 // Return top of stack
	OpRaise  Opcode = 0xF1 // Raise top of stack as an error

	// OpExtendedArg widens the next instruction's operand by one byte.
	// It must immediately precede the instruction it extends and may be
	// chained. It is never a branch target.
	OpExtendedArg Opcode = 0xFE
)

// FormatValue operand flags. The low two bits select a conversion; the
// spec bit indicates a format spec string sits on top of the value.
const (
	FormatFlagConvNone  = 0x0
	FormatFlagConvStr   = 0x1
	FormatFlagConvRepr  = 0x2
	FormatFlagConvAscii = 0x3
	FormatFlagConvMask  = 0x3
	FormatFlagHasSpec   = 0x4
)

// OperandKind describes how an instruction's operand is interpreted.
type OperandKind uint8

const (
	OperandNone    OperandKind = iota // operand unused
	OperandConst                      // constant pool index
	OperandLocal                      // local variable slot
	OperandJumpAbs                    // absolute code-unit position
	OperandJumpRel                    // forward delta from the next code unit
	OperandCount                      // element/argument count
	OperandFlags                      // bit flags
	OperandOther                      // opcode-specific
)

// OpcodeInfo provides metadata about each opcode for analysis, the SSA
// arity table, and disassembly.
type OpcodeInfo struct {
	Name      string      // Human-readable name
	StackPop  int         // How many values popped from stack (-1 = variable)
	StackPush int         // How many values pushed to stack
	Operand   OperandKind // How the operand is interpreted
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:    {"NOP", 0, 0, OperandNone},
	OpPop:    {"POP", 1, 0, OperandNone},
	OpDup:    {"DUP", 1, 2, OperandNone},
	OpRotTwo: {"ROT_TWO", 2, 2, OperandNone},

	// Constants
	OpLoadConst: {"LOAD_CONST", 0, 1, OperandConst},

	// Local variables
	OpLoadLocal:            {"LOAD_LOCAL", 0, 1, OperandLocal},
	OpLoadLocalUnchecked:   {"LOAD_LOCAL_UNCHECKED", 0, 1, OperandLocal},
	OpStoreLocal:           {"STORE_LOCAL", 1, 0, OperandLocal},
	OpDeleteLocal:          {"DELETE_LOCAL", 0, 0, OperandLocal},
	OpDeleteLocalUnchecked: {"DELETE_LOCAL_UNCHECKED", 0, 0, OperandLocal},
	OpLoadBindings:         {"LOAD_BINDINGS", 0, 1, OperandNone},

	// Globals
	OpLoadGlobal: {"LOAD_GLOBAL", 0, 1, OperandConst},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, OperandNone},
	OpSub: {"SUB", 2, 1, OperandNone},
	OpMul: {"MUL", 2, 1, OperandNone},
	OpDiv: {"DIV", 2, 1, OperandNone},
	OpMod: {"MOD", 2, 1, OperandNone},
	OpNeg: {"NEG", 1, 1, OperandNone},
	OpNot: {"NOT", 1, 1, OperandNone},

	// Comparison
	OpEq: {"EQ", 2, 1, OperandNone},
	OpNe: {"NE", 2, 1, OperandNone},
	OpLt: {"LT", 2, 1, OperandNone},
	OpLe: {"LE", 2, 1, OperandNone},
	OpGt: {"GT", 2, 1, OperandNone},
	OpGe: {"GE", 2, 1, OperandNone},

	// Strings, tuples, formatting
	OpConcat:      {"CONCAT", 2, 1, OperandNone},
	OpBuildTuple:  {"BUILD_TUPLE", -1, 1, OperandCount},
	OpBuildString: {"BUILD_STRING", -1, 1, OperandCount},
	OpFormatValue: {"FORMAT_VALUE", -1, 1, OperandFlags},
	OpIntrinsic1:  {"INTRINSIC_1", 1, 1, OperandOther},
	OpSubscr:      {"SUBSCR", 2, 1, OperandNone},

	// Iteration
	OpGetIter: {"GET_ITER", 1, 1, OperandNone},

	// Control flow
	OpJump:           {"JUMP", 0, 0, OperandJumpAbs},
	OpJumpForward:    {"JUMP_FORWARD", 0, 0, OperandJumpRel},
	OpPopJumpIfFalse: {"POP_JUMP_IF_FALSE", 1, 0, OperandJumpAbs},
	OpPopJumpIfTrue:  {"POP_JUMP_IF_TRUE", 1, 0, OperandJumpAbs},
	OpForIter:        {"FOR_ITER", 1, 2, OperandJumpRel},

	// Calls
	OpCall: {"CALL", -1, 1, OperandCount},

	// Termination
	OpReturn: {"RETURN", 1, 0, OperandNone},
	OpRaise:  {"RAISE", 1, 0, OperandNone},

	OpExtendedArg: {"EXTENDED_ARG", 0, 0, OperandOther},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsUnconditionalJump returns true for jumps that always transfer control.
func (op Opcode) IsUnconditionalJump() bool {
	return op == OpJump || op == OpJumpForward
}

// IsConditionalBranch returns true for instructions with both a fallthrough
// and a taken successor.
func (op Opcode) IsConditionalBranch() bool {
	return op == OpPopJumpIfFalse || op == OpPopJumpIfTrue || op == OpForIter
}

// IsJump returns true if this opcode transfers control via its operand.
func (op Opcode) IsJump() bool {
	return op.IsUnconditionalJump() || op.IsConditionalBranch()
}

// IsRelativeJump returns true if the operand is a forward delta rather than
// an absolute position.
func (op Opcode) IsRelativeJump() bool {
	return GetOpcodeInfo(op).Operand == OperandJumpRel
}

// IsTerminator returns true if this opcode ends execution with no
// fallthrough successor.
func (op Opcode) IsTerminator() bool {
	return op == OpReturn || op == OpRaise
}

// IsLocalRead returns true for instructions that read a local slot.
func (op Opcode) IsLocalRead() bool {
	return op == OpLoadLocal || op == OpLoadLocalUnchecked
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

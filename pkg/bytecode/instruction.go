package bytecode

import "fmt"

// CodeUnitSize is the width in bytes of one packed code unit: one opcode
// byte followed by one operand byte. All positions in the compiler core are
// code-unit indices, not byte offsets.
const CodeUnitSize = 2

// MaxArg is the largest operand representable without an EXTENDED_ARG
// prefix.
const MaxArg = 0xFF

// Instruction is one decoded code unit. Pos is the instruction's index in
// the flat stream. Passes rewrite Op and Arg in place and re-pack the
// stream when done; Pos is fixed at decode time.
type Instruction struct {
	Op  Opcode
	Arg int
	Pos int
}

// String formats the instruction for diagnostics.
func (in Instruction) String() string {
	if GetOpcodeInfo(in.Op).Operand == OperandNone {
		return fmt.Sprintf("%4d %s", in.Pos, in.Op)
	}
	return fmt.Sprintf("%4d %s %d", in.Pos, in.Op, in.Arg)
}

// Decode unpacks a code section into a flat instruction slice, one element
// per code unit. EXTENDED_ARG prefixes appear as their own instructions;
// use Fetch to read an instruction with prefixes merged.
func Decode(code []byte) ([]Instruction, error) {
	if len(code)%CodeUnitSize != 0 {
		return nil, fmt.Errorf("bytecode: code section length %d is not a multiple of the code unit size", len(code))
	}
	instrs := make([]Instruction, len(code)/CodeUnitSize)
	for i := range instrs {
		instrs[i] = Instruction{
			Op:  Opcode(code[i*CodeUnitSize]),
			Arg: int(code[i*CodeUnitSize+1]),
			Pos: i,
		}
	}
	return instrs, nil
}

// Encode packs a flat instruction slice back into a code section. Operands
// must already fit in one byte; widening requires explicit EXTENDED_ARG
// instructions in the slice.
func Encode(instrs []Instruction) ([]byte, error) {
	code := make([]byte, 0, len(instrs)*CodeUnitSize)
	for _, in := range instrs {
		if in.Arg < 0 || in.Arg > MaxArg {
			return nil, fmt.Errorf("bytecode: operand %d of %s at %d does not fit in a code unit", in.Arg, in.Op, in.Pos)
		}
		code = append(code, byte(in.Op), byte(in.Arg))
	}
	return code, nil
}

// Fetch reads the instruction at pos, merging any EXTENDED_ARG prefixes
// into its operand. The returned instruction's Pos is the position of the
// final (non-prefix) code unit, matching where a branch to the instruction
// must land. The second return is the position of the next instruction.
func Fetch(instrs []Instruction, pos int) (Instruction, int) {
	arg := 0
	i := pos
	for i < len(instrs) && instrs[i].Op == OpExtendedArg {
		arg = arg<<8 | instrs[i].Arg
		i++
	}
	if i >= len(instrs) {
		// Trailing prefix with no instruction; report the last unit as-is.
		last := instrs[len(instrs)-1]
		return last, len(instrs)
	}
	in := instrs[i]
	in.Arg = arg<<8 | in.Arg
	return in, i + 1
}

// JumpTarget resolves the destination position of a jump instruction.
// Relative jumps count forward from the instruction following the branch;
// absolute jumps encode the target position directly.
func JumpTarget(in Instruction) int {
	if in.Op.IsRelativeJump() {
		return in.Pos + 1 + in.Arg
	}
	return in.Arg
}

// ContainsOpcode reports whether any instruction in the stream uses the
// given opcode (EXTENDED_ARG prefixes included, since they appear as their
// own instructions).
func ContainsOpcode(instrs []Instruction, op Opcode) bool {
	for _, in := range instrs {
		if in.Op == op {
			return true
		}
	}
	return false
}

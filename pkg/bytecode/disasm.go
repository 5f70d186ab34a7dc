package bytecode

import (
	"fmt"
	"strings"

	"github.com/chazu/altair/pkg/ast"
)

// Disassemble returns a human-readable bytecode listing for the code object.
func (c *CodeObject) Disassemble() string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; === %s ===\n", c.Name))
	sb.WriteString(fmt.Sprintf("; Altair Bytecode v%d\n", c.Version))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", c.Flags))
	if c.Flags&CodeFlagVarArgs != 0 {
		sb.WriteString(" [VARARGS]")
	}
	if c.Flags&CodeFlagVarKwArgs != 0 {
		sb.WriteString(" [VARKWARGS]")
	}
	if c.Flags&CodeFlagOptimized != 0 {
		sb.WriteString(" [OPTIMIZED]")
	}
	sb.WriteString("\n")

	if n := c.ArgSlotCount(); n > 0 {
		sb.WriteString(fmt.Sprintf("; Arguments (%d): ", n))
		for i := 0; i < n && i < len(c.VarNames); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.VarNames[i])
		}
		sb.WriteString("\n")
	}
	if c.LocalCount() > c.ArgSlotCount() {
		sb.WriteString(fmt.Sprintf("; Locals: %d slots\n", c.LocalCount()))
	}
	sb.WriteString("\n")

	// Constants
	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.Constants {
			display := ast.ReprValue(v)
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			display = strings.ReplaceAll(display, "\n", "\\n")
			display = strings.ReplaceAll(display, "\t", "\\t")
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
		sb.WriteString("\n")
	}

	// Code section
	sb.WriteString("; Code:\n")
	instrs, err := c.Instructions()
	if err != nil {
		sb.WriteString(fmt.Sprintf("; <malformed code section: %v>\n", err))
		return sb.String()
	}
	for pos := 0; pos < len(instrs); {
		in, next := Fetch(instrs, pos)
		sb.WriteString(fmt.Sprintf("%04d  %s\n", pos, c.disassembleInstruction(in)))
		pos = next
	}
	return sb.String()
}

// disassembleInstruction formats a single fetched instruction.
func (c *CodeObject) disassembleInstruction(in Instruction) string {
	info := GetOpcodeInfo(in.Op)
	switch info.Operand {
	case OperandNone:
		return info.Name
	case OperandConst:
		if in.Arg < len(c.Constants) {
			return fmt.Sprintf("%-22s %d (%s)", info.Name, in.Arg, ast.ReprValue(c.GetConstant(in.Arg)))
		}
		return fmt.Sprintf("%-22s %d (<bad const>)", info.Name, in.Arg)
	case OperandLocal:
		return fmt.Sprintf("%-22s %d (%s)", info.Name, in.Arg, c.VarName(in.Arg))
	case OperandJumpAbs:
		return fmt.Sprintf("%-22s %d (to %d)", info.Name, in.Arg, in.Arg)
	case OperandJumpRel:
		return fmt.Sprintf("%-22s %d (to %d)", info.Name, in.Arg, JumpTarget(in))
	case OperandFlags:
		return fmt.Sprintf("%-22s 0x%02X", info.Name, in.Arg)
	default:
		return fmt.Sprintf("%-22s %d", info.Name, in.Arg)
	}
}

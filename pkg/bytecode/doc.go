// Package bytecode defines the packed stack-machine instruction format at
// the center of the Altair compiler core, and the code generator that
// produces it from an AST.
//
// The format is designed for:
//   - Compact representation (fixed 2-byte code units)
//   - Fast decoding (one opcode byte, one operand byte, EXTENDED_ARG prefix
//     for wider operands)
//   - Easy serialization (canonical CBOR wire format, "ALBC")
//
// # Architecture Overview
//
// The compiler core consists of several components:
//
//   - Opcodes: ~40 stack-based instructions covering arithmetic, control
//     flow, local variable access, string formatting, and calls. Local
//     reads and deletes come in checked and unchecked variants; the
//     dataflow pass in package cfg rewrites checked reads to unchecked
//     ones where a runtime presence check is provably redundant.
//
//   - CodeObject: a compiled unit containing code units, a constant pool,
//     argument metadata, and the local-variable name table. Code objects
//     can be serialized with Marshal/Unmarshal for storage or transport.
//
//   - Compiler: converts an ast.Function to a code object. Optimization is
//     the job of the astopt and cfg packages; the compiler is a direct
//     syntax-directed translation.
//
// Positions throughout the core are code-unit indices, never byte offsets.
// Relative jumps count forward from the instruction following the branch;
// absolute jumps encode target positions directly.
//
// The consuming interpreter is out of scope here; opcode numbering is a
// private contract between this package and that interpreter.
package bytecode

// Package ssa lowers optimized bytecode to a static single assignment form
// with explicit value operands and explicit control flow between blocks.
// Phi nodes are inserted lazily at the first multi-predecessor read of a
// variable with no block-local definition, using a memoized recursive
// predecessor lookup; no dominance frontier is computed.
package ssa

import (
	"fmt"
	"strings"

	"github.com/chazu/altair/pkg/bytecode"
	"github.com/chazu/altair/pkg/cfg"
)

// ValueKind discriminates SSA value nodes.
type ValueKind int

const (
	// KindInsn is a value translated from a bytecode instruction.
	KindInsn ValueKind = iota

	// KindLoadArg is an argument value injected into the entry block.
	KindLoadArg

	// KindPhi merges one value per predecessor at a join point.
	KindPhi

	// KindUndef marks a read with no definition on some path.
	KindUndef

	// KindBranch is a synthesized unconditional branch making implicit
	// fallthrough explicit.
	KindBranch
)

// Value is one SSA value. Values are immutable once constructed except for
// phi operand lists, which are appended to as predecessors are resolved.
// Opcode and operand are copied from the source instruction rather than
// referencing it, so later bytecode rewrites cannot alias into the SSA
// graph.
type Value struct {
	ID   int
	Kind ValueKind
	Op   bytecode.Opcode // KindInsn only
	Arg  int             // copied operand, KindInsn only
	Slot int             // argument slot, KindLoadArg only
	Name string          // argument name, KindLoadArg only

	Args    []*Value
	Targets []*Block
}

func (v *Value) output() string {
	return fmt.Sprintf("v%d", v.ID)
}

func (v *Value) opname() string {
	switch v.Kind {
	case KindLoadArg:
		return fmt.Sprintf("LoadArg<%d; %s>", v.Slot, v.Name)
	case KindPhi:
		return "Phi"
	case KindUndef:
		return "Undef"
	case KindBranch:
		return "Branch"
	default:
		info := bytecode.GetOpcodeInfo(v.Op)
		if info.Operand == bytecode.OperandNone || v.Op.IsJump() {
			return info.Name
		}
		return fmt.Sprintf("%s<%d>", info.Name, v.Arg)
	}
}

// String renders the value in dump form, e.g. "v3 = Phi v1 v2".
func (v *Value) String() string {
	var sb strings.Builder
	sb.WriteString(v.output())
	sb.WriteString(" = ")
	sb.WriteString(v.opname())
	if len(v.Targets) > 0 {
		sb.WriteByte('<')
		for i, target := range v.Targets {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(target.Name())
		}
		sb.WriteByte('>')
	}
	for _, arg := range v.Args {
		sb.WriteByte(' ')
		sb.WriteString(arg.output())
	}
	return sb.String()
}

// Block is one SSA basic block, keyed by the source block it lowers.
type Block struct {
	ID     int
	Values []*Value
}

// Name returns the block's dump label.
func (b *Block) Name() string {
	return fmt.Sprintf("bb%d", b.ID)
}

func (b *Block) emit(v *Value) {
	b.Values = append(b.Values, v)
}

// Graph is the SSA form of one code unit. Blocks appear in source stream
// order.
type Graph struct {
	Blocks []*Block
}

// String dumps every block and its values.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, b := range g.Blocks {
		sb.WriteString(b.Name())
		sb.WriteString(":\n")
		for _, v := range b.Values {
			sb.WriteString("  ")
			sb.WriteString(v.String())
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Builder constructs SSA graphs. Value and block ids are scoped to the
// builder, keeping output deterministic across independent compilations.
type Builder struct {
	nextValue int
	nextBlock int
}

// NewBuilder returns a builder with fresh id counters.
func NewBuilder() *Builder {
	return &Builder{}
}

func (bld *Builder) newValue(kind ValueKind) *Value {
	v := &Value{ID: bld.nextValue, Kind: kind}
	bld.nextValue++
	return v
}

func (bld *Builder) newBlock() *Block {
	b := &Block{ID: bld.nextBlock}
	bld.nextBlock++
	return b
}

// Build lowers a code object to SSA. It constructs its own control-flow
// graph from the instruction stream, so it can run on either raw or
// dataflow-optimized code. Structural impossibilities (stack underflow,
// malformed streams) return an error; use before definition does not — it
// becomes an explicit Undef value.
func (bld *Builder) Build(code *bytecode.CodeObject) (*Graph, error) {
	instrs, err := code.Instructions()
	if err != nil {
		return nil, err
	}
	g, err := cfg.BuildBlocks(instrs)
	if err != nil {
		return nil, err
	}

	graph := &Graph{}
	byBlock := make(map[*cfg.BasicBlock]*Block, len(g.Blocks))
	blockFor := func(b *cfg.BasicBlock) *Block {
		if sb, ok := byBlock[b]; ok {
			return sb
		}
		sb := bld.newBlock()
		byBlock[b] = sb
		graph.Blocks = append(graph.Blocks, sb)
		return sb
	}
	// Code generators can leave dead blocks behind a terminator; only
	// blocks reachable from the entry carry meaning. Materialize the
	// reachable ones in stream order so ids and the dump are stable.
	reachable := make(map[*cfg.BasicBlock]bool)
	var mark func(*cfg.BasicBlock)
	mark = func(b *cfg.BasicBlock) {
		if reachable[b] {
			return
		}
		reachable[b] = true
		for _, succ := range b.Succs {
			mark(succ)
		}
	}
	mark(g.Entry())
	for _, b := range g.Blocks {
		if reachable[b] {
			blockFor(b)
		}
	}

	// currentDef tracks the last SSA value written to each slot per block.
	currentDef := make(map[int]map[*cfg.BasicBlock]*Value)
	writeVariable := func(slot int, b *cfg.BasicBlock, v *Value) {
		defs := currentDef[slot]
		if defs == nil {
			defs = make(map[*cfg.BasicBlock]*Value)
			currentDef[slot] = defs
		}
		defs[b] = v
	}
	deleteVariable := func(slot int, b *cfg.BasicBlock) {
		if defs := currentDef[slot]; defs != nil {
			delete(defs, b)
		}
	}

	// Arguments are assigned by the calling convention before the entry
	// block runs. They live in a virtual pre-entry definition rather than
	// the entry block's own map, so a back edge into the entry block still
	// merges the incoming argument with the loop-carried value.
	entry := g.Entry()
	entrySSA := blockFor(entry)
	argValues := make([]*Value, code.ArgSlotCount())
	for slot := range argValues {
		v := bld.newValue(KindLoadArg)
		v.Slot = slot
		v.Name = code.VarName(slot)
		entrySSA.emit(v)
		argValues[slot] = v
	}
	entryUndefs := make(map[int]*Value)
	preEntryDef := func(slot int) *Value {
		if slot < len(argValues) {
			return argValues[slot]
		}
		// A genuine use before definition, preserved as data for
		// downstream diagnostics.
		if u, ok := entryUndefs[slot]; ok {
			return u
		}
		u := bld.newValue(KindUndef)
		entrySSA.emit(u)
		entryUndefs[slot] = u
		return u
	}

	var readVariable func(slot int, b *cfg.BasicBlock) *Value
	readVariable = func(slot int, b *cfg.BasicBlock) *Value {
		if v, ok := currentDef[slot][b]; ok {
			return v
		}
		if b == entry {
			if len(b.Preds) == 0 {
				return preEntryDef(slot)
			}
			phi := bld.newValue(KindPhi)
			blockFor(b).emit(phi)
			writeVariable(slot, b, phi)
			phi.Args = append(phi.Args, preEntryDef(slot))
			for _, pred := range b.Preds {
				phi.Args = append(phi.Args, readVariable(slot, pred))
			}
			return phi
		}
		switch len(b.Preds) {
		case 1:
			return readVariable(slot, b.Preds[0])
		case 0:
			// Unreachable block; nothing flows in.
			u := bld.newValue(KindUndef)
			blockFor(b).emit(u)
			writeVariable(slot, b, u)
			return u
		default:
			// Create the phi before recursing so a loop header reading
			// its own loop-carried variable finds the incomplete phi
			// instead of recursing forever.
			phi := bld.newValue(KindPhi)
			blockFor(b).emit(phi)
			writeVariable(slot, b, phi)
			for _, pred := range b.Preds {
				phi.Args = append(phi.Args, readVariable(slot, pred))
			}
			return phi
		}
	}

	// Values left on a block's stack at a branch flow into its successors
	// (the iterator loop materializes its element this way). The first
	// writer wins; by stream order that is the forward edge, and a back
	// edge reaching an already-translated block carries nothing new.
	pending := make(map[*cfg.BasicBlock][]*Value)
	propagate := func(succ *cfg.BasicBlock, stack []*Value) {
		if len(stack) == 0 {
			return
		}
		if _, ok := pending[succ]; ok {
			return
		}
		pending[succ] = append([]*Value(nil), stack...)
	}

	for _, b := range g.Blocks {
		if !reachable[b] {
			continue
		}
		sb := blockFor(b)
		stack := append([]*Value(nil), pending[b]...)
		pop := func(n int, at int) ([]*Value, error) {
			if len(stack) < n {
				return nil, fmt.Errorf("ssa: operand stack underflow at position %d in %s", at, code.Name)
			}
			operands := make([]*Value, n)
			copy(operands, stack[len(stack)-n:])
			stack = stack[:len(stack)-n]
			return operands, nil
		}

		terminated := false
		for pos := 0; pos < len(b.Instrs) && !terminated; {
			var in bytecode.Instruction
			in, pos = bytecode.Fetch(b.Instrs, pos)

			switch {
			case in.Op == bytecode.OpNop:
				// Nothing.

			case in.Op == bytecode.OpPop:
				if _, err := pop(1, in.Pos); err != nil {
					return nil, err
				}

			case in.Op == bytecode.OpDup:
				ops, err := pop(1, in.Pos)
				if err != nil {
					return nil, err
				}
				stack = append(stack, ops[0], ops[0])

			case in.Op == bytecode.OpRotTwo:
				ops, err := pop(2, in.Pos)
				if err != nil {
					return nil, err
				}
				stack = append(stack, ops[1], ops[0])

			case in.Op == bytecode.OpStoreLocal:
				ops, err := pop(1, in.Pos)
				if err != nil {
					return nil, err
				}
				writeVariable(in.Arg, b, ops[0])

			case in.Op == bytecode.OpDeleteLocal || in.Op == bytecode.OpDeleteLocalUnchecked:
				deleteVariable(in.Arg, b)

			case in.Op.IsLocalRead():
				stack = append(stack, readVariable(in.Arg, b))

			case in.Op.IsJump():
				nops := 0
				switch in.Op {
				case bytecode.OpPopJumpIfFalse, bytecode.OpPopJumpIfTrue:
					nops = 1
				case bytecode.OpForIter:
					nops = 1 // the iterator
				}
				ops, err := pop(nops, in.Pos)
				if err != nil {
					return nil, err
				}
				v := bld.newValue(KindInsn)
				v.Op, v.Arg, v.Args = in.Op, in.Arg, ops
				for _, succ := range b.Succs {
					v.Targets = append(v.Targets, blockFor(succ))
				}
				sb.emit(v)
				if in.Op == bytecode.OpForIter {
					// The fallthrough path sees the yielded element on
					// top; the exhaustion path sees neither it nor the
					// iterator.
					propagate(b.Succs[0], append(append([]*Value(nil), stack...), v))
					propagate(b.Succs[1], stack)
				} else {
					for _, succ := range b.Succs {
						propagate(succ, stack)
					}
				}

			case in.Op.IsTerminator():
				ops, err := pop(1, in.Pos)
				if err != nil {
					return nil, err
				}
				v := bld.newValue(KindInsn)
				v.Op, v.Args = in.Op, ops
				sb.emit(v)
				// Code generators may leave dead code after a
				// terminator; stop translating the block early.
				terminated = true

			default:
				info := bytecode.GetOpcodeInfo(in.Op)
				nops := info.StackPop
				if nops < 0 {
					nops = variableArity(in)
				}
				ops, err := pop(nops, in.Pos)
				if err != nil {
					return nil, err
				}
				v := bld.newValue(KindInsn)
				v.Op, v.Arg, v.Args = in.Op, in.Arg, ops
				sb.emit(v)
				if info.StackPush >= 1 {
					stack = append(stack, v)
				}
			}
		}

		// Make control flow fully explicit: a block that did not end in a
		// branch or terminator gets a synthesized single-target branch.
		if !terminated {
			last := b.Last()
			if !last.Op.IsJump() && !last.Op.IsTerminator() {
				if len(b.Succs) != 1 {
					return nil, fmt.Errorf("ssa: block at %d has %d successors without a branch in %s", b.Start, len(b.Succs), code.Name)
				}
				v := bld.newValue(KindBranch)
				v.Targets = []*Block{blockFor(b.Succs[0])}
				sb.emit(v)
				propagate(b.Succs[0], stack)
			}
		}
	}
	return graph, nil
}

// variableArity resolves the pop count of variable-arity instructions.
func variableArity(in bytecode.Instruction) int {
	switch in.Op {
	case bytecode.OpCall:
		return in.Arg + 1 // callee plus arguments
	case bytecode.OpBuildTuple, bytecode.OpBuildString:
		return in.Arg
	case bytecode.OpFormatValue:
		if in.Arg&bytecode.FormatFlagHasSpec != 0 {
			return 2 // value and format spec
		}
		return 1
	default:
		return 0
	}
}

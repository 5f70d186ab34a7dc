package cfg

import (
	"sort"

	"github.com/chazu/altair/pkg/bytecode"
)

// OptimizeLoads runs the definite-assignment dataflow pass over the code
// object and rewrites local reads that are provably assigned on every path
// to their unchecked variants. Reads that may happen before assignment get
// an explicit unbind synthesized into the function prelude so the runtime
// raises a proper unbound-variable error instead of reading stale data.
//
// The pass never fails: when it cannot safely prove anything (reflective
// access to the local bindings, EXTENDED_ARG operands, or an absolute jump
// whose operand would overflow after prelude insertion) it leaves the code
// object exactly as it was.
func OptimizeLoads(code *bytecode.CodeObject) {
	instrs, err := code.Instructions()
	if err != nil || len(instrs) == 0 {
		return
	}
	// Unchecked reads would break introspection of which variables are
	// genuinely bound.
	if bytecode.ContainsOpcode(instrs, bytecode.OpLoadBindings) {
		return
	}
	// Extended operands would need re-widening after rewrites; give up on
	// the whole unit rather than produce invalid code.
	if bytecode.ContainsOpcode(instrs, bytecode.OpExtendedArg) {
		return
	}
	// Deserialized units can address slots past the declared local table;
	// those would index the dataflow sets out of range.
	if !localSlotsInRange(instrs, code.LocalCount()) {
		return
	}
	g, err := BuildBlocks(instrs)
	if err != nil {
		return
	}

	nlocals := code.LocalCount()
	argSlots := code.ArgSlotCount()

	// Entry state: argument slots are assigned by the calling convention,
	// everything else starts unassigned. Only an explicit delete can
	// un-assign an argument.
	argsAssigned := newBitset(nlocals)
	for i := 0; i < argSlots; i++ {
		argsAssigned.set(i)
	}

	// Per-block exit states start at top so the AND-meet only ever
	// removes bits across iterations.
	assignedOut := make([]bitset, len(g.Blocks))
	for i := range assignedOut {
		assignedOut[i] = fullBitset(nlocals)
	}

	conditionallyAssigned := make(map[int]bool)

	processBlock := func(b *BasicBlock, modify bool) bool {
		var assigned bitset
		if len(b.Preds) == 0 {
			assigned = argsAssigned.clone()
		} else {
			assigned = fullBitset(nlocals)
			for _, pred := range b.Preds {
				assigned.and(assignedOut[pred.ID])
			}
		}
		for i := range b.Instrs {
			in := &b.Instrs[i]
			switch in.Op {
			case bytecode.OpLoadLocal:
				if !modify {
					break
				}
				if assigned.has(in.Arg) {
					in.Op = bytecode.OpLoadLocalUnchecked
				} else if in.Arg >= argSlots {
					conditionallyAssigned[in.Arg] = true
				}
			case bytecode.OpStoreLocal:
				assigned.set(in.Arg)
			case bytecode.OpDeleteLocal, bytecode.OpDeleteLocalUnchecked:
				assigned.clear(in.Arg)
			}
		}
		if assigned.eq(assignedOut[b.ID]) {
			return false
		}
		assignedOut[b.ID] = assigned
		return true
	}

	// Iterate to a fixed point; the meet is a monotone AND over a finite
	// lattice, so this terminates in at most blocks*slots passes.
	for changed := true; changed; {
		changed = false
		for _, b := range g.Blocks {
			if processBlock(b, false) {
				changed = true
			}
		}
	}

	// One final pass re-derives each block's entry state from the
	// converged fixed point and mutates the instructions. Re-deriving is
	// idempotent on the bitsets, so the converged states stay valid while
	// opcodes change underneath.
	for _, b := range g.Blocks {
		processBlock(b, true)
	}

	instrs = synthesizePrelude(code, instrs, conditionallyAssigned)
	if instrs == nil {
		return
	}
	if code.SetInstructions(instrs) == nil {
		code.Flags |= bytecode.CodeFlagOptimized
	}
}

// synthesizePrelude prepends one explicit unbind per conditionally assigned
// slot and shifts absolute jump operands by the prelude length. Returns nil
// when an operand would overflow its code unit, which aborts the whole
// pass.
func synthesizePrelude(code *bytecode.CodeObject, instrs []bytecode.Instruction, slots map[int]bool) []bytecode.Instruction {
	if len(slots) == 0 {
		return instrs
	}

	// Stable order: sorted by variable name. This affects only internal
	// bookkeeping, not observable behavior.
	names := make([]string, 0, len(slots))
	for slot := range slots {
		names = append(names, code.VarName(slot))
	}
	sort.Strings(names)

	prelude := make([]bytecode.Instruction, len(names))
	for i, name := range names {
		prelude[i] = bytecode.Instruction{
			Op:  bytecode.OpDeleteLocalUnchecked,
			Arg: code.SlotOf(name),
			Pos: i,
		}
	}

	shift := len(prelude)
	out := make([]bytecode.Instruction, 0, len(prelude)+len(instrs))
	out = append(out, prelude...)
	for _, in := range instrs {
		if bytecode.GetOpcodeInfo(in.Op).Operand == bytecode.OperandJumpAbs {
			in.Arg += shift
			if in.Arg > bytecode.MaxArg {
				return nil
			}
		}
		in.Pos += shift
		out = append(out, in)
	}
	return out
}

// localSlotsInRange reports whether every local-operand instruction
// addresses a declared slot.
func localSlotsInRange(instrs []bytecode.Instruction, nlocals int) bool {
	for _, in := range instrs {
		if bytecode.GetOpcodeInfo(in.Op).Operand == bytecode.OperandLocal && in.Arg >= nlocals {
			return false
		}
	}
	return true
}

// OptimizeStores replaces stores to local slots that are never read or
// deleted with plain pops; the stored value is dead. Skipped entirely when
// the unit reads the local bindings reflectively, since eliding the store
// would change what the bindings contain.
func OptimizeStores(code *bytecode.CodeObject) {
	instrs, err := code.Instructions()
	if err != nil {
		return
	}
	if bytecode.ContainsOpcode(instrs, bytecode.OpLoadBindings) {
		return
	}
	if bytecode.ContainsOpcode(instrs, bytecode.OpExtendedArg) {
		return
	}
	if !localSlotsInRange(instrs, code.LocalCount()) {
		return
	}

	used := make(map[int]bool)
	for _, in := range instrs {
		switch in.Op {
		case bytecode.OpLoadLocal, bytecode.OpLoadLocalUnchecked,
			bytecode.OpDeleteLocal, bytecode.OpDeleteLocalUnchecked:
			used[in.Arg] = true
		}
	}

	rewrote := false
	for i, in := range instrs {
		if in.Op == bytecode.OpStoreLocal && !used[in.Arg] {
			instrs[i].Op = bytecode.OpPop
			instrs[i].Arg = 0
			rewrote = true
		}
	}
	if rewrote {
		code.SetInstructions(instrs)
	}
}

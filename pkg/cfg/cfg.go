// Package cfg partitions flat instruction streams into basic blocks and
// runs the definite-assignment dataflow pass that rewrites checked local
// reads to their unchecked variants.
package cfg

import (
	"fmt"
	"sort"

	"github.com/chazu/altair/pkg/bytecode"
)

// BasicBlock is a maximal straight-line run of instructions with one entry
// point and one exit. Blocks own contiguous, non-overlapping slices of the
// instruction stream; the slices partition the stream exactly.
type BasicBlock struct {
	ID    int
	Start int // position of the first instruction
	End   int // position one past the last instruction

	// Instrs aliases the underlying stream; mutating an element mutates
	// the stream.
	Instrs []bytecode.Instruction

	// Succs is ordered: for conditional branches, [fallthrough, taken];
	// for unconditional jumps, [target]; empty for terminators.
	Succs []*BasicBlock

	// Preds is sorted by block start position and duplicate-free.
	Preds []*BasicBlock
}

// Last returns the block's final instruction with EXTENDED_ARG prefixes
// merged.
func (b *BasicBlock) Last() bytecode.Instruction {
	var in bytecode.Instruction
	for pos := 0; pos < len(b.Instrs); {
		in, pos = bytecode.Fetch(b.Instrs, pos)
	}
	return in
}

// Graph is the control-flow graph of one code unit.
type Graph struct {
	Blocks  []*BasicBlock // in stream order
	byStart map[int]*BasicBlock
}

// Entry returns the block starting at position 0.
func (g *Graph) Entry() *BasicBlock {
	return g.Blocks[0]
}

// BlockAt returns the block starting at the given position, or nil.
func (g *Graph) BlockAt(start int) *BasicBlock {
	return g.byStart[start]
}

// BuildBlocks partitions an instruction stream into maximal basic blocks
// and links successor/predecessor edges. It returns an error for
// structurally impossible streams (jump targets out of bounds, a block
// boundary splitting an EXTENDED_ARG prefix from its instruction, or a
// final block that falls off the end of the stream); such errors indicate
// an upstream code generator bug.
func BuildBlocks(instrs []bytecode.Instruction) (*Graph, error) {
	if len(instrs) == 0 {
		return nil, fmt.Errorf("cfg: empty instruction stream")
	}

	// Seed block starts: entry, every branch target, and the fallthrough
	// successor of every branch and terminator.
	startSet := map[int]bool{0: true}
	for pos := 0; pos < len(instrs); {
		in, next := bytecode.Fetch(instrs, pos)
		switch {
		case in.Op.IsJump():
			target := bytecode.JumpTarget(in)
			if target < 0 || target >= len(instrs) {
				return nil, fmt.Errorf("cfg: jump at %d targets %d, outside stream of %d units", in.Pos, target, len(instrs))
			}
			startSet[target] = true
			if next < len(instrs) {
				startSet[next] = true
			}
		case in.Op.IsTerminator():
			if next < len(instrs) {
				startSet[next] = true
			}
		}
		pos = next
	}

	// A start must never split an EXTENDED_ARG prefix from the
	// instruction it widens.
	for start := range startSet {
		if start > 0 && instrs[start-1].Op == bytecode.OpExtendedArg {
			return nil, fmt.Errorf("cfg: block start %d splits an EXTENDED_ARG prefix", start)
		}
	}

	starts := make([]int, 0, len(startSet))
	for start := range startSet {
		starts = append(starts, start)
	}
	sort.Ints(starts)

	g := &Graph{byStart: make(map[int]*BasicBlock, len(starts))}
	for i, start := range starts {
		end := len(instrs)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		b := &BasicBlock{
			ID:     i,
			Start:  start,
			End:    end,
			Instrs: instrs[start:end],
		}
		g.Blocks = append(g.Blocks, b)
		g.byStart[start] = b
	}

	// Compute successor lists from each block's last instruction and link
	// predecessors symmetrically.
	for _, b := range g.Blocks {
		last := b.Last()
		switch {
		case last.Op.IsConditionalBranch():
			fallthrough_, taken := g.byStart[b.End], g.byStart[bytecode.JumpTarget(last)]
			if fallthrough_ == nil || taken == nil {
				return nil, fmt.Errorf("cfg: branch at %d has unresolved successors", last.Pos)
			}
			b.Succs = []*BasicBlock{fallthrough_, taken}
		case last.Op.IsUnconditionalJump():
			target := g.byStart[bytecode.JumpTarget(last)]
			if target == nil {
				return nil, fmt.Errorf("cfg: jump at %d has unresolved target", last.Pos)
			}
			b.Succs = []*BasicBlock{target}
		case last.Op.IsTerminator():
			// No successors.
		default:
			next := g.byStart[b.End]
			if next == nil {
				return nil, fmt.Errorf("cfg: block at %d ends at %d with neither terminator nor successor", b.Start, last.Pos)
			}
			b.Succs = []*BasicBlock{next}
		}
		for _, succ := range b.Succs {
			addPred(succ, b)
		}
	}
	return g, nil
}

// addPred inserts pred into succ.Preds keeping the list sorted by start
// position and duplicate-free.
func addPred(succ, pred *BasicBlock) {
	i := sort.Search(len(succ.Preds), func(i int) bool {
		return succ.Preds[i].Start >= pred.Start
	})
	if i < len(succ.Preds) && succ.Preds[i] == pred {
		return
	}
	succ.Preds = append(succ.Preds, nil)
	copy(succ.Preds[i+1:], succ.Preds[i:])
	succ.Preds[i] = pred
}

package cfg

// bitset is a fixed-width bit vector over local variable slots. The
// dataflow lattice is the product of one two-point lattice per slot, so a
// block's whole state is one bitset and the meet operator is bitwise AND.
type bitset struct {
	words []uint64
	n     int
}

func newBitset(n int) bitset {
	return bitset{words: make([]uint64, (n+63)/64), n: n}
}

// fullBitset returns the lattice top: every slot assigned.
func fullBitset(n int) bitset {
	s := newBitset(n)
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	if rem := n % 64; rem != 0 && len(s.words) > 0 {
		s.words[len(s.words)-1] = (uint64(1) << rem) - 1
	}
	return s
}

func (s bitset) set(i int)      { s.words[i/64] |= 1 << (i % 64) }
func (s bitset) clear(i int)    { s.words[i/64] &^= 1 << (i % 64) }
func (s bitset) has(i int) bool { return s.words[i/64]&(1<<(i%64)) != 0 }

// and intersects other into s.
func (s bitset) and(other bitset) {
	for i := range s.words {
		s.words[i] &= other.words[i]
	}
}

func (s bitset) eq(other bitset) bool {
	for i := range s.words {
		if s.words[i] != other.words[i] {
			return false
		}
	}
	return true
}

func (s bitset) clone() bitset {
	c := bitset{words: make([]uint64, len(s.words)), n: s.n}
	copy(c.words, s.words)
	return c
}

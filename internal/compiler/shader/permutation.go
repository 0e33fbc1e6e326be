package shader

import (
	"fmt"
	"math/bits"
	"slices"
)

// MaxFlags bounds the number of distinct flags in one shader. The container
// stores the permutation count as an int32.
const MaxFlags = 30

// Permutation is one subset of a shader's flags.
type Permutation struct {
	// Index enumerates the subset: bit j selects the j-th flag in index order.
	Index uint32
	// Mask holds the selected flags by their declared bit index.
	Mask  Mask
	Flags []Flag
}

// Macros returns the preprocessor symbols to define for this permutation.
func (p Permutation) Macros() []string {
	out := make([]string, len(p.Flags))
	for i, f := range p.Flags {
		out[i] = f.Macro()
	}
	return out
}

// Permutations enumerates all 2^k subsets of flags (which must be sorted by
// index) and orders them by descending flag count, then ascending Index.
// The flagless permutation is always last.
func Permutations(flags []Flag) ([]Permutation, error) {
	if len(flags) > MaxFlags {
		return nil, fmt.Errorf("%d shader flags exceed the limit of %d", len(flags), MaxFlags)
	}

	n := uint32(1) << len(flags)
	perms := make([]Permutation, n)
	for i := range n {
		p := Permutation{Index: i}
		for j, f := range flags {
			if i&(1<<j) != 0 {
				p.Mask = p.Mask.Set(f.Index)
				p.Flags = append(p.Flags, f)
			}
		}
		perms[i] = p
	}

	slices.SortStableFunc(perms, func(a, b Permutation) int {
		return bits.OnesCount32(b.Index) - bits.OnesCount32(a.Index)
	})
	return perms, nil
}

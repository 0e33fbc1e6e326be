package shader

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/pkg/encoding"
)

// MaxFlagIndex is the highest bit a feature flag may occupy.
const MaxFlagIndex FlagIndex = 63

// FlagIndex is a feature flag's position in the 64-bit mask space.
type FlagIndex uint8

// Flag is one feature flag declared in shader source as F_<NN><Name>.
type Flag struct {
	Index FlagIndex
	Name  string
}

// Macro returns the preprocessor symbol for the flag, e.g. F_03FOG.
func (f Flag) Macro() string {
	return fmt.Sprintf("F_%02d%s", f.Index, f.Name)
}

// Mask is a set of flag indices.
type Mask uint64

// MaskFor returns the mask with only bit i set.
func MaskFor(i int) (Mask, error) {
	if i < 0 || i > int(MaxFlagIndex) {
		return 0, fmt.Errorf("flag index %d out of range [0, %d]", i, MaxFlagIndex)
	}
	return Mask(1) << i, nil
}

// Set returns m with flag i added.
func (m Mask) Set(i FlagIndex) Mask {
	return m | Mask(1)<<i
}

// Count returns the number of flags in m.
func (m Mask) Count() int {
	return bits.OnesCount64(uint64(m))
}

// Bits returns the flag indices in m, ascending.
func (m Mask) Bits() []FlagIndex {
	out := make([]FlagIndex, 0, m.Count())
	for v := uint64(m); v != 0; v &= v - 1 {
		out = append(out, FlagIndex(bits.TrailingZeros64(v)))
	}
	return out
}

func (m Mask) String() string {
	return fmt.Sprintf("%#b", uint64(m))
}

var flagDirective = regexp.MustCompile(`^#ifdef\s+F_(\d\d)(\w*)$`)

// ScanFlags finds every "#ifdef F_NN<Name>" directive in r and returns the
// declared flags sorted by index. A later declaration of an index replaces
// the name of an earlier one.
func ScanFlags(r io.Reader, path string) ([]Flag, error) {
	names := make(map[FlagIndex]string)

	sc := bufio.NewScanner(encoding.NewReader(r))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		m := flagDirective.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		if idx > int(MaxFlagIndex) {
			return nil, compiler.InputErrorf(path, "line %d: shader flag F_%s%s: index cannot be greater than %d",
				line, m[1], m[2], MaxFlagIndex)
		}
		names[FlagIndex(idx)] = m[2]
	}
	if err := sc.Err(); err != nil {
		return nil, compiler.InputErrorf(path, "read shader source: %w", err)
	}

	flags := make([]Flag, 0, len(names))
	for idx, name := range names {
		flags = append(flags, Flag{Index: idx, Name: name})
	}
	slices.SortFunc(flags, func(a, b Flag) int { return int(a.Index) - int(b.Index) })
	return flags, nil
}

// ScanFile runs ScanFlags over the shader at path.
func ScanFile(path string) ([]Flag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, compiler.InputErrorf(path, "open shader: %w", err)
	}
	defer f.Close()

	return ScanFlags(f, path)
}

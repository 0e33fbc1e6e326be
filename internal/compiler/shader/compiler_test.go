package shader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/pkg/binwriter"
	"github.com/Faultbox/midgard-assets/pkg/formats"
)

// fakeToolchain produces "<macros>" as the final binary. failOn names a
// macro list (comma joined) whose archive stage fails.
type fakeToolchain struct {
	failOn string
	stray  bool // leave an extra file next to each unit

	mu    sync.Mutex
	calls int
}

func (f *fakeToolchain) CompileUnit(ctx context.Context, source string, macros []string, output string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if _, err := os.Stat(source); err != nil {
		return err
	}
	if f.stray {
		if err := os.WriteFile(output+".stray", nil, 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(output, []byte(strings.Join(macros, ",")), 0o644)
}

func (f *fakeToolchain) ArchiveUnit(ctx context.Context, unit, output string) error {
	data, err := os.ReadFile(unit)
	if err != nil {
		return err
	}
	if f.failOn != "" && string(data) == f.failOn {
		return errors.New("simulated archiver crash")
	}
	return os.WriteFile(output, data, 0o644)
}

func (f *fakeToolchain) LinkLibrary(ctx context.Context, archive, output string) error {
	data, err := os.ReadFile(archive)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

type shaderFixture struct {
	input   string
	output  string
	scratch string
}

func newFixture(t *testing.T, src string) shaderFixture {
	t.Helper()
	dir := t.TempDir()
	fx := shaderFixture{
		input:   filepath.Join(dir, "test.metal"),
		output:  filepath.Join(dir, "test.shd"),
		scratch: filepath.Join(dir, "scratch"),
	}
	if err := os.WriteFile(fx.input, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(fx.scratch, 0o755); err != nil {
		t.Fatal(err)
	}
	return fx
}

func (fx shaderFixture) compile(tc Toolchain, opts ...Option) error {
	opts = append([]Option{WithScratchDir(fx.scratch)}, opts...)
	return New("shader-test", tc, opts...).Compile(context.Background(), fx.input, []string{fx.output})
}

func (fx shaderFixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(fx.scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected scratch to be cleaned up, found %d entries", len(entries))
	}
}

const twoFlagShader = `#include <metal_stdlib>
fragment float4 main0() {
    float4 c = float4(1.0);
#ifdef F_00ALPHA
    c.a = 0.5;
#endif
#ifdef F_01FOG
    c.rgb *= 0.8;
#endif
    return c;
}
`

func TestCompileTwoFlags(t *testing.T) {
	fx := newFixture(t, twoFlagShader)
	tc := &fakeToolchain{}
	if err := fx.compile(tc); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	lib, err := formats.ParseShaderLibraryFile(fx.output)
	if err != nil {
		t.Fatalf("ParseShaderLibraryFile failed: %v", err)
	}

	want := []struct {
		mask    uint64
		payload string
	}{
		{0b11, "F_00ALPHA,F_01FOG"},
		{0b01, "F_00ALPHA"},
		{0b10, "F_01FOG"},
		{0b00, ""},
	}
	if len(lib.Permutations) != len(want) {
		t.Fatalf("expected %d permutations, got %d", len(want), len(lib.Permutations))
	}
	for i, w := range want {
		p := lib.Permutations[i]
		if p.Mask != w.mask || string(p.Payload) != w.payload {
			t.Errorf("record %d: expected mask %#b payload %q, got %#b %q", i, w.mask, w.payload, p.Mask, p.Payload)
		}
	}
	if tc.calls != 4 {
		t.Errorf("expected 4 toolchain runs, got %d", tc.calls)
	}
	fx.assertScratchEmpty(t)
}

func TestCompileOffsetChain(t *testing.T) {
	fx := newFixture(t, "#ifdef F_00A\n#endif\n#ifdef F_03LONGER_NAME\n#endif\n#ifdef F_09C\n#endif\n")
	if err := fx.compile(&fakeToolchain{}); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	data, err := os.ReadFile(fx.output)
	if err != nil {
		t.Fatal(err)
	}
	lib, err := formats.ParseShaderLibrary(data)
	if err != nil {
		t.Fatalf("ParseShaderLibrary failed: %v", err)
	}
	if len(lib.Permutations) != 8 {
		t.Fatalf("expected 8 permutations, got %d", len(lib.Permutations))
	}

	var total int64
	for i, p := range lib.Permutations {
		if (p.Offset-formats.ShaderHeaderSize)%8 != 0 {
			t.Errorf("record %d starts at misaligned offset %d", i, p.Offset)
		}
		if i+1 < len(lib.Permutations) && p.Offset+int64(p.Stride) != lib.Permutations[i+1].Offset {
			t.Errorf("record %d: stride %d does not reach the next record", i, p.Stride)
		}
		total += int64(p.Stride)
	}
	if total != int64(len(data))-formats.ShaderHeaderSize {
		t.Errorf("strides sum to %d, expected %d", total, len(data)-formats.ShaderHeaderSize)
	}

	wantCounts := []int{3, 2, 2, 2, 1, 1, 1, 0}
	for i, p := range lib.Permutations {
		if p.FlagCount() != wantCounts[i] {
			t.Errorf("record %d: expected %d flags, got %d", i, wantCounts[i], p.FlagCount())
		}
	}
	if lib.Permutations[0].Mask != 1|1<<3|1<<9 {
		t.Errorf("unexpected first mask %#b", lib.Permutations[0].Mask)
	}
}

func TestCompileNoFlags(t *testing.T) {
	fx := newFixture(t, "kernel void main0() {}\n")
	if err := fx.compile(&fakeToolchain{}); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	lib, err := formats.ParseShaderLibraryFile(fx.output)
	if err != nil {
		t.Fatal(err)
	}
	if len(lib.Permutations) != 1 || lib.Permutations[0].Mask != 0 {
		t.Errorf("expected one flagless permutation, got %+v", lib.Permutations)
	}
}

func TestCompileParallelMatchesSequential(t *testing.T) {
	src := "#ifdef F_00A\n#endif\n#ifdef F_01B\n#endif\n#ifdef F_02C\n#endif\n#ifdef F_04D\n#endif\n"

	var outputs [][]byte
	for _, jobs := range []int{1, 8} {
		fx := newFixture(t, src)
		if err := fx.compile(&fakeToolchain{}, WithJobs(jobs)); err != nil {
			t.Fatalf("jobs=%d: Compile failed: %v", jobs, err)
		}
		data, err := os.ReadFile(fx.output)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}
	if string(outputs[0]) != string(outputs[1]) {
		t.Error("expected byte-identical output regardless of concurrency")
	}
}

func TestCompileToolchainFailure(t *testing.T) {
	fx := newFixture(t, twoFlagShader)
	err := fx.compile(&fakeToolchain{failOn: "F_01FOG"}, WithJobs(2))

	if !errors.Is(err, compiler.ErrToolchain) {
		t.Fatalf("expected toolchain error, got %v", err)
	}
	var stage *compiler.StageError
	if !errors.As(err, &stage) || stage.Stage != StageArchive {
		t.Errorf("expected archive stage failure, got %v", err)
	}
	fx.assertScratchEmpty(t)
}

func TestCompileFlagOutOfRange(t *testing.T) {
	fx := newFixture(t, "#ifdef F_99X\n#endif\n")
	tc := &fakeToolchain{}
	err := fx.compile(tc)
	if !errors.Is(err, compiler.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	if tc.calls != 0 {
		t.Errorf("expected no toolchain runs, got %d", tc.calls)
	}
	if _, err := os.Stat(fx.output); !os.IsNotExist(err) {
		t.Error("expected no output file")
	}
}

func TestCompileLeftoverScratchFails(t *testing.T) {
	fx := newFixture(t, "#ifdef F_00A\n#endif\n")
	err := fx.compile(&fakeToolchain{stray: true})
	if !errors.Is(err, compiler.ErrIO) {
		t.Fatalf("expected i/o error for non-empty scratch, got %v", err)
	}
}

func TestCompileMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := New("shader-test", &fakeToolchain{}).Compile(context.Background(),
		filepath.Join(dir, "missing.metal"), []string{filepath.Join(dir, "out.shd")})
	if !errors.Is(err, compiler.ErrInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestCompileCanceled(t *testing.T) {
	fx := newFixture(t, twoFlagShader)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New("shader-test", NagaToolchain{}, WithScratchDir(fx.scratch))
	err := c.Compile(ctx, fx.input, []string{fx.output})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	fx.assertScratchEmpty(t)
}

func TestWriteLibraryLayout(t *testing.T) {
	perms := []Permutation{{Mask: 0b1}, {Mask: 0}}
	payloads := [][]byte{[]byte("abc"), []byte("0123456789")}

	buf := &binwriter.Buffer{}
	w := binwriter.New(buf)
	if err := WriteLibrary(w, perms, payloads); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	// Header (16) + record 0 (24 + 3, padded to 32) + record 1 (24 + 10, padded to 40).
	if len(data) != 16+32+40 {
		t.Fatalf("expected 88 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RDHS" || string(data[8:12]) != "LTEM" {
		t.Errorf("unexpected tags %q %q", data[0:4], data[8:12])
	}
	if u := le32(data[16+16:]); u != 32 {
		t.Errorf("expected first stride 32, got %d", u)
	}
	if u := le32(data[48+16:]); u != 40 {
		t.Errorf("expected second stride 40, got %d", u)
	}
	if !slices.Equal(data[16+27:16+32], make([]byte, 5)) {
		t.Error("expected zero padding after first payload")
	}
}

func TestWriteLibraryMismatch(t *testing.T) {
	w := binwriter.New(&binwriter.Buffer{})
	if err := WriteLibrary(w, []Permutation{{}}, nil); err == nil {
		t.Error("expected error for missing payloads")
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func ExamplePermutations() {
	perms, _ := Permutations([]Flag{{0, "ALPHA"}, {1, "FOG"}})
	for _, p := range perms {
		fmt.Println(p.Mask, p.Macros())
	}
	// Output:
	// 0b11 [F_00ALPHA F_01FOG]
	// 0b1 [F_00ALPHA]
	// 0b10 [F_01FOG]
	// 0b0 []
}

package shader

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/gogpu/naga"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/pkg/encoding"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// spirvHeaderSize is the five-word SPIR-V module header.
const spirvHeaderSize = 20

// NagaToolchain compiles WGSL to SPIR-V in-process. The three stages are
// preprocessing, naga compilation and module validation.
type NagaToolchain struct{}

// CompileUnit implements Toolchain: it writes the preprocessed source.
func (NagaToolchain) CompileUnit(ctx context.Context, source string, macros []string, output string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.ReadFile(source)
	if err != nil {
		return &compiler.StageError{Stage: StageCompile, Err: err}
	}
	text, err := encoding.DecodeText(src)
	if err != nil {
		return &compiler.StageError{Stage: StageCompile, Err: err}
	}
	out, err := Preprocess(text, macros)
	if err != nil {
		return &compiler.StageError{Stage: StageCompile, Err: err}
	}
	return os.WriteFile(output, []byte(out), 0o644)
}

// ArchiveUnit implements Toolchain: it compiles the unit to SPIR-V.
func (NagaToolchain) ArchiveUnit(ctx context.Context, unit, output string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.ReadFile(unit)
	if err != nil {
		return &compiler.StageError{Stage: StageArchive, Err: err}
	}
	spirv, err := naga.Compile(string(src))
	if err != nil {
		return &compiler.StageError{Stage: StageArchive, Err: fmt.Errorf("naga: %w", err)}
	}
	return os.WriteFile(output, spirv, 0o644)
}

// LinkLibrary implements Toolchain: it checks the SPIR-V header and copies
// the module to output.
func (NagaToolchain) LinkLibrary(ctx context.Context, archive, output string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	spirv, err := os.ReadFile(archive)
	if err != nil {
		return &compiler.StageError{Stage: StageLink, Err: err}
	}
	if err := validateSPIRV(spirv); err != nil {
		return &compiler.StageError{Stage: StageLink, Err: err}
	}
	return os.WriteFile(output, spirv, 0o644)
}

func validateSPIRV(b []byte) error {
	if len(b) < spirvHeaderSize || len(b)%4 != 0 {
		return fmt.Errorf("spir-v module of %d bytes is not a whole header plus words", len(b))
	}
	if magic := binary.LittleEndian.Uint32(b); magic != spirvMagic {
		return fmt.Errorf("bad spir-v magic %#08x", magic)
	}
	return nil
}

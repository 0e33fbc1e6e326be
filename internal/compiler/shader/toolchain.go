package shader

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/Faultbox/midgard-assets/internal/compiler"
)

// Toolchain stage names, as reported in toolchain errors.
const (
	StageCompile = "compile"
	StageArchive = "archive"
	StageLink    = "link"
)

// Toolchain turns shader source into a loadable binary in three stages.
// Each stage reads its input path and writes its product to output.
type Toolchain interface {
	// CompileUnit compiles source with macros defined into an intermediate module.
	CompileUnit(ctx context.Context, source string, macros []string, output string) error
	// ArchiveUnit packs an intermediate module into an archive.
	ArchiveUnit(ctx context.Context, unit, output string) error
	// LinkLibrary links an archive into the final binary.
	LinkLibrary(ctx context.Context, archive, output string) error
}

// pipeline runs the three toolchain stages for one permutation inside
// scratch. Intermediates are named with prefix so pipelines can share the
// directory, and each one is deleted as soon as the next stage has consumed it.
type pipeline struct {
	toolchain Toolchain
	source    string
	scratch   string
	prefix    string
}

func (p *pipeline) path(name string) string {
	return filepath.Join(p.scratch, p.prefix+name)
}

// run returns the linked binary's bytes.
func (p *pipeline) run(ctx context.Context, macros []string) ([]byte, error) {
	unit := p.path("unit")
	if err := p.stage(StageCompile, p.toolchain.CompileUnit(ctx, p.source, macros, unit)); err != nil {
		return nil, err
	}

	archive := p.path("archive")
	if err := p.stage(StageArchive, p.toolchain.ArchiveUnit(ctx, unit, archive)); err != nil {
		return nil, err
	}
	if err := os.Remove(unit); err != nil {
		return nil, compiler.IOError(unit, err)
	}

	library := p.path("library")
	if err := p.stage(StageLink, p.toolchain.LinkLibrary(ctx, archive, library)); err != nil {
		return nil, err
	}
	if err := os.Remove(archive); err != nil {
		return nil, compiler.IOError(archive, err)
	}

	data, err := os.ReadFile(library)
	if err != nil {
		return nil, compiler.ToolchainError(p.source, &compiler.StageError{
			Stage: StageLink, Reason: "no library produced", Err: err,
		})
	}
	if err := os.Remove(library); err != nil {
		return nil, compiler.IOError(library, err)
	}
	return data, nil
}

// stage tags a stage failure as a toolchain error. Cancellation passes
// through untouched so the first real failure stays the reported one.
func (p *pipeline) stage(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *compiler.StageError
	if !errors.As(err, &se) {
		se = &compiler.StageError{Stage: name, Err: err}
	}
	return compiler.ToolchainError(p.source, se)
}

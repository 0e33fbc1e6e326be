// Package shader compiles a shader source into a library holding one
// binary per combination of its F_NN feature flags.
package shader

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/internal/logger"
	"github.com/Faultbox/midgard-assets/pkg/binwriter"
	"github.com/Faultbox/midgard-assets/pkg/formats"
)

// Compiler builds RDHS permutation libraries with a Toolchain.
type Compiler struct {
	name       string
	toolchain  Toolchain
	jobs       int
	scratchDir string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithJobs limits how many permutations are built at once. n <= 0 means
// one per CPU.
func WithJobs(n int) Option {
	return func(c *Compiler) { c.jobs = n }
}

// WithScratchDir sets the parent of the per-compile scratch directory.
// The default is os.TempDir().
func WithScratchDir(dir string) Option {
	return func(c *Compiler) { c.scratchDir = dir }
}

// New returns a shader compiler registered as name.
func New(name string, tc Toolchain, opts ...Option) *Compiler {
	c := &Compiler{name: name, toolchain: tc}
	for _, opt := range opts {
		opt(c)
	}
	if c.jobs <= 0 {
		c.jobs = runtime.NumCPU()
	}
	return c
}

// Name implements compiler.Compiler.
func (c *Compiler) Name() string { return c.name }

// Compile builds every permutation of input and writes the library to
// outputs[0]. Any failure aborts the whole library.
func (c *Compiler) Compile(ctx context.Context, input string, outputs []string) (err error) {
	if len(outputs) != 1 {
		return fmt.Errorf("shader compiler needs 1 output, got %d", len(outputs))
	}
	log := logger.Named("shader").With(zap.String("input", input))

	flags, err := ScanFile(input)
	if err != nil {
		return err
	}
	perms, err := Permutations(flags)
	if err != nil {
		return compiler.InputErrorf(input, "%w", err)
	}
	log.Debug("discovered flags", zap.Int("flags", len(flags)), zap.Int("permutations", len(perms)))

	scratch, err := os.MkdirTemp(c.scratchDir, "assetc-shader-")
	if err != nil {
		return compiler.IOError(c.scratchDir, err)
	}
	defer func() {
		if err != nil {
			// Cleanup after a failure must not depend on how far the
			// pipelines got.
			err = multierr.Append(err, compiler.IOError(scratch, os.RemoveAll(scratch)))
			return
		}
		// Every intermediate has been consumed; the directory must be empty.
		err = compiler.IOError(scratch, os.Remove(scratch))
	}()

	payloads, err := c.buildAll(ctx, input, scratch, perms)
	if err != nil {
		return err
	}

	err = compiler.WriteArtifact(outputs[0], func(w *binwriter.Writer) error {
		return WriteLibrary(w, perms, payloads)
	})
	if err != nil {
		return err
	}

	log.Info("compiled shader",
		zap.Int("flags", len(flags)),
		zap.Int("permutations", len(perms)))
	return nil
}

// buildAll runs one pipeline per permutation. Results are stored by sorted
// position, so completion order never affects the output.
func (c *Compiler) buildAll(ctx context.Context, input, scratch string, perms []Permutation) ([][]byte, error) {
	log := logger.Named("shader")
	payloads := make([][]byte, len(perms))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.jobs)
	for i, p := range perms {
		g.Go(func() error {
			macros := p.Macros()
			log.Debug("compiling permutation",
				zap.String("input", input),
				zap.String("options", "{"+strings.Join(macros, ", ")+"}"))

			pl := &pipeline{
				toolchain: c.toolchain,
				source:    input,
				scratch:   scratch,
				prefix:    fmt.Sprintf("p%04d_", i),
			}
			data, err := pl.run(ctx, macros)
			if err != nil {
				return err
			}
			payloads[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// WriteLibrary serializes the container. payloads[i] belongs to perms[i].
func WriteLibrary(w *binwriter.Writer, perms []Permutation, payloads [][]byte) error {
	if len(perms) != len(payloads) {
		return fmt.Errorf("%d permutations but %d payloads", len(perms), len(payloads))
	}

	w.WriteString(formats.ShaderMagic)
	w.WriteUint32(formats.ShaderVersion)
	w.WriteString(formats.ShaderSectionMagic)
	w.WriteLen(len(perms))

	for i, p := range perms {
		start := w.Offset()
		w.WriteUint64(uint64(p.Mask))
		w.WriteLen(len(payloads[i]))
		w.WriteUint32(0) // reserved
		next := w.Reserve32()
		w.WriteUint32(0) // keeps the payload 8-byte aligned
		w.WriteBytes(payloads[i])
		w.Align(formats.PermutationAlign)
		w.PatchInt(next, w.Offset()-start)
	}
	return w.Err()
}

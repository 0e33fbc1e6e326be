package shader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/internal/logger"
)

// Command is one external tool invocation. Args may contain the
// placeholders {input}, {output} and {diag}; an argument that is exactly
// {macros} expands to a "-D <macro>" pair per defined macro.
type Command struct {
	Path string
	Args []string
}

// ExecToolchain runs each stage as an external process.
type ExecToolchain struct {
	Compile Command
	Archive Command
	Link    Command
}

// MetalToolchain returns the Xcode Metal toolchain: metal, metal-ar, metallib.
func MetalToolchain() *ExecToolchain {
	return &ExecToolchain{
		Compile: Command{
			Path: "xcrun",
			Args: []string{
				"-sdk", "macosx", "metal",
				"-emit-llvm", "-c", "-ffast-math",
				"-serialize-diagnostics", "{diag}",
				"-o", "{output}",
				"{macros}",
				"{input}",
			},
		},
		Archive: Command{
			Path: "xcrun",
			Args: []string{"-sdk", "macosx", "metal-ar", "r", "{output}", "{input}"},
		},
		Link: Command{
			Path: "xcrun",
			Args: []string{"-sdk", "macosx", "metallib", "-o", "{output}", "{input}"},
		},
	}
}

// CompileUnit implements Toolchain. The diagnostics file the compiler may
// write next to output is removed once the stage finishes.
func (t *ExecToolchain) CompileUnit(ctx context.Context, source string, macros []string, output string) error {
	diag := output + ".dia"
	err := run(ctx, StageCompile, t.Compile, source, output, diag, macros)
	if rmErr := os.Remove(diag); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
		return compiler.IOError(diag, rmErr)
	}
	return err
}

// ArchiveUnit implements Toolchain.
func (t *ExecToolchain) ArchiveUnit(ctx context.Context, unit, output string) error {
	return run(ctx, StageArchive, t.Archive, unit, output, "", nil)
}

// LinkLibrary implements Toolchain.
func (t *ExecToolchain) LinkLibrary(ctx context.Context, archive, output string) error {
	return run(ctx, StageLink, t.Link, archive, output, "", nil)
}

// Expand substitutes placeholders in the command's arguments.
func (c Command) Expand(input, output, diag string, macros []string) []string {
	r := strings.NewReplacer("{input}", input, "{output}", output, "{diag}", diag)
	args := make([]string, 0, len(c.Args)+2*len(macros))
	for _, a := range c.Args {
		if a == "{macros}" {
			for _, m := range macros {
				args = append(args, "-D", m)
			}
			continue
		}
		args = append(args, r.Replace(a))
	}
	return args
}

// run starts the command and waits for it. A nonzero exit status is a
// failure; whatever the tool printed on stderr becomes the reason.
func run(ctx context.Context, stage string, c Command, input, output, diag string, macros []string) error {
	if c.Path == "" {
		return &compiler.StageError{Stage: stage, Reason: "no command configured"}
	}
	args := c.Expand(input, output, diag, macros)
	log := logger.Named("toolchain")
	log.Debug("running", zap.String("stage", stage), zap.String("cmd", c.Path), zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	msg := strings.TrimSpace(stderr.String())
	if err == nil {
		if msg != "" {
			log.Warn("toolchain diagnostics", zap.String("stage", stage), zap.String("input", input), zap.String("output", msg))
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		reason := fmt.Sprintf("%s exited with status %d", c.Path, exitErr.ExitCode())
		if msg != "" {
			reason += ": " + msg
		}
		return &compiler.StageError{Stage: stage, Reason: reason, Err: err}
	}
	return &compiler.StageError{Stage: stage, Reason: fmt.Sprintf("start %s: %v", c.Path, err), Err: err}
}

package mesh

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/internal/logger"
)

// Compiler builds a MODL + MDLG pair from one mesh source.
type Compiler struct{}

// New returns a mesh compiler.
func New() *Compiler {
	return &Compiler{}
}

// Name implements compiler.Compiler.
func (c *Compiler) Name() string { return "mesh" }

// Compile parses input completely before opening either output, so input
// errors never touch the filesystem. outputs must be [submesh table, geometry].
func (c *Compiler) Compile(ctx context.Context, input string, outputs []string) error {
	if len(outputs) != 2 {
		return fmt.Errorf("mesh compiler needs 2 outputs (.mdl, .mdg), got %d", len(outputs))
	}

	m, err := ParseFile(input)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := compiler.WriteArtifact(outputs[0], m.WriteModel); err != nil {
		return err
	}
	if err := compiler.WriteArtifact(outputs[1], m.WriteGeometry); err != nil {
		return err
	}

	logger.Named("mesh").Info("compiled mesh",
		zap.String("input", input),
		zap.Int("vertices", m.Vertices.Len()),
		zap.Int("triangles", m.TriangleCount()),
		zap.Int("submeshes", len(m.Submeshes)),
		zap.Int("textures", m.Textures.Len()))
	return nil
}

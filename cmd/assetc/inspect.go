package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-assets/pkg/formats"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect artifact...",
	Short: "Decode compiled artifacts and print their contents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", path)
			if err := inspect(cmd.OutOrStdout(), data); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return nil
	},
}

// inspect decodes data by its magic and prints a summary.
func inspect(w io.Writer, data []byte) error {
	if len(data) < 4 {
		return formats.ErrTruncated
	}

	switch string(data[:4]) {
	case formats.ModelMagic:
		m, err := formats.ParseModel(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Submesh table v%d, %d submeshes\n", m.Version, len(m.Submeshes))
		for i, s := range m.Submeshes {
			tex := "none"
			if s.HasTexture() {
				tex = fmt.Sprintf("#%d", s.DiffuseTexture)
			}
			fmt.Fprintf(w, "  [%d] indices %d..%d texture %s\n", i, s.IndexStart, s.IndexStart+s.IndexCount, tex)
		}

	case formats.GeometryMagic:
		g, err := formats.ParseGeometry(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Geometry: %d vertices, %d triangles, %d textures\n",
			len(g.Vertices), g.TriangleCount(), len(g.Textures))
		for i, name := range g.Textures {
			fmt.Fprintf(w, "  texture #%d %s\n", i, name)
		}

	case formats.ShaderMagic:
		lib, err := formats.ParseShaderLibrary(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Shader library v%d, %d permutations\n", lib.Version, len(lib.Permutations))
		for i, p := range lib.Permutations {
			fmt.Fprintf(w, "  [%d] mask %#b (%d flags) payload %d bytes at %#x\n",
				i, p.Mask, p.FlagCount(), len(p.Payload), p.Offset)
		}

	case formats.TextureMagic:
		tex, err := formats.ParseTexture(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Texture %dx%d, %d bytes stored (%s)\n",
			tex.Width, tex.Height, tex.StoredSize, tex.Compression)

	default:
		return fmt.Errorf("%w: unknown magic %q", formats.ErrInvalidMagic, data[:4])
	}
	return nil
}

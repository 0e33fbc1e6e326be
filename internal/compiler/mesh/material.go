package mesh

import (
	"io"
	"os"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/pkg/encoding"
)

// Material is one entry of a material sidecar file.
type Material struct {
	Name string
	// DiffuseTexture is the map_Kd path, or "" when the material has none.
	DiffuseTexture string
}

// ParseMaterials reads newmtl / map_Kd pairs. Other statements are ignored.
// map_Kd before any newmtl is an error.
func ParseMaterials(r io.Reader, path string) (map[string]*Material, error) {
	lx := NewLexer(encoding.NewReader(r), path)
	materials := make(map[string]*Material)
	var current *Material

	for !lx.Done() {
		tok := lx.Next()
		if tok.Kind != TokenString {
			lx.SkipLine()
			continue
		}

		switch tok.Text {
		case "newmtl":
			name := lx.ReadRestOfLine()
			if name == "" {
				return nil, compiler.InputErrorf(path, "line %d: newmtl without a name", tok.Line)
			}
			current = &Material{Name: name}
			materials[name] = current
		case "map_Kd":
			if current == nil {
				return nil, compiler.InputErrorf(path, "line %d: map_Kd before any newmtl", tok.Line)
			}
			current.DiffuseTexture = lx.ReadRestOfLine()
		default:
			lx.SkipLine()
		}
	}

	if err := lx.Err(); err != nil {
		return nil, err
	}
	return materials, nil
}

// LoadMaterials parses the material file at path.
func LoadMaterials(path string) (map[string]*Material, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, compiler.InputErrorf(path, "open material library: %w", err)
	}
	defer f.Close()

	return ParseMaterials(f, path)
}

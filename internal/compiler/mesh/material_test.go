package mesh

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/midgard-assets/internal/compiler"
)

func TestParseMaterials(t *testing.T) {
	src := `# exported material library
newmtl Stone Wall
Ka 1.000 1.000 1.000
Kd 0.640 0.640 0.640
map_Kd textures/stone wall.png

newmtl plain
illum 2
`
	mats, err := ParseMaterials(strings.NewReader(src), "scene.mtl")
	if err != nil {
		t.Fatalf("ParseMaterials failed: %v", err)
	}

	if len(mats) != 2 {
		t.Fatalf("expected 2 materials, got %d", len(mats))
	}
	stone, ok := mats["Stone Wall"]
	if !ok {
		t.Fatal("expected material 'Stone Wall'")
	}
	if stone.DiffuseTexture != "textures/stone wall.png" {
		t.Errorf("expected diffuse 'textures/stone wall.png', got %q", stone.DiffuseTexture)
	}
	if mats["plain"].DiffuseTexture != "" {
		t.Errorf("expected no diffuse texture, got %q", mats["plain"].DiffuseTexture)
	}
}

func TestParseMaterialsErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"map_Kd before newmtl", "map_Kd stray.png\nnewmtl a\n"},
		{"newmtl without name", "newmtl\nmap_Kd a.png\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMaterials(strings.NewReader(tt.src), "bad.mtl")
			if !errors.Is(err, compiler.ErrInput) {
				t.Errorf("expected input error, got %v", err)
			}
		})
	}
}

func TestLoadMaterialsMissingFile(t *testing.T) {
	_, err := LoadMaterials(filepath.Join(t.TempDir(), "missing.mtl"))
	if !errors.Is(err, compiler.ErrInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

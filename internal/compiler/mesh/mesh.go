// Package mesh compiles wavefront-style triangle meshes into a submesh table
// (MODL) and a geometry blob (MDLG).
package mesh

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/internal/logger"
	"github.com/Faultbox/midgard-assets/pkg/encoding"
	"github.com/Faultbox/midgard-assets/pkg/formats"
)

// Vec3 is a position or normal.
type Vec3 struct{ X, Y, Z float32 }

// Vec2 is a texture coordinate.
type Vec2 struct{ X, Y float32 }

// Vertex identifies a unique attribute combination by 1-based references
// into the position, normal and texcoord arrays.
type Vertex struct {
	Position int
	Normal   int
	TexCoord int
}

// Submesh is a contiguous slice of the index array sharing one texture.
type Submesh struct {
	IndexStart     int
	IndexCount     int
	DiffuseTexture uint64 // texture pool id, or formats.NoTexture
}

// Mesh is the parsed, indexed form of a source mesh.
type Mesh struct {
	Positions []Vec3
	Normals   []Vec3
	TexCoords []Vec2

	Vertices  Pool[Vertex]
	Indices   []uint32
	Submeshes []Submesh
	Textures  Pool[string]
}

type parser struct {
	lx   *Lexer
	path string
	dir  string
	mesh *Mesh
	log  *zap.Logger

	materials map[string]*Material // nil until a library is loaded
	current   int                  // index of the open submesh, -1 if none
}

// ParseFile parses the mesh at path. A material library named by mtllib is
// resolved relative to the mesh's directory.
func ParseFile(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, compiler.InputErrorf(path, "open mesh: %w", err)
	}
	defer f.Close()

	return Parse(f, path)
}

// Parse parses mesh source from r. path locates material libraries and
// labels errors.
func Parse(r io.Reader, path string) (*Mesh, error) {
	p := &parser{
		lx:      NewLexer(encoding.NewReader(r), path),
		path:    path,
		dir:     filepath.Dir(path),
		mesh:    &Mesh{},
		log:     logger.Named("mesh"),
		current: -1,
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.mesh, nil
}

func (p *parser) run() error {
	lx := p.lx
	for !lx.Done() {
		tok := lx.Next()
		if tok.Kind != TokenString {
			lx.SkipLine()
			continue
		}

		var err error
		switch tok.Text {
		case "mtllib":
			err = p.parseMaterialLibrary(tok)
		case "usemtl":
			err = p.parseUseMaterial(tok)
		case "v":
			err = p.parseVec3(&p.mesh.Positions)
		case "vn":
			err = p.parseVec3(&p.mesh.Normals)
		case "vt":
			err = p.parseTexCoord()
		case "f":
			err = p.parseFace(tok)
		default:
			lx.SkipLine()
		}
		if err != nil {
			return err
		}
	}
	if err := lx.Err(); err != nil {
		return err
	}

	p.closeSubmesh()
	if len(p.mesh.TexCoords) == 0 {
		// Faces without texcoords reference index 1.
		p.mesh.TexCoords = append(p.mesh.TexCoords, Vec2{})
	}
	return p.mesh.validate(p.path)
}

func (p *parser) parseMaterialLibrary(tok Token) error {
	name := p.lx.ReadRestOfLine()
	if name == "" {
		return compiler.InputErrorf(p.path, "line %d: mtllib without a file name", tok.Line)
	}

	libPath := filepath.Join(p.dir, filepath.FromSlash(name))
	if _, err := os.Stat(libPath); errors.Is(err, fs.ErrNotExist) {
		p.log.Debug("material library not found, continuing without materials",
			zap.String("mesh", p.path), zap.String("library", libPath))
		return nil
	}

	materials, err := LoadMaterials(libPath)
	if err != nil {
		return err
	}
	if p.materials == nil {
		p.materials = make(map[string]*Material, len(materials))
	}
	for name, m := range materials {
		p.materials[name] = m
	}
	p.log.Debug("loaded material library",
		zap.String("library", libPath), zap.Int("materials", len(materials)))
	return nil
}

func (p *parser) parseUseMaterial(tok Token) error {
	name := p.lx.ReadRestOfLine()
	if p.materials == nil {
		return nil
	}
	mat, ok := p.materials[name]
	if !ok {
		return compiler.InputErrorf(p.path, "line %d: material %q does not exist in material library", tok.Line, name)
	}

	texture := formats.NoTexture
	if mat.DiffuseTexture != "" {
		texture = uint64(p.mesh.Textures.Intern(mat.DiffuseTexture))
	}
	p.openSubmesh(texture)
	return nil
}

func (p *parser) parseVec3(dst *[]Vec3) error {
	var v [3]float32
	for i := range v {
		f, err := p.lx.Float()
		if err != nil {
			return err
		}
		v[i] = f
	}
	*dst = append(*dst, Vec3{v[0], v[1], v[2]})
	p.lx.SkipLine()
	return nil
}

func (p *parser) parseTexCoord() error {
	u, err := p.lx.Float()
	if err != nil {
		return err
	}
	v, err := p.lx.Float()
	if err != nil {
		return err
	}
	p.mesh.TexCoords = append(p.mesh.TexCoords, Vec2{u, v})
	p.lx.SkipLine()
	return nil
}

func (p *parser) parseFace(tok Token) error {
	if p.current < 0 {
		p.openSubmesh(formats.NoTexture)
	}

	for corner := 0; corner < 3; corner++ {
		if !p.lx.OnSameLine() {
			return compiler.InputErrorf(p.path, "line %d: face has %d corners, expected 3", tok.Line, corner)
		}
		v, err := p.parseCorner(tok)
		if err != nil {
			return err
		}
		id := p.mesh.Vertices.Intern(v)
		p.mesh.Indices = append(p.mesh.Indices, uint32(id))
	}

	if p.lx.OnSameLine() {
		return compiler.InputErrorf(p.path, "line %d: only triangle faces are supported", tok.Line)
	}
	return nil
}

// parseCorner reads one of p, p/t, p//n or p/t/n.
func (p *parser) parseCorner(tok Token) (Vertex, error) {
	lx := p.lx
	pos, err := lx.Int()
	if err != nil {
		return Vertex{}, err
	}

	var tex, norm int
	hasTex, hasNorm := false, false
	if lx.AcceptSymbol("/") {
		if lx.AcceptSymbol("/") {
			if norm, err = lx.Int(); err != nil {
				return Vertex{}, err
			}
			hasNorm = true
		} else {
			if tex, err = lx.Int(); err != nil {
				return Vertex{}, err
			}
			hasTex = true
			if lx.AcceptSymbol("/") {
				if norm, err = lx.Int(); err != nil {
					return Vertex{}, err
				}
				hasNorm = true
			}
		}
	}

	if !hasNorm {
		return Vertex{}, compiler.InputErrorf(p.path, "line %d: face corner has no normal reference", tok.Line)
	}
	if !hasTex {
		tex = 1
	}

	v := Vertex{}
	if v.Position, err = p.resolve(tok, "position", pos, len(p.mesh.Positions)); err != nil {
		return Vertex{}, err
	}
	if v.Normal, err = p.resolve(tok, "normal", norm, len(p.mesh.Normals)); err != nil {
		return Vertex{}, err
	}
	if !hasTex {
		v.TexCoord = tex
	} else if v.TexCoord, err = p.resolve(tok, "texcoord", tex, len(p.mesh.TexCoords)); err != nil {
		return Vertex{}, err
	}
	return v, nil
}

// resolve turns a relative (negative) reference into an absolute 1-based one.
func (p *parser) resolve(tok Token, what string, ref, count int) (int, error) {
	switch {
	case ref > 0:
		return ref, nil
	case ref < 0 && count+ref >= 0:
		return count + ref + 1, nil
	default:
		return 0, compiler.InputErrorf(p.path, "line %d: invalid %s reference %d", tok.Line, what, ref)
	}
}

func (p *parser) openSubmesh(texture uint64) {
	p.closeSubmesh()
	p.mesh.Submeshes = append(p.mesh.Submeshes, Submesh{
		IndexStart:     len(p.mesh.Indices),
		DiffuseTexture: texture,
	})
	p.current = len(p.mesh.Submeshes) - 1
}

func (p *parser) closeSubmesh() {
	if p.current < 0 {
		return
	}
	s := &p.mesh.Submeshes[p.current]
	s.IndexCount = len(p.mesh.Indices) - s.IndexStart
}

// validate checks that every vertex references existing attributes.
func (m *Mesh) validate(path string) error {
	for id, v := range m.Vertices.Items() {
		switch {
		case v.Position < 1 || v.Position > len(m.Positions):
			return compiler.InputErrorf(path, "vertex %d: position %d out of range (have %d)", id, v.Position, len(m.Positions))
		case v.Normal < 1 || v.Normal > len(m.Normals):
			return compiler.InputErrorf(path, "vertex %d: normal %d out of range (have %d)", id, v.Normal, len(m.Normals))
		case v.TexCoord < 1 || v.TexCoord > len(m.TexCoords):
			return compiler.InputErrorf(path, "vertex %d: texcoord %d out of range (have %d)", id, v.TexCoord, len(m.TexCoords))
		}
	}
	return nil
}

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

package formats

import (
	"fmt"
	"math"
	"os"

	"github.com/Faultbox/midgard-assets/pkg/encoding"
)

// Submesh table (MODL) layout.
const (
	ModelMagic        = "MODL"
	ModelVersion      = 0
	ModelHeaderSize   = 16 // magic, version, submesh count, submesh offset
	SubmeshRecordSize = 16 // index start, index count, texture index (int64)
)

// Geometry blob (MDLG) layout.
const (
	GeometryMagic      = "MDLG"
	GeometryHeaderSize = 28 // magic + 3 x (count, offset)
	TextureEntrySize   = 8  // name length, name offset
	VertexRecordSize   = 32 // 8 x float32
	IndexRecordSize    = 4
	TextureNameAlign   = 4
)

// NoTexture marks a submesh without a diffuse texture.
const NoTexture uint64 = math.MaxUint64

// Submesh is a contiguous range of the index array sharing one texture.
type Submesh struct {
	IndexStart     uint32
	IndexCount     uint32
	DiffuseTexture uint64 // index into Geometry.Textures, or NoTexture
}

// HasTexture reports whether the submesh references a diffuse texture.
func (s Submesh) HasTexture() bool {
	return s.DiffuseTexture != NoTexture
}

// Model is a decoded submesh table.
type Model struct {
	Version   uint32
	Submeshes []Submesh
}

// ParseModel decodes a MODL file.
func ParseModel(data []byte) (*Model, error) {
	r := reader{data}
	if err := r.magic(0, ModelMagic); err != nil {
		return nil, err
	}
	version, err := r.u32(4)
	if err != nil {
		return nil, err
	}
	if version != ModelVersion {
		return nil, fmt.Errorf("%w: MODL version %d", ErrUnsupportedVersion, version)
	}
	count, err := r.u32(8)
	if err != nil {
		return nil, err
	}
	ofs, err := r.u32(12)
	if err != nil {
		return nil, err
	}
	if err := r.table(int64(ofs), int64(count), SubmeshRecordSize); err != nil {
		return nil, fmt.Errorf("submesh table: %w", err)
	}

	m := &Model{Version: version, Submeshes: make([]Submesh, count)}
	for i := range m.Submeshes {
		base := int64(ofs) + int64(i)*SubmeshRecordSize
		s := &m.Submeshes[i]
		s.IndexStart, _ = r.u32(base)
		s.IndexCount, _ = r.u32(base + 4)
		s.DiffuseTexture, _ = r.u64(base + 8)
	}
	return m, nil
}

// ParseModelFile decodes a MODL file from disk.
func ParseModelFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MODL file: %w", err)
	}
	return ParseModel(data)
}

// Vertex is one decoded vertex record.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
}

// Geometry is a decoded geometry blob.
type Geometry struct {
	Vertices []Vertex
	Indices  []uint32
	Textures []string
}

// TriangleCount returns the number of triangles described by the index array.
func (g *Geometry) TriangleCount() int {
	return len(g.Indices) / 3
}

// ParseGeometry decodes an MDLG file.
func ParseGeometry(data []byte) (*Geometry, error) {
	r := reader{data}
	if err := r.magic(0, GeometryMagic); err != nil {
		return nil, err
	}

	var hdr [6]uint32
	for i := range hdr {
		v, err := r.u32(4 + int64(i)*4)
		if err != nil {
			return nil, err
		}
		hdr[i] = v
	}
	vertexCount, vertexOfs := int64(hdr[0]), int64(hdr[1])
	indexCount, indexOfs := int64(hdr[2]), int64(hdr[3])
	textureCount, textureOfs := int64(hdr[4]), int64(hdr[5])

	if err := r.table(vertexOfs, vertexCount, VertexRecordSize); err != nil {
		return nil, fmt.Errorf("vertex array: %w", err)
	}
	if err := r.table(indexOfs, indexCount, IndexRecordSize); err != nil {
		return nil, fmt.Errorf("index array: %w", err)
	}
	if err := r.table(textureOfs, textureCount, TextureEntrySize); err != nil {
		return nil, fmt.Errorf("texture table: %w", err)
	}

	g := &Geometry{
		Vertices: make([]Vertex, vertexCount),
		Indices:  make([]uint32, indexCount),
		Textures: make([]string, textureCount),
	}

	for i := range g.Textures {
		entry := textureOfs + int64(i)*TextureEntrySize
		nameLen, _ := r.u32(entry)
		nameOfs, _ := r.u32(entry + 4)
		name, err := r.span(int64(nameOfs), int64(nameLen)+1)
		if err != nil {
			return nil, fmt.Errorf("texture %d name: %w", i, err)
		}
		g.Textures[i] = encoding.CString(name)
		if len(g.Textures[i]) != int(nameLen) || name[nameLen] != 0 {
			return nil, fmt.Errorf("texture %d name: not a %d-byte NUL-terminated string", i, nameLen)
		}
	}

	for i := range g.Vertices {
		base := vertexOfs + int64(i)*VertexRecordSize
		var f [8]float32
		for j := range f {
			f[j], _ = r.f32(base + int64(j)*4)
		}
		g.Vertices[i] = Vertex{
			Position: [3]float32{f[0], f[1], f[2]},
			Normal:   [3]float32{f[3], f[4], f[5]},
			TexCoord: [2]float32{f[6], f[7]},
		}
	}

	for i := range g.Indices {
		g.Indices[i], _ = r.u32(indexOfs + int64(i)*IndexRecordSize)
		if int64(g.Indices[i]) >= vertexCount {
			return nil, fmt.Errorf("%w: index %d references vertex %d of %d",
				ErrBadOffset, i, g.Indices[i], vertexCount)
		}
	}

	return g, nil
}

// ParseGeometryFile decodes an MDLG file from disk.
func ParseGeometryFile(path string) (*Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MDLG file: %w", err)
	}
	return ParseGeometry(data)
}

package mesh

import (
	"github.com/Faultbox/midgard-assets/pkg/binwriter"
	"github.com/Faultbox/midgard-assets/pkg/formats"
)

// WriteModel emits the submesh table (MODL).
func (m *Mesh) WriteModel(w *binwriter.Writer) error {
	w.WriteString(formats.ModelMagic)
	w.WriteUint32(formats.ModelVersion)
	w.WriteLen(len(m.Submeshes))
	ofsSubmeshes := w.Reserve32()

	w.PatchOffset(ofsSubmeshes)
	for _, s := range m.Submeshes {
		w.WriteLen(s.IndexStart)
		w.WriteLen(s.IndexCount)
		w.WriteUint64(s.DiffuseTexture)
	}
	return w.Err()
}

// WriteGeometry emits the geometry blob (MDLG): texture table, vertex array
// in dense-id order, then the index array.
func (m *Mesh) WriteGeometry(w *binwriter.Writer) error {
	vertices := m.Vertices.Items()
	textures := m.Textures.Items()

	w.WriteString(formats.GeometryMagic)
	w.WriteLen(len(vertices))
	ofsVertices := w.Reserve32()
	w.WriteLen(len(m.Indices))
	ofsIndices := w.Reserve32()
	w.WriteLen(len(textures))
	ofsTextures := w.Reserve32()

	w.PatchOffset(ofsTextures)
	nameOfs := make([]binwriter.Pos, len(textures))
	for i, name := range textures {
		w.WriteLen(len(name))
		nameOfs[i] = w.Reserve32()
	}
	for i, name := range textures {
		w.PatchOffset(nameOfs[i])
		w.WriteString(name)
		w.WriteByte(0)
	}
	w.Align(formats.TextureNameAlign)

	w.PatchOffset(ofsVertices)
	for _, v := range vertices {
		pos := m.Positions[v.Position-1]
		normal := m.Normals[v.Normal-1]
		uv := m.TexCoords[v.TexCoord-1]
		w.WriteFloat32(pos.X)
		w.WriteFloat32(pos.Y)
		w.WriteFloat32(pos.Z)
		w.WriteFloat32(normal.X)
		w.WriteFloat32(normal.Y)
		w.WriteFloat32(normal.Z)
		w.WriteFloat32(uv.X)
		w.WriteFloat32(uv.Y)
	}

	w.PatchOffset(ofsIndices)
	for _, idx := range m.Indices {
		w.WriteUint32(idx)
	}
	return w.Err()
}

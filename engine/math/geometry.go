package math

import (
	"encoding/binary"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// GeometryGenerateNormals writes flat face normals for every triangle.
func GeometryGenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0 := indices[i+0]
		i1 := indices[i+1]
		i2 := indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		normal := edge1.Cross(edge2).Normalize()

		// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GeometryExtents returns the bounding box and centre of the vertices.
func GeometryExtents(vertices []Vertex3D) (Extents3D, mgl32.Vec3) {
	if len(vertices) == 0 {
		return Extents3D{}, mgl32.Vec3{}
	}
	ext := Extents3D{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		for c := 0; c < 3; c++ {
			ext.Min[c] = float32(stdmath.Min(float64(ext.Min[c]), float64(v.Position[c])))
			ext.Max[c] = float32(stdmath.Max(float64(ext.Max[c]), float64(v.Position[c])))
		}
	}
	return ext, ext.Min.Add(ext.Max).Mul(0.5)
}

// PackVertices serializes vertices little-endian, Vertex3DSize bytes each.
func PackVertices(vertices []Vertex3D) []byte {
	out := make([]byte, 0, len(vertices)*Vertex3DSize)
	put := func(f float32) {
		out = binary.LittleEndian.AppendUint32(out, stdmath.Float32bits(f))
	}
	for _, v := range vertices {
		for _, f := range v.Position {
			put(f)
		}
		for _, f := range v.Normal {
			put(f)
		}
		for _, f := range v.Texcoord {
			put(f)
		}
		for _, f := range v.Colour {
			put(f)
		}
	}
	return out
}

// PackIndices16 serializes indices as little-endian uint16.
func PackIndices16(indices []uint32) []byte {
	out := make([]byte, 0, len(indices)*2)
	for _, i := range indices {
		out = binary.LittleEndian.AppendUint16(out, uint16(i))
	}
	return out
}

package metadata

/** @brief The maximum number of vertex streams a geometry can carry. */
const MaxVertexBindings = 15

/** @brief The name of the default geometry. */
const DefaultGeometryName string = "default"

type IndexType uint32

const (
	IndexTypeUint32 IndexType = iota
	IndexTypeUint16
)

// Size returns the size in bytes of one index.
func (t IndexType) Size() uint32 {
	if t == IndexTypeUint16 {
		return 2
	}
	return 4
}

/** @brief What a vertex stream carries. */
type VertexSemantic uint32

const (
	VertexSemanticUndefined VertexSemantic = iota
	VertexSemanticPosition
	VertexSemanticNormal
	VertexSemanticTexcoord
	VertexSemanticColour
	VertexSemanticTangent
)

/**
 * @brief One vertex attribute of a geometry layout.
 */
type VertexAttrib struct {
	Semantic VertexSemantic
	Format   TextureFormat
	/** @brief The vertex stream (binding) the attribute is read from. */
	Binding uint32
	/** @brief Byte offset of the attribute within one vertex of its stream. */
	Offset uint32
}

/**
 * @brief The layout of the vertex streams of a geometry.
 */
type VertexLayout struct {
	Attribs []VertexAttrib
	/** @brief Stride in bytes of each vertex stream. Zero strides mark unused bindings. */
	Strides [MaxVertexBindings]uint32
}

// BindingCount returns one past the last used binding.
func (l *VertexLayout) BindingCount() uint32 {
	var count uint32
	for i, s := range l.Strides {
		if s > 0 {
			count = uint32(i) + 1
		}
	}
	return count
}

package math

import "github.com/go-gl/mathgl/mgl32"

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min mgl32.Vec3
	/** @brief The maximum extents of the object. */
	Max mgl32.Vec3
}

/**
 * @brief Represents a single vertex in 3D space.
 */
type Vertex3D struct {
	/** @brief The position of the vertex */
	Position mgl32.Vec3
	/** @brief The normal of the vertex. */
	Normal mgl32.Vec3
	/** @brief The texture coordinate of the vertex. */
	Texcoord mgl32.Vec2
	/** @brief The colour of the vertex. */
	Colour mgl32.Vec4
}

// Vertex3DSize is the packed size of a Vertex3D in bytes.
const Vertex3DSize = (3 + 3 + 2 + 4) * 4

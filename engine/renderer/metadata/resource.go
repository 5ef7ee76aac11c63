package metadata

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Binary resource type. */
	ResourceTypeBinary ResourceType = iota
	/** @brief Image resource type (DDS, KTX or a common image container). */
	ResourceTypeImage
	/** @brief Geometry resource type (vertex streams plus indices). */
	ResourceTypeGeometry
	/** @brief Custom resource type. Used by loaders outside the core engine. */
	ResourceTypeCustom
)

/** @brief A magic number indicating the file as an engine binary file. */
const ResourceMagic uint32 = 0xdaaaadd1

/** @brief The current version of the binary geometry format. */
const ResourceGeometryVersion uint8 = 1

/**
 * @brief The header data for binary resource types.
 */
type ResourceHeader struct {
	/** @brief A magic number indicating the file as an engine binary file. */
	MagicNumber uint32
	/** @brief The resource type. Maps to the enum resource_type. */
	ResourceType uint8
	/** @brief The format version this resource uses. */
	Version uint8
	/** @brief Reserved for future header data.. */
	Reserved uint16
}

/** @brief The size in bytes of a serialized ResourceHeader. */
const ResourceHeaderSize = 8

package loaders

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/thefork190/TheFork-sub000/engine/math"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief Vertex streams and indices of a geometry, as stored in a binary geometry file.
 */
type GeometryData struct {
	/** @brief One slice per vertex binding, Strides[i]*VertexCount bytes long. */
	Streams     [][]byte
	Strides     []uint32
	Indices     []byte
	IndexType   metadata.IndexType
	VertexCount uint32
	IndexCount  uint32
	/** @brief Bounds of the vertex positions. Not stored in geometry files. */
	Extents math.Extents3D
	Center  mgl32.Vec3
}

type geometryFileHeader struct {
	Header      metadata.ResourceHeader
	StreamCount uint32
	IndexType   uint32
	VertexCount uint32
	IndexCount  uint32
}

// Validate checks that every stream and the indices match the declared counts.
func (g *GeometryData) Validate() error {
	if len(g.Streams) == 0 || len(g.Streams) > metadata.MaxVertexBindings {
		return fmt.Errorf("%d vertex streams: %w", len(g.Streams), ErrInvalidContainer)
	}
	if len(g.Strides) != len(g.Streams) {
		return fmt.Errorf("%d strides for %d streams: %w", len(g.Strides), len(g.Streams), ErrInvalidContainer)
	}
	for i, s := range g.Streams {
		if uint64(len(s)) != uint64(g.Strides[i])*uint64(g.VertexCount) {
			return fmt.Errorf("stream %d holds %d bytes, expected %d: %w", i, len(s), g.Strides[i]*g.VertexCount, ErrInvalidContainer)
		}
	}
	if uint64(len(g.Indices)) != uint64(g.IndexType.Size())*uint64(g.IndexCount) {
		return fmt.Errorf("index data holds %d bytes, expected %d: %w", len(g.Indices), g.IndexType.Size()*g.IndexCount, ErrInvalidContainer)
	}
	return nil
}

// ReadGeometry parses a binary geometry file.
func ReadGeometry(r io.Reader) (*GeometryData, error) {
	var header geometryFileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("geometry header: %w", ErrInvalidContainer)
	}
	if header.Header.MagicNumber != metadata.ResourceMagic {
		return nil, fmt.Errorf("bad magic 0x%x: %w", header.Header.MagicNumber, ErrInvalidContainer)
	}
	if metadata.ResourceType(header.Header.ResourceType) != metadata.ResourceTypeGeometry || header.Header.Version != metadata.ResourceGeometryVersion {
		return nil, fmt.Errorf("resource type %d version %d: %w", header.Header.ResourceType, header.Header.Version, ErrInvalidContainer)
	}
	if header.StreamCount == 0 || header.StreamCount > metadata.MaxVertexBindings {
		return nil, fmt.Errorf("%d vertex streams: %w", header.StreamCount, ErrInvalidContainer)
	}

	g := &GeometryData{
		Strides:     make([]uint32, header.StreamCount),
		Streams:     make([][]byte, header.StreamCount),
		IndexType:   metadata.IndexType(header.IndexType),
		VertexCount: header.VertexCount,
		IndexCount:  header.IndexCount,
	}
	if err := binary.Read(r, binary.LittleEndian, g.Strides); err != nil {
		return nil, fmt.Errorf("geometry strides: %w", ErrInvalidContainer)
	}
	for i := range g.Streams {
		g.Streams[i] = make([]byte, uint64(g.Strides[i])*uint64(g.VertexCount))
		if _, err := io.ReadFull(r, g.Streams[i]); err != nil {
			return nil, fmt.Errorf("geometry stream %d: %w", i, ErrInvalidContainer)
		}
	}
	g.Indices = make([]byte, uint64(g.IndexType.Size())*uint64(g.IndexCount))
	if _, err := io.ReadFull(r, g.Indices); err != nil {
		return nil, fmt.Errorf("geometry indices: %w", ErrInvalidContainer)
	}
	return g, nil
}

// WriteGeometry writes g as a binary geometry file.
func WriteGeometry(w io.Writer, g *GeometryData) error {
	if err := g.Validate(); err != nil {
		return err
	}
	header := geometryFileHeader{
		Header: metadata.ResourceHeader{
			MagicNumber:  metadata.ResourceMagic,
			ResourceType: uint8(metadata.ResourceTypeGeometry),
			Version:      metadata.ResourceGeometryVersion,
		},
		StreamCount: uint32(len(g.Streams)),
		IndexType:   uint32(g.IndexType),
		VertexCount: g.VertexCount,
		IndexCount:  g.IndexCount,
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, g.Strides); err != nil {
		return err
	}
	for _, s := range g.Streams {
		if _, err := w.Write(s); err != nil {
			return err
		}
	}
	_, err := w.Write(g.Indices)
	return err
}

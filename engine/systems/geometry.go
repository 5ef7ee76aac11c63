package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/thefork190/TheFork-sub000/engine/assets"
	"github.com/thefork190/TheFork-sub000/engine/assets/loaders"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/math"
	"github.com/thefork190/TheFork-sub000/engine/renderer/loader"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

var ErrGeometryNotFound = errors.New("geometry not found")

type GeometrySystemConfig struct {
	/** @brief The maximum number of geometries that can be loaded at once. */
	MaxGeometryCount uint32
	/** @brief Size in bytes of the shared vertex buffer. */
	VertexBufferSize uint32
	/** @brief Size in bytes of the shared index buffer. */
	IndexBufferSize uint32
	NodeIndex       uint32
}

type GeometryReference struct {
	Geometry       *loader.Geometry
	Token          loader.SyncToken
	Extents        math.Extents3D
	Center         mgl32.Vec3
	ReferenceCount uint64
	AutoRelease    bool
}

/**
 * @brief Hands out named geometries carved from one shared geometry buffer.
 */
type GeometrySystem struct {
	Config *GeometrySystemConfig
	Buffer *loader.GeometryBuffer

	mutex                sync.Mutex
	registeredGeometries map[string]*GeometryReference

	assetManager *assets.AssetManager
	loader       *loader.ResourceLoader
}

func NewGeometrySystem(config *GeometrySystemConfig, am *assets.AssetManager, l *loader.ResourceLoader) (*GeometrySystem, error) {
	if config.MaxGeometryCount == 0 {
		err := fmt.Errorf("func NewGeometrySystem - config.MaxGeometryCount must be > 0")
		core.LogWarn(err.Error())
		return nil, err
	}
	if config.VertexBufferSize == 0 || config.IndexBufferSize == 0 {
		err := fmt.Errorf("func NewGeometrySystem - shared vertex and index buffer sizes must be > 0")
		core.LogWarn(err.Error())
		return nil, err
	}
	return &GeometrySystem{
		Config:               config,
		registeredGeometries: make(map[string]*GeometryReference),
		assetManager:         am,
		loader:               l,
	}, nil
}

func (gs *GeometrySystem) Initialize() error {
	desc := &loader.GeometryBufferLoadDesc{
		Name:            "geometry system",
		IndexBufferSize: gs.Config.IndexBufferSize,
		NodeIndex:       gs.Config.NodeIndex,
	}
	desc.VertexBufferSizes[0] = gs.Config.VertexBufferSize
	gb, err := gs.loader.AddGeometryBuffer(desc)
	if err != nil {
		core.LogError("failed to create the shared geometry buffer: %s", err)
		return err
	}
	gs.Buffer = gb
	return nil
}

/**
 * @brief Shuts down the geometry system. Every geometry is destroyed once its load completed.
 */
func (gs *GeometrySystem) Shutdown() error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	var errs []error
	for name, ref := range gs.registeredGeometries {
		errs = append(errs, gs.destroyLocked(ref))
		delete(gs.registeredGeometries, name)
	}
	if gs.Buffer != nil {
		errs = append(errs, gs.loader.RemoveResource(gs.Buffer))
		gs.Buffer = nil
	}
	return errors.Join(errs...)
}

/**
 * @brief Acquires an existing geometry by name.
 */
func (gs *GeometrySystem) AcquireByName(name string) (*GeometryReference, error) {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()
	ref, ok := gs.registeredGeometries[name]
	if !ok {
		err := fmt.Errorf("geometry `%s`: %w", name, ErrGeometryNotFound)
		core.LogError(err.Error())
		return nil, err
	}
	ref.ReferenceCount++
	return ref, nil
}

/**
 * @brief Registers and acquires a new geometry from vertex and index data.
 * @param autoRelease Indicates if the geometry should be unloaded when its reference count reaches 0.
 */
func (gs *GeometrySystem) AcquireFromData(name string, data *loaders.GeometryData, autoRelease bool) (*GeometryReference, error) {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if ref, ok := gs.registeredGeometries[name]; ok {
		ref.ReferenceCount++
		return ref, nil
	}
	if uint32(len(gs.registeredGeometries)) >= gs.Config.MaxGeometryCount {
		err := fmt.Errorf("unable to obtain free slot for geometry `%s`. Adjust configuration to allow more space", name)
		core.LogError(err.Error())
		return nil, err
	}

	ref := &GeometryReference{
		Extents:        data.Extents,
		Center:         data.Center,
		ReferenceCount: 1,
		AutoRelease:    autoRelease,
	}
	desc := &loader.GeometryLoadDesc{
		Name:           name,
		VertexStreams:  data.Streams,
		VertexStrides:  data.Strides,
		Indices:        data.Indices,
		IndexType:      data.IndexType,
		GeometryBuffer: gs.Buffer,
	}
	if err := gs.loader.AddResource(desc, &ref.Token); err != nil {
		core.LogError("failed to create geometry `%s`: %s", name, err)
		return nil, err
	}
	ref.Geometry = desc.Geometry
	gs.registeredGeometries[name] = ref
	return ref, nil
}

/**
 * @brief Loads a geometry file from the asset directory and acquires it.
 */
func (gs *GeometrySystem) AcquireFromAsset(name string, autoRelease bool) (*GeometryReference, error) {
	gs.mutex.Lock()
	if ref, ok := gs.registeredGeometries[name]; ok {
		ref.ReferenceCount++
		gs.mutex.Unlock()
		return ref, nil
	}
	gs.mutex.Unlock()

	asset, err := gs.assetManager.LoadAsset(name, metadata.ResourceTypeGeometry)
	if err != nil {
		core.LogError("failed to load geometry `%s`: %s", name, err)
		return nil, err
	}
	data, ok := asset.(*loaders.GeometryData)
	if !ok {
		return nil, fmt.Errorf("asset `%s` is a %T, not geometry", name, asset)
	}
	return gs.AcquireFromData(name, data, autoRelease)
}

/**
 * @brief Releases a reference to the named geometry. Unloads it when the count
 * reaches 0 and auto release was requested.
 */
func (gs *GeometrySystem) Release(name string) error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	ref, ok := gs.registeredGeometries[name]
	if !ok {
		core.LogWarn("geometry_system_release cannot release non-existent geometry `%s`", name)
		return nil
	}
	if ref.ReferenceCount > 0 {
		ref.ReferenceCount--
	}
	if ref.ReferenceCount == 0 && ref.AutoRelease {
		delete(gs.registeredGeometries, name)
		return gs.destroyLocked(ref)
	}
	return nil
}

// destroyLocked waits for the upload of ref, since the worker still writes the geometry until then.
func (gs *GeometrySystem) destroyLocked(ref *GeometryReference) error {
	gs.loader.WaitForToken(ref.Token)
	return gs.loader.RemoveResource(ref.Geometry)
}

// Count returns the number of registered geometries.
func (gs *GeometrySystem) Count() int {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()
	return len(gs.registeredGeometries)
}

/**
 * @brief Generates a cube as one interleaved Vertex3D stream with 16 bit indices.
 * Zero dimensions and tilings default to one.
 */
func GenerateCube(width, height, depth, tileX, tileY float32) *loaders.GeometryData {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	if tileX == 0 {
		core.LogWarn("tileX must be nonzero. Defaulting to one.")
		tileX = 1.0
	}
	if tileY == 0 {
		core.LogWarn("tileY must be nonzero. Defaulting to one.")
		tileY = 1.0
	}

	minX, maxX := -width*0.5, width*0.5
	minY, maxY := -height*0.5, height*0.5
	minZ, maxZ := -depth*0.5, depth*0.5

	faces := [6][4]mgl32.Vec3{
		// Front
		{{minX, minY, maxZ}, {maxX, maxY, maxZ}, {minX, maxY, maxZ}, {maxX, minY, maxZ}},
		// Back
		{{maxX, minY, minZ}, {minX, maxY, minZ}, {maxX, maxY, minZ}, {minX, minY, minZ}},
		// Left
		{{minX, minY, minZ}, {minX, maxY, maxZ}, {minX, maxY, minZ}, {minX, minY, maxZ}},
		// Right
		{{maxX, minY, maxZ}, {maxX, maxY, minZ}, {maxX, maxY, maxZ}, {maxX, minY, minZ}},
		// Bottom
		{{maxX, minY, maxZ}, {minX, minY, minZ}, {maxX, minY, minZ}, {minX, minY, maxZ}},
		// Top
		{{minX, maxY, maxZ}, {maxX, maxY, minZ}, {minX, maxY, minZ}, {maxX, maxY, maxZ}},
	}
	texcoords := [4]mgl32.Vec2{{0, 0}, {tileX, tileY}, {0, tileY}, {tileX, 0}}

	vertices := make([]math.Vertex3D, 0, 24)
	indices := make([]uint32, 0, 36)
	for f, face := range faces {
		offset := uint32(f * 4)
		for v, p := range face {
			vertices = append(vertices, math.Vertex3D{
				Position: p,
				Texcoord: texcoords[v],
				Colour:   mgl32.Vec4{1, 1, 1, 1},
			})
		}
		indices = append(indices, offset+0, offset+1, offset+2, offset+0, offset+3, offset+1)
	}
	math.GeometryGenerateNormals(vertices, indices)
	extents, center := math.GeometryExtents(vertices)

	return &loaders.GeometryData{
		Streams:     [][]byte{math.PackVertices(vertices)},
		Strides:     []uint32{math.Vertex3DSize},
		Indices:     math.PackIndices16(indices),
		IndexType:   metadata.IndexTypeUint16,
		VertexCount: uint32(len(vertices)),
		IndexCount:  uint32(len(indices)),
		Extents:     extents,
		Center:      center,
	}
}

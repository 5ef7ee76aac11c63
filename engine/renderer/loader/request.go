package loader

import (
	"github.com/thefork190/TheFork-sub000/engine/assets/loaders"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief A queued unit of work. Exactly one of the request types below; the
 * worker dispatches on the concrete type.
 */
type request interface {
	waitIndex() SyncToken
	setWaitIndex(token SyncToken)
	describe() string
}

type requestBase struct {
	token SyncToken
}

func (r *requestBase) waitIndex() SyncToken {
	return r.token
}

func (r *requestBase) setWaitIndex(token SyncToken) {
	r.token = token
}

type bufferRequest struct {
	requestBase
	buffer     gpu.Buffer
	dstOffset  uint64
	size       uint64
	data       []byte
	zero       bool
	srcBuffer  gpu.Buffer
	srcOffset  uint64
	startState metadata.ResourceState
}

func (r *bufferRequest) describe() string {
	return "buffer `" + r.buffer.Desc().Name + "`"
}

type textureRequest struct {
	requestBase
	out       *gpu.Texture
	texture   gpu.Texture
	fileName  string
	override  *metadata.TextureDesc
	nodeIndex uint32
	zero      bool

	// progress, kept across staging buffer retries
	container     *loaders.TextureContainer
	closer        func() error
	barrierIssued bool
	next          uint32
}

func (r *textureRequest) describe() string {
	if r.fileName != "" {
		return "texture `" + r.fileName + "`"
	}
	return "texture `" + r.texture.Desc().Name + "`"
}

type geometryRequest struct {
	requestBase
	geometry *Geometry
	fileName string
	streams  [][]byte
	strides  []uint32
	indices  []byte

	allocated  bool
	nextStream int
	staged     bool
}

func (r *geometryRequest) describe() string {
	return "geometry `" + r.geometry.Name + "`"
}

type textureBarrierRequest struct {
	requestBase
	texture gpu.Texture
	current metadata.ResourceState
	next    metadata.ResourceState
}

func (r *textureBarrierRequest) describe() string {
	return "barrier on texture `" + r.texture.Desc().Name + "`"
}

type textureCopyRequest struct {
	requestBase
	desc TextureCopyDesc
}

func (r *textureCopyRequest) describe() string {
	return "readback of texture `" + r.desc.Texture.Desc().Name + "`"
}

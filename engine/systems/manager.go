package systems

import (
	"github.com/thefork190/TheFork-sub000/engine/assets"
	"github.com/thefork190/TheFork-sub000/engine/renderer/loader"
)

type SystemManagerConfig struct {
	JobWorkers       int
	JobQueueSize     int
	MaxTextureCount  uint32
	MaxGeometryCount uint32
	VertexBufferSize uint32
	IndexBufferSize  uint32
	NodeIndex        uint32
}

func DefaultSystemManagerConfig() SystemManagerConfig {
	return SystemManagerConfig{
		JobWorkers:       2,
		JobQueueSize:     64,
		MaxTextureCount:  1024,
		MaxGeometryCount: 4096,
		VertexBufferSize: 16 << 20,
		IndexBufferSize:  4 << 20,
	}
}

type SystemManager struct {
	JobSystem      *JobSystem
	TextureSystem  *TextureSystem
	GeometrySystem *GeometrySystem
}

func NewSystemManager(config SystemManagerConfig, am *assets.AssetManager, l *loader.ResourceLoader) (*SystemManager, error) {
	js, err := NewJobSystem(config.JobWorkers, config.JobQueueSize)
	if err != nil {
		return nil, err
	}
	ts, err := NewTextureSystem(&TextureSystemConfig{
		MaxTextureCount: config.MaxTextureCount,
		NodeIndex:       config.NodeIndex,
	}, js, am, l)
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}
	gs, err := NewGeometrySystem(&GeometrySystemConfig{
		MaxGeometryCount: config.MaxGeometryCount,
		VertexBufferSize: config.VertexBufferSize,
		IndexBufferSize:  config.IndexBufferSize,
		NodeIndex:        config.NodeIndex,
	}, am, l)
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		JobSystem:      js,
		TextureSystem:  ts,
		GeometrySystem: gs,
	}, nil
}

func (sm *SystemManager) Initialize() error {
	if err := sm.TextureSystem.Initialize(); err != nil {
		return err
	}
	if err := sm.GeometrySystem.Initialize(); err != nil {
		return err
	}
	return nil
}

// Update runs once per frame, after the GPU finished the previous frame.
func (sm *SystemManager) Update() {
	sm.TextureSystem.Update()
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.GeometrySystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.TextureSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}

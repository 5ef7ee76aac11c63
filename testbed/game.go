package testbed

import (
	"encoding/binary"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/thefork190/TheFork-sub000/engine"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/loader"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
	"github.com/thefork190/TheFork-sub000/engine/systems"
)

const (
	cubeName    = "test_cube"
	crateName   = "crate"
	textureName = "checker"
	// One model matrix.
	uniformSize = 16 * 4
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	rotation float32
	frames   uint64

	cube          *systems.GeometryReference
	crate         *systems.GeometryReference
	texture       *systems.Texture
	uniformBuffer gpu.Buffer
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	state := g.state()
	sm := g.SystemManager

	cube, err := sm.GeometrySystem.AcquireFromData(cubeName, systems.GenerateCube(10, 10, 10, 1, 1), true)
	if err != nil {
		return err
	}
	state.cube = cube

	// Optional assets: the testbed runs without them.
	if crate, err := sm.GeometrySystem.AcquireFromAsset(crateName, true); err == nil {
		state.crate = crate
	} else {
		core.LogWarn("testbed geometry `%s` not loaded: %s", crateName, err)
	}
	if tex, err := sm.TextureSystem.Acquire(textureName, true); err == nil {
		state.texture = tex
	} else {
		core.LogWarn("testbed texture `%s` not loaded: %s", textureName, err)
	}

	desc := &loader.BufferLoadDesc{
		Desc: &metadata.BufferDesc{
			Name:        "testbed uniforms",
			Size:        uniformSize,
			MemoryUsage: metadata.MemoryUsageGPUOnly,
			Descriptors: metadata.DescriptorTypeUniformBuffer,
		},
		ForceReset: true,
	}
	if err := g.Renderer.Loader().AddResource(desc, nil); err != nil {
		return err
	}
	state.uniformBuffer = desc.Buffer

	core.EventRegister(core.EVENT_CODE_TEXTURE_LOADED, g, g.onTextureLoaded)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.rotation += float32(0.5 * deltaTime)
	model := mgl32.HomogRotate3DY(state.rotation)

	update := &loader.BufferUpdateDesc{Buffer: state.uniformBuffer}
	if err := g.Renderer.Loader().BeginUpdateResource(update); err != nil {
		return err
	}
	for i, f := range model {
		binary.LittleEndian.PutUint32(update.MappedData[i*4:], stdmath.Float32bits(f))
	}
	return g.Renderer.Loader().EndUpdateResource(update)
}

func (g *TestGame) Render(deltaTime float64) error {
	state := g.state()
	state.frames++
	if state.frames%120 != 0 {
		return nil
	}
	l := g.Renderer.Loader()
	if !l.IsTokenCompleted(state.cube.Token) {
		core.LogDebug("cube still streaming (token %d, last completed %d)", state.cube.Token, l.LastTokenCompleted())
		return nil
	}
	if state.texture != nil {
		core.LogDebug("texture `%s` generation %d", state.texture.Name, state.texture.Generation())
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	core.EventUnregister(core.EVENT_CODE_TEXTURE_LOADED, g)
	state := g.state()
	sm := g.SystemManager

	if state.texture != nil {
		sm.TextureSystem.Release(textureName)
	}
	if state.crate != nil {
		if err := sm.GeometrySystem.Release(crateName); err != nil {
			return err
		}
	}
	if err := sm.GeometrySystem.Release(cubeName); err != nil {
		return err
	}
	l := g.Renderer.Loader()
	l.WaitForAllResourceLoads()
	return l.RemoveResource(state.uniformBuffer)
}

func (g *TestGame) onTextureLoaded(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	core.LogInfo("texture `%s` ready (token %d)", data.Data.C[0], data.Data.U64[0])
	return false
}

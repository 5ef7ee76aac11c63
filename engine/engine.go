package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/thefork190/TheFork-sub000/engine/assets"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer"
	"github.com/thefork190/TheFork-sub000/engine/renderer/software"
	"github.com/thefork190/TheFork-sub000/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutdown
)

const metricsLogInterval = 300

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	assetManager  *assets.AssetManager
	renderer      *renderer.Renderer
	systemManager *systems.SystemManager
	clock         *core.Clock
	metrics       *core.Metrics
	lastTime      float64
	frameCount    uint64
}

func New(g *Game) (*Engine, error) {
	config := g.ApplicationConfig
	if config == nil {
		defaults := DefaultApplicationConfig()
		config = &defaults
		g.ApplicationConfig = config
	}
	core.SetLogLevel(config.LogLevel)

	rendererType, err := renderer.ParseRendererType(config.Renderer)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	am, err := assets.NewAssetManager(config.AssetsDir)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	r, err := renderer.New(renderer.Config{
		AppName:  config.Name,
		Type:     rendererType,
		GPUCount: config.GPUCount,
		Debug:    config.Debug,
		Software: software.Config{
			UnifiedMemory:           config.Software.UnifiedMemory,
			StrictQueueTypeBarriers: config.Software.StrictQueueTypeBarriers,
			ExecutionDelay:          time.Duration(config.Software.ExecutionDelayMS) * time.Millisecond,
		},
		Loader: config.Loader,
		FS:     am,
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(systems.DefaultSystemManagerConfig(), am, r.Loader())
	if err != nil {
		core.LogError(err.Error())
		_ = r.Shutdown()
		return nil, err
	}
	g.SystemManager = sm
	g.Renderer = r

	return &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		assetManager:  am,
		renderer:      r,
		systemManager: sm,
		clock:         core.NewClock(),
		metrics:       core.NewMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	// initialize events
	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)

	// initialize subsystems
	if err := e.assetManager.Initialize(); err != nil {
		return err
	}
	if err := e.systemManager.Initialize(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	config := e.gameInstance.ApplicationConfig
	var targetFrameSeconds float64
	if config.TargetFrameRate > 0 {
		targetFrameSeconds = 1.0 / config.TargetFrameRate
	}

	for e.isRunning.Load() {
		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				e.isRunning.Store(false)
				return err
			}
		}

		// Call the game's render routine.
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(delta); err != nil {
				core.LogError("Game render failed, shutting down: %s", err)
				e.isRunning.Store(false)
				return err
			}
		}

		// Draw frame
		if err := e.renderer.DrawFrame(delta); err != nil {
			core.LogError("DrawFrame failed. Application shutting down...")
			e.isRunning.Store(false)
			return err
		}
		// The GPU finished the frame, so retired resources can go.
		e.systemManager.Update()

		frameElapsedTime := time.Since(frameStartTime)
		e.metrics.Update(frameElapsedTime.Seconds())
		e.frameCount++
		if e.frameCount%metricsLogInterval == 0 {
			fps, frameTime := e.metrics.Frame()
			stats := e.renderer.Loader().Stats()
			core.LogDebug("frame %d: %.1f fps, %.3f ms, %d requests, %d bytes staged", e.frameCount, fps, frameTime, stats.RequestsProcessed, stats.BytesStaged)
		}

		// If there is time left, give it back to the OS.
		if remaining := targetFrameSeconds - frameElapsedTime.Seconds(); remaining > 0 {
			time.Sleep(time.Duration(remaining * float64(time.Second)))
		}

		if config.MaxFrames > 0 && e.frameCount >= config.MaxFrames {
			e.isRunning.Store(false)
		}
		e.lastTime = currentTime
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Stop makes Run return after the current frame.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	if err := e.assetManager.Shutdown(); err != nil {
		return err
	}
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	if err := e.renderer.Shutdown(); err != nil {
		return err
	}
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	if err := core.EventShutdown(); err != nil {
		return err
	}
	e.currentStage = EngineStageShutdown
	return nil
}

func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT recieved, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

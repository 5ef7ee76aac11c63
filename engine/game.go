package engine

import (
	"github.com/thefork190/TheFork-sub000/engine/renderer"
	"github.com/thefork190/TheFork-sub000/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine before FnInitialize is called.
	SystemManager *systems.SystemManager
	Renderer      *renderer.Renderer
	State         interface{}
	FnInitialize  Initialize
	FnUpdate      Update
	FnRender      Render
	FnShutdown    Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(deltaTime float64) error
type Shutdown func() error

package engine

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/loader"
)

type SoftwareConfig struct {
	/** @brief Map every buffer, like an integrated GPU. */
	UnifiedMemory bool `toml:"unified_memory"`
	/** @brief Forbid non-copy state transitions on transfer queues. */
	StrictQueueTypeBarriers bool `toml:"strict_queue_type_barriers"`
	/** @brief Artificial latency of every submission, in milliseconds. */
	ExecutionDelayMS uint32 `toml:"execution_delay_ms"`
}

type ApplicationConfig struct {
	// The application name, used for logging and device names.
	Name     string        `toml:"name"`
	LogLevel core.LogLevel `toml:"log_level"`
	// Renderer backend: software or vulkan.
	Renderer string `toml:"renderer"`
	GPUCount uint32 `toml:"gpu_count"`
	// Enables backend validation layers.
	Debug bool `toml:"debug"`
	// Directory assets are loaded from and watched in.
	AssetsDir string `toml:"assets_dir"`
	// Frames per second the loop is limited to. Zero disables limiting.
	TargetFrameRate float64 `toml:"target_frame_rate"`
	// Stop after this many frames. Zero runs until the application quits.
	MaxFrames uint64 `toml:"max_frames"`

	Software SoftwareConfig `toml:"software"`
	Loader   loader.Config  `toml:"loader"`
}

func DefaultApplicationConfig() ApplicationConfig {
	return ApplicationConfig{
		Name:            "TheFork",
		LogLevel:        core.LogLevelInfo,
		Renderer:        "software",
		GPUCount:        1,
		AssetsDir:       "assets",
		TargetFrameRate: 60,
		Loader:          loader.DefaultConfig(),
	}
}

// LoadApplicationConfig overlays the TOML file at path on the defaults. A missing file is not an error.
func LoadApplicationConfig(path string) (ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogWarn("config file `%s` not found, using defaults", path)
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		core.LogError("failed to parse application config `%s`: %s", path, err)
		return cfg, err
	}
	return cfg, nil
}

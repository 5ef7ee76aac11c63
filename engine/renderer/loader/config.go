package loader

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/thefork190/TheFork-sub000/engine/core"
)

const (
	DefaultBufferSize  uint64 = 8 << 20
	DefaultBufferCount uint32 = 2
	maxBufferCount     uint32 = 4
)

/**
 * @brief Resource loader configuration.
 */
type Config struct {
	/** @brief Size in bytes of each staging buffer of the worker copy engines. */
	BufferSize uint64 `toml:"buffer_size"`
	/** @brief Number of in-flight resource sets per copy engine (2 or 3 is typical). */
	BufferCount uint32 `toml:"buffer_count"`
	/** @brief Run requests synchronously on the calling goroutine instead of a worker. */
	SingleThreaded bool `toml:"single_threaded"`
	/**
	 * @brief Let the worker copy engines flush and stall inside a staging allocation
	 * instead of retrying the request after a flush.
	 */
	FlushOnOverflow bool `toml:"flush_on_overflow"`
	/** @brief Size in bytes of each staging buffer of the upload engines. Zero uses BufferSize. */
	UploadBufferSize uint64 `toml:"upload_buffer_size"`
}

func DefaultConfig() Config {
	return Config{
		BufferSize:  DefaultBufferSize,
		BufferCount: DefaultBufferCount,
	}
}

// LoadConfig overlays the TOML file at path on the defaults. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		core.LogError("failed to parse resource loader config `%s`: %s", path, err)
		return cfg, err
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.BufferCount == 0 {
		c.BufferCount = DefaultBufferCount
	}
	if c.BufferCount > maxBufferCount {
		core.LogWarn("resource loader buffer count %d clamped to %d", c.BufferCount, maxBufferCount)
		c.BufferCount = maxBufferCount
	}
	if c.UploadBufferSize == 0 {
		c.UploadBufferSize = c.BufferSize
	}
	return c
}

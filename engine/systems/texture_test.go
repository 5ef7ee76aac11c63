package systems

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefork190/TheFork-sub000/engine/assets"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/loader"
	"github.com/thefork190/TheFork-sub000/engine/renderer/software"
)

type testEnv struct {
	root   string
	assets *assets.AssetManager
	device *software.Device
	loader *loader.ResourceLoader
	jobs   *JobSystem
}

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func pngBytes(t *testing.T, size int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newTestEnv starts the event bus, an asset manager over files, a software device and a loader.
func newTestEnv(t *testing.T, files map[string][]byte) *testEnv {
	t.Helper()
	require.True(t, core.EventInitialize())
	t.Cleanup(func() { _ = core.EventShutdown() })

	env := &testEnv{root: t.TempDir()}
	for name, data := range files {
		writeFile(t, env.root, name, data)
	}

	env.device = software.NewDevice(software.Config{})
	t.Cleanup(func() {
		assert.Empty(t, env.device.ValidationErrors())
		assert.NoError(t, env.device.Destroy())
	})

	var err error
	env.assets, err = assets.NewAssetManager(env.root)
	require.NoError(t, err)

	cfg := loader.DefaultConfig()
	cfg.BufferSize = 1 << 20
	env.loader, err = loader.New([]gpu.Device{env.device}, env.assets, &cfg)
	require.NoError(t, err)
	t.Cleanup(env.loader.Shutdown)

	env.jobs, err = NewJobSystem(2, 16)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, env.jobs.Shutdown()) })

	require.NoError(t, env.assets.Initialize())
	t.Cleanup(func() { assert.NoError(t, env.assets.Shutdown()) })
	return env
}

func newTestTextureSystem(t *testing.T, env *testEnv) *TextureSystem {
	t.Helper()
	ts, err := NewTextureSystem(&TextureSystemConfig{MaxTextureCount: 4}, env.jobs, env.assets, env.loader)
	require.NoError(t, err)
	require.NoError(t, ts.Initialize())
	t.Cleanup(func() { assert.NoError(t, ts.Shutdown()) })
	return ts
}

func TestNewTextureSystemValidation(t *testing.T) {
	_, err := NewTextureSystem(&TextureSystemConfig{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestShutdownBeforeFirstFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	ts, err := NewTextureSystem(&TextureSystemConfig{MaxTextureCount: 4}, env.jobs, env.assets, env.loader)
	require.NoError(t, err)
	require.NoError(t, ts.Initialize())

	pixels := ts.DefaultTexture.(*software.Texture).Subresource(0, 0)
	assert.Equal(t, []byte{0, 0, 255, 255, 255, 255, 255, 255}, pixels[:8])

	require.NoError(t, ts.Shutdown())
	env.loader.Shutdown()
	assert.Empty(t, env.device.ValidationErrors())
	assert.Zero(t, env.device.Stats().LiveTextures())
}

func TestAcquireLoadsTexture(t *testing.T) {
	env := newTestEnv(t, map[string][]byte{
		"textures/crate.png": pngBytes(t, 4, color.RGBA{R: 200, A: 255}),
	})
	ts := newTestTextureSystem(t, env)
	require.NotNil(t, ts.DefaultTexture)
	assert.Equal(t, DefaultTextureName, ts.DefaultTexture.Desc().Name)

	tex, err := ts.Acquire("crate", true)
	require.NoError(t, err)
	assert.Equal(t, "textures/crate.png", tex.Path)

	again, err := ts.Acquire("crate", true)
	require.NoError(t, err)
	assert.Same(t, tex, again)

	env.jobs.Wait()
	assert.Equal(t, uint32(1), tex.Generation())
	assert.True(t, env.loader.IsTokenCompleted(tex.Token()))
	assert.NotEqual(t, ts.DefaultTexture, tex.Get())
	assert.Equal(t, "crate", tex.Get().Desc().Name)
	assert.Equal(t, uint32(4), tex.Get().Desc().Width)

	_, err = ts.Acquire("missing", true)
	assert.ErrorIs(t, err, ErrTextureNotFound)
}

func TestTextureLimit(t *testing.T) {
	files := map[string][]byte{}
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png", "e.png"} {
		files[name] = pngBytes(t, 2, color.RGBA{A: 255})
	}
	env := newTestEnv(t, files)
	ts := newTestTextureSystem(t, env)

	for i, name := range []string{"a", "b", "c", "d"} {
		tex, err := ts.Acquire(name, true)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), tex.ID)
	}
	_, err := ts.Acquire("e", true)
	assert.ErrorIs(t, err, ErrMaxTextures)
	env.jobs.Wait()
}

func TestReleaseDestroysTexture(t *testing.T) {
	env := newTestEnv(t, map[string][]byte{
		"crate.png": pngBytes(t, 4, color.RGBA{G: 200, A: 255}),
	})
	ts := newTestTextureSystem(t, env)
	live := env.device.Stats().LiveTextures()

	first, err := ts.Acquire("crate", true)
	require.NoError(t, err)
	_, err = ts.Acquire("crate", true)
	require.NoError(t, err)
	env.jobs.Wait()
	assert.Equal(t, live+1, env.device.Stats().LiveTextures())

	ts.Release("crate")
	ts.Update()
	assert.Equal(t, live+1, env.device.Stats().LiveTextures())

	ts.Release("crate")
	ts.Update()
	assert.Equal(t, live, env.device.Stats().LiveTextures())

	second, err := ts.Acquire("crate", true)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, first.ID, second.ID)
	env.jobs.Wait()
	assert.Equal(t, uint32(1), second.Generation())
}

func TestInvalidTextureKeepsDefault(t *testing.T) {
	env := newTestEnv(t, map[string][]byte{
		"broken.png": []byte("not a png"),
	})
	ts := newTestTextureSystem(t, env)

	tex, err := ts.Acquire("broken", true)
	require.NoError(t, err)
	env.jobs.Wait()
	assert.Equal(t, uint32(0), tex.Generation())
	assert.Equal(t, ts.DefaultTexture, tex.Get())
}

func TestExplicitReload(t *testing.T) {
	env := newTestEnv(t, map[string][]byte{
		"crate.png": pngBytes(t, 4, color.RGBA{B: 200, A: 255}),
	})
	ts := newTestTextureSystem(t, env)

	tex, err := ts.Acquire("crate", false)
	require.NoError(t, err)
	env.jobs.Wait()
	firstToken := tex.Token()

	require.NoError(t, ts.Reload("crate"))
	env.jobs.Wait()
	assert.Equal(t, uint32(2), tex.Generation())
	assert.Greater(t, tex.Token(), firstToken)

	assert.ErrorIs(t, ts.Reload("missing"), ErrTextureNotFound)
}

func TestTextureHotReload(t *testing.T) {
	env := newTestEnv(t, map[string][]byte{
		"crate.png": pngBytes(t, 4, color.RGBA{R: 10, A: 255}),
	})
	ts := newTestTextureSystem(t, env)

	tex, err := ts.Acquire("crate", true)
	require.NoError(t, err)
	env.jobs.Wait()
	require.Equal(t, uint32(4), tex.Get().Desc().Width)

	loaded := make(chan string, 16)
	core.EventRegister(core.EVENT_CODE_TEXTURE_LOADED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		select {
		case loaded <- data.Data.C[0]:
		default:
		}
		return false
	})

	writeFile(t, env.root, "crate.png", pngBytes(t, 8, color.RGBA{R: 20, A: 255}))
	require.Eventually(t, func() bool {
		return tex.Get().Desc().Width == 8
	}, 5*time.Second, 10*time.Millisecond)
	assert.Greater(t, tex.Generation(), uint32(1))

	select {
	case name := <-loaded:
		assert.Equal(t, "crate", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no texture loaded event")
	}
}

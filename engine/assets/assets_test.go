package assets

import (
	"bytes"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefork190/TheFork-sub000/engine/assets/loaders"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestManager(t *testing.T, root string) *AssetManager {
	t.Helper()
	am, err := NewAssetManager(root)
	require.NoError(t, err)
	require.NoError(t, am.Initialize())
	t.Cleanup(func() { assert.NoError(t, am.Shutdown()) })
	return am
}

type assetEvent struct {
	code core.SystemEventCode
	path string
}

// listen forwards asset events to a channel for the duration of the test.
func listen(t *testing.T) <-chan assetEvent {
	t.Helper()
	require.True(t, core.EventInitialize())
	t.Cleanup(func() { _ = core.EventShutdown() })

	events := make(chan assetEvent, 64)
	onEvent := func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		select {
		case events <- assetEvent{code: code, path: data.Data.C[0]}:
		default:
		}
		return false
	}
	require.True(t, core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, t, onEvent))
	require.True(t, core.EventRegister(core.EVENT_CODE_ASSET_REMOVED, t, onEvent))
	return events
}

func waitForEvent(t *testing.T, events <-chan assetEvent, code core.SystemEventCode, path string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.code == code && e.path == path {
				return
			}
		case <-timeout:
			t.Fatalf("no event %d for `%s`", code, path)
		}
	}
}

func TestAssetIndexAndFS(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "textures/wall.png", pngBytes(t, 4, 2))
	writeFile(t, root, "textures/floor.dds", []byte("DDS "))
	writeFile(t, root, "shaders/basic.spv", []byte{1, 2, 3, 4, 5, 6, 7, 8})
	writeFile(t, root, "readme.txt", []byte("ignored"))

	am := newTestManager(t, root)
	assert.Equal(t, 3, am.Count())

	images := am.Assets(metadata.ResourceTypeImage)
	require.Len(t, images, 2)
	assert.Equal(t, "textures/floor.dds", images[0].Path)
	assert.Equal(t, "textures/wall.png", images[1].Path)

	asset, ok := am.Find("wall", metadata.ResourceTypeImage)
	require.True(t, ok)
	assert.Equal(t, "textures/wall.png", asset.Path)
	_, ok = am.Find("wall", metadata.ResourceTypeGeometry)
	assert.False(t, ok)
	_, ok = am.Find("textures/floor.dds", metadata.ResourceTypeImage)
	assert.True(t, ok)

	data, err := fs.ReadFile(am, "shaders/basic.spv")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data)
	require.NoError(t, fstest.TestFS(am, "textures/wall.png", "shaders/basic.spv"))
}

func TestLoadAsset(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "textures/wall.png", pngBytes(t, 4, 2))
	writeFile(t, root, "shaders/basic.spv", []byte{1, 0, 0, 0, 2, 0, 0, 0})
	var geom bytes.Buffer
	require.NoError(t, loaders.WriteGeometry(&geom, &loaders.GeometryData{
		Streams:     [][]byte{make([]byte, 36)},
		Strides:     []uint32{12},
		Indices:     []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0},
		IndexType:   metadata.IndexTypeUint32,
		VertexCount: 3,
		IndexCount:  3,
	}))
	writeFile(t, root, "meshes/triangle.geom", geom.Bytes())
	am := newTestManager(t, root)

	desc, err := am.LoadAsset("wall", metadata.ResourceTypeImage)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), desc.(metadata.TextureDesc).Width)
	assert.Equal(t, uint32(2), desc.(metadata.TextureDesc).Height)

	words, err := am.LoadAsset("basic", metadata.ResourceTypeBinary)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, words)

	g, err := am.LoadAsset("meshes/triangle.geom", metadata.ResourceTypeGeometry)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), g.(*loaders.GeometryData).VertexCount)

	_, err = am.LoadAsset("missing", metadata.ResourceTypeImage)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestWatcherFiresAssetEvents(t *testing.T) {
	events := listen(t)
	root := t.TempDir()
	writeFile(t, root, "textures/wall.png", pngBytes(t, 2, 2))
	am := newTestManager(t, root)

	writeFile(t, root, "textures/wall.png", pngBytes(t, 8, 8))
	waitForEvent(t, events, core.EVENT_CODE_ASSET_CHANGED, "textures/wall.png")

	writeFile(t, root, "textures/new.ktx", []byte("ktx"))
	waitForEvent(t, events, core.EVENT_CODE_ASSET_CHANGED, "textures/new.ktx")
	_, ok := am.Find("new", metadata.ResourceTypeImage)
	assert.True(t, ok)

	require.NoError(t, os.Remove(filepath.Join(root, "textures", "new.ktx")))
	waitForEvent(t, events, core.EVENT_CODE_ASSET_REMOVED, "textures/new.ktx")
	_, ok = am.Find("new", metadata.ResourceTypeImage)
	assert.False(t, ok)

	writeFile(t, root, "levels/one/ground.png", pngBytes(t, 2, 2))
	waitForEvent(t, events, core.EVENT_CODE_ASSET_CHANGED, "levels/one/ground.png")
}

func TestShutdownIsIdempotent(t *testing.T) {
	am, err := NewAssetManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, am.Shutdown())
	require.NoError(t, am.Shutdown())
	assert.ErrorIs(t, am.Initialize(), ErrClosed)

	_, err = NewAssetManager(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/thefork190/TheFork-sub000/engine/assets"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/loader"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

const DefaultTextureName string = "default"

const defaultTextureDimension uint32 = 16

var ErrTextureNotFound = errors.New("texture not found")
var ErrMaxTextures = errors.New("maximum texture count reached")

type TextureSystemConfig struct {
	/** @brief The maximum number of textures that can be loaded at once. */
	MaxTextureCount uint32
	/** @brief The GPU textures are streamed to. */
	NodeIndex uint32
}

/**
 * @brief A named texture. Until its file finished loading it resolves to the
 * default texture; reloads replace the GPU texture in place.
 */
type Texture struct {
	ID   uint32
	Name string
	Path string

	mutex      sync.RWMutex
	texture    gpu.Texture
	token      loader.SyncToken
	generation uint32
}

// Get returns the GPU texture currently backing t.
func (t *Texture) Get() gpu.Texture {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.texture
}

// Generation is incremented every time a load of t completes.
func (t *Texture) Generation() uint32 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.generation
}

// Token returns the load token of the texture currently backing t.
func (t *Texture) Token() loader.SyncToken {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.token
}

type textureReference struct {
	texture        *Texture
	referenceCount uint64
	autoRelease    bool
	released       bool
}

type TextureSystem struct {
	Config         *TextureSystemConfig
	DefaultTexture gpu.Texture

	mutex sync.RWMutex
	// Hashtable for texture lookups.
	registeredTextureTable map[string]*textureReference
	// Textures replaced or released, destroyed on the next Update.
	retired []gpu.Texture
	ids     *core.IdentifierPool

	jobSystem    *JobSystem
	assetManager *assets.AssetManager
	loader       *loader.ResourceLoader
}

func NewTextureSystem(config *TextureSystemConfig, js *JobSystem, am *assets.AssetManager, l *loader.ResourceLoader) (*TextureSystem, error) {
	if config.MaxTextureCount == 0 {
		err := fmt.Errorf("func NewTextureSystem - config.MaxTextureCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	return &TextureSystem{
		Config:                 config,
		registeredTextureTable: make(map[string]*textureReference),
		ids:                    core.NewIdentifierPool(int(config.MaxTextureCount)),
		jobSystem:              js,
		assetManager:           am,
		loader:                 l,
	}, nil
}

/**
 * @brief Creates the default checkerboard texture and starts listening for asset changes.
 */
func (ts *TextureSystem) Initialize() error {
	if err := ts.createDefaultTexture(); err != nil {
		return err
	}
	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, ts, ts.onAssetChanged)
	core.EventRegister(core.EVENT_CODE_ASSET_REMOVED, ts, ts.onAssetRemoved)
	return nil
}

// createDefaultTexture writes a 16x16 blue and white checkerboard through the upload engine.
func (ts *TextureSystem) createDefaultTexture() error {
	core.LogDebug("Creating default texture...")
	var tex gpu.Texture
	if err := ts.loader.AddResource(&loader.TextureLoadDesc{
		Texture: &tex,
		Desc: &metadata.TextureDesc{
			Name:        DefaultTextureName,
			Width:       defaultTextureDimension,
			Height:      defaultTextureDimension,
			Format:      metadata.TextureFormatRGBA8,
			Descriptors: metadata.DescriptorTypeTexture,
			NodeIndex:   ts.Config.NodeIndex,
		},
	}, nil); err != nil {
		core.LogError("failed to create the default texture: %s", err)
		return err
	}

	update := &loader.TextureUpdateDesc{Texture: tex}
	if err := ts.loader.BeginUpdateResource(update); err != nil {
		core.LogError("failed to update the default texture: %s", err)
		return errors.Join(err, tex.Destroy())
	}
	for row := uint32(0); row < update.RowCount; row++ {
		pixels := update.Row(0, row)
		for col := uint32(0); col < defaultTextureDimension; col++ {
			p := pixels[col*4 : col*4+4]
			p[0], p[1], p[2], p[3] = 255, 255, 255, 255
			if (row%2 == 0) == (col%2 == 0) {
				p[0], p[1] = 0, 0
			}
		}
	}
	if err := ts.loader.EndUpdateResource(update); err != nil {
		return errors.Join(err, tex.Destroy())
	}
	// The checkerboard must be on the GPU before anything can destroy the texture.
	if err := ts.loader.WaitForResourceUpdates(ts.Config.NodeIndex); err != nil {
		core.LogError("failed to upload the default texture: %s", err)
		return errors.Join(err, tex.Destroy())
	}
	ts.DefaultTexture = tex
	return nil
}

/**
 * @brief Shuts the texture system down, destroying every texture it owns.
 * Pending loads are waited for first.
 */
func (ts *TextureSystem) Shutdown() error {
	core.EventUnregister(core.EVENT_CODE_ASSET_CHANGED, ts)
	core.EventUnregister(core.EVENT_CODE_ASSET_REMOVED, ts)
	ts.jobSystem.Wait()

	ts.mutex.Lock()
	for _, ref := range ts.registeredTextureTable {
		ref.released = true
		ts.retireLocked(ref.texture.Get())
		ts.unregisterLocked(ref)
	}
	ts.mutex.Unlock()
	ts.Update()

	if ts.DefaultTexture != nil {
		if err := ts.loader.RemoveResource(ts.DefaultTexture); err != nil {
			return err
		}
		ts.DefaultTexture = nil
	}
	return nil
}

/**
 * @brief Destroys the textures retired since the last call. Must only be called once
 * the GPU finished every submission that could still reference them.
 */
func (ts *TextureSystem) Update() {
	ts.mutex.Lock()
	retired := ts.retired
	ts.retired = nil
	ts.mutex.Unlock()
	for _, t := range retired {
		if err := ts.loader.RemoveResource(t); err != nil {
			core.LogError("failed to destroy texture `%s`: %s", t.Desc().Name, err)
		}
	}
}

/**
 * @brief Attempts to acquire a texture with the given name. If it has not yet been
 * loaded, this triggers it to load from the asset directory.
 * @param name The name of the texture to find, with or without extension.
 * @param autoRelease Indicates if the texture should be released when its reference count is 0.
 */
func (ts *TextureSystem) Acquire(name string, autoRelease bool) (*Texture, error) {
	if name == DefaultTextureName {
		core.LogWarn("texture_system_acquire called for default texture. Use DefaultTexture instead")
		return &Texture{Name: DefaultTextureName, texture: ts.DefaultTexture}, nil
	}

	ts.mutex.Lock()
	if ref, ok := ts.registeredTextureTable[name]; ok {
		ref.referenceCount++
		ts.mutex.Unlock()
		return ref.texture, nil
	}
	if uint32(len(ts.registeredTextureTable)) >= ts.Config.MaxTextureCount {
		ts.mutex.Unlock()
		return nil, fmt.Errorf("texture `%s`: %w", name, ErrMaxTextures)
	}
	info, ok := ts.assetManager.Find(name, metadata.ResourceTypeImage)
	if !ok {
		ts.mutex.Unlock()
		err := fmt.Errorf("texture `%s`: %w", name, ErrTextureNotFound)
		core.LogError(err.Error())
		return nil, err
	}
	ref := &textureReference{
		texture:        &Texture{Name: name, Path: info.Path, texture: ts.DefaultTexture},
		referenceCount: 1,
		autoRelease:    autoRelease,
	}
	ref.texture.ID = ts.ids.Acquire(ref)
	ts.registeredTextureTable[name] = ref
	ts.mutex.Unlock()

	if err := ts.load(ref); err != nil {
		ts.mutex.Lock()
		ts.unregisterLocked(ref)
		ts.mutex.Unlock()
		return nil, err
	}
	return ref.texture, nil
}

/**
 * @brief Releases a texture with the given name. Ignores non-existant textures.
 * Decreases the reference counter by 1. If the reference counter reaches 0 and
 * autoRelease was set, the texture is unloaded.
 */
func (ts *TextureSystem) Release(name string) {
	if name == DefaultTextureName {
		return
	}
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	ref, ok := ts.registeredTextureTable[name]
	if !ok {
		core.LogWarn("tried to release non-existent texture: '%s'", name)
		return
	}
	if ref.referenceCount > 0 {
		ref.referenceCount--
	}
	if ref.referenceCount == 0 && ref.autoRelease {
		ref.released = true
		ts.unregisterLocked(ref)
		ts.retireLocked(ref.texture.Get())
		core.LogDebug("Released texture '%s'., Texture unloaded because reference count=0 and auto_release=true.", name)
	}
}

// Reload queues a new load of the named texture from its file.
func (ts *TextureSystem) Reload(name string) error {
	ts.mutex.RLock()
	ref, ok := ts.registeredTextureTable[name]
	ts.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("texture `%s`: %w", name, ErrTextureNotFound)
	}
	return ts.load(ref)
}

func (ts *TextureSystem) load(ref *textureReference) error {
	t := ref.texture
	var tex gpu.Texture
	var token loader.SyncToken
	err := ts.loader.AddResource(&loader.TextureLoadDesc{
		Texture:   &tex,
		FileName:  t.Path,
		Desc:      &metadata.TextureDesc{Name: t.Name},
		NodeIndex: ts.Config.NodeIndex,
	}, &token)
	if err != nil {
		core.LogError("failed to queue texture `%s`: %s", t.Name, err)
		return err
	}

	return ts.jobSystem.Submit(JobTask{
		Name: "load texture " + t.Name,
		OnStart: func() error {
			ts.loader.WaitForToken(token)
			return ts.loader.TokenError(token)
		},
		OnComplete: func() {
			ts.publish(ref, tex, token)
		},
		OnFailure: func(err error) {
			if tex != nil {
				ts.mutex.Lock()
				ts.retireLocked(tex)
				ts.mutex.Unlock()
			}
		},
	})
}

// publish swaps in a completed load, unless a newer load already landed.
func (ts *TextureSystem) publish(ref *textureReference, tex gpu.Texture, token loader.SyncToken) {
	t := ref.texture
	ts.mutex.Lock()
	if ref.released {
		ts.retireLocked(tex)
		ts.mutex.Unlock()
		return
	}
	t.mutex.Lock()
	if token <= t.token {
		t.mutex.Unlock()
		ts.retireLocked(tex)
		ts.mutex.Unlock()
		return
	}
	old := t.texture
	t.texture = tex
	t.token = token
	t.generation++
	t.mutex.Unlock()
	ts.retireLocked(old)
	ts.mutex.Unlock()

	core.LogDebug("texture `%s` loaded (token %d)", t.Name, token)
	ctx := core.EventContext{}
	ctx.Data.C[0] = t.Name
	ctx.Data.U64[0] = uint64(token)
	core.EventFire(core.EVENT_CODE_TEXTURE_LOADED, ts, ctx)
}

func (ts *TextureSystem) unregisterLocked(ref *textureReference) {
	delete(ts.registeredTextureTable, ref.texture.Name)
	if err := ts.ids.Release(ref.texture.ID); err != nil {
		core.LogWarn(err.Error())
	}
}

func (ts *TextureSystem) retireLocked(tex gpu.Texture) {
	if tex == nil || tex == ts.DefaultTexture {
		return
	}
	ts.retired = append(ts.retired, tex)
}

func (ts *TextureSystem) onAssetChanged(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	path := data.Data.C[0]
	ts.mutex.RLock()
	var changed []*textureReference
	for _, ref := range ts.registeredTextureTable {
		if ref.texture.Path == path {
			changed = append(changed, ref)
		}
	}
	ts.mutex.RUnlock()

	for _, ref := range changed {
		core.LogInfo("texture `%s` changed on disk, reloading", ref.texture.Name)
		if err := ts.load(ref); err != nil {
			core.LogError("failed to reload texture `%s`: %s", ref.texture.Name, err)
		}
	}
	return false
}

func (ts *TextureSystem) onAssetRemoved(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	path := data.Data.C[0]
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()
	for _, ref := range ts.registeredTextureTable {
		if ref.texture.Path == path {
			core.LogWarn("file of texture `%s` was removed, keeping the loaded copy", ref.texture.Name)
		}
	}
	return false
}
